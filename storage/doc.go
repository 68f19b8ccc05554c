// Package storage binds the dual-backend clients to concrete storage accounts.
//
// It provides:
//
//   - Azure Blob bindings (ServiceBackend, ContainerBackend, BlobBackend) over azblob
//   - an Azure Table binding (TableBackend) over aztables
//   - in-process accounts and tables (MemoryService, MemoryTable) for local runs and tests
//   - a ClientFactory that builds bindings from storage locations
//
// # Storage Locations
//
// A location is one of:
//
//   - an Azure Storage connection string
//   - a service URL, https://account.blob.core.windows.net/ or https://account.table.core.windows.net/;
//     without a SAS query the credential comes from azidentity.DefaultAzureCredential
//   - memory://account
//
// A location may also be given as a secret reference, resolved before it is interpreted:
//
//   - env://TARGET_STORAGE_CONNECTION_STRING
//   - file:///run/secrets/target-storage
//   - vault://vault.example.com:8200/secret/migration/target?key=connection_string
//
// Vault references read a KV v2 secret and authenticate with VAULT_TOKEN.
//
// # Not Found
//
// Azure "not found" service errors (BlobNotFound, ContainerNotFound, any 404) surfaced by
// downloads and listings are joined with interfaces.ErrBlobNotFound, so errors.Is works
// while the original *azcore.ResponseError stays reachable through errors.As. Exists and
// DeleteIfExists report absence as a false result instead of an error.
//
// # Usage Example
//
//	factory := storage.NewClientFactory(logger)
//
//	target, err := factory.ServiceFor(ctx, "env://TARGET_STORAGE")
//	if err != nil {
//	    log.Fatalf("Failed to create target storage client: %v", err)
//	}
//
//	users, err := factory.TableFor(ctx, "env://TARGET_STORAGE", "users")
package storage
