package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/service"
	"github.com/ruteri/azure-storage-migration-kit/interfaces"
)

var ErrUnsupportedLocation = errors.New("unsupported storage location")

// ClientFactory creates blob service and table bindings from storage locations.
type ClientFactory struct {
	log     *slog.Logger
	secrets *SecretResolver

	mu         sync.Mutex
	credential azcore.TokenCredential
	memory     map[string]*MemoryService
	tables     map[string]*MemoryTable
}

// NewClientFactory creates a factory. Secret references are resolved with a default SecretResolver.
func NewClientFactory(logger *slog.Logger) *ClientFactory {
	return &ClientFactory{
		log:     logger,
		secrets: NewSecretResolver(logger),
		memory:  make(map[string]*MemoryService),
		tables:  make(map[string]*MemoryTable),
	}
}

// ServiceFor creates a blob service binding from a location.
// The location is first resolved as a secret reference, then interpreted as:
//
//   - memory://account - process-local account, shared by all callers of this factory
//   - https://account.blob.core.windows.net/ - service URL; a SAS query is used as is,
//     otherwise credentials come from azidentity.DefaultAzureCredential
//   - anything else - an Azure Storage connection string
func (f *ClientFactory) ServiceFor(ctx context.Context, location string) (interfaces.ServiceHandle, error) {
	resolved, err := f.secrets.Resolve(ctx, location)
	if err != nil {
		return nil, err
	}

	switch kind, u := classifyLocation(resolved); kind {
	case memoryLocation:
		f.log.Debug("Creating in-memory blob service", slog.String("account", u.Host))
		return f.memoryService(u.Host), nil
	case urlLocation:
		f.log.Debug("Creating blob service from url", slog.String("host", u.Host))
		client, err := f.blobServiceFromURL(u)
		if err != nil {
			return nil, err
		}
		return NewServiceBackend(client, f.log)
	case connectionStringLocation:
		f.log.Debug("Creating blob service from connection string")
		client, err := service.NewClientFromConnectionString(resolved, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create blob service client: %w", err)
		}
		return NewServiceBackend(client, f.log)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLocation, redact(location))
	}
}

// TableFor creates a table binding from a location, interpreted like ServiceFor. Service
// URLs must point at the table endpoint (https://account.table.core.windows.net/).
func (f *ClientFactory) TableFor(ctx context.Context, location, tableName string) (interfaces.TableHandle, error) {
	resolved, err := f.secrets.Resolve(ctx, location)
	if err != nil {
		return nil, err
	}

	var client *aztables.ServiceClient
	switch kind, u := classifyLocation(resolved); kind {
	case memoryLocation:
		return f.memoryTable(u.Host, tableName), nil
	case urlLocation:
		if u.RawQuery != "" {
			client, err = aztables.NewServiceClientWithNoCredential(u.String(), nil)
		} else {
			var cred azcore.TokenCredential
			if cred, err = f.tokenCredential(); err == nil {
				client, err = aztables.NewServiceClient(u.String(), cred, nil)
			}
		}
	case connectionStringLocation:
		client, err = aztables.NewServiceClientFromConnectionString(resolved, nil)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLocation, redact(location))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create table service client: %w", err)
	}
	return NewTableBackend(client.NewClient(tableName), tableName), nil
}

func (f *ClientFactory) blobServiceFromURL(u *url.URL) (*service.Client, error) {
	if u.RawQuery != "" {
		return service.NewClientWithNoCredential(u.String(), nil)
	}
	cred, err := f.tokenCredential()
	if err != nil {
		return nil, err
	}
	return service.NewClient(u.String(), cred, nil)
}

func (f *ClientFactory) tokenCredential() (azcore.TokenCredential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.credential != nil {
		return f.credential, nil
	}
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create azure credential: %w", err)
	}
	f.credential = cred
	return cred, nil
}

func (f *ClientFactory) memoryService(account string) *MemoryService {
	f.mu.Lock()
	defer f.mu.Unlock()
	svc, ok := f.memory[account]
	if !ok {
		svc = NewMemoryService(account)
		f.memory[account] = svc
	}
	return svc
}

func (f *ClientFactory) memoryTable(account, tableName string) *MemoryTable {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := account + "/" + tableName
	table, ok := f.tables[key]
	if !ok {
		table = NewMemoryTable(tableName)
		f.tables[key] = table
	}
	return table
}

type locationKind int

const (
	unknownLocation locationKind = iota
	memoryLocation
	urlLocation
	connectionStringLocation
)

func classifyLocation(location string) (locationKind, *url.URL) {
	if u, err := url.Parse(location); err == nil {
		switch strings.ToLower(u.Scheme) {
		case "memory":
			if u.Host == "" {
				return unknownLocation, nil
			}
			return memoryLocation, u
		case "https", "http":
			return urlLocation, u
		}
	}
	if strings.Contains(location, "AccountName=") || strings.Contains(location, "UseDevelopmentStorage=true") {
		return connectionStringLocation, nil
	}
	return unknownLocation, nil
}

// redact keeps the scheme of a location for error messages.
func redact(location string) string {
	if u, err := url.Parse(location); err == nil && u.Scheme != "" {
		return u.Scheme + "://..."
	}
	return "<redacted>"
}
