// Package interfaces defines the capability contracts and shared types of the
// migration kit, separating them from any concrete Azure SDK binding.
//
// # Table Interfaces
//
// TableHandle: a single table on a single storage account. Supports creating one
// entity and lazily listing entities.
//
// # Blob Interfaces
//
// BlobHandle: a single blob. Supports existence checks, ranged reads, deletion and
// SAS URL generation. BlockBlobHandle adds uploads.
//
// ContainerHandle: a blob container. Hands out blob handles, uploads block blobs and
// pages through a flat blob listing with a continuation token.
//
// ServiceHandle: a storage account's blob service. Hands out container handles and
// lists containers.
//
// # Errors
//
// Sentinel errors are matched with errors.Is. Errors returned by the SDK itself are
// propagated unchanged by every wrapper in this module; only the not-found condition
// is ever interpreted.
package interfaces
