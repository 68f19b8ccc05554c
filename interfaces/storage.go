package interfaces

import (
	"context"
	"errors"
	"io"
	"iter"
	"time"
)

var (
	// ErrNoBackend is returned at construction time when a dual client is given no backend at all.
	ErrNoBackend = errors.New("at least one backend client must be provided")

	// ErrNotImplemented is returned by operations the dual clients deliberately do not support.
	// No backend call is attempted before it is returned.
	ErrNotImplemented = errors.New("method not implemented")

	// ErrBlobNotFound is the not-found signal. It is the only error that triggers a fallback read.
	ErrBlobNotFound = errors.New("blob not found")

	// ErrMigrationIncomplete is returned by the scanner when a blob fails the completion predicate.
	ErrMigrationIncomplete = errors.New("migration not completed yet")

	// ErrInvalidCheckpoint is returned when a checkpoint record cannot be decoded or is malformed.
	ErrInvalidCheckpoint = errors.New("invalid checkpoint")

	// ErrLengthMismatch is returned when an upload body does not match its declared length.
	ErrLengthMismatch = errors.New("body length does not match declared length")
)

// FallbackTracker is notified once per operation that had to use the fallback backend.
// It must not block; wrappers invoke it without waiting for it.
type FallbackTracker func(containerName, blobName string)

// EntityErrorHandler receives secondary write failures of a dual entity create.
type EntityErrorHandler func(err error, entity Entity)

// EntityKey is the composite identity of an entity within one table.
type EntityKey struct {
	PartitionKey string
	RowKey       string
}

func (k EntityKey) String() string {
	return k.PartitionKey + "|" + k.RowKey
}

// Entity is a single table record.
type Entity struct {
	PartitionKey string
	RowKey       string
	Properties   map[string]any
}

// Key returns the composite identity of the entity.
func (e Entity) Key() EntityKey {
	return EntityKey{PartitionKey: e.PartitionKey, RowKey: e.RowKey}
}

// EntityReceipt is what a backend returns for a successful create.
type EntityReceipt struct {
	ETag  string
	Value []byte
}

// ListEntitiesOptions narrows an entity listing. Zero values mean no restriction.
type ListEntitiesOptions struct {
	Filter string
	Select []string
	Top    int32
}

// TableHandle is a table on one storage account.
type TableHandle interface {
	// Name returns the table name.
	Name() string

	// CreateEntity inserts a new entity.
	CreateEntity(ctx context.Context, entity Entity) (EntityReceipt, error)

	// ListEntities returns a lazy, single-pass sequence of entities in backend order.
	ListEntities(ctx context.Context, opts *ListEntitiesOptions) iter.Seq2[Entity, error]
}

// DownloadOptions selects a byte range. Count 0 reads to the end of the blob.
type DownloadOptions struct {
	Offset int64
	Count  int64
}

// DeleteOptions controls blob deletion.
type DeleteOptions struct {
	IncludeSnapshots bool
}

// DeleteResult reports whether a delete removed anything.
type DeleteResult struct {
	Succeeded bool
}

// SASPermissions lists the permissions granted by a blob SAS.
type SASPermissions struct {
	Read   bool
	Add    bool
	Create bool
	Write  bool
	Delete bool
	Tag    bool
}

// SASOptions describes a blob SAS URL.
type SASOptions struct {
	Permissions SASPermissions
	ExpiresOn   time.Time
	StartsOn    *time.Time
}

// UploadOptions carries blob properties set on upload.
type UploadOptions struct {
	ContentType string
	Metadata    map[string]string
	Tags        map[string]string
}

// UploadReceipt is what a backend returns for a successful upload.
type UploadReceipt struct {
	ETag         string
	LastModified time.Time
}

// BlobHandle is a single blob on one storage account.
type BlobHandle interface {
	ContainerName() string
	Name() string
	URL() string

	// Exists reports whether the blob exists. Absence is not an error.
	Exists(ctx context.Context) (bool, error)

	// Download streams the selected range. The caller closes the reader.
	Download(ctx context.Context, opts *DownloadOptions) (io.ReadCloser, error)

	// DownloadBuffer reads the selected range into memory.
	DownloadBuffer(ctx context.Context, opts *DownloadOptions) ([]byte, error)

	// DeleteIfExists deletes the blob, reporting Succeeded=false when it did not exist.
	DeleteIfExists(ctx context.Context, opts *DeleteOptions) (DeleteResult, error)

	// GenerateSASURL signs a URL for the blob. It does not contact the service.
	GenerateSASURL(opts SASOptions) (string, error)
}

// BlockBlobHandle is a blob that accepts uploads.
type BlockBlobHandle interface {
	BlobHandle

	// Upload replaces the blob content with length bytes read from body.
	Upload(ctx context.Context, body io.ReadSeeker, length int64, opts *UploadOptions) (UploadReceipt, error)
}

// BlobItem is one entry of a flat blob listing.
type BlobItem struct {
	Name string
	Tags map[string]string
}

// BlobPage is one page of a flat blob listing. An empty ContinuationToken marks the last page.
type BlobPage struct {
	Items             []BlobItem
	ContinuationToken string
}

// ListBlobsOptions configures a paged flat listing.
type ListBlobsOptions struct {
	ContinuationToken string
	MaxPageSize       int32
	IncludeTags       bool
}

// ContainerHandle is a blob container on one storage account.
type ContainerHandle interface {
	Name() string
	BlobClient(blobName string) BlobHandle
	BlockBlobClient(blobName string) BlockBlobHandle

	// UploadBlockBlob uploads a block blob and returns its handle.
	UploadBlockBlob(ctx context.Context, blobName string, body io.ReadSeeker, length int64, opts *UploadOptions) (BlockBlobHandle, UploadReceipt, error)

	// CreateIfNotExists creates the container, treating an existing container as success.
	CreateIfNotExists(ctx context.Context) error

	// ListBlobPages pages through the container starting at opts.ContinuationToken.
	ListBlobPages(ctx context.Context, opts *ListBlobsOptions) iter.Seq2[BlobPage, error]
}

// ServiceHandle is the blob service of one storage account.
type ServiceHandle interface {
	AccountName() string
	URL() string
	ContainerClient(containerName string) ContainerHandle

	// ListContainers yields container names in the account's listing order.
	ListContainers(ctx context.Context) iter.Seq2[string, error]
}
