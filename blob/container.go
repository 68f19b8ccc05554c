package blob

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/ruteri/azure-storage-migration-kit/fallback"
	"github.com/ruteri/azure-storage-migration-kit/interfaces"
)

// ContainerClientWithFallback hands out blob clients that pair a blob of the primary
// container with the same blob of the fallback container.
type ContainerClientWithFallback struct {
	primary  interfaces.ContainerHandle
	fallback interfaces.ContainerHandle
	tracker  interfaces.FallbackTracker
	log      *slog.Logger
}

// NewContainerClientWithFallback creates a container client. fallbackContainer may be nil.
func NewContainerClientWithFallback(primary, fallbackContainer interfaces.ContainerHandle, tracker interfaces.FallbackTracker, log *slog.Logger) (*ContainerClientWithFallback, error) {
	if fallback.IsNil(primary) {
		return nil, fmt.Errorf("container client: %w", interfaces.ErrNoBackend)
	}
	if fallback.IsNil(fallbackContainer) {
		fallbackContainer = nil
	}
	if log == nil {
		log = slog.Default()
	}
	return &ContainerClientWithFallback{
		primary:  primary,
		fallback: fallbackContainer,
		tracker:  tracker,
		log:      log,
	}, nil
}

func (c *ContainerClientWithFallback) Name() string {
	return c.primary.Name()
}

// BlobClient returns a fallback-aware client for blobName.
func (c *ContainerClientWithFallback) BlobClient(blobName string) *BlobClientWithFallback {
	opts := &Options[interfaces.BlobHandle]{Tracker: c.tracker, Log: c.log}
	if c.fallback != nil {
		opts.Fallback = c.fallback.BlobClient(blobName)
	}
	// primary is non-nil, construction cannot fail
	client, _ := NewBlobClientWithFallback(c.primary.BlobClient(blobName), opts)
	return client
}

// BlockBlobClient returns a fallback-aware block blob client for blobName.
func (c *ContainerClientWithFallback) BlockBlobClient(blobName string) *BlockBlobClientWithFallback {
	opts := &Options[interfaces.BlockBlobHandle]{Tracker: c.tracker, Log: c.log}
	if c.fallback != nil {
		opts.Fallback = c.fallback.BlockBlobClient(blobName)
	}
	client, _ := NewBlockBlobClientWithFallback(c.primary.BlockBlobClient(blobName), opts)
	return client
}

// UploadBlockBlob uploads to the primary container and returns a fallback-aware client
// for the uploaded blob.
func (c *ContainerClientWithFallback) UploadBlockBlob(ctx context.Context, blobName string, body io.ReadSeeker, length int64, opts *interfaces.UploadOptions) (*BlockBlobClientWithFallback, interfaces.UploadReceipt, error) {
	_, receipt, err := c.primary.UploadBlockBlob(ctx, blobName, body, length, opts)
	if err != nil {
		return nil, interfaces.UploadReceipt{}, err
	}
	return c.BlockBlobClient(blobName), receipt, nil
}
