package blob

import (
	"context"
	"io"

	"github.com/ruteri/azure-storage-migration-kit/fallback"
	"github.com/ruteri/azure-storage-migration-kit/interfaces"
)

// BlockBlobClientWithFallback adds uploads to ClientWithFallback. Uploads only ever
// reach the primary blob.
type BlockBlobClientWithFallback struct {
	*ClientWithFallback[interfaces.BlockBlobHandle]
}

// NewBlockBlobClientWithFallback creates a client over a primary block blob and an
// optional fallback block blob.
func NewBlockBlobClientWithFallback(primary interfaces.BlockBlobHandle, opts *Options[interfaces.BlockBlobHandle]) (*BlockBlobClientWithFallback, error) {
	c, err := newClientWithFallback(primary, opts)
	if err != nil {
		return nil, err
	}
	return &BlockBlobClientWithFallback{ClientWithFallback: c}, nil
}

// Upload writes length bytes from body to the primary blob.
func (c *BlockBlobClientWithFallback) Upload(ctx context.Context, body io.ReadSeeker, length int64, opts *interfaces.UploadOptions) (interfaces.UploadReceipt, error) {
	return fallback.Try(ctx, func(ctx context.Context) (interfaces.UploadReceipt, error) {
		return c.primary.Upload(ctx, body, length, opts)
	}).Unwrap()
}
