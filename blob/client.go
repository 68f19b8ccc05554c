package blob

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/ruteri/azure-storage-migration-kit/fallback"
	"github.com/ruteri/azure-storage-migration-kit/interfaces"
)

// Options configures a client with fallback.
type Options[T interfaces.BlobHandle] struct {
	// Fallback is the legacy blob. Nil disables fallback.
	Fallback T
	// Tracker is notified every time Fallback is consulted.
	Tracker interfaces.FallbackTracker
	Log     *slog.Logger
}

// ClientWithFallback routes blob operations to a primary blob and, when the primary
// lacks the blob, to a fallback blob.
type ClientWithFallback[T interfaces.BlobHandle] struct {
	primary     T
	fallback    T
	hasFallback bool
	tracker     interfaces.FallbackTracker
	log         *slog.Logger
}

func newClientWithFallback[T interfaces.BlobHandle](primary T, opts *Options[T]) (*ClientWithFallback[T], error) {
	if fallback.IsNil(primary) {
		return nil, fmt.Errorf("blob client: %w", interfaces.ErrNoBackend)
	}
	c := &ClientWithFallback[T]{
		primary: primary,
		log:     slog.Default(),
	}
	if opts != nil {
		if !fallback.IsNil(opts.Fallback) {
			c.fallback = opts.Fallback
			c.hasFallback = true
		}
		c.tracker = opts.Tracker
		if opts.Log != nil {
			c.log = opts.Log
		}
	}
	return c, nil
}

// BlobClientWithFallback is the read, delete and SAS variant.
type BlobClientWithFallback = ClientWithFallback[interfaces.BlobHandle]

// NewBlobClientWithFallback creates a client over a primary blob and an optional fallback blob.
func NewBlobClientWithFallback(primary interfaces.BlobHandle, opts *Options[interfaces.BlobHandle]) (*BlobClientWithFallback, error) {
	return newClientWithFallback(primary, opts)
}

func (c *ClientWithFallback[T]) ContainerName() string {
	return c.primary.ContainerName()
}

func (c *ClientWithFallback[T]) Name() string {
	return c.primary.Name()
}

func (c *ClientWithFallback[T]) URL() string {
	return c.primary.URL()
}

func (c *ClientWithFallback[T]) notify() {
	c.log.Debug("Falling back to secondary blob",
		slog.String("container", c.fallback.ContainerName()),
		slog.String("blob", c.fallback.Name()))
	fallback.Notify(c.log, c.tracker, c.fallback.ContainerName(), c.fallback.Name())
}

// resolve picks the handle that serves a read: the primary when the blob exists there,
// else the fallback if configured, else the primary anyway.
func (c *ClientWithFallback[T]) resolve(ctx context.Context) (T, error) {
	exists := fallback.Try(ctx, c.primary.Exists)
	if !exists.Ok() {
		var zero T
		return zero, exists.Err
	}
	if exists.Value || !c.hasFallback {
		return c.primary, nil
	}
	c.notify()
	return c.fallback, nil
}

// Exists reports whether the blob exists on the primary or, failing that, on the fallback.
func (c *ClientWithFallback[T]) Exists(ctx context.Context) (bool, error) {
	primary := fallback.Try(ctx, c.primary.Exists)
	if !primary.Ok() {
		return false, primary.Err
	}
	if primary.Value || !c.hasFallback {
		return primary.Value, nil
	}

	c.notify()
	return fallback.Try(ctx, c.fallback.Exists).Unwrap()
}

// GenerateSASURL signs a URL for whichever blob holds the data. When neither blob exists
// the URL is generated for the primary.
func (c *ClientWithFallback[T]) GenerateSASURL(ctx context.Context, opts interfaces.SASOptions) (string, error) {
	handle, err := c.resolve(ctx)
	if err != nil {
		return "", err
	}
	return fallback.Try(ctx, func(context.Context) (string, error) {
		return handle.GenerateSASURL(opts)
	}).Unwrap()
}

// DeleteIfExists deletes the blob on the primary and then on the fallback. The fallback
// result is reported when the primary deleted nothing; a fallback error counts as
// nothing deleted.
func (c *ClientWithFallback[T]) DeleteIfExists(ctx context.Context, opts *interfaces.DeleteOptions) (interfaces.DeleteResult, error) {
	primary := fallback.Try(ctx, func(ctx context.Context) (interfaces.DeleteResult, error) {
		return c.primary.DeleteIfExists(ctx, opts)
	})
	if !primary.Ok() {
		return interfaces.DeleteResult{}, primary.Err
	}
	if !c.hasFallback {
		return primary.Value, nil
	}

	secondary := fallback.Try(ctx, func(ctx context.Context) (interfaces.DeleteResult, error) {
		return c.fallback.DeleteIfExists(ctx, opts)
	})
	if !secondary.Ok() {
		c.log.Warn("Fallback blob delete failed",
			slog.String("container", c.fallback.ContainerName()),
			slog.String("blob", c.fallback.Name()),
			"err", secondary.Err)
		secondary.Value = interfaces.DeleteResult{Succeeded: false}
	}

	if !primary.Value.Succeeded {
		return secondary.Value, nil
	}
	return primary.Value, nil
}

// Download streams the selected range from whichever blob holds the data.
func (c *ClientWithFallback[T]) Download(ctx context.Context, opts *interfaces.DownloadOptions) (io.ReadCloser, error) {
	handle, err := c.resolve(ctx)
	if err != nil {
		return nil, err
	}
	return fallback.Try(ctx, func(ctx context.Context) (io.ReadCloser, error) {
		return handle.Download(ctx, opts)
	}).Unwrap()
}

// DownloadBuffer reads the selected range from whichever blob holds the data.
func (c *ClientWithFallback[T]) DownloadBuffer(ctx context.Context, opts *interfaces.DownloadOptions) ([]byte, error) {
	handle, err := c.resolve(ctx)
	if err != nil {
		return nil, err
	}
	return fallback.Try(ctx, func(ctx context.Context) ([]byte, error) {
		return handle.DownloadBuffer(ctx, opts)
	}).Unwrap()
}
