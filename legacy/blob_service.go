package legacy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ruteri/azure-storage-migration-kit/fallback"
	"github.com/ruteri/azure-storage-migration-kit/interfaces"
)

// BlobServiceWithFallback pairs a primary blob service with an optional secondary one.
type BlobServiceWithFallback struct {
	Primary   interfaces.ServiceHandle
	Secondary interfaces.ServiceHandle

	log *slog.Logger
}

// NewBlobService creates the service pair. secondary may be nil.
func NewBlobService(primary, secondary interfaces.ServiceHandle, log *slog.Logger) (*BlobServiceWithFallback, error) {
	if fallback.IsNil(primary) {
		return nil, fmt.Errorf("blob service: %w", interfaces.ErrNoBackend)
	}
	if fallback.IsNil(secondary) {
		secondary = nil
	}
	if log == nil {
		log = slog.Default()
	}
	return &BlobServiceWithFallback{Primary: primary, Secondary: secondary, log: log}, nil
}

// ReadOptions configures the read helpers. The zero value reads the same container on
// both accounts without tracking.
type ReadOptions struct {
	// SecondaryContainerName overrides the container name on the secondary account.
	SecondaryContainerName string
	Tracker                interfaces.FallbackTracker
}

func (o *ReadOptions) secondaryContainer(containerName string) string {
	if o != nil && o.SecondaryContainerName != "" {
		return o.SecondaryContainerName
	}
	return containerName
}

func (o *ReadOptions) tracker() interfaces.FallbackTracker {
	if o == nil {
		return nil
	}
	return o.Tracker
}

func (s *BlobServiceWithFallback) blob(svc interfaces.ServiceHandle, containerName, blobName string) interfaces.BlobHandle {
	return svc.ContainerClient(containerName).BlobClient(blobName)
}

// DoesBlobExist checks the primary account and, when the blob is not there, the
// secondary account.
func (s *BlobServiceWithFallback) DoesBlobExist(ctx context.Context, containerName, blobName string, opts *ReadOptions) (bool, error) {
	primary := fallback.Try(ctx, s.blob(s.Primary, containerName, blobName).Exists)
	if !primary.Ok() {
		return false, primary.Err
	}
	if primary.Value || s.Secondary == nil {
		return primary.Value, nil
	}

	secondaryContainer := opts.secondaryContainer(containerName)
	secondary := fallback.Try(ctx, s.blob(s.Secondary, secondaryContainer, blobName).Exists)
	if !secondary.Ok() {
		return false, secondary.Err
	}
	fallback.Notify(s.log, opts.tracker(), secondaryContainer, blobName)
	return secondary.Value, nil
}

// DoesBlobExistOnDifferentContainerNames is DoesBlobExist with a distinct secondary container.
func (s *BlobServiceWithFallback) DoesBlobExistOnDifferentContainerNames(ctx context.Context, containerName, secondaryContainerName, blobName string, tracker interfaces.FallbackTracker) (bool, error) {
	return s.DoesBlobExist(ctx, containerName, blobName, &ReadOptions{SecondaryContainerName: secondaryContainerName, Tracker: tracker})
}

// UpsertBlobFromText writes text to the primary account only.
func (s *BlobServiceWithFallback) UpsertBlobFromText(ctx context.Context, containerName, blobName string, text []byte, opts *interfaces.UploadOptions) (interfaces.UploadReceipt, error) {
	_, receipt, err := s.Primary.ContainerClient(containerName).UploadBlockBlob(ctx, blobName, bytes.NewReader(text), int64(len(text)), opts)
	return receipt, err
}

// GetBlobAsText reads the blob from the primary account. When the primary reports the
// blob as not found, the secondary account is read instead. A blob missing from both
// accounts yields found=false and no error. Any other error is returned.
func (s *BlobServiceWithFallback) GetBlobAsText(ctx context.Context, containerName, blobName string, opts *ReadOptions) (text string, found bool, err error) {
	primary := fallback.Try(ctx, func(ctx context.Context) ([]byte, error) {
		return s.blob(s.Primary, containerName, blobName).DownloadBuffer(ctx, nil)
	})
	if primary.Ok() {
		return string(primary.Value), true, nil
	}
	if !fallback.IsNotFound(primary.Err) {
		return "", false, primary.Err
	}
	if s.Secondary == nil {
		return "", false, nil
	}

	secondaryContainer := opts.secondaryContainer(containerName)
	secondary := fallback.Try(ctx, func(ctx context.Context) ([]byte, error) {
		return s.blob(s.Secondary, secondaryContainer, blobName).DownloadBuffer(ctx, nil)
	})
	fallback.Notify(s.log, opts.tracker(), secondaryContainer, blobName)
	switch {
	case secondary.Ok():
		return string(secondary.Value), true, nil
	case fallback.IsNotFound(secondary.Err):
		return "", false, nil
	default:
		return "", false, secondary.Err
	}
}

// GetBlobAsTextOnDifferentContainerNames is GetBlobAsText with a distinct secondary container.
func (s *BlobServiceWithFallback) GetBlobAsTextOnDifferentContainerNames(ctx context.Context, containerName, secondaryContainerName, blobName string, tracker interfaces.FallbackTracker) (string, bool, error) {
	return s.GetBlobAsText(ctx, containerName, blobName, &ReadOptions{SecondaryContainerName: secondaryContainerName, Tracker: tracker})
}

// GetBlobAsTextWithError reads the blob from the primary account and returns every
// error unchanged, not-found included. The secondary account is never consulted.
func (s *BlobServiceWithFallback) GetBlobAsTextWithError(ctx context.Context, containerName, blobName string) (string, error) {
	data, err := fallback.Try(ctx, func(ctx context.Context) ([]byte, error) {
		return s.blob(s.Primary, containerName, blobName).DownloadBuffer(ctx, nil)
	}).Unwrap()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Validator is implemented by decoded values that can check themselves.
type Validator interface {
	Validate() error
}

// GetBlobAsObject reads the blob like GetBlobAsText and decodes it as JSON into T. If T
// (or *T) implements Validator the decoded value is validated.
func GetBlobAsObject[T any](ctx context.Context, s *BlobServiceWithFallback, containerName, blobName string, opts *ReadOptions) (*T, error) {
	text, found, err := s.GetBlobAsText(ctx, containerName, blobName, opts)
	if err != nil || !found {
		return nil, err
	}

	value := new(T)
	if err := json.Unmarshal([]byte(text), value); err != nil {
		return nil, fmt.Errorf("failed to decode %s/%s: %w", containerName, blobName, err)
	}

	var validator Validator
	switch v := any(value).(type) {
	case Validator:
		validator = v
	default:
		if v, ok := any(*value).(Validator); ok {
			validator = v
		}
	}
	if validator != nil {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("invalid %s/%s: %w", containerName, blobName, err)
		}
	}
	return value, nil
}

// GetBlobAsObjectOnDifferentContainerNames is GetBlobAsObject with a distinct secondary container.
func GetBlobAsObjectOnDifferentContainerNames[T any](ctx context.Context, s *BlobServiceWithFallback, containerName, secondaryContainerName, blobName string, tracker interfaces.FallbackTracker) (*T, error) {
	return GetBlobAsObject[T](ctx, s, containerName, blobName, &ReadOptions{SecondaryContainerName: secondaryContainerName, Tracker: tracker})
}
