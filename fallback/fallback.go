package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/ruteri/azure-storage-migration-kit/interfaces"
)

// Result is the outcome of a single backend operation.
type Result[T any] struct {
	Value T
	Err   error
}

// Ok reports whether the operation succeeded.
func (r Result[T]) Ok() bool {
	return r.Err == nil
}

// Unwrap returns the value and error as a pair.
func (r Result[T]) Unwrap() (T, error) {
	return r.Value, r.Err
}

// PanicError wraps a value recovered from a panicking backend call.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("backend operation panicked: %v", e.Value)
}

// Try runs op exactly once and captures its outcome.
func Try[T any](ctx context.Context, op func(context.Context) (T, error)) (res Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			res = Result[T]{Err: &PanicError{Value: r}}
		}
	}()

	if err := ctx.Err(); err != nil {
		return Result[T]{Err: err}
	}

	value, err := op(ctx)
	return Result[T]{Value: value, Err: err}
}

// IsNotFound reports whether err is the backend's "item absent" signal.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, interfaces.ErrBlobNotFound) {
		return true
	}
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound, bloberror.ResourceNotFound) {
		return true
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == http.StatusNotFound
	}
	return false
}

// Notify calls tracker in its own goroutine. A nil tracker is a no-op and a panicking
// tracker is logged, never propagated.
func Notify(log *slog.Logger, tracker interfaces.FallbackTracker, containerName, blobName string) {
	if tracker == nil {
		return
	}
	if log == nil {
		log = slog.Default()
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Warn("Fallback tracker panicked",
					slog.String("container", containerName),
					slog.String("blob", blobName),
					slog.Any("panic", r))
			}
		}()
		tracker(containerName, blobName)
	}()
}

// IsNil reports whether v is nil, including typed nil pointers stored in an interface.
func IsNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
