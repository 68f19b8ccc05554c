package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ruteri/azure-storage-migration-kit/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockBlobHandle implements interfaces.BlockBlobHandle for testing
type MockBlobHandle struct {
	mock.Mock
	container string
	name      string
}

func newMockBlob(container, name string) *MockBlobHandle {
	return &MockBlobHandle{container: container, name: name}
}

func (m *MockBlobHandle) ContainerName() string { return m.container }
func (m *MockBlobHandle) Name() string          { return m.name }
func (m *MockBlobHandle) URL() string {
	return "https://account.blob.core.windows.net/" + m.container + "/" + m.name
}

func (m *MockBlobHandle) Exists(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockBlobHandle) Download(ctx context.Context, opts *interfaces.DownloadOptions) (io.ReadCloser, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockBlobHandle) DownloadBuffer(ctx context.Context, opts *interfaces.DownloadOptions) ([]byte, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockBlobHandle) DeleteIfExists(ctx context.Context, opts *interfaces.DeleteOptions) (interfaces.DeleteResult, error) {
	args := m.Called(ctx, opts)
	return args.Get(0).(interfaces.DeleteResult), args.Error(1)
}

func (m *MockBlobHandle) GenerateSASURL(opts interfaces.SASOptions) (string, error) {
	args := m.Called(opts)
	return args.String(0), args.Error(1)
}

func (m *MockBlobHandle) Upload(ctx context.Context, body io.ReadSeeker, length int64, opts *interfaces.UploadOptions) (interfaces.UploadReceipt, error) {
	args := m.Called(ctx, body, length, opts)
	return args.Get(0).(interfaces.UploadReceipt), args.Error(1)
}

// MockContainerHandle implements interfaces.ContainerHandle for testing
type MockContainerHandle struct {
	mock.Mock
	name  string
	blobs map[string]*MockBlobHandle
}

func newMockContainer(name string) *MockContainerHandle {
	return &MockContainerHandle{name: name, blobs: map[string]*MockBlobHandle{}}
}

func (m *MockContainerHandle) blob(name string) *MockBlobHandle {
	if b, ok := m.blobs[name]; ok {
		return b
	}
	b := newMockBlob(m.name, name)
	m.blobs[name] = b
	return b
}

func (m *MockContainerHandle) Name() string { return m.name }

func (m *MockContainerHandle) BlobClient(blobName string) interfaces.BlobHandle {
	return m.blob(blobName)
}

func (m *MockContainerHandle) BlockBlobClient(blobName string) interfaces.BlockBlobHandle {
	return m.blob(blobName)
}

func (m *MockContainerHandle) UploadBlockBlob(ctx context.Context, blobName string, body io.ReadSeeker, length int64, opts *interfaces.UploadOptions) (interfaces.BlockBlobHandle, interfaces.UploadReceipt, error) {
	args := m.Called(ctx, blobName, body, length, opts)
	return m.blob(blobName), args.Get(0).(interfaces.UploadReceipt), args.Error(1)
}

func (m *MockContainerHandle) CreateIfNotExists(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockContainerHandle) ListBlobPages(ctx context.Context, opts *interfaces.ListBlobsOptions) iter.Seq2[interfaces.BlobPage, error] {
	args := m.Called(ctx, opts)
	return args.Get(0).(iter.Seq2[interfaces.BlobPage, error])
}

// MockServiceHandle implements interfaces.ServiceHandle for testing
type MockServiceHandle struct {
	account    string
	containers map[string]*MockContainerHandle
}

func newMockService(account string) *MockServiceHandle {
	return &MockServiceHandle{account: account, containers: map[string]*MockContainerHandle{}}
}

func (m *MockServiceHandle) AccountName() string { return m.account }
func (m *MockServiceHandle) URL() string         { return "https://" + m.account + ".blob.core.windows.net/" }

func (m *MockServiceHandle) ContainerClient(containerName string) interfaces.ContainerHandle {
	return m.container(containerName)
}

func (m *MockServiceHandle) container(name string) *MockContainerHandle {
	if c, ok := m.containers[name]; ok {
		return c
	}
	c := newMockContainer(name)
	m.containers[name] = c
	return c
}

func (m *MockServiceHandle) ListContainers(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for name := range m.containers {
			if !yield(name, nil) {
				return
			}
		}
	}
}

// trackerRecorder collects tracker notifications delivered from other goroutines.
type trackerRecorder struct {
	mu    sync.Mutex
	calls [][2]string
}

func (r *trackerRecorder) track(containerName, blobName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, [2]string{containerName, blobName})
}

func (r *trackerRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *trackerRecorder) waitFor(t *testing.T, n int) [][2]string {
	t.Helper()
	require.Eventually(t, func() bool { return r.count() >= n }, time.Second, 5*time.Millisecond)
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][2]string{}, r.calls...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, primary, fb *MockBlobHandle, tracker interfaces.FallbackTracker) *BlobClientWithFallback {
	t.Helper()
	opts := &Options[interfaces.BlobHandle]{Tracker: tracker, Log: discardLogger()}
	if fb != nil {
		opts.Fallback = fb
	}
	client, err := NewBlobClientWithFallback(primary, opts)
	require.NoError(t, err)
	return client
}

func TestNewBlobClientWithFallback(t *testing.T) {
	t.Run("primary required", func(t *testing.T) {
		client, err := NewBlobClientWithFallback(nil, nil)
		assert.Nil(t, client)
		assert.ErrorIs(t, err, interfaces.ErrNoBackend)
	})

	t.Run("typed nil primary", func(t *testing.T) {
		var primary *MockBlobHandle
		client, err := NewBlobClientWithFallback(primary, nil)
		assert.Nil(t, client)
		assert.ErrorIs(t, err, interfaces.ErrNoBackend)
	})

	t.Run("typed nil fallback is no fallback", func(t *testing.T) {
		var fb *MockBlobHandle
		client, err := NewBlobClientWithFallback(newMockBlob("c", "b"), &Options[interfaces.BlobHandle]{Fallback: fb})
		require.NoError(t, err)
		assert.False(t, client.hasFallback)
	})

	t.Run("names come from primary", func(t *testing.T) {
		client := newTestClient(t, newMockBlob("new-c", "b"), newMockBlob("old-c", "b"), nil)
		assert.Equal(t, "new-c", client.ContainerName())
		assert.Equal(t, "b", client.Name())
	})
}

func TestClientWithFallback_Exists(t *testing.T) {
	testErr := errors.New("auth failure")

	tests := []struct {
		name             string
		primaryExists    bool
		primaryErr       error
		withFallback     bool
		fallbackExists   bool
		fallbackErr      error
		expected         bool
		expectedErr      error
		expectFallback   bool
		expectedNotified int
	}{
		{name: "primary exists", primaryExists: true, withFallback: true, expected: true},
		{name: "fallback exists", withFallback: true, fallbackExists: true, expected: true, expectFallback: true, expectedNotified: 1},
		{name: "neither exists", withFallback: true, expected: false, expectFallback: true, expectedNotified: 1},
		{name: "no fallback", expected: false},
		{name: "primary error propagates", primaryErr: testErr, withFallback: true, expectedErr: testErr},
		{name: "fallback error propagates", withFallback: true, fallbackErr: testErr, expectedErr: testErr, expectFallback: true, expectedNotified: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := newMockBlob("container", "blob")
			primary.On("Exists", mock.Anything).Return(tt.primaryExists, tt.primaryErr).Once()

			var fb *MockBlobHandle
			if tt.withFallback {
				fb = newMockBlob("legacy", "blob")
				if tt.expectFallback {
					fb.On("Exists", mock.Anything).Return(tt.fallbackExists, tt.fallbackErr).Once()
				}
			}

			recorder := &trackerRecorder{}
			client := newTestClient(t, primary, fb, recorder.track)

			exists, err := client.Exists(context.Background())
			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, exists)
			}

			primary.AssertExpectations(t)
			if fb != nil {
				fb.AssertExpectations(t)
				if !tt.expectFallback {
					fb.AssertNotCalled(t, "Exists", mock.Anything)
				}
			}
			if tt.expectedNotified > 0 {
				calls := recorder.waitFor(t, tt.expectedNotified)
				assert.Equal(t, [][2]string{{"legacy", "blob"}}, calls)
			} else {
				assert.Never(t, func() bool { return recorder.count() > 0 }, 50*time.Millisecond, 5*time.Millisecond)
			}
		})
	}
}

func TestClientWithFallback_GenerateSASURL(t *testing.T) {
	opts := interfaces.SASOptions{
		Permissions: interfaces.SASPermissions{Read: true},
		ExpiresOn:   time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	t.Run("primary exists", func(t *testing.T) {
		primary := newMockBlob("c", "b")
		fb := newMockBlob("c", "b")
		primary.On("Exists", mock.Anything).Return(true, nil)
		primary.On("GenerateSASURL", opts).Return("https://primary?sig", nil)

		client := newTestClient(t, primary, fb, nil)
		url, err := client.GenerateSASURL(context.Background(), opts)
		require.NoError(t, err)
		assert.Equal(t, "https://primary?sig", url)
		fb.AssertNotCalled(t, "GenerateSASURL", mock.Anything)
	})

	t.Run("fallback used when primary is missing", func(t *testing.T) {
		primary := newMockBlob("c", "b")
		fb := newMockBlob("c", "b")
		primary.On("Exists", mock.Anything).Return(false, nil)
		fb.On("GenerateSASURL", opts).Return("https://fallback?sig", nil)

		recorder := &trackerRecorder{}
		client := newTestClient(t, primary, fb, recorder.track)
		url, err := client.GenerateSASURL(context.Background(), opts)
		require.NoError(t, err)
		assert.Equal(t, "https://fallback?sig", url)
		recorder.waitFor(t, 1)
		primary.AssertNotCalled(t, "GenerateSASURL", mock.Anything)
	})

	t.Run("no fallback falls through to primary", func(t *testing.T) {
		primary := newMockBlob("c", "b")
		primary.On("Exists", mock.Anything).Return(false, nil)
		primary.On("GenerateSASURL", opts).Return("https://primary?sig", nil)

		client := newTestClient(t, primary, nil, nil)
		url, err := client.GenerateSASURL(context.Background(), opts)
		require.NoError(t, err)
		assert.Equal(t, "https://primary?sig", url)
	})

	t.Run("exists error propagates", func(t *testing.T) {
		testErr := errors.New("network")
		primary := newMockBlob("c", "b")
		primary.On("Exists", mock.Anything).Return(false, testErr)

		client := newTestClient(t, primary, newMockBlob("c", "b"), nil)
		_, err := client.GenerateSASURL(context.Background(), opts)
		assert.ErrorIs(t, err, testErr)
	})
}

func TestClientWithFallback_DeleteIfExists(t *testing.T) {
	testErr := errors.New("delete failed")

	tests := []struct {
		name           string
		primaryResult  bool
		primaryErr     error
		withFallback   bool
		fallbackResult bool
		fallbackErr    error
		expected       bool
		expectedErr    error
		expectFallback bool
	}{
		{name: "primary only", primaryResult: true, expected: true},
		{name: "primary false, no fallback", primaryResult: false, expected: false},
		{name: "primary false, fallback true", withFallback: true, fallbackResult: true, expected: true, expectFallback: true},
		{name: "primary true, fallback still attempted", primaryResult: true, withFallback: true, fallbackResult: false, expected: true, expectFallback: true},
		{name: "both true", primaryResult: true, withFallback: true, fallbackResult: true, expected: true, expectFallback: true},
		{name: "both false", withFallback: true, expected: false, expectFallback: true},
		{name: "fallback error folds to false", withFallback: true, fallbackErr: testErr, expected: false, expectFallback: true},
		{name: "fallback error with primary true", primaryResult: true, withFallback: true, fallbackErr: testErr, expected: true, expectFallback: true},
		{name: "primary error propagates", primaryErr: testErr, withFallback: true, expectedErr: testErr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := &interfaces.DeleteOptions{IncludeSnapshots: true}
			primary := newMockBlob("c", "b")
			primary.On("DeleteIfExists", mock.Anything, opts).Return(interfaces.DeleteResult{Succeeded: tt.primaryResult}, tt.primaryErr).Once()

			var fb *MockBlobHandle
			if tt.withFallback {
				fb = newMockBlob("c", "b")
				if tt.expectFallback {
					fb.On("DeleteIfExists", mock.Anything, opts).Return(interfaces.DeleteResult{Succeeded: tt.fallbackResult}, tt.fallbackErr).Once()
				}
			}

			recorder := &trackerRecorder{}
			client := newTestClient(t, primary, fb, recorder.track)
			result, err := client.DeleteIfExists(context.Background(), opts)
			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, result.Succeeded)
			}

			primary.AssertExpectations(t)
			if fb != nil {
				fb.AssertExpectations(t)
			}
			assert.Zero(t, recorder.count())
		})
	}
}

func TestClientWithFallback_Download(t *testing.T) {
	opts := &interfaces.DownloadOptions{Offset: 2, Count: 3}

	t.Run("reads primary when present", func(t *testing.T) {
		primary := newMockBlob("c", "b")
		fb := newMockBlob("c", "b")
		primary.On("Exists", mock.Anything).Return(true, nil)
		primary.On("DownloadBuffer", mock.Anything, opts).Return([]byte("new"), nil)

		client := newTestClient(t, primary, fb, nil)
		data, err := client.DownloadBuffer(context.Background(), opts)
		require.NoError(t, err)
		assert.Equal(t, []byte("new"), data)
		fb.AssertNotCalled(t, "DownloadBuffer", mock.Anything, mock.Anything)
	})

	t.Run("reads fallback when primary is missing", func(t *testing.T) {
		primary := newMockBlob("c", "b")
		fb := newMockBlob("legacy", "b")
		primary.On("Exists", mock.Anything).Return(false, nil)
		fb.On("DownloadBuffer", mock.Anything, opts).Return([]byte("old"), nil)

		recorder := &trackerRecorder{}
		client := newTestClient(t, primary, fb, recorder.track)
		data, err := client.DownloadBuffer(context.Background(), opts)
		require.NoError(t, err)
		assert.Equal(t, []byte("old"), data)
		assert.Equal(t, [][2]string{{"legacy", "b"}}, recorder.waitFor(t, 1))
	})

	t.Run("missing everywhere surfaces primary not found", func(t *testing.T) {
		primary := newMockBlob("c", "b")
		primary.On("Exists", mock.Anything).Return(false, nil)
		primary.On("DownloadBuffer", mock.Anything, opts).Return(nil, interfaces.ErrBlobNotFound)

		client := newTestClient(t, primary, nil, nil)
		_, err := client.DownloadBuffer(context.Background(), opts)
		assert.ErrorIs(t, err, interfaces.ErrBlobNotFound)
	})

	t.Run("fallback read error propagates", func(t *testing.T) {
		testErr := errors.New("throttled")
		primary := newMockBlob("c", "b")
		fb := newMockBlob("c", "b")
		primary.On("Exists", mock.Anything).Return(false, nil)
		fb.On("DownloadBuffer", mock.Anything, opts).Return(nil, testErr)

		client := newTestClient(t, primary, fb, nil)
		_, err := client.DownloadBuffer(context.Background(), opts)
		assert.ErrorIs(t, err, testErr)
	})

	t.Run("stream from fallback", func(t *testing.T) {
		primary := newMockBlob("c", "b")
		fb := newMockBlob("c", "b")
		primary.On("Exists", mock.Anything).Return(false, nil)
		fb.On("Download", mock.Anything, opts).Return(io.NopCloser(strings.NewReader("old")), nil)

		client := newTestClient(t, primary, fb, nil)
		rc, err := client.Download(context.Background(), opts)
		require.NoError(t, err)
		defer rc.Close()
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, "old", string(data))
	})
}

func TestBlockBlobClientWithFallback_Upload(t *testing.T) {
	primary := newMockBlob("c", "b")
	fb := newMockBlob("c", "b")
	body := bytes.NewReader([]byte("payload"))
	opts := &interfaces.UploadOptions{ContentType: "application/json"}
	primary.On("Upload", mock.Anything, body, int64(7), opts).Return(interfaces.UploadReceipt{ETag: "etag"}, nil).Once()

	client, err := NewBlockBlobClientWithFallback(primary, &Options[interfaces.BlockBlobHandle]{Fallback: fb, Log: discardLogger()})
	require.NoError(t, err)

	receipt, err := client.Upload(context.Background(), body, 7, opts)
	require.NoError(t, err)
	assert.Equal(t, "etag", receipt.ETag)
	primary.AssertExpectations(t)
	fb.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	// reads still fall back
	primary.On("Exists", mock.Anything).Return(false, nil)
	fb.On("Exists", mock.Anything).Return(true, nil)
	exists, err := client.Exists(context.Background())
	require.NoError(t, err)
	assert.True(t, exists)
}
