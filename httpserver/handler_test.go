package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/go-chi/chi/v5"
	"github.com/ruteri/azure-storage-migration-kit/api"
	"github.com/ruteri/azure-storage-migration-kit/blob"
	"github.com/ruteri/azure-storage-migration-kit/checkpoint"
	"github.com/ruteri/azure-storage-migration-kit/interfaces"
	"github.com/ruteri/azure-storage-migration-kit/metrics"
	"github.com/ruteri/azure-storage-migration-kit/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	stateful   *storage.MemoryService
	newAccount *storage.MemoryService
	oldAccount *storage.MemoryService
	metrics    *metrics.MetricsServer
	server     *Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	env := &testEnv{
		stateful:   storage.NewMemoryService("state"),
		newAccount: storage.NewMemoryService("newaccount"),
		oldAccount: storage.NewMemoryService("oldaccount"),
	}

	metricsSrv, err := metrics.New("test", "")
	require.NoError(t, err)
	env.metrics = metricsSrv

	blobs, err := blob.NewServiceClientWithFallback(env.newAccount, env.oldAccount, metricsSrv.Fallback().Tracker(), logger)
	require.NoError(t, err)

	env.server, err = New(&api.HTTPServerConfig{
		Log:                      logger,
		GracefulShutdownDuration: time.Second,
	}, NewHandler(env.stateful, blobs, logger), metricsSrv)
	require.NoError(t, err)
	return env
}

func (env *testEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestHandleGetCheckpoint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rr := env.get(t, "/api/checkpoints/scan-1/newaccount")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	var errResp api.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &errResp))
	assert.Contains(t, errResp.Error, "checkpoint_newaccount")

	store := checkpoint.NewStore(env.stateful, "scan-1", "newaccount", nil)
	require.NoError(t, store.EnsureContainer(ctx))
	require.NoError(t, store.Save(ctx, checkpoint.Checkpoint{
		AlreadyVisitedContainers: []string{"c1"},
		LastContainerName:        to.Ptr("c2"),
		ContinuationToken:        to.Ptr("marker"),
	}))

	rr = env.get(t, "/api/checkpoints/scan-1/newaccount")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var resp api.CheckpointResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "scan-1", resp.ScanID)
	assert.Equal(t, "newaccount", resp.AccountName)
	assert.False(t, resp.Done)
	require.NotNil(t, resp.Checkpoint)
	assert.Equal(t, []string{"c1"}, resp.Checkpoint.AlreadyVisitedContainers)
	assert.Equal(t, "marker", *resp.Checkpoint.ContinuationToken)

	require.NoError(t, store.Save(ctx, checkpoint.Checkpoint{AlreadyVisitedContainers: []string{"c1", "c2"}}))
	rr = env.get(t, "/api/checkpoints/scan-1/newaccount")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Done)
}

type unreachableService struct {
	interfaces.ServiceHandle
}

func (unreachableService) ContainerClient(name string) interfaces.ContainerHandle {
	return unreachableContainer{storage.NewMemoryService("x").ContainerClient(name)}
}

type unreachableContainer struct {
	interfaces.ContainerHandle
}

func (c unreachableContainer) BlobClient(name string) interfaces.BlobHandle {
	return unreachableBlob{c.ContainerHandle.BlobClient(name)}
}

type unreachableBlob struct {
	interfaces.BlobHandle
}

func (unreachableBlob) DownloadBuffer(context.Context, *interfaces.DownloadOptions) ([]byte, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func TestHandleGetCheckpoint_StoreError(t *testing.T) {
	handler := NewHandler(unreachableService{}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	mux := chi.NewRouter()
	mux.Get("/api/checkpoints/{scan_id}/{account_name}", handler.HandleGetCheckpoint)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/checkpoints/scan-1/newaccount", nil))
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestHandleBlobExists(t *testing.T) {
	env := newTestEnv(t)
	env.newAccount.PutBlob("docs", "new.json", []byte("{}"), nil)
	env.oldAccount.PutBlob("docs", "reports/2023/old.json", []byte("{}"), nil)

	tests := []struct {
		name   string
		path   string
		blob   string
		exists bool
	}{
		{"new account", "/api/blobs/docs/new.json", "new.json", true},
		{"legacy account with nested name", "/api/blobs/docs/reports/2023/old.json", "reports/2023/old.json", true},
		{"missing", "/api/blobs/docs/missing.json", "missing.json", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.get(t, tt.path)
			require.Equal(t, http.StatusOK, rr.Code)

			var resp api.BlobExistsResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, api.BlobExistsResponse{Container: "docs", Blob: tt.blob, Exists: tt.exists}, resp)
		})
	}

	require.Eventually(t, func() bool {
		rr := httptest.NewRecorder()
		env.metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		return strings.Contains(rr.Body.String(), `test_fallback_reads_total{container="docs"} 2`)
	}, time.Second, 10*time.Millisecond, "legacy lookups are tracked")
}


func TestHandleBlobExists_MissingBlobName(t *testing.T) {
	handler := NewHandler(nil, &blob.ServiceClientWithFallback{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	mux := chi.NewRouter()
	mux.Get("/api/blobs/{container}/*", handler.HandleBlobExists)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/blobs/docs/", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
