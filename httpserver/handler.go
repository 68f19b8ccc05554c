package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/azure-storage-migration-kit/api"
	"github.com/ruteri/azure-storage-migration-kit/blob"
	"github.com/ruteri/azure-storage-migration-kit/checkpoint"
	"github.com/ruteri/azure-storage-migration-kit/interfaces"
)

// Handler serves scan checkpoints from the stateful account and blob existence through
// the fallback service.
type Handler struct {
	stateful interfaces.ServiceHandle
	blobs    *blob.ServiceClientWithFallback
	log      *slog.Logger
}

// NewHandler creates a handler. blobs may be nil, in which case blob lookups answer 503.
func NewHandler(stateful interfaces.ServiceHandle, blobs *blob.ServiceClientWithFallback, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		stateful: stateful,
		blobs:    blobs,
		log:      log,
	}
}

// HandleGetCheckpoint returns the checkpoint a scan stored for an account.
//
// URL format: GET /api/checkpoints/{scan_id}/{account_name}
func (h *Handler) HandleGetCheckpoint(w http.ResponseWriter, r *http.Request) {
	scanID := chi.URLParam(r, "scan_id")
	accountName := chi.URLParam(r, "account_name")
	if scanID == "" || accountName == "" {
		h.writeError(w, http.StatusBadRequest, "scan id and account name are required")
		return
	}

	store := checkpoint.NewStore(h.stateful, scanID, accountName, h.log)
	cp, err := store.Load(r.Context())
	if err != nil {
		h.log.Error("Failed to load checkpoint", "err", err, slog.String("scan_id", scanID), slog.String("account", accountName))
		h.writeError(w, http.StatusBadGateway, "failed to load checkpoint")
		return
	}
	if cp == nil {
		h.writeError(w, http.StatusNotFound, "no checkpoint for "+store.BlobName())
		return
	}

	h.writeJSON(w, http.StatusOK, api.CheckpointResponse{
		ScanID:      scanID,
		AccountName: accountName,
		Done:        cp.Done(),
		Checkpoint:  cp,
	})
}

// HandleBlobExists reports whether a blob exists on the new or the legacy account.
//
// URL format: GET /api/blobs/{container}/{blob}, the blob name may contain slashes.
func (h *Handler) HandleBlobExists(w http.ResponseWriter, r *http.Request) {
	if h.blobs == nil {
		h.writeError(w, http.StatusServiceUnavailable, "blob lookups are not configured")
		return
	}

	containerName := chi.URLParam(r, "container")
	blobName, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil || containerName == "" || blobName == "" {
		h.writeError(w, http.StatusBadRequest, "container and blob name are required")
		return
	}

	exists, err := h.blobs.ContainerClient(containerName).BlobClient(blobName).Exists(r.Context())
	if err != nil {
		h.log.Error("Failed to check blob", "err", err, slog.String("container", containerName), slog.String("blob", blobName))
		h.writeError(w, http.StatusBadGateway, "failed to check blob")
		return
	}

	h.writeJSON(w, http.StatusOK, api.BlobExistsResponse{
		Container: containerName,
		Blob:      blobName,
		Exists:    exists,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, api.ErrorResponse{Error: msg})
}
