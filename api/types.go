package api

import (
	"github.com/ruteri/azure-storage-migration-kit/checkpoint"
)

// CheckpointResponse is returned by GET /api/checkpoints/{scan_id}/{account_name}.
type CheckpointResponse struct {
	ScanID      string `json:"scan_id"`
	AccountName string `json:"account_name"`

	// Done is true once the scan went through every container it listed.
	Done bool `json:"done"`

	Checkpoint *checkpoint.Checkpoint `json:"checkpoint"`
}

// BlobExistsResponse is returned by GET /api/blobs/{container}/{blob}.
type BlobExistsResponse struct {
	Container string `json:"container"`
	Blob      string `json:"blob"`
	Exists    bool   `json:"exists"`
}

// ErrorResponse carries the message of a failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}
