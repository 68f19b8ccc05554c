package checkpoint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ruteri/azure-storage-migration-kit/interfaces"
)

// Store reads and writes the checkpoint of one target account.
type Store struct {
	container interfaces.ContainerHandle
	blobName  string
	log       *slog.Logger
}

// NewStore keeps checkpoints of targetAccount in the stateful container named scanID.
func NewStore(stateful interfaces.ServiceHandle, scanID, targetAccount string, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		container: stateful.ContainerClient(scanID),
		blobName:  Name(targetAccount),
		log:       log,
	}
}

func (s *Store) ContainerName() string {
	return s.container.Name()
}

func (s *Store) BlobName() string {
	return s.blobName
}

// EnsureContainer creates the stateful container if it does not exist yet.
func (s *Store) EnsureContainer(ctx context.Context) error {
	if err := s.container.CreateIfNotExists(ctx); err != nil {
		return fmt.Errorf("failed to initialize stateful container %s: %w", s.container.Name(), err)
	}
	return nil
}

// Load returns the stored checkpoint. A missing or undecodable checkpoint yields nil
// and no error; other read failures are returned.
func (s *Store) Load(ctx context.Context) (*Checkpoint, error) {
	data, err := s.container.BlobClient(s.blobName).DownloadBuffer(ctx, nil)
	if errors.Is(err, interfaces.ErrBlobNotFound) {
		s.log.Info("No checkpoint found, starting from scratch",
			slog.String("container", s.container.Name()),
			slog.String("blob", s.blobName))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint %s: %w", s.blobName, err)
	}

	cp, err := Decode(data)
	if err != nil {
		s.log.Warn("Ignoring invalid checkpoint",
			slog.String("container", s.container.Name()),
			slog.String("blob", s.blobName),
			"err", err)
		return nil, nil
	}
	return cp, nil
}

// Save overwrites the stored checkpoint. It returns once the upload has completed.
func (s *Store) Save(ctx context.Context, cp Checkpoint) error {
	data, err := Encode(cp)
	if err != nil {
		return err
	}
	_, _, err = s.container.UploadBlockBlob(ctx, s.blobName, bytes.NewReader(data), int64(len(data)), &interfaces.UploadOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", s.blobName, err)
	}
	return nil
}
