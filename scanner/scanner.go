package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/azure-storage-migration-kit/checkpoint"
	"github.com/ruteri/azure-storage-migration-kit/fallback"
	"github.com/ruteri/azure-storage-migration-kit/interfaces"
)

// DefaultPageSize checkpoints after every blob.
const DefaultPageSize int32 = 1

var ErrInvalidConfig = errors.New("invalid scanner configuration")

// Observer receives scan progress. metrics.ScanMetrics implements it.
type Observer interface {
	BlobScanned(containerName string)
	ContainerScanned(containerName string)
	ContainerSkipped(containerName string)
	CheckpointSaved()
	Mismatch(containerName string)
}

// Config configures a scan.
type Config struct {
	// ScanID names the stateful container holding the checkpoint.
	ScanID string
	// TagName enables the completion check: every blob must carry TagName=TagValue.
	TagName  string
	TagValue string
	// PageSize is the number of blobs listed between two checkpoints. Defaults to DefaultPageSize.
	PageSize int32
	// Reset ignores a stored checkpoint and scans everything again.
	Reset bool

	Log      *slog.Logger
	Observer Observer
}

// Result summarizes a scan.
type Result struct {
	RunID             string
	Account           string
	ContainersScanned int
	ContainersSkipped int
	BlobsScanned      int
	CheckpointSaves   int
	Duration          time.Duration
}

// MigrationIncompleteError reports the first blob that failed the completion check.
type MigrationIncompleteError struct {
	Container string
	Blob      string
	TagName   string
	Expected  string
	Actual    string
	Present   bool
}

func (e *MigrationIncompleteError) Error() string {
	if !e.Present {
		return fmt.Sprintf("%s: blob %s/%s has no tag %s", interfaces.ErrMigrationIncomplete, e.Container, e.Blob, e.TagName)
	}
	return fmt.Sprintf("%s: blob %s/%s has tag %s=%q, expected %q", interfaces.ErrMigrationIncomplete, e.Container, e.Blob, e.TagName, e.Actual, e.Expected)
}

func (e *MigrationIncompleteError) Unwrap() error {
	return interfaces.ErrMigrationIncomplete
}

// Scanner walks every container and blob of a target account, checkpointing its progress
// to a stateful account so that an interrupted scan resumes where it stopped.
type Scanner struct {
	target   interfaces.ServiceHandle
	stateful interfaces.ServiceHandle
	store    *checkpoint.Store
	cfg      Config
	log      *slog.Logger
	observer Observer
}

// New creates a scanner. Target and stateful may be the same account.
func New(target, stateful interfaces.ServiceHandle, cfg Config) (*Scanner, error) {
	if fallback.IsNil(target) || fallback.IsNil(stateful) {
		return nil, fmt.Errorf("scanner: %w", interfaces.ErrNoBackend)
	}
	if cfg.ScanID == "" {
		return nil, fmt.Errorf("%w: scan id is required", ErrInvalidConfig)
	}
	if cfg.TagName == "" && cfg.TagValue != "" {
		return nil, fmt.Errorf("%w: tag value given without tag name", ErrInvalidConfig)
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("scan_id", cfg.ScanID), slog.String("account", target.AccountName()))

	observer := cfg.Observer
	if fallback.IsNil(observer) {
		observer = nopObserver{}
	}

	return &Scanner{
		target:   target,
		stateful: stateful,
		store:    checkpoint.NewStore(stateful, cfg.ScanID, target.AccountName(), log),
		cfg:      cfg,
		log:      log,
		observer: observer,
	}, nil
}

// scan is the state of one Run.
type scan struct {
	visited []string
	result  Result
}

// Run scans the target account. It returns a *MigrationIncompleteError as soon as a blob
// fails the completion check; the container being scanned is then not marked as visited.
func (s *Scanner) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	st := &scan{result: Result{RunID: uuid.NewString(), Account: s.target.AccountName()}}
	err := s.run(ctx, st)
	st.result.Duration = time.Since(start)
	if err != nil {
		return st.result, err
	}

	s.log.Info("Migration scan finished",
		slog.String("run_id", st.result.RunID),
		slog.Int("containers_scanned", st.result.ContainersScanned),
		slog.Int("containers_skipped", st.result.ContainersSkipped),
		slog.Int("blobs_scanned", st.result.BlobsScanned),
		slog.Duration("duration", st.result.Duration))
	return st.result, nil
}

func (s *Scanner) run(ctx context.Context, st *scan) error {
	if err := s.store.EnsureContainer(ctx); err != nil {
		return err
	}

	cp, err := s.resume(ctx)
	if err != nil {
		return err
	}
	st.visited = append([]string{}, cp.AlreadyVisitedContainers...)

	s.log.Info("Starting migration scan",
		slog.String("run_id", st.result.RunID),
		slog.Int("visited", len(st.visited)),
		slog.String("tag_name", s.cfg.TagName))

	for name, err := range s.target.ListContainers(ctx) {
		if err != nil {
			return fmt.Errorf("failed to list containers: %w", err)
		}

		// the last container is resumed even when it is already marked visited
		if s.isStatefulContainer(name) || (cp.Visited(name) && !cp.IsLast(name)) {
			s.log.Debug("Skipping container", slog.String("container", name))
			st.result.ContainersSkipped++
			s.observer.ContainerSkipped(name)
			continue
		}

		var token string
		if cp.IsLast(name) && cp.ContinuationToken != nil {
			token = *cp.ContinuationToken
			s.log.Info("Resuming container", slog.String("container", name))
		}

		if err := s.scanContainer(ctx, st, name, token); err != nil {
			return err
		}

		if !slices.Contains(st.visited, name) {
			st.visited = append(st.visited, name)
		}
		if err := s.save(ctx, st, checkpoint.Checkpoint{AlreadyVisitedContainers: st.visited, LastContainerName: &name}); err != nil {
			return err
		}
		st.result.ContainersScanned++
		s.observer.ContainerScanned(name)
	}

	return s.save(ctx, st, checkpoint.Checkpoint{AlreadyVisitedContainers: st.visited})
}

func (s *Scanner) resume(ctx context.Context) (*checkpoint.Checkpoint, error) {
	if s.cfg.Reset {
		s.log.Info("Ignoring stored checkpoint")
		return &checkpoint.Checkpoint{AlreadyVisitedContainers: []string{}}, nil
	}

	cp, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return &checkpoint.Checkpoint{AlreadyVisitedContainers: []string{}}, nil
	}
	if cp.Done() {
		s.log.Info("Previous scan finished, only new containers will be scanned",
			slog.Int("visited", len(cp.AlreadyVisitedContainers)))
	}
	return cp, nil
}

// isStatefulContainer reports whether name holds this scan's checkpoint.
func (s *Scanner) isStatefulContainer(name string) bool {
	return name == s.store.ContainerName() && s.stateful.AccountName() == s.target.AccountName()
}

func (s *Scanner) scanContainer(ctx context.Context, st *scan, name, token string) error {
	container := s.target.ContainerClient(name)
	opts := &interfaces.ListBlobsOptions{
		ContinuationToken: token,
		MaxPageSize:       s.cfg.PageSize,
		IncludeTags:       s.cfg.TagName != "",
	}

	for page, err := range container.ListBlobPages(ctx, opts) {
		if err != nil {
			return fmt.Errorf("failed to list blobs of container %s: %w", name, err)
		}

		for _, item := range page.Items {
			st.result.BlobsScanned++
			s.observer.BlobScanned(name)
			s.log.Debug("Blob scanned",
				slog.String("container", name),
				slog.String("blob", item.Name),
				slog.Int("count", st.result.BlobsScanned))

			if err := s.check(name, item); err != nil {
				s.observer.Mismatch(name)
				s.log.Warn("Migration not completed",
					slog.String("container", name),
					slog.String("blob", item.Name),
					"err", err)
				return err
			}
		}

		var next *string
		if page.ContinuationToken != "" {
			next = &page.ContinuationToken
		}
		if err := s.save(ctx, st, checkpoint.Checkpoint{AlreadyVisitedContainers: st.visited, LastContainerName: &name, ContinuationToken: next}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scanner) check(containerName string, item interfaces.BlobItem) error {
	if s.cfg.TagName == "" {
		return nil
	}
	value, ok := item.Tags[s.cfg.TagName]
	if ok && value == s.cfg.TagValue {
		return nil
	}
	return &MigrationIncompleteError{
		Container: containerName,
		Blob:      item.Name,
		TagName:   s.cfg.TagName,
		Expected:  s.cfg.TagValue,
		Actual:    value,
		Present:   ok,
	}
}

func (s *Scanner) save(ctx context.Context, st *scan, cp checkpoint.Checkpoint) error {
	if err := s.store.Save(ctx, cp); err != nil {
		return err
	}
	st.result.CheckpointSaves++
	s.observer.CheckpointSaved()
	return nil
}

type nopObserver struct{}

func (nopObserver) BlobScanned(string)      {}
func (nopObserver) ContainerScanned(string) {}
func (nopObserver) ContainerSkipped(string) {}
func (nopObserver) CheckpointSaved()        {}
func (nopObserver) Mismatch(string)         {}
