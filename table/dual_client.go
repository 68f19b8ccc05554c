package table

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/ruteri/azure-storage-migration-kit/fallback"
	"github.com/ruteri/azure-storage-migration-kit/interfaces"
	"go.uber.org/atomic"
)

// ErrPagerConsumed is returned when a merged listing is iterated a second time.
var ErrPagerConsumed = errors.New("entity listing already consumed")

// Option configures a DualClient.
type Option func(*DualClient)

// WithErrorHandler sets the callback receiving secondary write failures.
func WithErrorHandler(onError interfaces.EntityErrorHandler) Option {
	return func(c *DualClient) {
		c.onError = onError
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(c *DualClient) {
		if log != nil {
			c.log = log
		}
	}
}

// DualClient routes entity operations across a new (primary) and an old (secondary) table.
// Either handle may be nil, but not both.
type DualClient struct {
	oldClient interfaces.TableHandle
	newClient interfaces.TableHandle
	onError   interfaces.EntityErrorHandler
	log       *slog.Logger
}

// NewDualClient creates a dual client. It fails with interfaces.ErrNoBackend if both
// handles are nil.
func NewDualClient(oldClient, newClient interfaces.TableHandle, opts ...Option) (*DualClient, error) {
	if fallback.IsNil(oldClient) {
		oldClient = nil
	}
	if fallback.IsNil(newClient) {
		newClient = nil
	}
	if oldClient == nil && newClient == nil {
		return nil, fmt.Errorf("table client: %w", interfaces.ErrNoBackend)
	}

	c := &DualClient{
		oldClient: oldClient,
		newClient: newClient,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Name returns the table name of the primary handle.
func (c *DualClient) Name() string {
	if c.newClient != nil {
		return c.newClient.Name()
	}
	return c.oldClient.Name()
}

// CreateEntity writes the entity to the new table first and then, best effort, to the
// old table. A failure on the new table is returned without touching the old one. A
// failure on the old table is reported to the error handler and does not fail the call.
func (c *DualClient) CreateEntity(ctx context.Context, entity interfaces.Entity) (interfaces.EntityReceipt, error) {
	switch {
	case c.newClient == nil:
		return c.oldClient.CreateEntity(ctx, entity)
	case c.oldClient == nil:
		return c.newClient.CreateEntity(ctx, entity)
	}

	start := time.Now()
	primary := fallback.Try(ctx, func(ctx context.Context) (interfaces.EntityReceipt, error) {
		return c.newClient.CreateEntity(ctx, entity)
	})
	if !primary.Ok() {
		return interfaces.EntityReceipt{}, primary.Err
	}

	secondary := fallback.Try(ctx, func(ctx context.Context) (interfaces.EntityReceipt, error) {
		return c.oldClient.CreateEntity(ctx, entity)
	})
	if !secondary.Ok() {
		c.log.Warn("Secondary entity write failed",
			slog.String("table", c.oldClient.Name()),
			slog.String("entity", entity.Key().String()),
			"err", secondary.Err)
		if c.onError != nil {
			c.onError(secondary.Err, entity)
		}
	}

	c.log.Debug("Created entity",
		slog.String("table", c.newClient.Name()),
		slog.String("entity", entity.Key().String()),
		slog.Bool("secondary_ok", secondary.Ok()),
		slog.Duration("duration", time.Since(start)))

	return primary.Value, nil
}

// ListEntities returns a merged listing of both tables. Entities of the new table are
// yielded first; entities of the old table are yielded only when their identity was not
// already seen.
func (c *DualClient) ListEntities(ctx context.Context, opts *interfaces.ListEntitiesOptions) *EntityPager {
	return &EntityPager{
		ctx:       ctx,
		opts:      opts,
		newClient: c.newClient,
		oldClient: c.oldClient,
	}
}

// EntityPager is a single-pass merged entity listing.
type EntityPager struct {
	ctx       context.Context
	opts      *interfaces.ListEntitiesOptions
	newClient interfaces.TableHandle
	oldClient interfaces.TableHandle
	consumed  atomic.Bool
}

// All yields the merged entities. Iterating it more than once yields ErrPagerConsumed.
func (p *EntityPager) All() iter.Seq2[interfaces.Entity, error] {
	return func(yield func(interfaces.Entity, error) bool) {
		if p.consumed.Swap(true) {
			yield(interfaces.Entity{}, ErrPagerConsumed)
			return
		}

		switch {
		case p.oldClient == nil:
			forward(p.newClient.ListEntities(p.ctx, p.opts), yield)
			return
		case p.newClient == nil:
			forward(p.oldClient.ListEntities(p.ctx, p.opts), yield)
			return
		}

		seen := make(map[interfaces.EntityKey]struct{})
		for entity, err := range p.newClient.ListEntities(p.ctx, p.opts) {
			if err != nil {
				yield(interfaces.Entity{}, err)
				return
			}
			seen[entity.Key()] = struct{}{}
			if !yield(entity, nil) {
				return
			}
		}

		for entity, err := range p.oldClient.ListEntities(p.ctx, p.opts) {
			if err != nil {
				yield(interfaces.Entity{}, err)
				return
			}
			if _, ok := seen[entity.Key()]; ok {
				continue
			}
			if !yield(entity, nil) {
				return
			}
		}
	}
}

// ByPage is not supported on a merged listing.
func (p *EntityPager) ByPage() (iter.Seq2[[]interfaces.Entity, error], error) {
	return nil, fmt.Errorf("listEntities: byPage: %w", interfaces.ErrNotImplemented)
}

func forward(seq iter.Seq2[interfaces.Entity, error], yield func(interfaces.Entity, error) bool) {
	for entity, err := range seq {
		if !yield(entity, err) || err != nil {
			return
		}
	}
}
