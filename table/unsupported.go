package table

import (
	"context"
	"fmt"
	"time"

	"github.com/ruteri/azure-storage-migration-kit/interfaces"
)

// The operations below are fenced off: they fail immediately and never reach a backend.

// TransactionAction is a single action of a batch transaction.
type TransactionAction struct {
	ActionType string
	Entity     interfaces.Entity
}

// UpdateMode selects merge or replace semantics for updates and upserts.
type UpdateMode string

const (
	UpdateModeMerge   UpdateMode = "merge"
	UpdateModeReplace UpdateMode = "replace"
)

// SignedIdentifier is a stored access policy on a table.
type SignedIdentifier struct {
	ID         string
	Permission string
	Start      time.Time
	Expiry     time.Time
}

func notImplemented(method string) error {
	return fmt.Errorf("%s: %w", method, interfaces.ErrNotImplemented)
}

func (c *DualClient) SubmitTransaction(ctx context.Context, actions []TransactionAction) error {
	return notImplemented("submitTransaction")
}

func (c *DualClient) DeleteEntity(ctx context.Context, partitionKey, rowKey string) error {
	return notImplemented("deleteEntity")
}

func (c *DualClient) UpdateEntity(ctx context.Context, entity interfaces.Entity, mode UpdateMode) error {
	return notImplemented("updateEntity")
}

func (c *DualClient) UpsertEntity(ctx context.Context, entity interfaces.Entity, mode UpdateMode) error {
	return notImplemented("upsertEntity")
}

func (c *DualClient) GetAccessPolicy(ctx context.Context) ([]SignedIdentifier, error) {
	return nil, notImplemented("getAccessPolicy")
}

func (c *DualClient) SetAccessPolicy(ctx context.Context, identifiers []SignedIdentifier) error {
	return notImplemented("setAccessPolicy")
}
