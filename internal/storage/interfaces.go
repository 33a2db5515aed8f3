package storage

import (
	"context"

	"keeper-vault/internal/domain"
	"keeper-vault/internal/solana"
)

// UpdateFunc mutates a private copy of an account. Returning an error
// discards every change made by the function.
type UpdateFunc func(a *domain.Account) error

// AccountStore provides access to profile + vault records.
type AccountStore interface {
	// Create inserts a new account. Returns ErrDuplicateKey if owner exists.
	Create(ctx context.Context, a *domain.Account) error

	// Get retrieves an account by owner. Returns ErrNotFound if not exists.
	Get(ctx context.Context, owner solana.PublicKey) (*domain.Account, error)

	// Update runs fn against the current record while holding exclusive
	// ownership of it and writes the result only if fn returns nil.
	// Concurrent updates to the same owner are serialized; different owners
	// proceed in parallel. Returns the committed record.
	Update(ctx context.Context, owner solana.PublicKey, fn UpdateFunc) (*domain.Account, error)
}

// ExecutionStore provides access to the executions log.
type ExecutionStore interface {
	// Insert adds a receipt. Returns ErrDuplicateKey if execution_id exists.
	Insert(ctx context.Context, r *domain.ExecutionReceipt) error

	// GetByID retrieves a receipt. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, executionID string) (*domain.ExecutionReceipt, error)

	// GetByOwner retrieves all receipts for an owner, ordered by timestamp, nonce ASC.
	GetByOwner(ctx context.Context, owner solana.PublicKey) ([]*domain.ExecutionReceipt, error)
}

// EventStore provides access to the notification history.
type EventStore interface {
	// InsertBulk adds multiple events. Fails entire batch on duplicate id.
	InsertBulk(ctx context.Context, events []*domain.Event) error

	// GetByOwner retrieves events for an owner within [start, end] (Unix seconds, inclusive),
	// ordered by timestamp ASC.
	GetByOwner(ctx context.Context, owner solana.PublicKey, start, end int64) ([]*domain.Event, error)
}
