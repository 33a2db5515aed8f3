package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"keeper-vault/internal/storage"
)

// SignalProgressStore is a PostgreSQL implementation of storage.SignalProgressStore.
// Uses two tables:
//   - signal_progress: one row per source with (offset, signal_id)
//   - signal_seen: set of processed signal ids
type SignalProgressStore struct {
	pool *Pool
}

// NewSignalProgressStore creates a new PostgreSQL signal progress store.
func NewSignalProgressStore(pool *Pool) *SignalProgressStore {
	return &SignalProgressStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SignalProgressStore = (*SignalProgressStore)(nil)

// GetLastProcessed returns the progress of source.
func (s *SignalProgressStore) GetLastProcessed(ctx context.Context, source string) (*storage.SignalProgress, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT source, "offset", signal_id, (EXTRACT(EPOCH FROM updated_at) * 1000)::BIGINT
		FROM signal_progress
		WHERE source = $1
	`, source)

	var progress storage.SignalProgress
	err := row.Scan(&progress.Source, &progress.Offset, &progress.SignalID, &progress.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}

	return &progress, nil
}

// SetLastProcessed saves progress for its source.
// Uses upsert to handle initial insert and subsequent updates.
func (s *SignalProgressStore) SetLastProcessed(ctx context.Context, progress *storage.SignalProgress) error {
	if progress == nil || progress.Source == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO signal_progress (source, "offset", signal_id, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (source) DO UPDATE
		SET "offset" = EXCLUDED."offset",
		    signal_id = EXCLUDED.signal_id,
		    updated_at = NOW()
	`, progress.Source, progress.Offset, progress.SignalID)

	return err
}

// IsSignalSeen checks if a signal id has been processed.
func (s *SignalProgressStore) IsSignalSeen(ctx context.Context, signalID string) (bool, error) {
	if signalID == "" {
		return false, storage.ErrInvalidInput
	}

	row := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM signal_seen WHERE signal_id = $1)
	`, signalID)

	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, err
	}

	return exists, nil
}

// MarkSignalSeen records that a signal id has been processed.
func (s *SignalProgressStore) MarkSignalSeen(ctx context.Context, signalID string) error {
	if signalID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO signal_seen (signal_id, seen_at)
		VALUES ($1, NOW())
		ON CONFLICT (signal_id) DO NOTHING
	`, signalID)

	return err
}
