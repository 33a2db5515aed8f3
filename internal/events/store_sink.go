package events

import (
	"context"
	"fmt"

	"keeper-vault/internal/domain"
	"keeper-vault/internal/storage"
)

// StoreSink persists notifications to an EventStore.
type StoreSink struct {
	store storage.EventStore
}

// NewStoreSink creates a sink writing to store.
func NewStoreSink(store storage.EventStore) *StoreSink {
	return &StoreSink{store: store}
}

// Publish inserts events as one batch.
func (s *StoreSink) Publish(ctx context.Context, events ...*domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	if err := s.store.InsertBulk(ctx, events); err != nil {
		return fmt.Errorf("store events: %w", err)
	}
	return nil
}

var _ Sink = (*StoreSink)(nil)
