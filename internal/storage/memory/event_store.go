package memory

import (
	"context"
	"sort"
	"sync"

	"keeper-vault/internal/domain"
	"keeper-vault/internal/solana"
	"keeper-vault/internal/storage"
)

// EventStore is an in-memory implementation of storage.EventStore.
type EventStore struct {
	mu     sync.RWMutex
	events []*domain.Event
	ids    map[string]struct{}
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{
		ids: make(map[string]struct{}),
	}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate.
func (s *EventStore) InsertBulk(_ context.Context, events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Check all ids first (atomic: all or nothing)
	batch := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e == nil || e.ID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.ids[e.ID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batch[e.ID]; exists {
			return storage.ErrDuplicateKey
		}
		batch[e.ID] = struct{}{}
	}

	for _, e := range events {
		eventCopy := *e
		s.events = append(s.events, &eventCopy)
		s.ids[e.ID] = struct{}{}
	}
	return nil
}

// GetByOwner retrieves events for an owner within [start, end], ordered by timestamp ASC.
func (s *EventStore) GetByOwner(_ context.Context, owner solana.PublicKey, start, end int64) ([]*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Event
	for _, e := range s.events {
		if e.User == owner && e.Timestamp >= start && e.Timestamp <= end {
			eventCopy := *e
			result = append(result, &eventCopy)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp < result[j].Timestamp
	})

	return result, nil
}
