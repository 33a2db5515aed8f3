package memory

import (
	"context"
	"sync"
	"time"

	"keeper-vault/internal/storage"
)

// SignalProgressStore is an in-memory implementation of storage.SignalProgressStore.
type SignalProgressStore struct {
	mu       sync.RWMutex
	progress map[string]*storage.SignalProgress // keyed by source
	seen     map[string]struct{}
}

// NewSignalProgressStore creates a new in-memory signal progress store.
func NewSignalProgressStore() *SignalProgressStore {
	return &SignalProgressStore{
		progress: make(map[string]*storage.SignalProgress),
		seen:     make(map[string]struct{}),
	}
}

// Compile-time interface check.
var _ storage.SignalProgressStore = (*SignalProgressStore)(nil)

// GetLastProcessed returns the progress of source.
func (s *SignalProgressStore) GetLastProcessed(_ context.Context, source string) (*storage.SignalProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.progress[source]
	if !ok {
		return nil, storage.ErrNotFound
	}
	progressCopy := *p
	return &progressCopy, nil
}

// SetLastProcessed saves progress for its source.
func (s *SignalProgressStore) SetLastProcessed(_ context.Context, progress *storage.SignalProgress) error {
	if progress == nil || progress.Source == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	progressCopy := *progress
	progressCopy.UpdatedAt = time.Now().UnixMilli()
	s.progress[progress.Source] = &progressCopy
	return nil
}

// IsSignalSeen checks if a signal id has been processed.
func (s *SignalProgressStore) IsSignalSeen(_ context.Context, signalID string) (bool, error) {
	if signalID == "" {
		return false, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[signalID]
	return ok, nil
}

// MarkSignalSeen records that a signal id has been processed.
func (s *SignalProgressStore) MarkSignalSeen(_ context.Context, signalID string) error {
	if signalID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[signalID] = struct{}{}
	return nil
}
