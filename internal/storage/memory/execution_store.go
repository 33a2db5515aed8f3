package memory

import (
	"context"
	"sort"
	"sync"

	"keeper-vault/internal/domain"
	"keeper-vault/internal/solana"
	"keeper-vault/internal/storage"
)

// ExecutionStore is an in-memory implementation of storage.ExecutionStore.
type ExecutionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ExecutionReceipt // keyed by execution_id
}

// NewExecutionStore creates a new in-memory execution store.
func NewExecutionStore() *ExecutionStore {
	return &ExecutionStore{
		data: make(map[string]*domain.ExecutionReceipt),
	}
}

// Compile-time interface check.
var _ storage.ExecutionStore = (*ExecutionStore)(nil)

// Insert adds a receipt. Returns ErrDuplicateKey if execution_id exists.
func (s *ExecutionStore) Insert(_ context.Context, r *domain.ExecutionReceipt) error {
	if r == nil || r.ExecutionID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.ExecutionID]; exists {
		return storage.ErrDuplicateKey
	}

	receiptCopy := *r
	s.data[r.ExecutionID] = &receiptCopy
	return nil
}

// GetByID retrieves a receipt. Returns ErrNotFound if not exists.
func (s *ExecutionStore) GetByID(_ context.Context, executionID string) (*domain.ExecutionReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[executionID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	receiptCopy := *r
	return &receiptCopy, nil
}

// GetByOwner retrieves all receipts for an owner, ordered by timestamp, nonce ASC.
func (s *ExecutionStore) GetByOwner(_ context.Context, owner solana.PublicKey) ([]*domain.ExecutionReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ExecutionReceipt
	for _, r := range s.data {
		if r.User == owner {
			receiptCopy := *r
			result = append(result, &receiptCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Timestamp != result[j].Timestamp {
			return result[i].Timestamp < result[j].Timestamp
		}
		return result[i].Nonce < result[j].Nonce
	})

	return result, nil
}
