package memory

import (
	"context"
	"sync"
	"time"

	"keeper-vault/internal/domain"
	"keeper-vault/internal/solana"
	"keeper-vault/internal/storage"
)

// AccountStore is an in-memory implementation of storage.AccountStore.
// Each owner has its own lock, held for the whole of an Update.
type AccountStore struct {
	mu    sync.RWMutex
	data  map[solana.PublicKey]*domain.Account
	locks map[solana.PublicKey]*sync.Mutex
}

// NewAccountStore creates a new in-memory account store.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		data:  make(map[solana.PublicKey]*domain.Account),
		locks: make(map[solana.PublicKey]*sync.Mutex),
	}
}

// Compile-time interface check.
var _ storage.AccountStore = (*AccountStore)(nil)

// Create inserts a new account. Returns ErrDuplicateKey if owner exists.
func (s *AccountStore) Create(_ context.Context, a *domain.Account) error {
	if a == nil || a.Profile.Owner.IsZero() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[a.Profile.Owner]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	accountCopy := *a
	now := time.Now().UnixMilli()
	if accountCopy.CreatedAt == 0 {
		accountCopy.CreatedAt = now
	}
	accountCopy.UpdatedAt = now
	s.data[a.Profile.Owner] = &accountCopy
	s.locks[a.Profile.Owner] = &sync.Mutex{}
	return nil
}

// Get retrieves an account by owner. Returns ErrNotFound if not exists.
func (s *AccountStore) Get(_ context.Context, owner solana.PublicKey) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.data[owner]
	if !exists {
		return nil, storage.ErrNotFound
	}

	accountCopy := *a
	return &accountCopy, nil
}

// Update runs fn under the owner's lock and commits on success.
func (s *AccountStore) Update(ctx context.Context, owner solana.PublicKey, fn storage.UpdateFunc) (*domain.Account, error) {
	s.mu.RLock()
	lock, exists := s.locks[owner]
	s.mu.RUnlock()
	if !exists {
		return nil, storage.ErrNotFound
	}

	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	working := *s.data[owner]
	s.mu.RUnlock()

	if err := fn(&working); err != nil {
		return nil, err
	}
	working.Profile.Owner = owner
	working.UpdatedAt = time.Now().UnixMilli()

	s.mu.Lock()
	committed := working
	s.data[owner] = &committed
	s.mu.Unlock()

	result := working
	return &result, nil
}
