package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"keeper-vault/internal/domain"
	"keeper-vault/internal/solana"
	"keeper-vault/internal/storage"
)

// Default lock settings.
const (
	DefaultKeyPrefix = "keeper-vault:"
	DefaultLockTTL   = 30 * time.Second
	DefaultLockWait  = 10 * time.Second
	lockRetryDelay   = 20 * time.Millisecond
)

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// AccountStore is a Redis implementation of storage.AccountStore.
// Update holds a per-owner lock (SET NX PX) for the whole read-modify-write
// and commits with WATCH on the lock and record keys. If the lock expired or
// changed hands before commit, the update fails with ErrConflict and fn's
// result is discarded.
type AccountStore struct {
	client   *redis.Client
	prefix   string
	lockTTL  time.Duration
	lockWait time.Duration
}

// Option configures AccountStore.
type Option func(*AccountStore)

// WithKeyPrefix sets the key namespace.
func WithKeyPrefix(prefix string) Option {
	return func(s *AccountStore) {
		s.prefix = prefix
	}
}

// WithLockTTL sets how long a lock survives without release.
// It must exceed the longest venue call.
func WithLockTTL(d time.Duration) Option {
	return func(s *AccountStore) {
		s.lockTTL = d
	}
}

// WithLockWait sets how long Update waits to acquire the lock.
func WithLockWait(d time.Duration) Option {
	return func(s *AccountStore) {
		s.lockWait = d
	}
}

// NewAccountStore creates a new Redis account store.
func NewAccountStore(client *redis.Client, opts ...Option) *AccountStore {
	s := &AccountStore{
		client:   client,
		prefix:   DefaultKeyPrefix,
		lockTTL:  DefaultLockTTL,
		lockWait: DefaultLockWait,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Compile-time interface check.
var _ storage.AccountStore = (*AccountStore)(nil)

func (s *AccountStore) accountKey(owner solana.PublicKey) string {
	return s.prefix + "account:" + owner.String()
}

func (s *AccountStore) lockKey(owner solana.PublicKey) string {
	return s.prefix + "lock:" + owner.String()
}

// Create inserts a new account. Returns ErrDuplicateKey if owner exists.
func (s *AccountStore) Create(ctx context.Context, a *domain.Account) error {
	if a == nil || a.Profile.Owner.IsZero() {
		return storage.ErrInvalidInput
	}

	record := *a
	now := time.Now().UnixMilli()
	if record.CreatedAt == 0 {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	data, err := encodeAccount(&record)
	if err != nil {
		return err
	}

	ok, err := s.client.SetNX(ctx, s.accountKey(a.Profile.Owner), data, 0).Result()
	if err != nil {
		return fmt.Errorf("redis SETNX account: %w", err)
	}
	if !ok {
		return storage.ErrDuplicateKey
	}
	return nil
}

// Get retrieves an account by owner. Returns ErrNotFound if not exists.
func (s *AccountStore) Get(ctx context.Context, owner solana.PublicKey) (*domain.Account, error) {
	data, err := s.client.Get(ctx, s.accountKey(owner)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("redis GET account: %w", err)
	}
	return decodeAccount(data)
}

// Update acquires the owner's lock, runs fn and commits if the lock is still held.
func (s *AccountStore) Update(ctx context.Context, owner solana.PublicKey, fn storage.UpdateFunc) (*domain.Account, error) {
	lockKey := s.lockKey(owner)
	token := uuid.NewString()

	if err := s.acquire(ctx, lockKey, token); err != nil {
		return nil, err
	}
	defer func() {
		// Release even if ctx is already cancelled.
		releaseScript.Run(context.Background(), s.client, []string{lockKey}, token)
	}()

	a, err := s.Get(ctx, owner)
	if err != nil {
		return nil, err
	}

	if err := fn(a); err != nil {
		return nil, err
	}
	a.Profile.Owner = owner
	a.UpdatedAt = time.Now().UnixMilli()

	data, err := encodeAccount(a)
	if err != nil {
		return nil, err
	}

	accountKey := s.accountKey(owner)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		holder, err := tx.Get(ctx, lockKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("redis GET lock: %w", err)
		}
		if holder != token {
			return storage.ErrConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, accountKey, data, 0)
			return nil
		})
		return err
	}, lockKey, accountKey)
	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return nil, storage.ErrConflict
		}
		if errors.Is(err, storage.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("commit account: %w", err)
	}

	return a, nil
}

// acquire spins on SET NX PX until the lock is taken, lockWait elapses or ctx ends.
func (s *AccountStore) acquire(ctx context.Context, lockKey, token string) error {
	deadline := time.Now().Add(s.lockWait)
	for {
		ok, err := s.client.SetNX(ctx, lockKey, token, s.lockTTL).Result()
		if err != nil {
			return fmt.Errorf("redis SETNX lock: %w", err)
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: lock %s busy", storage.ErrConflict, lockKey)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}
}

// accountRecord is the JSON form of domain.Account. Every keeper slot is
// kept, including stale ones past keeper_count.
type accountRecord struct {
	Owner              string   `json:"owner"`
	Enabled            bool     `json:"enabled"`
	TradeSizePrimary   uint64   `json:"trade_size_primary"`
	TradeSizeSecondary uint64   `json:"trade_size_secondary"`
	MinFeePool         uint64   `json:"min_fee_pool"`
	TargetFeePool      uint64   `json:"target_fee_pool"`
	MaxSlippageBps     uint16   `json:"max_slippage_bps"`
	ProtocolFeeBps     uint16   `json:"protocol_fee_bps"`
	RelayerRefund      uint64   `json:"relayer_refund"`
	KeeperSlots        []string `json:"keeper_slots"`
	KeeperCount        uint8    `json:"keeper_count"`
	DailyLimit         uint16   `json:"daily_limit"`
	ExecutionsToday    uint16   `json:"executions_today"`
	LastExecutionDay   int64    `json:"last_execution_day"`
	LastExecution      int64    `json:"last_execution"`
	Nonce              uint64   `json:"nonce"`
	Bump               uint8    `json:"bump"`
	VaultPrimary       uint64   `json:"vault_primary"`
	VaultSecondary     uint64   `json:"vault_secondary"`
	VaultFeePool       uint64   `json:"vault_fee_pool"`
	CreatedAt          int64    `json:"created_at"`
	UpdatedAt          int64    `json:"updated_at"`
}

func encodeAccount(a *domain.Account) ([]byte, error) {
	p := &a.Profile
	slots := make([]string, domain.MaxKeepers)
	for i, key := range p.Keepers.Slots {
		slots[i] = key.String()
	}

	data, err := json.Marshal(accountRecord{
		Owner:              p.Owner.String(),
		Enabled:            p.Enabled,
		TradeSizePrimary:   p.TradeSizePrimary,
		TradeSizeSecondary: p.TradeSizeSecondary,
		MinFeePool:         p.MinFeePool,
		TargetFeePool:      p.TargetFeePool,
		MaxSlippageBps:     p.MaxSlippageBps,
		ProtocolFeeBps:     p.ProtocolFeeBps,
		RelayerRefund:      p.RelayerRefund,
		KeeperSlots:        slots,
		KeeperCount:        p.Keepers.Count,
		DailyLimit:         p.DailyLimit,
		ExecutionsToday:    p.ExecutionsToday,
		LastExecutionDay:   p.LastExecutionDay,
		LastExecution:      p.LastExecution,
		Nonce:              p.Nonce,
		Bump:               p.Bump,
		VaultPrimary:       a.Vaults.Primary,
		VaultSecondary:     a.Vaults.Secondary,
		VaultFeePool:       a.Vaults.FeePool,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal account: %w", err)
	}
	return data, nil
}

func decodeAccount(data []byte) (*domain.Account, error) {
	var r accountRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshal account: %w", err)
	}

	owner, err := solana.ParsePublicKey(r.Owner)
	if err != nil {
		return nil, fmt.Errorf("parse owner: %w", err)
	}

	a := &domain.Account{
		Profile: domain.Profile{
			Owner:              owner,
			Enabled:            r.Enabled,
			TradeSizePrimary:   r.TradeSizePrimary,
			TradeSizeSecondary: r.TradeSizeSecondary,
			MinFeePool:         r.MinFeePool,
			TargetFeePool:      r.TargetFeePool,
			MaxSlippageBps:     r.MaxSlippageBps,
			ProtocolFeeBps:     r.ProtocolFeeBps,
			RelayerRefund:      r.RelayerRefund,
			DailyLimit:         r.DailyLimit,
			ExecutionsToday:    r.ExecutionsToday,
			LastExecutionDay:   r.LastExecutionDay,
			LastExecution:      r.LastExecution,
			Nonce:              r.Nonce,
			Bump:               r.Bump,
		},
		Vaults: domain.Vaults{
			Primary:   r.VaultPrimary,
			Secondary: r.VaultSecondary,
			FeePool:   r.VaultFeePool,
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}

	for i := 0; i < len(r.KeeperSlots) && i < domain.MaxKeepers; i++ {
		key, err := solana.ParsePublicKey(r.KeeperSlots[i])
		if err != nil {
			return nil, fmt.Errorf("parse keeper slot %d: %w", i, err)
		}
		a.Profile.Keepers.Slots[i] = key
	}
	a.Profile.Keepers.Count = r.KeeperCount

	return a, nil
}
