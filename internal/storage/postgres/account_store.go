package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"keeper-vault/internal/domain"
	"keeper-vault/internal/solana"
	"keeper-vault/internal/storage"
)

// AccountStore is a PostgreSQL implementation of storage.AccountStore.
// Update holds a row lock (SELECT ... FOR UPDATE) for the whole read-modify-write.
type AccountStore struct {
	pool *Pool
}

// NewAccountStore creates a new PostgreSQL account store.
func NewAccountStore(pool *Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AccountStore = (*AccountStore)(nil)

const selectAccountSQL = `
	SELECT owner, enabled, trade_size_primary, trade_size_secondary,
	       min_fee_pool, target_fee_pool, max_slippage_bps, protocol_fee_bps,
	       relayer_refund, keeper_slots, keeper_count, daily_limit,
	       executions_today, last_execution_day, last_execution, nonce, bump,
	       vault_primary, vault_secondary, vault_fee_pool, created_at, updated_at
	FROM accounts
	WHERE owner = $1
`

// Create inserts a new account. Returns ErrDuplicateKey if owner exists.
func (s *AccountStore) Create(ctx context.Context, a *domain.Account) error {
	if a == nil || a.Profile.Owner.IsZero() {
		return storage.ErrInvalidInput
	}

	now := time.Now().UnixMilli()
	createdAt := a.CreatedAt
	if createdAt == 0 {
		createdAt = now
	}

	p, v := &a.Profile, &a.Vaults
	start := time.Now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (
			owner, enabled, trade_size_primary, trade_size_secondary,
			min_fee_pool, target_fee_pool, max_slippage_bps, protocol_fee_bps,
			relayer_refund, keeper_slots, keeper_count, daily_limit,
			executions_today, last_execution_day, last_execution, nonce, bump,
			vault_primary, vault_secondary, vault_fee_pool, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	`,
		p.Owner.String(), p.Enabled, int64(p.TradeSizePrimary), int64(p.TradeSizeSecondary),
		int64(p.MinFeePool), int64(p.TargetFeePool), int32(p.MaxSlippageBps), int32(p.ProtocolFeeBps),
		int64(p.RelayerRefund), keeperSlots(p.Keepers), int16(p.Keepers.Count), int32(p.DailyLimit),
		int32(p.ExecutionsToday), p.LastExecutionDay, p.LastExecution, int64(p.Nonce), int16(p.Bump),
		int64(v.Primary), int64(v.Secondary), int64(v.FeePool), createdAt, now,
	)
	observe("insert_account", start, err)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// Get retrieves an account by owner. Returns ErrNotFound if not exists.
func (s *AccountStore) Get(ctx context.Context, owner solana.PublicKey) (*domain.Account, error) {
	start := time.Now()
	a, err := scanAccount(s.pool.QueryRow(ctx, selectAccountSQL, owner.String()))
	observe("get_account", start, err)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// Update locks the row, runs fn and writes the result in the same transaction.
func (s *AccountStore) Update(ctx context.Context, owner solana.PublicKey, fn storage.UpdateFunc) (*domain.Account, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	start := time.Now()
	a, err := scanAccount(tx.QueryRow(ctx, selectAccountSQL+" FOR UPDATE", owner.String()))
	observe("lock_account", start, err)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("lock account: %w", err)
	}

	if err := fn(a); err != nil {
		return nil, err
	}
	a.Profile.Owner = owner
	a.UpdatedAt = time.Now().UnixMilli()

	p, v := &a.Profile, &a.Vaults
	start = time.Now()
	_, err = tx.Exec(ctx, `
		UPDATE accounts SET
			enabled = $2, trade_size_primary = $3, trade_size_secondary = $4,
			min_fee_pool = $5, target_fee_pool = $6, max_slippage_bps = $7, protocol_fee_bps = $8,
			relayer_refund = $9, keeper_slots = $10, keeper_count = $11, daily_limit = $12,
			executions_today = $13, last_execution_day = $14, last_execution = $15, nonce = $16,
			vault_primary = $17, vault_secondary = $18, vault_fee_pool = $19, updated_at = $20
		WHERE owner = $1
	`,
		owner.String(), p.Enabled, int64(p.TradeSizePrimary), int64(p.TradeSizeSecondary),
		int64(p.MinFeePool), int64(p.TargetFeePool), int32(p.MaxSlippageBps), int32(p.ProtocolFeeBps),
		int64(p.RelayerRefund), keeperSlots(p.Keepers), int16(p.Keepers.Count), int32(p.DailyLimit),
		int32(p.ExecutionsToday), p.LastExecutionDay, p.LastExecution, int64(p.Nonce),
		int64(v.Primary), int64(v.Secondary), int64(v.FeePool), a.UpdatedAt,
	)
	observe("update_account", start, err)
	if err != nil {
		return nil, fmt.Errorf("update account: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit account update: %w", err)
	}
	return a, nil
}

// scanAccount scans a single accounts row.
func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		a                                       domain.Account
		owner                                   string
		tradePrimary, tradeSecondary            int64
		minFeePool, targetFeePool, refund       int64
		maxSlippage, protocolFee                int32
		slots                                   []string
		keeperCount, bump                       int16
		dailyLimit, executionsToday             int32
		nonce, vaultPrimary, vaultSecondary, fp int64
	)

	err := row.Scan(
		&owner, &a.Profile.Enabled, &tradePrimary, &tradeSecondary,
		&minFeePool, &targetFeePool, &maxSlippage, &protocolFee,
		&refund, &slots, &keeperCount, &dailyLimit,
		&executionsToday, &a.Profile.LastExecutionDay, &a.Profile.LastExecution, &nonce, &bump,
		&vaultPrimary, &vaultSecondary, &fp, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	pk, err := solana.ParsePublicKey(owner)
	if err != nil {
		return nil, fmt.Errorf("parse owner: %w", err)
	}
	a.Profile.Owner = pk
	a.Profile.TradeSizePrimary = uint64(tradePrimary)
	a.Profile.TradeSizeSecondary = uint64(tradeSecondary)
	a.Profile.MinFeePool = uint64(minFeePool)
	a.Profile.TargetFeePool = uint64(targetFeePool)
	a.Profile.MaxSlippageBps = uint16(maxSlippage)
	a.Profile.ProtocolFeeBps = uint16(protocolFee)
	a.Profile.RelayerRefund = uint64(refund)
	a.Profile.DailyLimit = uint16(dailyLimit)
	a.Profile.ExecutionsToday = uint16(executionsToday)
	a.Profile.Nonce = uint64(nonce)
	a.Profile.Bump = uint8(bump)
	a.Vaults.Primary = uint64(vaultPrimary)
	a.Vaults.Secondary = uint64(vaultSecondary)
	a.Vaults.FeePool = uint64(fp)

	for i := 0; i < len(slots) && i < domain.MaxKeepers; i++ {
		key, err := solana.ParsePublicKey(slots[i])
		if err != nil {
			return nil, fmt.Errorf("parse keeper slot %d: %w", i, err)
		}
		a.Profile.Keepers.Slots[i] = key
	}
	a.Profile.Keepers.Count = uint8(keeperCount)

	return &a, nil
}

// keeperSlots renders every slot, including stale ones past Count.
func keeperSlots(kl domain.KeeperList) []string {
	out := make([]string, domain.MaxKeepers)
	for i, key := range kl.Slots {
		out[i] = key.String()
	}
	return out
}
