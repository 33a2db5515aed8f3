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

// ExecutionStore is a PostgreSQL implementation of storage.ExecutionStore.
type ExecutionStore struct {
	pool *Pool
}

// NewExecutionStore creates a new PostgreSQL execution store.
func NewExecutionStore(pool *Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ExecutionStore = (*ExecutionStore)(nil)

const selectExecutionSQL = `
	SELECT execution_id, owner, keeper, signal_type, amount_in, amount_out,
	       min_amount_out, fee, relayer_paid, nonce, timestamp, venue_tx_id
	FROM executions
`

// Insert adds a receipt. Returns ErrDuplicateKey if execution_id exists.
func (s *ExecutionStore) Insert(ctx context.Context, r *domain.ExecutionReceipt) error {
	if r == nil || r.ExecutionID == "" {
		return storage.ErrInvalidInput
	}

	start := time.Now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO executions (
			execution_id, owner, keeper, signal_type, amount_in, amount_out,
			min_amount_out, fee, relayer_paid, nonce, timestamp, venue_tx_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		r.ExecutionID, r.User.String(), r.Keeper.String(), int16(r.SignalType),
		int64(r.AmountIn), int64(r.AmountOut), int64(r.MinAmountOut), int64(r.Fee),
		int64(r.RelayerPaid), int64(r.Nonce), r.Timestamp, r.VenueTxID,
	)
	observe("insert_execution", start, err)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// GetByID retrieves a receipt. Returns ErrNotFound if not exists.
func (s *ExecutionStore) GetByID(ctx context.Context, executionID string) (*domain.ExecutionReceipt, error) {
	r, err := scanExecution(s.pool.QueryRow(ctx, selectExecutionSQL+" WHERE execution_id = $1", executionID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get execution: %w", err)
	}
	return r, nil
}

// GetByOwner retrieves all receipts for an owner, ordered by timestamp, nonce ASC.
func (s *ExecutionStore) GetByOwner(ctx context.Context, owner solana.PublicKey) ([]*domain.ExecutionReceipt, error) {
	rows, err := s.pool.Query(ctx, selectExecutionSQL+" WHERE owner = $1 ORDER BY timestamp ASC, nonce ASC", owner.String())
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	var result []*domain.ExecutionReceipt
	for rows.Next() {
		r, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func scanExecution(row pgx.Row) (*domain.ExecutionReceipt, error) {
	var (
		r                                domain.ExecutionReceipt
		owner, keeper                    string
		signalType                       int16
		amountIn, amountOut, minOut, fee int64
		relayerPaid, nonce               int64
	)

	err := row.Scan(
		&r.ExecutionID, &owner, &keeper, &signalType, &amountIn, &amountOut,
		&minOut, &fee, &relayerPaid, &nonce, &r.Timestamp, &r.VenueTxID,
	)
	if err != nil {
		return nil, err
	}

	if r.User, err = solana.ParsePublicKey(owner); err != nil {
		return nil, fmt.Errorf("parse owner: %w", err)
	}
	if r.Keeper, err = solana.ParsePublicKey(keeper); err != nil {
		return nil, fmt.Errorf("parse keeper: %w", err)
	}
	r.SignalType = domain.SignalType(signalType)
	r.AmountIn = uint64(amountIn)
	r.AmountOut = uint64(amountOut)
	r.MinAmountOut = uint64(minOut)
	r.Fee = uint64(fee)
	r.RelayerPaid = uint64(relayerPaid)
	r.Nonce = uint64(nonce)
	return &r, nil
}
