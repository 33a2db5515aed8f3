package clickhouse

import (
	"context"
	"fmt"
	"time"

	"keeper-vault/internal/domain"
	"keeper-vault/internal/observability"
	"keeper-vault/internal/solana"
	"keeper-vault/internal/storage"
)

// EventStore implements storage.EventStore using ClickHouse.
type EventStore struct {
	conn *Conn
}

// NewEventStore creates a new EventStore.
func NewEventStore(conn *Conn) *EventStore {
	return &EventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

// InsertBulk adds multiple events. Fails entire batch on duplicate id.
// MergeTree does not enforce uniqueness, so ids are checked before the batch is sent.
func (s *EventStore) InsertBulk(ctx context.Context, events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	seen := make(map[string]struct{}, len(events))
	ids := make([]string, 0, len(events))
	for _, e := range events {
		if e == nil || e.ID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := seen[e.ID]; exists {
			return storage.ErrDuplicateKey
		}
		seen[e.ID] = struct{}{}
		ids = append(ids, e.ID)
	}

	// Check for duplicates against existing rows
	var count uint64
	if err := s.conn.QueryRow(ctx, `SELECT count() FROM vault_events WHERE id IN (?)`, ids).Scan(&count); err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if count > 0 {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO vault_events (
			id, kind, owner, vault_type, keeper, recipient, signal_type,
			amount, amount_in, amount_out, fee, nonce, timestamp
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		err = batch.Append(
			e.ID, string(e.Kind), e.User.String(), e.VaultType,
			optionalKey(e.Keeper), optionalKey(e.Recipient), uint8(e.SignalType),
			e.Amount, e.AmountIn, e.AmountOut, e.Fee, e.Nonce, e.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	sendStart := time.Now()
	err = batch.Send()
	observability.RecordDBQuery("clickhouse", "insert_events", time.Since(sendStart).Seconds(), err)
	if err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByOwner retrieves events for an owner within [start, end], ordered by timestamp ASC.
func (s *EventStore) GetByOwner(ctx context.Context, owner solana.PublicKey, start, end int64) ([]*domain.Event, error) {
	query := `
		SELECT id, kind, owner, vault_type, keeper, recipient, signal_type,
		       amount, amount_in, amount_out, fee, nonce, timestamp
		FROM vault_events FINAL
		WHERE owner = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC, id ASC
	`

	rows, err := s.conn.Query(ctx, query, owner.String(), start, end)
	if err != nil {
		return nil, fmt.Errorf("query by owner: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// scanEvents scans multiple rows.
func scanEvents(rows chRows) ([]*domain.Event, error) {
	var events []*domain.Event

	for rows.Next() {
		var e domain.Event
		var kind, user, keeper, recipient string
		var signalType uint8

		err := rows.Scan(
			&e.ID, &kind, &user, &e.VaultType, &keeper, &recipient, &signalType,
			&e.Amount, &e.AmountIn, &e.AmountOut, &e.Fee, &e.Nonce, &e.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}

		e.Kind = domain.EventKind(kind)
		e.SignalType = domain.SignalType(signalType)
		if e.User, err = solana.ParsePublicKey(user); err != nil {
			return nil, fmt.Errorf("parse user: %w", err)
		}
		if e.Keeper, err = parseOptionalKey(keeper); err != nil {
			return nil, fmt.Errorf("parse keeper: %w", err)
		}
		if e.Recipient, err = parseOptionalKey(recipient); err != nil {
			return nil, fmt.Errorf("parse recipient: %w", err)
		}
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}

	return events, nil
}

func optionalKey(pk solana.PublicKey) string {
	if pk.IsZero() {
		return ""
	}
	return pk.String()
}

func parseOptionalKey(s string) (solana.PublicKey, error) {
	if s == "" {
		return solana.PublicKey{}, nil
	}
	return solana.ParsePublicKey(s)
}
