// Package engine is the custody-and-policy authority: it owns the per-user
// policy record, guards every value movement and emits notifications.
//
// Every mutating operation runs inside a single AccountStore.Update, so the
// record is read, checked and written as one unit and a failed guard leaves
// no trace.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"keeper-vault/internal/custody"
	"keeper-vault/internal/domain"
	"keeper-vault/internal/events"
	"keeper-vault/internal/observability"
	"keeper-vault/internal/solana"
	"keeper-vault/internal/storage"
	"keeper-vault/internal/venue"
)

// DefaultFeePoolReserve is the rent-exempt minimum of a zero-data account
// in lamports. It can never be withdrawn or spent on refunds.
const DefaultFeePoolReserve uint64 = 890_880

// DefaultVenueTimeout bounds one swap. It stays below the Redis store's lock
// TTL so the record lock is never lost while a swap is in flight.
const DefaultVenueTimeout = 20 * time.Second

// Engine executes keeper signals and owner operations against account records.
type Engine struct {
	// Stores
	accounts   storage.AccountStore
	executions storage.ExecutionStore

	// Collaborators
	custodian custody.Custodian
	venue     venue.Venue
	events    events.Sink

	// Configuration
	programID       solana.PublicKey
	feeRecipient    solana.PublicKey
	pair            venue.Pair
	feePoolReserve  atomic.Uint64
	cooldownSeconds int64
	venueTimeout    time.Duration

	// Protocol fees whose transfer failed after commit, retried by SettleFees.
	feesMu     sync.Mutex
	parkedFees []parkedFee

	clock  func() time.Time
	logger *log.Logger
}

// Options for creating Engine.
type Options struct {
	// Required
	Accounts  storage.AccountStore
	Custodian custody.Custodian
	Venue     venue.Venue

	// Optional: receipts are not persisted without an ExecutionStore,
	// notifications are dropped without a Sink.
	Executions storage.ExecutionStore
	Events     events.Sink

	ProgramID    solana.PublicKey
	FeeRecipient solana.PublicKey
	Pair         venue.Pair // zero selects venue.DefaultPair

	FeePoolReserve  uint64 // zero selects DefaultFeePoolReserve
	CooldownSeconds int64  // minimum spacing between executions; zero disables

	// VenueTimeout bounds each swap; zero selects DefaultVenueTimeout.
	VenueTimeout time.Duration

	Clock  func() time.Time
	Logger *log.Logger
}

// New creates a new Engine.
func New(opts Options) (*Engine, error) {
	if opts.Accounts == nil || opts.Custodian == nil || opts.Venue == nil {
		return nil, errors.New("engine: accounts, custodian and venue are required")
	}
	if opts.CooldownSeconds < 0 {
		return nil, fmt.Errorf("engine: negative cooldown %d", opts.CooldownSeconds)
	}
	if opts.VenueTimeout < 0 {
		return nil, fmt.Errorf("engine: negative venue timeout %v", opts.VenueTimeout)
	}

	e := &Engine{
		accounts:        opts.Accounts,
		executions:      opts.Executions,
		custodian:       opts.Custodian,
		venue:           opts.Venue,
		events:          opts.Events,
		programID:       opts.ProgramID,
		feeRecipient:    opts.FeeRecipient,
		pair:            opts.Pair,
		cooldownSeconds: opts.CooldownSeconds,
		venueTimeout:    opts.VenueTimeout,
		clock:           opts.Clock,
		logger:          opts.Logger,
	}
	if e.events == nil {
		e.events = events.Discard
	}
	if e.pair == (venue.Pair{}) {
		e.pair = venue.DefaultPair
	}
	if e.venueTimeout == 0 {
		e.venueTimeout = DefaultVenueTimeout
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.logger == nil {
		e.logger = log.Default()
	}
	reserve := opts.FeePoolReserve
	if reserve == 0 {
		reserve = DefaultFeePoolReserve
	}
	e.feePoolReserve.Store(reserve)
	return e, nil
}

// FeePoolReserve returns the lamports a fee pool must always retain.
func (e *Engine) FeePoolReserve() uint64 {
	return e.feePoolReserve.Load()
}

// RefreshFeePoolReserve reads the current rent-exempt minimum from the cluster.
func (e *Engine) RefreshFeePoolReserve(ctx context.Context, rpc solana.RPCClient) error {
	reserve, err := rpc.GetMinimumBalanceForRentExemption(ctx, 0)
	if err != nil {
		return fmt.Errorf("get rent exemption: %w", err)
	}
	e.feePoolReserve.Store(reserve)
	e.logger.Printf("fee pool reserve set to %d lamports", reserve)
	return nil
}

// publish delivers notifications after commit. Delivery failures never undo an operation.
func (e *Engine) publish(ctx context.Context, evs ...*domain.Event) {
	if len(evs) == 0 {
		return
	}
	if err := e.events.Publish(ctx, evs...); err != nil {
		e.logger.Printf("publish %d notifications: %v", len(evs), err)
	}
}

// reject records a failed operation and passes err through.
func (e *Engine) reject(operation string, err error) error {
	reason := "internal"
	if de, ok := domain.AsError(err); ok {
		reason = de.Name
	} else if errors.Is(err, storage.ErrNotFound) {
		reason = "NotFound"
	} else if errors.Is(err, storage.ErrConflict) {
		reason = "Conflict"
	}
	observability.RecordRejection(operation, reason)
	return err
}

func requireOwner(a *domain.Account, caller solana.PublicKey) error {
	if a.Profile.Owner != caller {
		return domain.ErrNotOwner
	}
	return nil
}
