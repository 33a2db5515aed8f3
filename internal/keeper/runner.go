package keeper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"keeper-vault/internal/api"
	"keeper-vault/internal/domain"
	"keeper-vault/internal/jupiter"
	"keeper-vault/internal/observability"
	"keeper-vault/internal/policy"
	"keeper-vault/internal/solana"
	"keeper-vault/internal/storage"
	"keeper-vault/internal/venue"
)

// Signal outcomes.
const (
	OutcomeExecuted      = "executed"
	OutcomeDuplicate     = "duplicate"
	OutcomeDisabled      = "disabled"
	OutcomeNotAuthorized = "not_authorized"
	OutcomeUnderfunded   = "insufficient_balance"
	OutcomeDailyLimit    = "daily_limit"
	OutcomeRejected      = "rejected"
	OutcomeFailed        = "failed"
)

// Executor is the API surface the keeper drives.
type Executor interface {
	GetAccount(ctx context.Context, owner solana.PublicKey) (*api.Account, error)
	Execute(ctx context.Context, owner solana.PublicKey, req api.ExecuteRequest) (*domain.ExecutionReceipt, error)
}

// Quoter prices a trade before it is submitted.
type Quoter interface {
	GetQuote(ctx context.Context, inputMint, outputMint solana.PublicKey, amount uint64, slippageBps uint16) (*jupiter.Quote, error)
}

var (
	_ Executor = (*api.Client)(nil)
	_ Quoter   = (*jupiter.Client)(nil)
)

// Options for creating Runner.
type Options struct {
	// Required
	Keeper   solana.PublicKey
	Executor Executor
	Quoter   Quoter

	// Optional: without a progress store, signals are not deduplicated.
	Progress storage.SignalProgressStore
	Pair     venue.Pair // zero selects venue.DefaultPair

	Clock  func() time.Time
	Logger *log.Logger
}

// Runner handles signals from any number of sources.
type Runner struct {
	keeper   solana.PublicKey
	exec     Executor
	quoter   Quoter
	progress storage.SignalProgressStore
	pair     venue.Pair
	clock    func() time.Time
	logger   *log.Logger
}

// New creates a new Runner.
func New(opts Options) (*Runner, error) {
	if opts.Keeper.IsZero() || opts.Executor == nil || opts.Quoter == nil {
		return nil, errors.New("keeper: keeper key, executor and quoter are required")
	}
	r := &Runner{
		keeper:   opts.Keeper,
		exec:     opts.Executor,
		quoter:   opts.Quoter,
		progress: opts.Progress,
		pair:     opts.Pair,
		clock:    opts.Clock,
		logger:   opts.Logger,
	}
	if r.pair == (venue.Pair{}) {
		r.pair = venue.DefaultPair
	}
	if r.clock == nil {
		r.clock = time.Now
	}
	if r.logger == nil {
		r.logger = log.Default()
	}
	return r, nil
}

// Run drives every source until ctx is done and returns the errors of
// sources that stopped for any other reason.
func (r *Runner) Run(ctx context.Context, sources ...Source) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, src := range sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			err := src.Run(ctx, r.Handle)
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s source: %w", src.Name(), err))
				mu.Unlock()
			}
		}(src)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Handle processes one signal. A signal is recorded as seen once it executed
// or was rejected for a reason retrying cannot fix; transient failures are
// returned and the signal stays eligible.
func (r *Runner) Handle(ctx context.Context, sig *Signal) error {
	observability.RecordSignal(sig.Source)
	sig.ensureID()

	if r.progress != nil {
		seen, err := r.progress.IsSignalSeen(ctx, sig.ID)
		if err != nil {
			return fmt.Errorf("check signal %s: %w", shortID(sig.ID), err)
		}
		if seen {
			observability.RecordSignalOutcome(OutcomeDuplicate)
			return nil
		}
	}

	outcome, err := r.process(ctx, sig)
	observability.RecordSignalOutcome(outcome)
	if err != nil && !terminal(err) {
		return err
	}
	if err != nil {
		r.logger.Printf("signal %s owner=%s rejected: %v", shortID(sig.ID), sig.Owner.Short(), err)
	} else if outcome != OutcomeExecuted {
		r.logger.Printf("signal %s owner=%s skipped: %s", shortID(sig.ID), sig.Owner.Short(), outcome)
	}
	return r.markDone(ctx, sig)
}

func (r *Runner) process(ctx context.Context, sig *Signal) (string, error) {
	acct, err := r.exec.GetAccount(ctx, sig.Owner)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("get account: %w", err)
	}
	p := &acct.Profile
	if !p.Enabled {
		return OutcomeDisabled, nil
	}
	if !slices.Contains(p.Keepers, r.keeper) {
		return OutcomeNotAuthorized, nil
	}

	amount, balance := p.TradeSizePrimary, acct.Balances.Primary
	if sig.Type == domain.SignalSecondaryToPrimary {
		amount, balance = p.TradeSizeSecondary, acct.Balances.Secondary
	}
	if balance < amount {
		return OutcomeUnderfunded, nil
	}
	if p.DailyLimit > 0 && p.ExecutionsToday >= p.DailyLimit &&
		!policy.NeedsRollover(p.LastExecutionDay, r.clock().Unix()) {
		return OutcomeDailyLimit, nil
	}

	in, out := r.pair.Mints(sig.Type)
	quote, err := r.quoter.GetQuote(ctx, in, out, amount, p.MaxSlippageBps)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("quote: %w", err)
	}
	_, _, minOut, err := quote.Amounts()
	if err != nil {
		return OutcomeFailed, fmt.Errorf("quote: %w", err)
	}

	receipt, err := r.exec.Execute(ctx, sig.Owner, api.ExecuteRequest{
		SignalType:   sig.Type,
		MinAmountOut: minOut,
		Route:        quote.Raw,
	})
	if err != nil {
		if terminal(err) {
			return OutcomeRejected, fmt.Errorf("execute: %w", err)
		}
		return OutcomeFailed, fmt.Errorf("execute: %w", err)
	}

	r.logger.Printf("executed signal %s owner=%s type=%s in=%d out=%d fee=%d refund=%d nonce=%d",
		shortID(sig.ID), sig.Owner.Short(), sig.Type, receipt.AmountIn, receipt.AmountOut,
		receipt.Fee, receipt.RelayerPaid, receipt.Nonce)
	return OutcomeExecuted, nil
}

func (r *Runner) markDone(ctx context.Context, sig *Signal) error {
	if r.progress == nil {
		return nil
	}
	if err := r.progress.MarkSignalSeen(ctx, sig.ID); err != nil {
		return fmt.Errorf("mark signal %s: %w", shortID(sig.ID), err)
	}
	return r.progress.SetLastProcessed(ctx, &storage.SignalProgress{
		Source:    sig.Source,
		Offset:    sig.Offset,
		SignalID:  sig.ID,
		UpdatedAt: r.clock().UnixMilli(),
	})
}

// terminal reports whether retrying the same signal cannot succeed.
func terminal(err error) bool {
	if _, ok := domain.AsError(err); ok {
		return true
	}
	return errors.Is(err, storage.ErrNotFound)
}
