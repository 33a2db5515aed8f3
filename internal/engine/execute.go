package engine

import (
	"context"
	"fmt"
	"time"

	"keeper-vault/internal/domain"
	"keeper-vault/internal/events"
	"keeper-vault/internal/idhash"
	"keeper-vault/internal/observability"
	"keeper-vault/internal/policy"
	"keeper-vault/internal/solana"
	"keeper-vault/internal/venue"
)

// ExecuteRequest is a keeper's request to run one signal for a user.
type ExecuteRequest struct {
	Keeper       solana.PublicKey
	Owner        solana.PublicKey
	Signal       domain.SignalType
	MinAmountOut uint64
	Route        []byte
}

// Refund skip reasons.
const (
	refundUnderfunded = "underfunded"
	refundFailed      = "transfer_failed"
)

// Execute runs the guard sequence, swaps through the venue and commits the
// counters, all under the owner's record lock:
//
//  1. keeper authorization
//  2. profile enabled
//  3. cooldown (when configured)
//  4. daily window rollover
//  5. daily limit
//  6. signal validity
//  7. source balance
//  8. counter overflow pre-check
//  9. venue swap (bounded by the venue timeout) and minimum output check
//  10. vault balances, protocol fee, keeper refund and counters committed
//
// A failure at any step leaves the record unchanged. Once the guards pass,
// caller cancellation no longer interrupts the operation.
//
// Fee and refund transfers run after the commit and cannot undo it: a failed
// fee transfer is parked for SettleFees, a failed refund is credited back to
// the fee pool.
func (e *Engine) Execute(ctx context.Context, req ExecuteRequest) (*domain.ExecutionReceipt, error) {
	var receipt *domain.ExecutionReceipt

	callerCtx := ctx
	ctx = context.WithoutCancel(ctx)

	_, err := e.accounts.Update(ctx, req.Owner, func(a *domain.Account) error {
		if err := callerCtx.Err(); err != nil {
			return err
		}
		p := &a.Profile
		now := e.clock().Unix()

		if !p.IsKeeperAuthorized(req.Keeper) {
			return domain.ErrUnauthorizedKeeper
		}
		if !p.Enabled {
			return domain.ErrProfileDisabled
		}
		if e.cooldownSeconds > 0 && p.Nonce > 0 && now-p.LastExecution < e.cooldownSeconds {
			return fmt.Errorf("%w: %ds remaining", domain.ErrCooldownActive, e.cooldownSeconds-(now-p.LastExecution))
		}

		if policy.NeedsRollover(p.LastExecutionDay, now) {
			p.ExecutionsToday = 0
			p.LastExecutionDay = policy.DayIndex(now)
		}
		if p.DailyLimit > 0 && p.ExecutionsToday >= p.DailyLimit {
			return fmt.Errorf("%w: %d of %d", domain.ErrDailyLimitExceeded, p.ExecutionsToday, p.DailyLimit)
		}

		if !req.Signal.Valid() {
			return fmt.Errorf("%w: %d", domain.ErrInvalidSignalType, uint8(req.Signal))
		}
		src, dst := req.Signal.SourceVault(), req.Signal.DestinationVault()
		amountIn := p.TradeSize(req.Signal)
		if balance := a.Vaults.Balance(src); balance < amountIn {
			return fmt.Errorf("%w: %s vault holds %d, trade size %d", domain.ErrInsufficientBalance, src, balance, amountIn)
		}

		nextNonce, err := policy.CheckedAddU64(p.Nonce, 1)
		if err != nil {
			return fmt.Errorf("%w: nonce", err)
		}
		nextCount, err := policy.CheckedIncU16(p.ExecutionsToday)
		if err != nil {
			return fmt.Errorf("%w: executions today", err)
		}

		// Point of no return: everything below runs to completion or aborts.
		res, err := e.swap(ctx, req, amountIn, p.MaxSlippageBps)
		if err != nil {
			return err
		}
		if res.AmountOut < req.MinAmountOut {
			return fmt.Errorf("%w: got %d, minimum %d", domain.ErrSlippageExceeded, res.AmountOut, req.MinAmountOut)
		}

		fee, err := policy.CalculateFee(res.AmountOut, p.ProtocolFeeBps)
		if err != nil {
			return err
		}
		credited, err := policy.CheckedAddU64(a.Vaults.Balance(dst), res.AmountOut-fee)
		if err != nil {
			return err
		}
		a.Vaults.Set(src, a.Vaults.Balance(src)-amountIn)
		a.Vaults.Set(dst, credited)

		refund := e.reserveRefund(a)

		p.LastExecution = now
		p.Nonce = nextNonce
		p.ExecutionsToday = nextCount

		receipt = &domain.ExecutionReceipt{
			ExecutionID:  idhash.ComputeExecutionID(req.Owner, nextNonce),
			User:         req.Owner,
			Keeper:       req.Keeper,
			SignalType:   req.Signal,
			AmountIn:     amountIn,
			AmountOut:    res.AmountOut,
			Fee:          fee,
			RelayerPaid:  refund,
			Nonce:        nextNonce,
			Timestamp:    now,
			VenueTxID:    res.Signature,
			MinAmountOut: req.MinAmountOut,
		}
		return nil
	})
	if err != nil {
		return nil, e.reject("execute", err)
	}

	evs := e.settleExecution(ctx, receipt)

	observability.RecordExecution(req.Signal.String(), receipt.Timestamp)
	e.logger.Printf("executed signal owner=%s keeper=%s type=%s in=%d out=%d fee=%d nonce=%d",
		req.Owner, req.Keeper.Short(), req.Signal, receipt.AmountIn, receipt.AmountOut, receipt.Fee, receipt.Nonce)

	if e.executions != nil {
		if err := e.executions.Insert(ctx, receipt); err != nil {
			e.logger.Printf("store receipt %s: %v", receipt.ExecutionID, err)
		}
	}
	e.publish(ctx, evs...)
	return receipt, nil
}

// swap calls the venue with the venue timeout applied.
func (e *Engine) swap(ctx context.Context, req ExecuteRequest, amountIn uint64, maxSlippageBps uint16) (*venue.SwapResult, error) {
	ctx, cancel := context.WithTimeout(ctx, e.venueTimeout)
	defer cancel()

	inMint, outMint := e.pair.Mints(req.Signal)
	start := time.Now()
	res, err := e.venue.Swap(ctx, venue.SwapRequest{
		Owner:          req.Owner,
		Signal:         req.Signal,
		InputMint:      inMint,
		OutputMint:     outMint,
		AmountIn:       amountIn,
		MinAmountOut:   req.MinAmountOut,
		MaxSlippageBps: maxSlippageBps,
		Route:          req.Route,
	})
	if err != nil {
		observability.RecordVenueLatency("error", time.Since(start))
		return nil, fmt.Errorf("venue swap: %w", err)
	}
	observability.RecordVenueLatency("ok", time.Since(start))
	return res, nil
}

// reserveRefund debits the keeper refund from the fee pool when it can
// afford it and returns the amount reserved. The transfer itself runs after commit.
func (e *Engine) reserveRefund(a *domain.Account) uint64 {
	refund := a.Profile.RelayerRefund
	if refund == 0 {
		return 0
	}
	if policy.Spendable(a.Vaults.FeePool, e.FeePoolReserve()) < refund {
		observability.RecordRefundSkipped(refundUnderfunded)
		e.logger.Printf("refund skipped owner=%s: fee pool %d below reserve plus %d", a.Profile.Owner, a.Vaults.FeePool, refund)
		return 0
	}
	a.Vaults.FeePool -= refund
	return refund
}

// settleExecution moves the committed fee and refund and returns the
// notifications for r. It adjusts r when the refund could not be paid.
func (e *Engine) settleExecution(ctx context.Context, r *domain.ExecutionReceipt) []*domain.Event {
	var evs []*domain.Event

	if r.Fee > 0 {
		fee := parkedFee{owner: r.User, asset: r.SignalType.DestinationVault(), amount: r.Fee}
		ev, err := e.collectFee(ctx, fee, r.Timestamp)
		if err != nil {
			e.parkFee(fee, err)
		} else {
			evs = append(evs, ev)
		}
	}

	if r.RelayerPaid > 0 {
		if err := e.custodian.Push(ctx, domain.VaultFeePool, r.Keeper, r.RelayerPaid); err != nil {
			observability.RecordRefundSkipped(refundFailed)
			e.logger.Printf("refund skipped owner=%s: %v", r.User, err)
			e.restore(ctx, r.User, domain.VaultFeePool, r.RelayerPaid)
			r.RelayerPaid = 0
		} else {
			observability.RecordRefund(r.RelayerPaid)
			ev := events.New(domain.EventRelayerRefunded, r.User, r.Timestamp)
			ev.Keeper = r.Keeper
			ev.Amount = r.RelayerPaid
			evs = append(evs, ev)
		}
	}

	ev := events.New(domain.EventSignalExecuted, r.User, r.Timestamp)
	ev.Keeper = r.Keeper
	ev.SignalType = r.SignalType
	ev.AmountIn = r.AmountIn
	ev.AmountOut = r.AmountOut
	ev.Fee = r.Fee
	ev.Nonce = r.Nonce
	return append(evs, ev)
}
