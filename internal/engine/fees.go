package engine

import (
	"context"
	"fmt"

	"keeper-vault/internal/domain"
	"keeper-vault/internal/events"
	"keeper-vault/internal/observability"
	"keeper-vault/internal/policy"
	"keeper-vault/internal/solana"
)

// parkedFee is a committed protocol fee still held in program custody.
type parkedFee struct {
	owner  solana.PublicKey
	asset  domain.VaultClass
	amount uint64
}

// collectFee transfers fee to the fee recipient and returns its notification.
func (e *Engine) collectFee(ctx context.Context, fee parkedFee, timestamp int64) (*domain.Event, error) {
	if err := e.custodian.Push(ctx, fee.asset, e.feeRecipient, fee.amount); err != nil {
		return nil, fmt.Errorf("push fee: %w", err)
	}
	observability.RecordFee(string(fee.asset), fee.amount)

	ev := events.New(domain.EventFeeCollected, fee.owner, timestamp)
	ev.VaultType = string(fee.asset)
	ev.Recipient = e.feeRecipient
	ev.Amount = fee.amount
	return ev, nil
}

func (e *Engine) parkFee(fee parkedFee, cause error) {
	e.feesMu.Lock()
	e.parkedFees = append(e.parkedFees, fee)
	e.feesMu.Unlock()

	observability.RecordFeeDeferred(string(fee.asset))
	e.logger.Printf("fee parked owner=%s vault=%s amount=%d: %v", fee.owner, fee.asset, fee.amount, cause)
}

// PendingFees returns the number of fee transfers waiting for SettleFees.
func (e *Engine) PendingFees() int {
	e.feesMu.Lock()
	defer e.feesMu.Unlock()
	return len(e.parkedFees)
}

// SettleFees retries parked fee transfers and returns how many went through.
// Transfers that fail again stay parked.
func (e *Engine) SettleFees(ctx context.Context) int {
	e.feesMu.Lock()
	batch := e.parkedFees
	e.parkedFees = nil
	e.feesMu.Unlock()

	var (
		settled int
		evs     []*domain.Event
		failed  []parkedFee
	)
	for _, fee := range batch {
		if ctx.Err() != nil {
			failed = append(failed, fee)
			continue
		}
		ev, err := e.collectFee(ctx, fee, e.clock().Unix())
		if err != nil {
			e.logger.Printf("fee retry owner=%s vault=%s amount=%d: %v", fee.owner, fee.asset, fee.amount, err)
			failed = append(failed, fee)
			continue
		}
		settled++
		evs = append(evs, ev)
	}

	if len(failed) > 0 {
		e.feesMu.Lock()
		e.parkedFees = append(failed, e.parkedFees...)
		e.feesMu.Unlock()
	}
	if settled > 0 {
		e.logger.Printf("settled %d parked fees, %d still pending", settled, len(failed))
	}
	e.publish(ctx, evs...)
	return settled
}

// restore credits amount back to an owner's vault after a transfer that
// followed a committed debit failed.
func (e *Engine) restore(ctx context.Context, owner solana.PublicKey, class domain.VaultClass, amount uint64) {
	_, err := e.accounts.Update(ctx, owner, func(a *domain.Account) error {
		next, err := policy.CheckedAddU64(a.Vaults.Balance(class), amount)
		if err != nil {
			return err
		}
		a.Vaults.Set(class, next)
		return nil
	})
	if err != nil {
		e.logger.Printf("restore owner=%s vault=%s amount=%d failed: %v", owner, class, amount, err)
	}
}
