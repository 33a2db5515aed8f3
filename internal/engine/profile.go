package engine

import (
	"context"
	"errors"
	"fmt"

	"keeper-vault/internal/domain"
	"keeper-vault/internal/events"
	"keeper-vault/internal/observability"
	"keeper-vault/internal/policy"
	"keeper-vault/internal/solana"
	"keeper-vault/internal/storage"
)

// AccountView is the read model of one user: record, balances, derived
// addresses and fee pool health.
type AccountView struct {
	Account          domain.Account
	Addresses        Addresses
	FeePoolStatus    domain.FeePoolStatus
	FeePoolSpendable uint64
}

// ProfilePatch is a sparse configuration update. Nil fields are left unchanged.
// A non-nil Keepers replaces the whole allowlist.
type ProfilePatch struct {
	Enabled            *bool               `json:"enabled,omitempty"`
	TradeSizePrimary   *uint64             `json:"trade_size_sol,omitempty"`
	TradeSizeSecondary *uint64             `json:"trade_size_usdc,omitempty"`
	MinFeePool         *uint64             `json:"min_fee_pool,omitempty"`
	TargetFeePool      *uint64             `json:"target_fee_pool,omitempty"`
	MaxSlippageBps     *uint16             `json:"max_slippage_bps,omitempty"`
	ProtocolFeeBps     *uint16             `json:"protocol_fee_bps,omitempty"`
	RelayerRefund      *uint64             `json:"relayer_refund,omitempty"`
	Keepers            *[]solana.PublicKey `json:"keepers,omitempty"`
	DailyLimit         *uint16             `json:"daily_limit,omitempty"`
}

// Validate checks the basis-point fields.
func (p *ProfilePatch) Validate() error {
	if p.MaxSlippageBps != nil && *p.MaxSlippageBps > policy.BpsDenominator {
		return fmt.Errorf("%w: max_slippage_bps %d > %d", domain.ErrInvalidParameter, *p.MaxSlippageBps, policy.BpsDenominator)
	}
	if p.ProtocolFeeBps != nil && *p.ProtocolFeeBps > policy.BpsDenominator {
		return fmt.Errorf("%w: protocol_fee_bps %d > %d", domain.ErrInvalidParameter, *p.ProtocolFeeBps, policy.BpsDenominator)
	}
	return nil
}

// Apply writes the present fields into profile.
func (p *ProfilePatch) Apply(profile *domain.Profile) {
	if p.Enabled != nil {
		profile.Enabled = *p.Enabled
	}
	if p.TradeSizePrimary != nil {
		profile.TradeSizePrimary = *p.TradeSizePrimary
	}
	if p.TradeSizeSecondary != nil {
		profile.TradeSizeSecondary = *p.TradeSizeSecondary
	}
	if p.MinFeePool != nil {
		profile.MinFeePool = *p.MinFeePool
	}
	if p.TargetFeePool != nil {
		profile.TargetFeePool = *p.TargetFeePool
	}
	if p.MaxSlippageBps != nil {
		profile.MaxSlippageBps = *p.MaxSlippageBps
	}
	if p.ProtocolFeeBps != nil {
		profile.ProtocolFeeBps = *p.ProtocolFeeBps
	}
	if p.RelayerRefund != nil {
		profile.RelayerRefund = *p.RelayerRefund
	}
	if p.Keepers != nil {
		profile.Keepers.Replace(*p.Keepers)
	}
	if p.DailyLimit != nil {
		profile.DailyLimit = *p.DailyLimit
	}
}

// Initialize creates the record and three empty vaults for user with default configuration.
func (e *Engine) Initialize(ctx context.Context, user solana.PublicKey) (*AccountView, error) {
	if user.IsZero() {
		return nil, e.reject("initialize", fmt.Errorf("%w: zero owner", domain.ErrInvalidParameter))
	}
	addrs, err := DeriveAddresses(e.programID, user)
	if err != nil {
		return nil, err
	}

	now := e.clock()
	acct := &domain.Account{
		Profile:   domain.NewProfile(user, addrs.ProfileBump),
		CreatedAt: now.UnixMilli(),
	}
	if err := e.accounts.Create(ctx, acct); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, e.reject("initialize", domain.ErrProfileExists)
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	e.logger.Printf("initialized owner=%s profile=%s", user, addrs.Profile)

	ev := events.New(domain.EventDepositMade, user, now.Unix())
	ev.VaultType = domain.VaultTypeInitialization
	e.publish(ctx, ev)

	return e.view(acct, addrs), nil
}

// GetAccount returns the current view of owner's records.
func (e *Engine) GetAccount(ctx context.Context, owner solana.PublicKey) (*AccountView, error) {
	acct, err := e.accounts.Get(ctx, owner)
	if err != nil {
		return nil, err
	}
	addrs, err := DeriveAddresses(e.programID, owner)
	if err != nil {
		return nil, err
	}
	v := e.view(acct, addrs)
	observability.RecordFeePoolStatus(string(v.FeePoolStatus))
	return v, nil
}

// UpdateProfile applies patch to owner's record. Only the owner may call it.
func (e *Engine) UpdateProfile(ctx context.Context, caller, owner solana.PublicKey, patch ProfilePatch) (*domain.Account, error) {
	if err := patch.Validate(); err != nil {
		return nil, e.reject("update_profile", err)
	}
	acct, err := e.accounts.Update(ctx, owner, func(a *domain.Account) error {
		if err := requireOwner(a, caller); err != nil {
			return err
		}
		patch.Apply(&a.Profile)
		return nil
	})
	if err != nil {
		return nil, e.reject("update_profile", err)
	}
	e.logger.Printf("updated profile owner=%s keepers=%d enabled=%t", owner, acct.Profile.Keepers.Count, acct.Profile.Enabled)
	return acct, nil
}

// ResetProfile restores default configuration and clears the keeper allowlist.
// Counters are untouched.
func (e *Engine) ResetProfile(ctx context.Context, caller, owner solana.PublicKey) (*domain.Account, error) {
	acct, err := e.accounts.Update(ctx, owner, func(a *domain.Account) error {
		if err := requireOwner(a, caller); err != nil {
			return err
		}
		a.Profile.ApplyDefaults()
		return nil
	})
	if err != nil {
		return nil, e.reject("reset_profile", err)
	}
	e.logger.Printf("reset profile owner=%s", owner)
	return acct, nil
}

// ListExecutions returns owner's receipts, oldest first.
func (e *Engine) ListExecutions(ctx context.Context, owner solana.PublicKey) ([]*domain.ExecutionReceipt, error) {
	if e.executions == nil {
		return nil, nil
	}
	return e.executions.GetByOwner(ctx, owner)
}

func (e *Engine) view(acct *domain.Account, addrs Addresses) *AccountView {
	return &AccountView{
		Account:          *acct,
		Addresses:        addrs,
		FeePoolStatus:    domain.ClassifyFeePool(acct.Vaults.FeePool, &acct.Profile),
		FeePoolSpendable: policy.Spendable(acct.Vaults.FeePool, e.FeePoolReserve()),
	}
}
