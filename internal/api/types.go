package api

import (
	"encoding/json"

	"keeper-vault/internal/domain"
	"keeper-vault/internal/engine"
	"keeper-vault/internal/solana"
)

// Profile is the wire form of a policy record.
type Profile struct {
	Owner              solana.PublicKey   `json:"owner"`
	Enabled            bool               `json:"enabled"`
	TradeSizePrimary   uint64             `json:"trade_size_sol"`
	TradeSizeSecondary uint64             `json:"trade_size_usdc"`
	MinFeePool         uint64             `json:"min_fee_pool"`
	TargetFeePool      uint64             `json:"target_fee_pool"`
	MaxSlippageBps     uint16             `json:"max_slippage_bps"`
	ProtocolFeeBps     uint16             `json:"protocol_fee_bps"`
	RelayerRefund      uint64             `json:"relayer_refund"`
	Keepers            []solana.PublicKey `json:"keepers"`
	DailyLimit         uint16             `json:"daily_limit"`
	ExecutionsToday    uint16             `json:"executions_today"`
	LastExecutionDay   int64              `json:"last_execution_day"`
	LastExecution      int64              `json:"last_execution"`
	Nonce              uint64             `json:"nonce"`
	Bump               uint8              `json:"bump"`
}

// Balances are vault balances in base units with display values.
type Balances struct {
	Primary          uint64 `json:"sol"`
	Secondary        uint64 `json:"usdc"`
	FeePool          uint64 `json:"fee_pool"`
	PrimaryDisplay   string `json:"sol_display"`
	SecondaryDisplay string `json:"usdc_display"`
	FeePoolDisplay   string `json:"fee_pool_display"`
}

// Account is the wire form of an account view.
type Account struct {
	Profile          Profile              `json:"profile"`
	Balances         Balances             `json:"balances"`
	Addresses        *engine.Addresses    `json:"addresses,omitempty"`
	FeePoolStatus    domain.FeePoolStatus `json:"fee_pool_status,omitempty"`
	FeePoolSpendable uint64               `json:"fee_pool_spendable"`
	UpdatedAt        int64                `json:"updated_at"`
}

// AmountRequest is the body of deposit and withdraw calls.
type AmountRequest struct {
	Amount uint64 `json:"amount"`
}

// ExecuteRequest is the body of an execute call. The keeper is the caller.
type ExecuteRequest struct {
	SignalType   domain.SignalType `json:"signal_type"`
	MinAmountOut uint64            `json:"min_amount_out"`
	Route        json.RawMessage   `json:"route,omitempty"`
}

// ErrorBody is the error envelope of every failed call.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed call. Code is the domain error code, or 0.
type ErrorDetail struct {
	Code    int    `json:"code"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

func toProfile(p *domain.Profile) Profile {
	return Profile{
		Owner:              p.Owner,
		Enabled:            p.Enabled,
		TradeSizePrimary:   p.TradeSizePrimary,
		TradeSizeSecondary: p.TradeSizeSecondary,
		MinFeePool:         p.MinFeePool,
		TargetFeePool:      p.TargetFeePool,
		MaxSlippageBps:     p.MaxSlippageBps,
		ProtocolFeeBps:     p.ProtocolFeeBps,
		RelayerRefund:      p.RelayerRefund,
		Keepers:            p.Keepers.Active(),
		DailyLimit:         p.DailyLimit,
		ExecutionsToday:    p.ExecutionsToday,
		LastExecutionDay:   p.LastExecutionDay,
		LastExecution:      p.LastExecution,
		Nonce:              p.Nonce,
		Bump:               p.Bump,
	}
}

func toBalances(v *domain.Vaults) Balances {
	return Balances{
		Primary:          v.Primary,
		Secondary:        v.Secondary,
		FeePool:          v.FeePool,
		PrimaryDisplay:   domain.ToDisplay(v.Primary, domain.VaultPrimary).String(),
		SecondaryDisplay: domain.ToDisplay(v.Secondary, domain.VaultSecondary).String(),
		FeePoolDisplay:   domain.ToDisplay(v.FeePool, domain.VaultFeePool).String(),
	}
}

func fromAccount(a *domain.Account) *Account {
	return &Account{
		Profile:   toProfile(&a.Profile),
		Balances:  toBalances(&a.Vaults),
		UpdatedAt: a.UpdatedAt,
	}
}

func fromView(v *engine.AccountView) *Account {
	out := fromAccount(&v.Account)
	addrs := v.Addresses
	out.Addresses = &addrs
	out.FeePoolStatus = v.FeePoolStatus
	out.FeePoolSpendable = v.FeePoolSpendable
	return out
}
