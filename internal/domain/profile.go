package domain

import (
	"keeper-vault/internal/solana"
)

// MaxKeepers is the capacity of a profile's keeper allowlist.
const MaxKeepers = 5

// SecondsPerDay is the length of the rolling execution window.
const SecondsPerDay = 86_400

// Profile is the per-user policy record.
// Corresponds to the profiles table in PostgreSQL.
type Profile struct {
	Owner              solana.PublicKey // immutable after creation
	Enabled            bool             // execution allowed at all
	TradeSizePrimary   uint64           // lamports moved per primary->secondary signal
	TradeSizeSecondary uint64           // base units moved per secondary->primary signal
	MinFeePool         uint64           // advisory top-up threshold (lamports)
	TargetFeePool      uint64           // advisory top-up target (lamports)
	MaxSlippageBps     uint16           // 0-10000
	ProtocolFeeBps     uint16           // 0-10000, applied to executed output
	RelayerRefund      uint64           // lamports paid to the keeper per execution
	Keepers            KeeperList       // authorized executors
	DailyLimit         uint16           // 0 = unlimited
	ExecutionsToday    uint16           // reset on day rollover
	LastExecutionDay   int64            // day index of last counted execution
	LastExecution      int64            // Unix seconds of last successful execution
	Nonce              uint64           // strictly increasing execution counter
	Bump               uint8            // profile address bump seed
}

// Vaults holds the three program-controlled balances of one user.
type Vaults struct {
	Primary   uint64 // wrapped SOL (lamports)
	Secondary uint64 // USDC (base units)
	FeePool   uint64 // native lamports
}

// Account is the unit of isolation: a profile together with its vaults.
// Every mutation reads and writes the whole record atomically.
type Account struct {
	Profile   Profile
	Vaults    Vaults
	CreatedAt int64 // record creation timestamp (ms)
	UpdatedAt int64 // last write timestamp (ms)
}

// Default profile configuration applied at initialization and on reset.
const (
	DefaultTradeSizePrimary   uint64 = 2_500_000_000 // 2.5 SOL
	DefaultTradeSizeSecondary uint64 = 500_000_000   // 500 USDC
	DefaultMinFeePool         uint64 = 50_000_000    // 0.05 SOL
	DefaultTargetFeePool      uint64 = 150_000_000   // 0.15 SOL
	DefaultMaxSlippageBps     uint16 = 50
	DefaultProtocolFeeBps     uint16 = 10
	DefaultRelayerRefund      uint64 = 5_000
	DefaultDailyLimit         uint16 = 10
)

// NewProfile returns a profile for owner with default configuration and zeroed counters.
func NewProfile(owner solana.PublicKey, bump uint8) Profile {
	p := Profile{Owner: owner, Bump: bump}
	p.ApplyDefaults()
	return p
}

// ApplyDefaults restores the configuration fields and clears the keeper list.
// Counters and the owner are untouched.
func (p *Profile) ApplyDefaults() {
	p.Enabled = true
	p.TradeSizePrimary = DefaultTradeSizePrimary
	p.TradeSizeSecondary = DefaultTradeSizeSecondary
	p.MinFeePool = DefaultMinFeePool
	p.TargetFeePool = DefaultTargetFeePool
	p.MaxSlippageBps = DefaultMaxSlippageBps
	p.ProtocolFeeBps = DefaultProtocolFeeBps
	p.RelayerRefund = DefaultRelayerRefund
	p.Keepers = KeeperList{}
	p.DailyLimit = DefaultDailyLimit
}

// IsKeeperAuthorized reports whether keeper is among the active allowlist entries.
func (p *Profile) IsKeeperAuthorized(keeper solana.PublicKey) bool {
	return p.Keepers.Contains(keeper)
}

// TradeSize returns the fixed input amount for a signal.
func (p *Profile) TradeSize(signal SignalType) uint64 {
	if signal == SignalPrimaryToSecondary {
		return p.TradeSizePrimary
	}
	return p.TradeSizeSecondary
}

// Balance returns the balance of a vault class.
func (v *Vaults) Balance(class VaultClass) uint64 {
	switch class {
	case VaultPrimary:
		return v.Primary
	case VaultSecondary:
		return v.Secondary
	case VaultFeePool:
		return v.FeePool
	}
	return 0
}

// Set overwrites the balance of a vault class.
func (v *Vaults) Set(class VaultClass, amount uint64) {
	switch class {
	case VaultPrimary:
		v.Primary = amount
	case VaultSecondary:
		v.Secondary = amount
	case VaultFeePool:
		v.FeePool = amount
	}
}
