package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Decimals of the assets held in vaults.
const (
	LamportDecimals = 9
	USDCDecimals    = 6
)

// FeePoolStatus is the health of a fee pool relative to its thresholds.
type FeePoolStatus string

const (
	FeePoolHealthy  FeePoolStatus = "healthy"
	FeePoolLow      FeePoolStatus = "low"
	FeePoolCritical FeePoolStatus = "critical"
)

// ClassifyFeePool reports healthy at or above target, low at or above min, else critical.
func ClassifyFeePool(balance uint64, p *Profile) FeePoolStatus {
	switch {
	case balance >= p.TargetFeePool:
		return FeePoolHealthy
	case balance >= p.MinFeePool:
		return FeePoolLow
	default:
		return FeePoolCritical
	}
}

// ToDisplay converts a base-unit amount of a vault class into whole units.
func ToDisplay(amount uint64, class VaultClass) decimal.Decimal {
	exp := int32(LamportDecimals)
	if class == VaultSecondary {
		exp = USDCDecimals
	}
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -exp)
}

// FromDisplay converts whole units into base units, truncating extra precision.
func FromDisplay(value decimal.Decimal, class VaultClass) (uint64, error) {
	exp := int32(LamportDecimals)
	if class == VaultSecondary {
		exp = USDCDecimals
	}
	base := value.Shift(exp).Truncate(0)
	if base.IsNegative() || !base.BigInt().IsUint64() {
		return 0, ErrArithmeticOverflow
	}
	return base.BigInt().Uint64(), nil
}
