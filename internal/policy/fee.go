// Package policy holds the pure arithmetic used by the execution controller.
package policy

import (
	"math"

	"github.com/holiman/uint256"

	"keeper-vault/internal/domain"
)

// BpsDenominator is 100% expressed in basis points.
const BpsDenominator = 10_000

// CalculateFee returns amount * feeBps / 10000, truncated.
// The product is computed at 256-bit width so amounts near the uint64
// maximum keep full precision.
func CalculateFee(amount uint64, feeBps uint16) (uint64, error) {
	product, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(amount), uint256.NewInt(uint64(feeBps)))
	if overflow {
		return 0, domain.ErrArithmeticOverflow
	}
	fee := new(uint256.Int).Div(product, uint256.NewInt(BpsDenominator))
	if !fee.IsUint64() {
		return 0, domain.ErrArithmeticOverflow
	}
	return fee.Uint64(), nil
}

// RouteSlippageBps returns (outAmount - threshold) * 10000 / outAmount, the
// worst-case shortfall a route permits relative to its quoted output.
func RouteSlippageBps(outAmount, threshold uint64) uint64 {
	if outAmount == 0 || threshold >= outAmount {
		return 0
	}
	diff := uint256.NewInt(outAmount - threshold)
	diff.Mul(diff, uint256.NewInt(BpsDenominator))
	diff.Div(diff, uint256.NewInt(outAmount))
	return diff.Uint64()
}

// CheckedAddU64 returns a + b or ErrArithmeticOverflow.
func CheckedAddU64(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, domain.ErrArithmeticOverflow
	}
	return a + b, nil
}

// CheckedSubU64 returns a - b or ErrArithmeticOverflow when b > a.
func CheckedSubU64(a, b uint64) (uint64, error) {
	if b > a {
		return 0, domain.ErrArithmeticOverflow
	}
	return a - b, nil
}

// CheckedIncU16 returns v + 1 or ErrArithmeticOverflow.
func CheckedIncU16(v uint16) (uint16, error) {
	if v == math.MaxUint16 {
		return 0, domain.ErrArithmeticOverflow
	}
	return v + 1, nil
}

// Spendable returns balance minus reserve, or 0 when the balance is at or below the reserve.
func Spendable(balance, reserve uint64) uint64 {
	if balance <= reserve {
		return 0
	}
	return balance - reserve
}
