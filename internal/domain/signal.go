package domain

import "fmt"

// SignalType is the direction of a trade signal.
type SignalType uint8

const (
	SignalPrimaryToSecondary SignalType = 0 // SOL -> USDC
	SignalSecondaryToPrimary SignalType = 1 // USDC -> SOL
)

// Valid reports whether s is one of the two recognized directions.
func (s SignalType) Valid() bool {
	return s == SignalPrimaryToSecondary || s == SignalSecondaryToPrimary
}

// SourceVault returns the vault debited by the signal.
func (s SignalType) SourceVault() VaultClass {
	if s == SignalPrimaryToSecondary {
		return VaultPrimary
	}
	return VaultSecondary
}

// DestinationVault returns the vault credited with swap output.
func (s SignalType) DestinationVault() VaultClass {
	if s == SignalPrimaryToSecondary {
		return VaultSecondary
	}
	return VaultPrimary
}

// String returns the string representation of SignalType.
func (s SignalType) String() string {
	switch s {
	case SignalPrimaryToSecondary:
		return "sol_to_usdc"
	case SignalSecondaryToPrimary:
		return "usdc_to_sol"
	}
	return fmt.Sprintf("signal(%d)", uint8(s))
}

// VaultClass identifies one of a user's three value-bearing accounts.
type VaultClass string

const (
	VaultPrimary   VaultClass = "sol"
	VaultSecondary VaultClass = "usdc"
	VaultFeePool   VaultClass = "fee"
)

// ParseVaultClass validates a vault class name.
func ParseVaultClass(s string) (VaultClass, error) {
	switch VaultClass(s) {
	case VaultPrimary, VaultSecondary, VaultFeePool:
		return VaultClass(s), nil
	}
	return "", fmt.Errorf("%w: unknown vault class %q", ErrInvalidParameter, s)
}

// PDASeed returns the address derivation seed for the vault.
func (c VaultClass) PDASeed() string {
	switch c {
	case VaultPrimary:
		return "sol_vault"
	case VaultSecondary:
		return "usdc_vault"
	case VaultFeePool:
		return "fee_pool"
	}
	return ""
}

// ProfileSeed is the address derivation seed for the policy record.
const ProfileSeed = "profile"
