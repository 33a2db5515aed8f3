// Package custody defines the external value-transfer primitives the engine
// moves funds with, and an in-memory ledger implementing them.
package custody

import (
	"context"

	"keeper-vault/internal/domain"
	"keeper-vault/internal/solana"
)

// Custodian moves value between externally owned accounts and program vaults.
// Each call moves exactly amount or fails without effect.
type Custodian interface {
	// Pull moves amount of asset from the external account into program custody.
	Pull(ctx context.Context, asset domain.VaultClass, from solana.PublicKey, amount uint64) error

	// Push moves amount of asset from program custody to the external account.
	Push(ctx context.Context, asset domain.VaultClass, to solana.PublicKey, amount uint64) error
}
