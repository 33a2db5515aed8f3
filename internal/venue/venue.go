// Package venue defines the external swap venue the engine hands trades to.
package venue

import (
	"context"
	"errors"

	"keeper-vault/internal/domain"
	"keeper-vault/internal/solana"
)

// ErrNoFill is returned by a venue that could not execute the swap at all.
var ErrNoFill = errors.New("venue returned no fill")

// SwapRequest is the input handed to a venue for one execution.
type SwapRequest struct {
	Owner          solana.PublicKey
	Signal         domain.SignalType
	InputMint      solana.PublicKey
	OutputMint     solana.PublicKey
	AmountIn       uint64
	MinAmountOut   uint64
	MaxSlippageBps uint16
	Route          []byte // opaque route hint from the keeper, may be empty
}

// SwapResult is a completed swap.
type SwapResult struct {
	AmountOut uint64
	Signature string // venue transaction id, empty for off-chain fills
}

// Venue converts one asset to another. It either returns a result or fails;
// a failed swap moves nothing.
type Venue interface {
	Swap(ctx context.Context, req SwapRequest) (*SwapResult, error)
}

// Func adapts a function to the Venue interface.
type Func func(ctx context.Context, req SwapRequest) (*SwapResult, error)

// Swap calls f.
func (f Func) Swap(ctx context.Context, req SwapRequest) (*SwapResult, error) {
	return f(ctx, req)
}

// Pair maps vault classes to token mints.
type Pair struct {
	Primary   solana.PublicKey
	Secondary solana.PublicKey
}

// DefaultPair is wrapped SOL / USDC on mainnet.
var DefaultPair = Pair{Primary: solana.WrappedSOLMint, Secondary: solana.USDCMint}

// Mints returns the input and output mints for a signal.
func (p Pair) Mints(signal domain.SignalType) (in, out solana.PublicKey) {
	if signal == domain.SignalPrimaryToSecondary {
		return p.Primary, p.Secondary
	}
	return p.Secondary, p.Primary
}

// Mint returns the mint of a token vault class. The fee pool has no mint.
func (p Pair) Mint(class domain.VaultClass) (solana.PublicKey, bool) {
	switch class {
	case domain.VaultPrimary:
		return p.Primary, true
	case domain.VaultSecondary:
		return p.Secondary, true
	}
	return solana.PublicKey{}, false
}
