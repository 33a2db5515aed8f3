package venue

import (
	"context"
	"testing"

	"keeper-vault/internal/domain"
	"keeper-vault/internal/solana"
)

func TestFunc(t *testing.T) {
	v := Func(func(_ context.Context, req SwapRequest) (*SwapResult, error) {
		return &SwapResult{AmountOut: req.MinAmountOut + 1}, nil
	})

	res, err := v.Swap(context.Background(), SwapRequest{MinAmountOut: 10})
	if err != nil {
		t.Fatalf("Swap failed: %v", err)
	}
	if res.AmountOut != 11 {
		t.Errorf("AmountOut = %d, want 11", res.AmountOut)
	}
}

func TestPairMints(t *testing.T) {
	in, out := DefaultPair.Mints(domain.SignalPrimaryToSecondary)
	if in != solana.WrappedSOLMint || out != solana.USDCMint {
		t.Errorf("primary->secondary mints = %s, %s", in, out)
	}

	in, out = DefaultPair.Mints(domain.SignalSecondaryToPrimary)
	if in != solana.USDCMint || out != solana.WrappedSOLMint {
		t.Errorf("secondary->primary mints = %s, %s", in, out)
	}

	if _, ok := DefaultPair.Mint(domain.VaultFeePool); ok {
		t.Error("fee pool should have no mint")
	}
	if m, ok := DefaultPair.Mint(domain.VaultSecondary); !ok || m != solana.USDCMint {
		t.Errorf("secondary mint = %s, %v", m, ok)
	}
}
