package custody

import (
	"context"
	"errors"
	"testing"

	"keeper-vault/internal/domain"
	"keeper-vault/internal/solana"
	"keeper-vault/internal/solana/stub"
)

func key(b byte) solana.PublicKey {
	var pk solana.PublicKey
	pk[0] = b
	return pk
}

func TestLedger_PullPush(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	alice := key(1)

	l.Fund(domain.VaultPrimary, alice, 1_000)

	if err := l.Pull(ctx, domain.VaultPrimary, alice, 600); err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if got := l.Balance(domain.VaultPrimary, alice); got != 400 {
		t.Errorf("balance after pull = %d, want 400", got)
	}

	if err := l.Push(ctx, domain.VaultPrimary, alice, 100); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if got := l.Balance(domain.VaultPrimary, alice); got != 500 {
		t.Errorf("balance after push = %d, want 500", got)
	}

	transfers := l.Transfers()
	if len(transfers) != 2 || transfers[0].Direction != "in" || transfers[1].Direction != "out" {
		t.Errorf("unexpected transfers: %+v", transfers)
	}
}

func TestLedger_PullInsufficient(t *testing.T) {
	l := NewLedger()
	alice := key(1)
	l.Fund(domain.VaultSecondary, alice, 10)

	err := l.Pull(context.Background(), domain.VaultSecondary, alice, 11)
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if got := l.Balance(domain.VaultSecondary, alice); got != 10 {
		t.Errorf("balance changed on failed pull: %d", got)
	}
	if len(l.Transfers()) != 0 {
		t.Error("failed pull recorded a transfer")
	}
}

func TestLedger_AssetsAreIndependent(t *testing.T) {
	l := NewLedger()
	alice := key(1)
	l.Fund(domain.VaultPrimary, alice, 5)

	if got := l.Balance(domain.VaultFeePool, alice); got != 0 {
		t.Errorf("fee balance = %d, want 0", got)
	}
}

func TestLedger_FailNext(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	boom := errors.New("transfer rejected")
	l.FailNext(boom)

	if err := l.Push(ctx, domain.VaultFeePool, key(2), 1); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	if err := l.Push(ctx, domain.VaultFeePool, key(2), 1); err != nil {
		t.Fatalf("failure should apply once, got %v", err)
	}
}

func TestLedger_OpenAccounts(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(WithOpenAccounts())
	alice := key(1)

	if err := l.Pull(ctx, domain.VaultSecondary, alice, 250); err != nil {
		t.Fatalf("Pull from unfunded account failed: %v", err)
	}
	if got := l.Balance(domain.VaultSecondary, alice); got != 0 {
		t.Errorf("balance = %d, want 0", got)
	}
	if got := len(l.Transfers()); got != 1 {
		t.Errorf("transfers = %d, want 1", got)
	}
}

func TestLedger_NativeBalances(t *testing.T) {
	ctx := context.Background()
	rpc := stub.NewRPCClient()
	alice := key(1)
	rpc.Balances[alice] = 1_000_000

	l := NewLedger(WithOpenAccounts(), WithNativeBalances(rpc))

	if err := l.Pull(ctx, domain.VaultFeePool, alice, 2_000_000); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("Pull over chain balance: got %v, want ErrInsufficientBalance", err)
	}
	if err := l.Pull(ctx, domain.VaultFeePool, alice, 500_000); err != nil {
		t.Fatalf("Pull within chain balance failed: %v", err)
	}
	// Token vaults are not checked against lamports.
	if err := l.Pull(ctx, domain.VaultPrimary, alice, 5_000_000); err != nil {
		t.Fatalf("Pull primary failed: %v", err)
	}
}
