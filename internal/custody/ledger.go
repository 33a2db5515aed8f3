package custody

import (
	"context"
	"fmt"
	"sync"

	"keeper-vault/internal/domain"
	"keeper-vault/internal/policy"
	"keeper-vault/internal/solana"
)

// Transfer is one movement recorded by the Ledger.
type Transfer struct {
	Asset     domain.VaultClass
	Account   solana.PublicKey
	Amount    uint64
	Direction string // "in" (pull) or "out" (push)
}

// Ledger is an in-memory Custodian tracking external balances.
// Thread-safe.
type Ledger struct {
	open   bool
	native solana.RPCClient

	mu        sync.Mutex
	balances  map[domain.VaultClass]map[solana.PublicKey]uint64
	transfers []Transfer
	failNext  error
}

// LedgerOption configures Ledger.
type LedgerOption func(*Ledger)

// WithOpenAccounts lets Pull draw on external accounts that were never
// funded. The transfer is still recorded.
func WithOpenAccounts() LedgerOption {
	return func(l *Ledger) {
		l.open = true
	}
}

// WithNativeBalances makes fee pool pulls check the sender's lamport
// balance on chain first.
func WithNativeBalances(rpc solana.RPCClient) LedgerOption {
	return func(l *Ledger) {
		l.native = rpc
	}
}

// NewLedger creates an empty ledger.
func NewLedger(opts ...LedgerOption) *Ledger {
	l := &Ledger{
		balances: make(map[domain.VaultClass]map[solana.PublicKey]uint64),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Fund credits an external account, as if it received value from outside the system.
func (l *Ledger) Fund(asset domain.VaultClass, account solana.PublicKey, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.account(asset)[account] += amount
}

// Balance returns the external balance of account.
func (l *Ledger) Balance(asset domain.VaultClass, account solana.PublicKey) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[asset][account]
}

// Transfers returns a copy of all recorded movements in order.
func (l *Ledger) Transfers() []Transfer {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Transfer, len(l.transfers))
	copy(out, l.transfers)
	return out
}

// FailNext makes the next Pull or Push return err without moving value.
func (l *Ledger) FailNext(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failNext = err
}

// Pull debits the external account.
func (l *Ledger) Pull(ctx context.Context, asset domain.VaultClass, from solana.PublicKey, amount uint64) error {
	if l.native != nil && asset == domain.VaultFeePool {
		lamports, err := l.native.GetBalance(ctx, from)
		if err != nil {
			return fmt.Errorf("get balance: %w", err)
		}
		if lamports < amount {
			return fmt.Errorf("%w: %s holds %d lamports, need %d",
				domain.ErrInsufficientBalance, from.Short(), lamports, amount)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.takeFailure(); err != nil {
		return err
	}
	bal := l.account(asset)[from]
	next, err := policy.CheckedSubU64(bal, amount)
	if err != nil {
		if !l.open {
			return fmt.Errorf("%w: %s holds %d %s, need %d",
				domain.ErrInsufficientBalance, from.Short(), bal, asset, amount)
		}
		next = 0
	}
	l.balances[asset][from] = next
	l.transfers = append(l.transfers, Transfer{Asset: asset, Account: from, Amount: amount, Direction: "in"})
	return nil
}

// Push credits the external account.
func (l *Ledger) Push(_ context.Context, asset domain.VaultClass, to solana.PublicKey, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.takeFailure(); err != nil {
		return err
	}
	next, err := policy.CheckedAddU64(l.account(asset)[to], amount)
	if err != nil {
		return err
	}
	l.balances[asset][to] = next
	l.transfers = append(l.transfers, Transfer{Asset: asset, Account: to, Amount: amount, Direction: "out"})
	return nil
}

func (l *Ledger) account(asset domain.VaultClass) map[solana.PublicKey]uint64 {
	m, ok := l.balances[asset]
	if !ok {
		m = make(map[solana.PublicKey]uint64)
		l.balances[asset] = m
	}
	return m
}

func (l *Ledger) takeFailure() error {
	err := l.failNext
	l.failNext = nil
	return err
}

var _ Custodian = (*Ledger)(nil)
