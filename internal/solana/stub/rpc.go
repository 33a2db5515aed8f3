package stub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"keeper-vault/internal/solana"
)

// ErrNotFound is returned when a transaction is not found.
var ErrNotFound = errors.New("not found")

// RPCClient implements solana.RPCClient for testing.
// Sent transactions are confirmed immediately and resolved against Transactions.
type RPCClient struct {
	mu sync.Mutex

	RentReserve  uint64
	Balances     map[solana.PublicKey]uint64
	Transactions map[string]*solana.Transaction
	Statuses     map[string]*solana.SignatureStatus

	// BlockHeight is reported by GetBlockHeight, which then advances it by BlockStep.
	BlockHeight uint64
	BlockStep   uint64

	// NextSignature is returned by SendTransaction; Sent records every submitted payload.
	NextSignature string
	SendErr       error
	Sent          []string
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		RentReserve:  890880,
		Balances:     make(map[solana.PublicKey]uint64),
		Transactions: make(map[string]*solana.Transaction),
		Statuses:     make(map[string]*solana.SignatureStatus),
	}
}

// GetMinimumBalanceForRentExemption returns the configured reserve.
func (c *RPCClient) GetMinimumBalanceForRentExemption(_ context.Context, _ uint64) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.RentReserve, nil
}

// GetBalance returns the stubbed balance of pubkey.
func (c *RPCClient) GetBalance(_ context.Context, pubkey solana.PublicKey) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Balances[pubkey], nil
}

// SendTransaction records signedTx and returns NextSignature.
func (c *RPCClient) SendTransaction(_ context.Context, signedTx string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.SendErr != nil {
		return "", c.SendErr
	}
	c.Sent = append(c.Sent, signedTx)

	sig := c.NextSignature
	if sig == "" {
		sig = fmt.Sprintf("stub-sig-%d", len(c.Sent))
	}
	if _, ok := c.Statuses[sig]; !ok {
		c.Statuses[sig] = &solana.SignatureStatus{ConfirmationStatus: solana.CommitmentConfirmed}
	}
	return sig, nil
}

// GetBlockHeight returns BlockHeight and advances it.
func (c *RPCClient) GetBlockHeight(_ context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.BlockHeight
	c.BlockHeight += c.BlockStep
	return h, nil
}

// GetSignatureStatuses returns stored statuses, nil for unknown signatures.
func (c *RPCClient) GetSignatureStatuses(_ context.Context, signatures []string) ([]*solana.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*solana.SignatureStatus, len(signatures))
	for i, sig := range signatures {
		if st, ok := c.Statuses[sig]; ok {
			cp := *st
			out[i] = &cp
		}
	}
	return out, nil
}

// GetTransaction retrieves a transaction by signature from the stub store.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, ok := c.Transactions[signature]
	if !ok {
		return nil, ErrNotFound
	}
	return tx, nil
}

// AddTransaction adds a transaction to the stub store.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Transactions[tx.Signature] = tx
}

var _ solana.RPCClient = (*RPCClient)(nil)
