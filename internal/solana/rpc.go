package solana

import "context"

// RPCClient is the subset of the Solana JSON-RPC API the service relies on.
type RPCClient interface {
	// GetMinimumBalanceForRentExemption returns the rent-exempt reserve for an account of dataLen bytes.
	GetMinimumBalanceForRentExemption(ctx context.Context, dataLen uint64) (uint64, error)

	// GetBalance returns the lamport balance of an account.
	GetBalance(ctx context.Context, pubkey PublicKey) (uint64, error)

	// SendTransaction submits a signed base64 transaction and returns its signature.
	SendTransaction(ctx context.Context, signedTx string) (string, error)

	// GetBlockHeight returns the current block height at confirmed commitment.
	GetBlockHeight(ctx context.Context) (uint64, error)

	// GetSignatureStatuses returns one status per signature (nil when unknown).
	GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error)

	// GetTransaction retrieves a confirmed transaction. Returns nil, nil if not found.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)
}

// Commitment levels reported by getSignatureStatuses.
const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// SignatureStatus from getSignatureStatuses.
type SignatureStatus struct {
	Slot               int64
	Confirmations      *int64
	Err                interface{}
	ConfirmationStatus string
}

// Transaction represents a confirmed Solana transaction.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err               interface{}
	Fee               uint64
	LogMessages       []string
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
}

// TokenBalance is a token account balance snapshot inside transaction meta.
type TokenBalance struct {
	AccountIndex int
	Mint         string
	Owner        string
	Amount       uint64 // raw base units
	Decimals     int
}

// TokenBalanceDelta returns post minus pre balance of mint held by owner,
// summed across all of owner's token accounts. Negative deltas are returned as 0, false.
func (m *TransactionMeta) TokenBalanceDelta(owner PublicKey, mint PublicKey) (uint64, bool) {
	if m == nil {
		return 0, false
	}
	ownerStr, mintStr := owner.String(), mint.String()

	var pre, post uint64
	for _, b := range m.PreTokenBalances {
		if b.Owner == ownerStr && b.Mint == mintStr {
			pre += b.Amount
		}
	}
	for _, b := range m.PostTokenBalances {
		if b.Owner == ownerStr && b.Mint == mintStr {
			post += b.Amount
		}
	}
	if post < pre {
		return 0, false
	}
	return post - pre, true
}
