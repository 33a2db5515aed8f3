package domain

import "keeper-vault/internal/solana"

// ExecutionReceipt is the result of a successful signal execution.
// Corresponds to executions table in PostgreSQL.
type ExecutionReceipt struct {
	ExecutionID  string           `json:"execution_id"` // SHA256(owner|nonce)
	User         solana.PublicKey `json:"user"`
	Keeper       solana.PublicKey `json:"keeper"`
	SignalType   SignalType       `json:"signal_type"`
	AmountIn     uint64           `json:"amount_in"`
	AmountOut    uint64           `json:"amount_out"`
	Fee          uint64           `json:"fee"`
	RelayerPaid  uint64           `json:"relayer_paid"` // 0 when the refund was skipped
	Nonce        uint64           `json:"nonce"`
	Timestamp    int64            `json:"timestamp"`              // Unix seconds
	VenueTxID    string           `json:"venue_tx_id,omitempty"` // venue transaction signature, if any
	MinAmountOut uint64           `json:"min_amount_out"`
}
