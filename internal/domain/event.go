package domain

import "keeper-vault/internal/solana"

// EventKind classifies a notification record.
type EventKind string

const (
	EventSignalExecuted  EventKind = "signal_executed"
	EventDepositMade     EventKind = "deposit_made"
	EventWithdrawalMade  EventKind = "withdrawal_made"
	EventFeeCollected    EventKind = "fee_collected"
	EventRelayerRefunded EventKind = "relayer_refunded"
)

// VaultTypeInitialization tags the zero-amount deposit notification emitted at bootstrap.
const VaultTypeInitialization = "initialization"

// Event is a structured notification emitted by every mutating operation.
// Fields not relevant to Kind are zero.
// Corresponds to vault_events table in ClickHouse.
type Event struct {
	ID         string           `json:"id"`   // uuid
	Kind       EventKind        `json:"kind"` // signal_executed | deposit_made | ...
	User       solana.PublicKey `json:"user"`
	VaultType  string           `json:"vault_type,omitempty"` // sol | usdc | fee | initialization
	Keeper     solana.PublicKey `json:"keeper"`               // relayer_refunded, signal_executed
	Recipient  solana.PublicKey `json:"recipient"`            // fee_collected
	SignalType SignalType       `json:"signal_type"`          // signal_executed
	Amount     uint64           `json:"amount"`               // deposit/withdrawal/fee/refund amount
	AmountIn   uint64           `json:"amount_in"`            // signal_executed
	AmountOut  uint64           `json:"amount_out"`           // signal_executed
	Fee        uint64           `json:"fee"`                  // signal_executed
	Nonce      uint64           `json:"nonce"`                // signal_executed
	Timestamp  int64            `json:"timestamp"`            // Unix seconds
}
