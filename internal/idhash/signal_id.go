package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"keeper-vault/internal/domain"
	"keeper-vault/internal/solana"
)

// ComputeSignalID computes a deterministic signal_id using SHA256.
// Formula: SHA256(source|owner|signal_type|tick)
// tick is the scheduled Unix second for cron signals or the Kafka offset.
// Returns hex-encoded hash (64 characters).
func ComputeSignalID(
	source string,
	owner solana.PublicKey,
	signalType domain.SignalType,
	tick int64,
) string {
	data := fmt.Sprintf("%s|%s|%d|%d",
		source,
		owner.String(),
		uint8(signalType),
		tick,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
