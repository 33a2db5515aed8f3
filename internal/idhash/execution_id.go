package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"keeper-vault/internal/solana"
)

// ComputeExecutionID computes a deterministic execution_id using SHA256.
// Formula: SHA256(owner|nonce)
// Returns hex-encoded hash (64 characters).
func ComputeExecutionID(owner solana.PublicKey, nonce uint64) string {
	data := fmt.Sprintf("%s|%d", owner.String(), nonce)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
