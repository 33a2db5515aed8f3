package domain

import (
	"encoding/json"

	"keeper-vault/internal/solana"
)

// KeeperList is a fixed-capacity allowlist. Slots at or beyond Count may hold
// stale keys and are never consulted.
type KeeperList struct {
	Slots [MaxKeepers]solana.PublicKey
	Count uint8
}

// NewKeeperList builds a list from keys, silently dropping entries beyond MaxKeepers.
func NewKeeperList(keys []solana.PublicKey) KeeperList {
	var kl KeeperList
	kl.Replace(keys)
	return kl
}

// Replace overwrites the active entries with keys, truncated to capacity.
// Slots past the new count keep their previous contents.
func (kl *KeeperList) Replace(keys []solana.PublicKey) {
	n := len(keys)
	if n > MaxKeepers {
		n = MaxKeepers
	}
	copy(kl.Slots[:n], keys[:n])
	kl.Count = uint8(n)
}

// Contains scans the first Count slots for an exact match.
func (kl KeeperList) Contains(key solana.PublicKey) bool {
	count := int(kl.Count)
	if count > MaxKeepers {
		count = MaxKeepers
	}
	for i := 0; i < count; i++ {
		if kl.Slots[i] == key {
			return true
		}
	}
	return false
}

// Active returns a copy of the active entries.
func (kl KeeperList) Active() []solana.PublicKey {
	count := int(kl.Count)
	if count > MaxKeepers {
		count = MaxKeepers
	}
	out := make([]solana.PublicKey, count)
	copy(out, kl.Slots[:count])
	return out
}

// MarshalJSON renders the active entries as a base58 string array.
func (kl KeeperList) MarshalJSON() ([]byte, error) {
	return json.Marshal(kl.Active())
}

// UnmarshalJSON accepts a base58 string array.
func (kl *KeeperList) UnmarshalJSON(data []byte) error {
	var keys []solana.PublicKey
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	*kl = NewKeeperList(keys)
	return nil
}
