package solana

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
)

// Keypair is an ed25519 signing key with its address.
type Keypair struct {
	PublicKey  PublicKey
	PrivateKey ed25519.PrivateKey
}

// NewKeypairFromSeed derives a keypair from a 32-byte seed.
func NewKeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed has %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	var pk PublicKey
	copy(pk[:], priv.Public().(ed25519.PublicKey))
	return &Keypair{PublicKey: pk, PrivateKey: priv}, nil
}

// LoadKeypairFile reads a keypair in the solana-keygen JSON format
// (a 64-element byte array: seed followed by public key).
func LoadKeypairFile(path string) (*Keypair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair file: %w", err)
	}

	var raw []byte
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return nil, fmt.Errorf("parse keypair file: %w", err)
	}
	if len(ints) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("keypair file has %d bytes, want %d", len(ints), ed25519.PrivateKeySize)
	}
	raw = make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("keypair byte %d out of range: %d", i, v)
		}
		raw[i] = byte(v)
	}

	kp, err := NewKeypairFromSeed(raw[:ed25519.SeedSize])
	if err != nil {
		return nil, err
	}
	if string(kp.PublicKey[:]) != string(raw[ed25519.SeedSize:]) {
		return nil, fmt.Errorf("keypair file public key does not match seed")
	}
	return kp, nil
}

// Sign signs message with the private key.
func (k *Keypair) Sign(message []byte) []byte {
	return ed25519.Sign(k.PrivateKey, message)
}
