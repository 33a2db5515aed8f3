package solana

import (
	"bytes"
	"fmt"

	"github.com/mr-tron/base58"
)

// PublicKeyLength is the size of an ed25519 public key / account address.
const PublicKeyLength = 32

// PublicKey is a Solana account address.
type PublicKey [PublicKeyLength]byte

// Well-known addresses.
var (
	SystemProgramID = MustParsePublicKey("11111111111111111111111111111111")
	TokenProgramID  = MustParsePublicKey("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	WrappedSOLMint  = MustParsePublicKey("So11111111111111111111111111111111111111112")
	USDCMint        = MustParsePublicKey("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
)

// ParsePublicKey decodes a base58 address.
func ParsePublicKey(s string) (PublicKey, error) {
	var pk PublicKey
	if s == "" {
		return pk, fmt.Errorf("empty public key")
	}
	decoded, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("decode base58 public key %q: %w", s, err)
	}
	if len(decoded) != PublicKeyLength {
		return pk, fmt.Errorf("public key %q has %d bytes, want %d", s, len(decoded), PublicKeyLength)
	}
	copy(pk[:], decoded)
	return pk, nil
}

// MustParsePublicKey is like ParsePublicKey but panics on error.
func MustParsePublicKey(s string) PublicKey {
	pk, err := ParsePublicKey(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// PublicKeyFromBytes copies b into a PublicKey.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var pk PublicKey
	if len(b) != PublicKeyLength {
		return pk, fmt.Errorf("public key has %d bytes, want %d", len(b), PublicKeyLength)
	}
	copy(pk[:], b)
	return pk, nil
}

// String returns the base58 form.
func (pk PublicKey) String() string {
	return base58.Encode(pk[:])
}

// IsZero reports whether pk is the all-zero key (the default / empty slot value).
func (pk PublicKey) IsZero() bool {
	return pk == PublicKey{}
}

// Equals compares two keys.
func (pk PublicKey) Equals(other PublicKey) bool {
	return bytes.Equal(pk[:], other[:])
}

// Short returns the first 8 base58 characters, for log lines.
func (pk PublicKey) Short() string {
	s := pk.String()
	if len(s) <= 8 {
		return s
	}
	return s[:8]
}

// MarshalText implements encoding.TextMarshaler.
func (pk PublicKey) MarshalText() ([]byte, error) {
	return []byte(pk.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (pk *PublicKey) UnmarshalText(text []byte) error {
	parsed, err := ParsePublicKey(string(text))
	if err != nil {
		return err
	}
	*pk = parsed
	return nil
}
