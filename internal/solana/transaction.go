package solana

import (
	"encoding/base64"
	"fmt"
)

const signatureLength = 64

// SignSerializedTransaction places signer's signature into its slot of a
// serialized (legacy or versioned) transaction and returns the result.
// Layout: compact-u16 signature count | signatures | message.
func SignSerializedTransaction(raw []byte, signer *Keypair) ([]byte, error) {
	numSigs, n, err := decodeCompactU16(raw)
	if err != nil {
		return nil, fmt.Errorf("decode signature count: %w", err)
	}
	sigStart := n
	msgStart := sigStart + numSigs*signatureLength
	if msgStart > len(raw) {
		return nil, fmt.Errorf("transaction truncated: %d signatures need %d bytes", numSigs, msgStart)
	}
	message := raw[msgStart:]

	keys, required, err := messageSigners(message)
	if err != nil {
		return nil, err
	}
	if required != numSigs {
		return nil, fmt.Errorf("message requires %d signatures, transaction has %d slots", required, numSigs)
	}

	slot := -1
	for i := 0; i < required && i < len(keys); i++ {
		if keys[i] == signer.PublicKey {
			slot = i
			break
		}
	}
	if slot < 0 {
		return nil, fmt.Errorf("signer %s is not a required signer", signer.PublicKey)
	}

	out := make([]byte, len(raw))
	copy(out, raw)
	sig := signer.Sign(message)
	copy(out[sigStart+slot*signatureLength:], sig)
	return out, nil
}

// SignBase64Transaction decodes, signs and re-encodes a base64 transaction.
func SignBase64Transaction(encoded string, signer *Keypair) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode base64 transaction: %w", err)
	}
	signed, err := SignSerializedTransaction(raw, signer)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(signed), nil
}

// messageSigners returns the static account keys and the required signature count.
func messageSigners(message []byte) ([]PublicKey, int, error) {
	if len(message) < 4 {
		return nil, 0, fmt.Errorf("message too short: %d", len(message))
	}

	offset := 0
	// Versioned messages set the high bit of the first byte.
	if message[0]&0x80 != 0 {
		offset = 1
	}
	required := int(message[offset])
	offset += 3 // header: required sigs, readonly signed, readonly unsigned

	count, n, err := decodeCompactU16(message[offset:])
	if err != nil {
		return nil, 0, fmt.Errorf("decode account key count: %w", err)
	}
	offset += n
	if offset+count*PublicKeyLength > len(message) {
		return nil, 0, fmt.Errorf("message truncated: %d account keys", count)
	}

	keys := make([]PublicKey, count)
	for i := range keys {
		copy(keys[i][:], message[offset:offset+PublicKeyLength])
		offset += PublicKeyLength
	}
	return keys, required, nil
}

func decodeCompactU16(b []byte) (int, int, error) {
	val := 0
	for size := 0; size < 3; size++ {
		if size >= len(b) {
			return 0, 0, fmt.Errorf("compact-u16 truncated")
		}
		elem := int(b[size])
		val |= (elem & 0x7f) << (7 * size)
		if elem&0x80 == 0 {
			return val, size + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("compact-u16 too long")
}

func encodeCompactU16(v int) []byte {
	var out []byte
	for {
		elem := v & 0x7f
		v >>= 7
		if v == 0 {
			out = append(out, byte(elem))
			return out
		}
		out = append(out, byte(elem|0x80))
	}
}
