// Package keeper turns scheduled or streamed trade signals into execute calls.
package keeper

import (
	"context"
	"encoding/json"
	"fmt"

	"keeper-vault/internal/domain"
	"keeper-vault/internal/idhash"
	"keeper-vault/internal/solana"
)

// Signal is one request to trade a user's vault in one direction.
type Signal struct {
	ID        string            `json:"id,omitempty"`
	Owner     solana.PublicKey  `json:"owner"`
	Type      domain.SignalType `json:"signal_type"`
	Timestamp int64             `json:"timestamp,omitempty"` // Unix seconds

	Source string `json:"-"` // "cron" | "kafka"
	Offset int64  `json:"-"` // Kafka offset or cron tick
}

// ensureID fills ID from the source position when the producer left it empty.
func (s *Signal) ensureID() {
	if s.ID == "" {
		s.ID = idhash.ComputeSignalID(s.Source, s.Owner, s.Type, s.Offset)
	}
}

// Validate checks the fields a producer must set.
func (s *Signal) Validate() error {
	if s.Owner.IsZero() {
		return fmt.Errorf("%w: signal owner is empty", domain.ErrInvalidParameter)
	}
	if !s.Type.Valid() {
		return fmt.Errorf("%w: %d", domain.ErrInvalidSignalType, uint8(s.Type))
	}
	return nil
}

// DecodeSignal parses a JSON signal message.
func DecodeSignal(data []byte) (*Signal, error) {
	var sig Signal
	if err := json.Unmarshal(data, &sig); err != nil {
		return nil, fmt.Errorf("unmarshal signal: %w", err)
	}
	if err := sig.Validate(); err != nil {
		return nil, err
	}
	return &sig, nil
}

// Handler processes one signal.
type Handler func(ctx context.Context, sig *Signal) error

// Source delivers signals to a handler until ctx is done.
type Source interface {
	Name() string
	Run(ctx context.Context, handle Handler) error
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
