package storage

import "context"

// SignalProgress is the last signal a keeper source processed.
type SignalProgress struct {
	Source    string // "cron" | "kafka"
	Offset    int64  // Kafka offset or cron tick (Unix seconds)
	SignalID  string // last processed signal id
	UpdatedAt int64  // Unix milliseconds
}

// SignalProgressStore persists keeper progress so a restarted keeper neither
// replays nor double-executes signals.
type SignalProgressStore interface {
	// GetLastProcessed returns the progress of source.
	// Returns ErrNotFound if no progress has been saved yet.
	GetLastProcessed(ctx context.Context, source string) (*SignalProgress, error)

	// SetLastProcessed saves progress for its source.
	SetLastProcessed(ctx context.Context, progress *SignalProgress) error

	// IsSignalSeen checks if a signal id has been processed.
	IsSignalSeen(ctx context.Context, signalID string) (bool, error)

	// MarkSignalSeen records that a signal id has been processed.
	MarkSignalSeen(ctx context.Context, signalID string) error
}
