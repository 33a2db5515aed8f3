package solana

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTransactionFailed is returned when a submitted transaction lands with an error.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrBlockhashExpired is returned when the cluster moves past the
	// transaction's last valid block height before it confirms. Such a
	// transaction can no longer land.
	ErrBlockhashExpired = errors.New("blockhash expired")
)

// WaitForConfirmation polls getSignatureStatuses until signature reaches
// confirmed (or finalized) commitment, fails, expires or ctx is done.
// A zero lastValidBlockHeight disables the expiry check.
func WaitForConfirmation(ctx context.Context, rpc RPCClient, signature string, lastValidBlockHeight uint64, pollInterval time.Duration) (*SignatureStatus, error) {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		statuses, err := rpc.GetSignatureStatuses(ctx, []string{signature})
		if err != nil {
			return nil, fmt.Errorf("get signature status: %w", err)
		}
		if len(statuses) > 0 && statuses[0] != nil {
			st := statuses[0]
			if st.Err != nil {
				return st, fmt.Errorf("%w: %s: %v", ErrTransactionFailed, signature, st.Err)
			}
			if st.ConfirmationStatus == CommitmentConfirmed || st.ConfirmationStatus == CommitmentFinalized {
				return st, nil
			}
		}

		if lastValidBlockHeight > 0 {
			height, err := rpc.GetBlockHeight(ctx)
			if err != nil {
				return nil, fmt.Errorf("get block height: %w", err)
			}
			if height > lastValidBlockHeight {
				return nil, fmt.Errorf("%w: %s at height %d, valid until %d", ErrBlockhashExpired, signature, height, lastValidBlockHeight)
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
