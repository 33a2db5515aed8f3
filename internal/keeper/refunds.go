package keeper

import (
	"context"
	"log"
	"sync"

	"keeper-vault/internal/domain"
	"keeper-vault/internal/solana"
)

// RefundTally sums the relayer refunds paid to one keeper, read from a
// notification stream such as events.Subscribe.
type RefundTally struct {
	keeper solana.PublicKey
	logger *log.Logger

	mu       sync.Mutex
	count    int
	lamports uint64
}

// NewRefundTally creates a tally for keeper.
func NewRefundTally(keeper solana.PublicKey, logger *log.Logger) *RefundTally {
	if logger == nil {
		logger = log.Default()
	}
	return &RefundTally{keeper: keeper, logger: logger}
}

// Consume reads events until the channel closes or ctx is done.
func (t *RefundTally) Consume(ctx context.Context, events <-chan *domain.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			t.observe(ev)
		}
	}
}

func (t *RefundTally) observe(ev *domain.Event) {
	if ev.Kind != domain.EventRelayerRefunded || ev.Keeper != t.keeper {
		return
	}
	t.mu.Lock()
	t.count++
	t.lamports += ev.Amount
	count, total := t.count, t.lamports
	t.mu.Unlock()
	t.logger.Printf("refund received owner=%s amount=%d (total %d over %d executions)",
		ev.User.Short(), ev.Amount, total, count)
}

// Total returns the number of refunds and lamports received so far.
func (t *RefundTally) Total() (int, uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count, t.lamports
}
