package jupiter

import (
	"context"
	"fmt"
	"log"
	"time"

	"keeper-vault/internal/solana"
	"keeper-vault/internal/venue"
)

// DefaultPollInterval is how often LiveVenue polls for confirmation.
const DefaultPollInterval = 500 * time.Millisecond

// QuoteVenue fills swaps at a fresh quote's output without submitting anything.
// It backs paper trading and staging environments.
type QuoteVenue struct {
	client *Client
}

// NewQuoteVenue creates a quote-only venue.
func NewQuoteVenue(client *Client) *QuoteVenue {
	return &QuoteVenue{client: client}
}

// Swap quotes req and reports the quoted output as filled.
// A route hint is only checked for consistency; keepers are not trusted to price fills.
func (v *QuoteVenue) Swap(ctx context.Context, req venue.SwapRequest) (*venue.SwapResult, error) {
	if len(req.Route) > 0 {
		hint, err := ParseQuote(req.Route)
		if err != nil {
			return nil, err
		}
		if err := CheckRoute(hint, req.InputMint, req.OutputMint, req.AmountIn); err != nil {
			return nil, err
		}
	}

	quote, err := v.client.GetQuote(ctx, req.InputMint, req.OutputMint, req.AmountIn, req.MaxSlippageBps)
	if err != nil {
		return nil, err
	}
	if err := ValidateRoute(quote, req.MaxSlippageBps); err != nil {
		return nil, err
	}
	_, out, _, err := quote.Amounts()
	if err != nil {
		return nil, err
	}
	return &venue.SwapResult{AmountOut: out}, nil
}

// LiveVenue executes swaps on chain: quote, build, sign, send, confirm,
// then reads the actual output from the confirmed transaction's token balances.
type LiveVenue struct {
	client       *Client
	rpc          solana.RPCClient
	signer       *solana.Keypair
	PollInterval time.Duration
	logger       *log.Logger
}

// NewLiveVenue creates an on-chain venue signing with signer, the vault authority.
func NewLiveVenue(client *Client, rpc solana.RPCClient, signer *solana.Keypair, logger *log.Logger) *LiveVenue {
	if logger == nil {
		logger = log.Default()
	}
	return &LiveVenue{
		client:       client,
		rpc:          rpc,
		signer:       signer,
		PollInterval: DefaultPollInterval,
		logger:       logger,
	}
}

// Swap runs the swap and returns the output credited to the signer.
func (v *LiveVenue) Swap(ctx context.Context, req venue.SwapRequest) (*venue.SwapResult, error) {
	quote, err := v.resolveQuote(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := ValidateRoute(quote, req.MaxSlippageBps); err != nil {
		return nil, err
	}

	swap, err := v.client.BuildSwap(ctx, quote, v.signer.PublicKey, false)
	if err != nil {
		return nil, err
	}
	signed, err := solana.SignBase64Transaction(swap.SwapTransaction, v.signer)
	if err != nil {
		return nil, fmt.Errorf("sign swap: %w", err)
	}

	sig, err := v.rpc.SendTransaction(ctx, signed)
	if err != nil {
		return nil, fmt.Errorf("send swap: %w", err)
	}
	v.logger.Printf("swap sent owner=%s sig=%s", req.Owner.Short(), sig)

	if _, err := solana.WaitForConfirmation(ctx, v.rpc, sig, swap.LastValidBlockHeight, v.PollInterval); err != nil {
		return nil, fmt.Errorf("confirm swap %s: %w", sig, err)
	}

	tx, err := v.rpc.GetTransaction(ctx, sig)
	if err != nil {
		return nil, fmt.Errorf("get swap transaction %s: %w", sig, err)
	}
	if tx == nil {
		return nil, fmt.Errorf("swap transaction %s not found", sig)
	}
	out, ok := tx.Meta.TokenBalanceDelta(v.signer.PublicKey, req.OutputMint)
	if !ok || out == 0 {
		return nil, fmt.Errorf("%w: %s credited no %s", venue.ErrNoFill, sig, req.OutputMint.Short())
	}
	return &venue.SwapResult{AmountOut: out, Signature: sig}, nil
}

func (v *LiveVenue) resolveQuote(ctx context.Context, req venue.SwapRequest) (*Quote, error) {
	if len(req.Route) == 0 {
		return v.client.GetQuote(ctx, req.InputMint, req.OutputMint, req.AmountIn, req.MaxSlippageBps)
	}
	quote, err := ParseQuote(req.Route)
	if err != nil {
		return nil, err
	}
	if err := CheckRoute(quote, req.InputMint, req.OutputMint, req.AmountIn); err != nil {
		return nil, err
	}
	return quote, nil
}

var (
	_ venue.Venue = (*QuoteVenue)(nil)
	_ venue.Venue = (*LiveVenue)(nil)
)
