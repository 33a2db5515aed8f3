// Package jupiter is a client for the Jupiter v6 swap aggregator and the
// swap venues built on it.
package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"keeper-vault/internal/solana"
)

// Default configuration values.
const (
	DefaultBaseURL     = "https://quote-api.jup.ag/v6"
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 500 * time.Millisecond
	DefaultMaxDelay    = 5 * time.Second
	DefaultBackoffMult = 2.0
)

// Client calls the Jupiter HTTP API with retries and exponential backoff.
type Client struct {
	baseURL     string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	logger      *log.Logger
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *log.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a Jupiter API client. An empty baseURL selects DefaultBaseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:     baseURL,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
		logger:      log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-retryable error response from the API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jupiter API returned %d: %s", e.StatusCode, e.Body)
}

// Quote is a /quote response. Raw keeps the exact payload for /swap.
type Quote struct {
	InputMint            string            `json:"inputMint"`
	InAmount             string            `json:"inAmount"`
	OutputMint           string            `json:"outputMint"`
	OutAmount            string            `json:"outAmount"`
	OtherAmountThreshold string            `json:"otherAmountThreshold"`
	SwapMode             string            `json:"swapMode"`
	SlippageBps          int               `json:"slippageBps"`
	PriceImpactPct       string            `json:"priceImpactPct"`
	RoutePlan            []json.RawMessage `json:"routePlan"`
	ContextSlot          uint64            `json:"contextSlot,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// ParseQuote decodes a quote and keeps its raw form.
func ParseQuote(data []byte) (*Quote, error) {
	var q Quote
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("unmarshal quote: %w", err)
	}
	q.Raw = append(json.RawMessage(nil), data...)
	return &q, nil
}

// Amounts returns the parsed in, out and threshold amounts.
func (q *Quote) Amounts() (in, out, threshold uint64, err error) {
	if in, err = strconv.ParseUint(q.InAmount, 10, 64); err != nil {
		return 0, 0, 0, fmt.Errorf("parse inAmount %q: %w", q.InAmount, err)
	}
	if out, err = strconv.ParseUint(q.OutAmount, 10, 64); err != nil {
		return 0, 0, 0, fmt.Errorf("parse outAmount %q: %w", q.OutAmount, err)
	}
	if threshold, err = strconv.ParseUint(q.OtherAmountThreshold, 10, 64); err != nil {
		return 0, 0, 0, fmt.Errorf("parse otherAmountThreshold %q: %w", q.OtherAmountThreshold, err)
	}
	return in, out, threshold, nil
}

// SwapTransaction is a /swap response.
type SwapTransaction struct {
	SwapTransaction           string `json:"swapTransaction"` // base64, unsigned
	LastValidBlockHeight      uint64 `json:"lastValidBlockHeight"`
	PrioritizationFeeLamports uint64 `json:"prioritizationFeeLamports"`
}

// GetQuote requests a route for amount of inputMint into outputMint.
func (c *Client) GetQuote(ctx context.Context, inputMint, outputMint solana.PublicKey, amount uint64, slippageBps uint16) (*Quote, error) {
	q := url.Values{}
	q.Set("inputMint", inputMint.String())
	q.Set("outputMint", outputMint.String())
	q.Set("amount", strconv.FormatUint(amount, 10))
	q.Set("slippageBps", strconv.FormatUint(uint64(slippageBps), 10))

	body, err := c.do(ctx, http.MethodGet, "/quote?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("get quote: %w", err)
	}
	quote, err := ParseQuote(body)
	if err != nil {
		return nil, err
	}
	c.logger.Printf("quote %s -> %s in=%s out=%s slippage=%d bps",
		inputMint.Short(), outputMint.Short(), quote.InAmount, quote.OutAmount, slippageBps)
	return quote, nil
}

// BuildSwap asks the API for an unsigned transaction executing quote for user.
func (c *Client) BuildSwap(ctx context.Context, quote *Quote, user solana.PublicKey, wrapAndUnwrapSol bool) (*SwapTransaction, error) {
	raw := quote.Raw
	if len(raw) == 0 {
		var err error
		if raw, err = json.Marshal(quote); err != nil {
			return nil, fmt.Errorf("marshal quote: %w", err)
		}
	}
	payload := map[string]interface{}{
		"quoteResponse":    raw,
		"userPublicKey":    user.String(),
		"wrapAndUnwrapSol": wrapAndUnwrapSol,
	}
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal swap request: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, "/swap", reqBody)
	if err != nil {
		return nil, fmt.Errorf("build swap: %w", err)
	}
	var swap SwapTransaction
	if err := json.Unmarshal(body, &swap); err != nil {
		return nil, fmt.Errorf("unmarshal swap: %w", err)
	}
	if swap.SwapTransaction == "" {
		return nil, fmt.Errorf("build swap: empty transaction")
	}
	return &swap, nil
}

// do performs a request with retries on transport errors, 429 and 5xx.
func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		case resp.StatusCode >= 500:
			lastErr = &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
			continue
		case resp.StatusCode != http.StatusOK:
			return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
		}
		return respBody, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
