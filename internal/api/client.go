package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"keeper-vault/internal/domain"
	"keeper-vault/internal/engine"
	"keeper-vault/internal/solana"
)

// Default client configuration values.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryDelay = 250 * time.Millisecond
	DefaultMaxDelay   = 5 * time.Second
)

// Client is a typed client for the HTTP API. Every request is sent as Caller.
type Client struct {
	baseURL    string
	caller     solana.PublicKey
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
	maxDelay   time.Duration
	logger     *log.Logger
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

// NewClient creates an API client acting as caller.
func NewClient(baseURL string, caller solana.PublicKey, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		caller:     caller,
		client:     &http.Client{Timeout: DefaultTimeout},
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		maxDelay:   DefaultMaxDelay,
		logger:     log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Caller returns the wallet the client acts as.
func (c *Client) Caller() solana.PublicKey {
	return c.caller
}

// Initialize creates the caller's profile.
func (c *Client) Initialize(ctx context.Context) (*Account, error) {
	var out Account
	if err := c.call(ctx, http.MethodPost, "/v1/profiles", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAccount fetches owner's account view.
func (c *Client) GetAccount(ctx context.Context, owner solana.PublicKey) (*Account, error) {
	var out Account
	if err := c.call(ctx, http.MethodGet, profilePath(owner), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateProfile applies patch to owner's profile.
func (c *Client) UpdateProfile(ctx context.Context, owner solana.PublicKey, patch engine.ProfilePatch) (*Account, error) {
	var out Account
	if err := c.call(ctx, http.MethodPatch, profilePath(owner), patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResetProfile restores owner's configuration defaults.
func (c *Client) ResetProfile(ctx context.Context, owner solana.PublicKey) (*Account, error) {
	var out Account
	if err := c.call(ctx, http.MethodPost, profilePath(owner)+"/reset", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Deposit moves amount from the caller into owner's vault.
func (c *Client) Deposit(ctx context.Context, owner solana.PublicKey, class domain.VaultClass, amount uint64) (*Account, error) {
	return c.transfer(ctx, owner, class, "deposit", amount)
}

// Withdraw moves amount out of owner's vault to the caller.
func (c *Client) Withdraw(ctx context.Context, owner solana.PublicKey, class domain.VaultClass, amount uint64) (*Account, error) {
	return c.transfer(ctx, owner, class, "withdraw", amount)
}

func (c *Client) transfer(ctx context.Context, owner solana.PublicKey, class domain.VaultClass, op string, amount uint64) (*Account, error) {
	var out Account
	path := fmt.Sprintf("%s/vaults/%s/%s", profilePath(owner), class, op)
	if err := c.call(ctx, http.MethodPost, path, AmountRequest{Amount: amount}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Execute runs a signal for owner with the caller as keeper.
func (c *Client) Execute(ctx context.Context, owner solana.PublicKey, req ExecuteRequest) (*domain.ExecutionReceipt, error) {
	var out domain.ExecutionReceipt
	if err := c.call(ctx, http.MethodPost, profilePath(owner)+"/execute", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListExecutions returns owner's receipts, oldest first.
func (c *Client) ListExecutions(ctx context.Context, owner solana.PublicKey) ([]*domain.ExecutionReceipt, error) {
	var out []*domain.ExecutionReceipt
	if err := c.call(ctx, http.MethodGet, profilePath(owner)+"/executions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func profilePath(owner solana.PublicKey) string {
	return "/v1/profiles/" + owner.String()
}

// call performs a request with retries. Rate-limited requests are always
// retried; transport errors and 5xx only for GET.
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}
	idempotent := method == http.MethodGet

	delay := c.retryDelay
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
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
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set(HeaderWallet, c.caller.String())
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("http request: %w", err)
			if idempotent {
				continue
			}
			return lastErr
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("unmarshal response: %w", err)
			}
			return nil
		}

		apiErr := decodeError(resp.StatusCode, respBody)
		if resp.StatusCode == http.StatusTooManyRequests || (idempotent && resp.StatusCode >= 500) {
			c.logger.Printf("%s %s: %v (attempt %d)", method, path, apiErr, attempt+1)
			lastErr = apiErr
			continue
		}
		return apiErr
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func decodeError(status int, body []byte) *APIError {
	var eb ErrorBody
	if err := json.Unmarshal(body, &eb); err != nil || eb.Error.Name == "" {
		return &APIError{Status: status, ErrorDetail: ErrorDetail{
			Name:    http.StatusText(status),
			Message: strings.TrimSpace(string(body)),
		}}
	}
	return &APIError{Status: status, ErrorDetail: eb.Error}
}
