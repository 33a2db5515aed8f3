package jupiter

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keeper-vault/internal/domain"
	"keeper-vault/internal/solana"
	"keeper-vault/internal/solana/stub"
	"keeper-vault/internal/venue"
)

func quoteJSON(in solana.PublicKey, out solana.PublicKey, amountIn, amountOut, threshold uint64) string {
	return fmt.Sprintf(`{"inputMint":%q,"inAmount":"%d","outputMint":%q,"outAmount":"%d",`+
		`"otherAmountThreshold":"%d","swapMode":"ExactIn","slippageBps":50,"priceImpactPct":"0.01","routePlan":[]}`,
		in.String(), amountIn, out.String(), amountOut, threshold)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL,
		WithRetryDelay(time.Millisecond),
		WithLogger(log.New(io.Discard, "", 0)),
	)
}

func TestClient_GetQuote(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote", r.URL.Path)
		assert.Equal(t, solana.WrappedSOLMint.String(), r.URL.Query().Get("inputMint"))
		assert.Equal(t, "500000", r.URL.Query().Get("amount"))
		assert.Equal(t, "50", r.URL.Query().Get("slippageBps"))
		fmt.Fprint(w, quoteJSON(solana.WrappedSOLMint, solana.USDCMint, 500_000, 490_000, 487_550))
	})

	q, err := client.GetQuote(context.Background(), solana.WrappedSOLMint, solana.USDCMint, 500_000, 50)
	require.NoError(t, err)

	in, out, threshold, err := q.Amounts()
	require.NoError(t, err)
	assert.Equal(t, uint64(500_000), in)
	assert.Equal(t, uint64(490_000), out)
	assert.Equal(t, uint64(487_550), threshold)
	assert.NotEmpty(t, q.Raw)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, quoteJSON(solana.USDCMint, solana.WrappedSOLMint, 10, 9, 9))
	})

	_, err := client.GetQuote(context.Background(), solana.USDCMint, solana.WrappedSOLMint, 10, 50)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"Could not find any route"}`)
	})

	_, err := client.GetQuote(context.Background(), solana.USDCMint, solana.WrappedSOLMint, 10, 50)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_BuildSwapSendsRawQuote(t *testing.T) {
	raw := quoteJSON(solana.WrappedSOLMint, solana.USDCMint, 100, 99, 98)
	user := solana.PublicKey{7}

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/swap", r.URL.Path)

		var body struct {
			QuoteResponse    json.RawMessage `json:"quoteResponse"`
			UserPublicKey    string          `json:"userPublicKey"`
			WrapAndUnwrapSol bool            `json:"wrapAndUnwrapSol"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.JSONEq(t, raw, string(body.QuoteResponse))
		assert.Equal(t, user.String(), body.UserPublicKey)
		assert.False(t, body.WrapAndUnwrapSol)

		fmt.Fprint(w, `{"swapTransaction":"AQID","lastValidBlockHeight":42}`)
	})

	q, err := ParseQuote([]byte(raw))
	require.NoError(t, err)

	swap, err := client.BuildSwap(context.Background(), q, user, false)
	require.NoError(t, err)
	assert.Equal(t, "AQID", swap.SwapTransaction)
	assert.Equal(t, uint64(42), swap.LastValidBlockHeight)
}

func TestValidateRoute(t *testing.T) {
	tests := []struct {
		name      string
		out       uint64
		threshold uint64
		maxBps    uint16
		wantErr   bool
	}{
		{"within ceiling", 1_000_000, 996_000, 50, false},
		{"exactly at ceiling", 1_000_000, 995_000, 50, false},
		{"above ceiling", 1_000_000, 994_000, 50, true},
		{"zero output", 0, 0, 50, true},
		{"no slippage allowed, none taken", 1_000, 1_000, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := ParseQuote([]byte(quoteJSON(solana.WrappedSOLMint, solana.USDCMint, 1, tt.out, tt.threshold)))
			require.NoError(t, err)

			err = ValidateRoute(q, tt.maxBps)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrSlippageExceeded)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCheckRoute(t *testing.T) {
	q, err := ParseQuote([]byte(quoteJSON(solana.WrappedSOLMint, solana.USDCMint, 100, 99, 98)))
	require.NoError(t, err)

	assert.NoError(t, CheckRoute(q, solana.WrappedSOLMint, solana.USDCMint, 100))
	assert.ErrorIs(t, CheckRoute(q, solana.USDCMint, solana.WrappedSOLMint, 100), domain.ErrInvalidMint)
	assert.ErrorIs(t, CheckRoute(q, solana.WrappedSOLMint, solana.USDCMint, 101), domain.ErrInvalidParameter)
}

func TestQuoteVenue_FillsAtQuote(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, quoteJSON(solana.WrappedSOLMint, solana.USDCMint, 500_000, 490_000, 489_000))
	})
	v := NewQuoteVenue(client)

	res, err := v.Swap(context.Background(), venue.SwapRequest{
		InputMint:      solana.WrappedSOLMint,
		OutputMint:     solana.USDCMint,
		AmountIn:       500_000,
		MinAmountOut:   480_000,
		MaxSlippageBps: 50,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(490_000), res.AmountOut)
	assert.Empty(t, res.Signature)
}

func TestQuoteVenue_RejectsWideRoute(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, quoteJSON(solana.WrappedSOLMint, solana.USDCMint, 500_000, 490_000, 400_000))
	})
	v := NewQuoteVenue(client)

	_, err := v.Swap(context.Background(), venue.SwapRequest{
		InputMint:      solana.WrappedSOLMint,
		OutputMint:     solana.USDCMint,
		AmountIn:       500_000,
		MaxSlippageBps: 50,
	})
	assert.ErrorIs(t, err, domain.ErrSlippageExceeded)
}

func TestQuoteVenue_RejectsMismatchedHint(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("venue should not quote when the hint is inconsistent")
	})
	v := NewQuoteVenue(client)

	_, err := v.Swap(context.Background(), venue.SwapRequest{
		InputMint:  solana.WrappedSOLMint,
		OutputMint: solana.USDCMint,
		AmountIn:   500_000,
		Route:      []byte(quoteJSON(solana.USDCMint, solana.WrappedSOLMint, 500_000, 1, 1)),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidMint)
}

// unsignedTx builds a legacy transaction with signer as its only required signer.
func unsignedTx(signer *solana.Keypair) string {
	var msg []byte
	msg = append(msg, 1, 0, 0)
	msg = append(msg, 1) // one account key
	msg = append(msg, signer.PublicKey[:]...)
	msg = append(msg, bytes.Repeat([]byte{3}, 32)...)
	msg = append(msg, 0) // no instructions

	raw := append([]byte{1}, make([]byte, ed25519.SignatureSize)...)
	raw = append(raw, msg...)
	return base64.StdEncoding.EncodeToString(raw)
}

func TestLiveVenue_Swap(t *testing.T) {
	signer, err := solana.NewKeypairFromSeed(bytes.Repeat([]byte{5}, ed25519.SeedSize))
	require.NoError(t, err)

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/quote":
			fmt.Fprint(w, quoteJSON(solana.WrappedSOLMint, solana.USDCMint, 500_000, 490_000, 489_000))
		case "/swap":
			fmt.Fprintf(w, `{"swapTransaction":%q}`, unsignedTx(signer))
		default:
			http.NotFound(w, r)
		}
	})

	rpc := stub.NewRPCClient()
	rpc.NextSignature = "swap-sig"
	rpc.AddTransaction(&solana.Transaction{
		Signature: "swap-sig",
		Meta: &solana.TransactionMeta{
			PreTokenBalances: []solana.TokenBalance{
				{Mint: solana.USDCMint.String(), Owner: signer.PublicKey.String(), Amount: 1_000},
			},
			PostTokenBalances: []solana.TokenBalance{
				{Mint: solana.USDCMint.String(), Owner: signer.PublicKey.String(), Amount: 492_000},
			},
		},
	})

	v := NewLiveVenue(client, rpc, signer, log.New(io.Discard, "", 0))
	v.PollInterval = time.Millisecond

	res, err := v.Swap(context.Background(), venue.SwapRequest{
		InputMint:      solana.WrappedSOLMint,
		OutputMint:     solana.USDCMint,
		AmountIn:       500_000,
		MinAmountOut:   489_000,
		MaxSlippageBps: 50,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(491_000), res.AmountOut)
	assert.Equal(t, "swap-sig", res.Signature)

	require.Len(t, rpc.Sent, 1)
	sent, err := base64.StdEncoding.DecodeString(rpc.Sent[0])
	require.NoError(t, err)
	assert.NotEqual(t, make([]byte, ed25519.SignatureSize), sent[1:1+ed25519.SignatureSize], "transaction was not signed")
}

func TestLiveVenue_NoFill(t *testing.T) {
	signer, err := solana.NewKeypairFromSeed(bytes.Repeat([]byte{6}, ed25519.SeedSize))
	require.NoError(t, err)

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/swap" {
			fmt.Fprintf(w, `{"swapTransaction":%q}`, unsignedTx(signer))
			return
		}
		t.Errorf("unexpected request %s", r.URL.Path)
	})

	rpc := stub.NewRPCClient()
	rpc.NextSignature = "empty-sig"
	rpc.AddTransaction(&solana.Transaction{Signature: "empty-sig", Meta: &solana.TransactionMeta{}})

	v := NewLiveVenue(client, rpc, signer, log.New(io.Discard, "", 0))
	v.PollInterval = time.Millisecond

	_, err = v.Swap(context.Background(), venue.SwapRequest{
		InputMint:      solana.WrappedSOLMint,
		OutputMint:     solana.USDCMint,
		AmountIn:       100,
		MaxSlippageBps: 50,
		Route:          []byte(quoteJSON(solana.WrappedSOLMint, solana.USDCMint, 100, 99, 99)),
	})
	assert.ErrorIs(t, err, venue.ErrNoFill)
}

func TestLiveVenue_StopsWhenBlockhashExpires(t *testing.T) {
	signer, err := solana.NewKeypairFromSeed(bytes.Repeat([]byte{7}, ed25519.SeedSize))
	require.NoError(t, err)

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"swapTransaction":%q,"lastValidBlockHeight":42}`, unsignedTx(signer))
	})

	rpc := stub.NewRPCClient()
	rpc.NextSignature = "stuck-sig"
	rpc.Statuses["stuck-sig"] = &solana.SignatureStatus{ConfirmationStatus: solana.CommitmentProcessed}
	rpc.BlockHeight = 40
	rpc.BlockStep = 1

	v := NewLiveVenue(client, rpc, signer, log.New(io.Discard, "", 0))
	v.PollInterval = time.Millisecond

	_, err = v.Swap(context.Background(), venue.SwapRequest{
		InputMint:      solana.WrappedSOLMint,
		OutputMint:     solana.USDCMint,
		AmountIn:       100,
		MaxSlippageBps: 50,
		Route:          []byte(quoteJSON(solana.WrappedSOLMint, solana.USDCMint, 100, 99, 99)),
	})
	assert.ErrorIs(t, err, solana.ErrBlockhashExpired)
	assert.Len(t, rpc.Sent, 1)
}
