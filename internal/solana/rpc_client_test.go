package solana

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// newRPCServer answers every request with result produced by handle.
func newRPCServer(t *testing.T, method string, handle func(req rpcRequest) interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if req.Method != method {
			t.Errorf("expected method %s, got %s", method, req.Method)
		}

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  handle(req),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestHTTPClient_GetMinimumBalanceForRentExemption(t *testing.T) {
	server := newRPCServer(t, "getMinimumBalanceForRentExemption", func(req rpcRequest) interface{} {
		if len(req.Params) != 1 || req.Params[0].(float64) != 0 {
			t.Errorf("unexpected params: %v", req.Params)
		}
		return uint64(890880)
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	reserve, err := client.GetMinimumBalanceForRentExemption(context.Background(), 0)
	if err != nil {
		t.Fatalf("GetMinimumBalanceForRentExemption: %v", err)
	}
	if reserve != 890880 {
		t.Errorf("expected 890880, got %d", reserve)
	}
}

func TestHTTPClient_GetBalance(t *testing.T) {
	owner := MustParsePublicKey("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	server := newRPCServer(t, "getBalance", func(req rpcRequest) interface{} {
		if req.Params[0] != owner.String() {
			t.Errorf("unexpected pubkey param: %v", req.Params[0])
		}
		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 1},
			"value":   uint64(2_500_000_000),
		}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	balance, err := client.GetBalance(context.Background(), owner)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if balance != 2_500_000_000 {
		t.Errorf("expected 2500000000, got %d", balance)
	}
}

func TestHTTPClient_SendTransaction(t *testing.T) {
	server := newRPCServer(t, "sendTransaction", func(req rpcRequest) interface{} {
		if req.Params[0] != "AQID" {
			t.Errorf("unexpected tx param: %v", req.Params[0])
		}
		cfg := req.Params[1].(map[string]interface{})
		if cfg["encoding"] != "base64" {
			t.Errorf("expected base64 encoding, got %v", cfg["encoding"])
		}
		return "5sig"
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	sig, err := client.SendTransaction(context.Background(), "AQID")
	if err != nil {
		t.Fatalf("SendTransaction: %v", err)
	}
	if sig != "5sig" {
		t.Errorf("expected 5sig, got %s", sig)
	}
}

func TestHTTPClient_GetSignatureStatuses(t *testing.T) {
	server := newRPCServer(t, "getSignatureStatuses", func(req rpcRequest) interface{} {
		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 100},
			"value": []interface{}{
				map[string]interface{}{
					"slot":               int64(99),
					"confirmations":      nil,
					"err":                nil,
					"confirmationStatus": "finalized",
				},
				nil,
			},
		}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	statuses, err := client.GetSignatureStatuses(context.Background(), []string{"sig1", "sig2"})
	if err != nil {
		t.Fatalf("GetSignatureStatuses: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if statuses[0] == nil || statuses[0].ConfirmationStatus != CommitmentFinalized {
		t.Errorf("unexpected first status: %+v", statuses[0])
	}
	if statuses[0].Slot != 99 {
		t.Errorf("expected slot 99, got %d", statuses[0].Slot)
	}
	if statuses[1] != nil {
		t.Errorf("expected nil for unknown signature, got %+v", statuses[1])
	}
}

func TestHTTPClient_GetTransaction(t *testing.T) {
	server := newRPCServer(t, "getTransaction", func(req rpcRequest) interface{} {
		return map[string]interface{}{
			"slot":      int64(123456),
			"blockTime": int64(1700000000),
			"meta": map[string]interface{}{
				"err":         nil,
				"fee":         uint64(5000),
				"logMessages": []string{"Program log: Hello", "Program log: World"},
				"preTokenBalances": []map[string]interface{}{
					{
						"accountIndex":  1,
						"mint":          USDCMint.String(),
						"owner":         "owner1",
						"uiTokenAmount": map[string]interface{}{"amount": "1000", "decimals": 6},
					},
				},
				"postTokenBalances": []map[string]interface{}{
					{
						"accountIndex":  1,
						"mint":          USDCMint.String(),
						"owner":         "owner1",
						"uiTokenAmount": map[string]interface{}{"amount": "6000", "decimals": 6},
					},
				},
			},
		}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	tx, err := client.GetTransaction(context.Background(), "testsig123")
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if tx == nil {
		t.Fatal("expected transaction, got nil")
	}
	if tx.Slot != 123456 {
		t.Errorf("expected slot 123456, got %d", tx.Slot)
	}
	if tx.BlockTime != 1700000000 {
		t.Errorf("expected blockTime 1700000000, got %d", tx.BlockTime)
	}
	if tx.Meta == nil {
		t.Fatal("expected meta, got nil")
	}
	if tx.Meta.Fee != 5000 {
		t.Errorf("expected fee 5000, got %d", tx.Meta.Fee)
	}
	if len(tx.Meta.LogMessages) != 2 {
		t.Errorf("expected 2 log messages, got %d", len(tx.Meta.LogMessages))
	}
	if len(tx.Meta.PostTokenBalances) != 1 || tx.Meta.PostTokenBalances[0].Amount != 6000 {
		t.Errorf("unexpected post token balances: %+v", tx.Meta.PostTokenBalances)
	}
}

func TestHTTPClient_GetTransaction_NotFound(t *testing.T) {
	server := newRPCServer(t, "getTransaction", func(req rpcRequest) interface{} {
		return nil
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	tx, err := client.GetTransaction(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if tx != nil {
		t.Errorf("expected nil for not found, got %+v", tx)
	}
}

func TestTransactionMeta_TokenBalanceDelta(t *testing.T) {
	owner := MustParsePublicKey("So11111111111111111111111111111111111111112")
	meta := &TransactionMeta{
		PreTokenBalances: []TokenBalance{
			{Owner: owner.String(), Mint: USDCMint.String(), Amount: 100},
		},
		PostTokenBalances: []TokenBalance{
			{Owner: owner.String(), Mint: USDCMint.String(), Amount: 400},
			{Owner: "someone-else", Mint: USDCMint.String(), Amount: 9999},
		},
	}

	delta, ok := meta.TokenBalanceDelta(owner, USDCMint)
	if !ok || delta != 300 {
		t.Errorf("expected delta 300, got %d (ok=%v)", delta, ok)
	}

	meta.PostTokenBalances[0].Amount = 50
	if _, ok := meta.TokenBalanceDelta(owner, USDCMint); ok {
		t.Error("expected negative delta to report false")
	}

	var nilMeta *TransactionMeta
	if _, ok := nilMeta.TokenBalanceDelta(owner, USDCMint); ok {
		t.Error("expected nil meta to report false")
	}
}

func TestHTTPClient_Retry(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count := attempts.Add(1)
		if count < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  uint64(999),
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL,
		WithMaxRetries(3),
		WithRetryDelay(10*time.Millisecond),
	)

	reserve, err := client.GetMinimumBalanceForRentExemption(context.Background(), 0)
	if err != nil {
		t.Fatalf("GetMinimumBalanceForRentExemption: %v", err)
	}
	if reserve != 999 {
		t.Errorf("expected 999, got %d", reserve)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestHTTPClient_RPCError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error": map[string]interface{}{
				"code":    -32002,
				"message": "Transaction simulation failed",
			},
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	_, err := client.SendTransaction(context.Background(), "AQID")
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var rpcErr *rpcError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected rpcError, got %T", err)
	}
	if rpcErr.Code != -32002 {
		t.Errorf("expected code -32002, got %d", rpcErr.Code)
	}
}

func TestHTTPClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GetBalance(ctx, SystemProgramID)
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestWaitForConfirmation(t *testing.T) {
	var polls atomic.Int32
	server := newRPCServer(t, "getSignatureStatuses", func(req rpcRequest) interface{} {
		status := "processed"
		if polls.Add(1) >= 2 {
			status = "confirmed"
		}
		return map[string]interface{}{
			"value": []interface{}{
				map[string]interface{}{"slot": 7, "err": nil, "confirmationStatus": status},
			},
		}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	st, err := WaitForConfirmation(context.Background(), client, "sig", 0, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForConfirmation: %v", err)
	}
	if st.ConfirmationStatus != CommitmentConfirmed {
		t.Errorf("expected confirmed, got %s", st.ConfirmationStatus)
	}
	if polls.Load() < 2 {
		t.Errorf("expected at least 2 polls, got %d", polls.Load())
	}
}

func TestWaitForConfirmation_Failed(t *testing.T) {
	server := newRPCServer(t, "getSignatureStatuses", func(req rpcRequest) interface{} {
		return map[string]interface{}{
			"value": []interface{}{
				map[string]interface{}{
					"slot":               7,
					"err":                map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}},
					"confirmationStatus": "confirmed",
				},
			},
		}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	_, err := WaitForConfirmation(context.Background(), client, "sig", 0, 5*time.Millisecond)
	if !errors.Is(err, ErrTransactionFailed) {
		t.Fatalf("expected ErrTransactionFailed, got %v", err)
	}
}

func TestHTTPClient_GetBlockHeight(t *testing.T) {
	server := newRPCServer(t, "getBlockHeight", func(req rpcRequest) interface{} {
		return uint64(1234)
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	height, err := client.GetBlockHeight(context.Background())
	if err != nil {
		t.Fatalf("GetBlockHeight: %v", err)
	}
	if height != 1234 {
		t.Errorf("expected 1234, got %d", height)
	}
}

// pendingRPC reports every signature as processed while the chain advances.
type pendingRPC struct {
	RPCClient
	height atomic.Uint64
}

func (p *pendingRPC) GetSignatureStatuses(context.Context, []string) ([]*SignatureStatus, error) {
	return []*SignatureStatus{{ConfirmationStatus: CommitmentProcessed}}, nil
}

func (p *pendingRPC) GetBlockHeight(context.Context) (uint64, error) {
	return p.height.Add(10), nil
}

func TestWaitForConfirmation_BlockhashExpired(t *testing.T) {
	rpc := &pendingRPC{}
	rpc.height.Store(100)

	start := time.Now()
	_, err := WaitForConfirmation(context.Background(), rpc, "sig", 130, time.Millisecond)
	if !errors.Is(err, ErrBlockhashExpired) {
		t.Fatalf("expected ErrBlockhashExpired, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("expiry took %v", time.Since(start))
	}
}

func TestWaitForConfirmation_StopsOnContext(t *testing.T) {
	rpc := &pendingRPC{}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := WaitForConfirmation(ctx, rpc, "sig", 0, time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
