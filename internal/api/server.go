// Package api exposes the engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"keeper-vault/internal/domain"
	"keeper-vault/internal/engine"
	"keeper-vault/internal/observability"
	"keeper-vault/internal/solana"
)

// Service is the engine surface served over HTTP.
type Service interface {
	Initialize(ctx context.Context, user solana.PublicKey) (*engine.AccountView, error)
	GetAccount(ctx context.Context, owner solana.PublicKey) (*engine.AccountView, error)
	UpdateProfile(ctx context.Context, caller, owner solana.PublicKey, patch engine.ProfilePatch) (*domain.Account, error)
	ResetProfile(ctx context.Context, caller, owner solana.PublicKey) (*domain.Account, error)
	Deposit(ctx context.Context, caller, owner solana.PublicKey, class domain.VaultClass, amount uint64) (*domain.Account, error)
	Withdraw(ctx context.Context, caller, owner solana.PublicKey, class domain.VaultClass, amount uint64) (*domain.Account, error)
	Execute(ctx context.Context, req engine.ExecuteRequest) (*domain.ExecutionReceipt, error)
	ListExecutions(ctx context.Context, owner solana.PublicKey) ([]*domain.ExecutionReceipt, error)
	FeePoolReserve() uint64
}

var _ Service = (*engine.Engine)(nil)

// EventStream serves live notifications over websocket.
type EventStream interface {
	http.Handler
	Clients() int
}

// Config for creating the router.
type Config struct {
	// Required
	Service Service

	// Optional
	Events       EventStream // nil disables /v1/events/ws
	RateLimit    RateLimit   // zero disables throttling
	MaxBodyBytes int64       // zero selects 1 MiB
	Logger       *log.Logger
}

// Server holds handler state.
type Server struct {
	svc     Service
	events  EventStream
	maxBody int64
	started time.Time
	logger  *log.Logger
}

// NewRouter builds the HTTP handler.
func NewRouter(cfg Config) (http.Handler, error) {
	if cfg.Service == nil {
		return nil, errors.New("api: service is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[api] ", log.LstdFlags)
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	s := &Server{
		svc:     cfg.Service,
		events:  cfg.Events,
		maxBody: maxBody,
		started: time.Now(),
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Use(instrument)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", observability.Handler())
	r.Get("/status", s.handleStatus)

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(identify)
		if cfg.RateLimit.RequestsPerSecond > 0 {
			v1.Use(NewRateLimiter(cfg.RateLimit).Middleware)
		}

		v1.Post("/profiles", s.handleInitialize)
		v1.Route("/profiles/{owner}", func(pr chi.Router) {
			pr.Get("/", s.handleGetAccount)
			pr.Patch("/", s.handleUpdateProfile)
			pr.Post("/reset", s.handleReset)
			pr.Post("/vaults/{class}/deposit", s.handleDeposit)
			pr.Post("/vaults/{class}/withdraw", s.handleWithdraw)
			pr.Post("/execute", s.handleExecute)
			pr.Get("/executions", s.handleListExecutions)
		})
		if s.events != nil {
			v1.Handle("/events/ws", s.events)
		}
	})
	return r, nil
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status         string `json:"status"`
	Uptime         string `json:"uptime"`
	FeePoolReserve uint64 `json:"fee_pool_reserve"`
	StreamClients  int    `json:"stream_clients"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status:         "running",
		Uptime:         time.Since(s.started).Truncate(time.Second).String(),
		FeePoolReserve: s.svc.FeePoolReserve(),
	}
	if s.events != nil {
		resp.StreamClients = s.events.Clients()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	view, err := s.svc.Initialize(r.Context(), caller)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, fromView(view))
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	view, err := s.svc.GetAccount(r.Context(), owner)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fromView(view))
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	var patch engine.ProfilePatch
	if !s.decode(w, r, &patch) {
		return
	}
	acct, err := s.svc.UpdateProfile(r.Context(), caller, owner, patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fromAccount(acct))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	acct, err := s.svc.ResetProfile(r.Context(), caller, owner)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fromAccount(acct))
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.handleTransfer(w, r, s.svc.Deposit)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handleTransfer(w, r, s.svc.Withdraw)
}

type transferFunc func(ctx context.Context, caller, owner solana.PublicKey, class domain.VaultClass, amount uint64) (*domain.Account, error)

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request, op transferFunc) {
	caller, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	class, err := domain.ParseVaultClass(chi.URLParam(r, "class"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req AmountRequest
	if !s.decode(w, r, &req) {
		return
	}
	acct, err := op(r.Context(), caller, owner, class, req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fromAccount(acct))
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	keeper, ok := s.requireCaller(w, r)
	if !ok {
		return
	}
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	var req ExecuteRequest
	if !s.decode(w, r, &req) {
		return
	}
	receipt, err := s.svc.Execute(r.Context(), engine.ExecuteRequest{
		Keeper:       keeper,
		Owner:        owner,
		Signal:       req.SignalType,
		MinAmountOut: req.MinAmountOut,
		Route:        []byte(req.Route),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	receipts, err := s.svc.ListExecutions(r.Context(), owner)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if receipts == nil {
		receipts = []*domain.ExecutionReceipt{}
	}
	writeJSON(w, http.StatusOK, receipts)
}

func (s *Server) requireCaller(w http.ResponseWriter, r *http.Request) (solana.PublicKey, bool) {
	pk, ok := callerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, ErrorDetail{
			Name:    "MissingCaller",
			Message: HeaderWallet + " header is required",
		})
	}
	return pk, ok
}

func (s *Server) owner(w http.ResponseWriter, r *http.Request) (solana.PublicKey, bool) {
	pk, err := solana.ParsePublicKey(chi.URLParam(r, "owner"))
	if err != nil {
		s.fail(w, r, fmt.Errorf("%w: owner: %v", domain.ErrInvalidParameter, err))
		return solana.PublicKey{}, false
	}
	return pk, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.fail(w, r, fmt.Errorf("%w: request body: %v", domain.ErrInvalidParameter, err))
		return false
	}
	return true
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Printf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	writeError(w, status, errorDetail(err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail ErrorDetail) {
	writeJSON(w, status, ErrorBody{Error: detail})
}
