package api

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"keeper-vault/internal/observability"
	"keeper-vault/internal/solana"
)

// Header names.
const (
	HeaderWallet    = "X-Wallet-Pubkey"
	HeaderRequestID = "X-Request-ID"
)

type ctxKey int

const callerKey ctxKey = iota

// callerFrom returns the wallet that signed the request, if any.
func callerFrom(ctx context.Context) (solana.PublicKey, bool) {
	pk, ok := ctx.Value(callerKey).(solana.PublicKey)
	return pk, ok
}

// identify parses X-Wallet-Pubkey into the request context.
// A malformed key is rejected; a missing one is left to the handler.
// The header is taken on trust: the router must sit behind a proxy that
// verifies the wallet signature and strips client-supplied values.
func identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(HeaderWallet))
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		pk, err := solana.ParsePublicKey(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, ErrorDetail{Name: "InvalidCaller", Message: err.Error()})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey, pk)))
	})
}

// requestID stamps every response with a request id, reusing the client's if given.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r)
	})
}

// instrument records request count and latency by route pattern.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = r.Method + " " + rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		observability.RecordHTTPRequest(route, status, time.Since(start))
	})
}

// RateLimit configures per-caller throttling. Zero RequestsPerSecond disables it.
type RateLimit struct {
	RequestsPerSecond float64
	Burst             int
	// IdleTTL is how long an unused limiter is kept.
	IdleTTL time.Duration
}

// RateLimiter enforces a token bucket per caller. Callers are identified by
// wallet header, falling back to the remote address.
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter from cfg.
func NewRateLimiter(cfg RateLimit) *RateLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
	}
	ttl := cfg.IdleTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RateLimiter{
		limit:    rate.Limit(cfg.RequestsPerSecond),
		burst:    burst,
		idleTTL:  ttl,
		now:      time.Now,
		visitors: make(map[string]*visitor),
	}
}

// Allow reports whether key may make a request now.
func (rl *RateLimiter) Allow(key string) bool {
	now := rl.now()
	return rl.obtain(key, now).AllowN(now, 1)
}

func (rl *RateLimiter) obtain(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now

	for k, other := range rl.visitors {
		if now.Sub(other.lastSeen) > rl.idleTTL {
			delete(rl.visitors, k)
		}
	}
	return v.limiter
}

// Middleware rejects requests over the caller's budget with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientID(r)) {
			observability.RecordRateLimited()
			writeError(w, http.StatusTooManyRequests, ErrorDetail{
				Name:    "RateLimited",
				Message: http.StatusText(http.StatusTooManyRequests),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientID(r *http.Request) string {
	if pk, ok := callerFrom(r.Context()); ok {
		return "wallet:" + pk.String()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
