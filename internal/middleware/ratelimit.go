package middleware

import (
	"context"
	"log"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"gmbdash/server/internal/observability"
)

// Limiter decides whether a request keyed by key may proceed, and if not,
// how long the caller should wait.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, time.Duration)
}

// RateLimiter implements per-key sliding window rate limiting.
// State is in memory: each process enforces independently and restarts reset it.
type RateLimiter struct {
	maxRequests int
	window      time.Duration
	mu          sync.Mutex
	users       map[string]*userWindow
	stop        chan struct{}
}

type userWindow struct {
	timestamps []time.Time
	lastAccess time.Time
}

// NewRateLimiter allows maxRequests per window for each key.
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		users:       make(map[string]*userWindow),
		stop:        make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

func (rl *RateLimiter) Allow(_ context.Context, key string) (bool, time.Duration) {
	return rl.allow(key, time.Now())
}

func (rl *RateLimiter) allow(key string, now time.Time) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	uw, ok := rl.users[key]
	if !ok {
		uw = &userWindow{}
		rl.users[key] = uw
	}

	// Drop timestamps outside the window
	cutoff := now.Add(-rl.window)
	start := 0
	for start < len(uw.timestamps) && !uw.timestamps[start].After(cutoff) {
		start++
	}
	uw.timestamps = uw.timestamps[start:]
	uw.lastAccess = now

	if len(uw.timestamps) >= rl.maxRequests {
		return false, uw.timestamps[0].Add(rl.window).Sub(now)
	}

	uw.timestamps = append(uw.timestamps, now)
	return true, 0
}

// cleanup removes idle keys every minute until Stop.
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.evictIdle(time.Now().Add(-5 * time.Minute))
		}
	}
}

func (rl *RateLimiter) evictIdle(cutoff time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, uw := range rl.users {
		if uw.lastAccess.Before(cutoff) {
			delete(rl.users, key)
		}
	}
}

func (rl *RateLimiter) Stop() { close(rl.stop) }

// CounterStore is the persistent counter the Postgres limiter needs.
type CounterStore interface {
	IncrementCounter(key string, windowStart time.Time) (int, error)
}

// PostgresLimiter is a fixed-window limiter shared by every process through
// the rate_limit_counters table. Store errors let the request through.
type PostgresLimiter struct {
	store       CounterStore
	maxRequests int
	window      time.Duration
	now         func() time.Time
}

func NewPostgresLimiter(store CounterStore, maxRequests int, window time.Duration) *PostgresLimiter {
	return &PostgresLimiter{store: store, maxRequests: maxRequests, window: window, now: time.Now}
}

func (pl *PostgresLimiter) Allow(_ context.Context, key string) (bool, time.Duration) {
	now := pl.now().UTC()
	windowStart := now.Truncate(pl.window)

	count, err := pl.store.IncrementCounter(key, windowStart)
	if err != nil {
		log.Printf("[ratelimit] counter unavailable, allowing %s: %v", key, err)
		return true, 0
	}
	if count > pl.maxRequests {
		return false, windowStart.Add(pl.window).Sub(now)
	}
	return true, 0
}

// RateLimit applies limiter per signed-in user, or per client IP for
// anonymous requests.
func RateLimit(limiter Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, userID := "ip:"+clientIP(r), ""
			if authCtx := GetAuthContext(r.Context()); authCtx != nil {
				key, userID = "user:"+authCtx.UserID, authCtx.UserID
			}

			allowed, retryAfter := limiter.Allow(r.Context(), key)
			if !allowed {
				observability.RecordRateLimited()
				observability.LogSecurityEvent(GetRequestID(r.Context()), userID, "rate_limited", map[string]any{
					"path": r.URL.Path,
				})
				w.Header().Set("Retry-After", strconv.Itoa(retrySeconds(retryAfter)))
				writeJSONError(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Too many requests. Please slow down.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func retrySeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// clientIP keys anonymous callers by the connection peer. Forwarding headers
// are client controlled and never used.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
