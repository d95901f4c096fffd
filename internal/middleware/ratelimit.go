package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gluk-w/webssh/internal/logutil"
)

// RateLimiter enforces a sliding-window limit of Max requests per Window for
// every client key.
type RateLimiter struct {
	mu     sync.Mutex
	name   string
	window time.Duration
	max    int
	hits   map[string][]time.Time // client key → request timestamps in window
	nowFn  func() time.Time       // injectable clock for testing
}

func NewRateLimiter(name string, max int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		name:   name,
		window: window,
		max:    max,
		hits:   make(map[string][]time.Time),
		nowFn:  time.Now,
	}
}

// SetNowFunc sets the clock used for the window (tests).
func (rl *RateLimiter) SetNowFunc(fn func() time.Time) {
	rl.mu.Lock()
	rl.nowFn = fn
	rl.mu.Unlock()
}

// Allow records a request for key. When the window is full it returns false
// and how long until the oldest request leaves it.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.nowFn()
	recent := prune(rl.hits[key], now.Add(-rl.window))
	if len(recent) >= rl.max {
		rl.hits[key] = recent
		return false, recent[0].Add(rl.window).Sub(now)
	}
	rl.hits[key] = append(recent, now)
	return true, 0
}

// Prune drops keys with no requests left in the window and returns how many
// keys remain.
func (rl *RateLimiter) Prune() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.nowFn().Add(-rl.window)
	for key, ts := range rl.hits {
		if recent := prune(ts, cutoff); len(recent) == 0 {
			delete(rl.hits, key)
		} else {
			rl.hits[key] = recent
		}
	}
	return len(rl.hits)
}

func prune(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	return ts[i:]
}

// Middleware rejects requests over the limit with 429 and a retryAfter hint
// in seconds. onLimited, if set, is called with the limiter name.
func (rl *RateLimiter) Middleware(logger zerolog.Logger, onLimited func(name string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ClientIP(r)
			ok, wait := rl.Allow(key)
			if !ok {
				secs := int(math.Ceil(wait.Seconds()))
				if secs < 1 {
					secs = 1
				}
				logger.Warn().
					Str("limiter", rl.name).
					Str("ip", logutil.SanitizeForLog(key)).
					Str("path", logutil.SanitizeForLog(r.URL.Path)).
					Msg("rate limit exceeded")
				if onLimited != nil {
					onLimited(rl.name)
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
					"error":      "Too many requests, please try again later",
					"retryAfter": secs,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the host part of r.RemoteAddr (rewritten by chi's RealIP
// when behind a proxy).
func ClientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
