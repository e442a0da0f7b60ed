package middleware

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// ProxyLimiter is a single token bucket guarding the LLM proxy routes.
// The tool is single-user, so one process-wide bucket is enough to keep
// a misbehaving client from hammering the configured provider.
type ProxyLimiter struct {
	mu       sync.Mutex
	tokens   float64
	rate     float64 // tokens per second
	burst    float64
	lastFill time.Time
}

func NewProxyLimiter(rps float64, burst int) *ProxyLimiter {
	return &ProxyLimiter{
		tokens:   float64(burst),
		rate:     rps,
		burst:    float64(burst),
		lastFill: time.Now(),
	}
}

func (pl *ProxyLimiter) allow() bool {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	now := time.Now()
	pl.tokens += now.Sub(pl.lastFill).Seconds() * pl.rate
	if pl.tokens > pl.burst {
		pl.tokens = pl.burst
	}
	pl.lastFill = now

	if pl.tokens < 1 {
		return false
	}
	pl.tokens--
	return true
}

func (pl *ProxyLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !pl.allow() {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
