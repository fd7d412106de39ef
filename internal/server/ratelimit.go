package server

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// RateLimiter implements a token bucket rate limiter.
type RateLimiter struct {
	lastUpdate time.Time
	rate       float64
	burst      int
	tokens     float64
	requests   int64
	rejected   int64
	mu         sync.Mutex
}

// NewRateLimiter creates a limiter allowing rate requests per second with bursts up to burst.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	return &RateLimiter{
		rate:       rate,
		burst:      burst,
		tokens:     float64(burst),
		lastUpdate: time.Now(),
	}
}

// Allow reports whether a request may proceed now.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.requests++

	now := time.Now()
	elapsed := now.Sub(rl.lastUpdate).Seconds()
	rl.tokens += elapsed * rl.rate
	if rl.tokens > float64(rl.burst) {
		rl.tokens = float64(rl.burst)
	}
	rl.lastUpdate = now

	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}

	rl.rejected++
	return false
}

// ClientLimiter keeps one token bucket per client key.
type ClientLimiter struct {
	lastCleanup     time.Time
	clients         map[string]*RateLimiter
	rate            float64
	burst           int
	cleanupInterval time.Duration
	maxIdleTime     time.Duration
	mu              sync.Mutex
}

// NewClientLimiter creates a per-client limiter.
func NewClientLimiter(rate float64, burst int) *ClientLimiter {
	return &ClientLimiter{
		rate:            rate,
		burst:           burst,
		clients:         make(map[string]*RateLimiter),
		cleanupInterval: 5 * time.Minute,
		maxIdleTime:     10 * time.Minute,
		lastCleanup:     time.Now(),
	}
}

func (cl *ClientLimiter) getLimiter(key string) *RateLimiter {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if time.Since(cl.lastCleanup) > cl.cleanupInterval {
		cl.cleanupLocked()
	}

	limiter, exists := cl.clients[key]
	if !exists {
		limiter = NewRateLimiter(cl.rate, cl.burst)
		cl.clients[key] = limiter
	}
	return limiter
}

// cleanupLocked removes idle limiters. Caller holds cl.mu.
func (cl *ClientLimiter) cleanupLocked() {
	now := time.Now()
	for key, limiter := range cl.clients {
		limiter.mu.Lock()
		idle := now.Sub(limiter.lastUpdate) > cl.maxIdleTime
		limiter.mu.Unlock()
		if idle {
			delete(cl.clients, key)
		}
	}
	cl.lastCleanup = now
}

// Allow reports whether a request from clientKey may proceed.
func (cl *ClientLimiter) Allow(clientKey string) bool {
	return cl.getLimiter(clientKey).Allow()
}

// Clients returns the number of tracked clients.
func (cl *ClientLimiter) Clients() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return len(cl.clients)
}

// RateLimit applies per-client limits keyed by the client host. Behind a
// proxy, chi's RealIP middleware must run first.
func RateLimit(limiter *ClientLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(clientKey(r)) {
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
