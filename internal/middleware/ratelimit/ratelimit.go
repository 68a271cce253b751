// Package ratelimit caps request rates per client IP using a sliding
// one-minute window.
package ratelimit

import (
	"net/http"
	"sync"
	"time"
)

// Config holds rate limiter configuration.
type Config struct {
	RequestsPerMinute int
	CleanupInterval   time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 120,
		CleanupInterval:   5 * time.Minute,
	}
}

// Limiter tracks request timestamps per client and rejects requests once
// a client exceeds the per-minute limit. Idle clients are evicted by a
// background sweep.
type Limiter struct {
	mu      sync.Mutex
	history map[string][]time.Time

	limit    int
	window   time.Duration
	stop     chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

func NewLimiter(config Config) *Limiter {
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = DefaultConfig().RequestsPerMinute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultConfig().CleanupInterval
	}

	rl := &Limiter{
		history: make(map[string][]time.Time),
		limit:   config.RequestsPerMinute,
		window:  time.Minute,
		stop:    make(chan struct{}),
		now:     time.Now,
	}
	go rl.sweep(config.CleanupInterval)
	return rl
}

// Allow records a request from clientIP and reports whether it fits
// inside the window.
func (rl *Limiter) Allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	kept := pruneBefore(rl.history[clientIP], now.Add(-rl.window))
	if len(kept) >= rl.limit {
		rl.history[clientIP] = kept
		return false
	}
	rl.history[clientIP] = append(kept, now)
	return true
}

// pruneBefore drops timestamps older than cutoff. The slice is kept in
// arrival order, so the first retained index covers the rest.
func pruneBefore(stamps []time.Time, cutoff time.Time) []time.Time {
	for i, ts := range stamps {
		if ts.After(cutoff) {
			return stamps[i:]
		}
	}
	return stamps[:0]
}

func (rl *Limiter) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.evictIdle()
		case <-rl.stop:
			return
		}
	}
}

func (rl *Limiter) evictIdle() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.window)
	for ip, stamps := range rl.history {
		if kept := pruneBefore(stamps, cutoff); len(kept) == 0 {
			delete(rl.history, ip)
		} else {
			rl.history[ip] = kept
		}
	}
}

// ActiveClients returns the number of currently tracked clients.
func (rl *Limiter) ActiveClients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.history)
}

// Stop terminates the background sweep goroutine.
func (rl *Limiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stop)
	})
}

// Middleware wraps next with the rate limit check. onLimit handles
// rejected requests; when nil a plain 429 is written.
func (rl *Limiter) Middleware(extractIP func(*http.Request) string, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(extractIP(r)) {
				if onLimit != nil {
					onLimit(w, r)
				} else {
					w.Header().Set("Retry-After", "60")
					http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				}
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
