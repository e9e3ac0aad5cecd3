// Package ratelimit provides per-key token bucket rate limiting for client
// commands and MCP tools.
package ratelimit

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned by Check when a key has exhausted its bucket.
var ErrRateLimited = errors.New("rate limit exceeded")

// Limiter implements a per-key token bucket rate limiter on top of
// rate.Limiter. Each key gets its own bucket with the configured rate and
// burst. It is safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
	nowFunc  func() time.Time // injectable clock for testing
}

// NewLimiter creates a rate limiter with the given rate (tokens/sec) and burst size.
// The burst size also serves as the initial number of tokens available.
func NewLimiter(perSecond float64, burst int) *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(perSecond),
		burst:    burst,
		nowFunc:  time.Now,
	}
}

// Allow checks if a request for the given key should be allowed.
// Returns true if allowed, false if rate limited.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.rate, l.burst)
		l.limiters[key] = lim
	}
	now := l.nowFunc()
	l.mu.Unlock()

	return lim.AllowN(now, 1)
}

// Check is Allow with an error return naming the key.
func (l *Limiter) Check(key string) error {
	if !l.Allow(key) {
		return fmt.Errorf("%w for %s, please try again shortly", ErrRateLimited, key)
	}
	return nil
}

// Forget drops the bucket for key, e.g. when a client disconnects.
func (l *Limiter) Forget(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, key)
}

// ForgetPrefix drops every bucket whose key starts with prefix.
func (l *Limiter) ForgetPrefix(prefix string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key := range l.limiters {
		if strings.HasPrefix(key, prefix) {
			delete(l.limiters, key)
		}
	}
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// ToolLimiters maps tool names to their rate limiters.
type ToolLimiters map[string]*Limiter

// NewToolLimiters creates the default set of per-tool rate limiters.
// Reads are generous; bulk mutations are tighter.
func NewToolLimiters() ToolLimiters {
	return ToolLimiters{
		"solirona_state":          NewLimiter(5.0, 20),      // 300/minute, burst 20
		"solirona_stats":          NewLimiter(5.0, 20),      // 300/minute, burst 20
		"solirona_step":           NewLimiter(2.0, 10),      // 120/minute, burst 10
		"solirona_set_params":     NewLimiter(1.0, 5),       // 60/minute, burst 5
		"solirona_rotate":         NewLimiter(2.0, 10),      // 120/minute, burst 10
		"solirona_add_node":       NewLimiter(5.0, 20),      // 300/minute, burst 20
		"solirona_remove_node":    NewLimiter(5.0, 20),      // 300/minute, burst 20
		"solirona_reconnect":      NewLimiter(30.0/60.0, 5), // 30/minute, burst 5
		"solirona_set_population": NewLimiter(30.0/60.0, 5), // 30/minute, burst 5
		"solirona_collapse":       NewLimiter(2.0, 10),      // 120/minute, burst 10
	}
}

// CheckLimit checks the rate limit for a given tool name.
// Returns nil if allowed, or an error if rate limited.
// Tools without a configured limiter are always allowed.
func CheckLimit(limiters ToolLimiters, toolName string) error {
	limiter, ok := limiters[toolName]
	if !ok {
		return nil // No limiter configured = no limit
	}
	return limiter.Check(toolName)
}
