package router

import (
	"sync"
	"time"
)

// RateLimiter implements per-connection rate limiting
// ARCHITECTURAL DISCOVERY: Keyed by connection id, since usernames are not
// unique until the tracker supersedes an older session.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	clients map[string]*clientLimit
}

// clientLimit tracks the current window for a single connection
type clientLimit struct {
	messageCount int
	windowStart  time.Time
}

// NewRateLimiter allows limit sends per window; a limit <= 0 disables limiting
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		limit:   limit,
		window:  window,
		clients: make(map[string]*clientLimit),
	}
}

// Allow reports whether connID may send another message
func (rl *RateLimiter) Allow(connID string) bool {
	if rl.limit <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	limit, exists := rl.clients[connID]
	if !exists || now.Sub(limit.windowStart) >= rl.window {
		rl.clients[connID] = &clientLimit{messageCount: 1, windowStart: now}
		return true
	}

	if limit.messageCount >= rl.limit {
		return false
	}
	limit.messageCount++
	return true
}

// Cleanup removes entries idle for more than five windows
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	now := time.Now()
	for connID, limit := range rl.clients {
		if now.Sub(limit.windowStart) > 5*rl.window {
			delete(rl.clients, connID)
			removed++
		}
	}
	return removed
}

// Tracked returns how many connections currently hold limiter state
func (rl *RateLimiter) Tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}
