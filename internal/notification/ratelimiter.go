package notification

import (
	"sync"
	"time"
)

// RateLimiter bounds how many notifications one engine instance creates in
// a sliding window. It is scoped to the engine, not global, so independent
// services rate limit independently.
type RateLimiter struct {
	mu        sync.Mutex
	window    time.Duration
	maxEvents int
	events    []time.Time
}

// NewRateLimiter creates a rate limiter allowing maxEvents per window.
func NewRateLimiter(window time.Duration, maxEvents int) *RateLimiter {
	return &RateLimiter{
		window:    window,
		maxEvents: maxEvents,
		events:    make([]time.Time, 0, maxEvents),
	}
}

// Allow reports whether another event fits in the current window and
// records it if so.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	// Drop events that slid out of the window.
	kept := rl.events[:0]
	for _, t := range rl.events {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	rl.events = kept

	if len(rl.events) >= rl.maxEvents {
		return false
	}
	rl.events = append(rl.events, now)
	return true
}
