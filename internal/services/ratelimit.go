package services

import (
	"sync"
	"time"
)

// RateLimiter is a fixed-capacity sliding-window counter keyed by an
// arbitrary string. State is process-local and ephemeral; construct one
// instance per process (or per test) and inject it — it is advisory
// throttling, not hard admission control.
type RateLimiter struct {
	mu     sync.Mutex
	events map[string][]time.Time
	now    func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		events: make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Check records one event for key and returns ErrRateLimitExceeded when
// key already has limit accepted events inside the trailing window.
// Rejected attempts are not recorded.
func (rl *RateLimiter) Check(key string, limit int, window time.Duration) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-window)

	// Timestamps are strictly increasing, so a prefix trim suffices.
	events := rl.events[key]
	start := 0
	for start < len(events) && !events[start].After(cutoff) {
		start++
	}
	events = events[start:]

	if len(events) >= limit {
		rl.events[key] = events
		return ErrRateLimitExceeded
	}

	rl.events[key] = append(events, now)
	return nil
}

// Reset clears all counters. Intended for tests.
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.events = make(map[string][]time.Time)
}
