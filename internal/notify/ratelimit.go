package notify

import (
	"sync"
	"time"
)

// RateLimiter implements sliding window rate limiting for notifications
type RateLimiter struct {
	mu        sync.Mutex
	events    map[string][]time.Time
	interval  time.Duration
	maxEvents int
}

// NewRateLimiter creates new rate limiter
func NewRateLimiter(interval time.Duration, maxEvents int) *RateLimiter {
	return &RateLimiter{
		events:    make(map[string][]time.Time),
		interval:  interval,
		maxEvents: maxEvents,
	}
}

// Allow checks if a notification on key is allowed under rate limits
func (r *RateLimiter) Allow(key string) bool {
	return r.allowAt(key, time.Now())
}

func (r *RateLimiter) allowAt(key string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Clean expired timestamps
	valid := r.events[key][:0]
	for _, ts := range r.events[key] {
		if now.Sub(ts) < r.interval {
			valid = append(valid, ts)
		}
	}

	if len(valid) >= r.maxEvents {
		r.events[key] = valid
		return false
	}

	r.events[key] = append(valid, now)
	return true
}
