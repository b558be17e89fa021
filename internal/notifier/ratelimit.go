package notifier

import (
	"sync"
	"time"
)

// RateLimitConfig holds rate limiter configuration.
type RateLimitConfig struct {
	MaxPerWindow int           // Maximum notifications per window (default: 10)
	Window       time.Duration // Time window (default: 1 minute)
	Enabled      bool          // Whether rate limiting is enabled (default: true)
}

// DefaultRateLimitConfig returns default rate limit settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxPerWindow: 10,
		Window:       time.Minute,
		Enabled:      true,
	}
}

// RateLimiter is a sliding window rate limiter for outgoing notifications.
// It caps how many notifications go out per window across all transports.
type RateLimiter struct {
	mu           sync.Mutex
	maxPerWindow int
	window       time.Duration
	timestamps   []time.Time
	dropped      int64
	enabled      bool
}

// NewRateLimiter creates a new rate limiter with the given configuration.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.MaxPerWindow <= 0 {
		config.MaxPerWindow = 10
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}

	return &RateLimiter{
		maxPerWindow: config.MaxPerWindow,
		window:       config.Window,
		timestamps:   make([]time.Time, 0, config.MaxPerWindow),
		enabled:      config.Enabled,
	}
}

// Allow reports whether a notification may go out now under the rate limit.
func (r *RateLimiter) Allow() bool {
	return r.AllowAt(time.Now())
}

// AllowAt is Allow evaluated at an explicit point in time.
func (r *RateLimiter) AllowAt(now time.Time) bool {
	if !r.enabled {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.evict(now.Add(-r.window))

	if len(r.timestamps) >= r.maxPerWindow {
		r.dropped++
		return false
	}

	r.timestamps = append(r.timestamps, now)
	return true
}

// Release refunds the most recently consumed token. Call it when every
// delivery attempt failed after Allow returned true.
func (r *RateLimiter) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.timestamps) > 0 {
		r.timestamps = r.timestamps[:len(r.timestamps)-1]
	}
}

// evict removes timestamps older than the cutoff. Caller holds the mutex.
func (r *RateLimiter) evict(cutoff time.Time) {
	idx := 0
	for idx < len(r.timestamps) && r.timestamps[idx].Before(cutoff) {
		idx++
	}

	if idx > 0 {
		copy(r.timestamps, r.timestamps[idx:])
		r.timestamps = r.timestamps[:len(r.timestamps)-idx]
	}
}

// Dropped returns the number of notifications dropped by the limiter.
func (r *RateLimiter) Dropped() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}
