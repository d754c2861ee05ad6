package server

import (
	"sync"
	"time"
)

// rateLimiter is a token bucket throttling inbound frames for one session.
// Each frame costs one token; tokens refill continuously at burst per
// interval, capped at the burst size.
type rateLimiter struct {
	mu     sync.Mutex
	tokens float64
	burst  float64
	refill float64 // tokens per second
	last   time.Time
}

func newRateLimiter(burst int, interval time.Duration) *rateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if interval <= 0 {
		interval = time.Second
	}

	return &rateLimiter{
		tokens: float64(burst),
		burst:  float64(burst),
		refill: float64(burst) / interval.Seconds(),
		last:   time.Now(),
	}
}

// allow spends one token, reporting false when the bucket is empty.
func (rl *rateLimiter) allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if elapsed := now.Sub(rl.last).Seconds(); elapsed > 0 {
		rl.tokens += elapsed * rl.refill
		if rl.tokens > rl.burst {
			rl.tokens = rl.burst
		}
	}
	rl.last = now

	if rl.tokens < 1 {
		return false
	}
	rl.tokens--
	return true
}
