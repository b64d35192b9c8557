// Package ratelimit implements the token-bucket gate shared by all outbound
// upstream requests.
//
// The bucket holds one token per permitted request; capacity equals the
// configured requests-per-minute and tokens refill continuously at
// capacity/60 per second. Every outbound HTTP call, including retries, must
// acquire a token before it is issued; no call bypasses the limiter.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// tokenEpsilon absorbs float rounding at the grant boundary so a caller that
// waited out the computed refill time is never sent back to sleep for a
// sub-nanosecond deficit.
const tokenEpsilon = 1e-9

// Limiter is a token-bucket rate limiter. It is safe for concurrent use;
// the single internal mutex is the only synchronization point shared across
// invocations. The zero value is not usable; create instances with [New].
type Limiter struct {
	mu           sync.Mutex
	capacity     float64
	refillPerSec float64
	tokens       float64
	lastRefill   time.Time

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// Option configures a [Limiter].
type Option func(*Limiter)

// WithClock replaces the wall clock and the sleep function, allowing
// deterministic tests. sleep must return ctx.Err() when the context is
// cancelled before the duration elapses.
func WithClock(now func() time.Time, sleep func(context.Context, time.Duration) error) Option {
	return func(l *Limiter) {
		l.now = now
		l.sleep = sleep
	}
}

// New creates a [Limiter] admitting requestsPerMinute requests per minute.
// The bucket starts full. requestsPerMinute values below 1 are clamped to 1.
func New(requestsPerMinute int, opts ...Option) *Limiter {
	if requestsPerMinute < 1 {
		requestsPerMinute = 1
	}
	l := &Limiter{
		capacity:     float64(requestsPerMinute),
		refillPerSec: float64(requestsPerMinute) / 60.0,
		tokens:       float64(requestsPerMinute),
		now:          time.Now,
		sleep:        sleepContext,
	}
	for _, o := range opts {
		o(l)
	}
	l.lastRefill = l.now()
	return l
}

// Acquire blocks until a token is available, then consumes it. If a token is
// free the call returns immediately; otherwise the caller is suspended for
// the computed wait until the next token and then retries. Requests are never
// dropped. Returns ctx.Err() if ctx is cancelled while waiting.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		l.mu.Lock()
		l.refillLocked()
		if l.tokens+tokenEpsilon >= 1 {
			l.tokens--
			if l.tokens < 0 {
				l.tokens = 0
			}
			l.mu.Unlock()
			return nil
		}
		// Wait until the fractional deficit for one token is refilled.
		wait := time.Duration(math.Ceil((1 - l.tokens) / l.refillPerSec * float64(time.Second)))
		l.mu.Unlock()

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Available returns the number of whole tokens currently in the bucket.
func (l *Limiter) Available() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refillLocked()
	return int(l.tokens)
}

// Reset refills the bucket to capacity.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokens = l.capacity
	l.lastRefill = l.now()
}

// refillLocked adds tokens for the time elapsed since the last refill,
// capped at capacity. Must be called with l.mu held.
func (l *Limiter) refillLocked() {
	now := l.now()
	elapsed := now.Sub(l.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	l.tokens += elapsed * l.refillPerSec
	if l.tokens > l.capacity {
		l.tokens = l.capacity
	}
	l.lastRefill = now
}

// sleepContext sleeps for d, returning early with ctx.Err() on cancellation.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
