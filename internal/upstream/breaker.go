package upstream

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrUnavailable is returned by [Client.Fetch] when the breaker is open and
// the cooldown has not yet elapsed.
var ErrUnavailable = errors.New("upstream temporarily unavailable")

// breakerState is the operating mode of a [Breaker].
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "closed"
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker is a three-state circuit breaker guarding the upstream API. After
// maxFailures consecutive failed requests it opens and rejects calls with
// [ErrUnavailable] until cooldown elapses, then admits a single probe. A
// successful probe closes the breaker, a failed one re-opens it.
//
// It is safe for concurrent use.
type Breaker struct {
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time

	mu          sync.Mutex
	state       breakerState
	failures    int
	openedAt    time.Time
	probeActive bool
}

// NewBreaker creates a [Breaker]. Non-positive arguments get defaults of
// 5 failures and a 30 second cooldown.
func NewBreaker(maxFailures int, cooldown time.Duration) *Breaker {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		now:         time.Now,
	}
}

// Allow reports whether a call may proceed. In the open state it returns
// [ErrUnavailable] until the cooldown elapses, then admits one probe call.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		return nil
	case breakerOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return ErrUnavailable
		}
		b.state = breakerHalfOpen
		b.probeActive = true
		slog.Info("circuit breaker transitioning to half-open")
		return nil
	case breakerHalfOpen:
		if b.probeActive {
			return ErrUnavailable
		}
		b.probeActive = true
		return nil
	default:
		return nil
	}
}

// Success records a completed request and closes the breaker.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != breakerClosed {
		slog.Info("circuit breaker closing after successful probe")
	}
	b.state = breakerClosed
	b.failures = 0
	b.probeActive = false
}

// Failure records a failed request. In the closed state it opens the breaker
// once maxFailures consecutive failures accumulate; in the half-open state it
// re-opens immediately.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerHalfOpen:
		b.state = breakerOpen
		b.openedAt = b.now()
		b.probeActive = false
		slog.Warn("circuit breaker re-opened after failed probe")
	case breakerClosed:
		b.failures++
		if b.failures >= b.maxFailures {
			b.state = breakerOpen
			b.openedAt = b.now()
			slog.Warn("circuit breaker opened",
				"consecutive_failures", b.failures)
		}
	}
}

// State returns the current state name, for logs and tests.
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.String()
}
