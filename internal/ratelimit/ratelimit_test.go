package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeClock drives a Limiter deterministically: sleeps advance the clock
// instead of blocking, and every sleep duration is recorded.
type fakeClock struct {
	current time.Time
	slept   []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{current: time.Unix(1700000000, 0)}
}

func (c *fakeClock) now() time.Time { return c.current }

func (c *fakeClock) sleep(_ context.Context, d time.Duration) error {
	c.slept = append(c.slept, d)
	c.current = c.current.Add(d)
	return nil
}

func (c *fakeClock) advance(d time.Duration) { c.current = c.current.Add(d) }

func TestAcquire_FullBucketGrantsImmediately(t *testing.T) {
	clock := newFakeClock()
	l := New(10, WithClock(clock.now, clock.sleep))

	for i := 0; i < 10; i++ {
		if err := l.Acquire(context.Background()); err != nil {
			t.Fatalf("acquire %d: unexpected error: %v", i, err)
		}
	}
	if len(clock.slept) != 0 {
		t.Errorf("slept %v, want no sleeps while tokens remain", clock.slept)
	}
}

func TestAcquire_CapacityPlusOneDelaysExactlyOne(t *testing.T) {
	const capacity = 6
	clock := newFakeClock()
	l := New(capacity, WithClock(clock.now, clock.sleep))

	// capacity instant grants, then one delayed grant.
	for i := 0; i < capacity+1; i++ {
		if err := l.Acquire(context.Background()); err != nil {
			t.Fatalf("acquire %d: unexpected error: %v", i, err)
		}
	}

	if len(clock.slept) != 1 {
		t.Fatalf("slept %d times, want exactly 1", len(clock.slept))
	}
	minWait := time.Duration(60.0 / capacity * float64(time.Second))
	if clock.slept[0] < minWait {
		t.Errorf("delayed grant waited %v, want at least %v", clock.slept[0], minWait)
	}
}

func TestAcquire_RefillRestoresTokens(t *testing.T) {
	clock := newFakeClock()
	l := New(60, WithClock(clock.now, clock.sleep)) // 1 token per second

	// Drain the bucket.
	for i := 0; i < 60; i++ {
		if err := l.Acquire(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := l.Available(); got != 0 {
		t.Fatalf("Available() = %d after drain, want 0", got)
	}

	clock.advance(5 * time.Second)
	if got := l.Available(); got != 5 {
		t.Errorf("Available() = %d after 5s refill, want 5", got)
	}

	// Refill never exceeds capacity.
	clock.advance(time.Hour)
	if got := l.Available(); got != 60 {
		t.Errorf("Available() = %d after long idle, want capacity 60", got)
	}
}

func TestAcquire_CancelledContext(t *testing.T) {
	clock := newFakeClock()
	l := New(1, WithClock(clock.now, func(ctx context.Context, _ time.Duration) error {
		return ctx.Err()
	}))

	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Acquire(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Acquire on cancelled ctx = %v, want context.Canceled", err)
	}
}

func TestReset(t *testing.T) {
	clock := newFakeClock()
	l := New(3, WithClock(clock.now, clock.sleep))

	for i := 0; i < 3; i++ {
		if err := l.Acquire(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := l.Available(); got != 0 {
		t.Fatalf("Available() = %d, want 0", got)
	}

	l.Reset()
	if got := l.Available(); got != 3 {
		t.Errorf("Available() after Reset = %d, want 3", got)
	}
}

func TestAcquire_ConcurrentCallersSerialize(t *testing.T) {
	// Real clock; bucket large enough that nothing blocks. Exercises the
	// mutex path under the race detector.
	l := New(10000)

	done := make(chan error, 50)
	for i := 0; i < 50; i++ {
		go func() {
			done <- l.Acquire(context.Background())
		}()
	}
	for i := 0; i < 50; i++ {
		if err := <-done; err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}
