package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kleinanzeigen-agent/kleinanzeigen-mcp/internal/listing"
)

// countingLimiter records how many tokens were acquired.
type countingLimiter struct {
	acquired atomic.Int64
}

func (l *countingLimiter) Acquire(context.Context) error {
	l.acquired.Add(1)
	return nil
}

// noSleep makes retry backoff instantaneous while recording the delays.
func noSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...ClientOption) (*Client, *countingLimiter) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	limiter := &countingLimiter{}
	base := []ClientOption{
		WithHTTPClient(srv.Client()),
		withSleep(func(context.Context, time.Duration) error { return nil }),
	}
	return NewClient(srv.URL, "test-key", limiter, append(base, opts...)...), limiter
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int64
	c, limiter := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"success": true, "categories": []}`))
	})

	body, err := c.Categories(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(body) == 0 {
		t.Error("empty body on success")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("upstream calls = %d, want 3", got)
	}
	if got := limiter.acquired.Load(); got != 3 {
		t.Errorf("tokens acquired = %d, want 3 (one per attempt)", got)
	}
}

func TestFetch_RetriesRateLimited(t *testing.T) {
	var calls atomic.Int64
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"success": true, "categories": []}`))
	})

	if _, err := c.Categories(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("upstream calls = %d, want 2", got)
	}
}

func TestFetch_ClientErrorFailsImmediately(t *testing.T) {
	var calls atomic.Int64
	c, limiter := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.Listing(context.Background(), "12345")
	var uerr *Error
	if !errors.As(err, &uerr) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if !uerr.NotFound() {
		t.Errorf("status = %d, want 404", uerr.Status)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("upstream calls = %d, want 1 (no retry on 4xx)", got)
	}
	if got := limiter.acquired.Load(); got != 1 {
		t.Errorf("tokens acquired = %d, want 1", got)
	}
}

func TestFetch_ExhaustsAttempts(t *testing.T) {
	var calls atomic.Int64
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.Categories(context.Background())
	var uerr *Error
	if !errors.As(err, &uerr) {
		t.Fatalf("err = %v, want wrapped *Error", err)
	}
	if uerr.Status != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", uerr.Status)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("upstream calls = %d, want 3", got)
	}
}

func TestFetch_SendsAuthHeaders(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("ads_key"); got != "test-key" {
			t.Errorf("ads_key = %q, want test-key", got)
		}
		if got := r.Header.Get("Origin"); got != "https://kleinanzeigen-agent.de" {
			t.Errorf("Origin = %q", got)
		}
		if r.Header.Get("User-Agent") == "" {
			t.Error("User-Agent not set")
		}
		w.Write([]byte(`{"success": true, "categories": []}`))
	})

	if _, err := c.Categories(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSearchPage_QueryParams(t *testing.T) {
	min, max := 100, 500
	var gotQuery map[string][]string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"success": true, "data": {"ads": []}}`))
	})

	req := listing.SearchRequest{
		Query:    "fahrrad",
		Location: "Berlin",
		Radius:   25,
		MinPrice: &min,
		MaxPrice: &max,
		Sort:     "price_asc",
	}
	if _, err := c.SearchPage(context.Background(), req, 2, 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]string{
		"query":     "fahrrad",
		"location":  "Berlin",
		"radius":    "25",
		"min_price": "100",
		"max_price": "500",
		"sort":      "price_asc",
		"page":      "2",
		"limit":     "10",
	}
	for k, v := range want {
		if got := gotQuery[k]; len(got) != 1 || got[0] != v {
			t.Errorf("param %s = %v, want %q", k, got, v)
		}
	}
}

func TestFetch_BackoffSchedule(t *testing.T) {
	var delays []time.Duration
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	},
		WithRetryPolicy(Policy{MaxAttempts: 4, BaseDelay: time.Second, Multiplier: 2, MaxDelay: 3 * time.Second}),
		withSleep(noSleep(&delays)),
	)

	if _, err := c.Categories(context.Background()); err == nil {
		t.Fatal("want error after exhausting attempts")
	}

	want := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestFetch_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	},
		withSleep(func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		}),
	)

	_, err := c.Categories(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestFetch_BreakerOpensAndShortCircuits(t *testing.T) {
	var calls atomic.Int64
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	},
		WithRetryPolicy(Policy{MaxAttempts: 1, BaseDelay: time.Second, Multiplier: 2, MaxDelay: time.Second}),
		WithBreaker(NewBreaker(2, time.Minute)),
	)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := c.Categories(ctx); err == nil {
			t.Fatal("want error from failing upstream")
		}
	}

	before := calls.Load()
	_, err := c.Categories(ctx)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if calls.Load() != before {
		t.Error("open breaker still issued an upstream call")
	}
}

func TestPolicy_Delay(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: time.Second, Multiplier: 2, MaxDelay: 30 * time.Second}

	cases := []struct {
		retry int
		want  time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{10, 30 * time.Second},
	}
	for _, tc := range cases {
		if got := p.delay(tc.retry); got != tc.want {
			t.Errorf("delay(%d) = %v, want %v", tc.retry, got, tc.want)
		}
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	current := time.Unix(1000, 0)
	b := NewBreaker(2, 30*time.Second)
	b.now = func() time.Time { return current }

	b.Failure()
	b.Failure()
	if b.State() != "open" {
		t.Fatalf("state = %s, want open after 2 failures", b.State())
	}
	if err := b.Allow(); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Allow during cooldown = %v, want ErrUnavailable", err)
	}

	current = current.Add(31 * time.Second)
	if err := b.Allow(); err != nil {
		t.Fatalf("Allow after cooldown = %v, want probe admitted", err)
	}
	if err := b.Allow(); !errors.Is(err, ErrUnavailable) {
		t.Fatal("second concurrent probe admitted, want ErrUnavailable")
	}

	b.Success()
	if b.State() != "closed" {
		t.Errorf("state = %s, want closed after successful probe", b.State())
	}
	if err := b.Allow(); err != nil {
		t.Errorf("Allow after close = %v", err)
	}
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	current := time.Unix(1000, 0)
	b := NewBreaker(1, 30*time.Second)
	b.now = func() time.Time { return current }

	b.Failure()
	current = current.Add(31 * time.Second)
	if err := b.Allow(); err != nil {
		t.Fatalf("probe not admitted: %v", err)
	}
	b.Failure()
	if b.State() != "open" {
		t.Errorf("state = %s, want open after failed probe", b.State())
	}
	if err := b.Allow(); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Allow = %v, want ErrUnavailable", err)
	}
}
