// Package upstream implements the HTTP client for the classifieds API,
// combining the shared rate limiter, retry with exponential backoff and a
// circuit breaker in front of every request.
package upstream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kleinanzeigen-agent/kleinanzeigen-mcp/internal/listing"
	"github.com/kleinanzeigen-agent/kleinanzeigen-mcp/internal/observe"
)

const (
	basePath = "/ads/v1/kleinanzeigen"

	apiKeyHeader = "ads_key"
	originHeader = "https://kleinanzeigen-agent.de"
	userAgent    = "Mozilla/5.0 (compatible; KleinanzeigenMCP/1.0)"

	// maxBodyBytes caps how much of a response body is read. Upstream pages
	// are small; anything larger is malformed.
	maxBodyBytes = 8 << 20
)

// TokenSource gates outbound requests. Acquire blocks until a request may be
// issued, honouring context cancellation.
type TokenSource interface {
	Acquire(ctx context.Context) error
}

// Client issues requests against the classifieds API. Every attempt,
// including retries, acquires a rate-limiter token before it is sent.
// Construct instances with [NewClient]; the zero value is not usable.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    TokenSource
	policy     Policy
	breaker    *Breaker
	metrics    *observe.Metrics
	logger     *slog.Logger

	sleep func(context.Context, time.Duration) error
}

// ClientOption configures a [Client].
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying [http.Client].
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetryPolicy replaces the default retry schedule.
func WithRetryPolicy(p Policy) ClientOption {
	return func(c *Client) { c.policy = p }
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(b *Breaker) ClientOption {
	return func(c *Client) { c.breaker = b }
}

// WithMetrics replaces the default metrics instance.
func WithMetrics(m *observe.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// withSleep replaces the backoff sleep for deterministic tests.
func withSleep(sleep func(context.Context, time.Duration) error) ClientOption {
	return func(c *Client) { c.sleep = sleep }
}

// NewClient creates a [Client] for the API at baseURL, authenticating with
// apiKey and gating every request through limiter.
func NewClient(baseURL, apiKey string, limiter TokenSource, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    limiter,
		policy:     DefaultPolicy(),
		breaker:    NewBreaker(5, 30*time.Second),
		metrics:    observe.DefaultMetrics(),
		logger:     slog.Default(),
		sleep:      sleepContext,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SearchPage fetches one page of search results. Pages are numbered from 1.
func (c *Client) SearchPage(ctx context.Context, req listing.SearchRequest, page, limit int) ([]byte, error) {
	params := url.Values{}
	if req.Query != "" {
		params.Set("query", req.Query)
	}
	if req.Location != "" {
		params.Set("location", req.Location)
	}
	if req.LocationID != 0 {
		params.Set("location_id", strconv.Itoa(req.LocationID))
	}
	if req.Radius != 0 {
		params.Set("radius", strconv.Itoa(req.Radius))
	}
	if req.MinPrice != nil {
		params.Set("min_price", strconv.Itoa(*req.MinPrice))
	}
	if req.MaxPrice != nil {
		params.Set("max_price", strconv.Itoa(*req.MaxPrice))
	}
	if req.Sort != "" {
		params.Set("sort", req.Sort)
	}
	if req.Category != "" {
		params.Set("category", req.Category)
	}
	params.Set("page", strconv.Itoa(page))
	params.Set("limit", strconv.Itoa(limit))

	return c.Fetch(ctx, "search", basePath+"/search", params)
}

// Listing fetches the detail record for one listing ID.
func (c *Client) Listing(ctx context.Context, id string) ([]byte, error) {
	return c.Fetch(ctx, "ad", basePath+"/ad/"+url.PathEscape(id), nil)
}

// Categories fetches the category index.
func (c *Client) Categories(ctx context.Context) ([]byte, error) {
	return c.Fetch(ctx, "categories", basePath+"/categories", nil)
}

// Locations fetches locations matching query.
func (c *Client) Locations(ctx context.Context, query string, limit int) ([]byte, error) {
	params := url.Values{}
	params.Set("query", query)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	return c.Fetch(ctx, "locations", basePath+"/locations", params)
}

// Docs fetches the upstream API documentation page.
func (c *Client) Docs(ctx context.Context) ([]byte, error) {
	return c.Fetch(ctx, "docs", basePath+"/docs", nil)
}

// Ping issues a lightweight request to verify the API is reachable, for use
// by readiness checks.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Categories(ctx)
	return err
}

// Fetch issues a GET request against path with the given query parameters,
// applying the rate limiter, retry schedule and circuit breaker. endpoint is
// a short label used in metrics and logs.
//
// Responses with a 2xx status return the body. Rate limiting (429) and
// server errors (5xx) are retried up to the policy's attempt budget; any
// other client error fails immediately with an [*Error] that is never
// retried and never trips the breaker.
func (c *Client) Fetch(ctx context.Context, endpoint, path string, params url.Values) ([]byte, error) {
	if err := c.breaker.Allow(); err != nil {
		return nil, err
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var lastErr error
	for attempt := 0; attempt < c.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.policy.delay(attempt - 1)
			c.metrics.RecordUpstreamRetry(ctx, endpoint)
			c.logger.Warn("retrying upstream request",
				"endpoint", endpoint,
				"attempt", attempt+1,
				"delay", delay,
				"error", lastErr)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		// Every attempt consumes a rate-limiter token, retries included.
		waitStart := time.Now()
		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
		c.metrics.RateLimitWait.Record(ctx, time.Since(waitStart).Seconds())

		body, status, err := c.do(ctx, reqURL)
		c.metrics.RecordUpstreamRequest(ctx, endpoint, statusLabel(status, err))
		switch {
		case err != nil:
			// Transport failure, worth another attempt.
			c.breaker.Failure()
			lastErr = err

		case status >= 200 && status < 300:
			c.breaker.Success()
			return body, nil

		case retryable(status):
			c.breaker.Failure()
			lastErr = &Error{Status: status, Body: string(body)}

		default:
			// A definitive client error is not an upstream outage.
			c.breaker.Success()
			return nil, &Error{Status: status, Body: string(body)}
		}
	}

	return nil, fmt.Errorf("upstream %s failed after %d attempts: %w",
		endpoint, c.policy.MaxAttempts, lastErr)
}

// do performs a single HTTP attempt and returns the body and status code.
func (c *Client) do(ctx context.Context, reqURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", originHeader)
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	c.metrics.UpstreamDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func statusLabel(status int, err error) string {
	if err != nil {
		return "transport_error"
	}
	return strconv.Itoa(status)
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
