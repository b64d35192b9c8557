// Package observe provides OpenTelemetry metrics for the adapter: tool-call
// and upstream-request counters plus latency histograms.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all adapter metrics.
const meterName = "github.com/kleinanzeigen-agent/kleinanzeigen-mcp"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// ToolDuration tracks end-to-end tool invocation latency.
	ToolDuration metric.Float64Histogram

	// UpstreamRequests counts upstream HTTP attempts. Use with attributes:
	//   attribute.String("endpoint", ...), attribute.String("status", ...)
	UpstreamRequests metric.Int64Counter

	// UpstreamRetries counts retried upstream attempts by endpoint.
	UpstreamRetries metric.Int64Counter

	// UpstreamDuration tracks single-attempt upstream request latency.
	UpstreamDuration metric.Float64Histogram

	// RateLimitWait tracks how long callers waited for a rate-limiter token.
	RateLimitWait metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// upstream HTTP latencies and limiter waits.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ToolCalls, err = m.Int64Counter("kleinanzeigen.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.ToolDuration, err = m.Float64Histogram("kleinanzeigen.tool.duration",
		metric.WithDescription("End-to-end tool invocation latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.UpstreamRequests, err = m.Int64Counter("kleinanzeigen.upstream.requests",
		metric.WithDescription("Total upstream HTTP attempts by endpoint and status."),
	); err != nil {
		return nil, err
	}
	if met.UpstreamRetries, err = m.Int64Counter("kleinanzeigen.upstream.retries",
		metric.WithDescription("Total retried upstream attempts by endpoint."),
	); err != nil {
		return nil, err
	}
	if met.UpstreamDuration, err = m.Float64Histogram("kleinanzeigen.upstream.duration",
		metric.WithDescription("Single-attempt upstream request latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RateLimitWait, err = m.Float64Histogram("kleinanzeigen.ratelimit.wait",
		metric.WithDescription("Time spent waiting for a rate-limiter token."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordToolCall records a tool call counter increment with the standard
// attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}

// RecordUpstreamRequest records one upstream HTTP attempt.
func (m *Metrics) RecordUpstreamRequest(ctx context.Context, endpoint, status string) {
	m.UpstreamRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("endpoint", endpoint),
			attribute.String("status", status),
		),
	)
}

// RecordUpstreamRetry records one retried upstream attempt.
func (m *Metrics) RecordUpstreamRetry(ctx context.Context, endpoint string) {
	m.UpstreamRetries.Add(ctx, 1,
		metric.WithAttributes(attribute.String("endpoint", endpoint)),
	)
}
