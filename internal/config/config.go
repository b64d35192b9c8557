// Package config provides the configuration schema and loader for the
// Kleinanzeigen MCP server.
package config

import (
	"fmt"
	"time"
)

// LogLevel controls log verbosity for the server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Transport selects how the MCP server talks to its caller.
type Transport string

const (
	// TransportStdio serves MCP over stdin/stdout. This is the default and
	// what desktop MCP clients expect.
	TransportStdio Transport = "stdio"

	// TransportStreamableHTTP serves MCP over the streamable-HTTP transport
	// on Server.ListenAddr.
	TransportStreamableHTTP Transport = "streamable-http"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	return t == TransportStdio || t == TransportStreamableHTTP
}

// Duration wraps [time.Duration] so config files can use human-readable
// values like "30s" or "1.5s".
type Duration time.Duration

// UnmarshalYAML parses a duration string via [time.ParseDuration].
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in its canonical string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped [time.Duration].
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration structure. It is loaded once at startup
// via [Load] and treated as immutable afterwards; no component reads
// configuration ad hoc mid-pipeline.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Retry     RetryConfig     `yaml:"retry"`
}

// ServerConfig holds transport and logging settings for the MCP server.
type ServerConfig struct {
	// Transport selects the MCP transport. Default: stdio.
	Transport Transport `yaml:"transport"`

	// ListenAddr is the TCP address for the HTTP side of the server. It is
	// required for the streamable-http transport; with stdio transport a
	// non-empty value additionally enables the /healthz, /readyz and
	// /metrics endpoints on that address.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Default: info.
	LogLevel LogLevel `yaml:"log_level"`
}

// UpstreamConfig describes the third-party scraping API.
type UpstreamConfig struct {
	// BaseURL is the API root, without a trailing slash.
	// Default: https://api.kleinanzeigen-agent.de
	BaseURL string `yaml:"base_url"`

	// APIKey is sent in the ads_key header on every request. It can also be
	// supplied through the KLEINANZEIGEN_API_KEY environment variable, which
	// takes precedence over the file value.
	APIKey string `yaml:"api_key"`

	// Timeout applies per HTTP attempt. Default: 30s.
	Timeout Duration `yaml:"timeout"`

	// MaxResultsPerPage caps the limit parameter sent upstream. The API
	// itself never returns more than 10 items per request. Default: 10.
	MaxResultsPerPage int `yaml:"max_results_per_page"`

	// MaxPages caps how many result pages a single search may fetch.
	// Default: 20.
	MaxPages int `yaml:"max_pages"`
}

// RateLimitConfig bounds outbound request issuance.
type RateLimitConfig struct {
	// RequestsPerMinute is the token bucket capacity; tokens refill
	// continuously at RequestsPerMinute/60 per second. Default: 60.
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// RetryConfig tunes the retry/backoff behaviour of the upstream client.
// It is read-only after startup and applied per outbound call.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first.
	// Default: 3.
	MaxAttempts int `yaml:"max_attempts"`

	// BaseDelay is the delay before the first retry. Default: 1s.
	BaseDelay Duration `yaml:"base_delay"`

	// Multiplier grows the delay per attempt. Default: 2.
	Multiplier float64 `yaml:"multiplier"`

	// MaxDelay caps the backoff delay. Default: 30s.
	MaxDelay Duration `yaml:"max_delay"`
}
