package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults mirror the production service limits.
const (
	DefaultBaseURL           = "https://api.kleinanzeigen-agent.de"
	DefaultTimeout           = 30 * time.Second
	DefaultMaxResultsPerPage = 10
	DefaultMaxPages          = 20
	DefaultRequestsPerMinute = 60
	DefaultMaxAttempts       = 3
	DefaultBaseDelay         = time.Second
	DefaultMultiplier        = 2.0
	DefaultMaxDelay          = 30 * time.Second
)

// APIKeyEnv is the environment variable that overrides upstream.api_key.
const APIKeyEnv = "KLEINANZEIGEN_API_KEY"

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and the
// API-key environment override, and validates the result. Useful in tests
// where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if key := os.Getenv(APIKeyEnv); key != "" {
		cfg.Upstream.APIKey = key
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero-valued fields with production defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.Transport == "" {
		cfg.Server.Transport = TransportStdio
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Upstream.BaseURL == "" {
		cfg.Upstream.BaseURL = DefaultBaseURL
	}
	cfg.Upstream.BaseURL = strings.TrimRight(cfg.Upstream.BaseURL, "/")
	if cfg.Upstream.Timeout == 0 {
		cfg.Upstream.Timeout = Duration(DefaultTimeout)
	}
	if cfg.Upstream.MaxResultsPerPage == 0 {
		cfg.Upstream.MaxResultsPerPage = DefaultMaxResultsPerPage
	}
	if cfg.Upstream.MaxPages == 0 {
		cfg.Upstream.MaxPages = DefaultMaxPages
	}
	if cfg.RateLimit.RequestsPerMinute == 0 {
		cfg.RateLimit.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = Duration(DefaultBaseDelay)
	}
	if cfg.Retry.Multiplier == 0 {
		cfg.Retry.Multiplier = DefaultMultiplier
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = Duration(DefaultMaxDelay)
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.Transport.IsValid() {
		errs = append(errs, fmt.Errorf("server.transport %q is invalid; valid values: stdio, streamable-http", cfg.Server.Transport))
	}
	if cfg.Server.Transport == TransportStreamableHTTP && cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required when transport is streamable-http"))
	}
	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if !strings.HasPrefix(cfg.Upstream.BaseURL, "http://") && !strings.HasPrefix(cfg.Upstream.BaseURL, "https://") {
		errs = append(errs, fmt.Errorf("upstream.base_url %q must start with http:// or https://", cfg.Upstream.BaseURL))
	}
	if cfg.Upstream.Timeout < 0 {
		errs = append(errs, fmt.Errorf("upstream.timeout %v must not be negative", cfg.Upstream.Timeout.Std()))
	}
	if cfg.Upstream.MaxResultsPerPage < 1 {
		errs = append(errs, fmt.Errorf("upstream.max_results_per_page %d must be at least 1", cfg.Upstream.MaxResultsPerPage))
	}
	if cfg.Upstream.MaxPages < 1 {
		errs = append(errs, fmt.Errorf("upstream.max_pages %d must be at least 1", cfg.Upstream.MaxPages))
	}

	if cfg.RateLimit.RequestsPerMinute < 1 {
		errs = append(errs, fmt.Errorf("rate_limit.requests_per_minute %d must be at least 1", cfg.RateLimit.RequestsPerMinute))
	}

	if cfg.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max_attempts %d must be at least 1", cfg.Retry.MaxAttempts))
	}
	if cfg.Retry.BaseDelay < 0 {
		errs = append(errs, fmt.Errorf("retry.base_delay %v must not be negative", cfg.Retry.BaseDelay.Std()))
	}
	if cfg.Retry.Multiplier < 1 {
		errs = append(errs, fmt.Errorf("retry.multiplier %.2f must be at least 1", cfg.Retry.Multiplier))
	}
	if cfg.Retry.MaxDelay < cfg.Retry.BaseDelay {
		errs = append(errs, fmt.Errorf("retry.max_delay %v must not be below retry.base_delay %v", cfg.Retry.MaxDelay.Std(), cfg.Retry.BaseDelay.Std()))
	}

	return errors.Join(errs...)
}
