// Command kleinanzeigen-mcp serves the eBay Kleinanzeigen MCP tools over
// stdio or streamable HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kleinanzeigen-agent/kleinanzeigen-mcp/internal/config"
	"github.com/kleinanzeigen-agent/kleinanzeigen-mcp/internal/health"
	"github.com/kleinanzeigen-agent/kleinanzeigen-mcp/internal/observe"
	"github.com/kleinanzeigen-agent/kleinanzeigen-mcp/internal/ratelimit"
	"github.com/kleinanzeigen-agent/kleinanzeigen-mcp/internal/tools"
	"github.com/kleinanzeigen-agent/kleinanzeigen-mcp/internal/upstream"
)

const (
	serverName    = "kleinanzeigen-mcp"
	serverVersion = "1.0.0"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "%s: config file %q not found, copy config.example.yaml to get started\n", serverName, *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "%s: %v\n", serverName, err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// Stdout carries the MCP protocol with the stdio transport, so logs must
	// go to stderr.
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("kleinanzeigen-mcp starting",
		"config", *configPath,
		"transport", cfg.Server.Transport,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Metrics provider ──────────────────────────────────────────────────────
	shutdownMetrics, err := observe.InitProvider(serverName, serverVersion)
	if err != nil {
		slog.Error("failed to initialise metrics provider", "err", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(ctx); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()

	// ── Upstream client ───────────────────────────────────────────────────────
	limiter := ratelimit.New(cfg.RateLimit.RequestsPerMinute)
	client := upstream.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.APIKey, limiter,
		upstream.WithHTTPClient(&http.Client{Timeout: cfg.Upstream.Timeout.Std()}),
		upstream.WithRetryPolicy(upstream.Policy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay.Std(),
			Multiplier:  cfg.Retry.Multiplier,
			MaxDelay:    cfg.Retry.MaxDelay.Std(),
		}),
		upstream.WithLogger(logger),
	)

	// ── MCP server ────────────────────────────────────────────────────────────
	server := tools.NewServer(serverName, serverVersion, client,
		tools.WithPageLimits(cfg.Upstream.MaxResultsPerPage, cfg.Upstream.MaxPages),
		tools.WithLogger(logger),
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── HTTP side: health, metrics and (optionally) the MCP transport ─────────
	var httpServer *http.Server
	httpErr := make(chan error, 1)
	if cfg.Server.ListenAddr != "" {
		mux := http.NewServeMux()
		health.New(health.Upstream(client)).Register(mux)
		mux.Handle("GET /metrics", promhttp.Handler())

		if cfg.Server.Transport == config.TransportStreamableHTTP {
			handler := mcp.NewStreamableHTTPHandler(
				func(*http.Request) *mcp.Server { return server.MCP() },
				&mcp.StreamableHTTPOptions{Stateless: true},
			)
			mux.Handle("/mcp", handler)
		}

		httpServer = &http.Server{
			Addr:              cfg.Server.ListenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("http server listening", "addr", cfg.Server.ListenAddr)
			if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				httpErr <- err
			}
		}()
	}

	// ── Serve ─────────────────────────────────────────────────────────────────
	exitCode := 0
	switch cfg.Server.Transport {
	case config.TransportStdio:
		slog.Info("serving MCP over stdio")
		if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("mcp server error", "err", err)
			exitCode = 1
		}
	case config.TransportStreamableHTTP:
		slog.Info("serving MCP over streamable HTTP", "addr", cfg.Server.ListenAddr, "path", "/mcp")
		select {
		case <-ctx.Done():
		case err := <-httpErr:
			slog.Error("http server error", "err", err)
			exitCode = 1
		}
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutting down")
	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http shutdown error", "err", err)
		}
	}
	slog.Info("goodbye")
	return exitCode
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
