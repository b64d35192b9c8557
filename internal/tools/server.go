// Package tools exposes the classifieds API as MCP tools. Each tool
// validates its arguments before any network traffic, fans out page
// requests for searches, and maps upstream responses to readable text.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/kleinanzeigen-agent/kleinanzeigen-mcp/internal/listing"
	"github.com/kleinanzeigen-agent/kleinanzeigen-mcp/internal/observe"
	"github.com/kleinanzeigen-agent/kleinanzeigen-mcp/internal/upstream"
	"github.com/kleinanzeigen-agent/kleinanzeigen-mcp/internal/validate"
)

// defaultLocationLimit is used when search_locations is called without an
// explicit limit.
const defaultLocationLimit = 20

// Fetcher is the upstream surface the tools depend on. It is satisfied by
// [*upstream.Client].
type Fetcher interface {
	SearchPage(ctx context.Context, req listing.SearchRequest, page, limit int) ([]byte, error)
	Listing(ctx context.Context, id string) ([]byte, error)
	Categories(ctx context.Context) ([]byte, error)
	Locations(ctx context.Context, query string, limit int) ([]byte, error)
	Docs(ctx context.Context) ([]byte, error)
}

// Server wires the tool handlers into an [mcp.Server].
type Server struct {
	fetcher           Fetcher
	maxResultsPerPage int
	maxPages          int
	metrics           *observe.Metrics
	logger            *slog.Logger
	mcpServer         *mcp.Server
}

// ServerOption configures a [Server].
type ServerOption func(*Server)

// WithMetrics replaces the default metrics instance.
func WithMetrics(m *observe.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// WithPageLimits overrides the per-page result limit and maximum page count.
func WithPageLimits(maxResultsPerPage, maxPages int) ServerOption {
	return func(s *Server) {
		s.maxResultsPerPage = maxResultsPerPage
		s.maxPages = maxPages
	}
}

// NewServer creates the MCP server with all tools and prompts registered.
func NewServer(name, version string, fetcher Fetcher, opts ...ServerOption) *Server {
	s := &Server{
		fetcher:           fetcher,
		maxResultsPerPage: 10,
		maxPages:          20,
		metrics:           observe.DefaultMetrics(),
		logger:            slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}

	s.mcpServer = mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil)
	s.registerTools()
	s.registerPrompts()
	return s
}

// MCP returns the underlying [mcp.Server] for transport binding.
func (s *Server) MCP() *mcp.Server {
	return s.mcpServer
}

// Run serves MCP over the given transport until ctx is cancelled.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(&mcp.Tool{
		Name:        "search_listings",
		Description: "Search for listings on eBay Kleinanzeigen",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Search term for listings",
				},
				"location": map[string]any{
					"type":        "string",
					"description": "Location to search in (e.g., '10178')",
				},
				"location_id": map[string]any{
					"type":        "integer",
					"description": "Location ID for radius-based search (alternative to text location)",
				},
				"radius": map[string]any{
					"type":        "integer",
					"description": "Search radius in kilometers",
					"minimum":     1,
					"maximum":     200,
				},
				"min_price": map[string]any{
					"type":        "integer",
					"description": "Minimum price filter in euros",
					"minimum":     0,
				},
				"max_price": map[string]any{
					"type":        "integer",
					"description": "Maximum price filter in euros",
					"minimum":     0,
				},
				"page_count": map[string]any{
					"type":        "integer",
					"description": "Number of result pages to fetch (1-20)",
					"minimum":     1,
					"maximum":     20,
					"default":     1,
				},
				"sort": map[string]any{
					"type":        "string",
					"description": "Sort order for results (newest, oldest, price_asc, price_desc)",
					"default":     "newest",
				},
				"category": map[string]any{
					"type":        "string",
					"description": "Comma-separated category IDs to filter by",
				},
			},
		},
	}, s.instrument("search_listings", s.searchListings))

	s.mcpServer.AddTool(&mcp.Tool{
		Name:        "get_listing_details",
		Description: "Get detailed information for a specific listing",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"listing_id": map[string]any{
					"type":        "string",
					"description": "ID of the listing to fetch details for",
				},
			},
			"required": []string{"listing_id"},
		},
	}, s.instrument("get_listing_details", s.getListingDetails))

	s.mcpServer.AddTool(&mcp.Tool{
		Name:        "search_locations",
		Description: "Search for locations by city, postal code, or state",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Search term for city, postal code, or state",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of results (default: 20)",
					"minimum":     1,
					"maximum":     100,
				},
			},
			"required": []string{"query"},
		},
	}, s.instrument("search_locations", s.searchLocations))

	s.mcpServer.AddTool(&mcp.Tool{
		Name:        "get_categories",
		Description: "Get all available categories from eBay Kleinanzeigen",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	}, s.instrument("get_categories", s.getCategories))

	s.mcpServer.AddTool(&mcp.Tool{
		Name:        "get_docs",
		Description: "Get API documentation and available endpoints",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	}, s.instrument("get_docs", s.getDocs))
}

// handlerFunc is the internal shape of a tool handler.
type handlerFunc func(ctx context.Context, args json.RawMessage) (*mcp.CallToolResult, error)

// instrument wraps a handler with metrics, logging and error mapping.
func (s *Server) instrument(tool string, fn handlerFunc) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()

		var args json.RawMessage
		if req.Params != nil {
			args = req.Params.Arguments
		}

		res, err := fn(ctx, args)
		elapsed := time.Since(start)
		s.metrics.ToolDuration.Record(ctx, elapsed.Seconds())

		if err != nil {
			kind, msg := classify(err)
			s.metrics.RecordToolCall(ctx, tool, kind)
			s.logger.Warn("tool call failed",
				"tool", tool,
				"kind", kind,
				"duration", elapsed,
				"error", err)
			return errorResult(kind, msg), nil
		}

		s.metrics.RecordToolCall(ctx, tool, "ok")
		s.logger.Info("tool call completed", "tool", tool, "duration", elapsed)
		return res, nil
	}
}

// classify maps an internal error to an error kind and a caller-safe
// message. Validation messages pass through verbatim; upstream failures get
// a generic message so raw bodies never reach the caller.
func classify(err error) (kind, msg string) {
	var verr *validate.Error
	if errors.As(err, &verr) {
		return "validation_error", verr.Error()
	}

	if errors.Is(err, upstream.ErrUnavailable) {
		return "upstream_error", "the listing service is temporarily unavailable, please retry later"
	}

	var uerr *upstream.Error
	if errors.As(err, &uerr) {
		if uerr.NotFound() {
			return "upstream_error", "the requested resource was not found"
		}
		return "upstream_error", "the listing service returned an error"
	}

	var merr *listing.MappingError
	if errors.As(err, &merr) {
		return "internal_error", "received malformed data from the listing service"
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "internal_error", "the request was cancelled"
	}

	return "internal_error", "an internal error occurred"
}

// errorResult renders an error as a tool result with IsError set. The body
// is a small JSON document so callers can branch on the error kind.
func errorResult(kind, msg string) *mcp.CallToolResult {
	payload, err := json.Marshal(map[string]string{
		"error":   kind,
		"message": msg,
	})
	if err != nil {
		payload = []byte(`{"error":"internal_error","message":"an internal error occurred"}`)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(payload)}},
		IsError: true,
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// searchArgs mirrors the search_listings input schema.
type searchArgs struct {
	Query      string `json:"query"`
	Location   string `json:"location"`
	LocationID int    `json:"location_id"`
	Radius     int    `json:"radius"`
	MinPrice   *int   `json:"min_price"`
	MaxPrice   *int   `json:"max_price"`
	PageCount  int    `json:"page_count"`
	Sort       string `json:"sort"`
	Category   string `json:"category"`
}

func (s *Server) searchListings(ctx context.Context, raw json.RawMessage) (*mcp.CallToolResult, error) {
	var args searchArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, &validate.Error{Field: "arguments", Reason: "not a valid JSON object"}
		}
	}

	req, pageCount, err := s.buildSearchRequest(args)
	if err != nil {
		return nil, err
	}

	// Fan out one request per page; results keep page order regardless of
	// completion order.
	pages := make([][]listing.Summary, pageCount)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < pageCount; i++ {
		g.Go(func() error {
			body, err := s.fetcher.SearchPage(gctx, req, i+1, s.maxResultsPerPage)
			if err != nil {
				return err
			}
			summaries, err := listing.DecodeSearchPage(body)
			if err != nil {
				return err
			}
			pages[i] = summaries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []listing.Summary
	for _, page := range pages {
		all = append(all, page...)
	}
	return textResult(formatSummaries(all)), nil
}

// buildSearchRequest validates and normalizes the raw search arguments.
// The first failing field aborts; nothing has been sent upstream yet.
func (s *Server) buildSearchRequest(args searchArgs) (listing.SearchRequest, int, error) {
	var req listing.SearchRequest
	var err error

	if req.Query, err = validate.Query(args.Query); err != nil {
		return req, 0, err
	}
	if req.Location, err = validate.Location(args.Location); err != nil {
		return req, 0, err
	}
	if args.Radius != 0 {
		if err = validate.Radius(args.Radius); err != nil {
			return req, 0, err
		}
		req.Radius = args.Radius
	}
	if err = validate.PriceRange(args.MinPrice, args.MaxPrice); err != nil {
		return req, 0, err
	}
	req.MinPrice = args.MinPrice
	req.MaxPrice = args.MaxPrice

	pageCount, err := validate.PageCount(args.PageCount)
	if err != nil {
		return req, 0, err
	}
	if pageCount > s.maxPages {
		return req, 0, &validate.Error{
			Field:  "page_count",
			Reason: fmt.Sprintf("must not exceed %d", s.maxPages),
		}
	}
	if req.Sort, err = validate.Sort(args.Sort); err != nil {
		return req, 0, err
	}
	if req.Category, err = validate.Category(args.Category); err != nil {
		return req, 0, err
	}
	req.LocationID = args.LocationID
	req.PageCount = pageCount

	return req, pageCount, nil
}

type detailArgs struct {
	ListingID string `json:"listing_id"`
}

func (s *Server) getListingDetails(ctx context.Context, raw json.RawMessage) (*mcp.CallToolResult, error) {
	var args detailArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, &validate.Error{Field: "arguments", Reason: "not a valid JSON object"}
		}
	}

	id, err := validate.ListingID(args.ListingID)
	if err != nil {
		return nil, err
	}

	body, err := s.fetcher.Listing(ctx, id)
	if err != nil {
		return nil, err
	}
	detail, err := listing.DecodeDetail(body, id)
	if err != nil {
		return nil, err
	}
	return textResult(formatDetail(detail)), nil
}

type locationArgs struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func (s *Server) searchLocations(ctx context.Context, raw json.RawMessage) (*mcp.CallToolResult, error) {
	var args locationArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, &validate.Error{Field: "arguments", Reason: "not a valid JSON object"}
		}
	}

	// Location queries follow the same character rules as the location
	// filter; rewrap failures under the tool's own argument name.
	query, err := validate.Location(args.Query)
	if err != nil {
		var verr *validate.Error
		if errors.As(err, &verr) {
			return nil, &validate.Error{Field: "query", Reason: verr.Reason}
		}
		return nil, err
	}
	if query == "" {
		return nil, &validate.Error{Field: "query", Reason: "must not be empty"}
	}
	limit := args.Limit
	switch {
	case limit == 0:
		limit = defaultLocationLimit
	case limit < 1 || limit > 100:
		return nil, &validate.Error{Field: "limit", Reason: "must be between 1 and 100"}
	}

	body, err := s.fetcher.Locations(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	locations, err := listing.DecodeLocations(body)
	if err != nil {
		return nil, err
	}
	return textResult(formatLocations(locations)), nil
}

func (s *Server) getCategories(ctx context.Context, _ json.RawMessage) (*mcp.CallToolResult, error) {
	body, err := s.fetcher.Categories(ctx)
	if err != nil {
		return nil, err
	}
	categories, err := listing.DecodeCategories(body)
	if err != nil {
		return nil, err
	}
	return textResult(formatCategories(categories)), nil
}

func (s *Server) getDocs(ctx context.Context, _ json.RawMessage) (*mcp.CallToolResult, error) {
	body, err := s.fetcher.Docs(ctx)
	if err != nil {
		return nil, err
	}
	return textResult(string(body)), nil
}
