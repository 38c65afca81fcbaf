package governor

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sm36384/Phoenix/kit"
)

// RegisterMCP registers the governor's status and discovery tools.
func (g *Governor) RegisterMCP(srv *mcp.Server) {
	g.registerSourcesTool(srv)
	g.registerHealEventsTool(srv)
	g.registerSelectorsTool(srv)
	g.registerHubsTool(srv)
	g.registerBreakersTool(srv)
	g.registerRateLimitTool(srv)
	g.registerDiscoverTool(srv)
}

// addTool registers endpoint with call logging.
func (g *Governor) addTool(srv *mcp.Server, tool *mcp.Tool, endpoint kit.Endpoint, decode func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error)) {
	kit.RegisterMCPTool(srv, tool, kit.Logged(g.logger, tool.Name)(endpoint), decode)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

type sourceRequest struct {
	SourceID string `json:"source_id"`
	Limit    int    `json:"limit,omitempty"`
}

func decodeSource(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	r, err := kit.DecodeArgs[sourceRequest](req)
	if err != nil {
		return nil, err
	}
	if r.SourceID == "" {
		return nil, errors.New("source_id is required")
	}
	return &kit.MCPDecodeResult{
		Request:   &r,
		EnrichCtx: func(ctx context.Context) context.Context { return kit.WithSourceID(ctx, r.SourceID) },
	}, nil
}

func decodeNone(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	return &kit.MCPDecodeResult{}, nil
}

var sourceIDProp = map[string]any{"type": "string", "description": "Source id (e.g. bayt)"}

// --- sources ---

func (g *Governor) registerSourcesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "phoenix_sources",
		Description: "List scraped sources with their heal status (ok, healing, healed) and last scrape and heal times.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, _ any) (any, error) {
		return g.Sources(ctx)
	}
	g.addTool(srv, tool, endpoint, decodeNone)
}

// --- heal events ---

func (g *Governor) registerHealEventsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "phoenix_heal_events",
		Description: "List the newest selector heal attempts of a source, successful or not.",
		InputSchema: inputSchema(map[string]any{
			"source_id": sourceIDProp,
			"limit":     map[string]any{"type": "integer", "description": "Max events (default 50)"},
		}, []string{"source_id"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*sourceRequest)
		return g.HealEvents(ctx, r.SourceID, r.Limit)
	}
	g.addTool(srv, tool, endpoint, decodeSource)
}

// --- selectors ---

func (g *Governor) registerSelectorsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "phoenix_selectors",
		Description: "List the current and previous CSS selector of every field of a source.",
		InputSchema: inputSchema(map[string]any{"source_id": sourceIDProp}, []string{"source_id"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		return g.Selectors(ctx, req.(*sourceRequest).SourceID)
	}
	g.addTool(srv, tool, endpoint, decodeSource)
}

// --- hubs ---

func (g *Governor) registerHubsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "phoenix_hubs",
		Description: "Show every hub's timezone, business window, current local hour and whether scraping is allowed now.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(context.Context, any) (any, error) {
		return g.HubStatus(), nil
	}
	g.addTool(srv, tool, endpoint, decodeNone)
}

// --- breakers ---

func (g *Governor) registerBreakersTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "phoenix_breakers",
		Description: "Show the circuit breaker state and consecutive failures of every external service.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(context.Context, any) (any, error) {
		return g.Breakers(), nil
	}
	g.addTool(srv, tool, endpoint, decodeNone)
}

// --- rate limit ---

func (g *Governor) registerRateLimitTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "phoenix_rate_limit",
		Description: "Show the remaining requests and window reset time of a source.",
		InputSchema: inputSchema(map[string]any{"source_id": sourceIDProp}, []string{"source_id"}),
	}
	endpoint := func(_ context.Context, req any) (any, error) {
		return g.RateLimit(req.(*sourceRequest).SourceID), nil
	}
	g.addTool(srv, tool, endpoint, decodeSource)
}

// --- discover ---

type discoverRequest struct {
	Name    string `json:"name"`
	Company string `json:"company,omitempty"`
}

func (g *Governor) registerDiscoverTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "phoenix_discover",
		Description: "Find a person's profile URL through the enrichment providers, falling back past any provider whose breaker is open.",
		InputSchema: inputSchema(map[string]any{
			"name":    map[string]any{"type": "string", "description": "Full name"},
			"company": map[string]any{"type": "string", "description": "Company name or domain"},
		}, []string{"name"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*discoverRequest)
		return g.Discover(ctx, r.Name, r.Company)
	}
	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		r, err := kit.DecodeArgs[discoverRequest](req)
		if err != nil {
			return nil, err
		}
		if r.Name == "" {
			return nil, errors.New("name is required")
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}
	g.addTool(srv, tool, endpoint, decode)
}
