package governor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sm36384/Phoenix/connectivity"
	"github.com/Sm36384/Phoenix/governor/internal/enrich"
	"github.com/Sm36384/Phoenix/governor/internal/hours"
	"github.com/Sm36384/Phoenix/governor/internal/ratelimit"
	"github.com/Sm36384/Phoenix/governor/internal/store"
)

func get(t *testing.T, h http.Handler, path string, out any) int {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil && w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	}
	return w.Code
}

func TestHandler_Feed(t *testing.T) {
	f := newFixture(t, map[string]string{targetURL: driftedPage}, nil)
	_, err := f.g.RunHub(context.Background(), job("Singapore", targetURL))
	require.NoError(t, err)
	h := f.g.Handler()

	var health map[string]any
	assert.Equal(t, 200, get(t, h, "/health", &health))
	assert.Equal(t, "ok", health["status"])

	var sources []store.Source
	assert.Equal(t, 200, get(t, h, "/api/sources", &sources))
	require.Len(t, sources, 1)
	assert.Equal(t, store.StatusHealed, sources[0].Status)

	var src store.Source
	assert.Equal(t, 200, get(t, h, "/api/sources/bayt", &src))
	assert.Equal(t, "Bayt", src.DisplayName)
	assert.Equal(t, 404, get(t, h, "/api/sources/nope", nil))

	var events []store.HealEvent
	assert.Equal(t, 200, get(t, h, "/api/sources/bayt/heal-events?limit=5", &events))
	require.Len(t, events, 1)
	assert.Equal(t, ".job-heading", events[0].SelectorAfter)

	var selectors []store.Selector
	assert.Equal(t, 200, get(t, h, "/api/sources/bayt/selectors", &selectors))
	assert.Len(t, selectors, 2)

	var hubs []hours.HubStatus
	assert.Equal(t, 200, get(t, h, "/api/hubs", &hubs))
	open := map[string]bool{}
	for _, hs := range hubs {
		open[hs.HubID] = hs.Open
	}
	assert.True(t, open["Singapore"])
	assert.False(t, open["Dubai"])

	var breakers []connectivity.BreakerStatus
	assert.Equal(t, 200, get(t, h, "/api/breakers", &breakers))
	require.NotEmpty(t, breakers)
	assert.Equal(t, "llm", breakers[0].Service)
	assert.Equal(t, "closed", breakers[0].State)

	var rl map[string]any
	assert.Equal(t, 200, get(t, h, "/api/ratelimit/bayt", &rl))
	assert.EqualValues(t, ratelimit.DefaultMax-1, rl["remaining"])
	assert.EqualValues(t, ratelimit.DefaultWindow.Milliseconds(), rl["reset_in_ms"])

	var spans []map[string]any
	assert.Equal(t, 200, get(t, h, "/api/traces/recent", &spans))

	var evs []map[string]any
	assert.Equal(t, 200, get(t, h, "/api/events?hub=Singapore", &evs))
	assert.NotEmpty(t, evs)
}

func TestHandler_SecurityHeaders(t *testing.T) {
	f := newFixture(t, nil, nil)
	w := httptest.NewRecorder()
	f.g.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))
}

func TestHandler_Discover(t *testing.T) {
	f := newFixture(t, nil, nil)
	h := f.g.Handler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/discover",
		strings.NewReader(`{"name":"Jane Doe","company":"Acme"}`)))
	require.Equal(t, 200, w.Code, w.Body.String())
	var res enrich.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "primary", res.Provider)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/discover", strings.NewReader(`{}`)))
	assert.Equal(t, 400, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/discover", strings.NewReader(`not json`)))
	assert.Equal(t, 400, w.Code)
}

var testImpl = &mcp.Implementation{Name: "phoenix-test", Version: "0.1.0"}

func mcpSession(t *testing.T, f *fixture) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testImpl, nil)
	f.g.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() {
		_ = srv.Run(ctx, serverT)
	}()

	client := mcp.NewClient(testImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) (string, error) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	if err := result.GetError(); err != nil {
		return "", err
	}
	require.NotEmpty(t, result.Content)
	tc, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text, nil
}

func TestMCP_Tools(t *testing.T) {
	f := newFixture(t, map[string]string{targetURL: jobPage}, nil)
	_, err := f.g.RunHub(context.Background(), job("Singapore", targetURL))
	require.NoError(t, err)
	session := mcpSession(t, f)

	text, err := callTool(t, session, "phoenix_sources", map[string]any{})
	require.NoError(t, err)
	var sources []store.Source
	require.NoError(t, json.Unmarshal([]byte(text), &sources))
	require.Len(t, sources, 1)
	assert.Equal(t, "bayt", sources[0].ID)

	text, err = callTool(t, session, "phoenix_selectors", map[string]any{"source_id": "bayt"})
	require.NoError(t, err)
	assert.Contains(t, text, ".job-title")

	text, err = callTool(t, session, "phoenix_heal_events", map[string]any{"source_id": "bayt"})
	require.NoError(t, err)
	assert.Equal(t, "null", strings.TrimSpace(text))

	text, err = callTool(t, session, "phoenix_hubs", map[string]any{})
	require.NoError(t, err)
	assert.Contains(t, text, "Asia/Singapore")

	_, err = callTool(t, session, "phoenix_breakers", map[string]any{})
	require.NoError(t, err)

	text, err = callTool(t, session, "phoenix_rate_limit", map[string]any{"source_id": "bayt"})
	require.NoError(t, err)
	var rl ratelimit.Status
	require.NoError(t, json.Unmarshal([]byte(text), &rl))
	assert.Equal(t, "bayt", rl.Source)

	text, err = callTool(t, session, "phoenix_discover", map[string]any{"name": "Jane Doe", "company": "Acme"})
	require.NoError(t, err)
	assert.Contains(t, text, "linkedin.com/in/jdoe")
}

func TestMCP_MissingArguments(t *testing.T) {
	f := newFixture(t, nil, nil)
	session := mcpSession(t, f)

	_, err := callTool(t, session, "phoenix_heal_events", map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source_id is required")

	_, err = callTool(t, session, "phoenix_discover", map[string]any{"company": "Acme"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")
}
