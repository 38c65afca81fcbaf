package rotation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sm36384/Phoenix/connectivity"
	"github.com/Sm36384/Phoenix/governor/internal/browser"
	"github.com/Sm36384/Phoenix/governor/internal/browser/browsertest"
)

func TestScoreFor(t *testing.T) {
	cases := map[string]int{
		"":            0,
		"notDetected": 0,
		"good":        5,
		"bad":         100,
		"bot":         90,
		"weird":       50,
	}
	for label, want := range cases {
		assert.Equal(t, want, ScoreFor(label), label)
	}
}

func botServer(t *testing.T, label string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("Auth-API-Key") != "secret" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		if r.URL.Path != "/events/req-1" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"products":{"botd":{"data":{"bot":{"result":"` + label + `"}}}}}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCheck_RotatesAboveThreshold(t *testing.T) {
	var hits atomic.Int32
	srv := botServer(t, "bot", &hits)
	c := NewChecker(CheckerConfig{APIKey: "secret", BaseURL: srv.URL}, nil, nil)

	s := c.Check(context.Background(), "req-1")
	assert.Equal(t, 90, s.Pct)
	assert.True(t, s.ShouldRotate)
	assert.Equal(t, "bot", s.Label)
	assert.NotEmpty(t, s.Raw)
}

func TestCheck_GoodDoesNotRotate(t *testing.T) {
	var hits atomic.Int32
	srv := botServer(t, "good", &hits)
	c := NewChecker(CheckerConfig{APIKey: "secret", BaseURL: srv.URL}, nil, nil)

	s := c.Check(context.Background(), "req-1")
	assert.Equal(t, 5, s.Pct)
	assert.False(t, s.ShouldRotate)
}

func TestCheck_DegradesWithoutKeyOrRequestID(t *testing.T) {
	var hits atomic.Int32
	srv := botServer(t, "bot", &hits)

	noKey := NewChecker(CheckerConfig{BaseURL: srv.URL}, nil, nil)
	assert.False(t, noKey.Enabled())
	assert.Equal(t, Score{}, noKey.Check(context.Background(), "req-1"))

	noReq := NewChecker(CheckerConfig{APIKey: "secret", BaseURL: srv.URL}, nil, nil)
	s := noReq.Check(context.Background(), "")
	assert.Zero(t, s.Pct)
	assert.False(t, s.ShouldRotate)

	assert.Zero(t, hits.Load())
}

func TestCheck_HTTPErrorCountsOnBreaker(t *testing.T) {
	var hits atomic.Int32
	srv := botServer(t, "bot", &hits)
	reg := connectivity.NewRegistry(nil, connectivity.WithBreakerThreshold(2))
	c := NewChecker(CheckerConfig{APIKey: "wrong", BaseURL: srv.URL}, reg, nil)

	for i := 0; i < 3; i++ {
		s := c.Check(context.Background(), "req-1")
		assert.Zero(t, s.Pct)
		assert.NotEmpty(t, s.Error)
	}
	assert.Equal(t, int32(2), hits.Load(), "third call skipped by the open breaker")
	assert.Equal(t, connectivity.BreakerOpen, reg.Breaker(BreakerService).State())
}

func TestNewChecker_Region(t *testing.T) {
	assert.Equal(t, BaseEU, NewChecker(CheckerConfig{Region: "EU"}, nil, nil).base)
	assert.Equal(t, BaseUS, NewChecker(CheckerConfig{}, nil, nil).base)
}

func TestPool_ProxyFallback(t *testing.T) {
	p := NewPool(PoolConfig{
		Alternates: map[string]browser.Proxy{"Hong Kong": {Server: "http://hk-alt:8000"}},
		Global:     browser.Proxy{Server: "http://global-alt:8000"},
	})

	got, ok := p.Proxy("hong kong")
	require.True(t, ok)
	assert.Equal(t, "http://hk-alt:8000", got.Server)

	got, ok = p.Proxy("Riyadh")
	require.True(t, ok)
	assert.Equal(t, "http://global-alt:8000", got.Server)

	_, ok = NewPool(PoolConfig{}).Proxy("Riyadh")
	assert.False(t, ok)
}

func TestPool_NextChangesUserAgent(t *testing.T) {
	p := NewPool(PoolConfig{})
	for i := 0; i < 20; i++ {
		cur := browser.Identity{UserAgent: UserAgents[i%len(UserAgents)], Proxy: browser.Proxy{Server: "http://p:1"}}
		next := p.Next("Dubai", cur)
		assert.NotEqual(t, cur.UserAgent, next.UserAgent)
		assert.Equal(t, cur.Proxy, next.Proxy, "no alternate configured keeps the proxy")
		assert.True(t, next.Rotated)
	}
}

func TestController_Rotate(t *testing.T) {
	pool := NewPool(PoolConfig{Global: browser.Proxy{Server: "http://alt:9000"}})
	launcher := &browsertest.Launcher{}
	ctrl := NewController(pool, launcher, nil, nil)

	old := browsertest.NewPage()
	old.Ident = browser.Identity{Proxy: browser.Proxy{Server: "http://main:9000"}, UserAgent: UserAgents[0]}

	ns, err := ctrl.Rotate(context.Background(), old, "Dubai", "bayt", Score{Pct: 90, Label: "bot"})
	require.NoError(t, err)
	assert.True(t, old.Closed)
	require.Len(t, launcher.Identities, 1)
	assert.Equal(t, "http://alt:9000", ns.Identity().Proxy.Server)
	assert.NotEqual(t, UserAgents[0], ns.Identity().UserAgent)
	assert.True(t, ns.Identity().Rotated)
}
