package rotation

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/Sm36384/Phoenix/governor/internal/browser"
	"github.com/Sm36384/Phoenix/observability"
)

// UserAgents is the default rotation pool.
var UserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

// PoolConfig lists rotation endpoints.
type PoolConfig struct {
	// Alternates maps a hub id to its alternate proxy.
	Alternates map[string]browser.Proxy `yaml:"proxy_alternates"`
	// Global is used for hubs without an alternate.
	Global     browser.Proxy `yaml:"proxy_alternate"`
	UserAgents []string      `yaml:"user_agents"`
}

// Pool hands out replacement identities.
type Pool struct {
	alternates map[string]browser.Proxy
	global     browser.Proxy
	agents     []string
	intn       func(n int) int
}

// NewPool creates a pool. Hub keys are matched case-insensitively.
func NewPool(cfg PoolConfig) *Pool {
	alts := make(map[string]browser.Proxy, len(cfg.Alternates))
	for hub, p := range cfg.Alternates {
		alts[hubKey(hub)] = p
	}
	agents := cfg.UserAgents
	if len(agents) == 0 {
		agents = UserAgents
	}
	return &Pool{alternates: alts, global: cfg.Global, agents: agents, intn: rand.IntN}
}

func hubKey(hub string) string {
	return strings.ToUpper(strings.Join(strings.Fields(hub), "_"))
}

// Proxy returns the alternate proxy for hub, falling back to the global
// alternate. ok is false when neither is configured.
func (p *Pool) Proxy(hub string) (browser.Proxy, bool) {
	if alt, ok := p.alternates[hubKey(hub)]; ok && alt.Server != "" {
		return alt, true
	}
	return p.global, p.global.Server != ""
}

// UserAgent picks a user agent different from current when the pool allows.
func (p *Pool) UserAgent(current string) string {
	if len(p.agents) == 1 {
		return p.agents[0]
	}
	i := p.intn(len(p.agents))
	if p.agents[i] == current {
		i = (i + 1) % len(p.agents)
	}
	return p.agents[i]
}

// Next builds the identity that replaces current for hub. Without any
// alternate proxy the current proxy is kept and only the user agent changes.
func (p *Pool) Next(hub string, current browser.Identity) browser.Identity {
	proxy, ok := p.Proxy(hub)
	if !ok {
		proxy = current.Proxy
	}
	return browser.Identity{Proxy: proxy, UserAgent: p.UserAgent(current.UserAgent), Rotated: true}
}

// Controller closes a burnt session and launches its replacement.
type Controller struct {
	pool     *Pool
	launcher browser.Launcher
	events   *observability.EventLogger
	logger   *slog.Logger
}

// NewController creates a controller. events may be nil.
func NewController(pool *Pool, launcher browser.Launcher, events *observability.EventLogger, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{pool: pool, launcher: launcher, events: events, logger: logger}
}

// Rotate closes sess and returns a new session for hub under a fresh
// identity. score is recorded with the rotation event.
func (c *Controller) Rotate(ctx context.Context, sess browser.Session, hub, source string, score Score) (browser.Session, error) {
	prev := sess.Identity()
	if err := sess.Close(); err != nil {
		c.logger.Warn("rotation: close session", "hub", hub, "error", err)
	}

	next := c.pool.Next(hub, prev)
	ns, err := c.launcher.Launch(ctx, next)
	if err != nil {
		return nil, fmt.Errorf("rotation: launch %s: %w", hub, err)
	}

	c.logger.Info("rotation: identity rotated", "hub", hub, "score", score.Pct, "label", score.Label,
		"proxy_changed", next.Proxy.Server != prev.Proxy.Server)
	c.events.LogEvent(ctx, observability.BusinessEvent{
		EventType: observability.EventIdentityRotated,
		HubID:     hub,
		SourceID:  source,
		Action:    "rotate",
		Success:   true,
		Details: map[string]any{
			"score_pct":     score.Pct,
			"label":         score.Label,
			"proxy_changed": next.Proxy.Server != prev.Proxy.Server,
		},
	})
	return ns, nil
}
