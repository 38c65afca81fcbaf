// Package governor keeps a fleet of hub scrapers alive and safe.
//
// A hub session runs only inside the hub's local business window, paces
// requests per source, restores an encrypted session, browses like a
// person, halts on any sign of bot defense, rotates a burnt identity, and
// repairs broken selectors with a language model before retrying.
//
// Usage:
//
//	g, err := governor.New(cfg, governor.Deps{Logger: logger})
//	defer g.Close()
//	reports, err := g.RunCycle(ctx, cfg.Jobs)
//	http.ListenAndServe(cfg.Listen, g.Handler())
package governor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"

	"github.com/Sm36384/Phoenix/connectivity"
	"github.com/Sm36384/Phoenix/dbopen"
	"github.com/Sm36384/Phoenix/governor/internal/behavior"
	"github.com/Sm36384/Phoenix/governor/internal/browser"
	"github.com/Sm36384/Phoenix/governor/internal/enrich"
	"github.com/Sm36384/Phoenix/governor/internal/failsafe"
	"github.com/Sm36384/Phoenix/governor/internal/heal"
	"github.com/Sm36384/Phoenix/governor/internal/hours"
	"github.com/Sm36384/Phoenix/governor/internal/ratelimit"
	"github.com/Sm36384/Phoenix/governor/internal/rhythm"
	"github.com/Sm36384/Phoenix/governor/internal/rotation"
	"github.com/Sm36384/Phoenix/governor/internal/store"
	"github.com/Sm36384/Phoenix/governor/internal/vault"
	"github.com/Sm36384/Phoenix/idgen"
	"github.com/Sm36384/Phoenix/observability"
	"github.com/Sm36384/Phoenix/trace"
)

// ErrRateLimited is returned by RunHub when the source is still over its
// limit after the single wait.
var ErrRateLimited = errors.New("governor: rate limited")

// IsFatalHub reports whether err must stop all work for the hub in this
// cycle: a detected block or a closed business window.
func IsFatalHub(err error) bool {
	return errors.Is(err, failsafe.ErrBlocked) || errors.Is(err, hours.ErrOutOfWindow)
}

// Deps injects collaborators. Zero fields get production defaults built
// from Config.
type Deps struct {
	Store     *store.Store
	Launcher  browser.Launcher
	Model     heal.Model
	Providers []enrich.Provider
	Cache     enrich.Cache
	Exporters []trace.Exporter
	Clock     func() time.Time
	Rand      *rand.Rand
	// Sleep replaces every blocking wait (pacing, rate limit).
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *slog.Logger
}

// Governor owns every component. All state is held here; nothing is
// package-level.
type Governor struct {
	cfg      *Config
	store    *store.Store
	ownStore bool
	logger   *slog.Logger
	now      func() time.Time
	traceIDs idgen.Generator

	hubs     *hours.Registry
	gate     *hours.Gate
	limiter  *ratelimit.Limiter
	breakers *connectivity.Registry
	traces   *trace.Buffer
	events   *observability.EventLogger
	launcher browser.Launcher
	flow     *behavior.Flow
	monitor  *failsafe.Monitor
	vault    *vault.Vault
	checker  *rotation.Checker
	rotator  *rotation.Controller
	healer   *heal.Engine
	chain    *enrich.Chain
	closers  []func() error
}

// New wires a Governor from cfg and deps.
func New(cfg *Config, deps Deps) (*Governor, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}

	g := &Governor{
		cfg:      cfg,
		store:    deps.Store,
		logger:   logger,
		now:      now,
		traceIDs: idgen.Prefixed("trc_", idgen.UUIDv7()),
	}
	if g.store == nil {
		st, err := store.Open(cfg.DBPath,
			dbopen.WithSchema(observability.Schema),
			dbopen.WithSchema(trace.Schema))
		if err != nil {
			return nil, fmt.Errorf("governor: open store: %w", err)
		}
		g.store = st
		g.ownStore = true
	}

	g.events = observability.NewEventLogger(g.store.DB, observability.WithEventClock(now))

	exporters := deps.Exporters
	if exporters == nil {
		exporters = []trace.Exporter{trace.NewStore(g.store.DB)}
		if cfg.Trace.CollectorURL != "" {
			exporters = append(exporters, trace.NewRemoteStore(cfg.Trace.CollectorURL, nil))
		}
	}
	g.traces = trace.NewBuffer(cfg.Trace.Capacity, exporters...)

	g.hubs = hours.NewRegistry(logger, cfg.Hubs...)
	g.gate = hours.NewGate(g.hubs, now)

	var breakerOpts []connectivity.BreakerOption
	if cfg.Breaker.Threshold > 0 {
		breakerOpts = append(breakerOpts, connectivity.WithBreakerThreshold(cfg.Breaker.Threshold))
	}
	if cfg.Breaker.Cooldown > 0 {
		breakerOpts = append(breakerOpts, connectivity.WithBreakerCooldown(cfg.Breaker.Cooldown))
	}
	if deps.Clock != nil {
		breakerOpts = append(breakerOpts, connectivity.WithBreakerClock(now))
	}
	g.breakers = connectivity.NewRegistry(logger, breakerOpts...)

	limiterOpts := []ratelimit.Option{
		ratelimit.WithWindow(cfg.RateLimit.Window),
		ratelimit.WithMax(cfg.RateLimit.MaxRequests),
		ratelimit.WithClock(now),
		ratelimit.WithLogger(logger),
	}
	rhythmOpts := []rhythm.Option{}
	if deps.Sleep != nil {
		limiterOpts = append(limiterOpts, ratelimit.WithSleeper(deps.Sleep))
		rhythmOpts = append(rhythmOpts, rhythm.WithSleeper(deps.Sleep))
	}
	if deps.Rand != nil {
		rhythmOpts = append(rhythmOpts, rhythm.WithRand(deps.Rand))
	}
	g.limiter = ratelimit.New(limiterOpts...)
	g.monitor = failsafe.NewMonitor(g.traces, g.events, logger)
	g.flow = behavior.New(rhythm.New(rhythmOpts...), logger, behavior.WithCheck(g.checkBlocked))

	g.launcher = deps.Launcher
	if g.launcher == nil {
		bc := cfg.Browser
		bc.Logger = logger
		g.launcher = browser.NewRodLauncher(bc)
	}

	if c, err := vault.NewCipher(cfg.Vault.Secret); err != nil {
		logger.Warn("governor: session vault disabled", "error", err)
	} else {
		opts := []vault.Option{vault.WithClock(now), vault.WithLogger(logger)}
		if cfg.Vault.TTL > 0 {
			opts = append(opts, vault.WithTTL(cfg.Vault.TTL))
		}
		g.vault = vault.New(g.store, c, opts...)
	}

	g.checker = rotation.NewChecker(cfg.BotScore, g.breakers, logger)
	g.rotator = rotation.NewController(rotation.NewPool(cfg.Rotation), g.launcher, g.events, logger)

	model := deps.Model
	if model == nil && cfg.Heal.APIKey != "" {
		m, err := heal.NewGenAIModel(context.Background(), cfg.Heal.APIKey, cfg.Heal.Model)
		if err != nil {
			g.Close()
			return nil, err
		}
		model = m
	}
	if model == nil {
		logger.Warn("governor: no language model configured, heals will fail")
	}
	healOpts := []heal.Option{
		heal.WithBreakers(g.breakers),
		heal.WithTraces(g.traces),
		heal.WithEvents(g.events),
		heal.WithLogger(logger),
		heal.WithClock(now),
		heal.WithTimeout(cfg.Heal.Timeout),
	}
	if model != nil {
		healOpts = append(healOpts, heal.WithModel(model))
	}
	g.healer = heal.NewEngine(g.store, healOpts...)

	if err := g.initChain(deps); err != nil {
		g.Close()
		return nil, err
	}

	if err := g.provision(context.Background()); err != nil {
		g.Close()
		return nil, err
	}
	return g, nil
}

func (g *Governor) initChain(deps Deps) error {
	providers := deps.Providers
	if providers == nil {
		if pb := enrich.NewPhantomBuster(g.cfg.Enrich.PhantomBuster); pb != nil {
			providers = append(providers, pb)
		}
		if pc := enrich.NewProxycurl(g.cfg.Enrich.Proxycurl); pc != nil {
			providers = append(providers, pc)
		}
	}

	cache := deps.Cache
	if cache == nil && g.cfg.Enrich.Redis.Addr != "" {
		rc, err := enrich.NewRedisCache(context.Background(), g.cfg.Enrich.Redis)
		if err != nil {
			return err
		}
		g.closers = append(g.closers, rc.Close)
		cache = rc
	}
	if cache == nil {
		cache = enrich.NewStoreCache(g.store)
	}

	g.chain = enrich.NewChain(g.breakers, providers,
		enrich.WithCache(cache),
		enrich.WithTimeout(g.cfg.Enrich.Timeout),
		enrich.WithLogger(g.logger))
	return nil
}

// provision upserts configured sources and seeds their selectors.
func (g *Governor) provision(ctx context.Context) error {
	for _, s := range g.cfg.Sources {
		if err := g.store.UpsertSource(ctx, &store.Source{ID: s.ID, DisplayName: s.DisplayName, Region: s.Region}); err != nil {
			return err
		}
		for field, sel := range s.Selectors {
			if err := g.store.SeedSelector(ctx, s.ID, field, sel); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close releases the store (when opened by New) and the enrichment cache.
func (g *Governor) Close() error {
	var errs []error
	for _, c := range g.closers {
		errs = append(errs, c())
	}
	if g.ownStore && g.store != nil {
		errs = append(errs, g.store.Close())
	}
	return errors.Join(errs...)
}

// Hubs returns the hub profile registry (for hot reload).
func (g *Governor) Hubs() *hours.Registry { return g.hubs }

// Gate returns the business-hours gate.
func (g *Governor) Gate() *hours.Gate { return g.gate }

// Discover resolves a person through the enrichment fallback chain.
func (g *Governor) Discover(ctx context.Context, name, company string) (enrich.Result, error) {
	return g.chain.Discover(ctx, name, company)
}

// Maintain drops expired sessions and old business events.
func (g *Governor) Maintain(ctx context.Context) error {
	n, err := g.store.DeleteExpiredSessions(ctx)
	if err != nil {
		return err
	}
	m, err := g.events.Cleanup(ctx, g.cfg.EventRetention)
	if err != nil {
		return err
	}
	g.logger.Info("governor: maintenance", "expired_sessions", n, "old_events", m)
	return nil
}

// identity is the primary identity for hub.
func (g *Governor) identity(hub string) browser.Identity {
	return browser.Identity{Proxy: g.cfg.Proxies[hub], UserAgent: g.cfg.UserAgent}
}

// homeURL defaults to the target's origin.
func homeURL(job Job) string {
	if job.HomeURL != "" {
		return job.HomeURL
	}
	u, err := url.Parse(job.TargetURL)
	if err != nil || u.Host == "" {
		return job.TargetURL
	}
	return (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}).String()
}

// statusOf returns the page's HTTP status, treating unknown as OK.
func statusOf(ctx context.Context, p browser.Page) int {
	st, err := p.Status(ctx)
	if err != nil || st == 0 {
		return http.StatusOK
	}
	return st
}
