// Package enrich resolves a person's profile URL through a cache and an
// ordered list of external providers, each gated by its own circuit breaker.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Sm36384/Phoenix/connectivity"
)

const (
	ProviderCache = "cache"
	ProviderNone  = "none"
)

// ErrNoMatch is returned by a provider that answered without a profile.
// The chain counts it as a provider failure.
var ErrNoMatch = errors.New("enrich: no match")

// Profile is what a provider knows about a person.
type Profile struct {
	URL     string `json:"url"`
	Name    string `json:"name,omitempty"`
	Title   string `json:"title,omitempty"`
	Company string `json:"company,omitempty"`
}

// Provider looks up a person. A nil profile with a nil error means no match.
type Provider interface {
	Name() string
	Lookup(ctx context.Context, name, company string) (*Profile, error)
}

// Cache stores resolved values by normalised key.
type Cache interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Put(ctx context.Context, key, value, provider string) error
}

// Result is the outcome of Discover.
type Result struct {
	Value    string `json:"value,omitempty"`
	Provider string `json:"provider"`
	Cached   bool   `json:"cached"`
}

// CacheKey normalises a lookup into its cache key.
func CacheKey(name, company string) string {
	return strings.ToLower(strings.TrimSpace(name)) + "|" + strings.ToLower(strings.TrimSpace(company))
}

// Chain tries the cache, then each provider in order.
type Chain struct {
	cache     Cache
	providers []Provider
	breakers  *connectivity.Registry
	timeout   time.Duration
	logger    *slog.Logger
}

// Option configures a Chain.
type Option func(*Chain)

// WithCache sets the cache. Without one every lookup goes to the providers.
func WithCache(c Cache) Option { return func(ch *Chain) { ch.cache = c } }

// WithTimeout bounds each provider call (default 150s, enough for a
// PhantomBuster poll cycle).
func WithTimeout(d time.Duration) Option { return func(ch *Chain) { ch.timeout = d } }

func WithLogger(l *slog.Logger) Option { return func(ch *Chain) { ch.logger = l } }

// NewChain creates a chain over providers in priority order.
func NewChain(breakers *connectivity.Registry, providers []Provider, opts ...Option) *Chain {
	c := &Chain{
		providers: providers,
		breakers:  breakers,
		timeout:   150 * time.Second,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.breakers == nil {
		c.breakers = connectivity.NewRegistry(c.logger)
	}
	return c
}

// Providers lists provider names in order.
func (c *Chain) Providers() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

// Discover resolves name at company. Provider and cache failures are logged
// and never returned; when nothing answers, Provider is "none". Only a
// cancelled ctx yields an error.
func (c *Chain) Discover(ctx context.Context, name, company string) (Result, error) {
	key := CacheKey(name, company)

	if c.cache != nil {
		v, ok, err := c.cache.Get(ctx, key)
		switch {
		case err != nil:
			c.logger.Warn("enrich: cache get", "key", key, "error", err)
		case ok && v != "":
			return Result{Value: v, Provider: ProviderCache, Cached: true}, nil
		}
	}

	for _, p := range c.providers {
		if err := ctx.Err(); err != nil {
			return Result{Provider: ProviderNone}, err
		}
		var prof *Profile
		err := c.breakers.Do(ctx, p.Name(), c.timeout, func(ctx context.Context) error {
			var err error
			prof, err = p.Lookup(ctx, name, company)
			if err == nil && (prof == nil || prof.URL == "") {
				err = ErrNoMatch
			}
			return err
		})
		if err != nil {
			var open *connectivity.ErrCircuitOpen
			if errors.As(err, &open) {
				c.logger.Debug("enrich: provider skipped", "provider", p.Name())
			} else {
				c.logger.Warn("enrich: provider failed", "provider", p.Name(), "error", err)
			}
			continue
		}

		if c.cache != nil {
			if err := c.cache.Put(ctx, key, prof.URL, p.Name()); err != nil {
				c.logger.Warn("enrich: cache put", "key", key, "error", err)
			}
		}
		return Result{Value: prof.URL, Provider: p.Name()}, nil
	}

	if err := ctx.Err(); err != nil {
		return Result{Provider: ProviderNone}, fmt.Errorf("enrich: %w", err)
	}
	return Result{Provider: ProviderNone}, nil
}
