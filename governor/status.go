package governor

import (
	"context"

	"github.com/Sm36384/Phoenix/connectivity"
	"github.com/Sm36384/Phoenix/governor/internal/hours"
	"github.com/Sm36384/Phoenix/governor/internal/ratelimit"
	"github.com/Sm36384/Phoenix/governor/internal/store"
	"github.com/Sm36384/Phoenix/observability"
	"github.com/Sm36384/Phoenix/trace"
)

// DefaultListLimit caps list endpoints when no limit is given.
const DefaultListLimit = 50

func clampLimit(n int) int {
	if n <= 0 || n > 500 {
		return DefaultListLimit
	}
	return n
}

// Sources lists every source with its heal status.
func (g *Governor) Sources(ctx context.Context) ([]*store.Source, error) {
	return g.store.ListSources(ctx)
}

// Source returns one source, or nil if unknown.
func (g *Governor) Source(ctx context.Context, id string) (*store.Source, error) {
	return g.store.GetSource(ctx, id)
}

// HealEvents lists the newest heal events of a source.
func (g *Governor) HealEvents(ctx context.Context, sourceID string, limit int) ([]*store.HealEvent, error) {
	return g.store.ListHealEvents(ctx, sourceID, clampLimit(limit))
}

// Selectors lists the stored selectors of a source.
func (g *Governor) Selectors(ctx context.Context, sourceID string) ([]*store.Selector, error) {
	return g.store.ListSelectors(ctx, sourceID)
}

// HubStatus reports every hub's local hour and window state.
func (g *Governor) HubStatus() []hours.HubStatus { return g.gate.Status() }

// Breakers reports every circuit breaker.
func (g *Governor) Breakers() []connectivity.BreakerStatus { return g.breakers.Snapshot() }

// RateLimit reports the limiter state of a source.
func (g *Governor) RateLimit(source string) ratelimit.Status { return g.limiter.Status(source) }

// RecentTraces lists the newest persisted spans.
func (g *Governor) RecentTraces(ctx context.Context, limit int) ([]trace.Span, error) {
	return trace.NewStore(g.store.DB).Recent(ctx, clampLimit(limit))
}

// RecentEvents lists the newest business events, optionally for one hub.
func (g *Governor) RecentEvents(ctx context.Context, hub string, limit int) ([]observability.BusinessEvent, error) {
	return g.events.Recent(ctx, hub, clampLimit(limit))
}
