// Package rhythm produces human-like delays: Gaussian samples centred on
// the midpoint of a [min, max] range and clamped to it.
package rhythm

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// Default ranges.
const (
	JitterMin   = 1200 * time.Millisecond
	JitterMax   = 4500 * time.Millisecond
	HesitateMin = 200 * time.Millisecond
	HesitateMax = 1000 * time.Millisecond
	PressGapMin = 80 * time.Millisecond
	PressGapMax = 150 * time.Millisecond
)

// Generator samples delays. Safe for concurrent use.
type Generator struct {
	mu    sync.Mutex
	rng   *rand.Rand
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Generator.
type Option func(*Generator)

// WithRand sets the random source (tests use a seeded PCG).
func WithRand(r *rand.Rand) Option {
	return func(g *Generator) { g.rng = r }
}

// WithSleeper replaces the context-aware sleep used by Wait.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(g *Generator) { g.sleep = fn }
}

// New creates a Generator seeded from the runtime source.
func New(opts ...Option) *Generator {
	g := &Generator{
		rng:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		sleep: Sleep,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Delay samples a duration in [min, max] with mean at the midpoint and
// standard deviation (max-min)/4.
func (g *Generator) Delay(min, max time.Duration) time.Duration {
	if max < min {
		min, max = max, min
	}
	return g.DelayMean(min, max, min+(max-min)/2)
}

// DelayMean is Delay with an explicit mean, still clamped to [min, max].
func (g *Generator) DelayMean(min, max, mean time.Duration) time.Duration {
	if max < min {
		min, max = max, min
	}
	if min == max {
		return min
	}
	std := float64(max-min) / 4
	v := float64(mean) + g.gaussian()*std
	return clamp(time.Duration(math.Round(v)), min, max)
}

// Jitter samples the general inter-action delay (1.2s to 4.5s).
func (g *Generator) Jitter() time.Duration { return g.Delay(JitterMin, JitterMax) }

// Hesitate samples the pre-action hesitation (200ms to 1s).
func (g *Generator) Hesitate() time.Duration { return g.Delay(HesitateMin, HesitateMax) }

// PressGap samples the gap between key press and release (80ms to 150ms).
func (g *Generator) PressGap() time.Duration { return g.Delay(PressGapMin, PressGapMax) }

// Wait sleeps for Delay(min, max) or until ctx is done.
func (g *Generator) Wait(ctx context.Context, min, max time.Duration) error {
	return g.sleep(ctx, g.Delay(min, max))
}

// Pause sleeps for exactly d or until ctx is done.
func (g *Generator) Pause(ctx context.Context, d time.Duration) error {
	return g.sleep(ctx, d)
}

// Intn returns a uniform int in [0, n).
func (g *Generator) Intn(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.IntN(n)
}

// Float64 returns a uniform float in [0, 1).
func (g *Generator) Float64() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Float64()
}

// gaussian draws a standard normal sample with the Box-Muller transform.
func (g *Generator) gaussian() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	u := 1 - g.rng.Float64() // (0, 1]
	v := g.rng.Float64()
	return math.Sqrt(-2*math.Log(u)) * math.Cos(2*math.Pi*v)
}

func clamp(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}

// Sleep waits for d or returns ctx.Err() if ctx ends first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
