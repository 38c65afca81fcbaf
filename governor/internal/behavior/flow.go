// Package behavior runs the human-flow protocol before a target page is
// scraped: land on the home page, scroll part-way down, move the pointer
// into the navigation band, dwell, then open the target.
package behavior

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/Sm36384/Phoenix/governor/internal/browser"
	"github.com/Sm36384/Phoenix/governor/internal/motion"
	"github.com/Sm36384/Phoenix/governor/internal/rhythm"
)

const (
	// ScrollFraction of the scrollable height reached on the home page.
	ScrollFraction = 0.3

	minScrollSteps = 8
	maxScrollSteps = 14

	scrollPauseMin = 80 * time.Millisecond
	scrollPauseMax = 400 * time.Millisecond
	settleMin      = 500 * time.Millisecond
	settleMax      = 1500 * time.Millisecond

	// Dwell is the fixed hover time over the navigation point.
	Dwell = 1200 * time.Millisecond
)

// Navigation stages reported by NavigationError.
const (
	StageHome   = "home"
	StageTarget = "target"
)

// NavigationError is returned when opening the home or target page fails.
type NavigationError struct {
	Stage string
	URL   string
	Err   error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("behavior: open %s %s: %v", e.Stage, e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// Check inspects the page right after a navigation. A non-nil error aborts
// the flow and is returned unchanged.
type Check func(ctx context.Context, page browser.Page) error

// Flow drives a page through the protocol.
type Flow struct {
	rhythm *rhythm.Generator
	logger *slog.Logger
	check  Check
}

// Option configures a Flow.
type Option func(*Flow)

// WithCheck runs fn after each successful navigation.
func WithCheck(fn Check) Option { return func(f *Flow) { f.check = fn } }

// New creates a Flow. A nil logger uses slog.Default().
func New(r *rhythm.Generator, logger *slog.Logger, opts ...Option) *Flow {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Flow{rhythm: r, logger: logger}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Run executes the protocol. Any navigation, check or evaluation error
// aborts it; failed page loads are *NavigationError.
func (f *Flow) Run(ctx context.Context, page browser.Page, homeURL, targetURL string) error {
	log := f.logger.With("home", homeURL, "target", targetURL)

	if err := f.open(ctx, page, StageHome, homeURL); err != nil {
		return err
	}
	if err := f.rhythm.Pause(ctx, f.rhythm.Jitter()); err != nil {
		return err
	}

	if err := f.scroll(ctx, page); err != nil {
		return err
	}
	if err := f.rhythm.Wait(ctx, settleMin, settleMax); err != nil {
		return err
	}

	if err := f.hover(ctx, page); err != nil {
		return err
	}
	if err := f.rhythm.Pause(ctx, Dwell); err != nil {
		return err
	}
	if err := f.rhythm.Pause(ctx, f.rhythm.Hesitate()); err != nil {
		return err
	}

	if err := f.open(ctx, page, StageTarget, targetURL); err != nil {
		return err
	}
	if err := f.rhythm.Pause(ctx, f.rhythm.Jitter()); err != nil {
		return err
	}
	log.Debug("behavior: flow complete")
	return nil
}

func (f *Flow) open(ctx context.Context, page browser.Page, stage, url string) error {
	if err := page.Navigate(ctx, url); err != nil {
		return &NavigationError{Stage: stage, URL: url, Err: err}
	}
	if f.check == nil {
		return nil
	}
	return f.check(ctx, page)
}

// scroll moves down to ScrollFraction of the scrollable height in evenly
// sized increments separated by short jittered pauses.
func (f *Flow) scroll(ctx context.Context, page browser.Page) error {
	height, err := browser.EvalFloat(ctx, page, `() => document.documentElement.scrollHeight - window.innerHeight`)
	if err != nil {
		return fmt.Errorf("behavior: scroll height: %w", err)
	}
	target := math.Round(math.Max(height, 0) * ScrollFraction)
	steps := minScrollSteps + f.rhythm.Intn(maxScrollSteps-minScrollSteps+1)

	for i := 1; i <= steps; i++ {
		y := math.Round(target * float64(i) / float64(steps))
		if _, err := page.Evaluate(ctx, `(y) => window.scrollTo(0, y)`, y); err != nil {
			return fmt.Errorf("behavior: scroll: %w", err)
		}
		if err := f.rhythm.Wait(ctx, scrollPauseMin, scrollPauseMax); err != nil {
			return err
		}
	}
	return nil
}

// hover moves the pointer from the viewport centre to a random point in the
// top navigation band along a curved path.
func (f *Flow) hover(ctx context.Context, page browser.Page) error {
	vp, err := browser.ViewportSize(ctx, page)
	if err != nil {
		return fmt.Errorf("behavior: viewport: %w", err)
	}
	start := motion.Point{X: vp.Width / 2, Y: vp.Height / 2}
	end := NavPoint(f.rhythm, vp.Width)

	if err := motion.Move(ctx, page, f.rhythm, f.rhythm.Pause, start, end); err != nil {
		return fmt.Errorf("behavior: pointer: %w", err)
	}
	return nil
}

// NavPoint picks a point in the band where site menus usually sit:
// x in [0.1w, 0.4w), y in [20, 100).
func NavPoint(src motion.Source, width float64) motion.Point {
	return motion.Point{
		X: src.Float64()*width*0.3 + width*0.1,
		Y: src.Float64()*80 + 20,
	}
}
