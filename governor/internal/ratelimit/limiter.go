// Package ratelimit paces requests per source with a fixed window counter.
//
// Each source gets its own window guarded by its own mutex, so concurrent
// hubs hitting different sources never contend.
package ratelimit

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultWindow = 60 * time.Second
	DefaultMax    = 12
)

// Decision is the outcome of one admission check. Wait is encoded in JSON
// as whole milliseconds.
type Decision struct {
	Allowed   bool
	Wait      time.Duration
	Remaining int
}

type decisionJSON struct {
	Allowed   bool  `json:"allowed"`
	WaitMS    int64 `json:"wait_ms"`
	Remaining int   `json:"remaining"`
}

func (d Decision) MarshalJSON() ([]byte, error) {
	return json.Marshal(decisionJSON{Allowed: d.Allowed, WaitMS: d.Wait.Milliseconds(), Remaining: d.Remaining})
}

func (d *Decision) UnmarshalJSON(b []byte) error {
	var w decisionJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*d = Decision{Allowed: w.Allowed, Wait: time.Duration(w.WaitMS) * time.Millisecond, Remaining: w.Remaining}
	return nil
}

// Status is a read-only view of a source's window. ResetIn is encoded in
// JSON as whole milliseconds.
type Status struct {
	Source    string
	Remaining int
	ResetIn   time.Duration
	Limited   bool
}

type statusJSON struct {
	Source    string `json:"source"`
	Remaining int    `json:"remaining"`
	ResetInMS int64  `json:"reset_in_ms"`
	Limited   bool   `json:"limited"`
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(statusJSON{Source: s.Source, Remaining: s.Remaining, ResetInMS: s.ResetIn.Milliseconds(), Limited: s.Limited})
}

func (s *Status) UnmarshalJSON(b []byte) error {
	var w statusJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*s = Status{Source: w.Source, Remaining: w.Remaining, ResetIn: time.Duration(w.ResetInMS) * time.Millisecond, Limited: w.Limited}
	return nil
}

type window struct {
	mu    sync.Mutex
	start time.Time
	count int
}

// Limiter tracks one window per source.
type Limiter struct {
	window  time.Duration
	max     int
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	logger  *slog.Logger
	windows sync.Map // source -> *window
}

// Option configures a Limiter.
type Option func(*Limiter)

func WithWindow(d time.Duration) Option { return func(l *Limiter) { l.window = d } }
func WithMax(n int) Option              { return func(l *Limiter) { l.max = n } }
func WithClock(fn func() time.Time) Option {
	return func(l *Limiter) { l.now = fn }
}
func WithLogger(lg *slog.Logger) Option { return func(l *Limiter) { l.logger = lg } }

// WithSleeper replaces the blocking sleep used by Wait.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Limiter) { l.sleep = fn }
}

// New creates a limiter with a 60s window and 12 requests per window unless
// overridden.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		window: DefaultWindow,
		max:    DefaultMax,
		now:    time.Now,
		sleep:  sleepCtx,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(l)
	}
	if l.window <= 0 {
		l.window = DefaultWindow
	}
	if l.max <= 0 {
		l.max = DefaultMax
	}
	return l
}

func (l *Limiter) get(source string) *window {
	if w, ok := l.windows.Load(source); ok {
		return w.(*window)
	}
	w, _ := l.windows.LoadOrStore(source, &window{start: l.now()})
	return w.(*window)
}

// Check admits or denies one request for source. An admitted request is
// counted against the window.
func (l *Limiter) Check(source string) Decision {
	w := l.get(source)
	w.mu.Lock()
	defer w.mu.Unlock()

	now := l.now()
	if now.Sub(w.start) >= l.window {
		w.start = now
		w.count = 0
	}
	if w.count >= l.max {
		wait := l.window - now.Sub(w.start)
		if wait < 0 {
			wait = 0
		}
		return Decision{Allowed: false, Wait: wait}
	}
	w.count++
	return Decision{Allowed: true, Remaining: l.max - w.count}
}

// Wait checks source and, on denial, sleeps for the advertised wait and
// checks exactly once more. The second decision is returned as is.
func (l *Limiter) Wait(ctx context.Context, source string) (Decision, error) {
	d := l.Check(source)
	if d.Allowed {
		return d, nil
	}
	l.logger.Info("ratelimit: waiting", "source", source, "wait", d.Wait)
	if err := l.sleep(ctx, d.Wait); err != nil {
		return d, err
	}
	return l.Check(source), nil
}

// Status reports the window for source without counting a request.
func (l *Limiter) Status(source string) Status {
	v, ok := l.windows.Load(source)
	if !ok {
		return Status{Source: source, Remaining: l.max, ResetIn: l.window}
	}
	w := v.(*window)
	w.mu.Lock()
	defer w.mu.Unlock()

	elapsed := l.now().Sub(w.start)
	if elapsed >= l.window {
		return Status{Source: source, Remaining: l.max, ResetIn: l.window}
	}
	remaining := l.max - w.count
	if remaining < 0 {
		remaining = 0
	}
	return Status{
		Source:    source,
		Remaining: remaining,
		ResetIn:   l.window - elapsed,
		Limited:   remaining == 0,
	}
}

// Reset forgets the window for source.
func (l *Limiter) Reset(source string) {
	l.windows.Delete(source)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
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
