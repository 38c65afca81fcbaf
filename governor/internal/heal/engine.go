// Package heal repairs broken field selectors with a language model.
//
// One heal attempt moves the source to healing, asks the model for a
// replacement selector (from markup or a screenshot), verifies it against
// the live page, and only then commits it. Every attempt leaves exactly one
// heal event, successful or not.
package heal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Sm36384/Phoenix/connectivity"
	"github.com/Sm36384/Phoenix/governor/internal/store"
	"github.com/Sm36384/Phoenix/idgen"
	"github.com/Sm36384/Phoenix/kit"
	"github.com/Sm36384/Phoenix/observability"
	"github.com/Sm36384/Phoenix/trace"
)

// BreakerService is the breaker name for model calls.
const BreakerService = "llm"

const (
	MethodText   = "text"
	MethodVision = "vision"
)

// Store is the persistence the engine writes to.
type Store interface {
	SetSourceStatus(ctx context.Context, id, status string, healAt int64) error
	InsertHealEvent(ctx context.Context, e *store.HealEvent) error
	CommitHeal(ctx context.Context, sourceID, field, value, before string) error
}

// Request describes one broken field.
type Request struct {
	SourceID       string `json:"source_id"`
	FieldName      string `json:"field_name"`
	TriggerReason  Reason `json:"trigger_reason"`
	SelectorBefore string `json:"selector_before"`
	Markup         string `json:"-"`
	Screenshot     []byte `json:"-"`
	UseVision      bool   `json:"use_vision"`
}

// Result is the outcome of one attempt.
type Result struct {
	Success       bool   `json:"success"`
	SelectorAfter string `json:"selector_after,omitempty"`
	RawError      string `json:"raw_error,omitempty"`
	Method        string `json:"method"`
	TraceID       string `json:"trace_id"`
	EventID       string `json:"event_id"`
	Verified      bool   `json:"verified"`
}

// Engine runs heal attempts. At most one attempt per (source, field) is in
// flight; concurrent callers for the same field share its result.
type Engine struct {
	store    Store
	model    Model
	breakers *connectivity.Registry
	traces   *trace.Buffer
	events   *observability.EventLogger
	eventIDs idgen.Generator
	traceIDs idgen.Generator
	timeout  time.Duration
	now      func() time.Time
	logger   *slog.Logger
	group    singleflight.Group

	registered func(key string) // test hook: caller has joined the flight for key
}

// Option configures an Engine.
type Option func(*Engine)

// WithModel sets the language model. Without one every attempt fails with
// "llm not configured".
func WithModel(m Model) Option { return func(e *Engine) { e.model = m } }

func WithBreakers(r *connectivity.Registry) Option { return func(e *Engine) { e.breakers = r } }
func WithTraces(b *trace.Buffer) Option             { return func(e *Engine) { e.traces = b } }
func WithEvents(l *observability.EventLogger) Option {
	return func(e *Engine) { e.events = l }
}
func WithLogger(l *slog.Logger) Option        { return func(e *Engine) { e.logger = l } }
func WithClock(fn func() time.Time) Option    { return func(e *Engine) { e.now = fn } }
func WithIDs(events, traces idgen.Generator) Option {
	return func(e *Engine) { e.eventIDs, e.traceIDs = events, traces }
}

// WithTimeout bounds each model call (default 60s).
func WithTimeout(d time.Duration) Option { return func(e *Engine) { e.timeout = d } }

// NewEngine creates an engine writing to st.
func NewEngine(st Store, opts ...Option) *Engine {
	e := &Engine{
		store:    st,
		eventIDs: idgen.Prefixed("heal_", idgen.UUIDv7()),
		traceIDs: idgen.Prefixed("trc_", idgen.UUIDv7()),
		timeout:  60 * time.Second,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	if e.breakers == nil {
		e.breakers = connectivity.NewRegistry(e.logger)
	}
	return e
}

// Configured reports whether a model is set.
func (e *Engine) Configured() bool { return e.model != nil }

// Heal runs one attempt for req. A nil verify accepts any parsed candidate
// and is logged as a warning. The returned error covers persistence
// failures and the caller's ctx ending; heal failures are reported in
// Result.
//
// Concurrent calls for the same (source, field) share the first caller's
// attempt, verified against the first caller's page. The attempt keeps the
// first caller's context values but not its cancellation; each caller stops
// waiting when its own ctx ends.
func (e *Engine) Heal(ctx context.Context, req Request, verify Verifier) (*Result, error) {
	key := req.SourceID + "|" + req.FieldName
	ch := e.group.DoChan(key, func() (any, error) {
		return e.heal(context.WithoutCancel(ctx), req, verify)
	})
	if e.registered != nil {
		e.registered(key)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Shared {
			e.logger.Debug("heal: joined in-flight attempt", "source", req.SourceID, "field", req.FieldName)
		}
		if r.Err != nil {
			return nil, r.Err
		}
		res := *r.Val.(*Result)
		return &res, nil
	}
}

func (e *Engine) heal(ctx context.Context, req Request, verify Verifier) (*Result, error) {
	if !req.TriggerReason.Valid() {
		req.TriggerReason = ReasonSelectorNotFound
	}
	traceID := kit.GetTraceID(ctx)
	if traceID == "" {
		traceID = e.traceIDs()
		ctx = kit.WithTraceID(ctx, traceID)
	}
	ctx = kit.WithSourceID(ctx, req.SourceID)
	defer func() {
		if err := e.traces.Flush(ctx); err != nil {
			e.logger.Warn("heal: trace flush", "error", err)
		}
	}()

	if err := e.store.SetSourceStatus(ctx, req.SourceID, store.StatusHealing, 0); err != nil {
		return nil, fmt.Errorf("heal: %w", err)
	}

	res := &Result{Method: MethodText, TraceID: traceID, EventID: e.eventIDs()}
	if req.UseVision {
		res.Method = MethodVision
	}

	selector, err := e.propose(ctx, req)
	if err != nil {
		res.RawError = err.Error()
	} else {
		res.SelectorAfter = selector
		res.Success = true
	}

	if res.Success {
		switch {
		case verify == nil:
			e.logger.Warn("heal: no verifier, accepting unverified selector",
				"source", req.SourceID, "field", req.FieldName, "selector", selector)
		default:
			ok, verr := verify(ctx, selector)
			switch {
			case verr != nil:
				res.Success = false
				res.RawError = "verification error: " + verr.Error()
			case !ok:
				res.Success = false
				res.RawError = appendNote(res.RawError, "verification failed")
			default:
				res.Verified = true
			}
		}
	}

	ev := &store.HealEvent{
		ID:             res.EventID,
		SourceID:       req.SourceID,
		FieldName:      req.FieldName,
		TriggerReason:  string(req.TriggerReason),
		SelectorBefore: req.SelectorBefore,
		SelectorAfter:  res.SelectorAfter,
		Success:        res.Success,
		Method:         res.Method,
		TraceID:        traceID,
		RawError:       res.RawError,
	}
	if err := e.store.InsertHealEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("heal: %w", err)
	}

	if res.Success {
		if err := e.store.CommitHeal(ctx, req.SourceID, req.FieldName, selector, req.SelectorBefore); err != nil {
			return nil, fmt.Errorf("heal: %w", err)
		}
		if err := e.store.SetSourceStatus(ctx, req.SourceID, store.StatusHealed, e.now().UnixMilli()); err != nil {
			return nil, fmt.Errorf("heal: %w", err)
		}
		e.logger.Info("heal: selector committed", "source", req.SourceID, "field", req.FieldName,
			"before", req.SelectorBefore, "after", selector, "verified", res.Verified)
		e.events.LogEvent(ctx, observability.BusinessEvent{
			EventType: observability.EventHealCommitted,
			SourceID:  req.SourceID,
			Action:    req.FieldName,
			Success:   true,
			Details:   map[string]any{"before": req.SelectorBefore, "after": selector, "method": res.Method},
		})
		return res, nil
	}

	if err := e.store.SetSourceStatus(ctx, req.SourceID, store.StatusHealing, 0); err != nil {
		return nil, fmt.Errorf("heal: %w", err)
	}
	e.logger.Warn("heal: attempt failed", "source", req.SourceID, "field", req.FieldName,
		"reason", req.TriggerReason, "error", res.RawError)
	e.traces.Record(ctx, trace.Span{
		Name:  "heal_failure",
		Error: res.RawError,
		Attrs: map[string]string{
			"field_name":     req.FieldName,
			"trigger_reason": string(req.TriggerReason),
			"method":         res.Method,
		},
	})
	e.events.LogEvent(ctx, observability.BusinessEvent{
		EventType: observability.EventHealFailed,
		SourceID:  req.SourceID,
		Action:    req.FieldName,
		Details:   map[string]any{"reason": string(req.TriggerReason), "error": res.RawError},
	})
	return res, nil
}

// propose asks the model for a candidate selector.
func (e *Engine) propose(ctx context.Context, req Request) (string, error) {
	if e.model == nil {
		return "", ErrNotConfigured
	}

	var p Prompt
	if req.UseVision {
		if len(req.Screenshot) == 0 {
			return "", errors.New("screenshot required for vision heal")
		}
		p = Prompt{Text: VisionPrompt(req.FieldName, req.SelectorBefore), Image: req.Screenshot, ImageMIME: "image/png"}
	} else {
		p = Prompt{Text: TextPrompt(req.FieldName, req.SelectorBefore, req.Markup)}
	}

	var raw string
	err := e.breakers.Do(ctx, BreakerService, e.timeout, func(ctx context.Context) error {
		var err error
		raw, err = e.model.Generate(ctx, p)
		return err
	})
	if err != nil {
		return "", err
	}
	return ParseSelector(raw)
}

func appendNote(detail, note string) string {
	if detail == "" {
		return note
	}
	return detail + "; " + note
}
