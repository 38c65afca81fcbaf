package governor

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/Sm36384/Phoenix/governor/internal/behavior"
	"github.com/Sm36384/Phoenix/governor/internal/browser"
	"github.com/Sm36384/Phoenix/governor/internal/extract"
	"github.com/Sm36384/Phoenix/governor/internal/heal"
	"github.com/Sm36384/Phoenix/governor/internal/rotation"
	"github.com/Sm36384/Phoenix/kit"
	"github.com/Sm36384/Phoenix/observability"
)

// FieldHeal records one heal attempt made during a job.
type FieldHeal struct {
	Field  string       `json:"field"`
	Reason heal.Reason  `json:"reason"`
	Result *heal.Result `json:"result"`
}

// Outcome is what one job produced.
type Outcome struct {
	Hub             string            `json:"hub"`
	Source          string            `json:"source"`
	TraceID         string            `json:"trace_id"`
	Values          map[string]string `json:"values"`
	Failed          map[string]string `json:"failed,omitempty"`
	Heals           []FieldHeal       `json:"heals,omitempty"`
	BotScore        rotation.Score    `json:"bot_score"`
	Rotated         bool              `json:"rotated"`
	SessionRestored bool              `json:"session_restored"`
}

// RunHub runs one job. Errors matching IsFatalHub mean the hub must not be
// touched again this cycle. Pages are checked for blocks after every
// navigation, so a block halts the hub before the bot score is read and
// is never answered by rotation. Field failures are healed and reported in
// the Outcome, never returned.
func (g *Governor) RunHub(ctx context.Context, job Job) (out *Outcome, err error) {
	traceID := kit.GetTraceID(ctx)
	if traceID == "" {
		traceID = g.traceIDs()
	}
	ctx = kit.WithTraceID(ctx, traceID)
	ctx = kit.WithHubID(ctx, job.Hub)
	ctx = kit.WithSourceID(ctx, job.Source)
	log := g.logger.With("hub", job.Hub, "source", job.Source, "trace_id", traceID)
	defer func() {
		if ferr := g.traces.Flush(ctx); ferr != nil {
			log.Warn("governor: trace flush", "error", ferr)
		}
	}()

	if err := g.gate.AssertOpen(job.Hub); err != nil {
		log.Info("governor: hub outside business window", "error", err)
		return nil, err
	}

	d, err := g.limiter.Wait(ctx, job.Source)
	if err != nil {
		return nil, err
	}
	if !d.Allowed {
		return nil, fmt.Errorf("%w: %s (retry in %s)", ErrRateLimited, job.Source, d.Wait)
	}

	out = &Outcome{Hub: job.Hub, Source: job.Source, TraceID: traceID}

	sess, err := g.launcher.Launch(ctx, g.identity(job.Hub))
	if err != nil {
		return out, fmt.Errorf("governor: launch %s: %w", job.Hub, err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			log.Warn("governor: close session", "error", cerr)
		}
	}()

	if g.vault != nil {
		restored, err := g.vault.Inject(ctx, sess, job.Hub, job.Source)
		if err != nil {
			log.Warn("governor: session restore failed, starting fresh", "error", err)
		} else if restored != nil {
			out.SessionRestored = true
			g.events.LogEvent(ctx, observability.BusinessEvent{
				EventType: observability.EventSessionRestored,
				HubID:     job.Hub,
				SourceID:  job.Source,
				Success:   true,
				Details:   map[string]any{"cookies": len(restored.Cookies)},
			})
		}
	}

	loadErr, err := g.browse(ctx, sess, job)
	if err != nil {
		return out, err
	}

	out.BotScore = g.checker.Check(ctx, job.BotRequestID)
	if out.BotScore.ShouldRotate {
		next, err := g.rotator.Rotate(ctx, sess, job.Hub, job.Source, out.BotScore)
		if err != nil {
			return out, err
		}
		sess = next
		out.Rotated = true
		if loadErr, err = g.browse(ctx, sess, job); err != nil {
			return out, err
		}
	}

	healed, err := g.extractAndHeal(ctx, sess, job, loadErr, out)
	if err != nil {
		return out, err
	}
	if len(out.Failed) == 0 && !healed {
		if err := g.store.MarkScraped(ctx, job.Source); err != nil {
			return out, err
		}
	}

	if g.vault != nil {
		g.saveSession(ctx, sess, job)
	}
	log.Info("governor: job done", "fields", len(out.Values), "failed", len(out.Failed),
		"heals", len(out.Heals), "rotated", out.Rotated)
	return out, nil
}

// checkBlocked is the flow's post-navigation check.
func (g *Governor) checkBlocked(ctx context.Context, page browser.Page) error {
	return g.monitor.AssertNotBlocked(ctx, page, kit.GetHubID(ctx))
}

// browse runs the human flow; the flow halts on a block page after each
// navigation. A timeout while loading the target is not fatal: once the
// partly loaded page passes the block check it is returned as loadErr and
// extraction goes ahead on whatever rendered.
func (g *Governor) browse(ctx context.Context, sess browser.Session, job Job) (loadErr, err error) {
	err = g.flow.Run(ctx, sess, homeURL(job), job.TargetURL)
	if err == nil {
		return nil, nil
	}
	var nav *behavior.NavigationError
	if ctx.Err() != nil || !errors.As(err, &nav) || nav.Stage != behavior.StageTarget ||
		heal.Classify(err, 0) != heal.ReasonTimeout {
		return nil, err
	}
	if berr := g.checkBlocked(ctx, sess); berr != nil {
		return nil, berr
	}
	g.logger.Warn("governor: target load timed out, extracting partial page",
		"hub", job.Hub, "source", job.Source, "error", err)
	return err, nil
}

// extractAndHeal extracts every field, heals each failed one, and
// re-extracts a field once after a successful heal. loadErr is a tolerated
// target load failure; when set it classifies every heal trigger. It
// reports whether any heal was attempted.
func (g *Governor) extractAndHeal(ctx context.Context, sess browser.Session, job Job, loadErr error, out *Outcome) (bool, error) {
	selectors, err := g.store.SelectorsFor(ctx, job.Source, job.Fields)
	if err != nil {
		return false, err
	}
	markup, err := sess.Content(ctx)
	if err != nil {
		return false, fmt.Errorf("governor: read page: %w", err)
	}
	doc, err := extract.Parse(markup)
	if err != nil {
		return false, err
	}

	values, failed := doc.Fields(selectors)
	out.Values = values
	if len(failed) == 0 {
		return false, nil
	}

	status := statusOf(ctx, sess)
	out.Failed = make(map[string]string)
	for _, field := range job.Fields {
		ferr, ok := failed[field]
		if !ok {
			continue
		}
		cause := ferr
		if loadErr != nil {
			cause = loadErr
		}
		req := heal.Request{
			SourceID:       job.Source,
			FieldName:      field,
			TriggerReason:  heal.Classify(cause, status),
			SelectorBefore: selectors[field],
			Markup:         markup,
			UseVision:      job.UseVision,
		}
		if job.UseVision {
			if req.Screenshot, err = sess.Screenshot(ctx); err != nil {
				g.logger.Warn("governor: screenshot failed", "source", job.Source, "error", err)
			}
		}

		res, err := g.healer.Heal(ctx, req, heal.PageVerifier(sess))
		if err != nil {
			return true, err
		}
		out.Heals = append(out.Heals, FieldHeal{Field: field, Reason: req.TriggerReason, Result: res})
		if !res.Success {
			out.Failed[field] = ferr.Error()
			continue
		}
		v, rerr := doc.Field(res.SelectorAfter)
		if rerr != nil {
			out.Failed[field] = rerr.Error()
			continue
		}
		out.Values[field] = v
	}
	return true, nil
}

func (g *Governor) saveSession(ctx context.Context, sess browser.Session, job Job) {
	cookies, err := sess.Cookies(ctx)
	if err != nil {
		g.logger.Warn("governor: read cookies", "error", err)
		return
	}
	if err := g.vault.Save(ctx, job.Hub, job.Source, cookies, sess.Identity().UserAgent); err != nil {
		g.logger.Warn("governor: save session", "error", err)
		return
	}
	g.events.LogEvent(ctx, observability.BusinessEvent{
		EventType: observability.EventSessionSaved,
		HubID:     job.Hub,
		SourceID:  job.Source,
		Success:   true,
		Details:   map[string]any{"cookies": len(cookies)},
	})
}

// HubReport is the result of one hub in a cycle.
type HubReport struct {
	Hub      string     `json:"hub"`
	Open     bool       `json:"open"`
	Outcomes []*Outcome `json:"outcomes,omitempty"`
	Errors   []string   `json:"errors,omitempty"`
	// Halted is set when a fatal-hub error stopped the hub.
	Halted string `json:"halted,omitempty"`
}

// RunCycle runs jobs grouped by hub. Open hubs run concurrently; jobs of
// one hub run in order. A fatal-hub error skips the hub's remaining jobs;
// other errors are reported and the hub continues. Reports follow the
// order in which hubs first appear in jobs.
func (g *Governor) RunCycle(ctx context.Context, jobs []Job) ([]*HubReport, error) {
	var order []string
	byHub := make(map[string][]Job)
	for _, j := range jobs {
		if _, ok := byHub[j.Hub]; !ok {
			order = append(order, j.Hub)
		}
		byHub[j.Hub] = append(byHub[j.Hub], j)
	}

	reports := make([]*HubReport, len(order))
	eg, ctx := errgroup.WithContext(ctx)
	if g.cfg.MaxConcurrentHubs > 0 {
		eg.SetLimit(g.cfg.MaxConcurrentHubs)
	}
	for i, hub := range order {
		rep := &HubReport{Hub: hub, Open: g.gate.IsOpen(hub)}
		reports[i] = rep
		if !rep.Open {
			g.logger.Debug("governor: hub closed, skipping", "hub", hub)
			continue
		}
		hubJobs := byHub[hub]
		eg.Go(func() error {
			g.runHubJobs(ctx, hubJobs, rep)
			return ctx.Err()
		})
	}
	return reports, eg.Wait()
}

func (g *Governor) runHubJobs(ctx context.Context, jobs []Job, rep *HubReport) {
	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		out, err := g.RunHub(ctx, job)
		if out != nil {
			rep.Outcomes = append(rep.Outcomes, out)
		}
		if err == nil {
			continue
		}
		if IsFatalHub(err) {
			rep.Halted = err.Error()
			g.logger.Warn("governor: hub stopped for this cycle", "hub", rep.Hub, "error", err)
			return
		}
		rep.Errors = append(rep.Errors, fmt.Sprintf("%s: %v", job.Source, err))
	}
}
