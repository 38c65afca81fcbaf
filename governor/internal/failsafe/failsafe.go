// Package failsafe halts a hub as soon as a page looks like a block or
// challenge page. A halt is recorded to the trace buffer and the event log
// and surfaces as *BlockedError, which callers must treat as fatal for the
// hub.
package failsafe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Sm36384/Phoenix/governor/internal/browser"
	"github.com/Sm36384/Phoenix/observability"
	"github.com/Sm36384/Phoenix/trace"
)

// Indicators are matched case-insensitively as substrings of the page
// content, in order; the first match is the reason.
var Indicators = []string{
	"captcha",
	"recaptcha",
	"hcaptcha",
	"access denied",
	"blocked",
	"suspicious activity",
	"unusual traffic",
	"verify you are human",
	"please complete the security check",
	"403 forbidden",
	"rate limit",
}

// ErrBlocked matches every *BlockedError.
var ErrBlocked = errors.New("failsafe: hub blocked")

// BlockedError halts all scraping for Hub.
type BlockedError struct {
	Hub    string
	Reason string
	URL    string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("failsafe: halt all scraping for hub %s: %q detected at %s", e.Hub, e.Reason, e.URL)
}

func (e *BlockedError) Is(target error) bool { return target == ErrBlocked }

// Detect returns the first indicator found in content.
func Detect(content string) (reason string, blocked bool) {
	lower := strings.ToLower(content)
	for _, phrase := range Indicators {
		if strings.Contains(lower, phrase) {
			return phrase, true
		}
	}
	return "", false
}

// Monitor checks pages and records halts.
type Monitor struct {
	traces *trace.Buffer
	events *observability.EventLogger
	logger *slog.Logger
}

// NewMonitor creates a Monitor. traces and events may be nil.
func NewMonitor(traces *trace.Buffer, events *observability.EventLogger, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{traces: traces, events: events, logger: logger}
}

// AssertNotBlocked reads the page content and returns *BlockedError if any
// indicator is present. Content read failures are returned as-is.
func (m *Monitor) AssertNotBlocked(ctx context.Context, page browser.Page, hub string) error {
	content, err := page.Content(ctx)
	if err != nil {
		return fmt.Errorf("failsafe: read content: %w", err)
	}
	reason, blocked := Detect(content)
	if !blocked {
		return nil
	}

	url, _ := page.URL(ctx)
	m.Halt(ctx, hub, reason, url)
	return &BlockedError{Hub: hub, Reason: reason, URL: url}
}

// Halt records a block for hub without inspecting a page.
func (m *Monitor) Halt(ctx context.Context, hub, reason, url string) {
	m.logger.ErrorContext(ctx, "failsafe: hub halted for manual review", "hub", hub, "reason", reason, "url", url)
	m.traces.Record(ctx, trace.Span{
		Name:  "fail_safe_halt",
		HubID: hub,
		Attrs: map[string]string{"reason": reason, "url": url},
		Error: "blocked",
	})
	m.events.LogEvent(ctx, observability.BusinessEvent{
		EventType: observability.EventHubBlocked,
		HubID:     hub,
		Action:    "halt",
		Details:   map[string]any{"reason": reason, "url": url},
		Success:   false,
	})
}
