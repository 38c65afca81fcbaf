package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Sm36384/Phoenix/idgen"
)

// Event types emitted by the governor.
const (
	EventHubBlocked      = "hub_blocked"
	EventIdentityRotated = "identity_rotated"
	EventSessionRestored = "session_restored"
	EventSessionSaved    = "session_saved"
	EventHealCommitted   = "heal_committed"
	EventHealFailed      = "heal_failed"
)

// BusinessEvent is a domain-level event worth keeping for operators.
type BusinessEvent struct {
	ID        string         `json:"id"`
	EventType string         `json:"event_type"`
	HubID     string         `json:"hub_id,omitempty"`
	SourceID  string         `json:"source_id,omitempty"`
	Action    string         `json:"action,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Success   bool           `json:"success"`
	CreatedAt time.Time      `json:"created_at"`
}

// EventLogger writes business events to SQLite.
type EventLogger struct {
	db    *sql.DB
	newID idgen.Generator
	now   func() time.Time
}

// EventLoggerOption configures an EventLogger.
type EventLoggerOption func(*EventLogger)

// WithEventIDGenerator sets a custom ID generator for event IDs.
func WithEventIDGenerator(gen idgen.Generator) EventLoggerOption {
	return func(l *EventLogger) { l.newID = gen }
}

// WithEventClock sets the clock used for created_at.
func WithEventClock(fn func() time.Time) EventLoggerOption {
	return func(l *EventLogger) { l.now = fn }
}

// NewEventLogger creates a logger backed by db (which must carry Schema).
// A nil db yields a logger that only writes to slog.
func NewEventLogger(db *sql.DB, opts ...EventLoggerOption) *EventLogger {
	l := &EventLogger{
		db:    db,
		newID: idgen.Prefixed("evt_", idgen.Default),
		now:   time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// LogEvent records an event. Failures are logged and swallowed so the event
// store never blocks a hub session.
func (l *EventLogger) LogEvent(ctx context.Context, ev BusinessEvent) {
	if l == nil {
		return
	}
	slog.InfoContext(ctx, "event", "type", ev.EventType, "hub", ev.HubID, "source", ev.SourceID, "action", ev.Action, "success", ev.Success)
	if l.db == nil {
		return
	}

	details := "{}"
	if len(ev.Details) > 0 {
		if b, err := json.Marshal(ev.Details); err == nil {
			details = string(b)
		}
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO business_event_logs (event_id, event_type, hub_id, source_id, action, details, success, created_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		l.newID(), ev.EventType, ev.HubID, ev.SourceID, ev.Action, details, boolInt(ev.Success), l.now().UnixMilli())
	if err != nil {
		slog.Error("observability: event log failed", "error", err, "event_type", ev.EventType)
	}
}

// Recent returns the latest events, newest first. An empty hubID means all
// hubs.
func (l *EventLogger) Recent(ctx context.Context, hubID string, limit int) ([]BusinessEvent, error) {
	if l == nil || l.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT event_id, event_type, hub_id, source_id, action, details, success, created_at
		FROM business_event_logs`
	args := []any{}
	if hubID != "" {
		q += ` WHERE hub_id = ?`
		args = append(args, hubID)
	}
	q += ` ORDER BY created_at DESC, event_id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("observability: recent events: %w", err)
	}
	defer rows.Close()

	var out []BusinessEvent
	for rows.Next() {
		var ev BusinessEvent
		var details string
		var success int
		var created int64
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.HubID, &ev.SourceID, &ev.Action, &details, &success, &created); err != nil {
			return nil, fmt.Errorf("observability: scan event: %w", err)
		}
		ev.Success = success == 1
		ev.CreatedAt = time.UnixMilli(created)
		if details != "" && details != "{}" {
			_ = json.Unmarshal([]byte(details), &ev.Details)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Cleanup deletes events older than retention and returns the count removed.
func (l *EventLogger) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := l.now().Add(-retention).UnixMilli()
	res, err := l.db.ExecContext(ctx, `DELETE FROM business_event_logs WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("observability: cleanup events: %w", err)
	}
	return res.RowsAffected()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
