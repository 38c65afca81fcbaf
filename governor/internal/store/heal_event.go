package store

import (
	"context"
	"fmt"
)

// HealEvent is one attempt of the self-healing engine, successful or not.
type HealEvent struct {
	ID             string `json:"id"`
	SourceID       string `json:"source_id"`
	FieldName      string `json:"field_name"`
	TriggerReason  string `json:"trigger_reason"`
	SelectorBefore string `json:"selector_before"`
	SelectorAfter  string `json:"selector_after,omitempty"`
	Success        bool   `json:"success"`
	Method         string `json:"method"`
	TraceID        string `json:"trace_id,omitempty"`
	RawError       string `json:"raw_error,omitempty"`
	CreatedAt      int64  `json:"created_at"`
}

// InsertHealEvent appends a heal event.
func (s *Store) InsertHealEvent(ctx context.Context, e *HealEvent) error {
	if e.CreatedAt == 0 {
		e.CreatedAt = s.now()
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO heal_events (id, source_id, field_name, trigger_reason, selector_before,
			selector_after, success, method, trace_id, raw_error, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.SourceID, e.FieldName, e.TriggerReason, e.SelectorBefore,
		e.SelectorAfter, boolInt(e.Success), e.Method, e.TraceID, e.RawError, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: insert heal event: %w", err)
	}
	return nil
}

// ListHealEvents returns the latest events for a source (all sources when
// sourceID is empty), newest first.
func (s *Store) ListHealEvents(ctx context.Context, sourceID string, limit int) ([]*HealEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT id, source_id, field_name, trigger_reason, selector_before, selector_after,
		success, method, trace_id, raw_error, created_at FROM heal_events`
	args := []any{}
	if sourceID != "" {
		q += ` WHERE source_id = ?`
		args = append(args, sourceID)
	}
	q += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*HealEvent
	for rows.Next() {
		e := &HealEvent{}
		var success int
		if err := rows.Scan(&e.ID, &e.SourceID, &e.FieldName, &e.TriggerReason, &e.SelectorBefore,
			&e.SelectorAfter, &success, &e.Method, &e.TraceID, &e.RawError, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Success = success == 1
		out = append(out, e)
	}
	return out, rows.Err()
}
