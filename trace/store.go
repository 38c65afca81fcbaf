package trace

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// Schema for the trace_spans table.
const Schema = `
CREATE TABLE IF NOT EXISTS trace_spans (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	trace_id TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL,
	hub_id TEXT NOT NULL DEFAULT '',
	source_id TEXT NOT NULL DEFAULT '',
	attrs TEXT NOT NULL DEFAULT '{}',
	error TEXT NOT NULL DEFAULT '',
	timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trace_spans_ts ON trace_spans(timestamp);
CREATE INDEX IF NOT EXISTS idx_trace_spans_tid ON trace_spans(trace_id) WHERE trace_id != '';
`

// Store exports spans to a SQLite table.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store. The db must carry Schema.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Export writes spans in one transaction.
func (s *Store) Export(ctx context.Context, spans []Span) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("trace store: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO trace_spans (trace_id, name, hub_id, source_id, attrs, error, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("trace store: prepare: %w", err)
	}
	defer stmt.Close()

	for _, sp := range spans {
		attrs := "{}"
		if len(sp.Attrs) > 0 {
			b, _ := json.Marshal(sp.Attrs)
			attrs = string(b)
		}
		if _, err := stmt.ExecContext(ctx, sp.TraceID, sp.Name, sp.HubID, sp.SourceID, attrs, sp.Error, sp.Timestamp); err != nil {
			return fmt.Errorf("trace store: insert: %w", err)
		}
	}
	return tx.Commit()
}

// Recent returns the latest spans, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Span, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT trace_id, name, hub_id, source_id, attrs, error, timestamp
		FROM trace_spans ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("trace store: recent: %w", err)
	}
	defer rows.Close()

	var out []Span
	for rows.Next() {
		var sp Span
		var attrs string
		if err := rows.Scan(&sp.TraceID, &sp.Name, &sp.HubID, &sp.SourceID, &attrs, &sp.Error, &sp.Timestamp); err != nil {
			return nil, fmt.Errorf("trace store: scan: %w", err)
		}
		if attrs != "{}" {
			_ = json.Unmarshal([]byte(attrs), &sp.Attrs)
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}
