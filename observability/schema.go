// Package observability carries the governor's ambient logging: the slog
// handler (stderr plus an optional rotating file) and the SQLite business
// event log read by the status feed.
package observability

import "database/sql"

// Schema is the DDL for the business event table.
const Schema = `
CREATE TABLE IF NOT EXISTS business_event_logs (
    event_id TEXT PRIMARY KEY,
    event_type TEXT NOT NULL,
    hub_id TEXT NOT NULL DEFAULT '',
    source_id TEXT NOT NULL DEFAULT '',
    action TEXT NOT NULL DEFAULT '',
    details TEXT NOT NULL DEFAULT '{}',
    success INTEGER NOT NULL DEFAULT 1,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_created
    ON business_event_logs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_events_hub
    ON business_event_logs(hub_id, created_at DESC);
`

// Init applies Schema to db.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
