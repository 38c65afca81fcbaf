package store

// Schema is the governor DDL.
const Schema = `
CREATE TABLE IF NOT EXISTS sources (
    id TEXT PRIMARY KEY,
    display_name TEXT NOT NULL DEFAULT '',
    region TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'ok' CHECK (status IN ('ok','healing','healed')),
    last_scraped_at INTEGER,
    last_heal_at INTEGER
);

CREATE TABLE IF NOT EXISTS selectors (
    source_id TEXT NOT NULL,
    field_name TEXT NOT NULL,
    selector_type TEXT NOT NULL DEFAULT 'css',
    selector_value TEXT NOT NULL,
    selector_previous TEXT NOT NULL DEFAULT '',
    last_verified_at INTEGER,
    PRIMARY KEY (source_id, field_name)
);

CREATE TABLE IF NOT EXISTS heal_events (
    id TEXT PRIMARY KEY,
    source_id TEXT NOT NULL,
    field_name TEXT NOT NULL,
    trigger_reason TEXT NOT NULL,
    selector_before TEXT NOT NULL DEFAULT '',
    selector_after TEXT NOT NULL DEFAULT '',
    success INTEGER NOT NULL DEFAULT 0,
    method TEXT NOT NULL DEFAULT 'text',
    trace_id TEXT NOT NULL DEFAULT '',
    raw_error TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_heal_events_source ON heal_events(source_id, created_at DESC);

CREATE TABLE IF NOT EXISTS sessions (
    hub_id TEXT NOT NULL,
    source_id TEXT NOT NULL,
    cookies_encrypted TEXT NOT NULL,
    user_agent TEXT NOT NULL DEFAULT '',
    expires_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (hub_id, source_id)
);

CREATE TABLE IF NOT EXISTS enrichment_cache (
    cache_key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    provider TEXT NOT NULL DEFAULT '',
    updated_at INTEGER NOT NULL
);
`
