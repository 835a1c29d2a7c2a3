package store

// schema is portable across SQLite and PostgreSQL. Timestamps are stored as
// RFC 3339 text so both drivers round-trip them identically.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS action_items (
		id          TEXT PRIMARY KEY,
		source_ref  TEXT NOT NULL,
		source_type TEXT NOT NULL,
		position    INTEGER NOT NULL DEFAULT 0,
		title       TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		assignee    TEXT,
		due_date    TEXT,
		priority    TEXT NOT NULL,
		confidence  DOUBLE PRECISION NOT NULL,
		tier        TEXT NOT NULL,
		status      TEXT NOT NULL,
		context     TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_action_items_source_ref ON action_items (source_ref)`,
	`CREATE INDEX IF NOT EXISTS idx_action_items_tier ON action_items (tier)`,
	`CREATE INDEX IF NOT EXISTS idx_action_items_status ON action_items (status)`,
}
