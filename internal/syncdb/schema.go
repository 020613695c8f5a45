package syncdb

// SchemaVersion is the current sync database schema version
const SchemaVersion = 2

const syncSchema = `
-- Users table
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email TEXT UNIQUE NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- API keys table
CREATE TABLE IF NOT EXISTS api_keys (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    key_hash TEXT UNIQUE NOT NULL,
    key_prefix TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    expires_at DATETIME,
    last_used_at DATETIME,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);

-- Registered devices. device_id is the caller-supplied stable identifier,
-- unique across the whole system. Rows are soft-deactivated, never deleted,
-- because journal history references them.
CREATE TABLE IF NOT EXISTS devices (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    class TEXT NOT NULL CHECK(class IN ('web', 'mobile', 'desktop')),
    device_id TEXT UNIQUE NOT NULL,
    last_sync_at DATETIME,
    active INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (user_id) REFERENCES users(id)
);

-- Append-only change journal. Rows are immutable once written; corrections
-- are new rows. origin_device_id NULL means server-origin.
CREATE TABLE IF NOT EXISTS change_journal (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    operation TEXT NOT NULL CHECK(operation IN ('create', 'update', 'delete')),
    payload JSON NOT NULL,
    origin_device_id TEXT,
    recorded_at DATETIME NOT NULL,
    delivered INTEGER NOT NULL DEFAULT 0
);

-- Unresolved divergences between a device's proposed change and the server
-- state. Mutated exactly once, by resolution.
CREATE TABLE IF NOT EXISTS conflicts (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    device_data JSON NOT NULL,
    device_source TEXT NOT NULL,
    server_data JSON,
    server_source TEXT NOT NULL DEFAULT 'server',
    resolution TEXT,
    resolved INTEGER NOT NULL DEFAULT 0,
    resolved_at DATETIME,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Entity tables the sync engine dispatches into.
CREATE TABLE IF NOT EXISTS knowledge_items (
    user_id TEXT NOT NULL,
    id TEXT NOT NULL,
    title TEXT,
    content TEXT,
    source_url TEXT,
    category_id TEXT,
    created_at DATETIME,
    updated_at DATETIME,
    deleted_at DATETIME,
    PRIMARY KEY (user_id, id)
);

CREATE TABLE IF NOT EXISTS categories (
    user_id TEXT NOT NULL,
    id TEXT NOT NULL,
    name TEXT,
    parent_id TEXT,
    created_at DATETIME,
    updated_at DATETIME,
    deleted_at DATETIME,
    PRIMARY KEY (user_id, id)
);

CREATE TABLE IF NOT EXISTS tags (
    user_id TEXT NOT NULL,
    id TEXT NOT NULL,
    name TEXT,
    color TEXT,
    created_at DATETIME,
    updated_at DATETIME,
    deleted_at DATETIME,
    PRIMARY KEY (user_id, id)
);

-- Schema info table
CREATE TABLE IF NOT EXISTS schema_info (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_api_keys_user ON api_keys(user_id);
CREATE INDEX IF NOT EXISTS idx_api_keys_prefix ON api_keys(key_prefix);
CREATE INDEX IF NOT EXISTS idx_devices_user ON devices(user_id, active);
CREATE INDEX IF NOT EXISTS idx_journal_user_time ON change_journal(user_id, recorded_at);
CREATE INDEX IF NOT EXISTS idx_journal_entity ON change_journal(user_id, entity_type, entity_id, recorded_at);
CREATE INDEX IF NOT EXISTS idx_conflicts_open ON conflicts(user_id, resolved, created_at);
`

// Migration defines a sync database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations is the list of all sync database migrations in order
var Migrations = []Migration{
	// Version 1 is the initial schema - no migration needed
	{
		Version:     2,
		Description: "Add rate_limit_events table for abuse auditing",
		SQL: `CREATE TABLE IF NOT EXISTS rate_limit_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			api_key_id TEXT NOT NULL DEFAULT '',
			ip TEXT NOT NULL DEFAULT '',
			endpoint_class TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_rate_limit_events_time ON rate_limit_events(created_at);`,
	},
}
