// Package store provides the SQLite-backed persistent document and task
// store: point and bulk lookups by id, range queries on indexed fields,
// per-document revision counters, and transactional grouping of multi-row
// writes so readers never observe a partially updated task index.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	id         TEXT PRIMARY KEY,
	type       TEXT NOT NULL,
	parent_id  TEXT NOT NULL DEFAULT '',
	title      TEXT NOT NULL DEFAULT '',
	blocks     TEXT NOT NULL DEFAULT '[]',
	tags       TEXT NOT NULL DEFAULT '[]',
	props      TEXT NOT NULL DEFAULT '{}',
	revision   INTEGER NOT NULL DEFAULT 0,
	lifecycle  TEXT NOT NULL DEFAULT 'active',
	vault_path TEXT NOT NULL DEFAULT '',
	checksum   TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_parent ON documents(parent_id);
CREATE INDEX IF NOT EXISTS idx_documents_vault  ON documents(vault_path) WHERE vault_path != '';

CREATE TABLE IF NOT EXISTS tasks (
	id            TEXT PRIMARY KEY,
	note_id       TEXT NOT NULL,
	block_id      TEXT NOT NULL,
	item_id       TEXT NOT NULL,
	text          TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'todo',
	priority      TEXT NOT NULL DEFAULT '',
	scheduled_day TEXT NOT NULL DEFAULT '',
	due_day       TEXT NOT NULL DEFAULT '',
	next_action   INTEGER NOT NULL DEFAULT 0,
	order_key     INTEGER NOT NULL DEFAULT 0,
	project_id    TEXT NOT NULL DEFAULT '',
	fingerprint   TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_note ON tasks(note_id);
CREATE INDEX IF NOT EXISTS idx_tasks_due  ON tasks(due_day) WHERE due_day != '';

CREATE TABLE IF NOT EXISTS tombstones (
	id        TEXT NOT NULL,
	revision  INTEGER NOT NULL,
	purged_at DATETIME NOT NULL,
	PRIMARY KEY (id, revision)
);
`

// DB wraps a sql.DB with store-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	// The write path serializes mutations per entity already; a single
	// connection avoids SQLITE_BUSY on overlapping transactions.
	conn.SetMaxOpenConns(1)
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
