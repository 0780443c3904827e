// Package index provides the SQLite-backed item catalog: brains, tag and
// ancestor membership, persisted ordered sets, and evaluation of boolean
// queries. Text predicates use FTS5 when built with the sqlite_fts5 tag.
package index

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS items (
	path         TEXT PRIMARY KEY,
	file         TEXT NOT NULL UNIQUE,
	parent_path  TEXT NOT NULL DEFAULT '',
	name         TEXT NOT NULL DEFAULT '',
	title        TEXT NOT NULL DEFAULT '',
	format       TEXT NOT NULL DEFAULT '',
	state        TEXT NOT NULL DEFAULT 'public',
	owner        TEXT NOT NULL DEFAULT '',
	preview      TEXT NOT NULL DEFAULT '',
	body         TEXT NOT NULL DEFAULT '',
	tags         TEXT NOT NULL DEFAULT '[]',
	checksum     TEXT NOT NULL DEFAULT '',
	mtime        TEXT NOT NULL DEFAULT '',
	pub_datetime TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_items_parent ON items(parent_path);
CREATE INDEX IF NOT EXISTS idx_items_format ON items(format);

CREATE TABLE IF NOT EXISTS item_tags (
	path TEXT NOT NULL,
	tag  TEXT NOT NULL,
	UNIQUE(path, tag)
);

CREATE INDEX IF NOT EXISTS idx_item_tags_tag ON item_tags(tag);

CREATE TABLE IF NOT EXISTS item_paths (
	path     TEXT NOT NULL,
	ancestor TEXT NOT NULL,
	UNIQUE(path, ancestor)
);

CREATE INDEX IF NOT EXISTS idx_item_paths_ancestor ON item_paths(ancestor);

CREATE TABLE IF NOT EXISTS ordered_sets (
	container TEXT NOT NULL,
	name      TEXT NOT NULL,
	position  INTEGER NOT NULL,
	id        TEXT NOT NULL,
	PRIMARY KEY (container, name, position),
	UNIQUE (container, name, id)
);
`

// DB wraps a sql.DB with catalog operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("index: ping: %w", err)
	}
	return nil
}
