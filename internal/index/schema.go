// Package index is the SQLite database surface of Luzzle: piece items with a
// per-field projection, the piece-type registry, the sync cache, and
// full-text search (FTS5 when built with the sqlite_fts5 tag).
package index

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS pieces (
	name         TEXT PRIMARY KEY,
	schema       TEXT NOT NULL,
	date_added   DATETIME NOT NULL,
	date_updated DATETIME
);

CREATE TABLE IF NOT EXISTS pieces_items (
	id               TEXT PRIMARY KEY,
	type             TEXT NOT NULL,
	file_path        TEXT NOT NULL,
	slug             TEXT NOT NULL,
	frontmatter_json TEXT NOT NULL DEFAULT '{}',
	note_markdown    TEXT,
	content_hash     TEXT NOT NULL DEFAULT '',
	date_added       DATETIME NOT NULL,
	date_updated     DATETIME,
	UNIQUE(type, file_path)
);

CREATE TABLE IF NOT EXISTS pieces_items_values (
	item_id TEXT NOT NULL REFERENCES pieces_items(id) ON DELETE CASCADE,
	type    TEXT NOT NULL,
	field   TEXT NOT NULL,
	value
);

CREATE INDEX IF NOT EXISTS idx_values_item ON pieces_items_values(item_id);
CREATE INDEX IF NOT EXISTS idx_values_field ON pieces_items_values(type, field, value);

CREATE TABLE IF NOT EXISTS pieces_cache (
	type         TEXT NOT NULL,
	file_path    TEXT NOT NULL,
	content_hash TEXT NOT NULL DEFAULT '',
	date_added   DATETIME NOT NULL,
	date_updated DATETIME,
	PRIMARY KEY (type, file_path)
);
`

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", withParams(dsn))
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	// Concurrent sync workers share one writer; SQLite serializes anyway.
	conn.SetMaxOpenConns(1)
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

const dsnParams = "_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

// withParams appends the connection parameters, keeping any query the
// configured DSN already carries.
func withParams(dsn string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + dsnParams
	}
	return dsn + "?" + dsnParams
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
