// Package testutil provides shared test helpers for setting up storage roots,
// schemas and databases.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/starford/luzzle/internal/index"
	"github.com/starford/luzzle/internal/schema"
	"github.com/starford/luzzle/internal/storage"
)

// BooksSchema is a small books schema in the JTD dialect with an explicit
// required list.
const BooksSchema = `{
	"title": "books",
	"required": ["title"],
	"properties": {
		"title": {"type": "string"}
	},
	"optionalProperties": {
		"tags": {"elements": {"type": "string"}, "nullable": true},
		"keywords": {"elements": {"type": "string"}, "metadata": {"luzzleFormat": "comma-separated"}},
		"rating": {"type": "int8"},
		"read": {"type": "boolean"},
		"date_read": {"type": "string", "metadata": {"luzzleFormat": "date"}},
		"cover": {"type": "string", "metadata": {"luzzleFormat": "asset"}},
		"images": {"elements": {"type": "string", "metadata": {"luzzleFormat": "asset"}}}
	}
}`

// FilmsSchema is a second piece type in the JSON Schema dialect.
const FilmsSchema = `{
	"title": "films",
	"type": "object",
	"required": ["title", "director"],
	"properties": {
		"title": {"type": "string"},
		"director": {"type": "string", "examples": ["TBD"]},
		"year": {"type": "integer", "nullable": true}
	}
}`

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "luzzle-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestRoot creates a temporary storage root with a filesystem provider.
func TestRoot(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// WriteSchema stores a schema file for pieceType under the root.
func WriteSchema(t *testing.T, store storage.Provider, pieceType, src string) {
	t.Helper()
	if err := store.WriteFile(".luzzle/schemas/"+pieceType+".json", []byte(src)); err != nil {
		t.Fatal(err)
	}
}

// MustSchema parses src or fails the test.
func MustSchema(t *testing.T, src string) *schema.Schema {
	t.Helper()
	s, err := schema.Parse([]byte(src))
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	return s
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
