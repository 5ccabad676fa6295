//go:build !sqlite_fts5

package index

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/starford/luzzle/internal/models"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search uses LIKE over pieces_items.
	return nil
}

func ftsUpsert(_ context.Context, _ *sql.Tx, _ *models.Item) error { return nil }

func ftsDelete(_ context.Context, _ *sql.Tx, _ string) error { return nil }

// Search performs a LIKE-based search over titles and notes (fallback when
// FTS5 is not compiled in).
func (db *DB) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := db.conn.QueryContext(ctx, `
		SELECT type,
		       file_path,
		       COALESCE(json_extract(frontmatter_json, '$.title'), slug),
		       substr(COALESCE(note_markdown, ''), 1, 200)
		FROM pieces_items
		WHERE json_extract(frontmatter_json, '$.title') LIKE ? OR note_markdown LIKE ?
		ORDER BY type, file_path
		LIMIT ?
	`, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Type, &r.FilePath, &r.Title, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
