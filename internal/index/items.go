package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/luzzle/internal/apperr"
	"github.com/starford/luzzle/internal/models"
)

// valuesChunk bounds the number of projection rows per INSERT statement.
const valuesChunk = 1000

// ItemQuery filters SelectItems. Zero values mean "no filter"; Value is
// compared in database representation against the field projection.
type ItemQuery struct {
	Type   string
	Field  string
	Value  any
	Limit  int
	Offset int
}

// SearchResult represents one search hit.
type SearchResult struct {
	Type     string `json:"type"`
	FilePath string `json:"file_path"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet"`
}

const itemColumns = `id, type, file_path, slug, frontmatter_json, note_markdown, content_hash, date_added, date_updated`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(r rowScanner) (*models.Item, error) {
	var (
		it      models.Item
		note    sql.NullString
		updated sql.NullTime
	)
	if err := r.Scan(&it.ID, &it.Type, &it.FilePath, &it.Slug, &it.FrontmatterJSON,
		&note, &it.ContentHash, &it.DateAdded, &updated); err != nil {
		return nil, err
	}
	it.Note = note.String
	if updated.Valid {
		t := updated.Time
		it.DateUpdated = &t
	}
	if err := json.Unmarshal([]byte(it.FrontmatterJSON), &it.Frontmatter); err != nil {
		return nil, fmt.Errorf("index: decode frontmatter of %s: %w", it.FilePath, err)
	}
	return &it, nil
}

// SelectItem returns the item row of a piece file, or apperr.ErrNotFound.
func (db *DB) SelectItem(ctx context.Context, pieceType, filePath string) (*models.Item, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM pieces_items WHERE type = ? AND file_path = ?`,
		pieceType, filePath)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: item %s: %w", filePath, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: select item: %w", err)
	}
	return it, nil
}

// SelectItems returns a page of items matching q together with the total
// number of matches.
func (db *DB) SelectItems(ctx context.Context, q ItemQuery) ([]models.Item, int, error) {
	var (
		where []string
		args  []any
	)
	if q.Type != "" {
		where = append(where, "i.type = ?")
		args = append(args, q.Type)
	}
	if q.Field != "" {
		where = append(where, `EXISTS (SELECT 1 FROM pieces_items_values v
			WHERE v.item_id = i.id AND v.field = ? AND v.value = ?)`)
		args = append(args, q.Field, q.Value)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT count(*) FROM pieces_items i`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count items: %w", err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+prefixed("i.", itemColumns)+` FROM pieces_items i`+clause+
			` ORDER BY i.type, i.file_path LIMIT ? OFFSET ?`,
		append(args, limit, q.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: select items: %w", err)
	}
	defer rows.Close()

	var out []models.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *it)
	}
	return out, total, rows.Err()
}

// ItemPaths returns the file paths of every item of a piece type.
func (db *DB) ItemPaths(ctx context.Context, pieceType string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT file_path FROM pieces_items WHERE type = ? ORDER BY file_path`, pieceType)
	if err != nil {
		return nil, fmt.Errorf("index: item paths: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// InsertItem adds a new item row and its field projection. A missing ID is
// generated; DateAdded is set to now.
func (db *DB) InsertItem(ctx context.Context, item *models.Item) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.DateAdded = time.Now()
	item.DateUpdated = nil
	fm, err := json.Marshal(item.Frontmatter)
	if err != nil {
		return fmt.Errorf("index: encode frontmatter: %w", err)
	}
	item.FrontmatterJSON = string(fm)

	return db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO pieces_items (`+itemColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL)
		`, item.ID, item.Type, item.FilePath, item.Slug, item.FrontmatterJSON,
			nullString(item.Note), item.ContentHash, item.DateAdded)
		if err != nil {
			return fmt.Errorf("index: insert item: %w", err)
		}
		if err := insertValues(ctx, tx, item); err != nil {
			return err
		}
		return ftsUpsert(ctx, tx, item)
	})
}

// UpdateItem replaces the content of an existing item row, identified by
// type and file path, and rebuilds its projection. DateUpdated is set to now.
func (db *DB) UpdateItem(ctx context.Context, item *models.Item) error {
	now := time.Now()
	fm, err := json.Marshal(item.Frontmatter)
	if err != nil {
		return fmt.Errorf("index: encode frontmatter: %w", err)
	}
	item.FrontmatterJSON = string(fm)

	return db.withTx(ctx, func(tx *sql.Tx) error {
		var id string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM pieces_items WHERE type = ? AND file_path = ?`,
			item.Type, item.FilePath).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("index: item %s: %w", item.FilePath, apperr.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("index: update item: %w", err)
		}
		item.ID = id
		item.DateUpdated = &now

		if _, err := tx.ExecContext(ctx, `
			UPDATE pieces_items SET
				slug             = ?,
				frontmatter_json = ?,
				note_markdown    = ?,
				content_hash     = ?,
				date_updated     = ?
			WHERE id = ?
		`, item.Slug, item.FrontmatterJSON, nullString(item.Note), item.ContentHash, now, id); err != nil {
			return fmt.Errorf("index: update item: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM pieces_items_values WHERE item_id = ?`, id); err != nil {
			return fmt.Errorf("index: clear values: %w", err)
		}
		if err := insertValues(ctx, tx, item); err != nil {
			return err
		}
		return ftsUpsert(ctx, tx, item)
	})
}

// DeleteItem removes an item row with its projection and search entry.
func (db *DB) DeleteItem(ctx context.Context, pieceType, filePath string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		var id string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM pieces_items WHERE type = ? AND file_path = ?`,
			pieceType, filePath).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("index: item %s: %w", filePath, apperr.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("index: delete item: %w", err)
		}
		if err := ftsDelete(ctx, tx, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM pieces_items_values WHERE item_id = ?`, id); err != nil {
			return fmt.Errorf("index: delete values: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM pieces_items WHERE id = ?`, id); err != nil {
			return fmt.Errorf("index: delete item: %w", err)
		}
		return nil
	})
}

// insertValues writes the field projection of item in chunks of valuesChunk
// rows per statement.
func insertValues(ctx context.Context, tx *sql.Tx, item *models.Item) error {
	fields := make([]string, 0, len(item.Values))
	for f := range item.Values {
		fields = append(fields, f)
	}
	slices.Sort(fields)

	var rows [][]any
	for _, f := range fields {
		for _, v := range item.Values[f] {
			rows = append(rows, []any{item.ID, item.Type, f, v})
		}
	}
	for chunk := range slices.Chunk(rows, valuesChunk) {
		var (
			sb   strings.Builder
			args = make([]any, 0, len(chunk)*4)
		)
		sb.WriteString(`INSERT INTO pieces_items_values (item_id, type, field, value) VALUES `)
		for i, r := range chunk {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("(?, ?, ?, ?)")
			args = append(args, r...)
		}
		if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
			return fmt.Errorf("index: insert values: %w", err)
		}
	}
	return nil
}

func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func prefixed(prefix, columns string) string {
	cols := strings.Split(columns, ", ")
	for i, c := range cols {
		cols[i] = prefix + c
	}
	return strings.Join(cols, ", ")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func itemTitle(item *models.Item) string {
	if t, ok := item.Frontmatter["title"].(string); ok {
		return t
	}
	return item.Slug
}
