package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/luzzle/internal/apperr"
	"github.com/starford/luzzle/internal/models"
)

func scanPiece(r rowScanner) (*models.PieceType, error) {
	var (
		p       models.PieceType
		updated sql.NullTime
	)
	if err := r.Scan(&p.Name, &p.Schema, &p.DateAdded, &updated); err != nil {
		return nil, err
	}
	if updated.Valid {
		t := updated.Time
		p.DateUpdated = &t
	}
	return &p, nil
}

// GetPiece returns the registry record of a piece type, or apperr.ErrNotFound.
func (db *DB) GetPiece(ctx context.Context, name string) (*models.PieceType, error) {
	p, err := scanPiece(db.conn.QueryRowContext(ctx,
		`SELECT name, schema, date_added, date_updated FROM pieces WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: piece %s: %w", name, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get piece: %w", err)
	}
	return p, nil
}

// ListPieces returns every registered piece type ordered by name.
func (db *DB) ListPieces(ctx context.Context) ([]models.PieceType, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT name, schema, date_added, date_updated FROM pieces ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("index: list pieces: %w", err)
	}
	defer rows.Close()
	var out []models.PieceType
	for rows.Next() {
		p, err := scanPiece(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// AddPiece registers a piece type with its schema source.
func (db *DB) AddPiece(ctx context.Context, name, schema string) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO pieces (name, schema, date_added) VALUES (?, ?, ?)`,
		name, schema, time.Now())
	if err != nil {
		return fmt.Errorf("index: add piece %s: %w", name, err)
	}
	return nil
}

// UpdatePiece replaces the stored schema of a registered piece type.
func (db *DB) UpdatePiece(ctx context.Context, name, schema string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE pieces SET schema = ?, date_updated = ? WHERE name = ?`,
		schema, time.Now(), name)
	if err != nil {
		return fmt.Errorf("index: update piece %s: %w", name, err)
	}
	return requireAffected(res, "piece "+name)
}

// DeletePiece removes a piece type from the registry.
func (db *DB) DeletePiece(ctx context.Context, name string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM pieces WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("index: delete piece %s: %w", name, err)
	}
	return requireAffected(res, "piece "+name)
}

func requireAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("index: %s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("index: %s: %w", what, apperr.ErrNotFound)
	}
	return nil
}
