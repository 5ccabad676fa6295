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

// GetCache returns the sync cache entry of a document, or apperr.ErrNotFound.
func (db *DB) GetCache(ctx context.Context, pieceType, filePath string) (*models.CacheEntry, error) {
	var (
		c       models.CacheEntry
		updated sql.NullTime
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT type, file_path, content_hash, date_added, date_updated
		FROM pieces_cache WHERE type = ? AND file_path = ?
	`, pieceType, filePath).Scan(&c.Type, &c.FilePath, &c.ContentHash, &c.DateAdded, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: cache %s: %w", filePath, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get cache: %w", err)
	}
	if updated.Valid {
		t := updated.Time
		c.DateUpdated = &t
	}
	return &c, nil
}

// AddCache records the first sync of a document. An existing entry for the
// same file is replaced.
func (db *DB) AddCache(ctx context.Context, pieceType, filePath, hash string) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO pieces_cache (type, file_path, content_hash, date_added)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(type, file_path) DO UPDATE SET
			content_hash = excluded.content_hash,
			date_added   = excluded.date_added,
			date_updated = NULL
	`, pieceType, filePath, hash, time.Now())
	if err != nil {
		return fmt.Errorf("index: add cache: %w", err)
	}
	return nil
}

// UpdateCache records a re-sync of a document.
func (db *DB) UpdateCache(ctx context.Context, pieceType, filePath, hash string) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE pieces_cache SET content_hash = ?, date_updated = ?
		WHERE type = ? AND file_path = ?
	`, hash, time.Now(), pieceType, filePath)
	if err != nil {
		return fmt.Errorf("index: update cache: %w", err)
	}
	return requireAffected(res, "cache "+filePath)
}

// RemoveCache drops the cache entry of a document. Removing a missing entry is
// not an error.
func (db *DB) RemoveCache(ctx context.Context, pieceType, filePath string) error {
	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM pieces_cache WHERE type = ? AND file_path = ?`, pieceType, filePath); err != nil {
		return fmt.Errorf("index: remove cache: %w", err)
	}
	return nil
}

// ClearCache drops every cache entry of a piece type, forcing the next sync
// to rehash all of its documents.
func (db *DB) ClearCache(ctx context.Context, pieceType string) error {
	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM pieces_cache WHERE type = ?`, pieceType); err != nil {
		return fmt.Errorf("index: clear cache: %w", err)
	}
	return nil
}
