package index

import (
	"context"

	"github.com/starford/luzzle/internal/models"
)

// Store defines the database operations the piece engines depend on.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with fakes.
type Store interface {
	SelectItem(ctx context.Context, pieceType, filePath string) (*models.Item, error)
	SelectItems(ctx context.Context, q ItemQuery) ([]models.Item, int, error)
	ItemPaths(ctx context.Context, pieceType string) ([]string, error)
	InsertItem(ctx context.Context, item *models.Item) error
	UpdateItem(ctx context.Context, item *models.Item) error
	DeleteItem(ctx context.Context, pieceType, filePath string) error

	GetPiece(ctx context.Context, name string) (*models.PieceType, error)
	ListPieces(ctx context.Context) ([]models.PieceType, error)
	AddPiece(ctx context.Context, name, schema string) error
	UpdatePiece(ctx context.Context, name, schema string) error
	DeletePiece(ctx context.Context, name string) error

	GetCache(ctx context.Context, pieceType, filePath string) (*models.CacheEntry, error)
	AddCache(ctx context.Context, pieceType, filePath, hash string) error
	UpdateCache(ctx context.Context, pieceType, filePath, hash string) error
	RemoveCache(ctx context.Context, pieceType, filePath string) error
	ClearCache(ctx context.Context, pieceType string) error

	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
	Close() error
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)
