package internal

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/luzzle/internal/attachment"
	"github.com/starford/luzzle/internal/index"
	"github.com/starford/luzzle/internal/piece"
	"github.com/starford/luzzle/internal/pieces"
	"github.com/starford/luzzle/internal/storage"
)

// Workspace is an opened storage root: files, index and piece registry.
type Workspace struct {
	Store    *storage.FS
	DB       *index.DB
	Registry *pieces.Registry
}

// OpenWorkspace opens the storage root and index described by cfg.
func OpenWorkspace(cfg *Config, logger *slog.Logger) (*Workspace, error) {
	if err := os.MkdirAll(cfg.Storage.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	store, err := storage.NewFS(cfg.Storage.Root)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	if err := store.MakeDirectory(pieces.ConfigDir); err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	resolver := attachment.NewResolver(cfg.Attachments.ResolverOptions()...)
	registry := pieces.New(store, logger,
		pieces.WithLockFile(cfg.LockPath()),
		pieces.WithPieceOptions(
			piece.WithConcurrency(cfg.Sync.Concurrency),
			piece.WithMaterializer(attachment.NewMaterializer(store, resolver, logger)),
		),
	)
	return &Workspace{Store: store, DB: db, Registry: registry}, nil
}

// Close releases the index.
func (w *Workspace) Close() error {
	return w.DB.Close()
}
