package pieces

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/starford/luzzle/internal/apperr"
	"github.com/starford/luzzle/internal/index"
	"github.com/starford/luzzle/internal/markdown"
	"github.com/starford/luzzle/internal/models"
	"github.com/starford/luzzle/internal/piece"
	"github.com/starford/luzzle/internal/schema"
)

// lockRetry is the polling interval while waiting for the sync lock.
const lockRetry = 100 * time.Millisecond

// Sync registers every piece type in the database: new types are added,
// types whose schema file changed since the record was written are updated,
// the rest are skipped. Results carry the type name as File.
func (r *Registry) Sync(ctx context.Context, db index.Store, opts piece.SyncOptions) <-chan models.Result {
	out := make(chan models.Result)
	go func() {
		defer close(out)
		types, err := r.GetTypes()
		if err != nil {
			send(ctx, out, models.Result{File: SchemaDir, Err: err})
			return
		}
		for _, t := range types {
			if ctx.Err() != nil {
				return
			}
			action, err := r.syncType(ctx, db, t, opts)
			if err != nil {
				r.logger.Warn("pieces: type sync failed", slog.String("type", t), slog.String("error", err.Error()))
				if !send(ctx, out, models.Result{File: t, Err: err}) {
					return
				}
				continue
			}
			r.logger.Debug("pieces: type synced", slog.String("type", t), slog.String("action", string(action)))
			if !send(ctx, out, models.Result{File: t, Action: action}) {
				return
			}
		}
	}()
	return out
}

func (r *Registry) syncType(ctx context.Context, db index.Store, pieceType string, opts piece.SyncOptions) (models.Action, error) {
	info, err := r.store.Stat(SchemaPath(pieceType))
	if err != nil {
		return "", fmt.Errorf("pieces: schema %s: %w", pieceType, apperr.ErrNotFound)
	}
	data, err := r.store.ReadFile(SchemaPath(pieceType))
	if err != nil {
		return "", fmt.Errorf("pieces: read schema %s: %w", pieceType, err)
	}
	s, err := schema.Parse(data)
	if err != nil {
		return "", fmt.Errorf("pieces: schema %s: %w", pieceType, err)
	}
	if s.Title != pieceType {
		return "", fmt.Errorf("pieces: schema title %q for type %s: %w", s.Title, pieceType, apperr.ErrSchemaMismatch)
	}

	rec, err := db.GetPiece(ctx, pieceType)
	if errors.Is(err, apperr.ErrNotFound) {
		if !opts.DryRun {
			if err := db.AddPiece(ctx, pieceType, string(data)); err != nil {
				return "", err
			}
		}
		return models.ActionAdded, nil
	}
	if err != nil {
		return "", err
	}
	if !opts.Force && !info.ModTime.After(rec.LastChanged()) {
		return models.ActionSkipped, nil
	}
	if !opts.DryRun {
		if err := db.UpdatePiece(ctx, pieceType, string(data)); err != nil {
			return "", err
		}
	}
	return models.ActionUpdated, nil
}

// Prune removes piece-type records that no longer have a schema file.
func (r *Registry) Prune(ctx context.Context, db index.Store, opts piece.SyncOptions) <-chan models.Result {
	out := make(chan models.Result)
	go func() {
		defer close(out)
		types, err := r.GetTypes()
		if err != nil {
			send(ctx, out, models.Result{File: SchemaDir, Err: err})
			return
		}
		registered := make(map[string]struct{}, len(types))
		for _, t := range types {
			registered[t] = struct{}{}
		}
		recs, err := db.ListPieces(ctx)
		if err != nil {
			send(ctx, out, models.Result{File: SchemaDir, Err: err})
			return
		}
		for _, rec := range recs {
			if _, ok := registered[rec.Name]; ok {
				continue
			}
			res := models.Result{File: rec.Name, Action: models.ActionPruned}
			if !opts.DryRun {
				if err := db.DeletePiece(ctx, rec.Name); err != nil {
					res = models.Result{File: rec.Name, Err: err}
				}
			}
			if !send(ctx, out, res) {
				return
			}
		}
	}()
	return out
}

// SyncItems syncs every piece document under the root, type by type.
func (r *Registry) SyncItems(ctx context.Context, db index.Store, opts piece.SyncOptions) <-chan models.Result {
	return r.eachType(ctx, func(p *piece.Piece, paths []string) <-chan models.Result {
		return p.Sync(ctx, db, paths, opts)
	})
}

// PruneItems removes the item rows of every registered type whose document
// is gone from the root.
func (r *Registry) PruneItems(ctx context.Context, db index.Store, opts piece.SyncOptions) <-chan models.Result {
	return r.eachType(ctx, func(p *piece.Piece, paths []string) <-chan models.Result {
		return p.Prune(ctx, db, paths, opts)
	})
}

// eachType lists the root once, then runs fn for every registered type with
// that type's documents, forwarding all results. The sync lock is held for
// the whole run.
func (r *Registry) eachType(ctx context.Context, fn func(*piece.Piece, []string) <-chan models.Result) <-chan models.Result {
	out := make(chan models.Result)
	go func() {
		defer close(out)
		unlock, err := r.lock(ctx)
		if err != nil {
			send(ctx, out, models.Result{File: LockFile, Err: err})
			return
		}
		defer unlock()

		types, err := r.GetTypes()
		if err != nil {
			send(ctx, out, models.Result{File: SchemaDir, Err: err})
			return
		}
		files, err := r.GetFilesIn("", true)
		if err != nil {
			send(ctx, out, models.Result{File: "", Err: err})
			return
		}
		byType := make(map[string][]string)
		for _, f := range files.Pieces {
			name, _ := markdown.ParseFilename(f)
			byType[name.Type] = append(byType[name.Type], f)
		}

		for _, t := range types {
			if ctx.Err() != nil {
				return
			}
			p, err := r.GetPiece(t)
			if err != nil {
				if !send(ctx, out, models.Result{File: t, Err: err}) {
					return
				}
				continue
			}
			for res := range fn(p, byType[t]) {
				if !send(ctx, out, res) {
					return
				}
			}
		}
	}()
	return out
}

// SyncFile syncs one document. ok is false when the path is not a document
// of a registered type.
func (r *Registry) SyncFile(ctx context.Context, db index.Store, filePath string) (res models.Result, ok bool) {
	filePath = markdown.CleanPath(filePath)
	t, ok := r.pieceType(filePath)
	if !ok {
		return models.Result{}, false
	}
	p, err := r.GetPiece(t)
	if err != nil {
		return models.Result{File: filePath, Err: err}, true
	}
	for res = range p.Sync(ctx, db, []string{filePath}, piece.SyncOptions{}) {
	}
	return res, true
}

// RemoveFile drops the item row and cache entry of a deleted document.
func (r *Registry) RemoveFile(ctx context.Context, db index.Store, filePath string) (models.Result, bool) {
	filePath = markdown.CleanPath(filePath)
	name, ok := markdown.ParseFilename(filePath)
	if !ok || isHidden(filePath) {
		return models.Result{}, false
	}
	if err := db.DeleteItem(ctx, name.Type, filePath); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return models.Result{}, false
		}
		return models.Result{File: filePath, Err: err}, true
	}
	if err := db.RemoveCache(ctx, name.Type, filePath); err != nil {
		return models.Result{File: filePath, Err: err}, true
	}
	return models.Result{File: filePath, Action: models.ActionPruned}, true
}

// lock takes the cross-process sync lock, waiting until ctx is done.
func (r *Registry) lock(ctx context.Context) (func(), error) {
	if r.lockPath == "" {
		return func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(r.lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("pieces: lock dir: %w", err)
	}
	fl := flock.New(r.lockPath)
	locked, err := fl.TryLockContext(ctx, lockRetry)
	if err != nil {
		return nil, fmt.Errorf("pieces: lock %s: %w", r.lockPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("pieces: lock %s: not acquired", r.lockPath)
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			r.logger.Warn("pieces: unlock failed", slog.String("error", err.Error()))
		}
	}, nil
}

func send(ctx context.Context, out chan<- models.Result, r models.Result) bool {
	select {
	case out <- r:
		return true
	case <-ctx.Done():
		return false
	}
}
