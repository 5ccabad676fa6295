package piece

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/starford/luzzle/internal/apperr"
	"github.com/starford/luzzle/internal/codec"
	"github.com/starford/luzzle/internal/index"
	"github.com/starford/luzzle/internal/markdown"
	"github.com/starford/luzzle/internal/models"
)

// SyncOptions controls Sync and Prune. DryRun classifies items without
// touching the database; Force updates items whose hash is unchanged.
type SyncOptions struct {
	DryRun bool
	Force  bool
}

// IsOutdated reports whether the file at filePath changed after it was last
// synced. Files never synced are outdated.
func (p *Piece) IsOutdated(ctx context.Context, db index.Store, filePath string) (bool, error) {
	filePath = markdown.CleanPath(filePath)
	info, err := p.store.Stat(filePath)
	if err != nil {
		return false, fmt.Errorf("piece: %s: %w", filePath, apperr.ErrNotFound)
	}
	c, err := db.GetCache(ctx, p.pieceType, filePath)
	if errors.Is(err, apperr.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("piece: outdated %s: %w", filePath, err)
	}
	return info.ModTime.After(c.LastChanged()), nil
}

// Sync brings the index rows of filePaths up to date and streams one result
// per path. Results arrive in completion order; the channel closes when all
// paths are processed or ctx is done.
func (p *Piece) Sync(ctx context.Context, db index.Store, filePaths []string, opts SyncOptions) <-chan models.Result {
	return p.each(ctx, filePaths, func(filePath string) models.Result {
		action, err := p.syncOne(ctx, db, filePath, opts)
		if err != nil {
			p.logger.Warn("piece: sync failed", slog.String("path", filePath), slog.String("error", err.Error()))
			return models.Result{File: filePath, Err: err}
		}
		p.logger.Debug("piece: synced", slog.String("path", filePath), slog.String("action", string(action)))
		return models.Result{File: filePath, Action: action}
	})
}

func (p *Piece) syncOne(ctx context.Context, db index.Store, filePath string, opts SyncOptions) (models.Action, error) {
	data, err := p.store.ReadFile(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("piece: %s: %w", filePath, apperr.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("piece: read %s: %w", filePath, err)
	}
	doc, err := p.parse(filePath, data)
	if err != nil {
		return "", err
	}
	if err := p.Validate(doc); err != nil {
		return "", err
	}
	hash := markdown.Hash(data)

	existing, err := db.SelectItem(ctx, p.pieceType, filePath)
	if errors.Is(err, apperr.ErrNotFound) {
		if opts.DryRun {
			return models.ActionAdded, nil
		}
		item, err := p.item(doc, hash)
		if err != nil {
			return "", err
		}
		if err := db.InsertItem(ctx, item); err != nil {
			return "", err
		}
		if err := db.AddCache(ctx, p.pieceType, filePath, hash); err != nil {
			return "", err
		}
		return models.ActionAdded, nil
	}
	if err != nil {
		return "", err
	}

	cached := existing.ContentHash
	c, err := db.GetCache(ctx, p.pieceType, filePath)
	switch {
	case err == nil:
		cached = c.ContentHash
	case !errors.Is(err, apperr.ErrNotFound):
		return "", err
	}
	if !opts.Force && cached == hash {
		return models.ActionSkipped, nil
	}
	if opts.DryRun {
		return models.ActionUpdated, nil
	}

	item, err := p.item(doc, hash)
	if err != nil {
		return "", err
	}
	if err := db.UpdateItem(ctx, item); err != nil {
		return "", err
	}
	if c == nil {
		err = db.AddCache(ctx, p.pieceType, filePath, hash)
	} else {
		err = db.UpdateCache(ctx, p.pieceType, filePath, hash)
	}
	if err != nil {
		return "", err
	}
	return models.ActionUpdated, nil
}

// Prune deletes the index rows of this type whose file is not in filePaths
// and streams one pruned result per row.
func (p *Piece) Prune(ctx context.Context, db index.Store, filePaths []string, opts SyncOptions) <-chan models.Result {
	keep := make(map[string]struct{}, len(filePaths))
	for _, fp := range filePaths {
		keep[markdown.CleanPath(fp)] = struct{}{}
	}
	indexed, err := db.ItemPaths(ctx, p.pieceType)
	if err != nil {
		out := make(chan models.Result, 1)
		out <- models.Result{File: p.pieceType, Err: fmt.Errorf("piece: prune: %w", err)}
		close(out)
		return out
	}
	var stale []string
	for _, fp := range indexed {
		if _, ok := keep[fp]; !ok {
			stale = append(stale, fp)
		}
	}
	return p.each(ctx, stale, func(filePath string) models.Result {
		if !opts.DryRun {
			if err := p.forget(ctx, db, filePath); err != nil {
				p.logger.Warn("piece: prune failed", slog.String("path", filePath), slog.String("error", err.Error()))
				return models.Result{File: filePath, Err: err}
			}
		}
		p.logger.Debug("piece: pruned", slog.String("path", filePath))
		return models.Result{File: filePath, Action: models.ActionPruned}
	})
}

// each runs fn for every path with bounded concurrency and streams the
// results. No new work starts once ctx is done.
func (p *Piece) each(ctx context.Context, paths []string, fn func(string) models.Result) <-chan models.Result {
	out := make(chan models.Result)
	go func() {
		defer close(out)
		var g errgroup.Group
		g.SetLimit(p.concurrency)
		for _, fp := range paths {
			if ctx.Err() != nil {
				break
			}
			fp := markdown.CleanPath(fp)
			g.Go(func() error {
				r := fn(fp)
				select {
				case out <- r:
				case <-ctx.Done():
				}
				return nil
			})
		}
		_ = g.Wait()
	}()
	return out
}

// item builds the index projection of a document.
func (p *Piece) item(doc *markdown.Document, hash string) (*models.Item, error) {
	values := make(map[string][]any)
	for _, f := range p.schema.Fields {
		v, ok := doc.Frontmatter[f.Name]
		if !ok || v == nil {
			continue
		}
		dv, err := codec.Project(v, f)
		if err != nil {
			return nil, fmt.Errorf("piece: %s: %w", doc.FilePath, err)
		}
		if len(dv) > 0 {
			values[f.Name] = dv
		}
	}
	return &models.Item{
		Type:        p.pieceType,
		FilePath:    doc.FilePath,
		Slug:        doc.Slug,
		Frontmatter: doc.Frontmatter,
		Note:        doc.Note,
		ContentHash: hash,
		Values:      values,
	}, nil
}
