package pieces

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/luzzle/internal/index"
	"github.com/starford/luzzle/internal/markdown"
	"github.com/starford/luzzle/internal/models"
	"github.com/starford/luzzle/internal/piece"
)

// reconcileDelay debounces full reconciliation after renames and new
// directories.
const reconcileDelay = 200 * time.Millisecond

// EventCallback is called after every watcher-driven index change that was
// not skipped.
type EventCallback func(r models.Result)

// Watch watches the storage root at root (an OS path) and keeps the index in
// step with it until ctx is cancelled: edited documents are synced, deleted
// ones are removed, schema edits re-sync the type registry. cb, if non-nil,
// receives every non-skipped outcome.
//
// Renames and new directories trigger a debounced reconciliation pass
// (SyncItems followed by PruneItems).
func (r *Registry) Watch(ctx context.Context, db index.Store, root string, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	r.logger.Info("watcher: started", slog.String("root", root))

	emit := func(res models.Result) {
		if res.Action == models.ActionSkipped {
			return
		}
		if res.Failed() {
			r.logger.Warn("watcher: sync failed", slog.String("path", res.File), slog.String("error", res.Message()))
		} else {
			r.logger.Debug("watcher: synced", slog.String("path", res.File), slog.String("action", string(res.Action)))
		}
		if cb != nil {
			cb(res)
		}
	}

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			r.logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			for res := range r.SyncItems(ctx, db, piece.SyncOptions{}) {
				emit(res)
			}
			for res := range r.PruneItems(ctx, db, piece.SyncOptions{}) {
				emit(res)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if !watchable(root, ev.Name) {
						continue
					}
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						r.logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					scheduleReconcile()
					continue
				}
			}

			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil {
				continue
			}
			rel = markdown.CleanPath(filepath.ToSlash(rel))

			if strings.HasPrefix(rel, SchemaDir+"/") && strings.HasSuffix(rel, SchemaExt) {
				for res := range r.Sync(ctx, db, piece.SyncOptions{}) {
					emit(res)
				}
				for res := range r.Prune(ctx, db, piece.SyncOptions{}) {
					emit(res)
				}
				continue
			}
			if !strings.HasSuffix(rel, markdown.Ext) {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				if res, ok := r.SyncFile(ctx, db, rel); ok {
					emit(res)
				}

			case ev.Op&fsnotify.Remove != 0:
				if res, ok := r.RemoveFile(ctx, db, rel); ok {
					emit(res)
				}

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify reports the old path only; the new one arrives as
				// a Create when it stays inside a watched directory.
				if res, ok := r.RemoveFile(ctx, db, rel); ok {
					emit(res)
				}
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			r.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// watchable reports whether dir should be watched: hidden directories are
// skipped except the configuration directory.
func watchable(root, dir string) bool {
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ConfigDir || strings.HasPrefix(rel, ConfigDir+"/") {
		return true
	}
	return !isHidden(rel)
}

// addDirsRecursive adds dir and all its watchable subdirectories.
func addDirsRecursive(w *fsnotify.Watcher, dir string) error {
	root := dir
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") && d.Name() != ConfigDir &&
			!strings.Contains(filepath.ToSlash(p), "/"+ConfigDir+"/") {
			return fs.SkipDir
		}
		return w.Add(p)
	})
}
