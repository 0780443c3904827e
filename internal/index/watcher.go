package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/starford/sitefeed/internal/resource"
	"github.com/starford/sitefeed/internal/storage"
)

// Event kinds passed to EventCallback.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// EventCallback is called after a watcher-driven catalog change with the
// absolute item path that changed.
type EventCallback func(kind string, itemPath string)

const reconcileDelay = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the site root and processes file
// change events until ctx is cancelled. It calls cb (if non-nil) after
// each successful catalog mutation.
//
// New directories created at runtime are automatically added to the watch
// list. Rename events trigger a reconciliation pass that removes stale
// catalog entries whose files no longer exist on disk.
func Watch(ctx context.Context, db Catalog, store storage.Provider, siteRoot string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, siteRoot); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", siteRoot))

	notify := func(kind, file string) {
		if cb != nil {
			cb(kind, resource.AbsPath(file))
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
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			reconcile(db, store, logger, notify)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if isHidden(filepath.Base(absPath)) {
						continue
					}
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", absPath))
					}
					// Files may land before the directory watch is in place.
					scheduleReconcile()
					continue
				}
			}

			if !strings.HasSuffix(absPath, storage.Ext) || isHidden(filepath.Base(absPath)) {
				continue
			}

			rel, relErr := filepath.Rel(siteRoot, absPath)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			if applyFileEvent(db, store, logger, ev.Op, rel, notify) {
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// applyFileEvent mirrors one item file event into the catalog. It reports
// whether a full reconcile is needed to pick up the other half of a rename.
func applyFileEvent(db Catalog, store storage.Provider, logger *slog.Logger, op fsnotify.Op, rel string, notify func(kind, file string)) bool {
	switch {
	case op.Has(fsnotify.Create) || op.Has(fsnotify.Write):
		meta, err := store.Stat(rel)
		if err != nil {
			logger.Warn("watcher: stat failed", slog.String("path", rel), slog.String("error", err.Error()))
			return false
		}
		prev, _ := db.GetChecksum(rel)
		if prev == meta.Checksum {
			return false
		}
		if _, err := IndexFile(db, store, meta); err != nil {
			logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", err.Error()))
			return false
		}
		kind := EventUpdated
		if prev == "" {
			kind = EventCreated
		}
		logger.Debug("watcher: indexed", slog.String("path", rel), slog.String("event", kind))
		notify(kind, rel)
		return false

	case op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename):
		// A rename arrives on the old path only; the new one shows up as a
		// Create when it stays inside a watched dir, otherwise reconcile finds it.
		if err := db.DeleteFile(rel); err != nil {
			logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", err.Error()))
		} else {
			logger.Debug("watcher: deleted", slog.String("path", rel))
			notify(EventDeleted, rel)
		}
		return op.Has(fsnotify.Rename)
	}
	return false
}

// reconcile runs a full sync after renames and new directories, whose
// individual file events fsnotify may miss.
func reconcile(db Catalog, store storage.Provider, logger *slog.Logger, notify func(kind, file string)) {
	stats, err := syncCatalog(db, store, logger, notify)
	if err != nil {
		logger.Warn("watcher: reconcile failed", slog.String("error", err.Error()))
		return
	}
	if stats != (SyncStats{}) {
		logger.Debug("watcher: reconciled",
			slog.Int("indexed", stats.Indexed),
			slog.Int("removed", stats.Removed),
			slog.Int("failed", stats.Failed))
	}
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
