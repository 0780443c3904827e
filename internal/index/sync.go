package index

import (
	"log/slog"

	"github.com/starford/sitefeed/internal/models"
	"github.com/starford/sitefeed/internal/resource"
	"github.com/starford/sitefeed/internal/storage"
)

// SyncStats summarizes one Sync pass.
type SyncStats struct {
	Indexed int `json:"indexed"`
	Removed int `json:"removed"`
	Failed  int `json:"failed"`
}

// Sync walks the site and brings the catalog up to date:
//   - new/changed files are parsed and upserted
//   - files removed from disk are deleted from the catalog
func Sync(db Catalog, store storage.Provider, logger *slog.Logger) (SyncStats, error) {
	return syncCatalog(db, store, logger, nil)
}

// syncCatalog is Sync reporting every change to notify (if non-nil) with
// the storage path that changed.
func syncCatalog(db Catalog, store storage.Provider, logger *slog.Logger, notify func(kind, file string)) (SyncStats, error) {
	var stats SyncStats
	metas, err := store.List("")
	if err != nil {
		return stats, err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return stats, err
	}

	// Stale entries go first so a container replaced by a page (or the
	// reverse) never holds the same item path twice.
	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}
	}
	for f := range checksums {
		if _, ok := disk[f]; ok {
			continue
		}
		if err := db.DeleteFile(f); err != nil {
			logger.Warn("sync: delete failed", slog.String("path", f), slog.String("error", err.Error()))
			continue
		}
		stats.Removed++
		logger.Debug("sync: removed stale", slog.String("path", f))
		if notify != nil {
			notify(EventDeleted, f)
		}
	}

	for _, m := range metas {
		prev, known := checksums[m.Path]
		if prev == m.Checksum {
			continue
		}
		if _, err := IndexFile(db, store, m); err != nil {
			stats.Failed++
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		stats.Indexed++
		logger.Debug("sync: indexed", slog.String("path", m.Path))
		if notify != nil {
			kind := EventUpdated
			if !known {
				kind = EventCreated
			}
			notify(kind, m.Path)
		}
	}

	return stats, nil
}

// IndexFile reads the file described by meta, parses it and upserts it.
func IndexFile(db Catalog, store storage.Provider, meta models.ItemMetadata) (*models.Item, error) {
	data, err := store.Read(meta.Path)
	if err != nil {
		return nil, err
	}
	it, err := resource.FromFile(meta.Path, data, meta.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := db.UpsertItem(it); err != nil {
		return nil, err
	}
	return it, nil
}
