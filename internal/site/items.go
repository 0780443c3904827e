package site

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/starford/sitefeed/internal/access"
	"github.com/starford/sitefeed/internal/apperr"
	"github.com/starford/sitefeed/internal/feed"
	"github.com/starford/sitefeed/internal/index"
	"github.com/starford/sitefeed/internal/models"
	"github.com/starford/sitefeed/internal/orderedset"
	"github.com/starford/sitefeed/internal/query"
	"github.com/starford/sitefeed/internal/resource"
)

// ChildPolicy decides which formats may be created inside a container.
type ChildPolicy interface {
	Allows(format string) bool
}

// AllowFormats permits the listed formats; an empty list permits any.
type AllowFormats []string

// Allows implements ChildPolicy.
func (a AllowFormats) Allows(format string) bool {
	return len(a) == 0 || slices.Contains(a, format)
}

// NoChildren refuses every format.
type NoChildren struct{}

// Allows implements ChildPolicy.
func (NoChildren) Allows(string) bool { return false }

// Container is an item able to hold children, with the policy governing
// what may be created inside it.
type Container struct {
	Item     *models.Item
	Children ChildPolicy
}

// Container resolves the container at abs. Directories without an index
// file, and the site root, are plain folders.
func (s *Service) Container(ctx context.Context, abs string) (*Container, error) {
	abs = path.Clean("/" + abs)
	it, err := s.resolver.Resolve(ctx, abs)
	if err != nil {
		return nil, fmt.Errorf("site: resolve %s: %w", abs, err)
	}
	if it == nil {
		it, err = s.virtualFolder(ctx, abs)
		if err != nil {
			return nil, err
		}
	}
	return &Container{Item: it, Children: s.childPolicy(it.Format)}, nil
}

func (s *Service) virtualFolder(ctx context.Context, abs string) (*models.Item, error) {
	if abs != resource.Root {
		q, err := query.DefaultSchema().Phrase(query.FieldParentPath, abs)
		if err != nil {
			return nil, err
		}
		n, err := s.db.Count(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("site: container %s: %w", abs, err)
		}
		if n == 0 {
			return nil, fmt.Errorf("site: container %s: %w", abs, apperr.ErrNotFound)
		}
	}
	return &models.Item{Brain: models.Brain{
		Path:       abs,
		ParentPath: resource.Parent(abs),
		Name:       resource.Name(abs),
		Format:     feed.FormatFolder,
		State:      models.StatePublic,
		Tags:       []string{},
		Ancestors:  resource.Ancestors(abs),
	}}, nil
}

func (s *Service) childPolicy(format string) ChildPolicy {
	ti, _ := s.types.Lookup(format)
	if !ti.Caps.Has(feed.CapContainer) {
		return NoChildren{}
	}
	return AllowFormats(ti.ChildFormats)
}

// CreateItem writes a new item named name inside container and indexes it.
// The item is appended to the container's children order, or to its side
// or content bar for box formats.
func (s *Service) CreateItem(ctx context.Context, container string, viewer access.Viewer, name string, content []byte) (*models.Item, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	c, err := s.Container(ctx, container)
	if err != nil {
		return nil, err
	}
	if !s.checker.CanEdit(viewer, c.Item) {
		return nil, fmt.Errorf("site: create in %s: %w", c.Item.Path, apperr.ErrForbidden)
	}

	abs := resource.Join(c.Item.Path, name)
	file := strings.TrimPrefix(abs, "/") + ".md"
	probe, err := resource.FromFile(file, content, time.Now())
	if err != nil {
		return nil, fmt.Errorf("site: create %s: %w: %w", abs, apperr.ErrInvalidInput, err)
	}
	if !c.Children.Allows(probe.Format) {
		return nil, fmt.Errorf("site: format %q not allowed in %s: %w", probe.Format, c.Item.Path, apperr.ErrInvalidInput)
	}
	if s.types.Caps(probe.Format).Has(feed.CapContainer) {
		file = strings.TrimPrefix(abs, "/") + "/" + resource.IndexFile
	}

	existing, err := s.resolver.Resolve(ctx, abs)
	if err != nil {
		return nil, fmt.Errorf("site: create %s: %w", abs, err)
	}
	if existing != nil {
		return nil, fmt.Errorf("site: create %s: %w", abs, apperr.ErrAlreadyExists)
	}

	if err := s.store.Write(file, content); err != nil {
		return nil, fmt.Errorf("site: write %s: %w", file, err)
	}
	it, err := s.IndexFile(ctx, file)
	if err != nil {
		return nil, err
	}

	set := orderedset.NameChildren
	if strings.HasPrefix(it.Format, "box-") {
		set = orderedset.NameSidebar
		if it.Capability == models.CapabilityContent {
			set = orderedset.NameContentbar
		}
	}
	key := orderedset.Key{Container: c.Item.Path, Name: set}
	_, changed, err := s.sets.Update(ctx, key, "", func(seq *orderedset.Set) error {
		// A stale entry left by an earlier item of the same name keeps its place.
		if err := seq.Append(it.Path); !orderedset.IsDuplicate(err) {
			return err
		}
		return nil
	})
	switch {
	case err != nil:
		s.logger.Warn("site: order new item failed", slog.String("path", it.Path), slog.String("error", err.Error()))
	case changed:
		s.notifier.PublishOrderEvent(c.Item.Path, set)
	}

	s.notifier.PublishItemEvent(EventCreated, it.Path)
	return it, nil
}

func validName(name string) error {
	switch {
	case name == "",
		strings.ContainsAny(name, `/\`),
		strings.HasPrefix(name, "."),
		strings.HasPrefix(name, "_"),
		strings.HasSuffix(name, ".md"):
		return fmt.Errorf("site: invalid item name %q: %w", name, apperr.ErrInvalidInput)
	}
	return nil
}

// DeleteItem removes the item at abs from storage, catalog and its parent's
// ordered sets.
func (s *Service) DeleteItem(ctx context.Context, abs string, viewer access.Viewer) error {
	abs = path.Clean("/" + abs)
	it, err := s.resolver.Resolve(ctx, abs)
	if err != nil {
		return fmt.Errorf("site: resolve %s: %w", abs, err)
	}
	if it == nil || !s.checker.CanView(viewer, it) {
		return fmt.Errorf("site: delete %s: %w", abs, apperr.ErrNotFound)
	}
	if !s.checker.CanEdit(viewer, it) {
		return fmt.Errorf("site: delete %s: %w", abs, apperr.ErrForbidden)
	}
	if s.boxes.IsFixed(abs) {
		return fmt.Errorf("site: delete fixed box %s: %w", abs, apperr.ErrForbidden)
	}

	if err := s.store.Delete(it.File); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("site: delete %s: %w", it.File, err)
	}
	if err := s.db.DeleteFile(it.File); err != nil {
		return fmt.Errorf("site: unindex %s: %w", it.File, err)
	}

	for _, set := range []string{orderedset.NameChildren, orderedset.NameSidebar, orderedset.NameContentbar} {
		key := orderedset.Key{Container: it.ParentPath, Name: set}
		_, changed, err := s.sets.Update(ctx, key, "", func(seq *orderedset.Set) error {
			seq.Remove(abs)
			return nil
		})
		switch {
		case err != nil:
			s.logger.Warn("site: unorder deleted item failed", slog.String("key", key.String()), slog.String("error", err.Error()))
		case changed:
			s.notifier.PublishOrderEvent(it.ParentPath, set)
		}
	}

	s.notifier.PublishItemEvent(EventDeleted, abs)
	return nil
}

// IndexFile (re)indexes one storage file.
func (s *Service) IndexFile(_ context.Context, file string) (*models.Item, error) {
	meta, err := s.store.Stat(file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("site: index %s: %w", file, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("site: index %s: %w", file, err)
	}
	it, err := index.IndexFile(s.db, s.store, meta)
	if err != nil {
		return nil, fmt.Errorf("site: index %s: %w", file, err)
	}
	return it, nil
}

// Reindex brings the whole catalog up to date with storage.
func (s *Service) Reindex(_ context.Context) (index.SyncStats, error) {
	stats, err := index.Sync(s.db, s.store, s.logger)
	if err != nil {
		return stats, fmt.Errorf("site: reindex: %w", err)
	}
	s.logger.Info("site: reindexed",
		slog.Int("indexed", stats.Indexed),
		slog.Int("removed", stats.Removed),
		slog.Int("failed", stats.Failed))
	return stats, nil
}
