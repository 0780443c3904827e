package site

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/starford/sitefeed/internal/access"
	"github.com/starford/sitefeed/internal/apperr"
	"github.com/starford/sitefeed/internal/checksum"
	"github.com/starford/sitefeed/internal/orderedset"
	"github.com/starford/sitefeed/internal/resource"
)

// OpKind names a reorder operation.
type OpKind string

// Reorder operations.
const (
	OpAppend OpKind = "append"
	OpInsert OpKind = "insert"
	OpMove   OpKind = "move"
	OpRemove OpKind = "remove"
)

// Op is one mutation of an ordered set. IDs are absolute item paths; a bare
// name is taken relative to the container.
type Op struct {
	Kind   OpKind `json:"op"`
	ID     string `json:"id"`
	Before string `json:"before,omitempty"`
	After  string `json:"after,omitempty"`
	Index  int    `json:"index,omitempty"`
}

// Order is the state of an ordered set returned to clients.
type Order struct {
	Container string   `json:"container"`
	Set       string   `json:"set"`
	IDs       []string `json:"ids"`
	ETag      string   `json:"etag"`
}

func validSet(set string) error {
	switch set {
	case orderedset.NameChildren, orderedset.NameSidebar, orderedset.NameContentbar:
		return nil
	}
	return fmt.Errorf("site: ordered set %q: %w", set, apperr.ErrInvalidInput)
}

// OrderIDs returns the ordered set of container together with its ETag.
func (s *Service) OrderIDs(ctx context.Context, container, set string, viewer access.Viewer) (*Order, error) {
	if err := validSet(set); err != nil {
		return nil, err
	}
	c, err := s.visibleContainer(ctx, container, viewer)
	if err != nil {
		return nil, err
	}
	ids, etag, err := s.sets.IDs(ctx, orderedset.Key{Container: c.Item.Path, Name: set})
	if err != nil {
		return nil, fmt.Errorf("site: order: %w", err)
	}
	return &Order{Container: c.Item.Path, Set: set, IDs: nonNilSlice(ids), ETag: etag}, nil
}

// Reorder applies op to the ordered set of container. The viewer must be
// allowed to edit the container, fixed boxes cannot be reordered, and a
// non-empty ifMatch must equal the current ETag.
func (s *Service) Reorder(ctx context.Context, container, set string, viewer access.Viewer, ifMatch string, op Op) (*Order, error) {
	if err := validSet(set); err != nil {
		return nil, err
	}
	c, err := s.visibleContainer(ctx, container, viewer)
	if err != nil {
		return nil, err
	}
	if !s.checker.CanEdit(viewer, c.Item) {
		return nil, fmt.Errorf("site: reorder %s: %w", c.Item.Path, apperr.ErrForbidden)
	}

	id := s.qualify(c.Item.Path, op.ID)
	if id == "" {
		return nil, fmt.Errorf("site: reorder: missing id: %w", apperr.ErrInvalidInput)
	}
	if s.boxes.IsFixed(id) {
		return nil, fmt.Errorf("site: reorder fixed box %s: %w", id, apperr.ErrInvalidInput)
	}
	if set == orderedset.NameChildren && resource.Parent(id) != c.Item.Path {
		return nil, fmt.Errorf("site: %s is not a child of %s: %w", id, c.Item.Path, apperr.ErrInvalidInput)
	}
	if op.Kind == OpAppend || op.Kind == OpInsert {
		it, err := s.resolver.Resolve(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("site: reorder: %w", err)
		}
		if it == nil {
			return nil, fmt.Errorf("site: reorder %s: %w", id, apperr.ErrNotFound)
		}
	}

	key := orderedset.Key{Container: c.Item.Path, Name: set}
	ids, changed, err := s.sets.Update(ctx, key, ifMatch, func(seq *orderedset.Set) error {
		switch op.Kind {
		case OpAppend:
			return seq.Append(id)
		case OpInsert:
			return seq.Insert(id, orderedset.Position{
				Before: s.qualify(c.Item.Path, op.Before),
				After:  s.qualify(c.Item.Path, op.After),
			})
		case OpMove:
			return seq.Move(id, op.Index)
		case OpRemove:
			seq.Remove(id)
			return nil
		}
		return fmt.Errorf("site: reorder: unknown op %q: %w", op.Kind, apperr.ErrInvalidInput)
	})
	if err != nil {
		return nil, fmt.Errorf("site: reorder %s: %w", key, err)
	}

	if changed {
		s.notifier.PublishOrderEvent(c.Item.Path, set)
	}
	return &Order{Container: c.Item.Path, Set: set, IDs: nonNilSlice(ids), ETag: checksum.Strings(ids)}, nil
}

func (s *Service) qualify(container, id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if strings.HasPrefix(id, "/") {
		return path.Clean(id)
	}
	return resource.Join(container, id)
}
