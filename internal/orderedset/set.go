// Package orderedset implements explicitly ordered sequences of unique item
// identifiers, such as the boxes of a sidebar or the children of a section.
package orderedset

import (
	"errors"
	"fmt"
	"slices"

	"github.com/starford/sitefeed/internal/apperr"
)

// ErrInvalidPosition is returned when an insert names both anchors.
var ErrInvalidPosition = fmt.Errorf("orderedset: before and after are exclusive: %w", apperr.ErrInvalidInput)

// DuplicateIDError reports an insert of an identifier already in the set.
// Callers may treat it as "already present" and continue.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("orderedset: %q already present", e.ID)
}

func (e *DuplicateIDError) Unwrap() error { return apperr.ErrAlreadyExists }

// IsDuplicate reports whether err is a *DuplicateIDError.
func IsDuplicate(err error) bool {
	var d *DuplicateIDError
	return errors.As(err, &d)
}

// Position anchors an insert. The zero Position appends.
type Position struct {
	Before string
	After  string
}

// Set is an ordered sequence of unique identifiers. It operates on the
// backing slice it was created with and is not safe for concurrent use;
// Manager serializes access to persisted sets.
type Set struct {
	ids []string
}

// New wraps ids. The slice is used as the backing store.
func New(ids []string) *Set {
	return &Set{ids: ids}
}

// IDs returns a copy of the sequence.
func (s *Set) IDs() []string {
	return slices.Clone(s.ids)
}

// Len returns the number of identifiers.
func (s *Set) Len() int { return len(s.ids) }

// Contains reports whether id is in the set.
func (s *Set) Contains(id string) bool {
	return slices.Contains(s.ids, id)
}

// Index returns the position of id, or -1.
func (s *Set) Index(id string) int {
	return slices.Index(s.ids, id)
}

// Append adds id at the end.
func (s *Set) Append(id string) error {
	return s.Insert(id, Position{})
}

// Insert adds id before or after an anchor, or at the end for the zero
// Position.
func (s *Set) Insert(id string, pos Position) error {
	if s.Contains(id) {
		return &DuplicateIDError{ID: id}
	}
	if pos.Before != "" && pos.After != "" {
		return ErrInvalidPosition
	}
	at := len(s.ids)
	switch {
	case pos.Before != "":
		at = s.Index(pos.Before)
		if at < 0 {
			return fmt.Errorf("orderedset: anchor %q: %w", pos.Before, apperr.ErrNotFound)
		}
	case pos.After != "":
		at = s.Index(pos.After)
		if at < 0 {
			return fmt.Errorf("orderedset: anchor %q: %w", pos.After, apperr.ErrNotFound)
		}
		at++
	}
	s.ids = slices.Insert(s.ids, at, id)
	return nil
}

// Remove deletes id. Removing an absent id is a no-op.
func (s *Set) Remove(id string) {
	if i := s.Index(id); i >= 0 {
		s.ids = slices.Delete(s.ids, i, i+1)
	}
}

// Move relocates id to index, clamped to [0, Len()-1]. Stale indices from
// drag-and-drop clients land at the nearest valid slot.
func (s *Set) Move(id string, index int) error {
	from := s.Index(id)
	if from < 0 {
		return fmt.Errorf("orderedset: move %q: %w", id, apperr.ErrNotFound)
	}
	index = max(0, min(index, len(s.ids)-1))
	if index == from {
		return nil
	}
	s.ids = slices.Delete(s.ids, from, from+1)
	s.ids = slices.Insert(s.ids, index, id)
	return nil
}
