package orderedset

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/starford/sitefeed/internal/apperr"
	"github.com/starford/sitefeed/internal/checksum"
)

// Well-known set names.
const (
	NameSidebar    = "sidebar"
	NameContentbar = "contentbar"
	NameChildren   = "children"
)

// Key identifies one persisted set: a container path and a set name.
type Key struct {
	Container string
	Name      string
}

func (k Key) String() string { return k.Container + "#" + k.Name }

// Store persists ordered sets. Save replaces the whole sequence atomically.
type Store interface {
	Load(ctx context.Context, key Key) ([]string, error)
	Save(ctx context.Context, key Key, ids []string) error
}

// Manager serializes read-modify-write cycles per key so that concurrent
// reorders of one container cannot interleave. A key's lock lives only while
// some Update on that key is running or waiting.
type Manager struct {
	store Store

	mu    sync.Mutex
	locks map[Key]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

// NewManager creates a Manager over store.
func NewManager(store Store) *Manager {
	return &Manager{store: store, locks: make(map[Key]*keyLock)}
}

func (m *Manager) acquire(key Key) *keyLock {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyLock{}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	l.Lock()
	return l
}

func (m *Manager) release(key Key, l *keyLock) {
	l.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if l.refs--; l.refs == 0 {
		delete(m.locks, key)
	}
}

// lockCount returns the number of live key locks.
func (m *Manager) lockCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

// IDs returns the current sequence and its checksum.
func (m *Manager) IDs(ctx context.Context, key Key) ([]string, string, error) {
	ids, err := m.store.Load(ctx, key)
	if err != nil {
		return nil, "", fmt.Errorf("orderedset: load %s: %w", key, err)
	}
	return ids, checksum.Strings(ids), nil
}

// Update loads the set for key, applies fn and saves the result. When ifMatch
// is non-empty it must equal the checksum of the loaded sequence, otherwise
// apperr.ErrConflict is returned and nothing is written. Nothing is written
// when fn fails or leaves the sequence unchanged; changed reports whether
// the sequence was saved.
func (m *Manager) Update(ctx context.Context, key Key, ifMatch string, fn func(*Set) error) (ids []string, changed bool, err error) {
	l := m.acquire(key)
	defer m.release(key, l)

	loaded, err := m.store.Load(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("orderedset: load %s: %w", key, err)
	}
	if ifMatch != "" && ifMatch != checksum.Strings(loaded) {
		return nil, false, apperr.ErrConflict
	}

	before := slices.Clone(loaded)
	set := New(loaded)
	if err := fn(set); err != nil {
		return nil, false, err
	}
	after := set.IDs()
	if slices.Equal(before, after) {
		return after, false, nil
	}
	if err := m.store.Save(ctx, key, after); err != nil {
		return nil, false, fmt.Errorf("orderedset: save %s: %w", key, err)
	}
	return after, true, nil
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu   sync.Mutex
	sets map[Key][]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sets: make(map[Key][]string)}
}

// Load returns a copy of the stored sequence.
func (s *MemoryStore) Load(_ context.Context, key Key) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.sets[key]), nil
}

// Save replaces the stored sequence.
func (s *MemoryStore) Save(_ context.Context, key Key, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets[key] = slices.Clone(ids)
	return nil
}
