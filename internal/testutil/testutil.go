// Package testutil provides shared test helpers for setting up sites and catalogs.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/sitefeed/internal/index"
	"github.com/starford/sitefeed/internal/resource"
	"github.com/starford/sitefeed/internal/storage"
)

// TestDB creates a temporary SQLite catalog that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "sitefeed-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestSite creates a temporary site directory with a storage.Provider.
func TestSite(t *testing.T) (string, storage.Provider) {
	t.Helper()
	siteDir := t.TempDir()
	store, err := storage.NewFS(siteDir)
	if err != nil {
		t.Fatal(err)
	}
	return siteDir, store
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// Env is a fully indexed site on disk.
type Env struct {
	Root     string
	Store    storage.Provider
	DB       *index.DB
	Resolver *resource.Resolver
}

// NewEnv writes files (storage path → content) into a fresh site and
// indexes it.
func NewEnv(t *testing.T, files map[string]string) *Env {
	t.Helper()
	root, store := TestSite(t)
	env := &Env{Root: root, Store: store, DB: TestDB(t), Resolver: resource.NewResolver(store)}
	for name, content := range files {
		env.Write(t, name, content)
	}
	env.Sync(t)
	return env
}

// Write creates or replaces a site file without reindexing.
func (e *Env) Write(t *testing.T, name, content string) {
	t.Helper()
	if err := e.Store.Write(name, []byte(content)); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

// Touch sets the modification time of a site file without reindexing.
func (e *Env) Touch(t *testing.T, name string, mtime time.Time) {
	t.Helper()
	if err := os.Chtimes(filepath.Join(e.Root, filepath.FromSlash(name)), mtime, mtime); err != nil {
		t.Fatalf("touch %s: %v", name, err)
	}
}

// Sync brings the catalog up to date with the files on disk.
func (e *Env) Sync(t *testing.T) {
	t.Helper()
	if _, err := index.Sync(e.DB, e.Store, Logger()); err != nil {
		t.Fatalf("sync: %v", err)
	}
}
