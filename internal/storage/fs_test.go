package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/sitefeed/internal/apperr"
)

func tempSite(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempSite(t)
	content := []byte("# Hello\nWorld\n")
	if err := s.Write("page.md", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("page.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestWriteCreatesSubdirs(t *testing.T) {
	s := tempSite(t)
	if err := s.Write("a/b/c.md", []byte("deep")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("a/b/c.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "deep" {
		t.Errorf("content = %q", got)
	}
}

func TestDelete(t *testing.T) {
	s := tempSite(t)
	_ = s.Write("del.md", []byte("bye"))
	if err := s.Delete("del.md"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Read("del.md"); err == nil {
		t.Error("expected error reading deleted file")
	}
}

func TestStat(t *testing.T) {
	s := tempSite(t)
	_ = s.Write("news/launch.md", []byte("data"))
	meta, err := s.Stat("news/launch.md")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if meta.Path != "news/launch.md" {
		t.Errorf("path = %q", meta.Path)
	}
	if meta.Checksum == "" || meta.UpdatedAt.IsZero() {
		t.Errorf("incomplete metadata: %+v", meta)
	}
	if _, err := s.Stat("missing.md"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file err = %v, want os.ErrNotExist", err)
	}
}

func TestList(t *testing.T) {
	s := tempSite(t)
	_ = s.Write("a.md", []byte("a"))
	_ = s.Write("sub/b.md", []byte("b"))
	_ = os.WriteFile(filepath.Join(s.Root(), "readme.txt"), []byte("not md"), 0o644)
	_ = s.Write(".drafts/hidden.md", []byte("hidden"))

	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("len = %d, want 2", len(items))
	}

	missing, err := s.List("nowhere")
	if err != nil || len(missing) != 0 {
		t.Errorf("missing dir = %v, %v", missing, err)
	}
}

func TestWriteRejectsNonItemFiles(t *testing.T) {
	s := tempSite(t)
	err := s.Write("notes.txt", []byte("x"))
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestDeletePrunesEmptyContainers(t *testing.T) {
	s := tempSite(t)
	_ = s.Write("news/2024/_index.md", []byte("---\ntitle: 2024\n---\n"))
	_ = s.Write("news/launch.md", []byte("launch"))

	if err := s.Delete("news/2024/_index.md"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "news", "2024")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("empty container dir kept: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "news")); err != nil {
		t.Errorf("non-empty parent removed: %v", err)
	}

	if err := s.Delete("news/launch.md"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "news")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("emptied parent kept: %v", err)
	}
	if _, err := os.Stat(s.Root()); err != nil {
		t.Errorf("site root removed: %v", err)
	}
}

func TestDeleteRootRejected(t *testing.T) {
	s := tempSite(t)
	if err := s.Delete(""); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempSite(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.md",
		"/etc/shadow.md",
	}
	for _, p := range cases {
		if _, err := s.Read(p); !errors.Is(err, apperr.ErrInvalidInput) {
			t.Errorf("read %q err = %v, want ErrInvalidInput", p, err)
		}
		if err := s.Write(p, []byte("x")); !errors.Is(err, apperr.ErrInvalidInput) {
			t.Errorf("write %q err = %v, want ErrInvalidInput", p, err)
		}
	}
}

func TestAtomicWriteNoCorruption(t *testing.T) {
	// Verify that if we read during a write the old content is intact
	// (the rename is atomic on POSIX).
	s := tempSite(t)
	original := []byte("original content")
	_ = s.Write("atomic.md", original)

	// Overwrite with new content.
	updated := []byte("updated content")
	if err := s.Write("atomic.md", updated); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("atomic.md")
	if string(got) != string(updated) {
		t.Errorf("expected updated content, got %q", got)
	}

	// Confirm no leftover temp files.
	matches, _ := filepath.Glob(filepath.Join(s.root, tmpPattern))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS("/tmp/sitefeed-does-not-exist-" + t.Name())
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "sitefeed-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
