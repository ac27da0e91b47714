package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func tempLibrary(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempLibrary(t)
	content := []byte("---\ntitle: Amazing Grace\n---\n[G]Amazing grace\n")
	if err := s.Write("amazing-grace.md", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("amazing-grace.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestWriteCreatesSubdirs(t *testing.T) {
	s := tempLibrary(t)
	if err := s.Write("hymns/old/grace.md", []byte("deep")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("hymns/old/grace.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "deep" {
		t.Errorf("content = %q", got)
	}
}

func TestDelete(t *testing.T) {
	s := tempLibrary(t)
	_ = s.Write("del.md", []byte("bye"))
	if err := s.Delete("del.md"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Read("del.md"); err == nil {
		t.Error("expected error reading deleted file")
	}
}

func TestList(t *testing.T) {
	s := tempLibrary(t)
	_ = s.Write("a.md", []byte("a"))
	_ = s.Write("sub/b.md", []byte("b"))
	_ = s.Write("readme.txt", []byte("not md"))
	_ = s.Write(".hidden.md", []byte("hidden"))
	_ = s.Write(".trash/c.md", []byte("trashed"))

	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var paths []string
	for _, it := range items {
		paths = append(paths, it.Path)
		if it.Checksum != Checksum([]byte(filepath.Base(it.Path)[:1])) {
			t.Errorf("checksum mismatch for %s", it.Path)
		}
	}
	if len(paths) != 2 || paths[0] != "a.md" || paths[1] != "sub/b.md" {
		t.Errorf("paths = %v, want [a.md sub/b.md]", paths)
	}
}

func TestIsSongFile(t *testing.T) {
	cases := map[string]bool{
		"song.md":           true,
		"dir/song.md":       true,
		".setlist-tmp-1.md": false,
		"notes.txt":         false,
		"song.md.swp":       false,
	}
	for name, want := range cases {
		if got := IsSongFile(name); got != want {
			t.Errorf("IsSongFile(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempLibrary(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.md",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, err := s.Read(p); !errors.Is(err, ErrOutsideRoot) {
			t.Errorf("Read(%q) err = %v, want ErrOutsideRoot", p, err)
		}
		if err := s.Write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
	}
}

func TestAtomicWriteNoLeftovers(t *testing.T) {
	s := tempLibrary(t)
	_ = s.Write("atomic.md", []byte("original content"))

	updated := []byte("updated content")
	if err := s.Write("atomic.md", updated); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("atomic.md")
	if string(got) != string(updated) {
		t.Errorf("expected updated content, got %q", got)
	}

	matches, _ := filepath.Glob(filepath.Join(s.Root(), ".setlist-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp(t.TempDir(), "setlist-test-*")
	_ = f.Close()
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}

func TestTraversalWithinRootAllowed(t *testing.T) {
	s := tempLibrary(t)
	if err := s.Write("hymns/../grace.md", []byte("ok")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := s.Read("grace.md"); err != nil {
		t.Fatalf("Read: %v", err)
	}
}

func TestStat(t *testing.T) {
	s := tempLibrary(t)
	content := []byte("[C]Holy holy holy")
	_ = s.Write("hymns/holy.md", content)

	meta, err := s.Stat("hymns/holy.md")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if meta.Path != "hymns/holy.md" {
		t.Errorf("path = %q", meta.Path)
	}
	if meta.Checksum != Checksum(content) {
		t.Errorf("checksum = %q", meta.Checksum)
	}
	if meta.UpdatedAt.IsZero() {
		t.Error("expected modification time")
	}

	if _, err := s.Stat("missing.md"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Stat missing err = %v, want ErrNotExist", err)
	}
	if _, err := s.Stat("hymns"); err == nil {
		t.Error("expected error for directory")
	}
}

func TestSizeLimit(t *testing.T) {
	s := tempLibrary(t)
	big := bytes.Repeat([]byte("a"), MaxFileSize+1)
	if err := s.Write("big.md", big); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("Write err = %v, want ErrTooLarge", err)
	}

	// A file placed behind the library's back is skipped by List.
	if err := os.WriteFile(filepath.Join(s.Root(), "big.md"), big, 0o644); err != nil {
		t.Fatal(err)
	}
	_ = s.Write("small.md", []byte("s"))
	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 || items[0].Path != "small.md" {
		t.Errorf("items = %v, want only small.md", items)
	}
	if _, err := s.Read("big.md"); !errors.Is(err, ErrTooLarge) {
		t.Errorf("Read err = %v, want ErrTooLarge", err)
	}
}

func TestListEmptyLibrary(t *testing.T) {
	s := tempLibrary(t)
	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Errorf("items = %#v, want empty non-nil slice", items)
	}
}

func TestWrittenFileMode(t *testing.T) {
	s := tempLibrary(t)
	_ = s.Write("mode.md", []byte("m"))
	info, err := os.Stat(filepath.Join(s.Root(), "mode.md"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o644 {
		t.Errorf("mode = %v, want 0644", info.Mode().Perm())
	}
}
