package library

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/setlist/internal/apperr"
	"github.com/starford/setlist/internal/docstore"
	"github.com/starford/setlist/internal/models"
	"github.com/starford/setlist/internal/remote"
	"github.com/starford/setlist/internal/testutil"
)

// testEnv sets up a library dir, storage and document store.
func testEnv(t *testing.T) (string, *Library, *docstore.Store) {
	t.Helper()
	dir, store := testutil.TestLibrary(t)
	docs := testutil.TestDocs(t)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return dir, New(store, docs, logger), docs
}

func writeSong(t *testing.T, dir, rel, content string) {
	t.Helper()
	abs := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func songs(t *testing.T, docs *docstore.Store) []models.Record {
	t.Helper()
	recs, err := docs.List(context.Background(), remote.Query{Collection: models.CollectionSongs})
	if err != nil {
		t.Fatal(err)
	}
	return recs
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

const graceSong = `---
title: Amazing Grace
artist: John Newton
key: G
tags: [hymn]
---
[G]Amazing [C]grace

How [D]sweet the sound
`

func TestSongID_Stable(t *testing.T) {
	a := SongID("hymns/grace.md")
	if a != SongID("hymns/grace.md") {
		t.Fatal("SongID not deterministic")
	}
	if a == SongID("hymns/other.md") {
		t.Fatal("different paths share an id")
	}
	if len(a) != len("song-")+16 {
		t.Errorf("unexpected id length: %q", a)
	}
}

func TestSync_ImportsFiles(t *testing.T) {
	dir, lib, docs := testEnv(t)
	writeSong(t, dir, "grace.md", graceSong)
	writeSong(t, dir, "sub/untitled-song.md", "[Am]la la")
	writeSong(t, dir, "notes.txt", "ignored")

	res, err := lib.Sync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Imported != 2 || res.Failed != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}

	rec, err := docs.Get(context.Background(), models.CollectionSongs, SongID("grace.md"))
	if err != nil {
		t.Fatal(err)
	}
	if rec.String("title") != "Amazing Grace" || rec.String("key") != "G" || rec.String("artist") != "John Newton" {
		t.Errorf("unexpected fields: %v", rec.Fields)
	}
	if rec.String("sourcePath") != "grace.md" {
		t.Errorf("sourcePath = %q", rec.String("sourcePath"))
	}
	chords, _ := rec.Fields["chords"].([]any)
	if len(chords) != 3 {
		t.Errorf("chords = %v", rec.Fields["chords"])
	}

	rec, err = docs.Get(context.Background(), models.CollectionSongs, SongID("sub/untitled-song.md"))
	if err != nil {
		t.Fatal(err)
	}
	if rec.String("title") != "untitled song" {
		t.Errorf("title from filename = %q", rec.String("title"))
	}
}

func TestSync_SkipsUnchangedAndRemovesStale(t *testing.T) {
	dir, lib, docs := testEnv(t)
	ctx := context.Background()
	writeSong(t, dir, "a.md", "# A\n[C]one")
	writeSong(t, dir, "b.md", "# B\n[D]two")

	if _, err := lib.Sync(ctx); err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(filepath.Join(dir, "b.md")); err != nil {
		t.Fatal(err)
	}
	res, err := lib.Sync(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Unchanged != 1 || res.Removed != 1 || res.Imported != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if n := len(songs(t, docs)); n != 1 {
		t.Errorf("expected 1 song, got %d", n)
	}
}

func TestSync_LeavesRecordsWithoutSource(t *testing.T) {
	_, lib, docs := testEnv(t)
	ctx := context.Background()

	id, err := docs.Create(ctx, models.CollectionSongs, map[string]any{"title": "Typed In", "content": "[G]x"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := lib.Sync(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := docs.Get(ctx, models.CollectionSongs, id); err != nil {
		t.Errorf("record without sourcePath was removed: %v", err)
	}
}

func TestImport_UnchangedReportsNoChange(t *testing.T) {
	dir, lib, _ := testEnv(t)
	ctx := context.Background()
	writeSong(t, dir, "a.md", "# A")

	_, changed, err := lib.Import(ctx, "a.md")
	if err != nil || !changed {
		t.Fatalf("first import: changed=%v err=%v", changed, err)
	}
	_, changed, err = lib.Import(ctx, "a.md")
	if err != nil || changed {
		t.Fatalf("second import: changed=%v err=%v", changed, err)
	}
}

func TestSave(t *testing.T) {
	dir, lib, docs := testEnv(t)
	ctx := context.Background()

	id, err := lib.Save(ctx, "new/song.md", []byte(graceSong), false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "new", "song.md")); err != nil {
		t.Fatalf("file not written: %v", err)
	}
	if _, err := docs.Get(ctx, models.CollectionSongs, id); err != nil {
		t.Fatalf("record not imported: %v", err)
	}

	_, err = lib.Save(ctx, "new/song.md", []byte("# again"), false)
	if !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
	if _, err := lib.Save(ctx, "new/song.md", []byte("# Again"), true); err != nil {
		t.Errorf("overwrite: %v", err)
	}
	rec, _ := docs.Get(ctx, models.CollectionSongs, id)
	if rec.String("title") != "Again" {
		t.Errorf("title after overwrite = %q", rec.String("title"))
	}

	_, err = lib.Save(ctx, "song.txt", []byte("x"), false)
	if !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
	_, err = lib.Save(ctx, "../escape.md", []byte("x"), false)
	if !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("expected ErrInvalid for traversal, got %v", err)
	}
}

func TestRemove_MissingIsNotError(t *testing.T) {
	_, lib, _ := testEnv(t)
	if err := lib.Remove(context.Background(), "nope.md"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestWatch_NewFileImported(t *testing.T) {
	dir, lib, docs := testEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var events []string
	go lib.Watch(ctx, func(kind, rel string) {
		mu.Lock()
		events = append(events, kind+":"+rel)
		mu.Unlock()
	})
	time.Sleep(100 * time.Millisecond)

	writeSong(t, dir, "new.md", "# New\n[E]hey")

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		rec, err := docs.Get(context.Background(), models.CollectionSongs, SongID("new.md"))
		return err == nil && rec.String("title") == "New"
	}, "new file not imported by watcher")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			if e == "created:new.md" || e == "updated:new.md" {
				return true
			}
		}
		return false
	}, "expected callback for new.md")
}

func TestWatch_DeleteRemovesRecord(t *testing.T) {
	dir, lib, docs := testEnv(t)
	writeSong(t, dir, "del.md", "# Delete Me")
	if _, err := lib.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go lib.Watch(ctx, nil)
	time.Sleep(100 * time.Millisecond)

	if err := os.Remove(filepath.Join(dir, "del.md")); err != nil {
		t.Fatal(err)
	}
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, err := docs.Get(context.Background(), models.CollectionSongs, SongID("del.md"))
		return errors.Is(err, apperr.ErrNotFound)
	}, "deleted file still has a record")
}

func TestWatch_RenameReconciles(t *testing.T) {
	dir, lib, docs := testEnv(t)
	writeSong(t, dir, "old.md", "# Moving")
	if _, err := lib.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go lib.Watch(ctx, nil)
	time.Sleep(100 * time.Millisecond)

	if err := os.Rename(filepath.Join(dir, "old.md"), filepath.Join(dir, "new.md")); err != nil {
		t.Fatal(err)
	}
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, oldErr := docs.Get(context.Background(), models.CollectionSongs, SongID("old.md"))
		_, newErr := docs.Get(context.Background(), models.CollectionSongs, SongID("new.md"))
		return errors.Is(oldErr, apperr.ErrNotFound) && newErr == nil
	}, "rename not reconciled")
}
