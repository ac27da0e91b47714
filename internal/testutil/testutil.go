// Package testutil provides shared test helpers for setting up song
// libraries and stores.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/starford/setlist/internal/docstore"
	"github.com/starford/setlist/internal/localstore"
	"github.com/starford/setlist/internal/storage"
)

// TestDocs creates a temporary document store that is automatically closed.
func TestDocs(t *testing.T, opts ...docstore.Option) *docstore.Store {
	t.Helper()
	docs, err := docstore.Open(filepath.Join(t.TempDir(), "docs.db"), opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { docs.Close() })
	return docs
}

// TestLocal creates a temporary durable local store.
func TestLocal(t *testing.T) *localstore.SQLite {
	t.Helper()
	local, err := localstore.Open(filepath.Join(t.TempDir(), "local.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { local.Close() })
	return local
}

// TestLibrary creates a temporary song library directory with a
// storage.Provider.
func TestLibrary(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}
