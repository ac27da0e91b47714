package localstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/setlist/internal/apperr"
)

func openTest(t *testing.T) *SQLite {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_SetGet(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "prefs:fontSize", 18))

	var got int
	require.NoError(t, s.Get(ctx, "prefs:fontSize", &got))
	assert.Equal(t, 18, got)

	require.NoError(t, s.Set(ctx, "prefs:fontSize", 20))
	require.NoError(t, s.Get(ctx, "prefs:fontSize", &got))
	assert.Equal(t, 20, got, "last writer wins")
}

func TestStore_GetMissing(t *testing.T) {
	s := openTest(t)
	var v string
	err := s.Get(context.Background(), "nope", &v)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestStore_GetWrongType(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "k", "not a number"))
	var n int
	err := s.Get(ctx, "k", &n)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestStore_RemoveAndKeys(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	for _, k := range []string{"mirror:songs:b", "mirror:songs:a", "mirror:setlists:x", "other"} {
		require.NoError(t, s.Set(ctx, k, k))
	}
	keys, err := s.Keys(ctx, "mirror:songs:")
	require.NoError(t, err)
	assert.Equal(t, []string{"mirror:songs:a", "mirror:songs:b"}, keys)

	require.NoError(t, s.Remove(ctx, "mirror:songs:a"))
	require.NoError(t, s.Remove(ctx, "missing"))
	keys, err = s.Keys(ctx, "mirror:songs:")
	require.NoError(t, err)
	assert.Equal(t, []string{"mirror:songs:b"}, keys)
}

func TestStore_CommitBatch(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "stale", true))

	b := &Batch{}
	b.Set("a", map[string]any{"title": "One"})
	b.Set("b", []string{"x", "y"})
	b.Remove("stale")
	require.Equal(t, 3, b.Len())
	require.NoError(t, s.Commit(ctx, b))

	var a map[string]any
	require.NoError(t, s.Get(ctx, "a", &a))
	assert.Equal(t, "One", a["title"])

	var bl []string
	require.NoError(t, s.Get(ctx, "b", &bl))
	assert.Equal(t, []string{"x", "y"}, bl)

	var stale bool
	assert.ErrorIs(t, s.Get(ctx, "stale", &stale), apperr.ErrNotFound)
}

func TestStore_CommitEncodeErrorWritesNothing(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	b := &Batch{}
	b.Set("ok", 1)
	b.Set("bad", make(chan int))
	require.Error(t, s.Commit(ctx, b))

	var v int
	assert.ErrorIs(t, s.Get(ctx, "ok", &v), apperr.ErrNotFound)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "k", "v"))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	var v string
	require.NoError(t, s.Get(ctx, "k", &v))
	assert.Equal(t, "v", v)
}

func TestJoinKey(t *testing.T) {
	assert.Equal(t, "mirror:songs:ids", JoinKey("mirror", "songs", "ids"))
}
