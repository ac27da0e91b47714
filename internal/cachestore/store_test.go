package cachestore

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/setlist/internal/apperr"
)

func openMem(t *testing.T) *Store {
	t.Helper()
	s, err := Open("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_PutMatch(t *testing.T) {
	s := openMem(t)
	e := Entry{Status: 200, Header: http.Header{"Content-Type": {"text/html"}}, Body: []byte("<html>")}
	require.NoError(t, s.Put("shell-v1", "http://app/index.html", e))

	got, err := s.Match("shell-v1", "http://app/index.html")
	require.NoError(t, err)
	assert.Equal(t, 200, got.Status)
	assert.Equal(t, "text/html", got.Header.Get("Content-Type"))
	assert.Equal(t, []byte("<html>"), got.Body)
	assert.False(t, got.StoredAt.IsZero())

	_, err = s.Match("shell-v1", "http://app/missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.Match("shell-v2", "http://app/index.html")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestStore_BucketsAndKeys(t *testing.T) {
	s := openMem(t)
	require.NoError(t, s.CreateBucket("v1"))
	require.NoError(t, s.CreateBucket("v1"))
	require.NoError(t, s.Put("v2", "http://a/b", Entry{Status: 200}))
	require.NoError(t, s.Put("v2", "http://a/a", Entry{Status: 200}))
	require.NoError(t, s.Put("v10", "http://a/c", Entry{Status: 200}))

	buckets, err := s.Buckets()
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v10", "v2"}, buckets)

	keys, err := s.Keys("v2")
	require.NoError(t, err)
	assert.Equal(t, []string{"http://a/a", "http://a/b"}, keys, "prefix scan does not leak into v10")

	require.NoError(t, s.Delete("v2", "http://a/a"))
	keys, _ = s.Keys("v2")
	assert.Equal(t, []string{"http://a/b"}, keys)
}

func TestStore_DeleteBucket(t *testing.T) {
	s := openMem(t)
	require.NoError(t, s.Put("v1", "k", Entry{Status: 200}))
	require.NoError(t, s.Put("v2", "k", Entry{Status: 200}))

	require.NoError(t, s.DeleteBucket("v1"))

	buckets, _ := s.Buckets()
	assert.Equal(t, []string{"v2"}, buckets)
	_, err := s.Match("v1", "k")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.Match("v2", "k")
	assert.NoError(t, err)
}

func TestStore_RejectsBadBucketName(t *testing.T) {
	s := openMem(t)
	assert.ErrorIs(t, s.CreateBucket("a:b"), apperr.ErrInvalid)
	assert.ErrorIs(t, s.Put("", "k", Entry{}), apperr.ErrInvalid)
}

func TestStore_Persists(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, nil)
	require.NoError(t, err)
	require.NoError(t, s.Put("v1", "k", Entry{Status: 204}))
	require.NoError(t, s.Close())

	s, err = Open(dir, nil)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Match("v1", "k")
	require.NoError(t, err)
	assert.Equal(t, 204, got.Status)
}

func TestStore_EnumerationFailsWhenClosed(t *testing.T) {
	s, err := Open("", nil)
	require.NoError(t, err)
	require.NoError(t, s.Put("v1", "k", Entry{Status: 200}))
	require.NoError(t, s.Close())

	_, err = s.Buckets()
	assert.Error(t, err)
	_, err = s.Keys("v1")
	assert.Error(t, err)
	assert.Error(t, s.DeleteBucket("v1"))
}
