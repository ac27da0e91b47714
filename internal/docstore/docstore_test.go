package docstore

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/setlist/internal/apperr"
	"github.com/starford/setlist/internal/models"
	"github.com/starford/setlist/internal/remote"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []string
}

func (e *recordingEmitter) PublishRecordEvent(kind, collection, id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, kind+" "+collection)
}

func openTest(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "docs.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func nextSnapshot(t *testing.T, sub *remote.Subscription) remote.Snapshot {
	t.Helper()
	select {
	case snap := <-sub.C:
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return remote.Snapshot{}
	}
}

func TestStore_CRUD(t *testing.T) {
	em := &recordingEmitter{}
	s := openTest(t, WithEmitter(em))
	ctx := context.Background()

	recID, err := s.Create(ctx, "songs", map[string]any{"title": "Amazing Grace", "key": "G"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(recID, "song-"))

	rec, err := s.Get(ctx, "songs", recID)
	require.NoError(t, err)
	assert.Equal(t, "Amazing Grace", rec.String("title"))

	require.NoError(t, s.Update(ctx, "songs", recID, map[string]any{"key": "A", "title": nil}))
	rec, err = s.Get(ctx, "songs", recID)
	require.NoError(t, err)
	assert.Equal(t, "A", rec.String("key"))
	_, hasTitle := rec.Fields["title"]
	assert.False(t, hasTitle, "nil removes a field")

	require.NoError(t, s.Delete(ctx, "songs", recID))
	_, err = s.Get(ctx, "songs", recID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.ErrorIs(t, s.Delete(ctx, "songs", recID), apperr.ErrNotFound)
	assert.ErrorIs(t, s.Update(ctx, "songs", "nope", map[string]any{"a": 1}), apperr.ErrNotFound)

	assert.Equal(t, []string{"created songs", "updated songs", "deleted songs"}, em.events)
}

func TestStore_ListFilterAndOrder(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "songs", "c", map[string]any{"band": "x", "order": 3}))
	require.NoError(t, s.Put(ctx, "songs", "a", map[string]any{"band": "x", "order": 1}))
	require.NoError(t, s.Put(ctx, "songs", "b", map[string]any{"band": "y", "order": 2}))
	require.NoError(t, s.Put(ctx, "setlists", "l", map[string]any{"band": "x"}))

	recs, err := s.List(ctx, remote.Query{
		Collection: "songs",
		Where:      []models.Predicate{models.Where("band", models.OpEq, "x")},
		OrderBy:    "order",
	})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "a", recs[0].ID)
	assert.Equal(t, "c", recs[1].ID)

	found, err := s.FindBy(ctx, "songs", "band", "y")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "b", found[0].ID)

	empty, err := s.List(ctx, remote.Query{Collection: "none"})
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestStore_SubscribeDeliversSnapshots(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "songs", "s1", map[string]any{"band": "x"}))

	sub, err := s.Subscribe(ctx, remote.Query{
		Collection: "songs",
		Where:      []models.Predicate{models.Where("band", models.OpEq, "x")},
	})
	require.NoError(t, err)
	defer sub.Close()

	first := nextSnapshot(t, sub)
	require.NoError(t, first.Err)
	assert.Len(t, first.Records, 1)

	_, err = s.Create(ctx, "songs", map[string]any{"band": "x"})
	require.NoError(t, err)
	assert.Len(t, nextSnapshot(t, sub).Records, 2)

	_, err = s.Create(ctx, "songs", map[string]any{"band": "y"})
	require.NoError(t, err)
	assert.Len(t, nextSnapshot(t, sub).Records, 2, "non-matching write still yields a full snapshot")
}

func TestStore_SubscribeCloseRemovesWatcher(t *testing.T) {
	s := openTest(t)
	sub, err := s.Subscribe(context.Background(), remote.Query{Collection: "songs"})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Watchers())

	sub.Close()
	assert.Eventually(t, func() bool { return s.Watchers() == 0 }, time.Second, 10*time.Millisecond)
}

func TestStore_SubscribeRejectsBadPredicate(t *testing.T) {
	s := openTest(t)
	_, err := s.Subscribe(context.Background(), remote.Query{
		Collection: "songs",
		Where:      []models.Predicate{models.Where("", models.OpEq, 1)},
	})
	assert.ErrorIs(t, err, apperr.ErrInvalid)
}

func TestStore_SubscribeConvergesUnderConcurrentWrites(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	const writers = 20
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := s.Create(ctx, "songs", map[string]any{"order": i})
			assert.NoError(t, err)
		}()
	}

	// Subscribe while writes are landing.
	close(start)
	sub, err := s.Subscribe(ctx, remote.Query{Collection: "songs"})
	require.NoError(t, err)
	defer sub.Close()
	wg.Wait()

	var last remote.Snapshot
	deadline := time.After(2 * time.Second)
	for len(last.Records) != writers {
		select {
		case last = <-sub.C:
			require.NoError(t, last.Err)
		case <-deadline:
			t.Fatalf("final snapshot has %d records, want %d", len(last.Records), writers)
		}
	}

	// Nothing older may arrive after the complete set.
	select {
	case snap := <-sub.C:
		assert.Len(t, snap.Records, writers)
	case <-time.After(100 * time.Millisecond):
	}
}
