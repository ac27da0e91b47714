package docstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/setlist/internal/apperr"
	"github.com/starford/setlist/internal/remote"
)

type watcher struct {
	q   remote.Query
	sub *remote.Subscription

	// mu serializes list+deliver so the last delivery always reflects
	// every write committed before it started.
	mu sync.Mutex
}

// refresh lists the query and delivers the result.
func (s *Store) refresh(ctx context.Context, w *watcher) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sub.Context().Err() != nil {
		return nil
	}
	recs, err := s.List(ctx, w.q)
	if err != nil {
		return err
	}
	w.sub.Deliver(remote.Snapshot{Records: recs})
	return nil
}

// Subscribe implements remote.Client. The current result set is delivered
// immediately and again after every write to the collection.
func (s *Store) Subscribe(ctx context.Context, q remote.Query) (*remote.Subscription, error) {
	if q.Collection == "" {
		return nil, fmt.Errorf("docstore: subscribe: %w: empty collection", apperr.ErrInvalid)
	}
	for _, p := range q.Where {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("docstore: subscribe: %w: %v", apperr.ErrInvalid, err)
		}
	}

	sub := remote.NewSubscription(ctx)
	w := &watcher{q: q, sub: sub}

	// Register before the initial list so no write can fall in between.
	s.mu.Lock()
	s.nextID++
	wid := s.nextID
	s.watchers[wid] = w
	s.mu.Unlock()

	if err := s.refresh(ctx, w); err != nil {
		sub.Close()
		s.mu.Lock()
		delete(s.watchers, wid)
		s.mu.Unlock()
		return nil, err
	}

	go func() {
		<-sub.Done()
		s.mu.Lock()
		delete(s.watchers, wid)
		s.mu.Unlock()
	}()
	return sub, nil
}

// Watchers returns the number of live queries.
func (s *Store) Watchers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers)
}

// notify re-runs every live query on collection and delivers the new result.
func (s *Store) notify(ctx context.Context, collection string) {
	s.mu.Lock()
	var targets []*watcher
	for _, w := range s.watchers {
		if w.q.Collection == collection {
			targets = append(targets, w)
		}
	}
	s.mu.Unlock()

	for _, w := range targets {
		if err := s.refresh(context.WithoutCancel(ctx), w); err != nil {
			s.logger.Warn("docstore: refresh live query failed",
				slog.String("collection", collection),
				slog.String("error", err.Error()))
			w.sub.Deliver(remote.Snapshot{Err: err})
		}
	}
}
