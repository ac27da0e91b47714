// Package offline keeps presentation snapshots of setlists available on a
// device that may lose its connection to the document store.
package offline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/setlist/internal/apperr"
	"github.com/starford/setlist/internal/localstore"
	"github.com/starford/setlist/internal/mirror"
	"github.com/starford/setlist/internal/models"
	"github.com/starford/setlist/internal/present"
)

// Preparer builds snapshots from mirrored setlists and songs.
type Preparer struct {
	local    localstore.Store
	setlists *mirror.Collection
	songs    *mirror.Collection
	logger   *slog.Logger
}

// New registers the setlists and songs collections on m.
func New(m *mirror.Mirror, local localstore.Store, logger *slog.Logger) *Preparer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Preparer{
		local:    local,
		setlists: m.Collection(models.CollectionSetlists, mirror.WithOrderBy("name")),
		songs:    m.Collection(models.CollectionSongs, mirror.WithOrderBy("title")),
		logger:   logger,
	}
}

// Start begins mirroring both collections.
func (p *Preparer) Start(ctx context.Context) {
	p.setlists.Start(ctx)
	p.songs.Start(ctx)
}

// Wait blocks until both collections are ready.
func (p *Preparer) Wait(ctx context.Context) error {
	if err := p.setlists.WaitReady(ctx); err != nil {
		return err
	}
	return p.songs.WaitReady(ctx)
}

// Setlists returns the mirrored setlists ordered by name.
func (p *Preparer) Setlists() []models.Record {
	return p.setlists.Read().Records
}

// Prepare builds the snapshot of setlistID from the mirrored records and
// stores it for offline presentation.
func (p *Preparer) Prepare(ctx context.Context, setlistID string) (*present.Snapshot, error) {
	var (
		setlist models.Record
		found   bool
	)
	for _, r := range p.setlists.Read().Records {
		if r.ID == setlistID {
			setlist, found = r, true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("offline: setlist %s: %w", setlistID, apperr.ErrNotFound)
	}

	snap, err := present.Build(setlist, p.songs.Read().Records)
	if err != nil {
		return nil, err
	}
	if err := snap.Save(ctx, p.local); err != nil {
		return nil, err
	}
	p.logger.Info("setlist prepared",
		slog.String("setlist_id", setlistID),
		slog.Int("songs", len(snap.Songs)))
	return snap, nil
}

// Prepared lists the setlist ids that have a stored snapshot.
func (p *Preparer) Prepared(ctx context.Context) ([]string, error) {
	prefix := present.SnapshotKey("")
	keys, err := p.local.Keys(ctx, prefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(k, prefix))
	}
	return ids, nil
}

// Refresh rebuilds every stored snapshot. A setlist or song that can no
// longer be resolved leaves its last snapshot in place. Nothing is rebuilt
// while either collection is still waiting for its first snapshot.
func (p *Preparer) Refresh(ctx context.Context) (int, error) {
	if p.setlists.Read().Loading || p.songs.Read().Loading {
		return 0, nil
	}
	ids, err := p.Prepared(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		if _, err := p.Prepare(ctx, id); err != nil {
			if !errors.Is(err, apperr.ErrNotFound) {
				p.logger.Warn("offline: refresh failed",
					slog.String("setlist_id", id),
					slog.String("error", err.Error()))
			}
			continue
		}
		n++
	}
	return n, nil
}

// Keep refreshes stored snapshots after mirrored changes settle for
// debounce, until ctx is cancelled.
func (p *Preparer) Keep(ctx context.Context, debounce time.Duration) {
	changed := make(chan struct{}, 1)
	notify := func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}
	p.setlists.OnChange(notify)
	p.songs.OnChange(notify)
	defer p.setlists.OnChange(nil)
	defer p.songs.OnChange(nil)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-changed:
			if timer == nil {
				timer = time.NewTimer(debounce)
				fire = timer.C
			} else {
				timer.Reset(debounce)
			}
		case <-fire:
			if n, err := p.Refresh(ctx); err != nil {
				p.logger.Warn("offline: refresh failed", slog.String("error", err.Error()))
			} else if n > 0 {
				p.logger.Debug("offline: snapshots refreshed", slog.Int("count", n))
			}
		}
	}
}

// Close stops mirroring.
func (p *Preparer) Close() {
	p.setlists.Close()
	p.songs.Close()
}
