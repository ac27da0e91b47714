package mirror

import (
	"context"
	"errors"
	"fmt"

	"github.com/starford/setlist/internal/apperr"
	"github.com/starford/setlist/internal/localstore"
	"github.com/starford/setlist/internal/models"
)

// Key layout in the local store:
//
//	mirror:<collection>:ids   ordered id list of the last snapshot
//	mirror:<collection>:<id>  one record
const keyPrefix = "mirror"

func idsKey(collection string) string {
	return localstore.JoinKey(keyPrefix, collection, "ids")
}

func recordKey(collection, id string) string {
	return localstore.JoinKey(keyPrefix, collection, id)
}

// persistSnapshot writes records as the collection's mirror in one batch,
// removing entries of ids that left the snapshot.
func persistSnapshot(ctx context.Context, store localstore.Store, collection string, records []models.Record) error {
	var prev []string
	if err := store.Get(ctx, idsKey(collection), &prev); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return fmt.Errorf("mirror: read id list %s: %w", collection, err)
	}

	b := &localstore.Batch{}
	ids := make([]string, 0, len(records))
	keep := make(map[string]struct{}, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
		keep[r.ID] = struct{}{}
		b.Set(recordKey(collection, r.ID), r)
	}
	for _, old := range prev {
		if _, ok := keep[old]; !ok {
			b.Remove(recordKey(collection, old))
		}
	}
	b.Set(idsKey(collection), ids)

	if err := store.Commit(ctx, b); err != nil {
		return fmt.Errorf("mirror: persist %s: %w", collection, err)
	}
	return nil
}

// loadSnapshot reconstructs the last persisted snapshot one entry at a time.
// A missing id list yields an empty snapshot; ids whose entry is gone are
// skipped.
func loadSnapshot(ctx context.Context, store localstore.Store, collection string) ([]models.Record, error) {
	var ids []string
	if err := store.Get(ctx, idsKey(collection), &ids); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return []models.Record{}, nil
		}
		return nil, fmt.Errorf("mirror: read id list %s: %w", collection, err)
	}

	out := make([]models.Record, 0, len(ids))
	for _, id := range ids {
		var r models.Record
		if err := store.Get(ctx, recordKey(collection, id), &r); err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("mirror: read %s/%s: %w", collection, id, err)
		}
		if r.Fields == nil {
			r.Fields = map[string]any{}
		}
		out = append(out, r)
	}
	return out, nil
}
