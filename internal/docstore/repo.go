package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/setlist/internal/apperr"
	"github.com/starford/setlist/internal/id"
	"github.com/starford/setlist/internal/models"
	"github.com/starford/setlist/internal/remote"
)

var (
	_ remote.Client = (*Store)(nil)
	_ remote.Pinger = (*Store)(nil)
)

// List returns the records of q.Collection matching q.Where, ordered by
// q.OrderBy or by insertion order when unset.
func (s *Store) List(ctx context.Context, q remote.Query) ([]models.Record, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, data FROM records WHERE collection = ? ORDER BY created_at, rowid`, q.Collection)
	if err != nil {
		return nil, fmt.Errorf("docstore: list %s: %w", q.Collection, err)
	}
	defer rows.Close()

	out := []models.Record{}
	for rows.Next() {
		var (
			recID, raw string
		)
		if err := rows.Scan(&recID, &raw); err != nil {
			return nil, err
		}
		rec, err := decode(recID, raw)
		if err != nil {
			return nil, err
		}
		if models.MatchAll(q.Where, rec) {
			out = append(out, rec)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	models.SortBy(out, q.OrderBy)
	return out, nil
}

// Get returns one record or apperr.ErrNotFound.
func (s *Store) Get(ctx context.Context, collection, recID string) (models.Record, error) {
	var raw string
	err := s.conn.QueryRowContext(ctx,
		`SELECT data FROM records WHERE collection = ? AND id = ?`, collection, recID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Record{}, apperr.ErrNotFound
	}
	if err != nil {
		return models.Record{}, fmt.Errorf("docstore: get %s/%s: %w", collection, recID, err)
	}
	return decode(recID, raw)
}

// FindBy returns records whose field equals value.
func (s *Store) FindBy(ctx context.Context, collection, field string, value any) ([]models.Record, error) {
	return s.List(ctx, remote.Query{
		Collection: collection,
		Where:      []models.Predicate{models.Where(field, models.OpEq, value)},
	})
}

// Create implements remote.Client. The id is a prefixed NanoID.
func (s *Store) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	if collection == "" {
		return "", fmt.Errorf("docstore: create: %w: empty collection", apperr.ErrInvalid)
	}
	recID, err := id.Generate(id.PrefixFor(collection))
	if err != nil {
		return "", err
	}
	data, err := encode(fields)
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO records (collection, id, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		collection, recID, data, now, now)
	if err != nil {
		return "", fmt.Errorf("docstore: create %s: %w", collection, err)
	}
	s.changed(ctx, "created", collection, recID)
	return recID, nil
}

// Put writes a record under a caller-chosen id, replacing any existing fields.
func (s *Store) Put(ctx context.Context, collection, recID string, fields map[string]any) error {
	data, err := encode(fields)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO records (collection, id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			data       = excluded.data,
			updated_at = excluded.updated_at
	`, collection, recID, data, now, now)
	if err != nil {
		return fmt.Errorf("docstore: put %s/%s: %w", collection, recID, err)
	}
	s.changed(ctx, "updated", collection, recID)
	return nil
}

// Update implements remote.Client by merging fields into the stored record.
// A nil value removes the field.
func (s *Store) Update(ctx context.Context, collection, recID string, fields map[string]any) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("docstore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	var raw string
	err = tx.QueryRowContext(ctx,
		`SELECT data FROM records WHERE collection = ? AND id = ?`, collection, recID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("docstore: update %s/%s: %w", collection, recID, apperr.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("docstore: update %s/%s: %w", collection, recID, err)
	}
	rec, err := decode(recID, raw)
	if err != nil {
		return err
	}
	for k, v := range fields {
		if v == nil {
			delete(rec.Fields, k)
			continue
		}
		rec.Fields[k] = v
	}
	data, err := encode(rec.Fields)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE records SET data = ?, updated_at = ? WHERE collection = ? AND id = ?`,
		data, time.Now().UTC(), collection, recID); err != nil {
		return fmt.Errorf("docstore: update %s/%s: %w", collection, recID, err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.changed(ctx, "updated", collection, recID)
	return nil
}

// Delete implements remote.Client.
func (s *Store) Delete(ctx context.Context, collection, recID string) error {
	res, err := s.conn.ExecContext(ctx,
		`DELETE FROM records WHERE collection = ? AND id = ?`, collection, recID)
	if err != nil {
		return fmt.Errorf("docstore: delete %s/%s: %w", collection, recID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("docstore: delete %s/%s: %w", collection, recID, apperr.ErrNotFound)
	}
	s.changed(ctx, "deleted", collection, recID)
	return nil
}

// Ping implements remote.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

func (s *Store) changed(ctx context.Context, kind, collection, recID string) {
	s.emitter.PublishRecordEvent(kind, collection, recID)
	s.notify(ctx, collection)
}

func decode(recID, raw string) (models.Record, error) {
	fields := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return models.Record{}, fmt.Errorf("docstore: decode %s: %w", recID, err)
	}
	return models.Record{ID: recID, Fields: fields}, nil
}

func encode(fields map[string]any) (string, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("docstore: encode: %w: %v", apperr.ErrInvalid, err)
	}
	return string(data), nil
}
