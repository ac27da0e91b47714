// Package library imports Markdown song files from a directory into the
// songs collection and keeps them current.
package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/starford/setlist/internal/apperr"
	"github.com/starford/setlist/internal/models"
	"github.com/starford/setlist/internal/parser"
	"github.com/starford/setlist/internal/remote"
	"github.com/starford/setlist/internal/storage"
)

// Docs is the document store the library writes song records to.
type Docs interface {
	List(ctx context.Context, q remote.Query) ([]models.Record, error)
	Get(ctx context.Context, collection, id string) (models.Record, error)
	Put(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
}

// EventCallback is called after a library-driven change.
// kind is one of "created", "updated", "deleted".
type EventCallback func(kind, path string)

// Library links a song directory to the songs collection. Records imported
// from files carry a "sourcePath" field; records without one are never
// touched by the library.
type Library struct {
	store  storage.Provider
	docs   Docs
	logger *slog.Logger
}

// New creates a library.
func New(store storage.Provider, docs Docs, logger *slog.Logger) *Library {
	if logger == nil {
		logger = slog.Default()
	}
	return &Library{store: store, docs: docs, logger: logger}
}

// SongID returns the stable record id of the song file at rel.
func SongID(rel string) string {
	return "song-" + storage.Checksum([]byte(rel))[:16]
}

// SyncResult counts what a Sync changed.
type SyncResult struct {
	Imported  int `json:"imported"`
	Unchanged int `json:"unchanged"`
	Removed   int `json:"removed"`
	Failed    int `json:"failed"`
}

// Sync walks the library and brings the songs collection up to date:
//   - new or changed files are parsed and written
//   - records whose file is gone are deleted
func (l *Library) Sync(ctx context.Context) (SyncResult, error) {
	var res SyncResult

	metas, err := l.store.List("")
	if err != nil {
		return res, err
	}
	known, err := l.imported(ctx)
	if err != nil {
		return res, err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}
		if rec, ok := known[m.Path]; ok && rec.String("checksum") == m.Checksum {
			res.Unchanged++
			continue
		}
		if _, _, err := l.Import(ctx, m.Path); err != nil {
			res.Failed++
			l.logger.Warn("library: import failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		res.Imported++
	}

	for p, rec := range known {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := l.docs.Delete(ctx, models.CollectionSongs, rec.ID); err != nil && !errors.Is(err, apperr.ErrNotFound) {
			res.Failed++
			l.logger.Warn("library: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		res.Removed++
		l.logger.Debug("library: removed stale", slog.String("path", p))
	}

	return res, nil
}

// imported maps sourcePath to record for every file-backed song.
func (l *Library) imported(ctx context.Context) (map[string]models.Record, error) {
	recs, err := l.docs.List(ctx, remote.Query{Collection: models.CollectionSongs})
	if err != nil {
		return nil, fmt.Errorf("library: list songs: %w", err)
	}
	out := make(map[string]models.Record, len(recs))
	for _, r := range recs {
		if p := r.String("sourcePath"); p != "" {
			out[p] = r
		}
	}
	return out, nil
}

// Import parses the file at rel and writes it to the songs collection. It
// reports the record id and whether the record changed; a file whose
// checksum matches the stored record is skipped.
func (l *Library) Import(ctx context.Context, rel string) (string, bool, error) {
	data, err := l.store.Read(rel)
	if err != nil {
		return "", false, err
	}
	id := SongID(rel)
	sum := storage.Checksum(data)

	existing, err := l.docs.Get(ctx, models.CollectionSongs, id)
	switch {
	case err == nil && existing.String("checksum") == sum:
		return id, false, nil
	case err != nil && !errors.Is(err, apperr.ErrNotFound):
		return "", false, fmt.Errorf("library: import %s: %w", rel, err)
	}

	res, err := parser.Parse(data)
	if err != nil {
		return "", false, fmt.Errorf("library: parse %s: %w", rel, err)
	}
	song := models.Song{
		Path:        rel,
		Content:     data,
		Body:        res.Body,
		Frontmatter: res.Frontmatter,
		Title:       res.Title,
		Artist:      res.Artist,
		Key:         res.Key,
		Tags:        res.Tags,
		Chords:      res.Chords,
		Checksum:    sum,
	}
	if song.Title == "" {
		song.Title = titleFromPath(rel)
	}
	if err := l.docs.Put(ctx, models.CollectionSongs, id, song.Fields()); err != nil {
		return "", false, fmt.Errorf("library: import %s: %w", rel, err)
	}
	return id, true, nil
}

// Remove deletes the record imported from rel. A missing record is not an
// error.
func (l *Library) Remove(ctx context.Context, rel string) error {
	err := l.docs.Delete(ctx, models.CollectionSongs, SongID(rel))
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return fmt.Errorf("library: remove %s: %w", rel, err)
	}
	return nil
}

// Save writes a song file and imports it immediately. An existing file is
// only replaced when overwrite is set.
func (l *Library) Save(ctx context.Context, rel string, content []byte, overwrite bool) (string, error) {
	rel = path.Clean(strings.ReplaceAll(rel, "\\", "/"))
	if !storage.IsSongFile(rel) {
		return "", fmt.Errorf("library: %s: song files must end in .md: %w", rel, apperr.ErrInvalid)
	}
	if !overwrite {
		if _, err := l.store.Stat(rel); err == nil {
			return "", fmt.Errorf("library: %s: %w", rel, apperr.ErrAlreadyExists)
		}
	}
	if err := l.store.Write(rel, content); err != nil {
		if errors.Is(err, storage.ErrOutsideRoot) || errors.Is(err, storage.ErrTooLarge) {
			return "", fmt.Errorf("library: %s: %w: %w", rel, apperr.ErrInvalid, err)
		}
		return "", fmt.Errorf("library: save %s: %w", rel, err)
	}
	id, _, err := l.Import(ctx, rel)
	return id, err
}

// Read returns the raw song file at rel.
func (l *Library) Read(rel string) ([]byte, error) {
	data, err := l.store.Read(rel)
	if err != nil {
		return nil, fmt.Errorf("library: %s: %w", rel, apperr.ErrNotFound)
	}
	return data, nil
}

// List returns every song file in the library.
func (l *Library) List() ([]models.FileMeta, error) {
	return l.store.List("")
}

func titleFromPath(rel string) string {
	stem := strings.TrimSuffix(path.Base(rel), path.Ext(rel))
	stem = strings.NewReplacer("-", " ", "_", " ").Replace(stem)
	return strings.TrimSpace(stem)
}
