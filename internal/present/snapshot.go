// Package present runs a setlist presentation: it freezes a setlist into an
// offline snapshot, splits songs into sections and pages through them.
package present

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/setlist/internal/apperr"
	"github.com/starford/setlist/internal/localstore"
	"github.com/starford/setlist/internal/models"
)

// Transpose bounds in semitones.
const (
	MinTranspose = -12
	MaxTranspose = 12
)

// ErrSnapshotUnavailable is returned when an offline snapshot is missing or
// corrupt. The only remedy is preparing the setlist again.
var ErrSnapshotUnavailable = errors.New("data unavailable, regenerate")

// SnapshotKey returns the local store key of a setlist snapshot.
func SnapshotKey(setlistID string) string {
	return localstore.JoinKey("offline", "setlist", setlistID)
}

// SongEntry is one setlist position with its song body denormalized.
type SongEntry struct {
	SongID    string `json:"songId"`
	Title     string `json:"title"`
	Artist    string `json:"artist,omitempty"`
	Key       string `json:"key,omitempty"`
	Content   string `json:"content"`
	Transpose int    `json:"transpose"`
}

// Validate validates the entry.
func (e SongEntry) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.SongID, validation.Required),
		validation.Field(&e.Transpose, validation.Min(MinTranspose), validation.Max(MaxTranspose)),
	)
}

// Snapshot is a setlist frozen for offline presentation.
type Snapshot struct {
	SetlistID  string      `json:"setlistId"`
	Name       string      `json:"name"`
	PreparedAt time.Time   `json:"preparedAt"`
	Songs      []SongEntry `json:"songs"`
}

// Validate validates the snapshot.
func (s *Snapshot) Validate() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.SetlistID, validation.Required),
		validation.Field(&s.Songs, validation.Required),
	)
}

// Build captures setlist and the songs it references. Songs are looked up by
// record id; a referenced song that is missing fails the build.
func Build(setlist models.Record, songs []models.Record) (*Snapshot, error) {
	items, err := setlistItems(setlist)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.Record, len(songs))
	for _, s := range songs {
		byID[s.ID] = s
	}

	snap := &Snapshot{
		SetlistID:  setlist.ID,
		Name:       setlist.String("name"),
		PreparedAt: time.Now().UTC(),
		Songs:      make([]SongEntry, 0, len(items)),
	}
	for _, it := range items {
		song, ok := byID[it.SongID]
		if !ok {
			return nil, fmt.Errorf("present: build: song %s: %w", it.SongID, apperr.ErrNotFound)
		}
		snap.Songs = append(snap.Songs, SongEntry{
			SongID:    song.ID,
			Title:     song.String("title"),
			Artist:    song.String("artist"),
			Key:       song.String("key"),
			Content:   song.String("content"),
			Transpose: clamp(it.Transpose),
		})
	}
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("present: build: %w", err)
	}
	return snap, nil
}

// SongIDs returns the song ids a setlist record references, in order.
func SongIDs(setlist models.Record) ([]string, error) {
	items, err := setlistItems(setlist)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.SongID)
	}
	return ids, nil
}

func setlistItems(setlist models.Record) ([]models.SetlistItem, error) {
	raw, ok := setlist.Fields["songs"]
	if !ok || raw == nil {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("present: setlist %s: %w", setlist.ID, err)
	}
	var items []models.SetlistItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("present: setlist %s songs: %w: %w", setlist.ID, apperr.ErrInvalid, err)
	}
	return items, nil
}

// Save validates the snapshot and stores it under SnapshotKey.
func (s *Snapshot) Save(ctx context.Context, store localstore.Store) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("present: save: %w", err)
	}
	if err := store.Set(ctx, SnapshotKey(s.SetlistID), s); err != nil {
		return fmt.Errorf("present: save: %w", err)
	}
	return nil
}

// LoadSnapshot reads a prepared snapshot. A missing, undecodable or invalid
// snapshot is reported as ErrSnapshotUnavailable.
func LoadSnapshot(ctx context.Context, store localstore.Store, setlistID string) (*Snapshot, error) {
	var snap Snapshot
	if err := store.Get(ctx, SnapshotKey(setlistID), &snap); err != nil {
		return nil, fmt.Errorf("%w: setlist %s: %w", ErrSnapshotUnavailable, setlistID, err)
	}
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("%w: setlist %s: %w", ErrSnapshotUnavailable, setlistID, err)
	}
	return &snap, nil
}

func clamp(semitones int) int {
	return max(MinTranspose, min(MaxTranspose, semitones))
}
