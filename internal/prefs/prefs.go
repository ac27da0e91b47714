// Package prefs holds the presentation preferences: display settings and the
// four pedal key bindings. Each field is persisted under its own key in the
// local store so concurrent sessions only collide per field.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/setlist/internal/apperr"
	"github.com/starford/setlist/internal/localstore"
)

// Font size bounds.
const (
	MinFontSize = 8
	MaxFontSize = 32
)

// Local store keys.
const (
	KeyFontSize      = "pref:fontSize"
	KeyShowChords    = "pref:showChords"
	KeyPanelVisible  = "pref:panelVisible"
	KeyPedalPrevPage = "pref:pedal:prevPage"
	KeyPedalNextPage = "pref:pedal:nextPage"
	KeyPedalPrevSong = "pref:pedal:prevSong"
	KeyPedalNextSong = "pref:pedal:nextSong"
)

// Pedal holds the key identifiers a page-turner pedal sends.
type Pedal struct {
	PrevPage string `json:"prevPage" yaml:"prev_page"`
	NextPage string `json:"nextPage" yaml:"next_page"`
	PrevSong string `json:"prevSong" yaml:"prev_song"`
	NextSong string `json:"nextSong" yaml:"next_song"`
}

// Validate requires four distinct, non-empty bindings.
func (p Pedal) Validate() error {
	if err := validation.ValidateStruct(&p,
		validation.Field(&p.PrevPage, validation.Required),
		validation.Field(&p.NextPage, validation.Required),
		validation.Field(&p.PrevSong, validation.Required),
		validation.Field(&p.NextSong, validation.Required),
	); err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, k := range []string{p.PrevPage, p.NextPage, p.PrevSong, p.NextSong} {
		if seen[k] {
			return fmt.Errorf("pedal: key %q bound twice", k)
		}
		seen[k] = true
	}
	return nil
}

// Preferences is the full preference record.
type Preferences struct {
	FontSize     int   `json:"fontSize" yaml:"font_size"`
	ShowChords   bool  `json:"showChords" yaml:"show_chords"`
	PanelVisible bool  `json:"panelVisible" yaml:"panel_visible"`
	Pedal        Pedal `json:"pedal" yaml:"pedal"`
}

// Validate validates the preferences.
func (p Preferences) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.FontSize, validation.Required, validation.Min(MinFontSize), validation.Max(MaxFontSize)),
		validation.Field(&p.Pedal),
	)
}

// Defaults returns the preferences used when nothing is stored.
func Defaults() Preferences {
	return Preferences{
		FontSize:     20,
		ShowChords:   true,
		PanelVisible: true,
		Pedal: Pedal{
			PrevPage: "left",
			NextPage: "right",
			PrevSong: "up",
			NextSong: "down",
		},
	}
}

// Store reads and writes preferences in a local store.
type Store struct {
	local  localstore.Store
	logger *slog.Logger
}

// NewStore creates a preference store.
func NewStore(local localstore.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{local: local, logger: logger}
}

// Load returns the stored preferences. Missing, undecodable or out-of-range
// values fall back to their defaults field by field; Load only fails when the
// store itself does.
func (s *Store) Load(ctx context.Context) (Preferences, error) {
	p := Defaults()
	def := Defaults()

	if err := s.read(ctx, KeyFontSize, &p.FontSize); err != nil {
		return def, err
	}
	if err := validation.Validate(p.FontSize, validation.Required, validation.Min(MinFontSize), validation.Max(MaxFontSize)); err != nil {
		s.logger.Warn("prefs: font size out of range, using default",
			slog.Int("font_size", p.FontSize),
			slog.String("error", err.Error()))
		p.FontSize = def.FontSize
	}
	if err := s.read(ctx, KeyShowChords, &p.ShowChords); err != nil {
		return def, err
	}
	if err := s.read(ctx, KeyPanelVisible, &p.PanelVisible); err != nil {
		return def, err
	}

	pedal := def.Pedal
	for key, dest := range map[string]*string{
		KeyPedalPrevPage: &pedal.PrevPage,
		KeyPedalNextPage: &pedal.NextPage,
		KeyPedalPrevSong: &pedal.PrevSong,
		KeyPedalNextSong: &pedal.NextSong,
	} {
		if err := s.read(ctx, key, dest); err != nil {
			return def, err
		}
	}
	if err := pedal.Validate(); err != nil {
		s.logger.Warn("prefs: invalid pedal bindings, using defaults",
			slog.String("error", err.Error()))
		pedal = def.Pedal
	}
	p.Pedal = pedal
	return p, nil
}

// read decodes key into dest, leaving dest untouched when the key is missing
// or holds a value of the wrong type.
func (s *Store) read(ctx context.Context, key string, dest any) error {
	err := s.local.Get(ctx, key, dest)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, apperr.ErrNotFound):
		return nil
	case errors.Is(err, localstore.ErrDecode):
		s.logger.Warn("prefs: ignoring undecodable value",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return nil
	}
	return fmt.Errorf("prefs: load %s: %w", key, err)
}

// SetFontSize persists the font size. Values outside the bounds are rejected.
func (s *Store) SetFontSize(ctx context.Context, size int) error {
	if err := validation.Validate(size, validation.Required, validation.Min(MinFontSize), validation.Max(MaxFontSize)); err != nil {
		return fmt.Errorf("prefs: font size %d: %w", size, apperr.ErrInvalid)
	}
	return s.set(ctx, KeyFontSize, size)
}

// SetShowChords persists chord visibility.
func (s *Store) SetShowChords(ctx context.Context, show bool) error {
	return s.set(ctx, KeyShowChords, show)
}

// SetPanelVisible persists panel visibility.
func (s *Store) SetPanelVisible(ctx context.Context, visible bool) error {
	return s.set(ctx, KeyPanelVisible, visible)
}

// SetPedal persists all four bindings in one batch.
func (s *Store) SetPedal(ctx context.Context, p Pedal) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("prefs: %w: %w", apperr.ErrInvalid, err)
	}
	b := &localstore.Batch{}
	b.Set(KeyPedalPrevPage, p.PrevPage)
	b.Set(KeyPedalNextPage, p.NextPage)
	b.Set(KeyPedalPrevSong, p.PrevSong)
	b.Set(KeyPedalNextSong, p.NextSong)
	if err := s.local.Commit(ctx, b); err != nil {
		return fmt.Errorf("prefs: save pedal: %w", err)
	}
	return nil
}

func (s *Store) set(ctx context.Context, key string, v any) error {
	if err := s.local.Set(ctx, key, v); err != nil {
		return fmt.Errorf("prefs: save %s: %w", key, err)
	}
	return nil
}
