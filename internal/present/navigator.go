package present

import (
	"context"
	"fmt"

	"github.com/starford/setlist/internal/prefs"
	"github.com/starford/setlist/internal/transpose"
)

// Action is a navigation transition triggered by a pedal key.
type Action int

const (
	ActionNone Action = iota
	ActionPrevPage
	ActionNextPage
	ActionPrevSong
	ActionNextSong
)

func (a Action) String() string {
	switch a {
	case ActionPrevPage:
		return "prev-page"
	case ActionNextPage:
		return "next-page"
	case ActionPrevSong:
		return "prev-song"
	case ActionNextSong:
		return "next-song"
	}
	return "none"
}

// PreferenceWriter persists preference changes made during a session.
type PreferenceWriter interface {
	SetFontSize(ctx context.Context, size int) error
	SetShowChords(ctx context.Context, show bool) error
	SetPanelVisible(ctx context.Context, visible bool) error
}

// Navigator is the per-session presentation state. It is not safe for
// concurrent use; the presenting UI owns it.
type Navigator struct {
	snap      *Snapshot
	sections  []Section
	firstOf   []int
	index     int
	transpose []int
	prefs     prefs.Preferences
	writer    PreferenceWriter
}

// NewNavigator starts a session at the first section with the snapshot's
// transposes. writer may be nil, in which case preference changes only live
// for the session.
func NewNavigator(snap *Snapshot, p prefs.Preferences, writer PreferenceWriter) (*Navigator, error) {
	if snap == nil {
		return nil, ErrSnapshotUnavailable
	}
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSnapshotUnavailable, err)
	}
	n := &Navigator{
		snap:      snap,
		sections:  Linearize(snap),
		firstOf:   make([]int, len(snap.Songs)),
		transpose: make([]int, len(snap.Songs)),
		prefs:     p,
		writer:    writer,
	}
	for i, s := range snap.Songs {
		n.transpose[i] = clamp(s.Transpose)
	}
	for i := len(n.sections) - 1; i >= 0; i-- {
		n.firstOf[n.sections[i].SongIndex] = i
	}
	return n, nil
}

// Index returns the current section index.
func (n *Navigator) Index() int { return n.index }

// SongIndex returns the setlist position owning the current section.
func (n *Navigator) SongIndex() int { return n.sections[n.index].SongIndex }

// Sections returns the number of sections in the session.
func (n *Navigator) Sections() int { return len(n.sections) }

// Transpose returns the session transpose of the song at songIndex.
func (n *Navigator) Transpose(songIndex int) int {
	if songIndex < 0 || songIndex >= len(n.transpose) {
		return 0
	}
	return n.transpose[songIndex]
}

// Preferences returns the session preferences.
func (n *Navigator) Preferences() prefs.Preferences { return n.prefs }

// NextSection moves one section forward. It reports whether the index moved.
func (n *Navigator) NextSection() bool {
	if n.index >= len(n.sections)-1 {
		return false
	}
	n.index++
	return true
}

// PrevSection moves one section back.
func (n *Navigator) PrevSection() bool {
	if n.index == 0 {
		return false
	}
	n.index--
	return true
}

// NextSong jumps to the first section of the following song.
func (n *Navigator) NextSong() bool {
	return n.jumpSong(n.SongIndex() + 1)
}

// PrevSong jumps to the first section of the preceding song.
func (n *Navigator) PrevSong() bool {
	return n.jumpSong(n.SongIndex() - 1)
}

func (n *Navigator) jumpSong(song int) bool {
	if song < 0 || song >= len(n.firstOf) {
		return false
	}
	n.index = n.firstOf[song]
	return true
}

// AdjustTranspose shifts the current song by delta semitones, clamped to
// [MinTranspose, MaxTranspose], and returns the new value.
func (n *Navigator) AdjustTranspose(delta int) int {
	song := n.SongIndex()
	n.transpose[song] = clamp(n.transpose[song] + delta)
	return n.transpose[song]
}

// TogglePanel flips panel visibility and persists it.
func (n *Navigator) TogglePanel(ctx context.Context) error {
	n.prefs.PanelVisible = !n.prefs.PanelVisible
	if n.writer == nil {
		return nil
	}
	return n.writer.SetPanelVisible(ctx, n.prefs.PanelVisible)
}

// ToggleChords flips chord visibility and persists it.
func (n *Navigator) ToggleChords(ctx context.Context) error {
	n.prefs.ShowChords = !n.prefs.ShowChords
	if n.writer == nil {
		return nil
	}
	return n.writer.SetShowChords(ctx, n.prefs.ShowChords)
}

// SetFontSize clamps size to the allowed range, applies it and persists it.
func (n *Navigator) SetFontSize(ctx context.Context, size int) error {
	n.prefs.FontSize = max(prefs.MinFontSize, min(prefs.MaxFontSize, size))
	if n.writer == nil {
		return nil
	}
	return n.writer.SetFontSize(ctx, n.prefs.FontSize)
}

// HandleKey maps a key identifier through the pedal bindings and applies the
// matching transition. Unbound keys return ActionNone and change nothing.
func (n *Navigator) HandleKey(key string) (Action, bool) {
	p := n.prefs.Pedal
	switch key {
	case "":
		return ActionNone, false
	case p.PrevPage:
		return ActionPrevPage, n.PrevSection()
	case p.NextPage:
		return ActionNextPage, n.NextSection()
	case p.PrevSong:
		return ActionPrevSong, n.PrevSong()
	case p.NextSong:
		return ActionNextSong, n.NextSong()
	}
	return ActionNone, false
}

// View is everything needed to render the current section.
type View struct {
	SetlistName  string
	SongIndex    int
	SongCount    int
	Section      int
	SectionCount int
	Part         int
	PartCount    int
	Title        string
	Artist       string
	Key          string
	Transpose    int
	Text         string
	FontSize     int
	ShowChords   bool
	PanelVisible bool
}

// View renders the current section with the owning song's transpose.
func (n *Navigator) View() View {
	sec := n.sections[n.index]
	song := n.snap.Songs[sec.SongIndex]
	t := n.transpose[sec.SongIndex]

	text := transpose.Content(sec.Text, t)
	if !n.prefs.ShowChords {
		text = transpose.StripChords(text)
	}
	parts := 0
	for _, s := range n.sections {
		if s.SongIndex == sec.SongIndex {
			parts++
		}
	}
	return View{
		SetlistName:  n.snap.Name,
		SongIndex:    sec.SongIndex,
		SongCount:    len(n.snap.Songs),
		Section:      n.index,
		SectionCount: len(n.sections),
		Part:         sec.PartIndex,
		PartCount:    parts,
		Title:        song.Title,
		Artist:       song.Artist,
		Key:          transpose.KeyLabel(song.Key, t),
		Transpose:    t,
		Text:         text,
		FontSize:     n.prefs.FontSize,
		ShowChords:   n.prefs.ShowChords,
		PanelVisible: n.prefs.PanelVisible,
	}
}
