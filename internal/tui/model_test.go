package tui

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/setlist/internal/prefs"
	"github.com/starford/setlist/internal/present"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSession(t *testing.T, w present.PreferenceWriter) (*Model, *present.Navigator) {
	t.Helper()
	snap := &present.Snapshot{
		SetlistID: "setlist-1",
		Name:      "Friday",
		Songs: []present.SongEntry{
			{SongID: "a", Title: "Amazing", Artist: "Trad", Key: "G", Content: "[G]one\n\n[C]two"},
			{SongID: "b", Title: "Blessed", Key: "D", Content: "[D]three"},
		},
	}
	nav, err := present.NewNavigator(snap, prefs.Defaults(), w)
	require.NoError(t, err)
	return New(context.Background(), nav, nil, quietLogger()), nav
}

func press(m *Model, k string) tea.Cmd {
	var msg tea.KeyMsg
	switch k {
	case "right":
		msg = tea.KeyMsg{Type: tea.KeyRight}
	case "left":
		msg = tea.KeyMsg{Type: tea.KeyLeft}
	case "down":
		msg = tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		msg = tea.KeyMsg{Type: tea.KeyUp}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
	_, cmd := m.Update(msg)
	return cmd
}

func TestModel_PedalNavigation(t *testing.T) {
	m, nav := newSession(t, nil)
	assert.NotEmpty(t, m.Session())

	press(m, "right")
	assert.Equal(t, 1, nav.Index())
	press(m, "down")
	assert.Equal(t, 2, nav.Index())
	press(m, "up")
	assert.Equal(t, 0, nav.Index())
	press(m, "x")
	assert.Equal(t, 0, nav.Index(), "unbound keys are ignored")
}

func TestModel_TransposeAndView(t *testing.T) {
	m, nav := newSession(t, nil)
	press(m, "+")
	press(m, "+")
	assert.Equal(t, 2, nav.Transpose(0))

	out := m.View()
	assert.Contains(t, out, "Amazing")
	assert.Contains(t, out, "[A]one")
	assert.Contains(t, out, "Key")
	assert.Contains(t, out, "+2")

	press(m, "-")
	assert.Equal(t, 1, nav.Transpose(0))
}

type failingWriter struct{}

var errDiskFull = errors.New("disk full")

func (failingWriter) SetFontSize(context.Context, int) error      { return errDiskFull }
func (failingWriter) SetShowChords(context.Context, bool) error   { return errDiskFull }
func (failingWriter) SetPanelVisible(context.Context, bool) error { return errDiskFull }

func TestModel_PreferenceErrorsAreShown(t *testing.T) {
	m, nav := newSession(t, failingWriter{})

	cmd := press(m, "c")
	require.NotNil(t, cmd)
	m.Update(cmd())

	assert.False(t, nav.Preferences().ShowChords, "state changes even when saving fails")
	assert.Contains(t, m.View(), "could not save chords")
	assert.NotContains(t, m.View(), "[G]")
}

func TestModel_PanelToggle(t *testing.T) {
	m, _ := newSession(t, nil)
	require.Contains(t, m.View(), "Transpose")
	cmd := press(m, "p")
	m.Update(cmd())
	assert.NotContains(t, m.View(), "Transpose")
}

func TestModel_Quit(t *testing.T) {
	m, _ := newSession(t, nil)
	cmd := press(m, "q")
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestModel_ErrorView(t *testing.T) {
	m := New(context.Background(), nil, present.ErrSnapshotUnavailable, quietLogger())
	assert.Nil(t, m.Init())
	assert.Contains(t, m.View(), "regenerate")

	assert.Nil(t, press(m, "right"), "navigation is disabled")
	cmd := press(m, "q")
	require.NotNil(t, cmd)
}
