// Package tui is the terminal presentation session. Page-turner pedals that
// send arrow or page keys drive it unmodified.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/starford/setlist/internal/present"
)

type keyMap struct {
	transposeUp   key.Binding
	transposeDown key.Binding
	panel         key.Binding
	chords        key.Binding
	fontUp        key.Binding
	fontDown      key.Binding
	quit          key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		transposeUp: key.NewBinding(
			key.WithKeys("+", "="),
			key.WithHelp("+", "transpose up"),
		),
		transposeDown: key.NewBinding(
			key.WithKeys("-", "_"),
			key.WithHelp("-", "transpose down"),
		),
		panel: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "panel"),
		),
		chords: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "chords"),
		),
		fontUp: key.NewBinding(
			key.WithKeys("]"),
			key.WithHelp("]", "larger"),
		),
		fontDown: key.NewBinding(
			key.WithKeys("["),
			key.WithHelp("[", "smaller"),
		),
		quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.transposeUp, k.transposeDown, k.panel, k.chords, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.transposeUp, k.transposeDown},
		{k.panel, k.chords, k.fontUp, k.fontDown},
		{k.quit},
	}
}

// prefSavedMsg carries the outcome of persisting a preference change.
type prefSavedMsg struct {
	name string
	err  error
}

// Model is the bubbletea model of one presentation session.
type Model struct {
	ctx     context.Context
	session string
	nav     *present.Navigator
	err     error
	logger  *slog.Logger
	keys    keyMap
	help    help.Model
	width   int
	height  int
	notice  string
}

// New creates a session over nav. A nil nav with a non-nil err shows the
// error view.
func New(ctx context.Context, nav *present.Navigator, err error, logger *slog.Logger) *Model {
	if logger == nil {
		logger = slog.Default()
	}
	if nav == nil && err == nil {
		err = present.ErrSnapshotUnavailable
	}
	session := uuid.NewString()
	return &Model{
		ctx:     ctx,
		session: session,
		nav:     nav,
		err:     err,
		logger:  logger.With(slog.String("session", session)),
		keys:    newKeyMap(),
		help:    help.New(),
	}
}

// Session returns the session id used in log records.
func (m *Model) Session() string { return m.session }

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	if m.err != nil {
		m.logger.Warn("presentation unavailable", slog.String("error", m.err.Error()))
		return nil
	}
	m.logger.Info("presentation started", slog.Int("sections", m.nav.Sections()))
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case prefSavedMsg:
		if msg.err != nil {
			m.notice = fmt.Sprintf("could not save %s", msg.name)
			m.logger.Warn("preference not saved",
				slog.String("preference", msg.name),
				slog.String("error", msg.err.Error()))
		}
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.quit) {
			m.logger.Info("presentation closed")
			return m, tea.Quit
		}
		if m.err != nil {
			return m, nil
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.notice = ""
	if action, moved := m.nav.HandleKey(msg.String()); action != present.ActionNone {
		m.logger.Debug("pedal",
			slog.String("action", action.String()),
			slog.Bool("moved", moved),
			slog.Int("section", m.nav.Index()))
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.transposeUp):
		m.nav.AdjustTranspose(+1)
	case key.Matches(msg, m.keys.transposeDown):
		m.nav.AdjustTranspose(-1)
	case key.Matches(msg, m.keys.panel):
		return m, m.save("panel", m.nav.TogglePanel)
	case key.Matches(msg, m.keys.chords):
		return m, m.save("chords", m.nav.ToggleChords)
	case key.Matches(msg, m.keys.fontUp):
		size := m.nav.Preferences().FontSize + 2
		return m, m.save("font size", func(ctx context.Context) error { return m.nav.SetFontSize(ctx, size) })
	case key.Matches(msg, m.keys.fontDown):
		size := m.nav.Preferences().FontSize - 2
		return m, m.save("font size", func(ctx context.Context) error { return m.nav.SetFontSize(ctx, size) })
	}
	return m, nil
}

// save applies a preference change synchronously; only its persistence
// result is reported back as a message.
func (m *Model) save(name string, apply func(context.Context) error) tea.Cmd {
	err := apply(m.ctx)
	return func() tea.Msg { return prefSavedMsg{name: name, err: err} }
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.err != nil {
		return m.errorView()
	}
	v := m.nav.View()

	var b strings.Builder
	header := styles.title.Render(v.Title)
	if v.Artist != "" {
		header += styles.meta.Render("  " + v.Artist)
	}
	b.WriteString(header)
	b.WriteString("\n\n")

	body := bodyStyle(v.FontSize).Render(v.Text)
	if v.PanelVisible {
		body = lipgloss.JoinHorizontal(lipgloss.Top, body, "  ", styles.panel.Render(panel(v)))
	}
	b.WriteString(body)
	b.WriteString("\n\n")

	status := fmt.Sprintf("%s · song %d/%d · part %d/%d · page %d/%d",
		v.SetlistName, v.SongIndex+1, v.SongCount, v.Part+1, v.PartCount, v.Section+1, v.SectionCount)
	b.WriteString(styles.status.Render(status))
	if m.notice != "" {
		b.WriteString("  ")
		b.WriteString(styles.err.Render(m.notice))
	}
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func panel(v present.View) string {
	lines := []string{}
	if v.Key != "" {
		lines = append(lines, "Key  "+styles.key.Render(v.Key))
	}
	lines = append(lines,
		fmt.Sprintf("Transpose  %+d", v.Transpose),
		fmt.Sprintf("Font  %d", v.FontSize),
	)
	if !v.ShowChords {
		lines = append(lines, "Chords hidden")
	}
	return strings.Join(lines, "\n")
}

func (m *Model) errorView() string {
	msg := m.err.Error()
	if errors.Is(m.err, present.ErrSnapshotUnavailable) {
		msg = "Data unavailable, regenerate.\nRun `setlist prepare <setlist-id>` while online."
	}
	return styles.err.Render(msg) + "\n\n" + styles.meta.Render("Press q to quit")
}

// Run starts the session on the terminal and blocks until it is closed.
func Run(ctx context.Context, m *Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
