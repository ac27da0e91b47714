package tui

import "github.com/charmbracelet/lipgloss"

type palette struct {
	title  lipgloss.Style
	meta   lipgloss.Style
	key    lipgloss.Style
	body   lipgloss.Style
	panel  lipgloss.Style
	err    lipgloss.Style
	status lipgloss.Style
}

var styles = newPalette("#7D56F4", "#626262", "#04B575", "#FF0000")

func newPalette(accent, muted, ok, bad string) palette {
	return palette{
		title:  lipgloss.NewStyle().Foreground(lipgloss.Color(accent)).Bold(true),
		meta:   lipgloss.NewStyle().Foreground(lipgloss.Color(muted)).Italic(true),
		key:    lipgloss.NewStyle().Foreground(lipgloss.Color(ok)).Bold(true),
		body:   lipgloss.NewStyle(),
		panel:  lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color(muted)).Padding(0, 1),
		err:    lipgloss.NewStyle().Foreground(lipgloss.Color(bad)).Bold(true),
		status: lipgloss.NewStyle().Foreground(lipgloss.Color(muted)),
	}
}

// bodyStyle approximates font size in a terminal: larger sizes get more
// padding and bold text.
func bodyStyle(fontSize int) lipgloss.Style {
	pad := max(0, (fontSize-8)/6)
	s := styles.body.Padding(pad/2, pad)
	if fontSize >= 24 {
		s = s.Bold(true)
	}
	return s
}
