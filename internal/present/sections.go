package present

import (
	"regexp"
	"strings"
)

var (
	sectionBreak  = regexp.MustCompile(`\n(?:[ \t]*\n)+`)
	leadingBlanks = regexp.MustCompile(`^(?:[ \t]*\n)+`)
)

// Section is one page of the presentation.
type Section struct {
	SongIndex int
	PartIndex int
	Text      string
}

// Split breaks song content into parts separated by one or more blank lines.
// Content without text yields a single empty part.
func Split(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = leadingBlanks.ReplaceAllString(content, "")
	content = strings.TrimRight(content, " \t\n")
	if content == "" {
		return []string{""}
	}
	return sectionBreak.Split(content, -1)
}

// Linearize concatenates the sections of every song in setlist order.
func Linearize(s *Snapshot) []Section {
	var out []Section
	for i, song := range s.Songs {
		for j, part := range Split(song.Content) {
			out = append(out, Section{SongIndex: i, PartIndex: j, Text: part})
		}
	}
	return out
}
