// Package parser extracts frontmatter, title, artist, key and tags from song
// files. Song files are Markdown with optional YAML frontmatter and a body of
// lyrics with bracketed chord annotations.
package parser

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/setlist/internal/transpose"
)

// Result holds the output of parsing a song file.
type Result struct {
	Frontmatter map[string]any
	Body        string
	Title       string
	Artist      string
	Key         string
	Tags        []string
	Chords      []string
}

// Parse extracts frontmatter and song metadata from raw file bytes. When the
// title comes from a leading H1 heading, that heading is removed from Body.
func Parse(data []byte) (*Result, error) {
	fm, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}

	title := stringField(fm, "title")
	if title == "" {
		title, body = leadingHeading(body)
	}

	return &Result{
		Frontmatter: fm,
		Body:        body,
		Title:       title,
		Artist:      firstNonEmpty(stringField(fm, "artist"), stringField(fm, "author")),
		Key:         stringField(fm, "key"),
		Tags:        extractTags(fm),
		Chords:      transpose.Extract(body).Sorted(),
	}, nil
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the body. If no frontmatter is found the entire content is body.
func splitFrontmatter(data []byte) (map[string]any, string, error) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data), nil
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data), nil
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]any
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		// Invalid YAML: the whole file is body.
		return nil, string(data), nil
	}

	return fm, body, nil
}

// extractTags reads the frontmatter "tags" field, either a YAML list or a
// comma-separated string. Tags are lowercased and deduplicated.
func extractTags(fm map[string]any) []string {
	var raw []string
	switch v := fm["tags"].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	case string:
		raw = strings.Split(v, ",")
	}

	seen := make(map[string]struct{}, len(raw))
	out := []string{}
	for _, t := range raw {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// leadingHeading returns the text of an H1 on the first non-blank line and the
// body without it. Without such a heading the body is returned unchanged.
func leadingHeading(body string) (string, string) {
	rest := strings.TrimLeft(body, "\n\r")
	line, after, _ := strings.Cut(rest, "\n")
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "# ") {
		return "", body
	}
	return strings.TrimSpace(trimmed[2:]), strings.TrimLeft(after, "\n\r")
}

func stringField(fm map[string]any, key string) string {
	switch v := fm[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
