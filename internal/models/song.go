package models

import "time"

// FileMeta describes one song file in the library directory.
type FileMeta struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Song is a parsed song file from the on-disk library.
type Song struct {
	Path        string         `json:"path"`
	Content     []byte         `json:"-"`
	Body        string         `json:"body"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	Title       string         `json:"title,omitempty"`
	Artist      string         `json:"artist,omitempty"`
	Key         string         `json:"key,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Chords      []string       `json:"chords,omitempty"`
	Checksum    string         `json:"checksum"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Fields returns the song as record fields for the songs collection.
func (s *Song) Fields() map[string]any {
	return map[string]any{
		"title":      s.Title,
		"artist":     s.Artist,
		"key":        s.Key,
		"content":    s.Body,
		"tags":       anySlice(s.Tags),
		"chords":     anySlice(s.Chords),
		"sourcePath": s.Path,
		"checksum":   s.Checksum,
	}
}

func anySlice(in []string) []any {
	out := make([]any, 0, len(in))
	for _, v := range in {
		out = append(out, v)
	}
	return out
}

// SetlistItem is one entry of a setlist record's "songs" field.
type SetlistItem struct {
	SongID    string `json:"songId"`
	Transpose int    `json:"transpose"`
}
