package transpose

import (
	"regexp"
	"sort"
	"strings"
)

var (
	// annotationRe matches one bracketed annotation on a single line.
	annotationRe = regexp.MustCompile(`\[([^\[\]\n]*)\]`)
	tokenRe      = regexp.MustCompile(`\S+`)
)

// Set is an unordered collection of chord symbols.
type Set map[string]struct{}

// Has reports whether chord is in the set.
func (s Set) Has(chord string) bool {
	_, ok := s[chord]
	return ok
}

// Sorted returns the chords in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Content transposes every chord annotation in text by semitones. Lyrics,
// whitespace, line breaks and non-chord annotations like "[Chorus]" are
// preserved exactly.
func Content(text string, semitones int) string {
	if semitones == 0 {
		return text
	}
	return annotationRe.ReplaceAllStringFunc(text, func(annotation string) string {
		inner := annotation[1 : len(annotation)-1]
		inner = tokenRe.ReplaceAllStringFunc(inner, func(tok string) string {
			if !IsChord(tok) {
				return tok
			}
			return Chord(tok, semitones)
		})
		return "[" + inner + "]"
	})
}

// Extract returns the set of chord symbols annotated in text.
func Extract(text string) Set {
	out := make(Set)
	for _, m := range annotationRe.FindAllStringSubmatch(text, -1) {
		for _, tok := range strings.Fields(m[1]) {
			if IsChord(tok) {
				out[tok] = struct{}{}
			}
		}
	}
	return out
}

// StripChords removes annotations that consist only of chords. Section labels
// and other annotations stay; the number of lines never changes.
func StripChords(text string) string {
	return annotationRe.ReplaceAllStringFunc(text, func(annotation string) string {
		toks := strings.Fields(annotation[1 : len(annotation)-1])
		if len(toks) == 0 {
			return annotation
		}
		for _, tok := range toks {
			if !IsChord(tok) {
				return annotation
			}
		}
		return ""
	})
}
