// Package transpose shifts chord annotations in song content by semitones.
//
// Content is line-oriented text with bracket-delimited annotations such as
// "[Am7]Hello [G/B]world". Only tokens inside brackets that fully match the
// chord grammar are treated as chords; lyric text is never touched.
package transpose

import (
	"regexp"
	"strings"
)

var (
	sharpScale = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}
	flatScale  = [12]string{"C", "Db", "D", "Eb", "E", "F", "Gb", "G", "Ab", "A", "Bb", "B"}
)

// pitchIndex maps every accepted root spelling to its position on the sharp scale.
var pitchIndex = map[string]int{
	"C": 0, "B#": 0,
	"C#": 1, "Db": 1,
	"D": 2,
	"D#": 3, "Eb": 3,
	"E": 4, "Fb": 4,
	"F": 5, "E#": 5,
	"F#": 6, "Gb": 6,
	"G": 7,
	"G#": 8, "Ab": 8,
	"A": 9,
	"A#": 10, "Bb": 10,
	"B": 11, "Cb": 11,
}

// rootRe detects a leading pitch class. Everything after it is the quality.
var rootRe = regexp.MustCompile(`^[A-G](?:#|b)?`)

// chordRe is the chord grammar used to decide whether a bracketed token is a
// chord. Groups, in match order:
//
//  1. root     [A-G] with an optional # or b
//  2. quality  an optional base quality, tried in the order listed
//     (maj before m, sus before s-less forms), an optional extension
//     number, up to three alterations (b5, #9, add9, sus4, ...) and an
//     optional parenthesized list without spaces or slashes
//  3. bass     an optional /root
//
// Alternation is leftmost-first, so the listed order is the precedence.
var chordRe = regexp.MustCompile(
	`^([A-G](?:#|b)?)` +
		`((?:maj|min|dim|aug|sus|add|m|M|\+|°|ø)?` +
		`(?:\d{1,2})?` +
		`(?:(?:maj|sus|add|#|b|\+|-)\d{1,2}){0,3}` +
		`(?:\([^()\s/]*\))?)` +
		`(?:/([A-G](?:#|b)?))?$`,
)

// IsChord reports whether token is a complete chord symbol under the grammar.
func IsChord(token string) bool {
	return chordRe.MatchString(token)
}

// Chord transposes a single chord symbol by semitones.
//
// A slash splits the main chord from the bass note and both are shifted. The
// quality suffix is carried through verbatim. Tokens without a recognizable
// root are returned unchanged, and semitones == 0 returns chord as is.
func Chord(chord string, semitones int) string {
	if semitones == 0 {
		return chord
	}
	main, bass, hasBass := strings.Cut(chord, "/")

	root := rootRe.FindString(main)
	if root == "" {
		return chord
	}
	out := shift(root, semitones) + main[len(root):]

	if hasBass {
		if bassRoot := rootRe.FindString(bass); bassRoot != "" {
			bass = shift(bassRoot, semitones) + bass[len(bassRoot):]
		}
		out += "/" + bass
	}
	return out
}

// Canonical respells chord with sharp-scale roots, e.g. "Dbmaj7/Ab" becomes
// "C#maj7/G#". Two chords are the same chord when their canonical forms match.
func Canonical(chord string) string {
	main, bass, hasBass := strings.Cut(chord, "/")
	root := rootRe.FindString(main)
	if root == "" {
		return chord
	}
	out := sharpScale[pitchIndex[root]] + main[len(root):]
	if hasBass {
		if bassRoot := rootRe.FindString(bass); bassRoot != "" {
			bass = sharpScale[pitchIndex[bassRoot]] + bass[len(bassRoot):]
		}
		out += "/" + bass
	}
	return out
}

// KeyLabel returns the musical key label after transposition. An empty key
// stays empty.
func KeyLabel(key string, semitones int) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	return Chord(key, semitones)
}

// shift moves root by semitones around the twelve-tone circle. Roots written
// with a flat are rendered from the flat scale; all others from the sharp scale.
func shift(root string, semitones int) string {
	idx, ok := pitchIndex[root]
	if !ok {
		return root
	}
	next := ((idx+semitones)%12 + 12) % 12
	if strings.HasSuffix(root, "b") {
		return flatScale[next]
	}
	return sharpScale[next]
}
