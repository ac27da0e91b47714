package transpose

import (
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestChord_Examples(t *testing.T) {
	cases := []struct {
		chord string
		n     int
		want  string
	}{
		{"C", 0, "C"},
		{"G", 3, "A#"},
		{"Dbmaj7", 2, "Ebmaj7"},
		{"E/G#", 1, "F/A"},
		{"Am7", -2, "Gm7"},
		{"B", 1, "C"},
		{"C", -1, "B"},
		{"F#m7b5", 12, "F#m7b5"},
		{"Bbsus4/F", 2, "Csus4/G"},
		{"A", 25, "A#"},
	}
	for _, c := range cases {
		if got := Chord(c.chord, c.n); got != c.want {
			t.Errorf("Chord(%q, %d) = %q, want %q", c.chord, c.n, got, c.want)
		}
	}
}

func TestChord_ZeroIsByteIdentical(t *testing.T) {
	for _, c := range []string{"Db", "Hm7", "", "E#", "C/", "xyz"} {
		if got := Chord(c, 0); got != c {
			t.Errorf("Chord(%q, 0) = %q", c, got)
		}
	}
}

func TestChord_UnknownRootUnchanged(t *testing.T) {
	for _, c := range []string{"H7", "N.C.", "x", "", "/G"} {
		if got := Chord(c, 5); got != c {
			t.Errorf("Chord(%q, 5) = %q, want unchanged", c, got)
		}
	}
}

func TestChord_BassWithoutRootKept(t *testing.T) {
	if got := Chord("C/x", 2); got != "D/x" {
		t.Errorf("got %q, want D/x", got)
	}
}

func TestCanonical(t *testing.T) {
	if got := Canonical("Dbmaj7/Ab"); got != "C#maj7/G#" {
		t.Errorf("Canonical = %q", got)
	}
	if got := Canonical("Cb"); got != "B" {
		t.Errorf("Canonical(Cb) = %q", got)
	}
}

func TestIsChord(t *testing.T) {
	chords := []string{"C", "Am", "F#m7", "Bbmaj7", "Dsus4", "C7sus4", "Am7b5", "C9(#11)", "G/B", "Ebm/Gb", "Cadd9", "Bdim", "Caug", "E+", "A7#9"}
	for _, c := range chords {
		if !IsChord(c) {
			t.Errorf("IsChord(%q) = false", c)
		}
	}
	notChords := []string{"Chorus", "Verse", "Intro:", "x2", "H", "Am/", "C(9/11)", "Bridge", "Dude"}
	for _, c := range notChords {
		if IsChord(c) {
			t.Errorf("IsChord(%q) = true", c)
		}
	}
}

func TestContent_TransposesOnlyAnnotations(t *testing.T) {
	in := "[Verse]\n[G]A man walked [D/F#]by the [Em]sea\n\nA plain line with C and D"
	want := "[Verse]\n[A]A man walked [E/G#]by the [F#m]sea\n\nA plain line with C and D"
	if got := Content(in, 2); got != want {
		t.Errorf("Content =\n%q\nwant\n%q", got, want)
	}
}

func TestContent_MultipleChordsInOneAnnotation(t *testing.T) {
	if got := Content("[Am  G C]", 1); got != "[A#m  G# C#]" {
		t.Errorf("got %q", got)
	}
	if got := Content("[Intro Am]", 1); got != "[Intro A#m]" {
		t.Errorf("got %q", got)
	}
}

func TestContent_ZeroIsIdentity(t *testing.T) {
	in := "[Db]weird [spacing]\r\n  kept"
	if got := Content(in, 0); got != in {
		t.Errorf("got %q", got)
	}
}

func TestExtract(t *testing.T) {
	got := Extract("[C]one [G/B]two\n[Chorus]\n[C] three [Am F]")
	want := []string{"Am", "C", "F", "G/B"}
	if strings.Join(got.Sorted(), ",") != strings.Join(want, ",") {
		t.Errorf("Extract = %v, want %v", got.Sorted(), want)
	}
	if got.Has("Chorus") {
		t.Error("section label extracted as chord")
	}
}

func TestStripChords(t *testing.T) {
	in := "[Chorus]\n[G]Hello [D]world\n[Am]\nend"
	want := "[Chorus]\nHello world\n\nend"
	if got := StripChords(in); got != want {
		t.Errorf("StripChords = %q, want %q", got, want)
	}
}

func TestKeyLabel(t *testing.T) {
	if got := KeyLabel("Am", 3); got != "Cm" {
		t.Errorf("KeyLabel = %q", got)
	}
	if got := KeyLabel("  ", 3); got != "" {
		t.Errorf("KeyLabel(blank) = %q", got)
	}
}

// Generators for property-based testing.

func chordGenerator() *rapid.Generator[string] {
	return rapid.Custom(func(t *rapid.T) string {
		root := rapid.SampledFrom(append(sharpScale[:], "Db", "Eb", "Gb", "Ab", "Bb")).Draw(t, "root")
		quality := rapid.SampledFrom([]string{"", "m", "7", "m7", "maj7", "sus4", "dim", "add9", "m7b5", "9(#11)"}).Draw(t, "quality")
		chord := root + quality
		if rapid.Bool().Draw(t, "slash") {
			chord += "/" + rapid.SampledFrom(append(flatScale[:], "F#", "G#")).Draw(t, "bass")
		}
		return chord
	})
}

func contentGenerator() *rapid.Generator[string] {
	piece := rapid.OneOf(
		rapid.StringMatching(`[A-Za-z ,.']{0,12}`),
		rapid.Map(chordGenerator(), func(c string) string { return "[" + c + "]" }),
		rapid.SampledFrom([]string{"\n", "\n\n", "[Chorus]", " A ", "[", "]"}),
	)
	return rapid.Map(rapid.SliceOfN(piece, 0, 30), func(parts []string) string {
		return strings.Join(parts, "")
	})
}

func TestProperty_RoundTripCanonical(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := chordGenerator().Draw(t, "chord")
		n := rapid.IntRange(-30, 30).Draw(t, "n")
		back := Chord(Chord(c, n), -n)
		if Canonical(back) != Canonical(Chord(c, 0)) {
			t.Fatalf("round trip of %q by %d gave %q", c, n, back)
		}
	})
}

func TestProperty_NewlineCountPreserved(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := contentGenerator().Draw(t, "text")
		n := rapid.IntRange(-12, 12).Draw(t, "n")
		if strings.Count(Content(text, n), "\n") != strings.Count(text, "\n") {
			t.Fatalf("newline count changed for %q", text)
		}
	})
}

func TestProperty_ExtractCommutesWithTranspose(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := contentGenerator().Draw(t, "text")
		n := rapid.IntRange(-12, 12).Draw(t, "n")

		want := make(Set)
		for c := range Extract(text) {
			want[Chord(c, n)] = struct{}{}
		}
		got := Extract(Content(text, n))
		if strings.Join(got.Sorted(), ",") != strings.Join(want.Sorted(), ",") {
			t.Fatalf("extract(transpose) = %v, transpose(extract) = %v", got.Sorted(), want.Sorted())
		}
	})
}
