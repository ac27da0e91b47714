package mcpserver

// SongFormatContract describes the Markdown song format that LLM consumers
// should follow when creating or importing songs.
const SongFormatContract = `# Song Format Contract

Every song file in the library MUST follow this structure.

## Structure

` + "```" + `markdown
---
title: Amazing Grace          # REQUIRED - shown in lists and on stage
artist: John Newton           # OPTIONAL - "author" is accepted too
key: G                        # OPTIONAL - original key, e.g. G, Bb, F#m
tags: [hymn, communion]       # OPTIONAL - YAML list or comma string
---

[Verse 1]
[G]Amazing [G7]grace, how [C]sweet the [G]sound

[Chorus]
[D/F#]That saved a [Em]wretch like [C]me
` + "```" + `

## Rules

1. **Chords** go in square brackets directly before the syllable they land on:
   ` + "`" + `[G]Amazing` + "`" + `. Only bracketed tokens that parse as chords are
   transposed; ` + "`" + `[Chorus]` + "`" + ` and other labels are left alone.
2. **Chord spelling**: root A-G, optional # or b, then any quality
   (` + "`" + `m` + "`" + `, ` + "`" + `7` + "`" + `, ` + "`" + `sus4` + "`" + `, ` + "`" + `maj7` + "`" + `). Slash chords use ` + "`" + `[C/E]` + "`" + `.
3. **Sections** are separated by one or more blank lines. Each section is one
   page on stage, so keep sections short enough to read at a glance.
4. **title** is required. Without it the first ` + "`" + `# Heading` + "`" + ` is used, then
   the file name.
5. **File paths** end with ` + "`" + `.md` + "`" + ` and use forward slashes.
6. **Encoding** is UTF-8 with a trailing newline. Lyrics may use any language;
   frontmatter keys and file names MUST be in English (Latin characters).

## Example

` + "```" + `markdown
---
title: Be Thou My Vision
key: Eb
tags: [hymn]
---

[Eb]Be thou my [Ab]vision, O [Eb]Lord of my [Bb]heart

[Eb]Naught be all [Cm]else to me, [Ab]save that thou [Bb]art
` + "```" + `
`
