// Package id generates record identifiers for the document store.
package id

import (
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Generate returns prefix + "-" + a 21 character NanoID, e.g. "song-V1StGXR8_Z5jdHi6B-myT".
// An empty prefix yields the bare NanoID.
func Generate(prefix string) (string, error) {
	n, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("id: generate nanoid: %w", err)
	}
	if prefix == "" {
		return n, nil
	}
	return prefix + "-" + n, nil
}

// PrefixFor derives an id prefix from a collection name: "songs" → "song",
// "setlists" → "setlist".
func PrefixFor(collection string) string {
	if len(collection) > 1 {
		return strings.TrimSuffix(collection, "s")
	}
	return collection
}
