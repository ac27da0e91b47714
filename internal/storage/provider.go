// Package storage is the song library file-system abstraction.
package storage

import (
	"errors"

	"github.com/starford/setlist/internal/models"
)

// MaxFileSize caps the size of a song file. Larger files are never read or
// written.
const MaxFileSize = 1 << 20

var (
	// ErrOutsideRoot is returned for paths that are absolute or escape the
	// library root.
	ErrOutsideRoot = errors.New("storage: path outside library root")
	// ErrTooLarge is returned for files above MaxFileSize.
	ErrTooLarge = errors.New("storage: file too large")
)

// Provider is the interface for library file operations. Paths are relative
// to the library root and use forward slashes.
type Provider interface {
	// List returns metadata for every song file under dir, ordered by path.
	List(dir string) ([]models.FileMeta, error)
	// Stat returns metadata for the song file at path.
	Stat(path string) (models.FileMeta, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path, creating parent directories.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Root returns the absolute library directory.
	Root() string
}
