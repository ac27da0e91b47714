package api

import "github.com/starford/setlist/internal/models"

// WriteRequest is the request body for creating or updating a record.
type WriteRequest struct {
	Fields map[string]any `json:"fields" validate:"required"`
}

// CreateResponse is returned after a record is created.
type CreateResponse struct {
	ID string `json:"id" example:"song-V1StGXR8_Z5jdHi6B" validate:"required"`
}

// RecordListResponse wraps a collection query result.
type RecordListResponse struct {
	Records []models.Record `json:"records" validate:"required"`
	Total   int             `json:"total" example:"42"`
}

// TransposeRequest is the request body for POST /api/transpose.
type TransposeRequest struct {
	Content   string `json:"content" example:"[G]Amazing [C]grace" validate:"required"`
	Semitones int    `json:"semitones" example:"2" validate:"gte=-48,lte=48"`
}

// TransposeResponse carries transposed content and the chords it uses.
type TransposeResponse struct {
	Content string   `json:"content" example:"[A]Amazing [D]grace"`
	Chords  []string `json:"chords" example:"A,D"`
}

// SongUploadResponse is returned after a song file upload.
type SongUploadResponse struct {
	ID   string `json:"id" example:"song-3f2a9c1d0b7e4a55" validate:"required"`
	Path string `json:"path" example:"hymns/amazing-grace.md" validate:"required"`
	Size int64  `json:"size" example:"812"`
}
