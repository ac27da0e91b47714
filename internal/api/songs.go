package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/starford/setlist/internal/apperr"
)

const maxSongBytes = 1 << 20

// SongLibrary stores uploaded song files and imports them into the songs
// collection.
type SongLibrary interface {
	Save(ctx context.Context, rel string, content []byte, overwrite bool) (string, error)
}

// SongHandler accepts song file uploads.
type SongHandler struct {
	lib SongLibrary
}

// NewSongHandler creates a handler backed by lib.
func NewSongHandler(lib SongLibrary) *SongHandler {
	return &SongHandler{lib: lib}
}

// safeName validates that name is a relative Markdown path without traversal.
func safeName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("filename is required")
	}
	name = strings.ReplaceAll(name, "\\", "/")
	cleaned := path.Clean(name)
	if path.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid filename: %s", name)
	}
	if !strings.HasSuffix(cleaned, ".md") {
		return "", fmt.Errorf("song files must end in .md: %s", name)
	}
	return cleaned, nil
}

// Upload handles POST /api/songs (multipart/form-data, field "file").
// The optional form field "path" places the file in a subdirectory and
// "overwrite=true" replaces an existing file.
//
//	@Summary		Upload a Markdown song file
//	@Tags			songs
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file		formData	file	true	"Song file (.md)"
//	@Param			path		formData	string	false	"Target path in the library"
//	@Param			overwrite	formData	bool	false	"Replace an existing file"
//	@Success		201			{object}	SongUploadResponse
//	@Failure		400			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/songs [post]
func (h *SongHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSongBytes+64<<10)

	if err := r.ParseMultipartForm(maxSongBytes); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or invalid multipart")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing 'file' field in multipart form")
		return
	}
	defer file.Close()

	name := r.FormValue("path")
	if name == "" {
		name = header.Filename
	}
	rel, err := safeName(name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	content, err := io.ReadAll(io.LimitReader(file, maxSongBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read file")
		return
	}
	if len(content) > maxSongBytes {
		writeError(w, http.StatusBadRequest, "file too large")
		return
	}

	songID, err := h.lib.Save(r.Context(), rel, content, r.FormValue("overwrite") == "true")
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrAlreadyExists):
			writeError(w, http.StatusConflict, "song already exists")
		case errors.Is(err, apperr.ErrInvalid):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			slog.Error("upload song failed", slog.String("path", rel), slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusCreated, SongUploadResponse{
		ID:   songID,
		Path: rel,
		Size: int64(len(content)),
	})
}
