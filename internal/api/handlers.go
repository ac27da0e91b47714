package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/setlist/internal/apperr"
	"github.com/starford/setlist/internal/models"
	"github.com/starford/setlist/internal/remote"
	"github.com/starford/setlist/internal/transpose"
)

// Store is the document store served by the API.
type Store interface {
	List(ctx context.Context, q remote.Query) ([]models.Record, error)
	Get(ctx context.Context, collection, id string) (models.Record, error)
	Create(ctx context.Context, collection string, fields map[string]any) (string, error)
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	Subscribe(ctx context.Context, q remote.Query) (*remote.Subscription, error)
}

// Handler holds API route handlers.
type Handler struct {
	store    Store
	validate *Validator
}

// NewHandler creates a new Handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store, validate: NewValidator()}
}

// collection returns the validated {name} URL parameter, writing a 400 and
// returning false when it is malformed.
func (h *Handler) collection(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := chi.URLParam(r, "name")
	if err := h.validate.Collection(name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return name, true
}

// decodeWrite reads and validates a WriteRequest body.
func (h *Handler) decodeWrite(w http.ResponseWriter, r *http.Request) (WriteRequest, bool) {
	var req WriteRequest
	if !readJSON(w, r, &req) {
		return req, false
	}
	if err := h.validate.Validate(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return req, false
	}
	return req, true
}

// writeStoreError maps store errors onto status codes.
func writeStoreError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, apperr.ErrConflict), errors.Is(err, apperr.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, apperr.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// ListRecords handles GET /api/collections/{name}.
//
//	@Summary		Query a collection
//	@Tags			collections
//	@Produce		json
//	@Param			name	path		string	true	"Collection name"
//	@Param			where	query		string	false	"Filter as field,op,<json value> (repeatable)"
//	@Param			order	query		string	false	"Ascending sort field"
//	@Success		200		{object}	RecordListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/collections/{name} [get]
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	name, ok := h.collection(w, r)
	if !ok {
		return
	}
	q, err := remote.DecodeQuery(name, r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	recs, err := h.store.List(r.Context(), q)
	if err != nil {
		writeStoreError(w, "list records", err)
		return
	}
	if recs == nil {
		recs = []models.Record{}
	}
	writeJSON(w, http.StatusOK, RecordListResponse{Records: recs, Total: len(recs)})
}

// GetRecord handles GET /api/collections/{name}/{id}.
//
//	@Summary		Get a single record
//	@Tags			collections
//	@Produce		json
//	@Param			name	path		string	true	"Collection name"
//	@Param			id		path		string	true	"Record id"
//	@Success		200		{object}	models.Record
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/collections/{name}/{id} [get]
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	name, ok := h.collection(w, r)
	if !ok {
		return
	}
	rec, err := h.store.Get(r.Context(), name, chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, "get record", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// CreateRecord handles POST /api/collections/{name}.
//
//	@Summary		Create a record with a store-assigned id
//	@Tags			collections
//	@Accept			json
//	@Produce		json
//	@Param			name	path		string			true	"Collection name"
//	@Param			body	body		WriteRequest	true	"Record fields"
//	@Success		201		{object}	CreateResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/collections/{name} [post]
func (h *Handler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	name, ok := h.collection(w, r)
	if !ok {
		return
	}
	req, ok := h.decodeWrite(w, r)
	if !ok {
		return
	}
	recID, err := h.store.Create(r.Context(), name, req.Fields)
	if err != nil {
		writeStoreError(w, "create record", err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateResponse{ID: recID})
}

// UpdateRecord handles PATCH /api/collections/{name}/{id}. Fields are merged;
// a null value removes the field.
//
//	@Summary		Merge fields into a record
//	@Tags			collections
//	@Accept			json
//	@Param			name	path		string			true	"Collection name"
//	@Param			id		path		string			true	"Record id"
//	@Param			body	body		WriteRequest	true	"Partial fields"
//	@Success		204		"Record updated"
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/collections/{name}/{id} [patch]
func (h *Handler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	name, ok := h.collection(w, r)
	if !ok {
		return
	}
	req, ok := h.decodeWrite(w, r)
	if !ok {
		return
	}
	if err := h.store.Update(r.Context(), name, chi.URLParam(r, "id"), req.Fields); err != nil {
		writeStoreError(w, "update record", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteRecord handles DELETE /api/collections/{name}/{id}.
//
//	@Summary		Delete a record
//	@Tags			collections
//	@Param			name	path	string	true	"Collection name"
//	@Param			id		path	string	true	"Record id"
//	@Success		204		"Record deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/collections/{name}/{id} [delete]
func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	name, ok := h.collection(w, r)
	if !ok {
		return
	}
	if err := h.store.Delete(r.Context(), name, chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, "delete record", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Transpose handles POST /api/transpose.
//
//	@Summary		Transpose bracketed chords in song content
//	@Tags			songs
//	@Accept			json
//	@Produce		json
//	@Param			body	body		TransposeRequest	true	"Content and semitone shift"
//	@Success		200		{object}	TransposeResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/transpose [post]
func (h *Handler) Transpose(w http.ResponseWriter, r *http.Request) {
	var req TransposeRequest
	if !readJSON(w, r, &req) {
		return
	}
	if err := h.validate.Validate(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out := transpose.Content(req.Content, req.Semitones)
	writeJSON(w, http.StatusOK, TransposeResponse{
		Content: out,
		Chords:  transpose.Extract(out).Sorted(),
	})
}
