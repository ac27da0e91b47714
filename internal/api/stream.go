package api

import (
	"net/http"
	"time"

	"github.com/starford/setlist/internal/remote"
	"github.com/starford/setlist/internal/sse"
)

const keepAliveInterval = 25 * time.Second

// StreamRecords handles GET /api/collections/{name}/stream. Each change to the
// query result is pushed as a "snapshot" event carrying the full record set;
// a failed refresh ends the stream with an "error" event.
//
//	@Summary		Live query over a collection (SSE)
//	@Tags			collections
//	@Produce		text/event-stream
//	@Param			name	path	string	true	"Collection name"
//	@Param			where	query	string	false	"Filter as field,op,<json value> (repeatable)"
//	@Param			order	query	string	false	"Ascending sort field"
//	@Success		200
//	@Security		BearerAuth
//	@Router			/collections/{name}/stream [get]
func (h *Handler) StreamRecords(w http.ResponseWriter, r *http.Request) {
	name, ok := h.collection(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	q, err := remote.DecodeQuery(name, r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sub, err := h.store.Subscribe(r.Context(), q)
	if err != nil {
		writeStoreError(w, "subscribe", err)
		return
	}
	defer sub.Close()

	sse.StartStream(w)
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sub.Done():
			return
		case <-ticker.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case snap := <-sub.C:
			if snap.Err != nil {
				_ = sse.WriteEvent(w, "error", errorBody(snap.Err.Error()))
				flusher.Flush()
				return
			}
			if err := sse.WriteEvent(w, remote.SnapshotEvent, remote.SnapshotPayload{Records: snap.Records}); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
