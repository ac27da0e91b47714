package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/starford/setlist/internal/ratelimit"
)

// Options configures the API router.
type Options struct {
	AuthEnabled bool
	Token       string

	// CORSOrigins lists browser origins allowed to call the API. Empty
	// disables CORS headers.
	CORSOrigins []string

	// Events, if non-nil, is mounted at GET /events inside the auth group.
	Events http.Handler

	// Library, if non-nil, enables POST /songs uploads.
	Library SongLibrary

	// WriteLimiter, if non-nil, rate limits non-GET requests per client.
	WriteLimiter *ratelimit.KeyedRateLimiter
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(store Store, opts Options) chi.Router {
	h := NewHandler(store)

	r := chi.NewRouter()
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
	r.Use(AuthMiddleware(opts.AuthEnabled, opts.Token))
	r.Use(WriteLimitMiddleware(opts.WriteLimiter))

	// Collections.
	r.Route("/collections/{name}", func(r chi.Router) {
		r.Get("/", h.ListRecords)
		r.Post("/", h.CreateRecord)
		r.Get("/stream", h.StreamRecords)
		r.Get("/{id}", h.GetRecord)
		r.Patch("/{id}", h.UpdateRecord)
		r.Delete("/{id}", h.DeleteRecord)
	})

	r.Post("/transpose", h.Transpose)

	if opts.Library != nil {
		r.Post("/songs", NewSongHandler(opts.Library).Upload)
	}

	if opts.Events != nil {
		r.Get("/events", opts.Events.ServeHTTP)
	}

	return r
}
