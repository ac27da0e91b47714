// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/setlist/internal/api"
	"github.com/starford/setlist/internal/cacheagent"
	"github.com/starford/setlist/internal/cachestore"
	"github.com/starford/setlist/internal/docstore"
	"github.com/starford/setlist/internal/fault"
	"github.com/starford/setlist/internal/library"
	"github.com/starford/setlist/internal/localstore"
	"github.com/starford/setlist/internal/mirror"
	"github.com/starford/setlist/internal/offline"
	"github.com/starford/setlist/internal/ratelimit"
	"github.com/starford/setlist/internal/remote"
	"github.com/starford/setlist/internal/sse"
	"github.com/starford/setlist/internal/storage"
)

const (
	installRetry  = 2 * time.Second
	keepDebounce  = 500 * time.Millisecond
	shutdownGrace = 10 * time.Second
)

// Run starts the document store server with the given options. Depending on
// configuration it also runs the offline caching proxy and keeps prepared
// setlists fresh from a remote store.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts...)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := newLogger(os.Stdout, cfg.App.LogLevel)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("library_path", cfg.Library.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("agent_enabled", cfg.Agent.Enabled),
		slog.Bool("keep_prepared", cfg.Client.Keep),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	docs, lib, err := openLibrary(cfg, broker, logger)
	if err != nil {
		return err
	}
	defer docs.Close()

	// Run initial sync.
	if res, err := lib.Sync(ctx); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	} else {
		logger.Info("library synced",
			slog.Int("imported", res.Imported),
			slog.Int("unchanged", res.Unchanged),
			slog.Int("removed", res.Removed),
			slog.Int("failed", res.Failed))
	}

	var limiter *ratelimit.KeyedRateLimiter
	if cfg.App.HTTP.WriteRPS > 0 {
		limiter = ratelimit.New(cfg.App.HTTP.WriteRPS, cfg.App.HTTP.WriteBurst, time.Minute)
		defer limiter.Stop()
	}

	apiRouter := api.NewRouter(docs, api.Options{
		AuthEnabled:  cfg.Auth.AuthEnabled(),
		Token:        cfg.Auth.Token,
		CORSOrigins:  cfg.App.HTTP.CORSOrigins,
		Events:       broker,
		Library:      lib,
		WriteLimiter: limiter,
	})

	r := newRouter(docs, apiRouter, cfg.Static.Dir)

	servers := []*http.Server{{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}}

	g, gCtx := errgroup.WithContext(ctx)

	var agent *cacheagent.Agent
	if cfg.Agent.Enabled {
		cache, err := cachestore.Open(cfg.Agent.CachePath, logger)
		if err != nil {
			return fmt.Errorf("open cache: %w", err)
		}
		defer cache.Close()

		agent, err = newAgent(cfg.Agent, cache, logger)
		if err != nil {
			return fmt.Errorf("init cache agent: %w", err)
		}
		upstream, err := cfg.Agent.UpstreamURL()
		if err != nil {
			return fmt.Errorf("agent upstream: %w", err)
		}
		servers = append(servers, &http.Server{
			Addr:    cfg.Agent.Address(),
			Handler: agent.Handler(upstream),
		})

		g.Go(func() error {
			installAgent(gCtx, agent, logger)
			return nil
		})
	}

	// Keep prepared setlists fresh from the remote store.
	if cfg.Client.Keep {
		local, err := localstore.Open(cfg.Client.LocalPath)
		if err != nil {
			return fmt.Errorf("open local store: %w", err)
		}
		defer local.Close()

		m, rc := newMirror(cfg, local, broker, logger)
		defer m.Close()
		prep := offline.New(m, local, logger)
		defer prep.Close()
		prep.Start(gCtx)

		g.Go(func() error {
			mirror.NewMonitor(rc, m, cfg.Client.ProbeInterval).Run(gCtx)
			return nil
		})
		g.Go(func() error {
			prep.Keep(gCtx, keepDebounce)
			return nil
		})
	}

	// Start file watcher with SSE callback.
	if cfg.Library.Watch {
		g.Go(func() error {
			if err := lib.Watch(gCtx, broker.PublishLibraryEvent); err != nil {
				logger.Error("library watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP servers.
	for _, srv := range servers {
		g.Go(func() error {
			logger.Info("Starting HTTP server", slog.String("address", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
	}

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP server shutdown error",
					slog.String("address", srv.Addr),
					slog.String("error", err.Error()))
			}
		}
		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// newRouter builds the root router: health checks, the API under /api and,
// when dir is set, the application shell.
func newRouter(docs *docstore.Store, apiRouter http.Handler, dir string) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := docs.Ping(r.Context()); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
		writeStatus(w, http.StatusOK, "ok")
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	if dir != "" {
		r.Handle("/*", http.FileServer(http.Dir(dir)))
	}
	return r
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = fmt.Fprintf(w, `{"status":%q}`, status)
}

// installAgent retries the shell install until it succeeds, since the
// upstream may still be starting, then activates the agent.
func installAgent(ctx context.Context, agent *cacheagent.Agent, logger *slog.Logger) {
	for {
		err := agent.Install(ctx)
		if err == nil {
			break
		}
		logger.Warn("cache agent install failed, retrying",
			slog.String("bucket", agent.Bucket()),
			slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return
		case <-time.After(installRetry):
		}
	}
	if err := agent.Activate(ctx); err != nil {
		logger.Error("cache agent activation failed", slog.String("error", err.Error()))
		return
	}
	logger.Info("cache agent serving", slog.String("bucket", agent.Bucket()))
}

// newAgent builds the caching agent described by cfg over cache.
func newAgent(cfg AgentConfig, cache cacheagent.Cache, logger *slog.Logger) (*cacheagent.Agent, error) {
	return cacheagent.New(cacheagent.Config{
		Origin:         cfg.Upstream,
		Version:        cfg.Version,
		Prefix:         cfg.Prefix,
		Shell:          cfg.Shell,
		APIHosts:       cfg.APIHosts,
		BypassPrefixes: cfg.BypassPrefixes,
		Collections:    cfg.Collections,
		OfflinePath:    cfg.OfflinePath,
		MaxEntryBytes:  cfg.MaxEntryBytes,
	}, cache, nil, logger)
}

// openLibrary opens the document store and the song library over it.
func openLibrary(cfg *Config, emitter docstore.EventEmitter, logger *slog.Logger) (*docstore.Store, *library.Library, error) {
	// Ensure library directory exists.
	if err := os.MkdirAll(cfg.Library.Path, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create library dir: %w", err)
	}
	store, err := storage.NewFS(cfg.Library.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init storage: %w", err)
	}

	opts := []docstore.Option{docstore.WithLogger(logger)}
	if emitter != nil {
		opts = append(opts, docstore.WithEmitter(emitter))
	}
	docs, err := docstore.Open(cfg.SQLite.Path, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("init document store: %w", err)
	}
	return docs, library.New(store, docs, logger), nil
}

// newMirror creates a mirror of the configured remote store. Faults are
// logged and, when pub is set, published as events.
func newMirror(cfg *Config, local localstore.Store, pub fault.Publisher, logger *slog.Logger) (*mirror.Mirror, *remote.HTTPClient) {
	rc := remote.NewHTTPClient(cfg.Client.RemoteURL,
		remote.WithToken(cfg.Client.Token),
		remote.WithLogger(logger))

	var reporter fault.Reporter = fault.LogReporter{Logger: logger}
	if pub != nil {
		reporter = fault.Multi{reporter, fault.EmitterReporter{Publisher: pub}}
	}
	m := mirror.New(rc, local,
		mirror.WithReporter(reporter),
		mirror.WithLogger(logger),
		mirror.WithOnline(false),
		mirror.WithRetryDelay(cfg.Client.RetryDelay))
	return m, rc
}
