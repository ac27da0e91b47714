// Package cacheagent fronts an origin with an offline-capable HTTP cache.
//
// The agent is an http.RoundTripper. Once installed and activated it serves
// page navigations network-first and every other read cache-first from a
// versioned bucket, answering with a synthesized offline response instead of
// a transport error when nothing else is available.
package cacheagent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/starford/setlist/internal/cachestore"
)

// State is the agent lifecycle stage.
type State int32

const (
	StateInstalling State = iota
	StateActive
	StateServing
)

func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateActive:
		return "active"
	case StateServing:
		return "serving"
	}
	return "unknown"
}

// Cache is the durable bucket store the agent writes to.
type Cache interface {
	CreateBucket(bucket string) error
	Put(bucket, key string, e cachestore.Entry) error
	Match(bucket, key string) (cachestore.Entry, error)
	Buckets() ([]string, error)
	DeleteBucket(bucket string) error
}

// Config describes what the agent caches.
type Config struct {
	// Origin is the base URL shell paths and fallbacks resolve against.
	Origin string
	// Version is embedded in the bucket name; bumping it invalidates the shell.
	Version string
	// Prefix is prepended to Version to form the bucket name.
	Prefix string
	// Shell lists the application shell resources fetched at install time.
	Shell []string
	// APIHosts are hosts whose requests are never intercepted.
	APIHosts []string
	// BypassPrefixes are path prefixes never intercepted (AI flows).
	BypassPrefixes []string
	// Collections are the first path segments of "/<collection>/<id>" pages
	// that fall back to the "/<collection>" page when offline.
	Collections []string
	// OfflinePath is the shell page served for navigations with no better match.
	OfflinePath string
	// MaxEntryBytes caps stored response bodies. Zero means 10 MiB.
	MaxEntryBytes int64
}

// Agent is the caching round tripper.
type Agent struct {
	cfg     Config
	origin  *url.URL
	bucket  string
	cache   Cache
	network http.RoundTripper
	logger  *slog.Logger
	state   atomic.Int32
}

var _ http.RoundTripper = (*Agent)(nil)

// New creates an agent in the installing state. network performs real
// fetches; nil means http.DefaultTransport.
func New(cfg Config, cache Cache, network http.RoundTripper, logger *slog.Logger) (*Agent, error) {
	if cfg.Version == "" {
		return nil, errors.New("cacheagent: version is required")
	}
	origin, err := url.Parse(cfg.Origin)
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("cacheagent: invalid origin %q", cfg.Origin)
	}
	if cfg.MaxEntryBytes <= 0 {
		cfg.MaxEntryBytes = 10 << 20
	}
	if network == nil {
		network = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		cfg:     cfg,
		origin:  origin,
		bucket:  cfg.Prefix + cfg.Version,
		cache:   cache,
		network: network,
		logger:  logger,
	}, nil
}

// State returns the current lifecycle stage.
func (a *Agent) State() State {
	return State(a.state.Load())
}

// Bucket returns the current bucket name.
func (a *Agent) Bucket() string {
	return a.bucket
}

// Install fetches every shell resource into the current bucket. Any failure
// is returned and leaves the agent un-activated.
func (a *Agent) Install(ctx context.Context) error {
	if err := a.cache.CreateBucket(a.bucket); err != nil {
		return fmt.Errorf("cacheagent: install: %w", err)
	}
	for _, p := range a.cfg.Shell {
		u := a.resolve(p)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return fmt.Errorf("cacheagent: install %s: %w", p, err)
		}
		resp, err := a.network.RoundTrip(req)
		if err != nil {
			return fmt.Errorf("cacheagent: install %s: %w", p, err)
		}
		if !success(resp.StatusCode) {
			resp.Body.Close()
			return fmt.Errorf("cacheagent: install %s: status %d", p, resp.StatusCode)
		}
		entry, err := readEntry(resp, a.cfg.MaxEntryBytes)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("cacheagent: install %s: %w", p, err)
		}
		if err := a.cache.Put(a.bucket, cacheKey(u), entry); err != nil {
			return fmt.Errorf("cacheagent: install %s: %w", p, err)
		}
	}
	a.logger.Info("cache agent installed",
		slog.String("bucket", a.bucket),
		slog.Int("resources", len(a.cfg.Shell)))
	return nil
}

// Activate deletes every bucket other than the current one and starts
// intercepting requests immediately.
func (a *Agent) Activate(_ context.Context) error {
	a.state.Store(int32(StateActive))

	buckets, err := a.cache.Buckets()
	if err != nil {
		return fmt.Errorf("cacheagent: activate: %w", err)
	}
	for _, b := range buckets {
		if b == a.bucket {
			continue
		}
		if err := a.cache.DeleteBucket(b); err != nil {
			return fmt.Errorf("cacheagent: activate: delete %s: %w", b, err)
		}
		a.logger.Info("stale cache bucket deleted", slog.String("bucket", b))
	}

	a.state.Store(int32(StateServing))
	return nil
}

// RoundTrip implements http.RoundTripper.
func (a *Agent) RoundTrip(req *http.Request) (*http.Response, error) {
	if a.State() != StateServing || a.bypass(req) {
		return a.network.RoundTrip(req)
	}
	if isNavigation(req) {
		return a.networkFirst(req), nil
	}
	return a.cacheFirst(req), nil
}

func (a *Agent) bypass(req *http.Request) bool {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return true
	}
	host := strings.ToLower(req.URL.Hostname())
	for _, h := range a.cfg.APIHosts {
		if strings.EqualFold(h, host) {
			return true
		}
	}
	for _, p := range a.cfg.BypassPrefixes {
		if strings.HasPrefix(req.URL.Path, p) {
			return true
		}
	}
	return false
}

func isNavigation(req *http.Request) bool {
	if req.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return req.Method == http.MethodGet && strings.Contains(req.Header.Get("Accept"), "text/html")
}

func (a *Agent) resolve(p string) *url.URL {
	ref, err := url.Parse(p)
	if err != nil {
		return a.origin
	}
	return a.origin.ResolveReference(ref)
}

func success(code int) bool {
	return code >= 200 && code <= 299
}
