// Package mirror keeps collection-shaped, offline-capable copies of remote
// store queries in the durable local store.
//
// A Mirror is built once at startup and handed to whatever needs collection
// access. Each Collection is backed by a live subscription while online and
// by its last persisted snapshot while offline. Writes go straight to the
// remote store; the local copy only ever changes when a snapshot arrives.
package mirror

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/setlist/internal/fault"
	"github.com/starford/setlist/internal/localstore"
	"github.com/starford/setlist/internal/remote"
)

// Mirror owns the remote client, local store and connectivity state shared by
// every collection.
type Mirror struct {
	remote     remote.Client
	local      localstore.Store
	faults     fault.Reporter
	logger     *slog.Logger
	retryDelay time.Duration

	mu          sync.Mutex
	online      bool
	collections []*Collection
}

// Option configures a Mirror.
type Option func(*Mirror)

// WithReporter sets the fault reporter. The default logs faults.
func WithReporter(r fault.Reporter) Option {
	return func(m *Mirror) { m.faults = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Mirror) { m.logger = l }
}

// WithOnline sets the initial connectivity state. The default is online.
func WithOnline(online bool) Option {
	return func(m *Mirror) { m.online = online }
}

// WithRetryDelay sets how long a collection waits before resubscribing after
// its subscription fails while online. Zero disables retries.
func WithRetryDelay(d time.Duration) Option {
	return func(m *Mirror) { m.retryDelay = d }
}

// New creates a Mirror over the given remote and local stores.
func New(rc remote.Client, local localstore.Store, opts ...Option) *Mirror {
	m := &Mirror{
		remote:     rc,
		local:      local,
		logger:     slog.Default(),
		retryDelay: 2 * time.Second,
		online:     true,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.faults == nil {
		m.faults = fault.LogReporter{Logger: m.logger}
	}
	return m
}

// Online reports the current connectivity state.
func (m *Mirror) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline records a connectivity transition and applies it to every
// collection. Setting the current state again is a no-op.
func (m *Mirror) SetOnline(ctx context.Context, online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	cols := append([]*Collection(nil), m.collections...)
	m.mu.Unlock()

	m.logger.Info("connectivity changed", slog.Bool("online", online))
	for _, c := range cols {
		c.setOnline(ctx, online)
	}
}

// Collection registers a mirrored collection. Call Start on the result to
// begin loading.
func (m *Mirror) Collection(name string, opts ...CollectionOption) *Collection {
	c := newCollection(m, name, opts...)
	m.mu.Lock()
	m.collections = append(m.collections, c)
	m.mu.Unlock()
	return c
}

// Close closes every registered collection.
func (m *Mirror) Close() {
	m.mu.Lock()
	cols := m.collections
	m.collections = nil
	m.mu.Unlock()
	for _, c := range cols {
		c.Close()
	}
}

func (m *Mirror) forget(c *Collection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, x := range m.collections {
		if x == c {
			m.collections = append(m.collections[:i], m.collections[i+1:]...)
			return
		}
	}
}

func (m *Mirror) report(op fault.Operation, path string, payload map[string]any, err error) {
	m.faults.Report(fault.Fault{Op: op, Path: path, Payload: payload, Err: err, At: time.Now()})
}
