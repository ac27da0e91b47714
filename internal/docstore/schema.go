// Package docstore is a SQLite-backed document store with live queries. It is
// the remote store the mirror talks to, served over HTTP by the api package
// and usable in-process as a remote.Client.
package docstore

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS records (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	data       TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (collection, id)
);

CREATE INDEX IF NOT EXISTS idx_records_collection ON records(collection);
`

// EventEmitter receives record change notifications.
type EventEmitter interface {
	PublishRecordEvent(kind, collection, id string)
}

type noopEmitter struct{}

func (noopEmitter) PublishRecordEvent(string, string, string) {}

// Option configures a Store.
type Option func(*Store)

// WithEmitter sets the change event emitter.
func WithEmitter(e EventEmitter) Option {
	return func(s *Store) { s.emitter = e }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store wraps a sql.DB holding every collection in one table.
type Store struct {
	conn    *sql.DB
	emitter EventEmitter
	logger  *slog.Logger

	mu       sync.Mutex
	watchers map[uint64]*watcher
	nextID   uint64
}

// Open opens (or creates) the document database and applies the schema.
func Open(dsn string, opts ...Option) (*Store, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("docstore: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("docstore: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("docstore: apply schema: %w", err)
	}
	s := &Store{
		conn:     conn,
		emitter:  noopEmitter{},
		logger:   slog.Default(),
		watchers: make(map[uint64]*watcher),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes every live query and the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	for id, w := range s.watchers {
		w.sub.Close()
		delete(s.watchers, id)
	}
	s.mu.Unlock()
	return s.conn.Close()
}
