// Package localstore provides the durable on-device key → JSON store shared by
// the mirror cache and the presentation preferences.
package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/setlist/internal/apperr"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// ErrDecode is returned by Get when the stored value does not fit dest.
var ErrDecode = errors.New("localstore: decode")

// Store is a key → JSON value store that persists across restarts.
// Writers use independent keys; concurrent writes to one key are last-writer-wins.
type Store interface {
	// Get decodes the value at key into dest. Missing keys return
	// apperr.ErrNotFound; values that do not fit dest return ErrDecode.
	Get(ctx context.Context, key string, dest any) error
	// Set encodes value as JSON and stores it at key.
	Set(ctx context.Context, key string, value any) error
	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
	// Keys lists keys starting with prefix in lexical order.
	Keys(ctx context.Context, prefix string) ([]string, error)
	// Commit applies every operation in b atomically.
	Commit(ctx context.Context, b *Batch) error
}

// Batch collects writes to be applied in one transaction.
type Batch struct {
	sets    []entry
	removes []string
	err     error
}

type entry struct {
	key   string
	value []byte
}

// Set queues value for key. Encoding errors surface from Commit.
func (b *Batch) Set(key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		b.err = errors.Join(b.err, fmt.Errorf("localstore: encode %s: %w", key, err))
		return
	}
	b.sets = append(b.sets, entry{key: key, value: data})
}

// Remove queues deletion of key.
func (b *Batch) Remove(key string) {
	b.removes = append(b.removes, key)
}

// Len returns the number of queued operations.
func (b *Batch) Len() int {
	return len(b.sets) + len(b.removes)
}

// SQLite implements Store on a single SQLite table.
type SQLite struct {
	conn *sql.DB
}

var _ Store = (*SQLite)(nil)

// Open opens (or creates) the local store database at dsn.
func Open(dsn string) (*SQLite, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("localstore: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("localstore: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("localstore: apply schema: %w", err)
	}
	return &SQLite{conn: conn}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}

// Get implements Store.
func (s *SQLite) Get(ctx context.Context, key string, dest any) error {
	var raw string
	err := s.conn.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("localstore: get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return fmt.Errorf("%w %s: %w", ErrDecode, key, err)
	}
	return nil
}

// Set implements Store.
func (s *SQLite) Set(ctx context.Context, key string, value any) error {
	b := &Batch{}
	b.Set(key, value)
	return s.Commit(ctx, b)
}

// Remove implements Store.
func (s *SQLite) Remove(ctx context.Context, key string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("localstore: remove %s: %w", key, err)
	}
	return nil
}

// Keys implements Store.
func (s *SQLite) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT key FROM kv WHERE substr(key, 1, ?) = ? ORDER BY key`, len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("localstore: keys: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// Commit implements Store.
func (s *SQLite) Commit(ctx context.Context, b *Batch) error {
	if b.err != nil {
		return b.err
	}
	if b.Len() == 0 {
		return nil
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("localstore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	now := time.Now().UTC()
	for _, e := range b.sets {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				value      = excluded.value,
				updated_at = excluded.updated_at
		`, e.key, string(e.value), now)
		if err != nil {
			return fmt.Errorf("localstore: set %s: %w", e.key, err)
		}
	}
	for _, k := range b.removes {
		if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, k); err != nil {
			return fmt.Errorf("localstore: remove %s: %w", k, err)
		}
	}
	return tx.Commit()
}

// JoinKey builds a namespaced key from parts separated by ':'.
func JoinKey(parts ...string) string {
	return strings.Join(parts, ":")
}
