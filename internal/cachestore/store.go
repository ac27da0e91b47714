// Package cachestore is a durable, named-bucket request → response cache on
// Badger. Buckets are versioned by name; there is no per-entry expiry.
package cachestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/starford/setlist/internal/apperr"
)

// Key layout:
//
//	bucket:<name>         bucket marker (value: creation time)
//	entry:<name>:<key>    cached response
const (
	bucketPrefix = "bucket:"
	entryPrefix  = "entry:"
)

// Entry is one cached response.
type Entry struct {
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"stored_at"`
}

// Store wraps a Badger database instance.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// Open opens the cache at path. An empty path keeps everything in memory.
func Open(path string, logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil
	opts.SyncWrites = path != ""

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("cachestore: open badger db: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func validName(name string) error {
	if name == "" || strings.Contains(name, ":") {
		return fmt.Errorf("cachestore: bucket name %q: %w", name, apperr.ErrInvalid)
	}
	return nil
}

func markerKey(bucket string) []byte {
	return []byte(bucketPrefix + bucket)
}

func entriesPrefix(bucket string) []byte {
	return []byte(entryPrefix + bucket + ":")
}

func entryKey(bucket, key string) []byte {
	return append(entriesPrefix(bucket), key...)
}

// CreateBucket makes sure bucket exists. Creating an existing bucket is a no-op.
func (s *Store) CreateBucket(bucket string) error {
	if err := validName(bucket); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return ensureMarker(txn, bucket)
	})
}

func ensureMarker(txn *badger.Txn, bucket string) error {
	_, err := txn.Get(markerKey(bucket))
	if err == nil {
		return nil
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}
	stamp, _ := time.Now().UTC().MarshalText()
	return txn.Set(markerKey(bucket), stamp)
}

// Put stores e under key in bucket, creating the bucket if needed.
func (s *Store) Put(bucket, key string, e Entry) error {
	if err := validName(bucket); err != nil {
		return err
	}
	if e.StoredAt.IsZero() {
		e.StoredAt = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("cachestore: encode %s: %w", key, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := ensureMarker(txn, bucket); err != nil {
			return err
		}
		return txn.Set(entryKey(bucket, key), data)
	})
	if err != nil {
		return fmt.Errorf("cachestore: put %s %s: %w", bucket, key, err)
	}
	return nil
}

// Match returns the entry stored under key in bucket or apperr.ErrNotFound.
func (s *Store) Match(bucket, key string) (Entry, error) {
	var e Entry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(bucket, key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Entry{}, apperr.ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("cachestore: match %s %s: %w", bucket, key, err)
	}
	return e, nil
}

// Delete removes one entry. Deleting a missing entry is not an error.
func (s *Store) Delete(bucket, key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(entryKey(bucket, key))
	})
	if err != nil {
		return fmt.Errorf("cachestore: delete %s %s: %w", bucket, key, err)
	}
	return nil
}

// Keys lists the request keys stored in bucket, sorted.
func (s *Store) Keys(bucket string) ([]string, error) {
	prefix := entriesPrefix(bucket)
	keys, err := scanKeys(s.db, prefix)
	if err != nil {
		return nil, fmt.Errorf("cachestore: keys %s: %w", bucket, err)
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, string(prefix)))
	}
	return out, nil
}

// Buckets lists every bucket name, sorted.
func (s *Store) Buckets() ([]string, error) {
	keys, err := scanKeys(s.db, []byte(bucketPrefix))
	if err != nil {
		return nil, fmt.Errorf("cachestore: buckets: %w", err)
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, bucketPrefix))
	}
	sort.Strings(out)
	return out, nil
}

// DeleteBucket removes a bucket and all of its entries.
func (s *Store) DeleteBucket(bucket string) error {
	if err := validName(bucket); err != nil {
		return err
	}
	keys, err := scanKeys(s.db, entriesPrefix(bucket))
	if err != nil {
		return fmt.Errorf("cachestore: delete bucket %s: %w", bucket, err)
	}
	wb := s.db.NewWriteBatch()
	for _, k := range keys {
		if err := wb.Delete([]byte(k)); err != nil {
			wb.Cancel()
			return fmt.Errorf("cachestore: delete bucket %s: %w", bucket, err)
		}
	}
	if err := wb.Delete(markerKey(bucket)); err != nil {
		wb.Cancel()
		return fmt.Errorf("cachestore: delete bucket %s: %w", bucket, err)
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("cachestore: delete bucket %s: %w", bucket, err)
	}
	s.logger.Debug("cache bucket deleted", slog.String("bucket", bucket))
	return nil
}

func scanKeys(db *badger.DB, prefix []byte) ([]string, error) {
	var out []string
	err := db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			out = append(out, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return out, err
}
