// Package remote defines the remote document store the mirror reads from and
// writes through, plus an HTTP implementation speaking to the api package.
package remote

import (
	"context"

	"github.com/starford/setlist/internal/models"
)

// Query selects records of one collection. Where is a conjunction; OrderBy is
// applied by the caller, the store may ignore it.
type Query struct {
	Collection string
	Where      []models.Predicate
	OrderBy    string
}

// Snapshot is the full result set of a query at one point in time. A snapshot
// with a non-nil Err carries no records and ends nothing by itself; the
// subscriber decides whether to keep listening.
type Snapshot struct {
	Records []models.Record
	Err     error
}

// Client is a remote document store.
type Client interface {
	// Subscribe starts a live query. The first snapshot is the current state;
	// every later snapshot replaces it entirely.
	Subscribe(ctx context.Context, q Query) (*Subscription, error)
	// Create adds a record and returns its store-assigned id.
	Create(ctx context.Context, collection string, fields map[string]any) (string, error)
	// Update merges fields into an existing record.
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	// Delete removes a record.
	Delete(ctx context.Context, collection, id string) error
}

// Pinger is implemented by clients that can report store reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
