package mirror

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/setlist/internal/apperr"
	"github.com/starford/setlist/internal/fault"
	"github.com/starford/setlist/internal/models"
	"github.com/starford/setlist/internal/remote"
)

// Result is what Read returns. Loading is true while online and waiting for
// the first authoritative snapshot; Records then holds the stale local copy.
type Result struct {
	Records []models.Record
	Loading bool
}

// CollectionOption configures a Collection.
type CollectionOption func(*Collection)

// WithWhere sets the filter conjunction.
func WithWhere(preds ...models.Predicate) CollectionOption {
	return func(c *Collection) { c.where = preds }
}

// WithOrderBy sorts reads ascending by field.
func WithOrderBy(field string) CollectionOption {
	return func(c *Collection) { c.orderBy = field }
}

// Collection is one mirrored query. All methods are safe for concurrent use;
// snapshots replace the visible record set atomically.
type Collection struct {
	m       *Mirror
	name    string
	where   []models.Predicate
	orderBy string

	persistMu sync.Mutex

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	records  []models.Record
	fresh    bool // records came from the current subscription
	degraded bool // the current subscription failed; serving the local copy
	online   bool
	started  bool
	closed   bool
	sub      *remote.Subscription
	gen      uint64
	ready    chan struct{}
	isReady  bool
	retry    *time.Timer
	onChange func()
}

func newCollection(m *Mirror, name string, opts ...CollectionOption) *Collection {
	c := &Collection{
		m:       m,
		name:    name,
		records: []models.Record{},
		ready:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// OnChange registers fn to be called after every applied snapshot or
// connectivity change. fn must not block.
func (c *Collection) OnChange(fn func()) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Start loads the persisted mirror and, when online with a resolved filter,
// subscribes to the remote store. The subscription lives until Close or ctx
// is cancelled.
func (c *Collection) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.online = c.m.Online()
	c.mu.Unlock()

	c.loadLocal(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.resubscribeLocked()
}

// Read returns the last observed record set, filtered and sorted. An
// unresolved filter yields an empty, non-loading result.
func (c *Collection) Read() Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !models.AllResolved(c.where) {
		return Result{Records: []models.Record{}}
	}
	recs := make([]models.Record, 0, len(c.records))
	for _, r := range c.records {
		if models.MatchAll(c.where, r) {
			recs = append(recs, r.Clone())
		}
	}
	models.SortBy(recs, c.orderBy)
	return Result{Records: recs, Loading: c.online && !c.fresh && !c.degraded}
}

// SetWhere replaces the filter and re-evaluates readiness, resubscribing when
// the new filter is resolved and the mirror is online.
func (c *Collection) SetWhere(preds ...models.Predicate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.where = preds
	if c.started && !c.closed {
		c.resubscribeLocked()
	}
}

// WaitReady blocks until the collection has an authoritative snapshot, has
// fallen back to the local copy, or has nothing to load.
func (c *Collection) WaitReady(ctx context.Context) error {
	c.mu.Lock()
	ready := c.ready
	c.mu.Unlock()
	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Create writes a new record through to the remote store. The new record
// becomes visible only once a snapshot containing it arrives.
func (c *Collection) Create(ctx context.Context, data map[string]any) (string, bool) {
	if err := c.writable(); err != nil {
		c.m.report(fault.OpCreate, c.name, data, err)
		return "", false
	}
	id, err := c.m.remote.Create(context.WithoutCancel(ctx), c.name, data)
	if c.isClosed() {
		return "", false
	}
	if err != nil {
		c.m.report(fault.OpCreate, c.name, data, err)
		return "", false
	}
	return id, true
}

// Update merges partial into the record with id on the remote store.
func (c *Collection) Update(ctx context.Context, id string, partial map[string]any) bool {
	path := c.name + "/" + id
	if err := c.writable(); err != nil {
		c.m.report(fault.OpUpdate, path, partial, err)
		return false
	}
	err := c.m.remote.Update(context.WithoutCancel(ctx), c.name, id, partial)
	if c.isClosed() {
		return false
	}
	if err != nil {
		c.m.report(fault.OpUpdate, path, partial, err)
		return false
	}
	return true
}

// Delete removes the record with id from the remote store.
func (c *Collection) Delete(ctx context.Context, id string) bool {
	path := c.name + "/" + id
	if err := c.writable(); err != nil {
		c.m.report(fault.OpDelete, path, nil, err)
		return false
	}
	err := c.m.remote.Delete(context.WithoutCancel(ctx), c.name, id)
	if c.isClosed() {
		return false
	}
	if err != nil {
		c.m.report(fault.OpDelete, path, nil, err)
		return false
	}
	return true
}

// Close cancels the subscription and detaches the collection from its Mirror.
func (c *Collection) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.gen++
	c.stopLocked()
	if c.cancel != nil {
		c.cancel()
	}
	c.markReadyLocked()
	c.mu.Unlock()
	c.m.forget(c)
}

func (c *Collection) writable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return context.Canceled
	}
	if !c.m.Online() {
		return apperr.ErrOffline
	}
	return nil
}

func (c *Collection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Collection) setOnline(ctx context.Context, online bool) {
	c.mu.Lock()
	if !c.started || c.closed || c.online == online {
		c.mu.Unlock()
		return
	}
	c.online = online
	if online {
		c.resubscribeLocked()
		c.mu.Unlock()
		c.changed()
		return
	}

	// Going offline freezes the last applied snapshot in place.
	c.gen++
	c.stopLocked()
	empty := len(c.records) == 0 && !c.fresh
	c.markReadyLocked()
	c.mu.Unlock()

	if empty {
		c.loadLocal(ctx)
	}
	c.changed()
}

// resubscribeLocked drops any current subscription and opens a new one if the
// collection is online with a resolved filter. c.mu must be held.
func (c *Collection) resubscribeLocked() {
	c.gen++
	c.stopLocked()
	c.fresh = false
	c.degraded = false

	if !models.AllResolved(c.where) {
		c.markReadyLocked()
		return
	}
	if !c.online {
		c.markReadyLocked()
		return
	}
	if c.isReady {
		c.ready = make(chan struct{})
		c.isReady = false
	}

	q := remote.Query{Collection: c.name, Where: c.where, OrderBy: c.orderBy}
	go c.open(c.ctx, c.gen, q)
}

// open subscribes outside the lock; a result for a superseded generation is
// closed and dropped.
func (c *Collection) open(ctx context.Context, gen uint64, q remote.Query) {
	sub, err := c.m.remote.Subscribe(ctx, q)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.gen != gen {
		if sub != nil {
			sub.Close()
		}
		return
	}
	if err != nil {
		c.m.report(fault.OpSubscribe, c.name, nil, err)
		c.degraded = true
		c.markReadyLocked()
		c.scheduleRetryLocked(gen)
		return
	}
	c.sub = sub
	go c.listen(sub, gen)
}

func (c *Collection) stopLocked() {
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	if c.sub != nil {
		c.sub.Close()
		c.sub = nil
	}
}

func (c *Collection) scheduleRetryLocked(gen uint64) {
	if c.m.retryDelay <= 0 {
		return
	}
	c.retry = time.AfterFunc(c.m.retryDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed || c.gen != gen || !c.online {
			return
		}
		c.resubscribeLocked()
	})
}

func (c *Collection) listen(sub *remote.Subscription, gen uint64) {
	for {
		select {
		case <-sub.Done():
			return
		case snap := <-sub.C:
			if snap.Err != nil {
				c.failed(gen, snap.Err)
				return
			}
			if c.applyAndPersist(gen, snap.Records) {
				c.changed()
			}
		}
	}
}

// apply installs records as the visible snapshot if gen is still current.
func (c *Collection) apply(gen uint64, records []models.Record) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.gen != gen {
		return false
	}
	if records == nil {
		records = []models.Record{}
	}
	c.records = records
	c.fresh = true
	c.markReadyLocked()
	return true
}

// applyAndPersist applies records and writes them to the local store as one
// step with respect to other persists and local loads. An applied snapshot is
// always persisted, even if the collection goes offline before the write.
func (c *Collection) applyAndPersist(gen uint64, records []models.Record) bool {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	if !c.apply(gen, records) {
		return false
	}
	if err := persistSnapshot(context.WithoutCancel(c.ctx), c.m.local, c.name, records); err != nil {
		c.m.logger.Warn("mirror: persist snapshot failed",
			slog.String("collection", c.name),
			slog.String("error", err.Error()))
	}
	return true
}

func (c *Collection) failed(gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.gen != gen {
		return
	}
	c.m.report(fault.OpSubscribe, c.name, nil, err)
	c.stopLocked()
	c.degraded = true
	c.markReadyLocked()
	c.scheduleRetryLocked(gen)
}

// loadLocal replaces the visible records with the persisted mirror unless a
// fresh snapshot arrived in the meantime.
func (c *Collection) loadLocal(ctx context.Context) {
	c.persistMu.Lock()
	records, err := loadSnapshot(ctx, c.m.local, c.name)
	c.persistMu.Unlock()
	if err != nil {
		c.m.logger.Warn("mirror: load local snapshot failed",
			slog.String("collection", c.name),
			slog.String("error", err.Error()))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fresh || c.closed {
		return
	}
	c.records = records
}

func (c *Collection) markReadyLocked() {
	if !c.isReady {
		c.isReady = true
		close(c.ready)
	}
}

func (c *Collection) changed() {
	c.mu.Lock()
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}
