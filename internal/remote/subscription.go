package remote

import (
	"context"
	"sync"
)

// Subscription is a live query. Consumers read C until Done is closed.
// Only the latest undelivered snapshot is kept: a slow reader skips
// intermediate states, never the final one.
type Subscription struct {
	C <-chan Snapshot

	ch     chan Snapshot
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// NewSubscription creates a subscription bound to ctx. Producers call Deliver
// and watch Context; consumers call Close.
func NewSubscription(ctx context.Context) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan Snapshot, 1)
	return &Subscription{C: ch, ch: ch, ctx: ctx, cancel: cancel}
}

// Context is cancelled when the subscription is closed.
func (s *Subscription) Context() context.Context {
	return s.ctx
}

// Done is closed when the subscription is closed.
func (s *Subscription) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Deliver queues snap for the consumer, replacing any snapshot not yet read.
// It returns false once the subscription is closed.
func (s *Subscription) Deliver(snap Snapshot) bool {
	for {
		if s.ctx.Err() != nil {
			return false
		}
		select {
		case s.ch <- snap:
			return true
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// Close stops the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
}
