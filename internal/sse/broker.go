// Package sse implements a Server-Sent Events broker for record changes and
// fault notifications.
package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Client is one connected event stream. Topics filters events by type prefix;
// an empty filter receives everything.
type Client struct {
	ID     string
	C      chan []byte
	topics []string
}

func (c *Client) wants(eventType string) bool {
	if len(c.topics) == 0 {
		return true
	}
	for _, t := range c.topics {
		if strings.HasPrefix(eventType, t) {
			return true
		}
	}
	return false
}

type recordEventReq struct {
	kind       string
	collection string
	id         string
}

// Broker manages SSE client connections and broadcasts events.
//
// A single internal event loop owns the client set and the per-collection
// throttle timestamps. Public methods talk to the loop through channels.
type Broker struct {
	changeMin time.Duration

	subscribeCh   chan *Client
	unsubscribeCh chan *Client
	publishCh     chan Event
	recordEventCh chan recordEventReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that emits at most one "collection.changed"
// event per collection per changeThrottle.
func NewBroker(changeThrottle time.Duration) *Broker {
	if changeThrottle <= 0 {
		changeThrottle = 2 * time.Second
	}

	b := &Broker{
		changeMin:     changeThrottle,
		subscribeCh:   make(chan *Client),
		unsubscribeCh: make(chan *Client),
		publishCh:     make(chan Event, 256),
		recordEventCh: make(chan recordEventReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[*Client]struct{})
	lastChange := make(map[string]time.Time)

	broadcast := func(event Event) {
		raw, err := encode(event.Type, event.Data)
		if err != nil {
			return
		}
		for c := range clients {
			if !c.wants(event.Type) {
				continue
			}
			select {
			case c.C <- raw:
			default:
				// Slow client; drop rather than stall the loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for c := range clients {
				close(c.C)
			}
			return

		case c := <-b.subscribeCh:
			clients[c] = struct{}{}

		case c := <-b.unsubscribeCh:
			if _, ok := clients[c]; ok {
				delete(clients, c)
				close(c.C)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.recordEventCh:
			broadcast(Event{
				Type: "record." + req.kind,
				Data: map[string]string{"collection": req.collection, "id": req.id},
			})

			now := time.Now()
			if now.Sub(lastChange[req.collection]) >= b.changeMin {
				lastChange[req.collection] = now
				broadcast(Event{Type: "collection.changed", Data: map[string]string{"collection": req.collection}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops the broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client filtered to the given topic prefixes.
func (b *Broker) Subscribe(topics ...string) *Client {
	c := &Client{ID: uuid.NewString(), C: make(chan []byte, 64), topics: topics}
	if b.closed.Load() {
		close(c.C)
		return c
	}

	select {
	case b.subscribeCh <- c:
	case <-b.stopped:
		close(c.C)
	}
	return c
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(c *Client) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- c:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all interested clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishFault publishes a "fault.reported" event.
func (b *Broker) PublishFault(payload map[string]any) {
	b.Publish(Event{Type: "fault.reported", Data: payload})
}

// PublishLibraryEvent publishes "library.<kind>" for a song file change.
func (b *Broker) PublishLibraryEvent(kind, path string) {
	b.Publish(Event{Type: "library." + kind, Data: map[string]string{"path": path}})
}

// PublishRecordEvent publishes "record.<kind>" plus a throttled
// "collection.changed" for the record's collection.
func (b *Broker) PublishRecordEvent(kind, collection, id string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.recordEventCh <- recordEventReq{kind: kind, collection: collection, id: id}:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events[?topics=a,b]).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	StartStream(w)
	flusher.Flush()

	var topics []string
	if raw := r.URL.Query().Get("topics"); raw != "" {
		topics = strings.Split(raw, ",")
	}
	c := b.Subscribe(topics...)
	defer b.Unsubscribe(c)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.C:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}

// StartStream writes the event-stream response headers.
func StartStream(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
}

// WriteEvent writes one event frame with data encoded as JSON.
func WriteEvent(w io.Writer, eventType string, data any) error {
	raw, err := encode(eventType, data)
	if err != nil {
		return err
	}
	_, err = w.Write(raw)
	return err
}

func encode(eventType string, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("sse: encode %s: %w", eventType, err)
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, payload)), nil
}
