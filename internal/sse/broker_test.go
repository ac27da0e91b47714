package sse

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	c := b.Subscribe()
	if c.ID == "" {
		t.Error("client id should be assigned")
	}
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(c)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	c := b.Subscribe()
	defer b.Unsubscribe(c)

	b.Publish(Event{Type: "fault.reported", Data: map[string]string{"path": "songs/1"}})

	select {
	case msg := <-c.C:
		s := string(msg)
		if !strings.Contains(s, "event: fault.reported") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"path":"songs/1"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestTopicFilter(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	faults := b.Subscribe("fault.")
	defer b.Unsubscribe(faults)

	b.Publish(Event{Type: "record.created", Data: map[string]string{}})
	b.Publish(Event{Type: "fault.reported", Data: map[string]string{}})

	select {
	case msg := <-faults.C:
		if !strings.Contains(string(msg), "fault.reported") {
			t.Errorf("filtered client got %q", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishRecordEvent_ChangeThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	c := b.Subscribe()
	defer b.Unsubscribe(c)

	b.PublishRecordEvent("created", "songs", "s1")
	b.PublishRecordEvent("updated", "songs", "s1")
	b.PublishRecordEvent("created", "setlists", "l1")

	time.Sleep(50 * time.Millisecond)
	changed, records := 0, 0
loop:
	for {
		select {
		case msg := <-c.C:
			if strings.Contains(string(msg), "collection.changed") {
				changed++
			} else {
				records++
			}
		default:
			break loop
		}
	}

	if records != 3 {
		t.Errorf("record events = %d, want 3", records)
	}
	if changed != 2 {
		t.Errorf("collection.changed events = %d, want 2 (one per collection)", changed)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.PublishRecordEvent("deleted", "songs", "s9")
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: record.deleted") {
		t.Errorf("handler output missing event: %q", body)
	}
	if got := w.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q", got)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestWriteEvent(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteEvent(&buf, "snapshot", map[string]int{"n": 1}); err != nil {
		t.Fatal(err)
	}
	if got, want := buf.String(), "event: snapshot\ndata: {\"n\":1}\n\n"; got != want {
		t.Errorf("WriteEvent = %q, want %q", got, want)
	}
	if err := WriteEvent(&buf, "bad", make(chan int)); err == nil {
		t.Error("expected encode error")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	c := b.Subscribe()
	defer b.Unsubscribe(c)

	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	c := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-c.C:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	b.Publish(Event{Type: "record.updated", Data: map[string]string{"id": "x"}})
	b.PublishRecordEvent("updated", "songs", "x")
}

func TestPublishFaultAndLibraryEvent(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	c := b.Subscribe("fault.", "library.")
	defer b.Unsubscribe(c)

	b.PublishFault(map[string]any{"op": "create", "path": "songs"})
	b.PublishLibraryEvent("deleted", "hymns/grace.md")

	for _, want := range []string{"event: fault.reported", "event: library.deleted"} {
		select {
		case msg := <-c.C:
			if !strings.Contains(string(msg), want) {
				t.Errorf("got %q, want %q", msg, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %s", want)
		}
	}
}
