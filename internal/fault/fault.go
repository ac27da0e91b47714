// Package fault reports failed remote operations to the user-facing layers.
package fault

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Operation is the kind of remote call that failed.
type Operation string

const (
	OpList      Operation = "list"
	OpSubscribe Operation = "subscribe"
	OpCreate    Operation = "create"
	OpUpdate    Operation = "update"
	OpDelete    Operation = "delete"
)

// Fault describes one failed operation. Path is "<collection>" or
// "<collection>/<id>".
type Fault struct {
	Op      Operation      `json:"op"`
	Path    string         `json:"path"`
	Payload map[string]any `json:"payload,omitempty"`
	Err     error          `json:"-"`
	At      time.Time      `json:"at"`
}

// Message returns the underlying error text.
func (f Fault) Message() string {
	if f.Err == nil {
		return ""
	}
	return f.Err.Error()
}

// Offline reports whether the failure is a cancellation, which the mirror
// treats as going offline rather than a store error.
func (f Fault) Offline() bool {
	return errors.Is(f.Err, context.Canceled) || errors.Is(f.Err, context.DeadlineExceeded)
}

// Reporter receives faults. Implementations must not block the caller.
type Reporter interface {
	Report(f Fault)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Fault)

// Report implements Reporter.
func (fn ReporterFunc) Report(f Fault) { fn(f) }

// LogReporter writes faults to a structured logger.
type LogReporter struct {
	Logger *slog.Logger
}

// Report implements Reporter.
func (r LogReporter) Report(f Fault) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error("remote operation failed",
		slog.String("op", string(f.Op)),
		slog.String("path", f.Path),
		slog.String("error", f.Message()))
}

// Publisher is the event sink used by EmitterReporter. sse.Broker satisfies it.
type Publisher interface {
	PublishFault(payload map[string]any)
}

// EmitterReporter forwards faults as "fault.reported" events so connected
// UIs can surface them.
type EmitterReporter struct {
	Publisher Publisher
}

// Report implements Reporter.
func (r EmitterReporter) Report(f Fault) {
	r.Publisher.PublishFault(map[string]any{
		"op":    string(f.Op),
		"path":  f.Path,
		"error": f.Message(),
		"at":    f.At.UTC().Format(time.RFC3339),
	})
}

// Multi fans a fault out to several reporters.
type Multi []Reporter

// Report implements Reporter.
func (m Multi) Report(f Fault) {
	for _, r := range m {
		if r != nil {
			r.Report(f)
		}
	}
}

// Discard drops every fault.
var Discard Reporter = ReporterFunc(func(Fault) {})
