package mirror

import (
	"context"
	"log/slog"
	"time"

	"github.com/starford/setlist/internal/remote"
)

// Monitor probes remote store reachability and drives Mirror.SetOnline.
type Monitor struct {
	pinger   remote.Pinger
	mirror   *Mirror
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// NewMonitor creates a monitor probing every interval.
func NewMonitor(p remote.Pinger, m *Mirror, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	timeout := interval / 2
	if timeout > 3*time.Second {
		timeout = 3 * time.Second
	}
	return &Monitor{pinger: p, mirror: m, interval: interval, timeout: timeout, logger: m.logger}
}

// Probe checks reachability once and applies the result.
func (mo *Monitor) Probe(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, mo.timeout)
	defer cancel()

	err := mo.pinger.Ping(pctx)
	if ctx.Err() != nil {
		return mo.mirror.Online()
	}
	online := err == nil
	if !online && mo.mirror.Online() {
		mo.logger.Warn("remote store unreachable", slog.String("error", err.Error()))
	}
	mo.mirror.SetOnline(ctx, online)
	return online
}

// Run probes immediately and then on every tick until ctx is done.
func (mo *Monitor) Run(ctx context.Context) {
	mo.Probe(ctx)

	ticker := time.NewTicker(mo.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mo.Probe(ctx)
		}
	}
}
