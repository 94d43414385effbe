// Package heartbeat runs the periodic liveness sweep: evict connections that
// stopped answering, probe the rest, and keep presence stamps fresh.
package heartbeat

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/Voyage-Tech-Solutions/EduSMS-sub000/internal/domain"
	"github.com/Voyage-Tech-Solutions/EduSMS-sub000/internal/metrics"
)

// DefaultInterval is the probe cadence; a connection is evicted after two
// silent intervals.
const DefaultInterval = 30 * time.Second

// Connections is the slice of the registry the monitor drives.
type Connections interface {
	ProbeAll(env domain.Envelope) int
	StaleHandles(maxIdle time.Duration) []uuid.UUID
	Deregister(handle uuid.UUID)
}

// Presence is refreshed once per sweep so locally-healthy users never fall
// out of the shared store.
type Presence interface {
	Refresh(ctx context.Context)
}

type Monitor struct {
	conns    Connections
	presence Presence
	clock    clockwork.Clock
	interval time.Duration
}

func NewMonitor(conns Connections, presence Presence, clock clockwork.Clock, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{conns: conns, presence: presence, clock: clock, interval: interval}
}

// Interval returns the probe cadence the monitor runs at.
func (m *Monitor) Interval() time.Duration {
	return m.interval
}

// Run sweeps until the context is cancelled. A failing sweep is logged and
// the next tick proceeds normally.
func (m *Monitor) Run(ctx context.Context) {
	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	slog.Info("Heartbeat monitor started", "interval", m.interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("Heartbeat monitor stopped")
			return
		case <-ticker.Chan():
			m.Sweep(ctx)
		}
	}
}

// Sweep runs one liveness pass: evict connections silent for two intervals,
// probe everything still alive, re-stamp presence.
func (m *Monitor) Sweep(ctx context.Context) {
	start := m.clock.Now()

	stale := m.conns.StaleHandles(2 * m.interval)
	for _, handle := range stale {
		slog.Info("Evicting stale connection", "handle", handle.String())
		m.conns.Deregister(handle)
		metrics.HeartbeatEvictions.Inc()
	}

	probe, _ := domain.NewEnvelope(domain.TypePing, nil, start)
	probed := m.conns.ProbeAll(probe)

	m.presence.Refresh(ctx)

	metrics.HeartbeatSweepDuration.Observe(m.clock.Since(start).Seconds())
	slog.Debug("Heartbeat sweep finished", "probed", probed, "evicted", len(stale))
}
