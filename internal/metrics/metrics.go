// Package metrics defines the Prometheus collectors for the realtime core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry metrics
var (
	// ActiveConnections tracks currently open WebSocket connections.
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_active_connections",
			Help: "Number of currently open WebSocket connections",
		},
	)

	// ConnectionsTotal counts accepted connections by kind (authenticated/anonymous).
	ConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_connections_total",
			Help: "Total accepted connections by kind",
		},
		[]string{"kind"},
	)

	// DeliveriesTotal counts local delivery attempts by outcome.
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_deliveries_total",
			Help: "Local message deliveries by outcome (sent/overflow/closed)",
		},
		[]string{"outcome"},
	)

	// SlowClientsEvicted counts connections dropped for a full outbound queue.
	SlowClientsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_slow_clients_evicted_total",
			Help: "Connections evicted because their outbound queue overflowed",
		},
	)

	// ActiveChannels tracks channels with at least one local subscriber.
	ActiveChannels = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_active_channels",
			Help: "Channels with at least one local subscriber",
		},
	)
)

// Heartbeat metrics
var (
	// HeartbeatEvictions counts connections evicted for missing liveness.
	HeartbeatEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_heartbeat_evictions_total",
			Help: "Connections evicted by the heartbeat monitor",
		},
	)

	// HeartbeatSweepDuration tracks the duration of a full probe sweep.
	HeartbeatSweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "realtime_heartbeat_sweep_duration_seconds",
			Help:    "Duration of one heartbeat sweep over all local connections",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1},
		},
	)
)

// Bridge metrics
var (
	// BridgePublishedTotal counts messages published to the shared broker.
	BridgePublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_bridge_published_total",
			Help: "Messages published to the broker by status",
		},
		[]string{"status"},
	)

	// BridgeReceivedTotal counts messages received from peer instances.
	BridgeReceivedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_bridge_received_total",
			Help: "Messages relayed from peer instances via the broker",
		},
	)

	// BridgeDroppedTotal counts undecodable broker messages.
	BridgeDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_bridge_dropped_total",
			Help: "Broker messages dropped as undecodable",
		},
	)

	// BridgeDegraded is 1 while the bridge runs in local-only mode.
	BridgeDegraded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_bridge_degraded",
			Help: "1 while the bridge is degraded to local-only delivery",
		},
	)
)

// Presence metrics
var (
	// PresenceOpsTotal counts presence store operations by op and status.
	PresenceOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_presence_operations_total",
			Help: "Presence store operations by operation and status",
		},
		[]string{"operation", "status"},
	)
)

// Dispatcher metrics
var (
	// FramesTotal counts inbound frames by type and outcome.
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_frames_total",
			Help: "Inbound client frames by type and outcome",
		},
		[]string{"type", "outcome"},
	)
)

// Circuit breaker metrics
var (
	// CircuitBreakerStateChanges tracks circuit breaker state transitions.
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)

	// CircuitBreakerState tracks current state (0=closed, 1=half-open, 2=open).
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)
)
