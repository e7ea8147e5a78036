package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the quiz room server.
//
// Naming convention: namespace_subsystem_name
// - namespace: quizhall (application-level grouping)
// - subsystem: websocket, room, snapshot (feature-level grouping)
// - name: specific metric (connections_active, events_total, etc.)
//
// Metric Types:
// - Gauge: Current state (connections, rooms, participants)
// - Counter: Cumulative events (messages processed, errors)
// - Histogram: Latency distributions (processing time)

var (
	// ActiveWebSocketConnections tracks the current number of active WebSocket connections
	ActiveWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quizhall",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// ActiveRooms tracks the current number of live rooms
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quizhall",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	})

	// RoomParticipants tracks the number of participants per room
	RoomParticipants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "quizhall",
		Subsystem: "room",
		Name:      "participants_count",
		Help:      "Number of participants in each room",
	}, []string{"room_code"})

	// WebsocketEvents tracks the total number of WebSocket events processed
	WebsocketEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quizhall",
		Subsystem: "websocket",
		Name:      "events_total",
		Help:      "Total WebSocket events processed",
	}, []string{"event_type", "status"})

	// MessageProcessingDuration tracks the time spent processing WebSocket messages
	MessageProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "quizhall",
		Subsystem: "websocket",
		Name:      "message_processing_seconds",
		Help:      "Time spent processing WebSocket messages",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"event_type"})

	// RoundsFinalized counts round completions by evaluation mode
	RoundsFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quizhall",
		Subsystem: "room",
		Name:      "rounds_finalized_total",
		Help:      "Total rounds finalized, labelled by evaluation mode",
	}, []string{"mode"})

	// SnapshotWriteDuration tracks the time spent writing room snapshots to disk
	SnapshotWriteDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "quizhall",
		Subsystem: "snapshot",
		Name:      "write_seconds",
		Help:      "Time spent serializing and writing the room snapshot file",
		Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
	})

	// CircuitBreakerState exposes the analytics mirror circuit breaker state
	// (0 = closed, 1 = open, 2 = half-open)
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "quizhall",
		Subsystem: "analytics",
		Name:      "circuit_breaker_state",
		Help:      "State of the analytics Redis circuit breaker (0=closed, 1=open, 2=half-open)",
	}, []string{"name"})

	// CircuitBreakerFailures counts operations dropped by an open breaker
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quizhall",
		Subsystem: "analytics",
		Name:      "circuit_breaker_failures_total",
		Help:      "Total operations rejected while the circuit breaker was open",
	}, []string{"name"})

	// RateLimitExceeded counts rejected requests by endpoint and limit type
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quizhall",
		Subsystem: "ratelimit",
		Name:      "exceeded_total",
		Help:      "Total requests rejected by rate limiting",
	}, []string{"endpoint", "limit_type"})

	// RateLimitRequests counts requests that passed rate limiting
	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quizhall",
		Subsystem: "ratelimit",
		Name:      "requests_total",
		Help:      "Total requests checked against rate limiting",
	}, []string{"endpoint"})
)

func IncConnection() {
	ActiveWebSocketConnections.Inc()
}

func DecConnection() {
	ActiveWebSocketConnections.Dec()
}
