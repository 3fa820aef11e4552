package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the scorecast backend.
//
// Naming convention: namespace_subsystem_name
// - namespace: scorecast (application-level grouping)
// - subsystem: websocket, room, http, cache (feature-level grouping)
// - name: specific metric (connections_active, messages_enqueued_total, etc.)
//
// Metric Types:
// - Gauge: Current state (connections, rooms, members)
// - Counter: Cumulative events (messages enqueued, drops, rate-limit hits)
// - Histogram: Distributions (broadcast fanout, batch sizes)

var (
	// ActiveWebSocketConnections tracks the current number of live sessions.
	ActiveWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "scorecast",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket sessions",
	})

	// ActiveRooms tracks the current number of registered rooms in the hub.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "scorecast",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of rooms registered with the hub",
	})

	// RoomMembers tracks the number of connected sessions in each room.
	RoomMembers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "scorecast",
		Subsystem: "room",
		Name:      "members_count",
		Help:      "Number of connected sessions in each room",
	}, []string{"room_id"})

	// MessagesEnqueued counts every successful enqueue on a session queue, by kind.
	MessagesEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scorecast",
		Subsystem: "websocket",
		Name:      "messages_enqueued_total",
		Help:      "Total messages enqueued to session send queues",
	}, []string{"kind"})

	// MessagesDropped counts queue-full drops, by the policy that caused them.
	MessagesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scorecast",
		Subsystem: "websocket",
		Name:      "messages_dropped_total",
		Help:      "Total messages dropped because a session queue was full",
	}, []string{"policy"})

	// MessagesCoalesced counts messages absorbed by the per-session coalesce buffer
	// (overwritten before the window flushed).
	MessagesCoalesced = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scorecast",
		Subsystem: "websocket",
		Name:      "messages_coalesced_total",
		Help:      "Total messages superseded inside a coalesce window",
	})

	// SlowClientDisconnects counts sessions closed with code 4002.
	SlowClientDisconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scorecast",
		Subsystem: "websocket",
		Name:      "slow_client_disconnects_total",
		Help:      "Total sessions closed for exceeding the drop threshold",
	})

	// BroadcastFanout records how many sessions each broadcast attempted to reach.
	BroadcastFanout = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "scorecast",
		Subsystem: "room",
		Name:      "broadcast_fanout",
		Help:      "Sessions targeted per broadcast",
		Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
	})

	// BatchSize records how many pending messages each batch flush combined.
	BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "scorecast",
		Subsystem: "room",
		Name:      "batch_size",
		Help:      "Pending messages combined per batched_update flush",
		Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
	})

	// RateLimitRequests counts requests that passed the rate limiter.
	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scorecast",
		Subsystem: "http",
		Name:      "ratelimit_requests_total",
		Help:      "Total requests checked against the rate limiter",
	}, []string{"endpoint"})

	// RateLimitExceeded counts requests rejected by the rate limiter.
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scorecast",
		Subsystem: "http",
		Name:      "ratelimit_exceeded_total",
		Help:      "Total requests rejected by the rate limiter",
	}, []string{"endpoint", "limit_type"})

	// CircuitBreakerState reports the current breaker state (0 closed, 1 open, 2 half-open).
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "scorecast",
		Subsystem: "cache",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state: 0=closed, 1=open, 2=half-open",
	}, []string{"name"})

	// CircuitBreakerFailures counts operations refused by an open breaker.
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scorecast",
		Subsystem: "cache",
		Name:      "circuit_breaker_failures_total",
		Help:      "Operations refused because the circuit breaker was open",
	}, []string{"name"})
)

func IncConnection() {
	ActiveWebSocketConnections.Inc()
}

func DecConnection() {
	ActiveWebSocketConnections.Dec()
}
