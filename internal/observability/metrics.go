package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
)

var (
	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sameem_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// WebSocketConnectionsTotal is the gauge of total WebSocket connections.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sameem_websocket_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	// WebSocketEventsTotal counts WebSocket events by type.
	WebSocketEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sameem_websocket_events_total",
		Help: "Total WebSocket events by type",
	}, []string{"event_type"})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sameem_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})

	// MessagesTotal counts chat messages by type and initial status.
	MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sameem_messages_total",
		Help: "Total chat messages created, by type and initial status",
	}, []string{"type", "status"})

	// TypingSignalsTotal counts typing indicator transitions.
	TypingSignalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sameem_typing_signals_total",
		Help: "Typing indicator transitions published",
	}, []string{"state"})

	// CallSignalsTotal counts relayed call-signaling payloads by kind.
	CallSignalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sameem_call_signals_total",
		Help: "Call signaling payloads relayed, by kind",
	}, []string{"kind"})

	// CallsTotal counts call outcomes.
	CallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sameem_calls_total",
		Help: "Calls by outcome (accepted, rejected, auto_rejected, ended)",
	}, []string{"outcome"})

	// GameMovesTotal counts tic-tac-toe moves accepted.
	GameMovesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sameem_game_moves_total",
		Help: "Tic-tac-toe moves accepted",
	})

	// PresenceOnlineUsers is the gauge of users currently marked online.
	PresenceOnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sameem_presence_online_users",
		Help: "Users currently marked online",
	})
)

// DatabaseMetrics wraps DB access for recording query latency.
type DatabaseMetrics struct {
	db *gorm.DB
}

// NewDatabaseMetrics returns a new DatabaseMetrics instance.
func NewDatabaseMetrics(db *gorm.DB) *DatabaseMetrics {
	return &DatabaseMetrics{db: db}
}

// ObserveQuery records the latency of a database query.
func (m *DatabaseMetrics) ObserveQuery(operation, table string, start time.Time) {
	latency := time.Since(start).Seconds()
	DatabaseQueryLatency.WithLabelValues(operation, table).Observe(latency)
}

// TrackQuery returns a function that records query latency when called (e.g. defer).
func (m *DatabaseMetrics) TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		m.ObserveQuery(operation, table, start)
	}
}

// RecordWebSocketEvent increments the WebSocket events counter for the event type.
func RecordWebSocketEvent(eventType string) {
	WebSocketEventsTotal.WithLabelValues(eventType).Inc()
}
