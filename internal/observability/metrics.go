package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: "ride_hail", Name: "ws_active_connections", Help: "Live websocket connections by role"},
		[]string{"role"},
	)
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_hail", Name: "ws_events_total", Help: "Inbound realtime events by name and outcome"},
		[]string{"event", "outcome"},
	)
	EventDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_hail",
			Name:      "ws_event_duration_seconds",
			Help:      "Realtime event handler latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"event"},
	)
	BroadcastsTotal = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: "ride_hail", Name: "ws_broadcasts_total", Help: "Total room broadcasts fanned out"},
	)
	FramesDropped = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: "ride_hail", Name: "ws_frames_dropped_total", Help: "Outbound frames dropped on full send buffers"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_hail", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_hail",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Outcome labels for EventsTotal.
const (
	OutcomeOK           = "ok"
	OutcomeUnauthorized = "unauthorized"
	OutcomeInvalid      = "invalid_payload"
	OutcomePrecondition = "precondition_failed"
	OutcomeUpstream     = "upstream_unavailable"
	OutcomeUnknown      = "unknown_event"
)
