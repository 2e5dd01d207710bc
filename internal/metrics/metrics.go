// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomchat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roomchat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Channel metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomchat_events_published_total",
			Help: "Events published on room and presence channels",
		},
		[]string{"namespace", "kind"},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomchat_events_dropped_total",
			Help: "Events discarded by subscribers",
		},
		[]string{"reason"}, // "duplicate", "decode", "stale", "slow_consumer"
	)

	ActiveSubscriptions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "roomchat_active_subscriptions",
			Help: "Open channel subscriptions",
		},
		[]string{"namespace"},
	)

	// Store metrics
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roomchat_store_operation_duration_seconds",
			Help:    "Message store operation latency",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .5},
		},
		[]string{"backend", "op"},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomchat_store_errors_total",
			Help: "Message store operations that failed",
		},
		[]string{"backend", "op"},
	)

	// Presence and sync metrics
	OnlineParticipants = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "roomchat_online_participants",
			Help: "Distinct participants online across all rooms",
		},
	)

	PresenceSweeps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomchat_presence_stale_entries_total",
			Help: "Presence entries removed by the stale sweep",
		},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "roomchat_active_sessions",
			Help: "Websocket sessions with a running sync engine",
		},
	)

	Resyncs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomchat_resyncs_total",
			Help: "Full room reloads started by sync engines",
		},
		[]string{"reason"}, // "requested", "presence_expired", "heartbeat_failed", ...
	)
)
