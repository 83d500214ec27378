// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConfirmationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frontdesk_confirmations_total",
			Help: "Cash payment confirmation attempts by final status",
		},
		[]string{"status"},
	)

	RemoteCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frontdesk_remote_calls_total",
			Help: "Remote confirmation calls by outcome",
		},
		[]string{"outcome"},
	)

	FallbackStepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frontdesk_fallback_steps_total",
			Help: "Client-driven fallback writes by step and result",
		},
		[]string{"step", "result"},
	)

	ConfirmationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "frontdesk_confirmation_duration_seconds",
			Help:    "Duration of a confirmation attempt in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	ListenerEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frontdesk_listener_events_total",
			Help: "Channel payloads received by decode result",
		},
		[]string{"result"},
	)

	ListenerReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "frontdesk_listener_reconnects_total",
			Help: "Channel subscription reconnect attempts",
		},
	)

	ListenerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "frontdesk_listener_state",
			Help: "1 for the listener's current state, 0 otherwise",
		},
		[]string{"channel", "state"},
	)

	DispatcherQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "frontdesk_dispatcher_queue_depth",
			Help: "Events published but not yet consumed",
		},
	)

	EntriesDeliveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frontdesk_entries_delivered_total",
			Help: "Entry events handed to the consumer callback, by result",
		},
		[]string{"result"},
	)
)
