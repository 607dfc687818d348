// Package metrics exports Prometheus instrumentation for the signal
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookRequests counts inbound webhook requests by outcome.
	WebhookRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signal_bridge_webhook_requests_total",
		Help: "Inbound TradingView webhook requests by outcome.",
	}, []string{"outcome"})

	// SignalsCreated counts signals persisted in pending state.
	SignalsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signal_bridge_signals_created_total",
		Help: "Signals accepted and enqueued as pending.",
	})

	// SignalsDelivered counts signals claimed by EA polls.
	SignalsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signal_bridge_signals_delivered_total",
		Help: "Signals delivered to a polling EA.",
	})

	// SignalsResolved counts terminal transitions by final status.
	SignalsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signal_bridge_signals_resolved_total",
		Help: "Signals reaching a terminal status.",
	}, []string{"status"})

	// IngestDuration observes webhook processing latency.
	IngestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "signal_bridge_ingest_duration_seconds",
		Help:    "Webhook ingestion latency.",
		Buckets: prometheus.DefBuckets,
	})
)
