// Package metrics exposes the process's Prometheus instrumentation: the
// ingestion, running-total, and notification counters named in §4.6 and
// §4.9 ("surface via metrics", "emit alert").
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every counter/gauge the settlement engine publishes.
type Metrics struct {
	registry *prometheus.Registry

	IngestionsTotal        *prometheus.CounterVec
	IngestionDuplicates    prometheus.Counter
	EventDispatchFailures  prometheus.Counter

	RunningTotalProcessed  *prometheus.CounterVec
	RunningTotalRetries    *prometheus.CounterVec
	RunningTotalDeadLetter *prometheus.CounterVec

	NotificationDelivered prometheus.Counter
	NotificationRetries   prometheus.Counter
	NotificationFailed    prometheus.Counter

	WorkflowTransitions *prometheus.CounterVec
}

// New creates and registers all metrics on a dedicated registry (kept
// separate from the default global registry so tests can construct a
// fresh instance per case without collisions).
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		IngestionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_ingestions_total",
			Help: "Total settlement ingestion attempts by outcome.",
		}, []string{"outcome"}),
		IngestionDuplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "settlement_ingestion_duplicates_total",
			Help: "Total ingestions short-circuited by the idempotency check.",
		}),
		EventDispatchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "settlement_event_dispatch_failures_total",
			Help: "Total post-commit event emission failures enqueued for retry.",
		}),
		RunningTotalProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "running_total_events_processed_total",
			Help: "Total running-total events processed by outcome.",
		}, []string{"outcome"}),
		RunningTotalRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "running_total_retries_total",
			Help: "Total running-total event retry attempts by attempt number.",
		}, []string{"attempt"}),
		RunningTotalDeadLetter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "running_total_dead_letters_total",
			Help: "Total running-total events moved to the dead-letter store.",
		}, []string{"pts", "processing_entity"}),
		NotificationDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notification_delivered_total",
			Help: "Total notifications successfully delivered.",
		}),
		NotificationRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notification_retries_total",
			Help: "Total notification delivery retry attempts.",
		}),
		NotificationFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notification_failed_total",
			Help: "Total notifications moved to the failure table after exhausting retries.",
		}),
		WorkflowTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_transitions_total",
			Help: "Total approval-workflow transitions by target state.",
		}, []string{"to_state"}),
	}

	reg.MustRegister(
		m.IngestionsTotal, m.IngestionDuplicates, m.EventDispatchFailures,
		m.RunningTotalProcessed, m.RunningTotalRetries, m.RunningTotalDeadLetter,
		m.NotificationDelivered, m.NotificationRetries, m.NotificationFailed,
		m.WorkflowTransitions,
	)
	return m
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
