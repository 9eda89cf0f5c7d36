// Package metrics provides Prometheus metrics for the pharmacy chat engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	MessagesProcessed     *prometheus.CounterVec
	PreviewsCreated       prometheus.Counter
	PreviewsSuperseded    prometheus.Counter
	OrdersConfirmed       prometheus.Counter
	OrdersCancelled       prometheus.Counter
	PolicyRejections      prometheus.Counter
	CollaboratorFailures  *prometheus.CounterVec
	RefillFallbacks       prometheus.Counter
	TurnDuration          prometheus.Histogram
	PendingPreviews       prometheus.Gauge
	KafkaMessagesProduced prometheus.Counter
	OutboxPending         prometheus.Gauge
	CircuitBreakerState   *prometheus.GaugeVec
}

// New creates all metrics and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all metrics and registers them with reg. Tests pass
// a fresh registry so multiple instances can coexist in one process.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_messages_processed_total",
			Help: "Total chat messages processed, by resolved intent",
		}, []string{"intent"}),
		PreviewsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "order_previews_created_total",
			Help: "Total order previews created",
		}),
		PreviewsSuperseded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "order_previews_superseded_total",
			Help: "Total pending previews replaced by a newer order",
		}),
		OrdersConfirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_confirmed_total",
			Help: "Total orders confirmed",
		}),
		OrdersCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_cancelled_total",
			Help: "Total orders cancelled",
		}),
		PolicyRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "policy_rejections_total",
			Help: "Total orders rejected by safety policy",
		}),
		CollaboratorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collaborator_failures_total",
			Help: "Total reasoning collaborator failures, by operation",
		}, []string{"op"}),
		RefillFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "refill_fallback_total",
			Help: "Total refill predictions served by the deterministic fallback",
		}),
		TurnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chat_turn_duration_seconds",
			Help:    "End to end chat turn duration",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		PendingPreviews: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "order_previews_pending",
			Help: "Previews currently awaiting confirmation",
		}),
		KafkaMessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kafka_messages_produced_total",
			Help: "Total Kafka messages produced",
		}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_pending_entries",
			Help: "Pending outbox entries",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
	}

	reg.MustRegister(
		m.MessagesProcessed,
		m.PreviewsCreated,
		m.PreviewsSuperseded,
		m.OrdersConfirmed,
		m.OrdersCancelled,
		m.PolicyRejections,
		m.CollaboratorFailures,
		m.RefillFallbacks,
		m.TurnDuration,
		m.PendingPreviews,
		m.KafkaMessagesProduced,
		m.OutboxPending,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
