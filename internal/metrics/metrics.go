package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bidline/internal/domain"
)

// Metrics holds the engagement counters. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Registry    *prometheus.Registry
	transitions *prometheus.CounterVec
	operations  *prometheus.CounterVec
	retries     prometheus.Counter
	duration    *prometheus.HistogramVec
	relayed     *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bidline_transitions_total",
			Help: "Entity status transitions committed.",
		}, []string{"entity", "from", "to"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bidline_operations_total",
			Help: "Engine operations by outcome.",
		}, []string{"operation", "outcome"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bidline_tx_retries_total",
			Help: "Transactions retried after a storage failure.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bidline_operation_duration_seconds",
			Help:    "Engine operation latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		relayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bidline_relay_deliveries_total",
			Help: "Audit events delivered to relay sinks.",
		}, []string{"sink", "outcome"}),
	}
	reg.MustRegister(m.transitions, m.operations, m.retries, m.duration, m.relayed)
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return m
}

func (m *Metrics) Transition(entity, from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(entity, from, to).Inc()
}

// Observe records one finished operation.
func (m *Metrics) Observe(operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, domain.Outcome(err)).Inc()
	m.duration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

func (m *Metrics) Retry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) Relayed(sink string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.relayed.WithLabelValues(sink, outcome).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
