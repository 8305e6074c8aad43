// Package metrics holds the Prometheus collectors of the ledger service.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "expensesplitter"

// Metrics bundles the collectors
type Metrics struct {
	registry *prometheus.Registry

	computations  *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	inconsistent  *prometheus.CounterVec
	auditDropped  prometheus.Counter
	auditWritten  prometheus.Counter
	streams       prometheus.Gauge
	purged        prometheus.Counter
	mutationsSent *prometheus.CounterVec
}

// New registers every collector on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		computations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "balance_computations_total",
			Help:      "Balance computations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "balance_computation_seconds",
			Help:      "Time spent loading a snapshot and computing balances.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		inconsistent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_inconsistencies_total",
			Help:      "Ledger entries found inconsistent, by entity type.",
		}, []string{"entity_type"}),
		auditDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_events_dropped_total",
			Help:      "Audit events dropped because the buffer was full.",
		}),
		auditWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_events_written_total",
			Help:      "Audit events persisted.",
		}),
		streams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "balance_streams_open",
			Help:      "Open balance event streams.",
		}),
		purged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expenses_purged_total",
			Help:      "Soft-deleted expenses removed by the retention sweep.",
		}),
		mutationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_mutations_total",
			Help:      "Committed ledger mutations by entity type.",
		}, []string{"entity_type"}),
	}
	reg.MustRegister(m.computations, m.duration, m.inconsistent, m.auditDropped,
		m.auditWritten, m.streams, m.purged, m.mutationsSent)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveComputation records one balance computation
func (m *Metrics) ObserveComputation(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.computations.WithLabelValues(operation, outcome).Inc()
	m.duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Inconsistent counts entries skipped or rejected as inconsistent
func (m *Metrics) Inconsistent(entityType string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.inconsistent.WithLabelValues(entityType).Add(float64(n))
}

// AuditDropped counts an audit event lost to a full buffer
func (m *Metrics) AuditDropped() {
	if m == nil {
		return
	}
	m.auditDropped.Inc()
}

// AuditWritten counts a persisted audit event
func (m *Metrics) AuditWritten() {
	if m == nil {
		return
	}
	m.auditWritten.Inc()
}

// StreamOpened tracks an event stream; call the returned func on close
func (m *Metrics) StreamOpened() func() {
	if m == nil {
		return func() {}
	}
	m.streams.Inc()
	return m.streams.Dec
}

// Purged counts expenses removed by the retention sweep
func (m *Metrics) Purged(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.purged.Add(float64(n))
}

// Mutation counts a committed change to a ledger entity
func (m *Metrics) Mutation(entityType string) {
	if m == nil {
		return
	}
	m.mutationsSent.WithLabelValues(entityType).Inc()
}
