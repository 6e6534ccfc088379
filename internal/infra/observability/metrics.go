package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the scheduler.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	operationDuration *prometheus.HistogramVec
	operationsTotal   *prometheus.CounterVec
	pledgesCreated    prometheus.Counter
	paymentsApplied   *prometheus.CounterVec
	eventsConsumed    *prometheus.CounterVec
	externalErrors    *prometheus.CounterVec
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pledged_operation_duration_seconds",
				Help:    "Duration of scheduler operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		operationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pledged_operations_total",
				Help: "Total scheduler operations by outcome.",
			},
			[]string{"operation", "status"},
		),
		pledgesCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pledged_pledges_created_total",
				Help: "Total pledges created with their installment schedules.",
			},
		),
		paymentsApplied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pledged_payments_applied_total",
				Help: "Total payments reconciled against schedules, by kind.",
			},
			[]string{"kind"}, // exact, underpaid, overpaid, released
		),
		eventsConsumed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pledged_payment_events_total",
				Help: "Total payment events consumed, by result.",
			},
			[]string{"result"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pledged_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pledged_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pledged_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
	}
}

// RecordOperation records one service operation with its duration.
func (m *Metrics) RecordOperation(operation, status string, d time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
	m.operationsTotal.WithLabelValues(operation, status).Inc()
}

// IncrPledgeCreated increments the pledge creation counter.
func (m *Metrics) IncrPledgeCreated() {
	m.pledgesCreated.Inc()
}

// IncrPaymentApplied increments the reconciliation counter for a kind.
func (m *Metrics) IncrPaymentApplied(kind string) {
	m.paymentsApplied.WithLabelValues(kind).Inc()
}

// IncrEventConsumed increments the payment-event counter for a result.
func (m *Metrics) IncrEventConsumed(result string) {
	m.eventsConsumed.WithLabelValues(result).Inc()
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}
