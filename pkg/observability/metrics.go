// Package observability exposes the Prometheus metrics the intake pipeline
// reports.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics handles application metrics and monitoring
type Metrics struct {
	operationDuration *prometheus.HistogramVec
	operationTotal    *prometheus.CounterVec
	itemBytes         *prometheus.HistogramVec
	reductionTotal    *prometheus.CounterVec
	overflowTotal     *prometheus.CounterVec
	conflictTotal     prometheus.Counter
	authRefreshTotal  prometheus.Counter
}

// NewMetrics registers the intake metrics on a registerer. Passing nil uses
// the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		operationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "intake",
			Name:      "operation_duration_seconds",
			Help:      "Latency of intake operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "status"}),
		operationTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Name:      "operations_total",
			Help:      "Count of intake operations by outcome.",
		}, []string{"operation", "status"}),
		itemBytes: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "intake",
			Name:      "item_bytes",
			Help:      "Serialized size of items written to the keyed store.",
			Buckets:   prometheus.ExponentialBuckets(1024, 2, 10),
		}, []string{"table"}),
		reductionTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Name:      "size_reductions_total",
			Help:      "Count of size reduction strategies applied.",
		}, []string{"strategy"}),
		overflowTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "intake",
			Name:      "overflow_spills_total",
			Help:      "Count of fields offloaded to the blob store.",
		}, []string{"kind"}),
		conflictTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "intake",
			Name:      "write_conflicts_total",
			Help:      "Count of optimistic-version write conflicts.",
		}),
		authRefreshTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "intake",
			Name:      "auth_refreshes_total",
			Help:      "Count of operations retried after a credential refresh.",
		}),
	}
}

// RecordOperation records the latency and outcome of one intake operation.
func (m *Metrics) RecordOperation(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.operationDuration.WithLabelValues(operation, status).Observe(duration.Seconds())
	m.operationTotal.WithLabelValues(operation, status).Inc()
}

// RecordItemBytes records the written size of an item.
func (m *Metrics) RecordItemBytes(table string, size int) {
	if m == nil {
		return
	}
	m.itemBytes.WithLabelValues(table).Observe(float64(size))
}

// RecordReduction records one applied size reduction strategy.
func (m *Metrics) RecordReduction(strategy string) {
	if m == nil {
		return
	}
	m.reductionTotal.WithLabelValues(strategy).Inc()
}

// RecordOverflow records one field offloaded to the blob store.
func (m *Metrics) RecordOverflow(kind string) {
	if m == nil {
		return
	}
	m.overflowTotal.WithLabelValues(kind).Inc()
}

// RecordConflict records one optimistic-version write conflict.
func (m *Metrics) RecordConflict() {
	if m == nil {
		return
	}
	m.conflictTotal.Inc()
}

// RecordAuthRefresh records one refresh-and-retry cycle.
func (m *Metrics) RecordAuthRefresh() {
	if m == nil {
		return
	}
	m.authRefreshTotal.Inc()
}
