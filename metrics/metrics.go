// Package metrics registers Prometheus instrumentation for an mxdb
// environment, grounded on tree_db/internal/metrics's use of
// prometheus/client_golang + promauto for a storage engine's operation
// counters and gauges.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector an Env reports through.
type Metrics struct {
	TxnTotal     *prometheus.CounterVec
	TxnDuration  *prometheus.HistogramVec
	DirtyPages   prometheus.Gauge
	FreelistSize prometheus.Gauge
	ReadersActive prometheus.Gauge
	LastPgno     prometheus.Gauge
}

// New registers a fresh set of collectors against the default registry.
// Call it once per process per environment label; registering the same
// label twice panics (the standard promauto behavior), matching how a
// single long-lived process is expected to own one Metrics per env.
func New(envLabel string) *Metrics {
	constLabels := prometheus.Labels{"env": envLabel}

	return &Metrics{
		TxnTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name:        "mxdb_txn_total",
			Help:        "Total number of transactions by kind and outcome.",
			ConstLabels: constLabels,
		}, []string{"kind", "outcome"}),

		TxnDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "mxdb_txn_duration_seconds",
			Help:        "Transaction duration in seconds by kind.",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"kind"}),

		DirtyPages: promauto.NewGauge(prometheus.GaugeOpts{
			Name:        "mxdb_dirty_pages",
			Help:        "Dirty pages held by the current write transaction.",
			ConstLabels: constLabels,
		}),

		FreelistSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name:        "mxdb_freelist_pages",
			Help:        "Pages reclaimable from the free-DB and in-transaction free list.",
			ConstLabels: constLabels,
		}),

		ReadersActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name:        "mxdb_readers_active",
			Help:        "Reader slots currently bound to a snapshot.",
			ConstLabels: constLabels,
		}),

		LastPgno: promauto.NewGauge(prometheus.GaugeOpts{
			Name:        "mxdb_last_pgno",
			Help:        "next_pgno of the most recently committed meta page.",
			ConstLabels: constLabels,
		}),
	}
}

// ObserveCommit records a completed write transaction's duration and
// dirty-page count.
func (m *Metrics) ObserveCommit(dirtyPages int, seconds float64) {
	if m == nil {
		return
	}
	m.TxnTotal.WithLabelValues("write", "commit").Inc()
	m.TxnDuration.WithLabelValues("write").Observe(seconds)
	m.DirtyPages.Set(float64(dirtyPages))
}

// ObserveAbort records an aborted transaction.
func (m *Metrics) ObserveAbort(kind string, seconds float64) {
	if m == nil {
		return
	}
	m.TxnTotal.WithLabelValues(kind, "abort").Inc()
	m.TxnDuration.WithLabelValues(kind).Observe(seconds)
}
