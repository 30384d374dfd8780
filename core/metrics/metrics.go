// Package metrics provides Prometheus metrics for query and reindex
// activity.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Query statuses.
const (
	StatusOK      = "ok"
	StatusInvalid = "invalid"
	StatusError   = "error"
	StatusCached  = "cached"
)

// Reindex outcomes.
const (
	OutcomeReindexed = "reindexed"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	QueriesTotal    *prometheus.CounterVec
	QueryDuration   prometheus.Histogram
	ReindexTotal    *prometheus.CounterVec
	ReindexDuration prometheus.Histogram
	IndexedPages    prometheus.Gauge
	IndexRevision   prometheus.Gauge
}

// New creates and registers all metrics on a fresh registry. Go runtime
// and process collectors are included when withRuntime is set.
func New(withRuntime bool) *Metrics {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		QueriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wikisearch_queries_total",
				Help: "Total number of search queries by status",
			},
			[]string{"status"},
		),
		QueryDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "wikisearch_query_duration_seconds",
				Help:    "Duration of search queries in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
		),
		ReindexTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wikisearch_reindex_total",
				Help: "Total number of reindex cycles by outcome",
			},
			[]string{"outcome"},
		),
		ReindexDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "wikisearch_reindex_duration_seconds",
				Help:    "Duration of completed reindexes in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		),
		IndexedPages: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "wikisearch_indexed_pages",
				Help: "Number of pages in the current index generation",
			},
		),
		IndexRevision: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "wikisearch_index_revision",
				Help: "Wiki revision the current index was built from",
			},
		),
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordQuery records a finished query.
func (m *Metrics) RecordQuery(status string, duration time.Duration) {
	m.QueriesTotal.WithLabelValues(status).Inc()
	if status != StatusInvalid {
		m.QueryDuration.Observe(duration.Seconds())
	}
}

// RecordReindex records a reindex cycle. Duration is observed only for
// completed reindexes.
func (m *Metrics) RecordReindex(outcome string, duration time.Duration) {
	m.ReindexTotal.WithLabelValues(outcome).Inc()
	if outcome == OutcomeReindexed {
		m.ReindexDuration.Observe(duration.Seconds())
	}
}

// SetIndexState updates the index gauges.
func (m *Metrics) SetIndexState(pages uint64, revision uint32) {
	m.IndexedPages.Set(float64(pages))
	m.IndexRevision.Set(float64(revision))
}
