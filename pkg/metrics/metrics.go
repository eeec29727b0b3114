// Package metrics exposes Prometheus collectors for the crawl and load phases.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch attempt outcomes
const (
	OutcomeSuccess   = "success"
	OutcomeRetryable = "retryable"
	OutcomeTerminal  = "terminal"
	OutcomeTransport = "transport"
)

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	fetchAttempts *prometheus.CounterVec
	fetchRetries  prometheus.Counter
	fetchDuration prometheus.Histogram
	tasks         *prometheus.CounterVec
	frontierSize  prometheus.Gauge
	currentDepth  prometheus.Gauge
	visitedSize   prometheus.Gauge
	loadedRows    *prometheus.CounterVec
}

// New registers all collectors on reg.
// Each registry may only be passed once; tests should use prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		fetchAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wikietl_fetch_attempts_total",
			Help: "HTTP fetch attempts by outcome.",
		}, []string{"outcome"}),
		fetchRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "wikietl_fetch_retries_total",
			Help: "Backoff waits taken before a retry.",
		}),
		fetchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "wikietl_fetch_duration_seconds",
			Help:    "Latency of single fetch attempts.",
			Buckets: prometheus.DefBuckets,
		}),
		tasks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wikietl_tasks_total",
			Help: "Frontier tasks by result kind.",
		}, []string{"kind"}),
		frontierSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "wikietl_frontier_size",
			Help: "Entries in the level currently being processed.",
		}),
		currentDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "wikietl_current_depth",
			Help: "BFS depth currently being processed.",
		}),
		visitedSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "wikietl_visited_urls",
			Help: "Canonical URLs claimed in the visited set.",
		}),
		loadedRows: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wikietl_loaded_rows_total",
			Help: "Rows copied into staging tables.",
		}, []string{"table"}),
	}
}

// ObserveAttempt records one fetch attempt and its latency
func (m *Metrics) ObserveAttempt(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.fetchAttempts.WithLabelValues(outcome).Inc()
	m.fetchDuration.Observe(elapsed.Seconds())
}

// ObserveRetry records a backoff wait
func (m *Metrics) ObserveRetry() {
	if m == nil {
		return
	}
	m.fetchRetries.Inc()
}

// ObserveTask records the outcome of one frontier task
func (m *Metrics) ObserveTask(kind string) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(kind).Inc()
}

// SetLevel records the depth and size of the level being processed
func (m *Metrics) SetLevel(depth, size int) {
	if m == nil {
		return
	}
	m.currentDepth.Set(float64(depth))
	m.frontierSize.Set(float64(size))
}

// SetVisited records the visited-set size
func (m *Metrics) SetVisited(n int) {
	if m == nil {
		return
	}
	m.visitedSize.Set(float64(n))
}

// AddLoadedRows records rows copied into a staging table
func (m *Metrics) AddLoadedRows(table string, n int64) {
	if m == nil {
		return
	}
	m.loadedRows.WithLabelValues(table).Add(float64(n))
}

// Handler returns an HTTP handler serving the registry's metrics
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
