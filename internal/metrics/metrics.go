// Package metrics provides Prometheus metrics for the unbundler worker.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the worker. Each instance owns
// its registry so several can coexist in one process.
type Metrics struct {
	Registry *prometheus.Registry

	// Queue metrics
	PollsTotal      *prometheus.CounterVec
	ItemsReceived   prometheus.Counter
	ItemsResolved   *prometheus.CounterVec
	ItemsInFlight   prometheus.Gauge
	ResolveFailures *prometheus.CounterVec

	// Pipeline metrics
	FailuresTotal    *prometheus.CounterVec
	StageDuration    *prometheus.HistogramVec
	ItemDuration     prometheus.Histogram
	RowsWrittenTotal prometheus.Counter
	ColumnsPerTable  prometheus.Histogram
}

// NewMetrics creates and registers all worker metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	m := &Metrics{Registry: reg}

	m.PollsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unbundler_polls_total",
			Help: "Total number of queue polls",
		},
		[]string{"status"},
	)

	m.ItemsReceived = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "unbundler_items_received_total",
			Help: "Total number of work items received from the queue",
		},
	)

	m.ItemsResolved = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unbundler_items_resolved_total",
			Help: "Total number of work items by final disposition",
		},
		[]string{"disposition"},
	)

	m.ItemsInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "unbundler_items_in_flight",
			Help: "Number of work items currently being processed",
		},
	)

	m.ResolveFailures = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unbundler_resolve_failures_total",
			Help: "Total number of failed acknowledge/release/quarantine calls",
		},
		[]string{"action"},
	)

	m.FailuresTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unbundler_failures_total",
			Help: "Total number of per-item failures by error kind and stage",
		},
		[]string{"kind", "stage"},
	)

	m.StageDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "unbundler_stage_duration_seconds",
			Help:    "Duration of each pipeline stage in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	m.ItemDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "unbundler_item_duration_seconds",
			Help:    "End-to-end processing time of one work item in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	m.RowsWrittenTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "unbundler_rows_written_total",
			Help: "Total number of flattened rows uploaded",
		},
	)

	m.ColumnsPerTable = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "unbundler_columns_per_table",
			Help:    "Number of columns in each uploaded table",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	return m
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// NewServer returns an HTTP server exposing /metrics and /healthz on addr.
func (m *Metrics) NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
