// Package metrics defines the Prometheus metric collectors used across the
// server and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the server.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	PipelineCacheHits    prometheus.Counter
	PipelineCacheMisses  prometheus.Counter
	PipelineBuilds       *prometheus.CounterVec
	PipelineBuildSeconds prometheus.Histogram
	PipelinesLive        prometheus.Gauge
	TasksTotal           *prometheus.CounterVec
	TaskDuration         *prometheus.HistogramVec
	WorkersBusy          prometheus.Gauge
	QueueDepth           prometheus.Gauge
	OutputCacheHits      prometheus.Counter
	OutputCacheMisses    prometheus.Counter
}

// New creates all collectors and registers them with reg. A nil reg uses
// the default Prometheus registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		PipelineCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pipeline_cache_hits_total",
				Help: "Pipeline lookups served by a live cached pipeline.",
			},
		),
		PipelineCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pipeline_cache_misses_total",
				Help: "Pipeline lookups that found no live pipeline.",
			},
		),
		PipelineBuilds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_builds_total",
				Help: "Pipeline constructions by status (ok, error).",
			},
			[]string{"status"},
		),
		PipelineBuildSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pipeline_build_duration_seconds",
				Help:    "Time spent constructing pipelines.",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30},
			},
		),
		PipelinesLive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pipeline_cache_entries",
				Help: "Pipeline cache entries not yet reclaimed by the garbage collector.",
			},
		),
		TasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "executor_tasks_total",
				Help: "Executor tasks by outcome: ok, error, panic, abandoned, timeout, skipped, rejected.",
			},
			[]string{"status"},
		),
		TaskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "executor_task_duration_seconds",
				Help:    "Time workers spent running tasks.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"status"},
		),
		WorkersBusy: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "executor_workers_busy",
				Help: "Workers currently running a task, including abandoned ones.",
			},
		),
		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "executor_queue_depth",
				Help: "Tasks waiting for a worker.",
			},
		),
		OutputCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "output_cache_hits_total",
				Help: "Rendered annotations served from Redis.",
			},
		),
		OutputCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "output_cache_misses_total",
				Help: "Rendered annotations not found in Redis.",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.PipelineCacheHits,
		m.PipelineCacheMisses,
		m.PipelineBuilds,
		m.PipelineBuildSeconds,
		m.PipelinesLive,
		m.TasksTotal,
		m.TaskDuration,
		m.WorkersBusy,
		m.QueueDepth,
		m.OutputCacheHits,
		m.OutputCacheMisses,
	)

	return m
}

// Handler returns the scrape handler for g, or for the default registry when
// g is nil.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
