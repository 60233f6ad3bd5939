// Package metrics exposes Prometheus collectors for the extraction
// pipeline.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics owns all pipeline collectors. Construct once per process and
// share across components.
type Metrics struct {
	jobsTotal     *prometheus.CounterVec
	jobDuration   prometheus.Histogram
	runsTotal     prometheus.Counter
	runDuration   prometheus.Histogram
	activeWorkers prometheus.Gauge
	fetchRetries  prometheus.Counter
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// New registers the collectors against the provided registry. A nil
// registry falls back to the default registerer.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "extractor_jobs_total",
			Help: "Extraction jobs finished, partitioned by result.",
		}, []string{"result"}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "extractor_job_duration_seconds",
			Help:    "Wall time per extraction job.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		runsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "extractor_runs_total",
			Help: "Completed extraction runs.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "extractor_run_duration_seconds",
			Help:    "Wall time per extraction run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		activeWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "extractor_active_workers",
			Help: "Workers currently processing jobs.",
		}),
		fetchRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "extractor_fetch_retries_total",
			Help: "HTTP fetch attempts beyond the first.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "extractor_http_requests_total",
			Help: "Status server requests, partitioned by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "extractor_http_request_duration_seconds",
			Help:    "Status server request latency.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"method", "route"}),
	}
	for _, collector := range []prometheus.Collector{
		m.jobsTotal,
		m.jobDuration,
		m.runsTotal,
		m.runDuration,
		m.activeWorkers,
		m.fetchRetries,
		m.httpRequests,
		m.httpDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register extractor collector: %w", err)
		}
	}
	return m, nil
}

// JobFinished records a completed job; clean is false when any field was
// skipped.
func (m *Metrics) JobFinished(clean bool, elapsed time.Duration) {
	result := "complete"
	if !clean {
		result = "partial"
	}
	m.jobsTotal.WithLabelValues(result).Inc()
	m.jobDuration.Observe(elapsed.Seconds())
}

// JobFallback records a job converted to its fallback record.
func (m *Metrics) JobFallback() {
	m.jobsTotal.WithLabelValues("fallback").Inc()
}

// RunFinished records one completed run.
func (m *Metrics) RunFinished(elapsed time.Duration) {
	m.runsTotal.Inc()
	m.runDuration.Observe(elapsed.Seconds())
}

// WorkerStarted increments the active worker gauge.
func (m *Metrics) WorkerStarted() { m.activeWorkers.Inc() }

// WorkerStopped decrements the active worker gauge.
func (m *Metrics) WorkerStopped() { m.activeWorkers.Dec() }

// FetchRetried counts one retry attempt.
func (m *Metrics) FetchRetried() { m.fetchRetries.Inc() }

// HTTPRequestServed records one status server request.
func (m *Metrics) HTTPRequestServed(method, route string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
