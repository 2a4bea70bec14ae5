package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API, the
// planner and the resolution engine.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	plannerRuns       prometheus.Counter
	plannerAssigned   prometheus.Counter
	plannerUnassigned prometheus.Counter
	conflictsDetected prometheus.Counter
	remediesApplied   *prometheus.CounterVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	plannerRuns := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "planner_runs_total",
		Help: "Total planner generation runs",
	})

	plannerAssigned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "planner_sessions_assigned_total",
		Help: "Sessions placed by planner runs",
	})

	plannerUnassigned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "planner_sessions_unassigned_total",
		Help: "Sessions planner runs could not place",
	})

	conflictsDetected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "conflicts_detected_total",
		Help: "Conflicts stored by detection runs",
	})

	remediesApplied := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "remedies_applied_total",
		Help: "Remedy attempts grouped by outcome",
	}, []string{"outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite,
		cacheHits, cacheMisses, plannerRuns, plannerAssigned, plannerUnassigned,
		conflictsDetected, remediesApplied, goroutines)

	return &MetricsService{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		cacheLatency:      cacheLatency,
		cacheWrite:        cacheWrite,
		cacheHits:         cacheHits,
		cacheMisses:       cacheMisses,
		plannerRuns:       plannerRuns,
		plannerAssigned:   plannerAssigned,
		plannerUnassigned: plannerUnassigned,
		conflictsDetected: conflictsDetected,
		remediesApplied:   remediesApplied,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveCacheWrite tracks the duration of cache set operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordPlannerRun counts a finished generation run and its outcome split.
func (m *MetricsService) RecordPlannerRun(assigned, unassigned int) {
	if m == nil {
		return
	}
	m.plannerRuns.Inc()
	m.plannerAssigned.Add(float64(assigned))
	m.plannerUnassigned.Add(float64(unassigned))
}

// RecordConflictsDetected counts conflicts stored by a detection run.
func (m *MetricsService) RecordConflictsDetected(count int) {
	if m == nil {
		return
	}
	m.conflictsDetected.Add(float64(count))
}

// RecordRemedy counts one remedy attempt by outcome.
func (m *MetricsService) RecordRemedy(success bool) {
	if m == nil {
		return
	}
	outcome := "failed"
	if success {
		outcome = "resolved"
	}
	m.remediesApplied.WithLabelValues(outcome).Inc()
}
