package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// Allocation outcomes used as the result label.
const (
	AllocationComplete         = "complete"
	AllocationPartial          = "partial"
	AllocationCapacityExceeded = "capacity_exceeded"
)

// MetricsService owns the Prometheus registry and a few atomic counters
// mirrored into Snapshot for the JSON summary endpoint.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	cacheWrite      prometheus.Histogram
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	allocations     *prometheus.CounterVec
	unfilledHours   prometheus.Counter
	conflicts       prometheus.Gauge
	generation      prometheus.Histogram
	exports         *prometheus.CounterVec

	cacheHitCount        atomic.Uint64
	cacheMissCount       atomic.Uint64
	requestCount         atomic.Uint64
	requestDurationTotal atomic.Uint64
	allocationCount      atomic.Uint64
	unfilledCount        atomic.Uint64
	conflictsLast        atomic.Int64
}

// NewMetricsService registers the HTTP, cache and timetable collectors.
func NewMetricsService() *MetricsService {
	m := &MetricsService{registry: prometheus.NewRegistry()}

	m.requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
	m.requestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	m.cacheLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})
	m.cacheWrite = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})
	m.cacheHitRatio = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})
	m.cacheHits = prometheus.NewCounter(prometheus.CounterOpts{Name: "cache_hits_total", Help: "Total cache hits"})
	m.cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{Name: "cache_misses_total", Help: "Total cache misses"})

	m.allocations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_allocations_total",
		Help: "Timetable allocation runs by outcome",
	}, []string{"result"})
	m.unfilledHours = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timetable_unfilled_hours_total",
		Help: "Requested subject hours that could not be placed",
	})
	m.conflicts = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "timetable_conflicts_detected",
		Help: "Conflicts found by the most recent audit",
	})
	m.generation = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "timetable_generation_seconds",
		Help:    "End-to-end duration of timetable generation",
		Buckets: prometheus.DefBuckets,
	})
	m.exports = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_exports_total",
		Help: "Rendered timetable exports by format and outcome",
	}, []string{"format", "status"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	m.registry.MustRegister(
		m.requestDuration, m.requestTotal,
		m.cacheLatency, m.cacheWrite, m.cacheHitRatio, m.cacheHits, m.cacheMisses,
		m.allocations, m.unfilledHours, m.conflicts, m.generation, m.exports,
		goroutines,
	)
	m.handler = promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return m
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
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	m.requestCount.Add(1)
	m.requestDurationTotal.Add(uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records a cache lookup and refreshes the hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		m.cacheHitCount.Add(1)
	} else {
		m.cacheMisses.Inc()
		m.cacheMissCount.Add(1)
	}
	hits := m.cacheHitCount.Load()
	if total := hits + m.cacheMissCount.Load(); total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration of cache writes.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordAllocation counts one allocation run and the hours it left unplaced.
func (m *MetricsService) RecordAllocation(result string, unfilled int, duration time.Duration) {
	if m == nil {
		return
	}
	m.allocations.WithLabelValues(result).Inc()
	m.allocationCount.Add(1)
	if unfilled > 0 {
		m.unfilledHours.Add(float64(unfilled))
		m.unfilledCount.Add(uint64(unfilled))
	}
	m.generation.Observe(duration.Seconds())
}

// SetConflicts publishes the size of the latest conflict report.
func (m *MetricsService) SetConflicts(n int) {
	if m == nil {
		return
	}
	m.conflicts.Set(float64(n))
	m.conflictsLast.Store(int64(n))
}

// RecordExport counts a rendered export.
func (m *MetricsService) RecordExport(format models.ExportFormat, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.exports.WithLabelValues(string(format), status).Inc()
}

// Snapshot returns aggregated counters for the JSON summary.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := m.cacheHitCount.Load()
	misses := m.cacheMissCount.Load()
	requests := m.requestCount.Load()

	var ratio float64
	if hits+misses > 0 {
		ratio = float64(hits) / float64(hits+misses)
	}
	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(m.requestDurationTotal.Load()) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		CacheHits:                hits,
		CacheMisses:              misses,
		CacheHitRatio:            ratio,
		Allocations:              m.allocationCount.Load(),
		UnfilledHours:            m.unfilledCount.Load(),
		ConflictsDetected:        int(m.conflictsLast.Load()),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
