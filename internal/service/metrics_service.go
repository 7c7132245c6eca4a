package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsSnapshot aggregates counters for lightweight API consumption.
type MetricsSnapshot struct {
	RequestCount      uint64  `json:"request_count"`
	AvgRequestMs      float64 `json:"avg_request_ms"`
	CacheHitRatio     float64 `json:"cache_hit_ratio"`
	HeartbeatsTotal   uint64  `json:"heartbeats_total"`
	ViolationsTotal   uint64  `json:"violations_total"`
	LowAccuracyTotal  uint64  `json:"low_accuracy_total"`
	SessionsAutoEnded uint64  `json:"sessions_auto_ended"`
}

// MetricsService encapsulates Prometheus instrumentation for the
// attendance engine.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	heartbeatTotal    *prometheus.CounterVec
	violationTotal    prometheus.Counter
	lowAccuracyTotal  prometheus.Counter
	sessionAutoEnded  prometheus.Counter
	heartbeatDuration prometheus.Observer

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	heartbeatCount       uint64
	violationCount       uint64
	lowAccuracyCount     uint64
	autoEndedCount       uint64
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
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	heartbeatTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "heartbeats_total",
		Help: "Heartbeats processed, labelled by verdict",
	}, []string{"result"})

	violationTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geofence_violations_total",
		Help: "Heartbeats evaluated outside the allowed zone",
	})

	lowAccuracyTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "low_accuracy_skips_total",
		Help: "Heartbeats skipped because reported accuracy exceeded the gate",
	})

	sessionAutoEnded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sessions_auto_ended_total",
		Help: "Sessions ended by the overdue lifecycle check",
	})

	heartbeatDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "heartbeat_processing_seconds",
		Help:    "Duration of heartbeat processing",
		Buckets: prometheus.DefBuckets,
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite,
		cacheHitRatio, cacheHits, cacheMisses, heartbeatTotal, violationTotal,
		lowAccuracyTotal, sessionAutoEnded, heartbeatDuration, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:          registry,
		handler:           handler,
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		cacheLatency:      cacheLatency,
		cacheWrite:        cacheWrite,
		cacheHitRatio:     cacheHitRatio,
		cacheHits:         cacheHits,
		cacheMisses:       cacheMisses,
		heartbeatTotal:    heartbeatTotal,
		violationTotal:    violationTotal,
		lowAccuracyTotal:  lowAccuracyTotal,
		sessionAutoEnded:  sessionAutoEnded,
		heartbeatDuration: heartbeatDuration,
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

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveHeartbeat records one processed heartbeat with its verdict label.
func (m *MetricsService) ObserveHeartbeat(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.heartbeatTotal.WithLabelValues(result).Inc()
	m.heartbeatDuration.Observe(duration.Seconds())
	atomic.AddUint64(&m.heartbeatCount, 1)
}

// RecordViolation counts an out-of-zone evaluation.
func (m *MetricsService) RecordViolation() {
	if m == nil {
		return
	}
	m.violationTotal.Inc()
	atomic.AddUint64(&m.violationCount, 1)
}

// RecordLowAccuracySkip counts a heartbeat skipped by the accuracy gate.
func (m *MetricsService) RecordLowAccuracySkip() {
	if m == nil {
		return
	}
	m.lowAccuracyTotal.Inc()
	atomic.AddUint64(&m.lowAccuracyCount, 1)
}

// RecordSessionAutoEnd counts a session closed by the lifecycle check.
func (m *MetricsService) RecordSessionAutoEnd() {
	if m == nil {
		return
	}
	m.sessionAutoEnded.Inc()
	atomic.AddUint64(&m.autoEndedCount, 1)
}

// Snapshot returns aggregated metrics suitable for dashboard endpoints.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	totalLookups := hits + misses
	if totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return MetricsSnapshot{
		RequestCount:      requests,
		AvgRequestMs:      avgRequestMs,
		CacheHitRatio:     cacheRatio,
		HeartbeatsTotal:   atomic.LoadUint64(&m.heartbeatCount),
		ViolationsTotal:   atomic.LoadUint64(&m.violationCount),
		LowAccuracyTotal:  atomic.LoadUint64(&m.lowAccuracyCount),
		SessionsAutoEnded: atomic.LoadUint64(&m.autoEndedCount),
	}
}
