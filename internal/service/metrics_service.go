package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/uniops/clearance-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP layer
// and the clearance workflow.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	dbQueryDuration *prometheus.HistogramVec

	submissions   prometheus.Counter
	decisions     *prometheus.CounterVec
	resubmissions prometheus.Counter
	completions   prometheus.Counter
	certificates  prometheus.Counter
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

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	submissions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "clearance_submissions_total",
		Help: "Total clearance requests submitted",
	})

	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clearance_decisions_total",
		Help: "Total department decisions by department and outcome",
	}, []string{"department", "outcome"})

	resubmissions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "clearance_resubmissions_total",
		Help: "Total department tracks re-opened after rejection",
	})

	completions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "clearance_completions_total",
		Help: "Total requests reaching ready-for-final-approval",
	})

	certificates := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "clearance_certificates_issued_total",
		Help: "Total certificates issued",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite,
		cacheHits, cacheMisses, dbQueryDuration,
		submissions, decisions, resubmissions, completions, certificates, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		dbQueryDuration: dbQueryDuration,
		submissions:     submissions,
		decisions:       decisions,
		resubmissions:   resubmissions,
		completions:     completions,
		certificates:    certificates,
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

// RecordCacheOperation records cache hit/miss metrics.
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

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// IncSubmission counts a successful clearance submission.
func (m *MetricsService) IncSubmission() {
	if m == nil {
		return
	}
	m.submissions.Inc()
}

// IncDecision counts a department decision.
func (m *MetricsService) IncDecision(department models.Department, outcome models.DecisionOutcome) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(string(department), string(outcome)).Inc()
}

// IncResubmission counts re-opened department tracks.
func (m *MetricsService) IncResubmission(count int) {
	if m == nil || count <= 0 {
		return
	}
	for i := 0; i < count; i++ {
		m.resubmissions.Inc()
	}
}

// IncCompletion counts an aggregate ready-flip.
func (m *MetricsService) IncCompletion() {
	if m == nil {
		return
	}
	m.completions.Inc()
}

// IncCertificate counts an issued certificate.
func (m *MetricsService) IncCertificate() {
	if m == nil {
		return
	}
	m.certificates.Inc()
}
