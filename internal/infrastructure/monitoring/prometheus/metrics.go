package prometheus

import (
	"strconv"
	"time"
)

// AppMetrics holds all application metrics.
type AppMetrics struct {
	// HTTP
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	HTTPActiveRequests  GaugeVec

	// Auth
	AuthAttemptsTotal CounterVec
	RateLimitedTotal  CounterVec

	// Upstream generation service
	UpstreamRequestsTotal   CounterVec
	UpstreamRequestDuration HistogramVec

	// Generation
	GenerationsTotal       CounterVec
	CandidatesPerBatch     HistogramVec
	MalformedResponseTotal CounterVec

	// History
	HistoryWritesTotal   CounterVec
	HistoryReadDuration  HistogramVec
	HistoryExportsTotal  CounterVec
	HistoryArchivedTotal CounterVec

	// Infrastructure
	DBQueryDuration        HistogramVec
	CacheHitsTotal         CounterVec
	CacheMissesTotal       CounterVec
	EventsPublishedTotal   CounterVec
	MessageProcessDuration HistogramVec

	// System Health
	HealthCheckStatus GaugeVec
	ErrorsTotal       CounterVec
}

var (
	DefaultHTTPDurationBuckets     = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	DefaultUpstreamDurationBuckets = []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60, 120}
	DefaultDBDurationBuckets       = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5}
	DefaultBatchSizeBuckets        = []float64{0, 1, 5, 10, 20, 30, 50, 100}
)

// NewAppMetrics registers all metrics on collector.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path")
	m.HTTPActiveRequests = collector.RegisterGauge("http_active_requests", "Active HTTP requests", "method", "path")

	m.AuthAttemptsTotal = collector.RegisterCounter("auth_attempts_total", "Bearer token verifications", "result", "failure_reason")
	m.RateLimitedTotal = collector.RegisterCounter("rate_limited_total", "Requests rejected by the rate limiter", "path")

	m.UpstreamRequestsTotal = collector.RegisterCounter("upstream_requests_total", "Calls to the generation service", "outcome")
	m.UpstreamRequestDuration = collector.RegisterHistogram("upstream_request_duration_seconds", "Generation service latency", DefaultUpstreamDurationBuckets, "outcome")

	m.GenerationsTotal = collector.RegisterCounter("generations_total", "Generation requests by outcome", "outcome")
	m.CandidatesPerBatch = collector.RegisterHistogram("generation_candidates", "Normalized candidates per generation", DefaultBatchSizeBuckets, "source")
	m.MalformedResponseTotal = collector.RegisterCounter("generation_malformed_responses_total", "Generation responses that could not be normalized", "source")

	m.HistoryWritesTotal = collector.RegisterCounter("history_writes_total", "History record writes", "status")
	m.HistoryReadDuration = collector.RegisterHistogram("history_read_duration_seconds", "History list latency", DefaultDBDurationBuckets, "source")
	m.HistoryExportsTotal = collector.RegisterCounter("history_exports_total", "History export requests", "status")
	m.HistoryArchivedTotal = collector.RegisterCounter("history_archived_total", "History records archived by the worker", "status")

	m.DBQueryDuration = collector.RegisterHistogram("db_query_duration_seconds", "Database query duration", DefaultDBDurationBuckets, "operation")
	m.CacheHitsTotal = collector.RegisterCounter("cache_hits_total", "Cache hits", "cache")
	m.CacheMissesTotal = collector.RegisterCounter("cache_misses_total", "Cache misses", "cache")
	m.EventsPublishedTotal = collector.RegisterCounter("events_published_total", "Domain events published", "topic", "status")
	m.MessageProcessDuration = collector.RegisterHistogram("mq_process_duration_seconds", "Message processing duration", DefaultHTTPDurationBuckets, "topic")

	m.HealthCheckStatus = collector.RegisterGauge("health_check_status", "Health check status (1=up, 0=down)", "component")
	m.ErrorsTotal = collector.RegisterCounter("errors_total", "Total errors", "component", "error_type")

	return m
}

// NewNoopAppMetrics returns AppMetrics whose series discard every update.
func NewNoopAppMetrics() *AppMetrics {
	c, h, g := noopCounterVec{}, noopHistogramVec{}, noopGaugeVec{}
	return &AppMetrics{
		HTTPRequestsTotal: c, HTTPRequestDuration: h, HTTPActiveRequests: g,
		AuthAttemptsTotal: c, RateLimitedTotal: c,
		UpstreamRequestsTotal: c, UpstreamRequestDuration: h,
		GenerationsTotal: c, CandidatesPerBatch: h, MalformedResponseTotal: c,
		HistoryWritesTotal: c, HistoryReadDuration: h, HistoryExportsTotal: c, HistoryArchivedTotal: c,
		DBQueryDuration: h, CacheHitsTotal: c, CacheMissesTotal: c,
		EventsPublishedTotal: c, MessageProcessDuration: h,
		HealthCheckStatus: g, ErrorsTotal: c,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func RecordHTTPRequest(m *AppMetrics, method, path string, statusCode int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func RecordAuthAttempt(m *AppMetrics, success bool, failureReason string) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.AuthAttemptsTotal.WithLabelValues(result, failureReason).Inc()
}

// RecordUpstreamCall labels the call "ok", "rejected" (non-2xx answer) or
// "error" (no answer).
func RecordUpstreamCall(m *AppMetrics, outcome string, duration time.Duration) {
	m.UpstreamRequestsTotal.WithLabelValues(outcome).Inc()
	m.UpstreamRequestDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func RecordCandidates(m *AppMetrics, source string, n int) {
	m.CandidatesPerBatch.WithLabelValues(source).Observe(float64(n))
}

func RecordDBQuery(m *AppMetrics, operation string, duration time.Duration, err error) {
	m.DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.ErrorsTotal.WithLabelValues("database", operation).Inc()
	}
}

func RecordCacheAccess(m *AppMetrics, cache string, hit bool) {
	if hit {
		m.CacheHitsTotal.WithLabelValues(cache).Inc()
	} else {
		m.CacheMissesTotal.WithLabelValues(cache).Inc()
	}
}

func RecordHealth(m *AppMetrics, component string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	m.HealthCheckStatus.WithLabelValues(component).Set(v)
}

func RecordError(m *AppMetrics, component, errorType string) {
	m.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

func StatusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
