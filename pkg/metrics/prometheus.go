package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager holds all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Cache
	cacheHits        *prometheus.CounterVec
	cacheMisses      *prometheus.CounterVec
	cacheEvictions   prometheus.Counter
	cacheWriteErrors *prometheus.CounterVec
	cacheStatus      *prometheus.GaugeVec

	// Upstream provider
	upstreamLatency *prometheus.HistogramVec
	upstreamErrors  *prometheus.CounterVec

	// Pipeline
	pipelineRuns        *prometheus.CounterVec
	pipelineDuration    prometheus.Histogram
	pipelineOutcomes    *prometheus.CounterVec
	backgroundRefreshes prometheus.Counter
	refreshQueueSize    prometheus.Gauge
	refreshJobs         *prometheus.CounterVec
	refreshJobLatency   prometheus.Histogram
	sinkErrors          *prometheus.CounterVec

	// Ingest
	ingestRequests   *prometheus.CounterVec
	ingestDuplicates prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// Runtime
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "draftboard",
		subsystem:        "rankings",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.cacheHits = m.counterVec("cache_hits_total", "Cache reads that found a live entry", "group", "format")
	m.cacheMisses = m.counterVec("cache_misses_total", "Cache reads that found nothing usable", "group", "format")
	m.cacheEvictions = m.counter("cache_evictions_total", "Cache records removed by eviction or expiry")
	m.cacheWriteErrors = m.counterVec("cache_write_errors_total", "Failed cache writes by kind", "kind")
	m.cacheStatus = promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "cache_status",
		Help:        "Cache slot status weight (3 fresh, 2 stale, 1 expired, 0 missing)",
		ConstLabels: m.constLabels,
	}, []string{"group", "format"})

	m.upstreamLatency = m.histogramVec("upstream_latency_milliseconds", "Upstream fetch latency in milliseconds", "group")
	m.upstreamErrors = m.counterVec("upstream_errors_total", "Failed upstream fetches", "group")

	m.pipelineRuns = m.counterVec("pipeline_runs_total", "Pipeline executions by result", "result")
	m.pipelineDuration = promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "pipeline_duration_milliseconds",
		Help:        "Pipeline execution duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	})
	m.pipelineOutcomes = m.counterVec("pipeline_outcomes_total", "Pipeline item outcomes by data source", "source", "success")
	m.backgroundRefreshes = m.counter("background_refreshes_total", "Background refreshes started by the read path or ticker")
	m.refreshQueueSize = m.gauge("refresh_queue_size", "Background refresh jobs waiting for a worker")
	m.refreshJobs = m.counterVec("refresh_jobs_total", "Background refresh jobs processed by result", "result")
	m.refreshJobLatency = promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "refresh_job_duration_milliseconds",
		Help:        "Background refresh job duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	})
	m.sinkErrors = m.counterVec("report_sink_errors_total", "Failed report deliveries by sink", "sink")

	m.ingestRequests = m.counterVec("ingest_requests_total", "Applied ingest requests by action", "action")
	m.ingestDuplicates = m.counter("ingest_duplicates_total", "Ingest requests skipped by idempotency key")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Errors by type and severity", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Errors by HTTP endpoint", "endpoint", "method", "error_type")
	m.errorLatency = m.histogramVec("error_latency_milliseconds", "Latency of failed operations in milliseconds", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap memory in use")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
}

// RecordCacheHit counts a cache read that returned an entry.
func RecordCacheHit(group, format string) {
	globalManager.cacheHits.WithLabelValues(group, format).Inc()
}

// RecordCacheMiss counts a cache read that returned nothing.
func RecordCacheMiss(group, format string) {
	globalManager.cacheMisses.WithLabelValues(group, format).Inc()
}

// RecordCacheEvictions adds n removed records.
func RecordCacheEvictions(n int) {
	if n > 0 {
		globalManager.cacheEvictions.Add(float64(n))
	}
}

// RecordCacheWriteError counts a failed cache write.
func RecordCacheWriteError(kind string) {
	globalManager.cacheWriteErrors.WithLabelValues(kind).Inc()
}

// UpdateCacheStatus sets the status weight of a cache slot.
func UpdateCacheStatus(group, format string, weight int) {
	globalManager.cacheStatus.WithLabelValues(group, format).Set(float64(weight))
}

// RecordUpstreamLatency records one upstream round trip in milliseconds.
func RecordUpstreamLatency(group string, latencyMs float64) {
	globalManager.upstreamLatency.WithLabelValues(group).Observe(latencyMs)
}

// RecordUpstreamError counts a failed upstream fetch.
func RecordUpstreamError(group string) {
	globalManager.upstreamErrors.WithLabelValues(group).Inc()
}

// RecordPipelineRun records a finished pipeline execution.
func RecordPipelineRun(success bool, durationMs float64) {
	result := "failure"
	if success {
		result = "success"
	}
	globalManager.pipelineRuns.WithLabelValues(result).Inc()
	globalManager.pipelineDuration.Observe(durationMs)
}

// RecordPipelineOutcome counts one pipeline item by the source it used.
func RecordPipelineOutcome(source string, success bool) {
	ok := "false"
	if success {
		ok = "true"
	}
	globalManager.pipelineOutcomes.WithLabelValues(source, ok).Inc()
}

// RecordBackgroundRefresh counts a started background refresh.
func RecordBackgroundRefresh() {
	globalManager.backgroundRefreshes.Inc()
}

// UpdateRefreshQueueSize sets the number of queued refresh jobs.
func UpdateRefreshQueueSize(n int) {
	globalManager.refreshQueueSize.Set(float64(n))
}

// RecordRefreshJob counts a processed refresh job and its duration.
func RecordRefreshJob(success bool, durationMs float64) {
	result := "success"
	if !success {
		result = "failure"
	}
	globalManager.refreshJobs.WithLabelValues(result).Inc()
	globalManager.refreshJobLatency.Observe(durationMs)
}

// RecordSinkError counts a report that could not be delivered.
func RecordSinkError(sink string) {
	globalManager.sinkErrors.WithLabelValues(sink).Inc()
}

// RecordIngest counts an applied ingest request.
func RecordIngest(action string) {
	globalManager.ingestRequests.WithLabelValues(action).Inc()
}

// RecordIngestDuplicate counts an ingest request skipped as a duplicate.
func RecordIngestDuplicate() {
	globalManager.ingestDuplicates.Inc()
}

// RecordHTTPRequest increments the HTTP request counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent counts an error raised by a component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType counts an error by type and severity.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint counts an error returned by an HTTP endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of a failed operation.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// UpdateSystemMemoryUsage sets the heap usage gauge.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine gauge.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
