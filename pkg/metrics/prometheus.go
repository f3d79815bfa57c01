// Package metrics provides Prometheus metrics for the lead ranking service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// defaultLatencyBuckets are in milliseconds, from a cache hit up to a
// full enrichment under rate limiting.
var defaultLatencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000} //nolint:gochecknoglobals // read-only defaults

// Manager manages all Prometheus metrics for the lead ranking service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Scoring
	leadsScored       prometheus.Counter
	leadsEnriched     prometheus.Counter
	scoringLatency    prometheus.Histogram
	scoringErrors     prometheus.Counter
	leadScoreObserved prometheus.Histogram
	totalLeads        prometheus.Gauge

	// Enrichment
	enrichmentOutcomes *prometheus.CounterVec
	enrichmentLatency  prometheus.Histogram

	// Enrichment cache
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
	cacheComputations *prometheus.CounterVec
	cacheShared       prometheus.Counter

	// Rate limited client
	ratelimitWaits      *prometheus.CounterVec
	ratelimitRejections *prometheus.CounterVec
	ratelimitRetries    *prometheus.CounterVec
	upstreamLatency     *prometheus.HistogramVec

	// Rank maintenance
	rankRecomputes      prometheus.Counter
	rankConflicts       prometheus.Counter
	rankSuperseded      prometheus.Counter
	rankFailures        prometheus.Counter
	rankRecomputeLatency prometheus.Histogram

	// Imports
	importsAccepted  prometheus.Counter
	importsDuplicate prometheus.Counter

	// Operational Health Metrics
	queueSize   prometheus.Gauge
	workerCount prometheus.Gauge

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Repository Metrics
	repositoryUpdateLatency prometheus.Histogram
	repositoryQueryLatency  prometheus.Histogram

	// Queue Metrics - Message queue performance
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Worker Metrics - Processing performance
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// Enhanced Error Metrics - Detailed error tracking
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "leadrank",
		subsystem:        "engine",
		histogramBuckets: defaultLatencyBuckets,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	// Initialize metrics
	m.initializeMetrics()

	return m
}


func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	if buckets == nil {
		buckets = m.histogramBuckets
	}
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	// Ensure metrics are registered on the configured registry (custom by default)
	auto := promauto.With(m.registry)

	// Scoring
	m.leadsScored = auto.NewCounter(m.counterOpts("leads_scored_total", "Total number of leads scored"))
	m.leadsEnriched = auto.NewCounter(m.counterOpts("leads_enriched_total", "Total number of scores that received a non-zero scientific intent bonus"))
	m.scoringLatency = auto.NewHistogram(m.histogramOpts("scoring_latency_milliseconds", "Scoring latency in milliseconds including enrichment", nil))
	m.scoringErrors = auto.NewCounter(m.counterOpts("scoring_errors_total", "Total number of scoring calls that failed"))
	m.leadScoreObserved = auto.NewHistogram(m.histogramOpts("lead_score", "Distribution of computed lead scores",
		[]float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}))
	m.totalLeads = auto.NewGauge(m.gaugeOpts("total_leads", "Total number of stored leads"))

	// Enrichment
	m.enrichmentOutcomes = auto.NewCounterVec(m.counterOpts("enrichment_outcomes_total", "Enrichment outcomes by result"), []string{"outcome"})
	m.enrichmentLatency = auto.NewHistogram(m.histogramOpts("enrichment_latency_milliseconds", "Relevance enrichment latency in milliseconds", nil))

	// Enrichment cache
	m.cacheHits = auto.NewCounterVec(m.counterOpts("cache_hits_total", "Enrichment cache hits by kind"), []string{"kind"})
	m.cacheMisses = auto.NewCounterVec(m.counterOpts("cache_misses_total", "Enrichment cache misses by kind"), []string{"kind"})
	m.cacheComputations = auto.NewCounterVec(m.counterOpts("cache_computations_total", "Enrichment computations executed by kind"), []string{"kind"})
	m.cacheShared = auto.NewCounter(m.counterOpts("cache_shared_total", "Callers that awaited another caller's in-flight computation"))

	// Rate limited client
	m.ratelimitWaits = auto.NewCounterVec(m.counterOpts("ratelimit_waits_total", "Calls that waited for a rate window by endpoint"), []string{"endpoint"})
	m.ratelimitRejections = auto.NewCounterVec(m.counterOpts("ratelimit_rejections_total", "Calls rejected because no window slot freed up in time"), []string{"endpoint"})
	m.ratelimitRetries = auto.NewCounterVec(m.counterOpts("ratelimit_retries_total", "Retried upstream attempts by endpoint"), []string{"endpoint"})
	m.upstreamLatency = auto.NewHistogramVec(m.histogramOpts("upstream_latency_milliseconds", "Upstream call latency by endpoint and outcome", nil),
		[]string{"endpoint", "outcome"})

	// Rank maintenance
	m.rankRecomputes = auto.NewCounter(m.counterOpts("rank_recomputes_total", "Rank recompute passes committed"))
	m.rankConflicts = auto.NewCounter(m.counterOpts("rank_conflicts_total", "Rank writes rejected because the scope changed"))
	m.rankSuperseded = auto.NewCounter(m.counterOpts("rank_superseded_total", "Rank recomputes skipped because the scope was already consistent"))
	m.rankFailures = auto.NewCounter(m.counterOpts("rank_failures_total", "Rank recomputes that exhausted their attempts"))
	m.rankRecomputeLatency = auto.NewHistogram(m.histogramOpts("rank_recompute_latency_milliseconds", "Rank recompute latency in milliseconds", nil))

	// Imports
	m.importsAccepted = auto.NewCounter(m.counterOpts("imports_accepted_total", "Import jobs accepted for processing"))
	m.importsDuplicate = auto.NewCounter(m.counterOpts("imports_duplicate_total", "Import jobs acknowledged as duplicates"))

	// Operational Health Metrics - System stability indicators
	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Current size of the import queue (backlog indicator)"))
	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Current number of import workers"))

	// HTTP Performance Metrics - User experience indicators
	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", nil),
		[]string{"endpoint", "method", "status_code"})

	// Repository Metrics
	m.repositoryUpdateLatency = auto.NewHistogram(m.histogramOpts("repository_update_latency_milliseconds", "Repository write latency in milliseconds", nil))
	m.repositoryQueryLatency = auto.NewHistogram(m.histogramOpts("repository_query_latency_milliseconds", "Repository read latency in milliseconds", nil))

	// Queue Metrics - Message queue performance
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Maximum queue capacity"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_ratio", "Queue utilization ratio (current size / capacity)"))
	m.queueEnqueueRate = auto.NewCounter(m.counterOpts("queue_enqueue_total", "Total number of jobs enqueued"))
	m.queueDequeueRate = auto.NewCounter(m.counterOpts("queue_dequeue_total", "Total number of jobs dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total", "Total number of enqueue errors"))
	m.queueProcessingLatency = auto.NewHistogram(m.histogramOpts("queue_processing_latency_milliseconds", "Queue processing latency in milliseconds", nil))

	// Worker Metrics - Processing performance
	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("worker_active_count", "Number of active workers"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogramOpts("worker_processing_latency_milliseconds", "Worker processing latency in milliseconds", nil))
	m.workerErrorRate = auto.NewCounter(m.counterOpts("worker_errors_total", "Total number of worker errors"))

	// Enhanced Error Metrics - Detailed error tracking
	m.errorRateByComponent = auto.NewCounterVec(m.counterOpts("errors_by_component_total", "Total number of errors by component"),
		[]string{"component", "error_type"})
	m.errorRateByType = auto.NewCounterVec(m.counterOpts("errors_by_type_total", "Total number of errors by type"),
		[]string{"error_type", "severity"})
	m.errorRateByEndpoint = auto.NewCounterVec(m.counterOpts("errors_by_endpoint_total", "Total number of errors by endpoint"),
		[]string{"endpoint", "method", "error_type"})
	m.errorLatency = auto.NewHistogramVec(m.histogramOpts("error_latency_milliseconds", "Latency of operations that resulted in errors", nil),
		[]string{"component", "error_type"})

	// System Performance Metrics
	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "System memory usage in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}))
}

// Scoring Metrics Functions.

// RecordLeadScored records a completed scoring call.
func RecordLeadScored(score int, enriched bool, latencyMs float64) {
	globalManager.leadsScored.Inc()
	globalManager.leadScoreObserved.Observe(float64(score))
	globalManager.scoringLatency.Observe(latencyMs)
	if enriched {
		globalManager.leadsEnriched.Inc()
	}
}

// RecordScoringError increments the scoring errors counter.
func RecordScoringError() {
	globalManager.scoringErrors.Inc()
}

// UpdateTotalLeads sets the stored lead count.
func UpdateTotalLeads(count int) {
	globalManager.totalLeads.Set(float64(count))
}

// Enrichment Metrics Functions.

// RecordEnrichment records an enrichment outcome (hit, miss, skipped, degraded, timeout).
func RecordEnrichment(outcome string, latencyMs float64) {
	globalManager.enrichmentOutcomes.WithLabelValues(outcome).Inc()
	globalManager.enrichmentLatency.Observe(latencyMs)
}

// RecordCacheHit increments the cache hit counter for kind.
func RecordCacheHit(kind string) {
	globalManager.cacheHits.WithLabelValues(kind).Inc()
}

// RecordCacheMiss increments the cache miss counter for kind.
func RecordCacheMiss(kind string) {
	globalManager.cacheMisses.WithLabelValues(kind).Inc()
}

// RecordCacheComputation increments the computation counter for kind.
func RecordCacheComputation(kind string) {
	globalManager.cacheComputations.WithLabelValues(kind).Inc()
}

// RecordCacheShared counts a caller served by another caller's flight.
func RecordCacheShared() {
	globalManager.cacheShared.Inc()
}

// Rate Limit Metrics Functions.

// RecordRateLimitWait counts a call that had to wait for a window.
func RecordRateLimitWait(endpoint string) {
	globalManager.ratelimitWaits.WithLabelValues(endpoint).Inc()
}

// RecordRateLimitRejection counts a call rejected by the limiter.
func RecordRateLimitRejection(endpoint string) {
	globalManager.ratelimitRejections.WithLabelValues(endpoint).Inc()
}

// RecordRateLimitRetry counts a retried attempt.
func RecordRateLimitRetry(endpoint string) {
	globalManager.ratelimitRetries.WithLabelValues(endpoint).Inc()
}

// RecordUpstreamLatency records the latency of a single upstream attempt.
func RecordUpstreamLatency(endpoint, outcome string, latencyMs float64) {
	globalManager.upstreamLatency.WithLabelValues(endpoint, outcome).Observe(latencyMs)
}

// Rank Metrics Functions.

// RecordRankRecompute records a committed recompute pass.
func RecordRankRecompute(latencyMs float64) {
	globalManager.rankRecomputes.Inc()
	globalManager.rankRecomputeLatency.Observe(latencyMs)
}

// RecordRankConflict increments the rank conflict counter.
func RecordRankConflict() {
	globalManager.rankConflicts.Inc()
}

// RecordRankSuperseded increments the superseded recompute counter.
func RecordRankSuperseded() {
	globalManager.rankSuperseded.Inc()
}

// RecordRankFailure increments the failed recompute counter.
func RecordRankFailure() {
	globalManager.rankFailures.Inc()
}

// Import Metrics Functions.

// RecordImportAccepted increments the accepted imports counter.
func RecordImportAccepted() {
	globalManager.importsAccepted.Inc()
}

// RecordImportDuplicate increments the duplicate imports counter.
func RecordImportDuplicate() {
	globalManager.importsDuplicate.Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordRepositoryUpdateLatency records repository write latency.
func RecordRepositoryUpdateLatency(latencyMs float64) {
	globalManager.repositoryUpdateLatency.Observe(latencyMs)
}

// RecordRepositoryQueryLatency records repository read latency.
func RecordRepositoryQueryLatency(latencyMs float64) {
	globalManager.repositoryQueryLatency.Observe(latencyMs)
}

// Queue Metrics Functions.

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records queue processing latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Worker Metrics Functions.

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// Enhanced Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
