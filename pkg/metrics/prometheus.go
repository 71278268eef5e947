// Package metrics provides Prometheus metrics for the leaderboard service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ViewStates lists the refresh view states exported by UpdateViewState.
var ViewStates = []string{"idle", "loading", "ready", "refreshing", "error", "closed"} //nolint:gochecknoglobals // fixed label set

// Manager manages all Prometheus metrics for the leaderboard service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Ranking
	snapshotsPublished   *prometheus.CounterVec
	ingestLatency        *prometheus.HistogramVec
	boardEntries         *prometheus.GaugeVec
	boardErrorEntries    *prometheus.GaugeVec
	duplicateRejections  *prometheus.CounterVec
	staleResponses       *prometheus.CounterVec
	viewStale            *prometheus.GaugeVec
	viewState            *prometheus.GaugeVec
	refreshRetries       *prometheus.CounterVec
	subscriberDrops      *prometheus.CounterVec
	lastSnapshotUnixTime *prometheus.GaugeVec

	// Feed
	feedFetchLatency  *prometheus.HistogramVec
	feedFetchFailures *prometheus.CounterVec

	// Store
	storeQueryLatency *prometheus.HistogramVec
	storeBoards       prometheus.Gauge

	// Push ingestion
	pushes             *prometheus.CounterVec
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "bct",
		subsystem:        "leaderboard",
		histogramBuckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
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
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric definition
	m.snapshotsPublished = m.counterVec("snapshots_published_total",
		"Total number of ranked snapshots published per board", "board")
	m.ingestLatency = m.histogramVec("ingest_latency_milliseconds",
		"Time spent ranking a metric feed into a snapshot", "board")
	m.boardEntries = m.gaugeVec("board_entries",
		"Number of ranked entries in the latest snapshot", "board")
	m.boardErrorEntries = m.gaugeVec("board_error_entries",
		"Number of entries in error state in the latest snapshot", "board")
	m.duplicateRejections = m.counterVec("duplicate_participant_rejections_total",
		"Feeds rejected because a participant id appeared twice", "board")
	m.staleResponses = m.counterVec("stale_responses_discarded_total",
		"Fetch results discarded because a newer request superseded them", "board")
	m.viewStale = m.gaugeVec("view_stale",
		"1 when the board shows the last good snapshot after a failed refresh", "board")
	m.viewState = m.gaugeVec("view_state",
		"Current refresh state per board (1 for the active state)", "board", "state")
	m.refreshRetries = m.counterVec("refresh_retries_total",
		"Explicit refresh or retry requests per board", "board")
	m.subscriberDrops = m.counterVec("subscriber_drops_total",
		"Snapshots replaced before a slow subscriber consumed them", "board")
	m.lastSnapshotUnixTime = m.gaugeVec("last_snapshot_unix",
		"Unix timestamp of the latest published snapshot", "board")

	m.feedFetchLatency = m.histogramVec("feed_fetch_latency_milliseconds",
		"Metric feed fetch latency", "source")
	m.feedFetchFailures = m.counterVec("feed_fetch_failures_total",
		"Metric feed fetches that failed", "source")

	m.storeQueryLatency = m.histogramVec("store_query_latency_milliseconds",
		"Snapshot store read latency", "operation")
	m.storeBoards = m.gauge("store_boards", "Number of boards registered in the snapshot store")

	m.pushes = m.counterVec("pushes_total",
		"Pushed metric batches by outcome", "result")
	m.queueSize = m.gauge("queue_size", "Current number of queued metric batches")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (current size / capacity)")
	m.queueEnqueued = m.counter("queue_enqueue_total", "Total number of batches enqueued")
	m.queueDequeued = m.counter("queue_dequeue_total", "Total number of batches dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total number of enqueue errors")

	m.workerActiveCount = m.gauge("worker_active_count", "Number of active dispatch workers")
	m.workerProcessingLatency = promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name:    "worker_processing_latency_milliseconds",
		Help:    "Time to hand a batch to its board",
		Buckets: m.histogramBuckets,
	})
	m.workerErrors = m.counter("worker_errors_total", "Total number of dispatch errors")

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_by_component_total",
		"Total number of errors by component", "component", "error_type")
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total",
		"Total number of errors by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap memory in use in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name:    "system_gc_pause_time_milliseconds",
		Help:    "Average GC pause time in milliseconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	})
}

// Ranking.

// RecordSnapshotPublished records a freshly ranked snapshot for board.
func RecordSnapshotPublished(board string, entries, errorEntries int, unixTime float64) {
	globalManager.snapshotsPublished.WithLabelValues(board).Inc()
	globalManager.boardEntries.WithLabelValues(board).Set(float64(entries))
	globalManager.boardErrorEntries.WithLabelValues(board).Set(float64(errorEntries))
	globalManager.lastSnapshotUnixTime.WithLabelValues(board).Set(unixTime)
}

// RecordIngestLatency records how long ranking a feed took.
func RecordIngestLatency(board string, latencyMs float64) {
	globalManager.ingestLatency.WithLabelValues(board).Observe(latencyMs)
}

// RecordDuplicateRejection counts a feed rejected for duplicate participant ids.
func RecordDuplicateRejection(board string) {
	globalManager.duplicateRejections.WithLabelValues(board).Inc()
}

// RecordStaleResponse counts a fetch result dropped by the sequence guard.
func RecordStaleResponse(board string) {
	globalManager.staleResponses.WithLabelValues(board).Inc()
}

// UpdateViewStale flags whether board currently shows stale data.
func UpdateViewStale(board string, stale bool) {
	v := 0.0
	if stale {
		v = 1
	}
	globalManager.viewStale.WithLabelValues(board).Set(v)
}

// UpdateViewState marks state as the active refresh state of board.
func UpdateViewState(board, state string) error {
	known := false
	for _, s := range ViewStates {
		if s == state {
			known = true
			break
		}
	}
	if !known {
		return ErrUnknownState
	}
	for _, s := range ViewStates {
		v := 0.0
		if s == state {
			v = 1
		}
		globalManager.viewState.WithLabelValues(board, s).Set(v)
	}
	return nil
}

// RecordRefreshRetry counts an explicit refresh request.
func RecordRefreshRetry(board string) {
	globalManager.refreshRetries.WithLabelValues(board).Inc()
}

// RecordSubscriberDrop counts a snapshot replaced in a slow subscriber's buffer.
func RecordSubscriberDrop(board string) {
	globalManager.subscriberDrops.WithLabelValues(board).Inc()
}

// Feed.

// RecordFeedFetch records a fetch attempt against source.
func RecordFeedFetch(source string, latencyMs float64, failed bool) {
	globalManager.feedFetchLatency.WithLabelValues(source).Observe(latencyMs)
	if failed {
		globalManager.feedFetchFailures.WithLabelValues(source).Inc()
	}
}

// Store.

// RecordStoreQueryLatency records a snapshot store read.
func RecordStoreQueryLatency(operation string, latencyMs float64) {
	globalManager.storeQueryLatency.WithLabelValues(operation).Observe(latencyMs)
}

// UpdateStoreBoards sets the number of registered boards.
func UpdateStoreBoards(count int) {
	globalManager.storeBoards.Set(float64(count))
}

// Push ingestion.

// RecordPush counts a pushed batch by outcome: accepted, duplicate, rejected.
func RecordPush(result string) {
	globalManager.pushes.WithLabelValues(result).Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

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
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// Workers.

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
	globalManager.workerErrors.Inc()
}

// HTTP.

// RecordHTTPRequest records an HTTP request and its duration.
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// Errors.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System.

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
