// Package metrics provides Prometheus metrics for the synchronization pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns every Prometheus collector used by the pipeline.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Pipeline output
	runsTotal       *prometheus.CounterVec
	stageLatency    *prometheus.HistogramVec
	serialsDecoded  prometheus.Counter
	serialsMatched  prometheus.Counter
	analogSamples   prometheus.Counter
	syncedRecords   prometheus.Counter
	unmatchedFilled *prometheus.CounterVec

	// Data quality
	anomalies      *prometheus.CounterVec
	jumpSize       *prometheus.HistogramVec
	unknownMarkers *prometheus.CounterVec
	rollovers      prometheus.Counter

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerActiveCount       prometheus.Gauge
	workerBusyCount         prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	errorsByComponent *prometheus.CounterVec

	// Status server
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // avoids default Go collectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "videosync",
		subsystem:        "pipeline",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		constLabels:      make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
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

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
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

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.runsTotal = m.counterVec("runs_total", "Recording runs by final status", "status")
	m.stageLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "stage_latency_milliseconds",
		Help:        "Latency of each pipeline stage in milliseconds",
		Buckets:     []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 30000, 120000},
		ConstLabels: m.constLabels,
	}, []string{"stage"})
	m.serialsDecoded = m.counter("serials_decoded_total", "Chunk serials decoded from digital events")
	m.serialsMatched = m.counter("serials_matched_total", "Chunk serials present in both device and camera streams")
	m.analogSamples = m.counter("analog_samples_total", "Analog samples read inside the joined timestamp span")
	m.syncedRecords = m.counter("synced_records_total", "Synced records emitted")
	m.unmatchedFilled = m.counterVec("unmatched_filled_total", "Analog samples attributed by gap fill", "mode")

	m.anomalies = m.counterVec("anomalies_total", "Classified serial anomalies", "stream", "kind")
	m.jumpSize = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "jump_size",
		Help:        "Type III jump sizes",
		Buckets:     prometheus.ExponentialBuckets(2, 2, 12),
		ConstLabels: m.constLabels,
	}, []string{"stream"})
	m.unknownMarkers = m.counterVec("unknown_markers_total", "Positions left as unknown markers", "stream")
	m.rollovers = m.counter("frame_rollovers_total", "Frame counter wraparounds unwrapped")

	m.queueSize = m.gauge("queue_size", "Jobs waiting in the queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum capacity of the job queue")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization (0.0 to 1.0)")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Jobs enqueued")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Jobs dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Failed enqueue attempts")

	m.workerActiveCount = m.gauge("worker_active_count", "Workers in the pool")
	m.workerBusyCount = m.gauge("worker_busy_count", "Workers currently running a job")
	m.workerProcessingLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "worker_processing_latency_milliseconds",
		Help:        "Time a worker spends on one job",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	})
	m.workerErrors = m.counter("worker_errors_total", "Jobs that finished with an error")

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component", "component", "error_type")

	m.httpRequests = m.counterVec("http_requests_total", "Status server requests", "endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "Status server request latency in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap memory in use")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
}

func on() bool { return globalManager != nil && globalManager.enabled }

// RecordRun counts a finished recording run with its status (ok, failed, skipped).
func RecordRun(status string) {
	if on() {
		globalManager.runsTotal.WithLabelValues(status).Inc()
	}
}

// RecordStageLatency observes the duration of a pipeline stage.
func RecordStageLatency(stage string, latencyMs float64) {
	if on() {
		globalManager.stageLatency.WithLabelValues(stage).Observe(latencyMs)
	}
}

// AddSerialsDecoded adds decoded chunk serials.
func AddSerialsDecoded(n int) {
	if on() {
		globalManager.serialsDecoded.Add(float64(n))
	}
}

// AddSerialsMatched adds serials that survived the device/camera join.
func AddSerialsMatched(n int) {
	if on() {
		globalManager.serialsMatched.Add(float64(n))
	}
}

// AddAnalogSamples adds analog samples consumed.
func AddAnalogSamples(n int) {
	if on() {
		globalManager.analogSamples.Add(float64(n))
	}
}

// AddSyncedRecords adds emitted synced records.
func AddSyncedRecords(n int) {
	if on() {
		globalManager.syncedRecords.Add(float64(n))
	}
}

// AddFilled adds analog samples attributed by a fill mode.
func AddFilled(mode string, n int) {
	if on() {
		globalManager.unmatchedFilled.WithLabelValues(mode).Add(float64(n))
	}
}

// RecordAnomaly counts one classified anomaly.
func RecordAnomaly(stream, kind string) {
	if on() {
		globalManager.anomalies.WithLabelValues(stream, kind).Inc()
	}
}

// RecordJumpSize observes a Type III jump.
func RecordJumpSize(stream string, size int64) {
	if on() {
		globalManager.jumpSize.WithLabelValues(stream).Observe(float64(size))
	}
}

// AddUnknownMarkers adds positions left unresolved.
func AddUnknownMarkers(stream string, n int) {
	if on() {
		globalManager.unknownMarkers.WithLabelValues(stream).Add(float64(n))
	}
}

// AddRollovers adds unwrapped frame counter wraparounds.
func AddRollovers(n int) {
	if on() {
		globalManager.rollovers.Add(float64(n))
	}
}

// UpdateQueueSize sets the queue backlog.
func UpdateQueueSize(size int) {
	if on() {
		globalManager.queueSize.Set(float64(size))
	}
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	if on() {
		globalManager.queueCapacity.Set(float64(capacity))
	}
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	if on() {
		globalManager.queueUtilization.Set(utilization)
	}
}

// RecordQueueEnqueue counts an enqueued job.
func RecordQueueEnqueue() {
	if on() {
		globalManager.queueEnqueueRate.Inc()
	}
}

// RecordQueueDequeue counts a dequeued job.
func RecordQueueDequeue() {
	if on() {
		globalManager.queueDequeueRate.Inc()
	}
}

// RecordQueueEnqueueError counts a rejected job.
func RecordQueueEnqueueError() {
	if on() {
		globalManager.queueEnqueueErrors.Inc()
	}
}

// UpdateWorkerActiveCount sets the pool size.
func UpdateWorkerActiveCount(count int) {
	if on() {
		globalManager.workerActiveCount.Set(float64(count))
	}
}

// AddWorkerBusy moves the busy gauge by delta.
func AddWorkerBusy(delta int) {
	if on() {
		globalManager.workerBusyCount.Add(float64(delta))
	}
}

// RecordWorkerProcessingLatency observes one job's duration.
func RecordWorkerProcessingLatency(latencyMs float64) {
	if on() {
		globalManager.workerProcessingLatency.Observe(latencyMs)
	}
}

// RecordWorkerError counts a failed job.
func RecordWorkerError() {
	if on() {
		globalManager.workerErrors.Inc()
	}
}

// RecordErrorByComponent counts an error by the component that raised it.
func RecordErrorByComponent(component, errorType string) {
	if on() {
		globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
	}
}

// RecordHTTPRequest counts one status server request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if on() {
		globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration records the latency of one status server request.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	if on() {
		globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
	}
}

// UpdateSystemMemoryUsage sets heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	if on() {
		globalManager.systemMemoryUsage.Set(float64(bytes))
	}
}

// UpdateSystemGoroutineCount sets the goroutine gauge.
func UpdateSystemGoroutineCount(count int) {
	if on() {
		globalManager.systemGoroutineCount.Set(float64(count))
	}
}

// GetRegistry returns the registry backing the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Handler serves the global registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(customRegistry, promhttp.HandlerOpts{})
}
