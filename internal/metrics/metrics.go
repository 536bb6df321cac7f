package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline metrics
var (
	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_compressor_pipeline_runs_total",
			Help: "Total number of pipeline runs by trigger and result",
		},
		[]string{"trigger", "result"}, // trigger: manual, schedule, watcher; result: finished, stopped, refused, failed
	)

	PipelineIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_compressor_pipeline_running",
			Help: "Whether a pipeline run is in progress (1 = running, 0 = idle)",
		},
	)

	PipelineLastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_compressor_pipeline_last_run_duration_seconds",
			Help: "Duration of the last pipeline run in seconds",
		},
	)

	PipelineLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_compressor_pipeline_last_run_timestamp",
			Help: "Completion time of the last pipeline run",
		},
	)

	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_compressor_pipeline_stage_duration_seconds",
			Help:    "Duration of each pipeline stage in seconds",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		},
		[]string{"stage"},
	)
)

// Scanner metrics
var (
	ScannerFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_compressor_scanner_files_total",
			Help: "Files seen by the scanner by outcome",
		},
		[]string{"outcome"}, // accepted, excluded, sibling_skipped, unknown_extension
	)

	ScannerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_compressor_scanner_duration_seconds",
			Help:    "Scan duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"mode"}, // full, targeted
	)

	ScannerDeletedPaths = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_compressor_scanner_deleted_paths_total",
			Help: "Candidate paths reported deleted by targeted scans",
		},
	)
)

// Indexer metrics
var (
	IndexerRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_compressor_indexer_runs_total",
			Help: "Total number of indexer runs",
		},
	)

	IndexerIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_compressor_indexer_running",
			Help: "Whether the indexer is currently running (1 = running, 0 = idle)",
		},
	)

	IndexerLastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_compressor_indexer_last_run_duration_seconds",
			Help: "Duration of the last indexer run in seconds",
		},
	)

	IndexerFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_compressor_indexer_files_total",
			Help: "Files handled by the indexer by outcome",
		},
		[]string{"outcome"}, // indexed, reindexed, unchanged, rejected, error
	)

	IndexerStaleRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_compressor_indexer_stale_removed_total",
			Help: "Catalog records removed because the source file disappeared",
		},
	)

	ExtractionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_compressor_extraction_duration_seconds",
			Help:    "Metadata extraction duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"kind"},
	)
)

// Conversion metrics
var (
	ConversionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_compressor_conversions_total",
			Help: "Conversion tasks by media kind and outcome",
		},
		[]string{"kind", "outcome"}, // outcome: converted, skipped, unknown_date, error
	)

	ConversionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_compressor_conversion_duration_seconds",
			Help:    "Conversion duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"kind", "device"}, // device: cpu, gpu
	)

	ConversionSizeRatio = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_compressor_conversion_size_ratio",
			Help:    "Output size divided by original size",
			Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.75, 1, 1.5, 2},
		},
		[]string{"kind"},
	)

	ConversionsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_compressor_conversions_in_progress",
			Help: "Number of conversions currently running",
		},
	)
)

// External tool metrics
var (
	ToolInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_compressor_tool_invocations_total",
			Help: "External tool invocations by tool and status",
		},
		[]string{"tool", "status"},
	)

	ToolInvocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_compressor_tool_invocation_duration_seconds",
			Help:    "External tool run time in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120, 600},
		},
		[]string{"tool"},
	)
)

// Worker pool metrics
var (
	WorkerPoolWorkers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_compressor_worker_pool_workers",
			Help: "Number of workers started per pool",
		},
		[]string{"pool"},
	)

	WorkerPoolQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_compressor_worker_pool_queue_depth",
			Help: "Tasks submitted but not yet acknowledged per pool",
		},
		[]string{"pool"},
	)

	WorkerPoolTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_compressor_worker_pool_tasks_total",
			Help: "Tasks acknowledged per pool by outcome",
		},
		[]string{"pool", "outcome"}, // done, failed, skipped, panicked
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_compressor_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_compressor_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_compressor_db_size_bytes",
			Help: "Size of SQLite database files in bytes",
		},
		[]string{"file"}, // "main", "wal", "shm"
	)
)

// Catalog contents
var (
	CatalogRecordsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_compressor_catalog_records",
			Help: "Catalog records by media kind",
		},
		[]string{"kind"},
	)

	CatalogUnknownDateRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_compressor_catalog_unknown_date_records",
			Help: "Catalog records without a capture date",
		},
	)

	CatalogConvertedRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_compressor_catalog_converted_records",
			Help: "Catalog records with a stored converted hash",
		},
	)
)

// Filesystem retry metrics
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_compressor_filesystem_retry_attempts_total",
			Help: "Filesystem operations retried after a stale NFS handle",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_compressor_filesystem_retry_success_total",
			Help: "Filesystem operations that succeeded after retrying",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_compressor_filesystem_retry_failures_total",
			Help: "Filesystem operations that failed after exhausting retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_compressor_filesystem_stale_errors_total",
			Help: "ESTALE errors observed",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_compressor_filesystem_retry_duration_seconds",
			Help:    "Total time spent in retrying filesystem operations",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"operation", "volume"},
	)
)

// Watcher metrics
var (
	WatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_compressor_watcher_events_total",
			Help: "Total number of filesystem watcher events",
		},
		[]string{"event_type"},
	)

	WatcherErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_compressor_watcher_errors_total",
			Help: "Total number of filesystem watcher errors",
		},
	)

	WatchedDirectories = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_compressor_watched_directories",
			Help: "Number of directories currently being watched",
		},
	)
)

// HTTP metrics for the control server
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_compressor_http_requests_total",
			Help: "Total number of control API requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_compressor_http_request_duration_seconds",
			Help:    "Control API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_compressor_http_requests_in_flight",
			Help: "Number of control API requests currently being served",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_compressor_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
