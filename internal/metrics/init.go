package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, outcome := range []string{"accepted", "excluded", "sibling_skipped", "unknown_extension"} {
		ScannerFilesTotal.WithLabelValues(outcome)
	}
	for _, mode := range []string{"full", "targeted"} {
		ScannerDuration.WithLabelValues(mode)
	}

	for _, outcome := range []string{"indexed", "reindexed", "unchanged", "rejected", "error"} {
		IndexerFilesTotal.WithLabelValues(outcome)
	}

	kinds := []string{"image", "video"}
	for _, kind := range kinds {
		for _, outcome := range []string{"converted", "skipped", "unknown_date", "error"} {
			ConversionsTotal.WithLabelValues(kind, outcome)
		}
		for _, device := range []string{"cpu", "gpu"} {
			ConversionDuration.WithLabelValues(kind, device)
		}
		ConversionSizeRatio.WithLabelValues(kind)
		ExtractionDuration.WithLabelValues(kind)
		CatalogRecordsTotal.WithLabelValues(kind)
	}

	for _, tool := range []string{"exiftool", "magick", "ffmpeg"} {
		ToolInvocationsTotal.WithLabelValues(tool, "success")
		ToolInvocationsTotal.WithLabelValues(tool, "error")
		ToolInvocationDuration.WithLabelValues(tool)
	}

	for _, pool := range []string{"indexing", "cpu_conversion", "gpu_conversion"} {
		WorkerPoolWorkers.WithLabelValues(pool)
		WorkerPoolQueueDepth.WithLabelValues(pool)
		for _, outcome := range []string{"done", "failed", "skipped", "panicked"} {
			WorkerPoolTasksTotal.WithLabelValues(pool, outcome)
		}
	}

	for _, trigger := range []string{"manual", "schedule", "watcher"} {
		for _, result := range []string{"finished", "stopped", "refused", "failed"} {
			PipelineRunsTotal.WithLabelValues(trigger, result)
		}
	}
	for _, stage := range []string{"scan", "remove_stale", "mark_indexed", "index", "convert", "cleanup"} {
		PipelineStageDuration.WithLabelValues(stage)
	}

	for _, op := range []string{"migrate", "get_record", "get_by_output_path", "list_records",
		"upsert_record", "delete_record", "set_output_path", "set_converted", "clear_records", "stats"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}

	for _, file := range []string{"main", "wal", "shm"} {
		DBSizeBytes.WithLabelValues(file)
	}

	volumes := []string{"monitored", "output", "unknown_output", "unknown"}
	for _, op := range []string{"stat", "open"} {
		for _, vol := range volumes {
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
			FilesystemRetryDuration.WithLabelValues(op, vol)
		}
	}
}
