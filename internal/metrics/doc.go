// Package metrics provides Prometheus instrumentation for the media compressor.
//
// All metrics are prefixed with "media_compressor_" and registered with the
// default registry through promauto. The control server exposes them at
// /metrics via promhttp.Handler().
//
// # Metric Categories
//
//   - Pipeline: runs by trigger and result, running gauge, stage durations
//   - Scanner: files by outcome, scan duration, deleted candidate paths
//   - Indexer: runs, files by outcome, stale removals, extraction duration
//   - Conversion: tasks by kind and outcome, duration by device class,
//     output/original size ratio
//   - External tools: invocations and run time per tool
//   - Worker pools: workers, queue depth and task outcomes per pool
//   - Database: query totals and durations, SQLite file sizes
//   - Catalog: record gauges refreshed by [Collector]
//   - Filesystem: NFS stale-handle retry counters
//   - Watcher: events, errors, watched directories
//
// # Collector
//
// [Collector] periodically reads catalog statistics from a [StatsProvider]
// and refreshes the catalog and database size gauges:
//
//	collector := metrics.NewCollector(catalog, dbPath, time.Minute)
//	collector.Start()
//	defer collector.Stop()
//
// # Prometheus Queries
//
// Conversion error rate:
//
//	sum(rate(media_compressor_conversions_total{outcome="error"}[1h])) /
//	sum(rate(media_compressor_conversions_total[1h]))
//
// GPU vs CPU video conversion latency:
//
//	histogram_quantile(0.95, sum(rate(media_compressor_conversion_duration_seconds_bucket{kind="video"}[1h])) by (le, device))
package metrics
