// Package main is the media-compressor command.
//
// media-compressor keeps a compressed copy of a photo and video library. It
// indexes the monitored directory into a SQLite catalog, converts new or
// changed files with ImageMagick and ffmpeg, and copies the metadata back
// with exiftool. Runs are incremental: unchanged files are neither
// re-probed nor re-encoded.
//
// # Commands
//
//	media-compressor run [-debug] [path ...]         one run, then exit
//	media-compressor serve [-addr a] [-run] [-debug] control server, schedule, watcher
//	media-compressor clear-index [-yes]              drop the catalog and converted files
//	media-compressor clear-output [-yes]             drop the converted files
//	media-compressor settings [-tools]               print and validate settings.yaml
//	media-compressor version [-json]
//
// # Control API (serve)
//
//	GET  /health            health, version and tool availability
//	GET  /api/status        stage, progress and last run
//	POST /api/run           start a run (409 while busy)
//	POST /api/stop          request a stop
//	POST /api/index/clear   clear the catalog (409 while busy)
//	POST /api/output/clear  clear the output trees (409 while busy)
//	GET  /api/logs?n=100    recent log records
//	GET  /metrics           Prometheus metrics
//
// # Signals
//
// The first SIGINT or SIGTERM requests a stop: queued tasks are dropped and
// running ones finish. During "run", a second interrupt kills the encoders;
// "serve" does the same after a 30 second grace period.
package main
