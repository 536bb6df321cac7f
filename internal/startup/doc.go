// Package startup handles process configuration and startup/shutdown
// logging.
//
// # Configuration
//
// Process configuration is read from the environment by [LoadConfig]:
//
//   - APP_DATA_DIR: directory holding settings.yaml and the catalog
//     (default: the user config directory + /media-compressor)
//   - CONTROL_ADDR: listen address of the control server (default: 127.0.0.1:9898)
//   - LOG_FILE: optional file receiving JSON log records
//   - LOG_LEVEL / DEBUG: logging level
//
// The data directory is created when missing and must be writable.
// Conversion settings are not part of this configuration; they live in
// settings.yaml and are re-read at the start of every run.
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo]:
//
//	go build -ldflags "-X media-compressor/internal/startup.Version=1.2.0" ./cmd/media-compressor
//
// # Lifecycle Logging
//
//   - [LogStartup]: banner, system information and configuration
//   - [LogCatalogInit]: catalog open timing
//   - [LogToolCheck]: external tool availability
//   - [LogHTTPRoutes]: registered control routes (debug level)
//   - [LogServerStarted], [LogShutdownInitiated], [LogShutdownComplete]
package startup
