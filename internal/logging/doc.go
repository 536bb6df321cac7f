// Package logging provides a leveled logging interface for the
// media compressor.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information
//   - INFO: General operational messages
//   - WARN: Warning conditions
//   - ERROR: Error conditions
//
// The log level is configured via the LOG_LEVEL environment variable.
//
// Records are written through zerolog. When a collector is running
// (see StartCollector), every record produced by any worker goroutine is
// placed on a single channel and written by one consumer, which also keeps
// a bounded history for the control API.
package logging
