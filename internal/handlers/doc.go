// Package handlers provides the HTTP control API of the pipeline.
//
// It includes handlers for:
//   - Starting a run and requesting a stop
//   - Clearing the index and the output trees
//   - Run status and progress, recent log records
//   - Health checks, version and Prometheus metrics
package handlers
