// Package pipeline sequences the stages of a run and exposes the control
// operations.
//
// A run loads and validates the settings, creates the output roots, indexes
// the monitored directory (or only the changed paths of a targeted run),
// converts the cataloged files and finally removes empty output
// directories. Each stage is skipped once a stop is requested; the catalog
// is left valid at any stopping point.
//
// Only one operation runs at a time: starting a run, clearing the index or
// clearing the output trees while another operation is in progress fails
// with ErrBusy. The Start* variants return immediately and report their
// outcome through Status and the log.
package pipeline
