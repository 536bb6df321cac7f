package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"media-compressor/internal/logging"
	"media-compressor/internal/pipeline"
)

const (
	defaultLogLines = 100
)

// StatusResponse is the controller status plus the schedule.
type StatusResponse struct {
	pipeline.Status
	Schedule  string     `json:"schedule,omitempty"`
	NextRunAt *time.Time `json:"nextRunAt,omitempty"`
}

// GetStatus returns the current stage, progress counters and last run.
func (h *Handlers) GetStatus(w http.ResponseWriter, _ *http.Request) {
	response := StatusResponse{Status: h.pipeline.Status()}
	if h.schedule != nil {
		response.Schedule = h.schedule.Expr()
		response.NextRunAt = h.schedule.NextRunAt()
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, response)
}

// StartRun starts a full run in the background.
func (h *Handlers) StartRun(w http.ResponseWriter, _ *http.Request) {
	h.start(w, "started", func() error { return h.pipeline.StartRun(pipeline.TriggerManual) })
}

// ClearIndex starts clearing the catalog in the background.
func (h *Handlers) ClearIndex(w http.ResponseWriter, _ *http.Request) {
	h.start(w, "clearing", h.pipeline.StartClearIndex)
}

// ClearOutput starts clearing both output trees in the background.
func (h *Handlers) ClearOutput(w http.ResponseWriter, _ *http.Request) {
	h.start(w, "clearing", h.pipeline.StartClearOutputDirs)
}

func (h *Handlers) start(w http.ResponseWriter, status string, fn func() error) {
	err := fn()
	switch {
	case errors.Is(err, pipeline.ErrBusy):
		writeJSONError(w, err.Error(), http.StatusConflict)
	case err != nil:
		logging.Error("Failed to start operation: %v", err)
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
	default:
		writeJSONStatus(w, status, http.StatusAccepted)
	}
}

// StopRun requests the running operation to stop. It never waits.
func (h *Handlers) StopRun(w http.ResponseWriter, _ *http.Request) {
	if h.pipeline.RequestStop() {
		writeJSONStatus(w, "stopping", http.StatusAccepted)
		return
	}
	writeJSONStatus(w, "idle", http.StatusOK)
}

// GetLogs returns the most recent collected log records, oldest first.
func (h *Handlers) GetLogs(w http.ResponseWriter, r *http.Request) {
	n := defaultLogLines
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeJSONError(w, "n must be a positive integer", http.StatusBadRequest)
			return
		}
		n = min(parsed, logging.DefaultHistorySize)
	}

	records := logging.Recent(n)
	if records == nil {
		records = []logging.Record{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, records)
}
