package handlers

import (
	"net/http"
	"runtime"
	"time"

	"media-compressor/internal/pipeline"
	"media-compressor/internal/startup"
	"media-compressor/internal/transcoder"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status  string         `json:"status"`
	Version string         `json:"version"`
	Uptime  string         `json:"uptime"`
	Busy    bool           `json:"busy"`
	Stage   pipeline.Stage `json:"stage"`

	// Tools lists the external programs; a missing one degrades the service.
	Tools []transcoder.ToolStatus `json:"tools,omitempty"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck returns the health status of the service. A missing tool
// reports degraded but still answers 200.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	st := h.pipeline.Status()

	response := HealthResponse{
		Status:       statusHealthy,
		Version:      startup.Version,
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		Busy:         st.Busy,
		Stage:        st.Stage,
		Tools:        h.tools,
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}
	for _, tool := range h.tools {
		if !tool.Available {
			response.Status = statusDegraded
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		writeJSON(w, response)
	}
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}
