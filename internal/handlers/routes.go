package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"media-compressor/internal/middleware"
)

// Router registers every route. Request metrics are recorded per route
// template; the server wraps the router in request logging.
func (h *Handlers) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))

	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/healthz", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet)
	r.Handle("/metrics", h.MetricsHandler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", h.GetStatus).Methods(http.MethodGet)
	api.HandleFunc("/run", h.StartRun).Methods(http.MethodPost)
	api.HandleFunc("/stop", h.StopRun).Methods(http.MethodPost)
	api.HandleFunc("/index/clear", h.ClearIndex).Methods(http.MethodPost)
	api.HandleFunc("/output/clear", h.ClearOutput).Methods(http.MethodPost)
	api.HandleFunc("/logs", h.GetLogs).Methods(http.MethodGet)

	return r
}
