package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vidbridge/handlers"
)

// corsMiddleware handles CORS for all routes; the player runs on a
// different origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func handleOptions(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// Register mounts all endpoints onto the provided router.
func Register(
	r *mux.Router,
	extractHandler *handlers.ExtractHandler,
	proxyHandler *handlers.StreamProxyHandler,
	subtitlesHandler *handlers.SubtitlesHandler,
	healthHandler *handlers.HealthHandler,
	metricsReg *prometheus.Registry,
) {
	r.Use(corsMiddleware)

	// Extraction surface
	r.HandleFunc("/extract-stream-progress", extractHandler.Progress).Methods(http.MethodGet)
	r.HandleFunc("/extract-stream-progress", extractHandler.Options).Methods(http.MethodOptions)
	r.HandleFunc("/extract-stream", extractHandler.Extract).Methods(http.MethodPost)
	r.HandleFunc("/extract-stream", extractHandler.Options).Methods(http.MethodOptions)

	// Stream proxy
	r.HandleFunc(handlers.ProxyPath, proxyHandler.Proxy).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc(handlers.ProxyPath, proxyHandler.Options).Methods(http.MethodOptions)

	// Subtitles
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/subtitles", subtitlesHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/subtitles", subtitlesHandler.Options).Methods(http.MethodOptions)
	api.HandleFunc("/subtitles/download", subtitlesHandler.Download).Methods(http.MethodGet)
	api.HandleFunc("/subtitles/download", handleOptions).Methods(http.MethodOptions)

	// Ops
	r.HandleFunc("/health", healthHandler.Health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}
