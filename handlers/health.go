package handlers

import (
	"net/http"
	"time"
)

const serviceVersion = "0.3.1"

// BrowserStats reports pool occupancy.
type BrowserStats interface {
	Stats() (active, pooled int)
}

// JobStats reports running extraction jobs.
type JobStats interface {
	ActiveCount() int
}

// HealthHandler answers the liveness probe with pool and job occupancy.
type HealthHandler struct {
	started  time.Time
	browsers BrowserStats
	jobs     JobStats
}

func NewHealthHandler(browsers BrowserStats, jobs JobStats) *HealthHandler {
	return &HealthHandler{started: time.Now(), browsers: browsers, jobs: jobs}
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	active, pooled := 0, 0
	if h.browsers != nil {
		active, pooled = h.browsers.Stats()
	}
	running := 0
	if h.jobs != nil {
		running = h.jobs.ActiveCount()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "healthy",
		"version":       serviceVersion,
		"uptimeSeconds": int(time.Since(h.started).Seconds()),
		"browsers":      map[string]int{"active": active, "pooled": pooled},
		"jobs":          map[string]int{"active": running},
	})
}
