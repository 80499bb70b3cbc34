package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ExtractionJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vidbridge",
		Name:      "extraction_jobs_total",
		Help:      "Extraction jobs by server and outcome.",
	}, []string{"server", "outcome"})

	ExtractionPhaseTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vidbridge",
		Name:      "extraction_phase_transitions_total",
		Help:      "Phase transitions emitted by the extraction engine.",
	}, []string{"phase"})

	ExtractionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vidbridge",
		Name:      "extraction_duration_seconds",
		Help:      "End-to-end extraction duration by server.",
		Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 90},
	}, []string{"server"})

	BrowserEscalations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vidbridge",
		Name:      "browser_escalations_total",
		Help:      "Hops that escalated from pure fetch to the browser strategy.",
	})

	BrowserPoolActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "vidbridge",
		Name:      "browser_pool_active",
		Help:      "Browser processes currently serving tabs.",
	})

	BrowserTabsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "vidbridge",
		Name:      "browser_tabs_active",
		Help:      "Open automation tabs across the pool.",
	})

	ActiveJobs = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "vidbridge",
		Name:      "active_jobs",
		Help:      "Extraction jobs currently running.",
	})

	ProxyRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vidbridge",
		Name:      "proxy_requests_total",
		Help:      "Stream proxy requests by source tag and status class.",
	}, []string{"source", "status"})

	ProxyBytesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vidbridge",
		Name:      "proxy_bytes_total",
		Help:      "Bytes relayed by the stream proxy per source tag.",
	}, []string{"source"})

	SubtitleCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vidbridge",
		Name:      "subtitle_cache_hits_total",
		Help:      "Subtitle blob cache hits.",
	})

	SubtitleCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vidbridge",
		Name:      "subtitle_cache_misses_total",
		Help:      "Subtitle blob cache misses.",
	})
)

// Register installs all collectors on the given registry.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		ExtractionJobsTotal,
		ExtractionPhaseTransitions,
		ExtractionDuration,
		BrowserEscalations,
		BrowserPoolActive,
		BrowserTabsActive,
		ActiveJobs,
		ProxyRequestsTotal,
		ProxyBytesTotal,
		SubtitleCacheHits,
		SubtitleCacheMisses,
	)
}
