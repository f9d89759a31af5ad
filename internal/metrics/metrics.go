package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// External fetch metrics
	// ============================================
	FetchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_fetch_requests_total",
			Help: "Total number of external API requests",
		},
		[]string{"source", "status"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backend_fetch_duration_seconds",
			Help:    "External API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	FetchPages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_fetch_pages_total",
			Help: "Total number of pages fetched from paginated APIs",
		},
		[]string{"source", "cached"},
	)

	// ============================================
	// Cache metrics
	// ============================================
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"category"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"category"},
	)

	CacheErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backend_cache_errors_total",
		Help: "Total number of cache backend errors (degraded to miss)",
	})

	// ============================================
	// LLM metrics
	// ============================================
	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_llm_requests_total",
			Help: "Total number of LLM completion requests",
		},
		[]string{"provider", "status"},
	)

	LLMDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backend_llm_duration_seconds",
			Help:    "LLM completion duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"provider"},
	)

	LLMParseFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_llm_parse_failures_total",
			Help: "Total number of LLM responses that failed JSON parsing",
		},
		[]string{"provider", "repaired"},
	)

	// ============================================
	// Dashboard refresh metrics
	// ============================================
	RefreshRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_dashboard_refresh_total",
			Help: "Total number of dashboard refresh runs",
		},
		[]string{"trigger", "result"},
	)

	RefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "backend_dashboard_refresh_duration_seconds",
		Help:    "Dashboard refresh pipeline duration in seconds",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	RefreshLastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_dashboard_refresh_last_success_timestamp",
		Help: "Unix timestamp of the last successful dashboard refresh",
	})

	// ============================================
	// Connection metrics
	// ============================================
	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_nats_connection_status",
		Help: "NATS connection status (1=connected, 0=disconnected)",
	})

	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})
)
