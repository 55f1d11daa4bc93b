package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	sessionRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_refresh_total",
			Help: "Refresh-token rotations by outcome.",
		},
		[]string{"outcome"},
	)

	permCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permission_cache_total",
			Help: "Permission cache lookups by result.",
		},
		[]string{"result"},
	)

	taskTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_transitions_total",
			Help: "Applied work-item transitions.",
		},
		[]string{"from", "to"},
	)
)

// Init registers metrics with the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight,
		httpRequestsTotal,
		httpRequestDuration,
		sessionRefreshTotal,
		permCacheTotal,
		taskTransitionsTotal,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSessionRefresh records a refresh-token rotation outcome.
func ObserveSessionRefresh(outcome string) {
	sessionRefreshTotal.WithLabelValues(outcome).Inc()
}

// ObservePermCache records a permission cache hit, miss or error.
func ObservePermCache(result string) {
	permCacheTotal.WithLabelValues(result).Inc()
}

// ObserveTransition records an applied work-item transition.
func ObserveTransition(from, to string) {
	taskTransitionsTotal.WithLabelValues(from, to).Inc()
}

// Instrument wraps a handler with RPS/latency/in-flight measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
