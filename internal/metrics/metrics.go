// Package metrics exposes Prometheus collectors for the lead engine service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	jobsTotal                  *prometheus.CounterVec
	runnerTriggersTotal        *prometheus.CounterVec
	connectedViewers           prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadengine_jobs_total",
				Help: "Total number of scraping jobs, labeled by status.",
			},
			[]string{"status"},
		)

		runnerTriggersTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leadengine_runner_triggers_total",
				Help: "Workflow runner trigger attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		connectedViewers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "leadengine_connected_viewers",
				Help: "Number of viewers currently connected to the broadcast hub.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveJob increments the job counter for the given status.
func ObserveJob(status string) {
	if jobsTotal == nil {
		return
	}
	jobsTotal.WithLabelValues(status).Inc()
}

// ObserveRunnerTrigger increments the trigger counter for the given outcome.
func ObserveRunnerTrigger(outcome string) {
	if runnerTriggersTotal == nil {
		return
	}
	runnerTriggersTotal.WithLabelValues(outcome).Inc()
}

// IncConnectedViewers increments the connected viewers gauge.
func IncConnectedViewers() {
	if connectedViewers == nil {
		return
	}
	connectedViewers.Inc()
}

// DecConnectedViewers decrements the connected viewers gauge.
func DecConnectedViewers() {
	if connectedViewers == nil {
		return
	}
	connectedViewers.Dec()
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			routePattern = rctx.RoutePattern()
		}

		ObserveHTTPRequest(r.Method, routePattern, ww.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
