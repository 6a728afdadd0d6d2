package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	gatesProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peaktree_gates_processed_total",
			Help: "Total number of range gates processed, by final tree state.",
		},
		[]string{"station", "state"},
	)

	gateFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peaktree_gate_failures_total",
			Help: "Total number of range gates skipped because of an error.",
		},
		[]string{"station"},
	)

	convergenceWarningsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peaktree_noise_convergence_warnings_total",
			Help: "Total number of noise estimates that hit the iteration cap.",
		},
		[]string{"station"},
	)

	prunedSplitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peaktree_pruned_splits_total",
			Help: "Total number of splits dropped by the node budget.",
		},
		[]string{"station"},
	)

	treeNodes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "peaktree_tree_nodes",
			Help:    "Number of nodes per emitted tree.",
			Buckets: prometheus.LinearBuckets(0, 1, 16),
		},
		[]string{"station"},
	)

	gateDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "peaktree_gate_duration_seconds",
			Help:    "Time spent processing one range gate.",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 14),
		},
		[]string{"station"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peaktree_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "peaktree_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)
)

func init() {
	prometheus.MustRegister(gatesProcessedTotal)
	prometheus.MustRegister(gateFailuresTotal)
	prometheus.MustRegister(convergenceWarningsTotal)
	prometheus.MustRegister(prunedSplitsTotal)
	prometheus.MustRegister(treeNodes)
	prometheus.MustRegister(gateDurationSeconds)
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpDurationSeconds)
}

// ObserveGate records one successfully processed gate
func ObserveGate(station, state string, nodes, pruned int, d time.Duration) {
	gatesProcessedTotal.WithLabelValues(station, state).Inc()
	treeNodes.WithLabelValues(station).Observe(float64(nodes))
	gateDurationSeconds.WithLabelValues(station).Observe(d.Seconds())
	if pruned > 0 {
		prunedSplitsTotal.WithLabelValues(station).Add(float64(pruned))
	}
}

// ObserveFailure records a gate that was skipped
func ObserveFailure(station string) {
	gateFailuresTotal.WithLabelValues(station).Inc()
}

// ObserveConvergenceWarning records a noise estimate that hit its cap
func ObserveConvergenceWarning(station string) {
	convergenceWarningsTotal.WithLabelValues(station).Inc()
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		httpRequestsTotal.WithLabelValues(r.URL.Path, r.Method, strconv.Itoa(rw.statusCode)).Inc()
		httpDurationSeconds.WithLabelValues(r.URL.Path, r.Method).Observe(time.Since(start).Seconds())
	})
}
