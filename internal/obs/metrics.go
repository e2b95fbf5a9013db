package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
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

	authDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_decisions_total",
			Help: "Authorization guard outcomes by guard and result kind.",
		},
		[]string{"guard", "outcome"},
	)

	cipherOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "envelope_operations_total",
			Help: "Envelope encrypt/decrypt calls by operation and result.",
		},
		[]string{"op", "result"},
	)

	tokensMinted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_tokens_minted_total",
			Help: "Bearer tokens minted by kind.",
		},
		[]string{"kind"},
	)

	initOnce sync.Once
)

// Init registers metrics in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration, authDecisions, cipherOps, tokensMinted)
	})
}

// Handler serves the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAuthDecision counts one guard outcome. outcome is "allowed" or an error kind.
func ObserveAuthDecision(guard, outcome string) {
	authDecisions.WithLabelValues(guard, outcome).Inc()
}

// ObserveCipher counts one envelope operation.
func ObserveCipher(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	cipherOps.WithLabelValues(op, result).Inc()
}

// ObserveTokenMinted counts a minted token.
func ObserveTokenMinted(kind string) {
	tokensMinted.WithLabelValues(kind).Inc()
}

// Instrument records RPS, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// CanonicalPath collapses tenant-specific path segments so metric labels stay bounded.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) >= 4 && parts[0] == "api" && parts[1] == "v1" && parts[2] == "app":
		parts[3] = ":app_id"
		if len(parts) == 6 && parts[4] == "secret" {
			parts[5] = ":name"
		}
	case len(parts) == 5 && parts[0] == "api" && parts[1] == "v1" && parts[2] == "auth":
		parts[4] = ":app_id"
	}
	return "/" + strings.Join(parts, "/")
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
