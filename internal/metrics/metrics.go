// Package metrics provides Prometheus instrumentation for the simulation
// engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TicksTotal counts synthetic ticks generated, per instrument.
	TicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "simengine_ticks_total",
		Help: "Total synthetic price ticks generated",
	}, []string{"instrument"})

	// OrdersTotal counts executed orders, partitioned by side.
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "simengine_orders_total",
		Help: "Total orders executed",
	}, []string{"side"})

	// OrderRejections counts rejected trade intents by reason.
	OrderRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "simengine_order_rejections_total",
		Help: "Trade intents rejected",
	}, []string{"reason"})

	// ActiveSessions tracks the number of running simulation sessions.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "simengine_active_sessions",
		Help: "Number of running simulation sessions",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "simengine_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// SavesTotal counts portfolio save attempts by outcome.
	SavesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "simengine_portfolio_saves_total",
		Help: "Portfolio save attempts",
	}, []string{"status"})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "simengine_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "simengine_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; the API surface is small enough
		// that cardinality stays bounded.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
