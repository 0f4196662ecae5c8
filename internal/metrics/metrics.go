// Package metrics provides Prometheus instrumentation for the bid engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BidsTotal counts bid submissions by side and outcome (accepted or error code).
	BidsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kicks_bids_total",
		Help: "Bid submissions by side and outcome",
	}, []string{"side", "outcome"})

	// SettlementsTotal counts immediate-settlement attempts by side and outcome.
	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kicks_settlements_total",
		Help: "Immediate settlement attempts by side and outcome",
	}, []string{"side", "outcome"})

	// OperationLatency tracks unit-of-work latency per operation.
	OperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kicks_operation_latency_seconds",
		Help:    "Trade operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// TxRetries counts units of work restarted after a transient fault.
	TxRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kicks_tx_retries_total",
		Help: "Units of work retried after a transient persistence fault",
	}, []string{"operation"})

	// StatusTransitions counts trade status changes by target status.
	StatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kicks_trade_status_transitions_total",
		Help: "Trade status transitions by target status",
	}, []string{"status"})

	// PointMovements counts ledger movements by division.
	PointMovements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kicks_point_movements_total",
		Help: "Point movements recorded by division",
	}, []string{"division"})

	// FulfillmentEvents counts consumed fulfillment events by outcome.
	FulfillmentEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kicks_fulfillment_events_total",
		Help: "Fulfillment events consumed by outcome",
	}, []string{"outcome"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kicks_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kicks_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kicks_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSince records the elapsed time of an operation.
func ObserveSince(operation string, start time.Time) {
	OperationLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Route pattern keeps trade IDs out of the label set.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
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
