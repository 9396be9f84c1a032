// Package metrics provides Prometheus instrumentation for the game engine.
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
	// TicketsSold counts tickets sold, partitioned by game.
	TicketsSold = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tambola_tickets_sold_total",
		Help: "Total number of tickets sold",
	}, []string{"game_id"})

	// NumbersDrawn counts numbers drawn, partitioned by game.
	NumbersDrawn = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tambola_numbers_drawn_total",
		Help: "Total numbers drawn",
	}, []string{"game_id"})

	// ClaimsTotal counts prize claims by prize type and outcome
	// (settled, invalid, rejected).
	ClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tambola_claims_total",
		Help: "Total prize claims processed",
	}, []string{"prize_type", "outcome"})

	// PayoutTotal accumulates prize payouts by prize type, in wallet units.
	PayoutTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tambola_payout_total",
		Help: "Cumulative prize payouts in wallet units",
	}, []string{"prize_type"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tambola_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tambola_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tambola_http_request_duration_seconds",
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

		// Label with the route pattern, not the raw path: ID-bearing URLs
		// would otherwise mint an unbounded number of series.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				path = p
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
