// Package metrics provides Prometheus instrumentation for the session engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TradesTotal counts executed orders, partitioned by direction.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "papertrade_trades_total",
		Help: "Total number of trades executed",
	}, []string{"direction"})

	// OrderRejections counts rejected orders by error kind.
	OrderRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "papertrade_order_rejections_total",
		Help: "Orders rejected before execution",
	}, []string{"reason"})

	// TradeLatency tracks order handling latency.
	TradeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "papertrade_trade_latency_seconds",
		Help:    "Order execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"direction"})

	// TradeVolume tracks cumulative traded quantity. Stocks are chosen by
	// group creators, so they are not a label.
	TradeVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "papertrade_trade_volume_total",
		Help: "Cumulative traded quantity in shares",
	}, []string{"direction"})

	// ActiveSessions tracks sessions whose market clock is running.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "papertrade_active_sessions",
		Help: "Number of sessions with a running market clock",
	})

	// TicksTotal counts processed market ticks.
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "papertrade_ticks_total",
		Help: "Total market ticks advanced",
	})

	// TickFailures counts absorbed per-tick failures by stage.
	TickFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "papertrade_tick_failures_total",
		Help: "Market clock iterations that failed and were skipped",
	}, []string{"stage"})

	// TickDuration tracks the time spent advancing and publishing one tick.
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "papertrade_tick_duration_seconds",
		Help:    "Market tick processing time in seconds",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	})

	// WebSocketClients tracks connected websocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "papertrade_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// ArchivedSessions counts finished sessions written to the archive.
	ArchivedSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "papertrade_archived_sessions_total",
		Help: "Finished sessions handed to the archive, by outcome",
	}, []string{"outcome"})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "papertrade_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "papertrade_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request metrics labelled by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if pattern := rc.RoutePattern(); pattern != "" {
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

// Hijack is needed for websocket upgrades through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}
