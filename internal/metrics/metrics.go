// Package metrics provides Prometheus instrumentation for the settlement core.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sokosettle",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sokosettle",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// SettlementsTotal counts settlement attempts by kind and outcome.
	SettlementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sokosettle",
			Name:      "settlements_total",
			Help:      "Total order/sale/freelance settlements by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	// PaymentsTotal counts payment completion attempts by method and outcome.
	PaymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sokosettle",
			Name:      "payments_total",
			Help:      "Total payment transitions by method and outcome.",
		},
		[]string{"method", "outcome"},
	)

	// EscrowsTotal counts escrow transitions by final status.
	EscrowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sokosettle",
			Name:      "escrows_total",
			Help:      "Total escrow transitions by status.",
		},
		[]string{"status"},
	)

	// StockMovementsTotal counts stock increments/decrements.
	StockMovementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sokosettle",
			Name:      "stock_movements_total",
			Help:      "Total stock ledger movements by direction.",
		},
		[]string{"direction"},
	)

	// LoyaltyPointsTotal counts loyalty points posted by direction.
	LoyaltyPointsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sokosettle",
			Name:      "loyalty_points_total",
			Help:      "Total loyalty points transactions by direction.",
		},
		[]string{"direction"},
	)

	// ActiveWebsocketClients tracks current realtime subscribers.
	ActiveWebsocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sokosettle",
			Name:      "websocket_clients",
			Help:      "Currently connected realtime clients.",
		},
	)

	// DBConnectionsOpen tracks open database connections.
	DBConnectionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sokosettle",
			Name:      "db_connections_open",
			Help:      "Open database connections.",
		},
	)

	// Goroutines tracks the current goroutine count.
	Goroutines = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sokosettle",
			Name:      "goroutines",
			Help:      "Current number of goroutines.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		SettlementsTotal,
		PaymentsTotal,
		EscrowsTotal,
		StockMovementsTotal,
		LoyaltyPointsTotal,
		ActiveWebsocketClients,
		DBConnectionsOpen,
		Goroutines,
	)
}

// Middleware instruments gin requests with counters and latency histograms.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := statusLabel(c.Writer.Status())

		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler returns the /metrics endpoint handler.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// CollectRuntime samples runtime and database gauges until ctx is done.
func CollectRuntime(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			Goroutines.Set(float64(runtime.NumGoroutine()))
			if db != nil {
				DBConnectionsOpen.Set(float64(db.Stats().OpenConnections))
			}
		}
	}
}

func statusLabel(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
