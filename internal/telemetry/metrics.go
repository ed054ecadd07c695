// Package telemetry provides application-level observability for the PAK.sh web console.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http://<host>:<PAKWEB_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint returns data in the Prometheus text exposition
// format and is intended to be scraped by a Prometheus server. It is NOT served by
// the Gin router, so it never passes through auth or rate-limiting middleware.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Login attempt counters by outcome
//   - Webhook delivery counters and latency histogram
//   - Deployment counters by terminal status
//   - pak CLI invocation duration histogram
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/v1/projects/:id)
// rather than the raw request URL to prevent unbounded label cardinality from
// user-supplied path segments such as project IDs or tokens.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template, and status code.
//
// The path label holds the Gin route template (e.g. /api/v1/webhooks/:id/test),
// NOT the raw URL, to prevent unbounded cardinality.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Authentication metrics.
//
// LoginAttemptsTotal is a CounterVec with label {outcome}; outcome is one of
// "success", "invalid_credentials", "locked", "disabled". An alert on a rising
// "locked" rate is a useful early signal for credential-stuffing attacks.
var LoginAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "login_attempts_total",
		Help: "Total number of login attempts, by outcome.",
	},
	[]string{"outcome"},
)

// Webhook delivery metrics, recorded by the delivery engine for every attempt,
// including retries.
//
// WebhookDeliveriesTotal uses labels {event, outcome}; outcome is "success",
// "http_error", or "transport_error".
//
// Example PromQL queries:
//   - Delivery failure rate:  sum(rate(webhook_deliveries_total{outcome!="success"}[5m])) / sum(rate(webhook_deliveries_total[5m]))
//   - p95 delivery latency:   histogram_quantile(0.95, rate(webhook_delivery_duration_seconds_bucket[5m]))
var (
	WebhookDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Total number of webhook delivery attempts, by event name and outcome.",
		},
		[]string{"event", "outcome"},
	)

	WebhookDeliveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "webhook_delivery_duration_seconds",
			Help:    "Duration of a single outbound webhook HTTP delivery attempt.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// DeploymentsTotal counts deployments reaching a terminal state, by status
// ("success", "failed", "cancelled").
var DeploymentsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "deployments_total",
		Help: "Total number of deployments reaching a terminal status.",
	},
	[]string{"status"},
)

// PakCommandDuration observes wall-clock time of pak CLI invocations, by
// subcommand ("status", "deploy", "package", "platforms", "list").
var PakCommandDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "pak_command_duration_seconds",
		Help:    "Duration of external pak CLI invocations, by subcommand.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
	},
	[]string{"command"},
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool. It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits cleanly when the database becomes unreachable (db.Ping fails),
// which happens automatically when the application shuts down and defers db.Close().
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
