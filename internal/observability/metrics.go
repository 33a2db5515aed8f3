// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Execution metrics
	ExecutionsTotal       *prometheus.CounterVec
	GuardRejections       *prometheus.CounterVec
	FeesCollected         *prometheus.CounterVec
	FeesDeferred          *prometheus.CounterVec
	RelayerRefundsPaid    prometheus.Counter
	RelayerRefundsSkipped *prometheus.CounterVec
	VaultTransfers        *prometheus.CounterVec
	FeePoolStatusChecks   *prometheus.CounterVec

	// Latency metrics
	VenueLatency   *prometheus.HistogramVec
	RPCCallLatency *prometheus.HistogramVec

	// Notification metrics
	EventsPublished *prometheus.CounterVec

	// API metrics
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	RateLimitedHits prometheus.Counter

	// Keeper metrics
	SignalsReceived *prometheus.CounterVec
	SignalOutcomes  *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulExecution prometheus.Gauge
	UptimeSeconds           prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "keeper_vault"
	}

	return &Metrics{
		// Execution metrics
		ExecutionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "executions_total",
			Help:      "Total number of successful signal executions by signal type",
		}, []string{"signal_type"}),
		GuardRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "guard_rejections_total",
			Help:      "Total number of rejected operations by error name",
		}, []string{"operation", "reason"}),
		FeesCollected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "fees_collected_base_units_total",
			Help:      "Protocol fees collected in base units by vault class",
		}, []string{"vault"}),
		FeesDeferred: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "fees_deferred_total",
			Help:      "Protocol fee transfers parked for retry by vault class",
		}, []string{"vault"}),
		RelayerRefundsPaid: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "relayer_refunds_paid_lamports_total",
			Help:      "Lamports refunded to keepers",
		}),
		RelayerRefundsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "relayer_refunds_skipped_total",
			Help:      "Refunds skipped by reason",
		}, []string{"reason"}),
		VaultTransfers: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "vault_transfers_total",
			Help:      "Deposits and withdrawals by vault class",
		}, []string{"vault", "direction"}),
		FeePoolStatusChecks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "fee_pool_status_checks_total",
			Help:      "Fee pool health observed on reads by status",
		}, []string{"status"}),

		// Latency metrics
		VenueLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "venue",
			Name:      "swap_latency_seconds",
			Help:      "Swap venue call latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"outcome"}),
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		// Notification metrics
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Notifications delivered to sinks by sink and status",
		}, []string{"sink", "status"}),

		// API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"route", "code"}),
		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		RateLimitedHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-caller rate limiter",
		}),

		// Keeper metrics
		SignalsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keeper",
			Name:      "signals_received_total",
			Help:      "Signals received by source",
		}, []string{"source"}),
		SignalOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keeper",
			Name:      "signal_outcomes_total",
			Help:      "Signal handling outcomes",
		}, []string{"outcome"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulExecution: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_execution_timestamp",
			Help:      "Unix timestamp of last successful execution",
		}),
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordExecution records a successful execution.
func RecordExecution(signalType string, timestamp int64) {
	DefaultMetrics.ExecutionsTotal.WithLabelValues(signalType).Inc()
	DefaultMetrics.LastSuccessfulExecution.Set(float64(timestamp))
}

// RecordRejection records an operation aborted by a guard.
func RecordRejection(operation, reason string) {
	DefaultMetrics.GuardRejections.WithLabelValues(operation, reason).Inc()
}

// RecordFee records a collected protocol fee.
func RecordFee(vault string, amount uint64) {
	DefaultMetrics.FeesCollected.WithLabelValues(vault).Add(float64(amount))
}

// RecordFeeDeferred records a fee transfer parked for retry.
func RecordFeeDeferred(vault string) {
	DefaultMetrics.FeesDeferred.WithLabelValues(vault).Inc()
}

// RecordRefund records a paid relayer refund.
func RecordRefund(amount uint64) {
	DefaultMetrics.RelayerRefundsPaid.Add(float64(amount))
}

// RecordRefundSkipped records a refund that was not paid.
func RecordRefundSkipped(reason string) {
	DefaultMetrics.RelayerRefundsSkipped.WithLabelValues(reason).Inc()
}

// RecordTransfer records a deposit or withdrawal.
func RecordTransfer(vault, direction string) {
	DefaultMetrics.VaultTransfers.WithLabelValues(vault, direction).Inc()
}

// RecordFeePoolStatus records an observed fee pool health.
func RecordFeePoolStatus(status string) {
	DefaultMetrics.FeePoolStatusChecks.WithLabelValues(status).Inc()
}

// RecordVenueLatency records a swap venue call.
func RecordVenueLatency(outcome string, d time.Duration) {
	DefaultMetrics.VenueLatency.WithLabelValues(outcome).Observe(d.Seconds())
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordEventPublished records a sink delivery.
func RecordEventPublished(sink string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.EventsPublished.WithLabelValues(sink, status).Inc()
}

// RecordHTTPRequest records an API request.
func RecordHTTPRequest(route string, code int, d time.Duration) {
	DefaultMetrics.HTTPRequests.WithLabelValues(route, http.StatusText(code)).Inc()
	DefaultMetrics.HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
}

// RecordRateLimited records a request rejected by the rate limiter.
func RecordRateLimited() {
	DefaultMetrics.RateLimitedHits.Inc()
}

// RecordSignal records a received keeper signal.
func RecordSignal(source string) {
	DefaultMetrics.SignalsReceived.WithLabelValues(source).Inc()
}

// RecordSignalOutcome records how a keeper signal was handled.
func RecordSignalOutcome(outcome string) {
	DefaultMetrics.SignalOutcomes.WithLabelValues(outcome).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// TrackUptime increments the uptime counter every interval until stop is closed.
func TrackUptime(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			DefaultMetrics.UptimeSeconds.Add(interval.Seconds())
		}
	}
}
