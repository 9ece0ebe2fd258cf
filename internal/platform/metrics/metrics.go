package metrics

import (
	"net/http"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lims_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lims_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	SpecimensCollected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lims_specimens_collected_total",
			Help: "Total number of specimens registered at collection",
		},
	)

	SpecimensRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lims_specimens_rejected_total",
			Help: "Total number of specimens rejected by the quality gate",
		},
	)

	ResultsEntered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lims_results_entered_total",
			Help: "Total number of lab results entered",
		},
		[]string{"entry_method"},
	)

	ResultsFinalized = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lims_results_finalized_total",
			Help: "Total number of lab results finalized",
		},
	)

	ResultsAmended = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lims_results_amended_total",
			Help: "Total number of amendments to finalized results",
		},
	)

	ValidationDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lims_validation_decisions_total",
			Help: "Total number of validation decisions recorded",
		},
		[]string{"level", "decision"},
	)

	AlertsRaised = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lims_critical_alerts_raised_total",
			Help: "Total number of critical value alerts raised",
		},
		[]string{"severity"},
	)

	AlertsAcknowledged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lims_critical_alerts_acknowledged_total",
			Help: "Total number of critical value alerts acknowledged",
		},
	)

	AlertsResolved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lims_critical_alerts_resolved_total",
			Help: "Total number of critical value alerts resolved",
		},
	)

	NotificationAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lims_notification_attempts_total",
			Help: "Total number of alert notification delivery attempts",
		},
		[]string{"outcome"},
	)

	NotificationsStale = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lims_notifications_stale_total",
			Help: "Total number of notifications that exhausted their retries",
		},
	)

	TATBreaches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lims_tat_breaches_total",
			Help: "Total number of order items that missed their expected turnaround",
		},
	)

	TATTotalMinutes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lims_tat_total_minutes",
			Help:    "Distribution of total turnaround times in minutes",
			Buckets: []float64{15, 30, 60, 120, 240, 480, 960, 1440, 2880},
		},
	)

	dbConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lims_db_connections_active",
			Help: "Number of acquired database connections",
		},
	)

	dbConnectionsIdle = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lims_db_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	dbConnectionsMax = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lims_db_connections_max",
			Help: "Maximum number of database connections",
		},
	)
)

func init() {
	prometheus.MustRegister(
		apiRequestsTotal,
		apiRequestDuration,
		SpecimensCollected,
		SpecimensRejected,
		ResultsEntered,
		ResultsFinalized,
		ResultsAmended,
		ValidationDecisions,
		AlertsRaised,
		AlertsAcknowledged,
		AlertsResolved,
		NotificationAttempts,
		NotificationsStale,
		TATBreaches,
		TATTotalMinutes,
		dbConnectionsActive,
		dbConnectionsIdle,
		dbConnectionsMax,
	)
}

// Handler returns the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordAPIRequest records one handled HTTP request.
func RecordAPIRequest(method, path string, status int, duration float64) {
	apiRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	apiRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// UpdateDBPoolStats refreshes the connection pool gauges.
func UpdateDBPoolStats(pool *pgxpool.Pool) {
	if pool == nil {
		return
	}
	stats := pool.Stat()
	dbConnectionsActive.Set(float64(stats.AcquiredConns()))
	dbConnectionsIdle.Set(float64(stats.IdleConns()))
	dbConnectionsMax.Set(float64(stats.MaxConns()))
}
