package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics contains all Prometheus metrics for the keeper service
type PrometheusMetrics struct {
	// Keeper metrics
	KeeperTicksTotal         *prometheus.CounterVec
	KeeperTickDuration       prometheus.Histogram
	LiquidationAttemptsTotal *prometheus.CounterVec
	AutoFundTotal            *prometheus.CounterVec
	CandidatesScanned        prometheus.Gauge

	// Indexer metrics
	VaultEventsTotal       *prometheus.CounterVec
	BackfillChunksTotal    *prometheus.CounterVec
	SnapshotRefreshesTotal *prometheus.CounterVec

	// Oracle metrics
	OracleSamplesTotal *prometheus.CounterVec
	TwapUpdatesTotal   *prometheus.CounterVec

	// Storage metrics
	DatabaseOperationsTotal   *prometheus.CounterVec
	DatabaseOperationDuration *prometheus.HistogramVec

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Application health metrics
	ApplicationUptime prometheus.Gauge
	ComponentHealth   *prometheus.GaugeVec
	GoroutineCount    prometheus.Gauge
	MemoryUsage       prometheus.Gauge
}

// NewPrometheusMetrics creates and registers all Prometheus metrics
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		KeeperTicksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stablevault_keeper_ticks_total",
				Help: "Total number of keeper ticks by outcome",
			},
			[]string{"status"},
		),

		KeeperTickDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "stablevault_keeper_tick_duration_seconds",
				Help:    "Duration of keeper ticks",
				Buckets: prometheus.DefBuckets,
			},
		),

		LiquidationAttemptsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stablevault_liquidation_attempts_total",
				Help: "Total number of liquidation attempts by outcome",
			},
			[]string{"status"},
		),

		AutoFundTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stablevault_autofund_total",
				Help: "Total number of auto-funding passes by outcome",
			},
			[]string{"outcome"},
		),

		CandidatesScanned: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "stablevault_keeper_candidates_scanned",
				Help: "Number of candidates scanned in the latest keeper tick",
			},
		),

		VaultEventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stablevault_vault_events_total",
				Help: "Total number of vault events indexed by kind",
			},
			[]string{"kind"},
		),

		BackfillChunksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stablevault_backfill_chunks_total",
				Help: "Total number of backfill chunks by outcome",
			},
			[]string{"status"},
		),

		SnapshotRefreshesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stablevault_snapshot_refreshes_total",
				Help: "Total number of position snapshot refreshes by outcome",
			},
			[]string{"status"},
		),

		OracleSamplesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stablevault_oracle_samples_total",
				Help: "Total number of oracle samples persisted by source",
			},
			[]string{"source"},
		),

		TwapUpdatesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stablevault_twap_updates_total",
				Help: "Total number of on-chain TWAP updates by outcome",
			},
			[]string{"status"},
		),

		DatabaseOperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stablevault_database_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "table", "status"},
		),

		DatabaseOperationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stablevault_database_operation_duration_seconds",
				Help:    "Duration of database operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "table"},
		),

		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stablevault_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stablevault_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ApplicationUptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "stablevault_application_uptime_seconds",
				Help: "Application uptime in seconds",
			},
		),

		ComponentHealth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stablevault_component_health",
				Help: "Health status of application components (1 healthy, 0 unhealthy)",
			},
			[]string{"component"},
		),

		GoroutineCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "stablevault_goroutines",
				Help: "Number of running goroutines",
			},
		),

		MemoryUsage: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "stablevault_memory_usage_bytes",
				Help: "Allocated heap memory in bytes",
			},
		),
	}
}

// RecordKeeperTick records one completed keeper tick
func (m *PrometheusMetrics) RecordKeeperTick(status string, duration time.Duration) {
	m.KeeperTicksTotal.WithLabelValues(status).Inc()
	m.KeeperTickDuration.Observe(duration.Seconds())
}

// RecordLiquidationAttempt records one liquidation attempt outcome
func (m *PrometheusMetrics) RecordLiquidationAttempt(status string) {
	m.LiquidationAttemptsTotal.WithLabelValues(status).Inc()
}

// RecordAutoFund records one auto-funding pass outcome
func (m *PrometheusMetrics) RecordAutoFund(outcome string) {
	m.AutoFundTotal.WithLabelValues(outcome).Inc()
}

// UpdateCandidatesScanned sets the latest tick's candidate count
func (m *PrometheusMetrics) UpdateCandidatesScanned(count int) {
	m.CandidatesScanned.Set(float64(count))
}

// RecordVaultEvent records one indexed vault event
func (m *PrometheusMetrics) RecordVaultEvent(kind string) {
	m.VaultEventsTotal.WithLabelValues(kind).Inc()
}

// RecordBackfillChunk records one backfill chunk outcome
func (m *PrometheusMetrics) RecordBackfillChunk(status string) {
	m.BackfillChunksTotal.WithLabelValues(status).Inc()
}

// RecordSnapshotRefresh records one snapshot refresh outcome
func (m *PrometheusMetrics) RecordSnapshotRefresh(status string) {
	m.SnapshotRefreshesTotal.WithLabelValues(status).Inc()
}

// RecordOracleSample records one persisted oracle sample
func (m *PrometheusMetrics) RecordOracleSample(source string) {
	m.OracleSamplesTotal.WithLabelValues(source).Inc()
}

// RecordTwapUpdate records one on-chain TWAP update outcome
func (m *PrometheusMetrics) RecordTwapUpdate(status string) {
	m.TwapUpdatesTotal.WithLabelValues(status).Inc()
}

// RecordDatabaseOperation records one database operation
func (m *PrometheusMetrics) RecordDatabaseOperation(operation, table, status string, duration time.Duration) {
	m.DatabaseOperationsTotal.WithLabelValues(operation, table, status).Inc()
	m.DatabaseOperationDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordHTTPRequest records one HTTP request
func (m *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateComponentHealth sets a component's health gauge
func (m *PrometheusMetrics) UpdateComponentHealth(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.ComponentHealth.WithLabelValues(component).Set(value)
}

// UpdateApplicationUptime sets the uptime gauge
func (m *PrometheusMetrics) UpdateApplicationUptime(startTime time.Time) {
	m.ApplicationUptime.Set(time.Since(startTime).Seconds())
}

// UpdateGoroutineCount sets the goroutine gauge
func (m *PrometheusMetrics) UpdateGoroutineCount(count int) {
	m.GoroutineCount.Set(float64(count))
}

// UpdateMemoryUsage sets the heap memory gauge
func (m *PrometheusMetrics) UpdateMemoryUsage(bytes uint64) {
	m.MemoryUsage.Set(float64(bytes))
}
