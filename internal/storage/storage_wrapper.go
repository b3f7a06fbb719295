package storage

import (
	"context"
	"time"

	"github.com/smartdevs17/stablevault-keeper/internal/metrics"
	"github.com/smartdevs17/stablevault-keeper/internal/models"
)

// StorageWithMetrics wraps a storage implementation with per-operation
// metrics. Lifecycle methods pass through the embedded Storage.
type StorageWithMetrics struct {
	Storage
	metricsManager *metrics.Manager
}

// NewStorageWithMetrics creates a storage wrapper with metrics
func NewStorageWithMetrics(storage Storage, metricsManager *metrics.Manager) *StorageWithMetrics {
	return &StorageWithMetrics{
		Storage:        storage,
		metricsManager: metricsManager,
	}
}

func (s *StorageWithMetrics) record(operation, table string, start time.Time, err error) {
	if s.metricsManager == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metricsManager.GetPrometheusMetrics().RecordDatabaseOperation(operation, table, status, time.Since(start))
}

func (s *StorageWithMetrics) UpsertSnapshot(ctx context.Context, snapshot *models.PositionSnapshot) error {
	start := time.Now()
	err := s.Storage.UpsertSnapshot(ctx, snapshot)
	s.record("upsert", "position_snapshots", start, err)
	return err
}

func (s *StorageWithMetrics) GetSnapshot(ctx context.Context, owner string) (*models.PositionSnapshot, error) {
	start := time.Now()
	snapshot, err := s.Storage.GetSnapshot(ctx, owner)
	s.record("select", "position_snapshots", start, err)
	return snapshot, err
}

func (s *StorageWithMetrics) ListSnapshots(ctx context.Context, filter models.SnapshotFilter) ([]*models.PositionSnapshot, error) {
	start := time.Now()
	snapshots, err := s.Storage.ListSnapshots(ctx, filter)
	s.record("select", "position_snapshots", start, err)
	return snapshots, err
}

func (s *StorageWithMetrics) ListOwners(ctx context.Context) ([]string, error) {
	start := time.Now()
	owners, err := s.Storage.ListOwners(ctx)
	s.record("select", "position_snapshots", start, err)
	return owners, err
}

func (s *StorageWithMetrics) UpsertLiquidation(ctx context.Context, event *models.LiquidationEvent) error {
	start := time.Now()
	err := s.Storage.UpsertLiquidation(ctx, event)
	s.record("upsert", "liquidation_events", start, err)
	return err
}

func (s *StorageWithMetrics) GetLiquidation(ctx context.Context, txHash string) (*models.LiquidationEvent, error) {
	start := time.Now()
	event, err := s.Storage.GetLiquidation(ctx, txHash)
	s.record("select", "liquidation_events", start, err)
	return event, err
}

func (s *StorageWithMetrics) ListLiquidations(ctx context.Context, filter models.LiquidationFilter) ([]*models.LiquidationEvent, error) {
	start := time.Now()
	events, err := s.Storage.ListLiquidations(ctx, filter)
	s.record("select", "liquidation_events", start, err)
	return events, err
}

func (s *StorageWithMetrics) SaveOracleSample(ctx context.Context, sample *models.OracleSample) error {
	start := time.Now()
	err := s.Storage.SaveOracleSample(ctx, sample)
	s.record("insert", "oracle_samples", start, err)
	return err
}

func (s *StorageWithMetrics) ListSpotSamples(ctx context.Context, since time.Time, limit int) ([]*models.OracleSample, error) {
	start := time.Now()
	samples, err := s.Storage.ListSpotSamples(ctx, since, limit)
	s.record("select", "oracle_samples", start, err)
	return samples, err
}

func (s *StorageWithMetrics) LatestSample(ctx context.Context, source string) (*models.OracleSample, error) {
	start := time.Now()
	sample, err := s.Storage.LatestSample(ctx, source)
	s.record("select", "oracle_samples", start, err)
	return sample, err
}

func (s *StorageWithMetrics) SaveKeeperRun(ctx context.Context, run *models.KeeperRun) error {
	start := time.Now()
	err := s.Storage.SaveKeeperRun(ctx, run)
	s.record("insert", "keeper_runs", start, err)
	return err
}

func (s *StorageWithMetrics) ListKeeperRuns(ctx context.Context, limit int) ([]*models.KeeperRun, error) {
	start := time.Now()
	runs, err := s.Storage.ListKeeperRuns(ctx, limit)
	s.record("select", "keeper_runs", start, err)
	return runs, err
}

func (s *StorageWithMetrics) GetStorageStats(ctx context.Context) (*StorageStats, error) {
	start := time.Now()
	stats, err := s.Storage.GetStorageStats(ctx)
	s.record("select", "storage_stats", start, err)
	return stats, err
}
