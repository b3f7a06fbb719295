package storage

import (
	"context"
	"time"

	"github.com/smartdevs17/stablevault-keeper/internal/models"
)

// Storage is the snapshot store consumed by the indexer, the TWAP
// aggregator, the keeper and the read API. All writes are upserts or
// appends; concurrent writers rely on last-write-wins per key.
type Storage interface {
	// Connection management
	Connect() error
	Close() error
	Ping() error
	Migrate() error

	// Position snapshots
	UpsertSnapshot(ctx context.Context, snapshot *models.PositionSnapshot) error
	GetSnapshot(ctx context.Context, owner string) (*models.PositionSnapshot, error)
	ListSnapshots(ctx context.Context, filter models.SnapshotFilter) ([]*models.PositionSnapshot, error)
	ListOwners(ctx context.Context) ([]string, error)

	// Liquidation events
	UpsertLiquidation(ctx context.Context, event *models.LiquidationEvent) error
	GetLiquidation(ctx context.Context, txHash string) (*models.LiquidationEvent, error)
	ListLiquidations(ctx context.Context, filter models.LiquidationFilter) ([]*models.LiquidationEvent, error)

	// Oracle samples (append-only)
	SaveOracleSample(ctx context.Context, sample *models.OracleSample) error
	ListSpotSamples(ctx context.Context, since time.Time, limit int) ([]*models.OracleSample, error)
	LatestSample(ctx context.Context, source string) (*models.OracleSample, error)

	// Keeper run audit log (append-only)
	SaveKeeperRun(ctx context.Context, run *models.KeeperRun) error
	ListKeeperRuns(ctx context.Context, limit int) ([]*models.KeeperRun, error)

	// Statistics
	GetStorageStats(ctx context.Context) (*StorageStats, error)
}

// StorageStats provides storage statistics for the API
type StorageStats struct {
	TotalSnapshots    int64      `json:"total_snapshots"`
	TotalLiquidations int64      `json:"total_liquidations"`
	TotalSamples      int64      `json:"total_samples"`
	TotalKeeperRuns   int64      `json:"total_keeper_runs"`
	LatestSnapshotAt  *time.Time `json:"latest_snapshot_at,omitempty"`
	LatestRunAt       *time.Time `json:"latest_run_at,omitempty"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type             string        `json:"type"`
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleTime      time.Duration `json:"max_idle_time"`
}
