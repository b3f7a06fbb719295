package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/stablevault-keeper/internal/metrics"
	"github.com/smartdevs17/stablevault-keeper/internal/models"
)

// Registered once; promauto metrics cannot be registered twice per process.
var testMetrics = metrics.NewManager()

// failingStore errors on the one method a test exercises
type failingStore struct {
	Storage
}

func (f *failingStore) SaveKeeperRun(ctx context.Context, run *models.KeeperRun) error {
	return errors.New("database is locked")
}

func operationCount(operation, table, status string) float64 {
	counter := testMetrics.GetPrometheusMetrics().DatabaseOperationsTotal.WithLabelValues(operation, table, status)
	return testutil.ToFloat64(counter)
}

func TestStorageWithMetricsRecordsOperations(t *testing.T) {
	wrapped := NewStorageWithMetrics(setupTestStorage(t), testMetrics)
	ctx := context.Background()

	upsertsBefore := operationCount("upsert", "position_snapshots", "success")
	selectsBefore := operationCount("select", "position_snapshots", "success")

	snapshot := &models.PositionSnapshot{
		Owner:              "0xAbCd111111111111111111111111111111111111",
		Collateral:         "1000",
		DebtPrincipal:      "500",
		AccruedFee:         "5",
		DebtWithFee:        "505",
		CollateralRatioBps: 19800,
		Health:             models.HealthSafe,
		UpdatedAt:          time.Now().UTC(),
	}
	require.NoError(t, wrapped.UpsertSnapshot(ctx, snapshot))

	got, err := wrapped.GetSnapshot(ctx, snapshot.Owner)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, upsertsBefore+1, operationCount("upsert", "position_snapshots", "success"))
	assert.Equal(t, selectsBefore+1, operationCount("select", "position_snapshots", "success"))
}

func TestStorageWithMetricsRecordsErrorStatus(t *testing.T) {
	wrapped := NewStorageWithMetrics(&failingStore{}, testMetrics)

	errorsBefore := operationCount("insert", "keeper_runs", "error")

	err := wrapped.SaveKeeperRun(context.Background(), &models.KeeperRun{RunAt: time.Now().UTC()})
	require.Error(t, err)

	assert.Equal(t, errorsBefore+1, operationCount("insert", "keeper_runs", "error"))
}

func TestStorageWithMetricsNilManagerPassesThrough(t *testing.T) {
	wrapped := NewStorageWithMetrics(setupTestStorage(t), nil)

	owners, err := wrapped.ListOwners(context.Background())
	require.NoError(t, err)
	assert.Empty(t, owners)
}
