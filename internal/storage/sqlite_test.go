package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/stablevault-keeper/internal/models"
)

func setupTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()

	store := NewSQLiteStorage(&StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "test.db"),
		MaxConnections:   4,
		MaxIdleTime:      time.Minute,
	})
	require.NoError(t, store.Connect())
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSnapshotUpsertSecondWriteWins(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	first := &models.PositionSnapshot{
		Owner:              "0xAbCd111111111111111111111111111111111111",
		Collateral:         "1000",
		DebtPrincipal:      "500",
		AccruedFee:         "5",
		DebtWithFee:        "505",
		CollateralRatioBps: 19800,
		Health:             models.HealthSafe,
		UpdatedAt:          time.Now().UTC(),
	}
	require.NoError(t, store.UpsertSnapshot(ctx, first))

	second := *first
	second.Collateral = "800"
	second.CollateralRatioBps = 15800
	second.Health = models.HealthWarning
	second.UpdatedAt = time.Now().UTC().Add(time.Second)
	require.NoError(t, store.UpsertSnapshot(ctx, &second))

	// Lookup is case-insensitive because keys are normalized on write
	got, err := store.GetSnapshot(ctx, "0xABCD111111111111111111111111111111111111")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "0xabcd111111111111111111111111111111111111", got.Owner)
	assert.Equal(t, "800", got.Collateral)
	assert.Equal(t, models.HealthWarning, got.Health)

	owners, err := store.ListOwners(ctx)
	require.NoError(t, err)
	assert.Len(t, owners, 1)
}

func TestGetSnapshotMissing(t *testing.T) {
	store := setupTestStorage(t)

	got, err := store.GetSnapshot(context.Background(), "0x9999999999999999999999999999999999999999")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListSnapshotsHealthFilter(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	for i, health := range []models.HealthLabel{models.HealthSafe, models.HealthWarning, models.HealthDanger} {
		snapshot := &models.PositionSnapshot{
			Owner:              "0x000000000000000000000000000000000000000" + string(rune('1'+i)),
			Collateral:         "1000",
			DebtPrincipal:      "500",
			AccruedFee:         "0",
			DebtWithFee:        "500",
			CollateralRatioBps: 20000 - int64(i)*3000,
			Health:             health,
			UpdatedAt:          time.Now().UTC().Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, store.UpsertSnapshot(ctx, snapshot))
	}

	danger := models.HealthDanger
	filtered, err := store.ListSnapshots(ctx, models.SnapshotFilter{Health: &danger})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, models.HealthDanger, filtered[0].Health)

	all, err := store.ListSnapshots(ctx, models.SnapshotFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	paged, err := store.ListSnapshots(ctx, models.SnapshotFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, paged, 1)
}

func TestLiquidationUpsertIdempotent(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	event := &models.LiquidationEvent{
		TxHash:       "0xdeadbeef",
		Owner:        "0x1111111111111111111111111111111111111111",
		Liquidator:   "0x2222222222222222222222222222222222222222",
		RepayAmount:  "1000",
		SeizedAmount: "550",
		BadDebtDelta: "0",
		BlockNumber:  42,
		BlockTime:    time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.UpsertLiquidation(ctx, event))

	// Redelivery with updated fields overwrites the same key
	redelivered := *event
	redelivered.SeizedAmount = "600"
	require.NoError(t, store.UpsertLiquidation(ctx, &redelivered))

	got, err := store.GetLiquidation(ctx, "0xdeadbeef")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "600", got.SeizedAmount)

	events, err := store.ListLiquidations(ctx, models.LiquidationFilter{})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestListLiquidationsByOwner(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	for i, owner := range []string{
		"0x1111111111111111111111111111111111111111",
		"0x2222222222222222222222222222222222222222",
	} {
		event := &models.LiquidationEvent{
			TxHash:       "0xhash" + string(rune('a'+i)),
			Owner:        owner,
			Liquidator:   "0x3333333333333333333333333333333333333333",
			RepayAmount:  "100",
			SeizedAmount: "55",
			BadDebtDelta: "0",
			BlockNumber:  uint64(100 + i),
			BlockTime:    time.Now().UTC(),
		}
		require.NoError(t, store.UpsertLiquidation(ctx, event))
	}

	owner := "0x1111111111111111111111111111111111111111"
	events, err := store.ListLiquidations(ctx, models.LiquidationFilter{Owner: &owner})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, owner, events[0].Owner)
}

func TestOracleSamplesWindow(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, price := range []string{"2400", "2500", "2600"} {
		sample := &models.OracleSample{
			Source:       models.SampleSourceSpot,
			Price:        price,
			StalenessSec: 0,
			DeviationBps: 0,
			SampledAt:    now.Add(time.Duration(i-2) * time.Minute),
		}
		require.NoError(t, store.SaveOracleSample(ctx, sample))
	}
	require.NoError(t, store.SaveOracleSample(ctx, &models.OracleSample{
		Source:    models.SampleSourceTwap,
		Price:     "2500",
		SampledAt: now,
	}))

	// Window excludes the oldest spot sample and the twap sample
	window, err := store.ListSpotSamples(ctx, now.Add(-90*time.Second), 10)
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, "2600", window[0].Price)

	latest, err := store.LatestSample(ctx, models.SampleSourceTwap)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "2500", latest.Price)

	missing, err := store.LatestSample(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestKeeperRunsRoundTrip(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	note := "0x1111111111111111111111111111111111111111:2:execution reverted"
	runs := []*models.KeeperRun{
		{RunAt: time.Now().UTC().Add(-time.Minute), Scanned: 5, Attempted: 1, Succeeded: 1, DurationMs: 120},
		{RunAt: time.Now().UTC(), Scanned: 6, Attempted: 2, Succeeded: 1, Failed: 1, DurationMs: 340, Note: &note},
	}
	for _, run := range runs {
		require.NoError(t, store.SaveKeeperRun(ctx, run))
	}

	got, err := store.ListKeeperRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 6, got[0].Scanned)
	require.NotNil(t, got[0].Note)
	assert.Equal(t, note, *got[0].Note)
	assert.Nil(t, got[1].Note)
}

func TestStorageStats(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertSnapshot(ctx, &models.PositionSnapshot{
		Owner: "0x1111111111111111111111111111111111111111", Collateral: "1", DebtPrincipal: "0",
		AccruedFee: "0", DebtWithFee: "0", Health: models.HealthSafe, UpdatedAt: time.Now().UTC(),
	}))
	require.NoError(t, store.SaveKeeperRun(ctx, &models.KeeperRun{RunAt: time.Now().UTC()}))

	stats, err := store.GetStorageStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalSnapshots)
	assert.Equal(t, int64(1), stats.TotalKeeperRuns)
	assert.NotNil(t, stats.LatestSnapshotAt)
}

func TestNewStorageFactory(t *testing.T) {
	store, err := NewStorage(&StorageConfig{Type: "sqlite", ConnectionString: filepath.Join(t.TempDir(), "f.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStorage{}, store)

	_, err = NewStorage(&StorageConfig{Type: "mongodb"})
	assert.Error(t, err)
}
