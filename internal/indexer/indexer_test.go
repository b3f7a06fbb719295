package indexer

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/stablevault-keeper/internal/chain"
	"github.com/smartdevs17/stablevault-keeper/internal/metrics"
	"github.com/smartdevs17/stablevault-keeper/internal/models"
	"github.com/smartdevs17/stablevault-keeper/internal/storage"
)

// Registered once; promauto metrics cannot be registered twice per process.
var testMetrics = metrics.NewManager()

var (
	ownerA = common.HexToAddress("0x1111111111111111111111111111111111111111")
	ownerB = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

// fakeChain serves canned events and positions to the indexer
type fakeChain struct {
	chain.Client

	latest      uint64
	events      map[[2]uint64][]*chain.VaultEvent
	failRanges  map[[2]uint64]error
	ratios      map[common.Address]*big.Int
	filterCalls [][2]uint64
}

func (f *fakeChain) LatestBlock(ctx context.Context) (uint64, error) {
	return f.latest, nil
}

func (f *fakeChain) BlockTime(ctx context.Context, blockNumber uint64) (uint64, error) {
	return 1700000000 + blockNumber, nil
}

func (f *fakeChain) FilterVaultEvents(ctx context.Context, fromBlock, toBlock uint64) ([]*chain.VaultEvent, error) {
	key := [2]uint64{fromBlock, toBlock}
	f.filterCalls = append(f.filterCalls, key)
	if err, ok := f.failRanges[key]; ok {
		return nil, err
	}
	return f.events[key], nil
}

func (f *fakeChain) GetPosition(ctx context.Context, owner common.Address) (*chain.Position, error) {
	return &chain.Position{
		Collateral:           big.NewInt(1000),
		DebtPrincipal:        big.NewInt(500),
		AccruedFee:           big.NewInt(5),
		DebtWithFee:          big.NewInt(505),
		LastAccruedTimestamp: big.NewInt(0),
		LastRiskActionBlock:  big.NewInt(0),
	}, nil
}

func (f *fakeChain) GetCollateralRatioBps(ctx context.Context, owner common.Address) (*big.Int, error) {
	if ratio, ok := f.ratios[owner]; ok {
		return ratio, nil
	}
	return big.NewInt(20000), nil
}

func setupTestStorage(t *testing.T) storage.Storage {
	t.Helper()
	store, err := storage.NewStorage(&storage.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "indexer.db"),
		MaxConnections:   4,
		MaxIdleTime:      time.Minute,
	})
	require.NoError(t, err)
	require.NoError(t, store.Connect())
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBackfillIndexesEventsAndRefreshesOwners(t *testing.T) {
	client := &fakeChain{
		latest: 9,
		events: map[[2]uint64][]*chain.VaultEvent{
			{0, 4}: {
				{
					Kind:        chain.EventDeposited,
					Owner:       ownerA,
					Amount:      big.NewInt(1000),
					TxHash:      common.HexToHash("0xaaa1"),
					BlockNumber: 2,
				},
				{
					Kind:        chain.EventLiquidated,
					Owner:       ownerB,
					Liquidator:  ownerA,
					RepayAmount: big.NewInt(500),
					Seized:      big.NewInt(275),
					BadDebt:     big.NewInt(0),
					TxHash:      common.HexToHash("0xbbb2"),
					BlockNumber: 3,
				},
			},
		},
		ratios: map[common.Address]*big.Int{
			ownerB: big.NewInt(14000),
		},
	}
	store := setupTestStorage(t)
	idx := NewIndexer(&Config{StartBlock: 0, ChunkSize: 5, ChunkRetryAttempts: 1}, client, store, testMetrics)

	require.NoError(t, idx.Backfill(context.Background()))
	assert.Equal(t, [][2]uint64{{0, 4}, {5, 9}}, client.filterCalls)

	ctx := context.Background()

	liq, err := store.GetLiquidation(ctx, common.HexToHash("0xbbb2").Hex())
	require.NoError(t, err)
	require.NotNil(t, liq)
	assert.Equal(t, "500", liq.RepayAmount)
	assert.Equal(t, "275", liq.SeizedAmount)
	assert.Equal(t, uint64(3), liq.BlockNumber)
	assert.WithinDuration(t, time.Unix(1700000003, 0), liq.BlockTime, time.Second)

	snapA, err := store.GetSnapshot(ctx, ownerA.Hex())
	require.NoError(t, err)
	require.NotNil(t, snapA)
	assert.Equal(t, models.HealthSafe, snapA.Health)

	snapB, err := store.GetSnapshot(ctx, ownerB.Hex())
	require.NoError(t, err)
	require.NotNil(t, snapB)
	assert.Equal(t, models.HealthDanger, snapB.Health)
	assert.Equal(t, int64(14000), snapB.CollateralRatioBps)

	owners, err := store.ListOwners(ctx)
	require.NoError(t, err)
	assert.Len(t, owners, 2)
}

func TestBackfillSkipsFailingChunk(t *testing.T) {
	client := &fakeChain{
		latest: 9,
		failRanges: map[[2]uint64]error{
			{0, 4}: errors.New("dial tcp: connection refused"),
		},
		events: map[[2]uint64][]*chain.VaultEvent{
			{5, 9}: {
				{
					Kind:        chain.EventMinted,
					Owner:       ownerA,
					Amount:      big.NewInt(200),
					TxHash:      common.HexToHash("0xccc3"),
					BlockNumber: 7,
				},
			},
		},
	}
	store := setupTestStorage(t)
	idx := NewIndexer(&Config{StartBlock: 0, ChunkSize: 5, ChunkRetryAttempts: 2}, client, store, testMetrics)

	require.NoError(t, idx.Backfill(context.Background()))

	// Failing chunk retried twice, then skipped; the rest still indexed
	assert.Equal(t, [][2]uint64{{0, 4}, {0, 4}, {5, 9}}, client.filterCalls)

	snap, err := store.GetSnapshot(context.Background(), ownerA.Hex())
	require.NoError(t, err)
	require.NotNil(t, snap)
}

func TestBackfillAheadOfHead(t *testing.T) {
	client := &fakeChain{latest: 5}
	store := setupTestStorage(t)
	idx := NewIndexer(&Config{StartBlock: 100, ChunkSize: 5, ChunkRetryAttempts: 1}, client, store, testMetrics)

	require.NoError(t, idx.Backfill(context.Background()))
	assert.Empty(t, client.filterCalls)
}

func TestRefreshSnapshotRejectsInvalidAddress(t *testing.T) {
	store := setupTestStorage(t)
	idx := NewIndexer(&Config{}, &fakeChain{}, store, testMetrics)

	err := idx.RefreshSnapshot(context.Background(), "not-an-address")
	require.Error(t, err)

	owners, listErr := store.ListOwners(context.Background())
	require.NoError(t, listErr)
	assert.Empty(t, owners)
}

func TestHandleLiquidationEventUpsertsThenRefreshes(t *testing.T) {
	client := &fakeChain{
		ratios: map[common.Address]*big.Int{ownerB: big.NewInt(16000)},
	}
	store := setupTestStorage(t)
	idx := NewIndexer(&Config{}, client, store, testMetrics)

	event := &chain.VaultEvent{
		Kind:        chain.EventLiquidated,
		Owner:       ownerB,
		Liquidator:  ownerA,
		RepayAmount: big.NewInt(100),
		Seized:      big.NewInt(55),
		BadDebt:     big.NewInt(1),
		TxHash:      common.HexToHash("0xddd4"),
		BlockNumber: 11,
	}
	idx.handleEvent(context.Background(), event)
	// Redelivery is an idempotent overwrite
	idx.handleEvent(context.Background(), event)

	ctx := context.Background()
	events, err := store.ListLiquidations(ctx, models.LiquidationFilter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "1", events[0].BadDebtDelta)

	snap, err := store.GetSnapshot(ctx, ownerB.Hex())
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, models.HealthWarning, snap.Health)
}
