package keeper

import (
	"context"
	"errors"
	"math/big"
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

const (
	ownerA = "0x1111111111111111111111111111111111111111"
	ownerB = "0x2222222222222222222222222222222222222222"
)

// fakeChain implements the subset of chain.Client the keeper touches.
// Unimplemented methods panic through the embedded nil interface.
type fakeChain struct {
	chain.Client

	signer       bool
	keeperAddr   common.Address
	vaultAddr    common.Address
	liquidatable map[string]bool
	liquidateErr error
	liquidated   []string

	allowance    *big.Int
	allowanceErr error
	balance      *big.Int
	approved     bool
	deposited    bool
	minted       bool
}

func (f *fakeChain) HasSigner() bool               { return f.signer }
func (f *fakeChain) KeeperAddress() common.Address { return f.keeperAddr }
func (f *fakeChain) VaultAddress() common.Address  { return f.vaultAddr }

func (f *fakeChain) IsLiquidatable(ctx context.Context, owner common.Address) (bool, error) {
	return f.liquidatable[common.HexToAddress(owner.Hex()).Hex()], nil
}

func (f *fakeChain) Liquidate(ctx context.Context, owner common.Address, repayAmount *big.Int) error {
	if f.liquidateErr != nil {
		return f.liquidateErr
	}
	f.liquidated = append(f.liquidated, owner.Hex())
	return nil
}

func (f *fakeChain) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	if f.allowanceErr != nil {
		return nil, f.allowanceErr
	}
	return f.allowance, nil
}

func (f *fakeChain) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	return f.balance, nil
}

func (f *fakeChain) Approve(ctx context.Context, spender common.Address, amount *big.Int) error {
	f.approved = true
	return nil
}

func (f *fakeChain) Deposit(ctx context.Context, ethAmount *big.Int) error {
	f.deposited = true
	return nil
}

func (f *fakeChain) Mint(ctx context.Context, stbAmount *big.Int) error {
	f.minted = true
	return nil
}

// fakeStore implements the storage surface the keeper touches
type fakeStore struct {
	storage.Storage

	owners        []string
	runs          []*models.KeeperRun
	listOwnersErr error

	// when set, ListOwners signals entry then blocks until released
	listOwnersEntered chan struct{}
	blockListOwners   chan struct{}
}

func (f *fakeStore) ListOwners(ctx context.Context) ([]string, error) {
	if f.listOwnersEntered != nil {
		close(f.listOwnersEntered)
		f.listOwnersEntered = nil
	}
	if f.blockListOwners != nil {
		<-f.blockListOwners
	}
	if f.listOwnersErr != nil {
		return nil, f.listOwnersErr
	}
	return f.owners, nil
}

func (f *fakeStore) SaveKeeperRun(ctx context.Context, run *models.KeeperRun) error {
	f.runs = append(f.runs, run)
	return nil
}

func newTestKeeper(t *testing.T, cfg *Config, client chain.Client, store storage.Storage) *Keeper {
	t.Helper()
	if cfg.MaxRepayStb == "" {
		cfg.MaxRepayStb = "1000"
	}
	k, err := NewKeeper(cfg, client, store, testMetrics)
	require.NoError(t, err)
	return k
}

func TestTickNoSignerRecordsConfigFailure(t *testing.T) {
	client := &fakeChain{
		signer:       false,
		liquidatable: map[string]bool{common.HexToAddress(ownerA).Hex(): true},
	}
	store := &fakeStore{owners: []string{ownerA}}
	k := newTestKeeper(t, &Config{MaxAttempts: 3}, client, store)

	require.NoError(t, k.Tick(context.Background()))

	state := k.State().Snapshot()
	assert.Equal(t, 1, state.LastSummary.Scanned)
	assert.Equal(t, 0, state.LastSummary.Attempted)
	assert.Equal(t, 1, state.LastSummary.Failed)
	require.Len(t, state.RecentFailures, 1)
	assert.Equal(t, string(chain.KindConfig), state.RecentFailures[0].Kind)
	assert.Equal(t, ownerA, state.RecentFailures[0].Owner)

	require.Len(t, store.runs, 1)
	require.NotNil(t, store.runs[0].Note)
	assert.Contains(t, *store.runs[0].Note, ownerA)
}

func TestTickLiquidatesEligibleOwners(t *testing.T) {
	client := &fakeChain{
		signer: true,
		liquidatable: map[string]bool{
			common.HexToAddress(ownerA).Hex(): true,
			common.HexToAddress(ownerB).Hex(): false,
		},
	}
	store := &fakeStore{owners: []string{ownerA, ownerB}}
	k := newTestKeeper(t, &Config{MaxAttempts: 3}, client, store)

	require.NoError(t, k.Tick(context.Background()))

	state := k.State().Snapshot()
	assert.Equal(t, 2, state.LastSummary.Scanned)
	assert.Equal(t, 1, state.LastSummary.Attempted)
	assert.Equal(t, 1, state.LastSummary.Succeeded)
	assert.Equal(t, 0, state.LastSummary.Failed)
	assert.Equal(t, 2, state.OwnersOnChain)
	require.Len(t, client.liquidated, 1)
	assert.Equal(t, common.HexToAddress(ownerA).Hex(), client.liquidated[0])
	assert.Empty(t, state.RecentFailures)
}

func TestTickRecordsClassifiedFailure(t *testing.T) {
	revertErr := &chain.Error{Kind: chain.KindRevert, Op: "Liquidate", Err: errors.New("transaction reverted")}
	client := &fakeChain{
		signer:       true,
		liquidatable: map[string]bool{common.HexToAddress(ownerA).Hex(): true},
		liquidateErr: revertErr,
	}
	store := &fakeStore{owners: []string{ownerA}}
	k := newTestKeeper(t, &Config{MaxAttempts: 2}, client, store)

	require.NoError(t, k.Tick(context.Background()))

	state := k.State().Snapshot()
	assert.Equal(t, 1, state.LastSummary.Attempted)
	assert.Equal(t, 1, state.LastSummary.Failed)
	assert.Equal(t, 1, state.LastSummary.Retried)
	require.Len(t, state.RecentFailures, 1)
	assert.Equal(t, 2, state.RecentFailures[0].Attempts)
	assert.Equal(t, string(chain.KindRevert), state.RecentFailures[0].Kind)
	require.NotNil(t, state.LastError)
	assert.Equal(t, string(chain.KindRevert), state.LastError.Kind)
}

func TestCollectCandidatesUnionsWatchList(t *testing.T) {
	client := &fakeChain{}
	store := &fakeStore{owners: []string{"0x1111111111111111111111111111111111111111"}}
	k := newTestKeeper(t, &Config{
		WatchAddresses: []string{
			"0x2222222222222222222222222222222222222222",
			"0x1111111111111111111111111111111111111111", // duplicate of a store owner
			"not-an-address",
		},
	}, client, store)

	candidates, err := k.collectCandidates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{ownerA, ownerB}, candidates)
}

func TestAutoFundDisabled(t *testing.T) {
	k := newTestKeeper(t, &Config{}, &fakeChain{}, &fakeStore{})

	outcome, err := k.autoFund(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.AutoFundDisabled, outcome)
}

func TestAutoFundCooldown(t *testing.T) {
	cfg := &Config{AutoFund: AutoFundConfig{Enabled: true, Cooldown: time.Hour}}
	k := newTestKeeper(t, cfg, &fakeChain{}, &fakeStore{})
	k.lastFundAt = time.Now()

	outcome, err := k.autoFund(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.AutoFundCooldown, outcome)
}

func TestAutoFundApprovesMissingAllowance(t *testing.T) {
	client := &fakeChain{
		signer:    true,
		allowance: big.NewInt(0),
	}
	cfg := &Config{AutoFund: AutoFundConfig{Enabled: true}}
	k := newTestKeeper(t, cfg, client, &fakeStore{})

	outcome, err := k.autoFund(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.AutoFundApproved, outcome)
	assert.True(t, client.approved)
	assert.False(t, k.lastFundAt.IsZero())
}

func TestAutoFundReadyWithSufficientBalance(t *testing.T) {
	client := &fakeChain{
		signer:    true,
		allowance: big.NewInt(5000),
		balance:   big.NewInt(5000),
	}
	cfg := &Config{AutoFund: AutoFundConfig{Enabled: true}}
	k := newTestKeeper(t, cfg, client, &fakeStore{})

	outcome, err := k.autoFund(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.AutoFundReady, outcome)
	assert.False(t, client.deposited)
}

func TestAutoFundDepositsAndMints(t *testing.T) {
	client := &fakeChain{
		signer:    true,
		allowance: big.NewInt(5000),
		balance:   big.NewInt(10),
	}
	cfg := &Config{AutoFund: AutoFundConfig{
		Enabled:    true,
		DepositEth: "5000000000000000000",
		MintStb:    "2000",
	}}
	k := newTestKeeper(t, cfg, client, &fakeStore{})

	outcome, err := k.autoFund(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.AutoFundFunded, outcome)
	assert.True(t, client.deposited)
	assert.True(t, client.minted)
}

func TestAutoFundRejectsNonPositiveAmounts(t *testing.T) {
	client := &fakeChain{
		signer:    true,
		allowance: big.NewInt(5000),
		balance:   big.NewInt(10),
	}
	cfg := &Config{AutoFund: AutoFundConfig{
		Enabled:    true,
		DepositEth: "0",
		MintStb:    "2000",
	}}
	k := newTestKeeper(t, cfg, client, &fakeStore{})

	_, err := k.autoFund(context.Background())
	require.Error(t, err)
	assert.False(t, client.deposited)
}

func TestNewKeeperRejectsInvalidMaxRepay(t *testing.T) {
	_, err := NewKeeper(&Config{MaxRepayStb: "not-a-number"}, &fakeChain{}, &fakeStore{}, testMetrics)
	assert.Error(t, err)

	_, err = NewKeeper(&Config{MaxRepayStb: "-5"}, &fakeChain{}, &fakeStore{}, testMetrics)
	assert.Error(t, err)
}

func TestStatePublishIsAtomicSwap(t *testing.T) {
	state := NewState()
	first := state.Snapshot()

	state.Publish(&models.KeeperState{Active: true})
	second := state.Snapshot()

	assert.False(t, first.Active)
	assert.True(t, second.Active)
}

func TestPushFailureKeepsMostRecentFirst(t *testing.T) {
	var ring []models.KeeperFailure
	for i := 0; i < models.MaxRecentFailures+5; i++ {
		ring = pushFailure(ring, models.KeeperFailure{Owner: ownerA, Attempts: i})
	}
	assert.Len(t, ring, models.MaxRecentFailures)
	assert.Equal(t, models.MaxRecentFailures+4, ring[0].Attempts)
	assert.Equal(t, 5, ring[len(ring)-1].Attempts)
}

func TestTickFailureSetsLastError(t *testing.T) {
	store := &fakeStore{listOwnersErr: errors.New("dial tcp 127.0.0.1:8545: connection refused")}
	k := newTestKeeper(t, &Config{}, &fakeChain{}, store)

	require.Error(t, k.Tick(context.Background()))

	state := k.State().Snapshot()
	require.NotNil(t, state.LastError)
	assert.Equal(t, string(chain.KindRPC), state.LastError.Kind)
	assert.Contains(t, state.LastError.Message, "connection refused")
	assert.False(t, state.LastError.At.IsZero())
	require.NotNil(t, state.LastRunAt)
}

func TestAutoFundFailureSetsLastError(t *testing.T) {
	client := &fakeChain{
		signer:       true,
		allowanceErr: &chain.Error{Kind: chain.KindRPC, Op: "Allowance", Err: errors.New("request timed out")},
	}
	cfg := &Config{AutoFund: AutoFundConfig{Enabled: true}}
	k := newTestKeeper(t, cfg, client, &fakeStore{})

	require.NoError(t, k.Tick(context.Background()))

	state := k.State().Snapshot()
	require.NotNil(t, state.LastAutoFund)
	assert.NotEmpty(t, state.LastAutoFund.Error)
	require.NotNil(t, state.LastError)
	assert.Equal(t, string(chain.KindRPC), state.LastError.Kind)
	assert.Contains(t, state.LastError.Message, "request timed out")
}

func TestRunTickSkipsWhileGuardHeld(t *testing.T) {
	k := newTestKeeper(t, &Config{}, &fakeChain{}, &fakeStore{})

	k.inFlight.Store(true)
	assert.False(t, k.runTick(context.Background()))

	k.inFlight.Store(false)
	assert.True(t, k.runTick(context.Background()))
}

func TestOverlappingTickIsSkippedNotStacked(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	store := &fakeStore{listOwnersEntered: entered, blockListOwners: release}
	k := newTestKeeper(t, &Config{}, &fakeChain{}, store)

	done := make(chan bool, 1)
	go func() { done <- k.runTick(context.Background()) }()

	<-entered
	assert.False(t, k.runTick(context.Background()))

	close(release)
	assert.True(t, <-done)

	// the skipped tick never touched storage
	assert.Len(t, store.runs, 1)
}
