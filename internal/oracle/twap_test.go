package oracle

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/stablevault-keeper/internal/chain"
	"github.com/smartdevs17/stablevault-keeper/internal/metrics"
	"github.com/smartdevs17/stablevault-keeper/internal/models"
	"github.com/smartdevs17/stablevault-keeper/internal/storage"
)

// Registered once; promauto metrics cannot be registered twice per process.
var testMetrics = metrics.NewManager()

func TestMeanPrice(t *testing.T) {
	prices := []*big.Int{
		big.NewInt(2400), big.NewInt(2500), big.NewInt(2600), big.NewInt(2550),
	}
	assert.Equal(t, big.NewInt(2512), MeanPrice(prices))
}

func TestMeanPriceEmpty(t *testing.T) {
	assert.Nil(t, MeanPrice(nil))
	assert.Nil(t, MeanPrice([]*big.Int{}))
}

func TestMeanPriceSingleSample(t *testing.T) {
	assert.Equal(t, big.NewInt(2500), MeanPrice([]*big.Int{big.NewInt(2500)}))
}

func TestDeviationBps(t *testing.T) {
	tests := []struct {
		name     string
		spot     int64
		twap     int64
		expected int64
	}{
		{"four percent above", 2600, 2500, 400},
		{"four percent below", 2400, 2500, 400},
		{"no deviation", 2500, 2500, 0},
		{"zero twap", 2600, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DeviationBps(big.NewInt(tt.spot), big.NewInt(tt.twap)))
		})
	}
}

func TestDeviationBpsNilInputs(t *testing.T) {
	assert.Equal(t, int64(0), DeviationBps(nil, big.NewInt(2500)))
	assert.Equal(t, int64(0), DeviationBps(big.NewInt(2500), nil))
}

// fakeChain implements the price surface the aggregator touches
type fakeChain struct {
	chain.Client

	status    *chain.PriceStatus
	signer    bool
	published []*big.Int
	updateErr error
}

func (f *fakeChain) PriceStatus(ctx context.Context) (*chain.PriceStatus, error) {
	return f.status, nil
}

func (f *fakeChain) HasSigner() bool { return f.signer }

func (f *fakeChain) UpdateTwap(ctx context.Context, priceE18 *big.Int) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.published = append(f.published, new(big.Int).Set(priceE18))
	return nil
}

// fakeStore records samples and serves the spot window from them
type fakeStore struct {
	storage.Storage

	samples []*models.OracleSample
}

func (f *fakeStore) SaveOracleSample(ctx context.Context, sample *models.OracleSample) error {
	f.samples = append(f.samples, sample)
	return nil
}

func (f *fakeStore) ListSpotSamples(ctx context.Context, since time.Time, limit int) ([]*models.OracleSample, error) {
	var out []*models.OracleSample
	for _, sample := range f.samples {
		if sample.Source == models.SampleSourceSpot && !sample.SampledAt.Before(since) {
			out = append(out, sample)
		}
	}
	return out, nil
}

func newTestAggregator(client chain.Client, store storage.Storage) *Aggregator {
	return NewAggregator(&Config{
		TickInterval: time.Minute,
		TwapWindow:   30 * time.Minute,
		SampleLimit:  120,
	}, client, store, testMetrics)
}

func TestTickPublishesWindowMean(t *testing.T) {
	now := time.Now().UTC()
	client := &fakeChain{
		signer: true,
		status: &chain.PriceStatus{
			EffectivePrice:   big.NewInt(2500),
			SpotPrice:        big.NewInt(2600),
			TwapPrice:        big.NewInt(2500),
			SpotUpdatedAt:    uint64(now.Add(-10 * time.Second).Unix()),
			TwapUpdatedAt:    uint64(now.Add(-5 * time.Minute).Unix()),
			BreakerTriggered: false,
		},
	}
	store := &fakeStore{samples: []*models.OracleSample{
		{Source: models.SampleSourceSpot, Price: "2400", SampledAt: now.Add(-2 * time.Minute)},
	}}
	agg := newTestAggregator(client, store)

	require.NoError(t, agg.Tick(context.Background()))

	// Window holds the old 2400 sample plus the fresh 2600 one
	require.Len(t, client.published, 1)
	assert.Equal(t, big.NewInt(2500), client.published[0])

	var twapSamples []*models.OracleSample
	for _, sample := range store.samples {
		if sample.Source == models.SampleSourceTwap {
			twapSamples = append(twapSamples, sample)
		}
	}
	require.Len(t, twapSamples, 1)
	assert.Equal(t, "2500", twapSamples[0].Price)
	assert.Equal(t, int64(0), twapSamples[0].DeviationBps)
}

func TestTickRecordsSpotDeviation(t *testing.T) {
	now := time.Now().UTC()
	client := &fakeChain{
		signer: false,
		status: &chain.PriceStatus{
			EffectivePrice: big.NewInt(2500),
			SpotPrice:      big.NewInt(2600),
			TwapPrice:      big.NewInt(2500),
			SpotUpdatedAt:  uint64(now.Unix()),
			TwapUpdatedAt:  uint64(now.Unix()),
		},
	}
	store := &fakeStore{}
	agg := newTestAggregator(client, store)

	require.NoError(t, agg.Tick(context.Background()))

	require.NotEmpty(t, store.samples)
	spot := store.samples[0]
	assert.Equal(t, models.SampleSourceSpot, spot.Source)
	assert.Equal(t, "2600", spot.Price)
	assert.Equal(t, int64(400), spot.DeviationBps)
}

func TestTickSkipsPublishWithoutSigner(t *testing.T) {
	now := time.Now().UTC()
	client := &fakeChain{
		signer: false,
		status: &chain.PriceStatus{
			EffectivePrice: big.NewInt(2500),
			SpotPrice:      big.NewInt(2500),
			TwapPrice:      big.NewInt(2500),
			SpotUpdatedAt:  uint64(now.Unix()),
			TwapUpdatedAt:  uint64(now.Unix()),
		},
	}
	store := &fakeStore{}
	agg := newTestAggregator(client, store)

	require.NoError(t, agg.Tick(context.Background()))
	assert.Empty(t, client.published)
}

func TestTickPublishFailureIsNonFatal(t *testing.T) {
	now := time.Now().UTC()
	client := &fakeChain{
		signer:    true,
		updateErr: &chain.Error{Kind: chain.KindRPC, Op: "UpdateTwap"},
		status: &chain.PriceStatus{
			EffectivePrice: big.NewInt(2500),
			SpotPrice:      big.NewInt(2500),
			TwapPrice:      big.NewInt(2500),
			SpotUpdatedAt:  uint64(now.Unix()),
			TwapUpdatedAt:  uint64(now.Unix()),
		},
	}
	store := &fakeStore{}
	agg := newTestAggregator(client, store)

	require.NoError(t, agg.Tick(context.Background()))

	// Failed publish records no twap sample
	for _, sample := range store.samples {
		assert.NotEqual(t, models.SampleSourceTwap, sample.Source)
	}
}
