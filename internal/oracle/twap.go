package oracle

import (
	"context"
	"math/big"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/stablevault-keeper/internal/chain"
	"github.com/smartdevs17/stablevault-keeper/internal/metrics"
	"github.com/smartdevs17/stablevault-keeper/internal/models"
	"github.com/smartdevs17/stablevault-keeper/internal/storage"
	"github.com/smartdevs17/stablevault-keeper/pkg/utils"
)

// Config holds TWAP aggregator configuration
type Config struct {
	TickInterval time.Duration `json:"tick_interval"`
	TwapWindow   time.Duration `json:"twap_window"`
	SampleLimit  int           `json:"sample_limit"`
}

// Aggregator samples the spot price, maintains a rolling window of samples
// and republishes their mean as the on-chain TWAP. Without a signer it
// degrades to sampling only.
type Aggregator struct {
	cfg     *Config
	client  chain.Client
	storage storage.Storage
	metrics *metrics.Manager
	logger  *logrus.Logger

	now func() time.Time
}

// NewAggregator creates a new TWAP aggregator
func NewAggregator(cfg *Config, client chain.Client, store storage.Storage, m *metrics.Manager) *Aggregator {
	return &Aggregator{
		cfg:     cfg,
		client:  client,
		storage: store,
		metrics: m,
		logger:  utils.GetLogger(),
		now:     time.Now,
	}
}

// MeanPrice returns the integer mean of the given prices, nil for an empty
// slice. Division truncates toward zero, matching on-chain arithmetic.
func MeanPrice(prices []*big.Int) *big.Int {
	if len(prices) == 0 {
		return nil
	}
	sum := new(big.Int)
	for _, p := range prices {
		if p != nil {
			sum.Add(sum, p)
		}
	}
	return sum.Div(sum, big.NewInt(int64(len(prices))))
}

// DeviationBps returns |spot-twap| * 10000 / twap, or 0 when the reference
// TWAP is zero or missing.
func DeviationBps(spot, twap *big.Int) int64 {
	if spot == nil || twap == nil || twap.Sign() == 0 {
		return 0
	}
	diff := new(big.Int).Sub(spot, twap)
	diff.Abs(diff)
	diff.Mul(diff, big.NewInt(10000))
	diff.Div(diff, twap)
	return diff.Int64()
}

// Tick performs one sampling round: read the oracle hub, persist the spot
// sample, recompute the windowed mean and publish it on-chain. A failed
// publish is logged and the tick still succeeds; the next round retries.
func (a *Aggregator) Tick(ctx context.Context) error {
	status, err := a.client.PriceStatus(ctx)
	if err != nil {
		return err
	}

	now := a.now().UTC()

	spotStaleness := int64(0)
	if status.SpotUpdatedAt > 0 && now.Unix() > int64(status.SpotUpdatedAt) {
		spotStaleness = now.Unix() - int64(status.SpotUpdatedAt)
	}

	spotSample := &models.OracleSample{
		Source:       models.SampleSourceSpot,
		Price:        status.SpotPrice.String(),
		StalenessSec: spotStaleness,
		DeviationBps: DeviationBps(status.SpotPrice, status.TwapPrice),
		SampledAt:    now,
	}
	if err := a.storage.SaveOracleSample(ctx, spotSample); err != nil {
		return err
	}
	a.metrics.GetPrometheusMetrics().RecordOracleSample(models.SampleSourceSpot)

	since := now.Add(-a.cfg.TwapWindow)
	window, err := a.storage.ListSpotSamples(ctx, since, a.cfg.SampleLimit)
	if err != nil {
		return err
	}

	prices := make([]*big.Int, 0, len(window))
	for _, sample := range window {
		price, ok := new(big.Int).SetString(sample.Price, 10)
		if !ok {
			a.logger.WithField("price", sample.Price).Warn("Skipping malformed sample price")
			continue
		}
		prices = append(prices, price)
	}

	mean := MeanPrice(prices)
	if mean == nil || mean.Sign() <= 0 {
		a.logger.WithField("samples", len(prices)).Debug("No positive window mean, skipping TWAP update")
		return nil
	}

	if !a.client.HasSigner() {
		a.logger.Debug("No signer configured, skipping TWAP publish")
		return nil
	}

	if err := a.client.UpdateTwap(ctx, mean); err != nil {
		a.metrics.GetPrometheusMetrics().RecordTwapUpdate("error")
		a.logger.WithFields(logrus.Fields{
			"twap":  mean.String(),
			"error": err,
		}).Warn("Failed to publish TWAP update")
		return nil
	}
	a.metrics.GetPrometheusMetrics().RecordTwapUpdate("ok")

	twapStaleness := int64(0)
	if status.TwapUpdatedAt > 0 && now.Unix() > int64(status.TwapUpdatedAt) {
		twapStaleness = now.Unix() - int64(status.TwapUpdatedAt)
	}

	twapSample := &models.OracleSample{
		Source:       models.SampleSourceTwap,
		Price:        mean.String(),
		StalenessSec: twapStaleness,
		DeviationBps: 0,
		SampledAt:    a.now().UTC(),
	}
	if err := a.storage.SaveOracleSample(ctx, twapSample); err != nil {
		return err
	}
	a.metrics.GetPrometheusMetrics().RecordOracleSample(models.SampleSourceTwap)

	a.logger.WithFields(logrus.Fields{
		"twap":    mean.String(),
		"samples": len(prices),
	}).Info("TWAP updated")
	return nil
}

// Run executes Tick on a fixed interval until ctx is cancelled
func (a *Aggregator) Run(ctx context.Context) {
	interval := a.cfg.TickInterval
	if interval <= 0 {
		interval = time.Minute
	}

	a.logger.WithField("interval", interval).Info("TWAP aggregator started")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("TWAP aggregator stopped")
			return
		case <-ticker.C:
			if err := a.Tick(ctx); err != nil {
				a.logger.WithFields(logrus.Fields{
					"kind":  chain.Classify(err),
					"error": err,
				}).Error("Oracle tick failed")
			}
		}
	}
}
