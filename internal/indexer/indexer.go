package indexer

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/stablevault-keeper/internal/chain"
	"github.com/smartdevs17/stablevault-keeper/internal/metrics"
	"github.com/smartdevs17/stablevault-keeper/internal/models"
	"github.com/smartdevs17/stablevault-keeper/internal/storage"
	"github.com/smartdevs17/stablevault-keeper/pkg/utils"
)

// Config holds indexer configuration
type Config struct {
	StartBlock         uint64 `json:"start_block"`
	ChunkSize          uint64 `json:"chunk_size"`
	ChunkRetryAttempts int    `json:"chunk_retry_attempts"`
}

// Indexer rebuilds and maintains position snapshots and the liquidation
// history from vault events. Historical backfill and the live subscription
// feed the same handling path, so replayed events are harmless upserts.
type Indexer struct {
	cfg     *Config
	client  chain.Client
	storage storage.Storage
	metrics *metrics.Manager
	logger  *logrus.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewIndexer creates a new indexer
func NewIndexer(cfg *Config, client chain.Client, store storage.Storage, m *metrics.Manager) *Indexer {
	return &Indexer{
		cfg:     cfg,
		client:  client,
		storage: store,
		metrics: m,
		logger:  utils.GetLogger(),
	}
}

// Backfill replays all vault events from the configured start block to the
// current head. Chunks that keep failing after the retry budget are skipped
// so one bad range cannot stall the rest of the scan. Collected owners are
// refreshed in a single pass at the end.
func (i *Indexer) Backfill(ctx context.Context) error {
	latest, err := i.client.LatestBlock(ctx)
	if err != nil {
		return fmt.Errorf("failed to get latest block: %w", err)
	}

	from := i.cfg.StartBlock
	if from > latest {
		i.logger.WithFields(logrus.Fields{
			"start_block": from,
			"latest":      latest,
		}).Info("Backfill start block is ahead of chain head, nothing to do")
		return nil
	}

	chunkSize := i.cfg.ChunkSize
	if chunkSize == 0 {
		chunkSize = 2000
	}

	i.logger.WithFields(logrus.Fields{
		"from_block": from,
		"to_block":   latest,
		"chunk_size": chunkSize,
	}).Info("Starting event backfill")

	owners := make(map[string]struct{})
	var indexed, skipped int

	for start := from; start <= latest; start += chunkSize {
		end := start + chunkSize - 1
		if end > latest {
			end = latest
		}

		events, err := i.fetchChunk(ctx, start, end)
		if err != nil {
			i.logger.WithFields(logrus.Fields{
				"from_block": start,
				"to_block":   end,
				"error":      err,
			}).Warn("Skipping chunk after repeated failures")
			i.metrics.GetPrometheusMetrics().RecordBackfillChunk("skipped")
			skipped++
			continue
		}
		i.metrics.GetPrometheusMetrics().RecordBackfillChunk("ok")

		for _, event := range events {
			if err := ctx.Err(); err != nil {
				return err
			}
			owner := utils.NormalizeAddress(event.Owner.Hex())
			if utils.IsValidAddress(event.Owner.Hex()) {
				owners[owner] = struct{}{}
			}
			i.metrics.GetPrometheusMetrics().RecordVaultEvent(string(event.Kind))
			if event.Kind == chain.EventLiquidated {
				if err := i.storeLiquidation(ctx, event); err != nil {
					i.logger.WithFields(logrus.Fields{
						"tx_hash": event.TxHash.Hex(),
						"error":   err,
					}).Error("Failed to store liquidation event")
				}
			}
			indexed++
		}
	}

	i.logger.WithFields(logrus.Fields{
		"events":         indexed,
		"owners":         len(owners),
		"skipped_chunks": skipped,
	}).Info("Backfill scan complete, refreshing snapshots")

	for owner := range owners {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := i.RefreshSnapshot(ctx, owner); err != nil {
			i.logger.WithFields(logrus.Fields{
				"owner": owner,
				"error": err,
			}).Warn("Failed to refresh snapshot during backfill")
		}
	}

	i.logger.Info("Backfill complete")
	return nil
}

// fetchChunk fetches one block range with the configured retry budget
func (i *Indexer) fetchChunk(ctx context.Context, from, to uint64) ([]*chain.VaultEvent, error) {
	attempts := i.cfg.ChunkRetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		events, err := i.client.FilterVaultEvents(ctx, from, to)
		if err == nil {
			return events, nil
		}
		lastErr = err

		i.logger.WithFields(logrus.Fields{
			"from_block": from,
			"to_block":   to,
			"attempt":    attempt,
			"error":      err,
		}).Warn("Chunk fetch failed")

		if attempt < attempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
	}
	return nil, lastErr
}

// Subscribe starts the live event loop. A single dispatcher goroutine
// consumes the event channel, so snapshot writes for one owner never race
// each other. Subscription failure is logged and left to the caller's
// restart policy; the service stays up on backfilled data.
func (i *Indexer) Subscribe(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.running {
		return fmt.Errorf("indexer already subscribed")
	}

	subCtx, cancel := context.WithCancel(ctx)
	sink := make(chan *chain.VaultEvent, 256)

	sub, err := i.client.SubscribeVaultEvents(subCtx, sink)
	if err != nil {
		cancel()
		i.logger.WithField("error", err).Error("Failed to install vault event subscription")
		return err
	}

	i.running = true
	i.cancel = cancel
	i.wg.Add(1)

	go func() {
		defer i.wg.Done()
		defer sub.Unsubscribe()
		i.logger.Info("Live vault event subscription active")

		for {
			select {
			case <-subCtx.Done():
				return
			case event, ok := <-sink:
				if !ok {
					return
				}
				i.handleEvent(subCtx, event)
			}
		}
	}()

	return nil
}

// handleEvent applies one decoded vault event to the store
func (i *Indexer) handleEvent(ctx context.Context, event *chain.VaultEvent) {
	i.metrics.GetPrometheusMetrics().RecordVaultEvent(string(event.Kind))

	owner := utils.NormalizeAddress(event.Owner.Hex())
	logger := i.logger.WithFields(logrus.Fields{
		"kind":    event.Kind,
		"owner":   owner,
		"tx_hash": event.TxHash.Hex(),
		"block":   event.BlockNumber,
	})
	logger.Debug("Vault event received")

	if event.Kind == chain.EventLiquidated {
		if err := i.storeLiquidation(ctx, event); err != nil {
			logger.WithField("error", err).Error("Failed to store liquidation event")
		}
	}

	if event.Kind.MutatesPosition() || event.Kind == chain.EventLiquidated {
		if err := i.RefreshSnapshot(ctx, owner); err != nil {
			logger.WithField("error", err).Warn("Failed to refresh snapshot")
		}
	}
}

// storeLiquidation upserts one liquidation row keyed by tx hash. The block
// timestamp comes from a header lookup; a failed lookup falls back to now
// rather than dropping the row.
func (i *Indexer) storeLiquidation(ctx context.Context, event *chain.VaultEvent) error {
	blockTime := time.Now().UTC()
	if ts, err := i.client.BlockTime(ctx, event.BlockNumber); err == nil {
		blockTime = time.Unix(int64(ts), 0).UTC()
	} else {
		i.logger.WithFields(logrus.Fields{
			"block": event.BlockNumber,
			"error": err,
		}).Warn("Failed to fetch block timestamp, using current time")
	}

	row := &models.LiquidationEvent{
		TxHash:       event.TxHash.Hex(),
		Owner:        utils.NormalizeAddress(event.Owner.Hex()),
		Liquidator:   utils.NormalizeAddress(event.Liquidator.Hex()),
		RepayAmount:  bigString(event.RepayAmount),
		SeizedAmount: bigString(event.Seized),
		BadDebtDelta: bigString(event.BadDebt),
		BlockNumber:  event.BlockNumber,
		BlockTime:    blockTime,
	}
	return i.storage.UpsertLiquidation(ctx, row)
}

// RefreshSnapshot reads the owner's current position from the chain and
// upserts the snapshot row. Invalid addresses are rejected before any RPC.
func (i *Indexer) RefreshSnapshot(ctx context.Context, owner string) error {
	if !utils.IsValidAddress(owner) {
		return fmt.Errorf("invalid owner address: %q", owner)
	}
	addr := common.HexToAddress(owner)

	position, err := i.client.GetPosition(ctx, addr)
	if err != nil {
		i.metrics.GetPrometheusMetrics().RecordSnapshotRefresh("error")
		return err
	}
	ratio, err := i.client.GetCollateralRatioBps(ctx, addr)
	if err != nil {
		i.metrics.GetPrometheusMetrics().RecordSnapshotRefresh("error")
		return err
	}

	snapshot := &models.PositionSnapshot{
		Owner:              utils.NormalizeAddress(owner),
		Collateral:         bigString(position.Collateral),
		DebtPrincipal:      bigString(position.DebtPrincipal),
		AccruedFee:         bigString(position.AccruedFee),
		DebtWithFee:        bigString(position.DebtWithFee),
		CollateralRatioBps: ratio.Int64(),
		Health:             models.ToHealthLabel(ratio),
		UpdatedAt:          time.Now().UTC(),
	}

	if err := i.storage.UpsertSnapshot(ctx, snapshot); err != nil {
		i.metrics.GetPrometheusMetrics().RecordSnapshotRefresh("error")
		return err
	}
	i.metrics.GetPrometheusMetrics().RecordSnapshotRefresh("ok")
	return nil
}

// Stop tears down the live subscription and waits for the dispatcher
func (i *Indexer) Stop() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.running {
		return
	}
	i.cancel()
	i.wg.Wait()
	i.running = false
	i.logger.Info("Indexer stopped")
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
