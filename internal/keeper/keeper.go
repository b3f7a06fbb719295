package keeper

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/stablevault-keeper/internal/chain"
	"github.com/smartdevs17/stablevault-keeper/internal/metrics"
	"github.com/smartdevs17/stablevault-keeper/internal/models"
	"github.com/smartdevs17/stablevault-keeper/internal/storage"
	"github.com/smartdevs17/stablevault-keeper/pkg/utils"
)

const maxNoteFailures = 5

// Config holds keeper loop configuration
type Config struct {
	TickInterval   time.Duration  `json:"tick_interval"`
	MaxAttempts    int            `json:"max_attempts"`
	BaseBackoff    time.Duration  `json:"base_backoff"`
	MaxRepayStb    string         `json:"max_repay_stb"`
	WatchAddresses []string       `json:"watch_addresses"`
	AutoFund       AutoFundConfig `json:"autofund"`
}

// Keeper scans for liquidatable positions and executes liquidations against
// them. The snapshot store narrows the candidate set; the chain has the
// final word on eligibility.
type Keeper struct {
	cfg     *Config
	client  chain.Client
	storage storage.Storage
	metrics *metrics.Manager
	logger  *logrus.Logger
	state   *State

	maxRepay   *big.Int
	lastFundAt time.Time
	inFlight   atomic.Bool
}

// NewKeeper creates a new keeper
func NewKeeper(cfg *Config, client chain.Client, store storage.Storage, m *metrics.Manager) (*Keeper, error) {
	maxRepay, ok := new(big.Int).SetString(cfg.MaxRepayStb, 10)
	if !ok || maxRepay.Sign() <= 0 {
		return nil, fmt.Errorf("max_repay_stb must be a positive integer, got %q", cfg.MaxRepayStb)
	}

	return &Keeper{
		cfg:      cfg,
		client:   client,
		storage:  store,
		metrics:  m,
		logger:   utils.GetLogger(),
		state:    NewState(),
		maxRepay: maxRepay,
	}, nil
}

// State returns the published keeper state for readers
func (k *Keeper) State() *State {
	return k.state
}

// Run executes Tick on a fixed interval until ctx is cancelled. A tick that
// outlives the interval causes the next one to be skipped, never stacked.
// Tick failures are classified and logged; the scheduler does not stop.
func (k *Keeper) Run(ctx context.Context) {
	interval := k.cfg.TickInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	k.logger.WithField("interval", interval).Info("Keeper loop started")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			k.logger.Info("Keeper loop stopped")
			return
		case <-ticker.C:
			k.runTick(ctx)
		}
	}
}

// runTick executes one guarded tick. Returns false when a previous tick
// still holds the guard and this one was skipped.
func (k *Keeper) runTick(ctx context.Context) bool {
	if !k.inFlight.CompareAndSwap(false, true) {
		k.logger.Warn("Previous keeper tick still running, skipping")
		k.metrics.GetPrometheusMetrics().RecordKeeperTick("skipped", 0)
		return false
	}
	defer k.inFlight.Store(false)

	if err := k.Tick(ctx); err != nil {
		k.logger.WithFields(logrus.Fields{
			"kind":  chain.Classify(err),
			"error": err,
		}).Error("Keeper tick failed")
	}
	return true
}

// Tick performs one scan-and-liquidate pass and publishes a fresh state
// snapshot at the end.
func (k *Keeper) Tick(ctx context.Context) error {
	start := time.Now()

	prev := k.state.Snapshot()
	next := &models.KeeperState{
		Active:         true,
		RecentFailures: append([]models.KeeperFailure{}, prev.RecentFailures...),
		LastError:      prev.LastError,
		LastAutoFund:   prev.LastAutoFund,
	}

	outcome, err := k.autoFund(ctx)
	fund := &models.AutoFundStatus{Outcome: outcome, At: time.Now().UTC()}
	if err != nil {
		fund.Outcome = ""
		fund.Error = err.Error()
		next.LastError = classifyError(err)
		k.logger.WithFields(logrus.Fields{
			"kind":  chain.Classify(err),
			"error": err,
		}).Warn("Auto-funding failed")
		k.metrics.GetPrometheusMetrics().RecordAutoFund("error")
	} else {
		k.metrics.GetPrometheusMetrics().RecordAutoFund(string(outcome))
	}
	next.LastAutoFund = fund

	candidates, err := k.collectCandidates(ctx)
	if err != nil {
		next.LastError = classifyError(err)
		k.finishTick(next, start, "error")
		return err
	}

	summary := models.KeeperSummary{Scanned: len(candidates)}
	var failures []models.KeeperFailure
	k.metrics.GetPrometheusMetrics().UpdateCandidatesScanned(len(candidates))

	for _, owner := range candidates {
		if err := ctx.Err(); err != nil {
			break
		}

		addr := common.HexToAddress(owner)
		liquidatable, err := k.client.IsLiquidatable(ctx, addr)
		next.OwnersOnChain++
		if err != nil {
			k.logger.WithFields(logrus.Fields{
				"owner": owner,
				"kind":  chain.Classify(err),
				"error": err,
			}).Warn("Liquidation eligibility check failed")
			continue
		}
		if !liquidatable {
			continue
		}

		if !k.client.HasSigner() {
			failure := models.KeeperFailure{
				Owner:    owner,
				Attempts: 0,
				Kind:     string(chain.KindConfig),
				Reason:   "no keeper signer configured",
				At:       time.Now().UTC(),
			}
			failures = append(failures, failure)
			summary.Failed++
			k.logger.WithField("owner", owner).Warn("Liquidatable position found but no signer configured")
			continue
		}

		summary.Attempted++
		result := LiquidateWithRetry(ctx, func(ctx context.Context) error {
			return k.client.Liquidate(ctx, addr, k.maxRepay)
		}, k.cfg.MaxAttempts, k.cfg.BaseBackoff)
		summary.Retried += result.Attempts - 1

		if result.Success {
			summary.Succeeded++
			k.metrics.GetPrometheusMetrics().RecordLiquidationAttempt("success")
			k.logger.WithFields(logrus.Fields{
				"owner":    owner,
				"attempts": result.Attempts,
			}).Info("Position liquidated")
			continue
		}

		summary.Failed++
		k.metrics.GetPrometheusMetrics().RecordLiquidationAttempt("failure")
		failure := models.KeeperFailure{
			Owner:    owner,
			Attempts: result.Attempts,
			Kind:     string(chain.Classify(result.Err)),
			Reason:   result.Reason,
			At:       time.Now().UTC(),
		}
		failures = append(failures, failure)
		k.logger.WithFields(logrus.Fields{
			"owner":    owner,
			"attempts": result.Attempts,
			"kind":     failure.Kind,
			"reason":   utils.TruncateString(result.Reason, 120),
		}).Error("Liquidation failed")
	}

	next.LastSummary = summary
	for _, failure := range failures {
		next.RecentFailures = pushFailure(next.RecentFailures, failure)
	}
	if len(failures) > 0 {
		next.LastError = lastErrorFrom(failures[len(failures)-1])
	}

	k.saveRun(ctx, start, summary, failures)
	k.finishTick(next, start, "ok")

	k.logger.WithFields(logrus.Fields{
		"scanned":   summary.Scanned,
		"attempted": summary.Attempted,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"duration":  time.Since(start),
	}).Info("Keeper tick complete")
	return nil
}

func (k *Keeper) finishTick(next *models.KeeperState, start time.Time, status string) {
	next.LastRunAt = timePtr(time.Now().UTC())
	k.state.Publish(next)
	k.metrics.GetPrometheusMetrics().RecordKeeperTick(status, time.Since(start))
}

// collectCandidates unions the snapshot store's owners with the configured
// watch-list, normalized and deduplicated. The watch-list covers positions
// the indexer has not seen yet.
func (k *Keeper) collectCandidates(ctx context.Context) ([]string, error) {
	owners, err := k.storage.ListOwners(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list owners: %w", err)
	}

	seen := make(map[string]struct{}, len(owners)+len(k.cfg.WatchAddresses))
	for _, owner := range owners {
		if utils.IsValidAddress(owner) {
			seen[utils.NormalizeAddress(owner)] = struct{}{}
		}
	}
	for _, addr := range k.cfg.WatchAddresses {
		if utils.IsValidAddress(addr) {
			seen[utils.NormalizeAddress(addr)] = struct{}{}
		} else if addr != "" {
			k.logger.WithField("address", addr).Warn("Ignoring invalid watch address")
		}
	}

	candidates := make([]string, 0, len(seen))
	for owner := range seen {
		candidates = append(candidates, owner)
	}
	sort.Strings(candidates)
	return candidates, nil
}

// saveRun appends the tick's audit row. The note condenses the first few
// failures so an operator can read the cause without the API.
func (k *Keeper) saveRun(ctx context.Context, start time.Time, summary models.KeeperSummary, failures []models.KeeperFailure) {
	run := &models.KeeperRun{
		RunAt:      start.UTC(),
		Scanned:    summary.Scanned,
		Attempted:  summary.Attempted,
		Succeeded:  summary.Succeeded,
		Failed:     summary.Failed,
		DurationMs: time.Since(start).Milliseconds(),
	}

	if len(failures) > 0 {
		parts := make([]string, 0, maxNoteFailures)
		for i, failure := range failures {
			if i == maxNoteFailures {
				break
			}
			parts = append(parts, fmt.Sprintf("%s:%d:%s",
				failure.Owner, failure.Attempts, utils.TruncateString(failure.Reason, 80)))
		}
		note := strings.Join(parts, " | ")
		run.Note = &note
	}

	if err := k.storage.SaveKeeperRun(ctx, run); err != nil {
		k.logger.WithField("error", err).Error("Failed to save keeper run")
	}
}
