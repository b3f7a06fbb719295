package keeper

import (
	"sync/atomic"
	"time"

	"github.com/smartdevs17/stablevault-keeper/internal/chain"
	"github.com/smartdevs17/stablevault-keeper/internal/models"
)

// State publishes the keeper's operational status to readers. Each tick
// builds a complete KeeperState value and swaps it in atomically, so the
// API never sees a half-updated tick.
type State struct {
	current atomic.Pointer[models.KeeperState]
}

// NewState returns an initial inactive state
func NewState() *State {
	s := &State{}
	s.current.Store(&models.KeeperState{
		RecentFailures: []models.KeeperFailure{},
	})
	return s
}

// Snapshot returns the most recently published state
func (s *State) Snapshot() *models.KeeperState {
	return s.current.Load()
}

// Publish swaps in a new state value
func (s *State) Publish(state *models.KeeperState) {
	s.current.Store(state)
}

// pushFailure prepends to the recent-failures ring, keeping it ordered
// most recent first and dropping the oldest entries beyond the cap.
func pushFailure(ring []models.KeeperFailure, failure models.KeeperFailure) []models.KeeperFailure {
	ring = append([]models.KeeperFailure{failure}, ring...)
	if len(ring) > models.MaxRecentFailures {
		ring = ring[:models.MaxRecentFailures]
	}
	return ring
}

// lastErrorFrom derives the latest-error record from a failure
func lastErrorFrom(failure models.KeeperFailure) *models.KeeperError {
	return &models.KeeperError{
		Kind:    failure.Kind,
		Message: failure.Reason,
		At:      failure.At,
	}
}

// classifyError derives the latest-error record from a tick or step
// level failure.
func classifyError(err error) *models.KeeperError {
	return &models.KeeperError{
		Kind:    string(chain.Classify(err)),
		Message: err.Error(),
		At:      time.Now().UTC(),
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
