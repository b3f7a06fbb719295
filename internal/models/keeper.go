package models

import "time"

// AutoFundOutcome tags the result of one auto-funding pass
type AutoFundOutcome string

const (
	AutoFundDisabled AutoFundOutcome = "disabled"
	AutoFundCooldown AutoFundOutcome = "cooldown"
	AutoFundReady    AutoFundOutcome = "ready"
	AutoFundApproved AutoFundOutcome = "approved"
	AutoFundFunded   AutoFundOutcome = "funded"
)

// KeeperRun is one append-only audit row per keeper tick
type KeeperRun struct {
	ID         int64     `json:"id" db:"id"`
	RunAt      time.Time `json:"run_at" db:"run_at"`
	Scanned    int       `json:"scanned" db:"scanned"`
	Attempted  int       `json:"attempted" db:"attempted"`
	Succeeded  int       `json:"succeeded" db:"succeeded"`
	Failed     int       `json:"failed" db:"failed"`
	DurationMs int64     `json:"duration_ms" db:"duration_ms"`
	Note       *string   `json:"note,omitempty" db:"note"`
}

// KeeperSummary holds the counters of the latest tick
type KeeperSummary struct {
	Scanned   int `json:"scanned"`
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Retried   int `json:"retried"`
}

// KeeperFailure records one failed liquidation attempt
type KeeperFailure struct {
	Owner    string    `json:"owner"`
	Attempts int       `json:"attempts"`
	Kind     string    `json:"kind"`
	Reason   string    `json:"reason"`
	At       time.Time `json:"at"`
}

// KeeperError is the classification of the most recent failure
type KeeperError struct {
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// AutoFundStatus is the outcome of the latest auto-funding pass
type AutoFundStatus struct {
	Outcome AutoFundOutcome `json:"outcome"`
	Error   string          `json:"error,omitempty"`
	At      time.Time       `json:"at"`
}

// KeeperState is the process-local operational status of the keeper. It is
// rebuilt from scratch on restart; KeeperRun rows are the durable history.
// Ticks build a fresh value and publish it as an atomic snapshot, so readers
// never observe a half-updated state.
type KeeperState struct {
	Active         bool            `json:"active"`
	LastRunAt      *time.Time      `json:"last_run_at,omitempty"`
	LastSummary    KeeperSummary   `json:"last_summary"`
	RecentFailures []KeeperFailure `json:"recent_failures"` // most recent first
	LastError      *KeeperError    `json:"last_error,omitempty"`
	LastAutoFund   *AutoFundStatus `json:"last_auto_fund,omitempty"`
	OwnersOnChain  int             `json:"owners_checked_on_chain"`
}

// MaxRecentFailures caps the recent-failures ring
const MaxRecentFailures = 20
