package models

import (
	"math/big"
	"time"
)

// HealthLabel classifies a position by its collateral ratio
type HealthLabel string

const (
	HealthSafe    HealthLabel = "safe"
	HealthWarning HealthLabel = "warning"
	HealthDanger  HealthLabel = "danger"
)

// Collateral ratio thresholds in basis points
const (
	DangerThresholdBps  = 15000
	WarningThresholdBps = 17000
)

// ToHealthLabel derives the health label from a collateral ratio in basis points.
// Ratios below 15000 bps are danger, below 17000 warning, everything else safe.
func ToHealthLabel(ratioBps *big.Int) HealthLabel {
	if ratioBps == nil {
		return HealthDanger
	}
	if ratioBps.Cmp(big.NewInt(DangerThresholdBps)) < 0 {
		return HealthDanger
	}
	if ratioBps.Cmp(big.NewInt(WarningThresholdBps)) < 0 {
		return HealthWarning
	}
	return HealthSafe
}

// PositionSnapshot is the last-known state of one owner's vault position.
// Keyed by lowercase owner address; upserted, never deleted.
type PositionSnapshot struct {
	Owner              string      `json:"owner" db:"owner"`
	Collateral         string      `json:"collateral" db:"collateral"`
	DebtPrincipal      string      `json:"debt_principal" db:"debt_principal"`
	AccruedFee         string      `json:"accrued_fee" db:"accrued_fee"`
	DebtWithFee        string      `json:"debt_with_fee" db:"debt_with_fee"`
	CollateralRatioBps int64       `json:"collateral_ratio_bps" db:"collateral_ratio_bps"`
	Health             HealthLabel `json:"health" db:"health"`
	UpdatedAt          time.Time   `json:"updated_at" db:"updated_at"`
}

// SnapshotFilter for querying position snapshots
type SnapshotFilter struct {
	Health *HealthLabel `json:"health,omitempty"`
	Limit  int          `json:"limit,omitempty"`
	Offset int          `json:"offset,omitempty"`
}
