package models

import "time"

// LiquidationEvent records one on-chain liquidation. Keyed by transaction
// hash, so redelivery of the same event overwrites instead of duplicating.
type LiquidationEvent struct {
	TxHash       string    `json:"tx_hash" db:"tx_hash"`
	Owner        string    `json:"owner" db:"owner"`
	Liquidator   string    `json:"liquidator" db:"liquidator"`
	RepayAmount  string    `json:"repay_amount" db:"repay_amount"`
	SeizedAmount string    `json:"seized_amount" db:"seized_amount"`
	BadDebtDelta string    `json:"bad_debt_delta" db:"bad_debt_delta"`
	BlockNumber  uint64    `json:"block_number" db:"block_number"`
	BlockTime    time.Time `json:"block_time" db:"block_time"`
}

// LiquidationFilter for querying liquidation events
type LiquidationFilter struct {
	Owner  *string `json:"owner,omitempty"`
	Limit  int     `json:"limit,omitempty"`
	Offset int     `json:"offset,omitempty"`
}
