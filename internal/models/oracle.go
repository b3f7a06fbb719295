package models

import "time"

// Oracle sample sources
const (
	SampleSourceSpot = "spot"
	SampleSourceTwap = "twap"
)

// OracleSample is one append-only price observation. Spot samples carry the
// deviation from the current on-chain TWAP; twap samples are the new
// reference and record zero deviation.
type OracleSample struct {
	ID           int64     `json:"id" db:"id"`
	Source       string    `json:"source" db:"source"`
	Price        string    `json:"price" db:"price"`
	StalenessSec int64     `json:"staleness_sec" db:"staleness_sec"`
	DeviationBps int64     `json:"deviation_bps" db:"deviation_bps"`
	SampledAt    time.Time `json:"sampled_at" db:"sampled_at"`
}
