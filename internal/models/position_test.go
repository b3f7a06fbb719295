package models

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToHealthLabel(t *testing.T) {
	tests := []struct {
		name     string
		ratioBps int64
		expected HealthLabel
	}{
		{"deep underwater", 9000, HealthDanger},
		{"just below danger threshold", 14999, HealthDanger},
		{"exactly at danger threshold", 15000, HealthWarning},
		{"between thresholds", 16000, HealthWarning},
		{"just below warning threshold", 16999, HealthWarning},
		{"exactly at warning threshold", 17000, HealthSafe},
		{"well collateralized", 25000, HealthSafe},
		{"zero ratio", 0, HealthDanger},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ToHealthLabel(big.NewInt(tt.ratioBps)))
		})
	}
}

func TestToHealthLabelNilRatio(t *testing.T) {
	assert.Equal(t, HealthDanger, ToHealthLabel(nil))
}
