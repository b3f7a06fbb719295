package keeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeBackoff(t *testing.T) {
	tests := []struct {
		name     string
		base     time.Duration
		attempt  int
		expected time.Duration
	}{
		{"first attempt", 2 * time.Second, 1, 2 * time.Second},
		{"second attempt", 2 * time.Second, 2, 4 * time.Second},
		{"third attempt", 2 * time.Second, 3, 8 * time.Second},
		{"attempt zero", 2 * time.Second, 0, 0},
		{"negative attempt", 2 * time.Second, -1, 0},
		{"zero base", 0, 3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ComputeBackoff(tt.base, tt.attempt))
		})
	}
}

func TestLiquidateWithRetryFailTwiceThenSucceed(t *testing.T) {
	calls := 0
	action := func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("execution reverted: transient")
		}
		return nil
	}

	result := LiquidateWithRetry(context.Background(), action, 3, 0)

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.Empty(t, result.Reason)
	assert.NoError(t, result.Err)
}

func TestLiquidateWithRetryAlwaysFails(t *testing.T) {
	action := func(ctx context.Context) error {
		return errors.New("execution reverted: not liquidatable")
	}

	result := LiquidateWithRetry(context.Background(), action, 2, 0)

	assert.False(t, result.Success)
	assert.Equal(t, 2, result.Attempts)
	assert.Equal(t, "execution reverted: not liquidatable", result.Reason)
	assert.Error(t, result.Err)
}

func TestLiquidateWithRetryAtLeastOneAttempt(t *testing.T) {
	calls := 0
	action := func(ctx context.Context) error {
		calls++
		return nil
	}

	result := LiquidateWithRetry(context.Background(), action, 0, 0)

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, 1, calls)
}
