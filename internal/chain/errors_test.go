package chain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyTaggedErrors(t *testing.T) {
	for _, kind := range []Kind{KindConfig, KindRPC, KindRevert, KindDecode, KindUnknown} {
		err := newError(kind, "op", errors.New("boom"))
		assert.Equal(t, kind, Classify(err))
	}
}

func TestClassifyWrappedTaggedError(t *testing.T) {
	inner := newError(KindRevert, "Liquidate", errors.New("transaction reverted"))
	wrapped := fmt.Errorf("tick failed: %w", inner)
	assert.Equal(t, KindRevert, Classify(wrapped))
}

func TestClassifyHeuristics(t *testing.T) {
	tests := []struct {
		message  string
		expected Kind
	}{
		{"invalid address for vault_address", KindConfig},
		{"no keeper signer configured", KindConfig},
		{"dial tcp 127.0.0.1:8545: connection refused", KindRPC},
		{"context deadline exceeded", KindRPC},
		{"execution reverted: CR above liquidation threshold", KindRevert},
		{"insufficient funds for gas * price + value", KindRevert},
		{"abi: cannot unpack into nil", KindDecode},
		{"something else entirely", KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(errors.New(tt.message)))
		})
	}
}

func TestClassifyPrecedence(t *testing.T) {
	// A message matching several buckets resolves config first, then rpc
	assert.Equal(t, KindConfig, Classify(errors.New("invalid address: connection refused")))
	assert.Equal(t, KindRPC, Classify(errors.New("timeout waiting for revert reason")))
}

func TestClassifyNil(t *testing.T) {
	assert.Equal(t, KindUnknown, Classify(nil))
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := newError(KindRPC, "LatestBlock", inner)
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "LatestBlock")
	assert.Contains(t, err.Error(), "rpc")
}
