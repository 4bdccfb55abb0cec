package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindRetryability(t *testing.T) {
	retryable := []Kind{KindNetwork, KindRpcTransient}
	for _, k := range retryable {
		assert.True(t, k.Retryable(), "%s must be retryable", k)
	}

	terminal := []Kind{
		KindInvalidInput, KindInvalidTransaction, KindUnknownChain,
		KindRateLimited, KindQueueFull, KindDuplicate, KindRpcSemantic,
		KindCircuitOpen, KindRetryExhausted, KindOverallTimeout,
		KindIntegrityViolation, KindConfigInvalid,
	}
	for _, k := range terminal {
		assert.False(t, k.Retryable(), "%s must not be retryable", k)
	}
}

func TestKindOfUnwrapsChains(t *testing.T) {
	inner := E(KindRpcTransient, "upstream 503")
	wrapped := fmt.Errorf("send failed: %w", inner)

	assert.Equal(t, KindRpcTransient, KindOf(wrapped))
	assert.True(t, Retryable(wrapped))
}

func TestKindOfUnclassified(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.False(t, Retryable(errors.New("plain")))
}

func TestIsKindFindsNestedKind(t *testing.T) {
	cause := E(KindRpcTransient, "upstream 503")
	exhausted := Wrap(KindRetryExhausted, "send", cause)

	assert.True(t, IsKind(exhausted, KindRetryExhausted))
	assert.True(t, IsKind(exhausted, KindRpcTransient))
	assert.False(t, IsKind(exhausted, KindRpcSemantic))
}

func TestErrorFormatting(t *testing.T) {
	err := Wrap(KindNetwork, "dial", errors.New("connection refused"))
	assert.Equal(t, "Network: dial: connection refused", err.Error())

	bare := E(KindQueueFull, "queue at capacity 10000")
	assert.Equal(t, "QueueFull: queue at capacity 10000", bare.Error())
}

func TestWithDetail(t *testing.T) {
	err := E(KindDuplicate, "already accepted").WithDetail("existing_id", "abc")

	var re *Error
	require.ErrorAs(t, error(err), &re)
	assert.Equal(t, "abc", re.Details["existing_id"])
}

func TestPriorityRankOrdering(t *testing.T) {
	assert.Greater(t, PriorityCritical.Rank(), PriorityHigh.Rank())
	assert.Greater(t, PriorityHigh.Rank(), PriorityNormal.Rank())
	assert.Greater(t, PriorityNormal.Rank(), PriorityLow.Rank())
	assert.Equal(t, PriorityNormal.Rank(), Priority("unknown").Rank())
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, TxStatusConfirmed.Terminal())
	assert.True(t, TxStatusFailedTerminal.Terminal())
	assert.False(t, TxStatusQueued.Terminal())

	assert.True(t, TxStatusQueued.Live())
	assert.True(t, TxStatusProcessing.Live())
	assert.True(t, TxStatusRequeued.Live())
	assert.False(t, TxStatusConfirmed.Live())
}
