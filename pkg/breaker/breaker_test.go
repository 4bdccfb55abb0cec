package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airchainpay/relay/pkg/types"
)

func testSettings() Settings {
	return Settings{
		FailureThreshold: 2,
		SuccessThreshold: 2,
		OpenDuration:     50 * time.Millisecond,
	}
}

var errBoom = errors.New("boom")

func TestOpensAtExactlyFailureThreshold(t *testing.T) {
	r := NewRegistry(testSettings(), nil)

	// One failure short of the threshold keeps the breaker closed
	require.Error(t, r.Execute("op", func() error { return errBoom }))
	assert.Equal(t, types.BreakerClosed, r.Status("op").State)

	require.Error(t, r.Execute("op", func() error { return errBoom }))
	assert.Equal(t, types.BreakerOpen, r.Status("op").State)
}

func TestOpenRejectsWithCircuitOpen(t *testing.T) {
	r := NewRegistry(testSettings(), nil)
	for i := 0; i < 2; i++ {
		_ = r.Execute("op", func() error { return errBoom })
	}

	called := false
	err := r.Execute("op", func() error { called = true; return nil })
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindCircuitOpen))
	assert.False(t, called, "open breaker must not invoke the operation")
}

func TestHalfOpenAfterTimeoutThenCloses(t *testing.T) {
	r := NewRegistry(testSettings(), nil)
	for i := 0; i < 2; i++ {
		_ = r.Execute("op", func() error { return errBoom })
	}

	time.Sleep(70 * time.Millisecond)

	// First admission after the open window is the half-open probe
	require.NoError(t, r.Execute("op", func() error { return nil }))
	assert.Equal(t, types.BreakerHalfOpen, r.Status("op").State)

	// Exactly SuccessThreshold consecutive successes close it
	require.NoError(t, r.Execute("op", func() error { return nil }))
	assert.Equal(t, types.BreakerClosed, r.Status("op").State)
}

func TestHalfOpenFailureReopens(t *testing.T) {
	r := NewRegistry(testSettings(), nil)
	for i := 0; i < 2; i++ {
		_ = r.Execute("op", func() error { return errBoom })
	}

	time.Sleep(70 * time.Millisecond)

	require.Error(t, r.Execute("op", func() error { return errBoom }))
	assert.Equal(t, types.BreakerOpen, r.Status("op").State)
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	r := NewRegistry(testSettings(), nil)

	require.Error(t, r.Execute("op", func() error { return errBoom }))
	require.NoError(t, r.Execute("op", func() error { return nil }))
	require.Error(t, r.Execute("op", func() error { return errBoom }))

	// The streak was broken, so one more failure is needed to trip
	assert.Equal(t, types.BreakerClosed, r.Status("op").State)
}

func TestBreakersAreIndependentPerOperation(t *testing.T) {
	r := NewRegistry(testSettings(), nil)
	for i := 0; i < 2; i++ {
		_ = r.Execute("chain-1114", func() error { return errBoom })
	}

	assert.Equal(t, types.BreakerOpen, r.Status("chain-1114").State)
	assert.NoError(t, r.Execute("chain-84532", func() error { return nil }))
	assert.Equal(t, types.BreakerClosed, r.Status("chain-84532").State)
}

func TestStateChangeCallback(t *testing.T) {
	var transitions []types.BreakerState
	r := NewRegistry(testSettings(), func(name string, from, to types.BreakerState) {
		transitions = append(transitions, to)
	})

	for i := 0; i < 2; i++ {
		_ = r.Execute("op", func() error { return errBoom })
	}

	require.NotEmpty(t, transitions)
	assert.Equal(t, types.BreakerOpen, transitions[len(transitions)-1])
}

func TestUnknownBreakerReportsClosed(t *testing.T) {
	r := NewRegistry(testSettings(), nil)
	status := r.Status("never-used")
	assert.Equal(t, types.BreakerClosed, status.State)
	assert.Zero(t, status.Requests)
}
