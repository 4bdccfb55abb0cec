package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airchainpay/relay/pkg/breaker"
	"github.com/airchainpay/relay/pkg/types"
)

func fastPolicy() Policy {
	return Policy{
		MaxAttempts:       3,
		InitialDelay:      5 * time.Millisecond,
		MaxDelay:          50 * time.Millisecond,
		BackoffMultiplier: 2.0,
		Jitter:            false,
		PerAttemptTimeout: time.Second,
		OverallTimeout:    5 * time.Second,
	}
}

func newManager() *Manager {
	return NewManager(breaker.NewRegistry(breaker.Settings{
		FailureThreshold: 2,
		SuccessThreshold: 2,
		OpenDuration:     100 * time.Millisecond,
	}, nil))
}

func transientErr() error {
	return types.E(types.KindRpcTransient, "upstream 503")
}

func TestSucceedsAfterTransientFailures(t *testing.T) {
	m := newManager()

	calls := 0
	err := m.Do(context.Background(), "op", fastPolicy(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return transientErr()
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestNonRetryableReturnsImmediately(t *testing.T) {
	m := newManager()

	calls := 0
	err := m.Do(context.Background(), "op", fastPolicy(), func(ctx context.Context) error {
		calls++
		return types.E(types.KindRpcSemantic, "nonce too low")
	})

	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindRpcSemantic))
	assert.Equal(t, 1, calls)
}

func TestExhaustionWrapsLastError(t *testing.T) {
	m := newManager()

	calls := 0
	err := m.Do(context.Background(), "op", fastPolicy(), func(ctx context.Context) error {
		calls++
		return transientErr()
	})

	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindRetryExhausted))
	assert.True(t, types.IsKind(err, types.KindRpcTransient), "RetryExhausted must wrap the last underlying error")
	assert.Equal(t, 3, calls)
}

func TestOverallTimeoutWins(t *testing.T) {
	m := newManager()

	policy := fastPolicy()
	policy.MaxAttempts = 100
	policy.InitialDelay = 20 * time.Millisecond
	policy.OverallTimeout = 60 * time.Millisecond

	err := m.Do(context.Background(), "op", policy, func(ctx context.Context) error {
		return transientErr()
	})

	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindOverallTimeout))
}

func TestBreakerFailureOncePerSequence(t *testing.T) {
	m := newManager()

	// One exhausted sequence is one breaker failure, not three
	_ = m.Do(context.Background(), "op", fastPolicy(), func(ctx context.Context) error {
		return transientErr()
	})
	assert.Equal(t, types.BreakerClosed, m.Breakers().Status("op").State)

	// The second exhausted sequence reaches the threshold of 2
	_ = m.Do(context.Background(), "op", fastPolicy(), func(ctx context.Context) error {
		return transientErr()
	})
	assert.Equal(t, types.BreakerOpen, m.Breakers().Status("op").State)
}

func TestOpenBreakerFailsFast(t *testing.T) {
	m := newManager()
	for i := 0; i < 2; i++ {
		_ = m.Do(context.Background(), "op", fastPolicy(), func(ctx context.Context) error {
			return transientErr()
		})
	}

	calls := 0
	start := time.Now()
	err := m.Do(context.Background(), "op", fastPolicy(), func(ctx context.Context) error {
		calls++
		return nil
	})

	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindCircuitOpen))
	assert.Zero(t, calls, "open breaker must reject before any attempt")
	assert.Less(t, time.Since(start), 10*time.Millisecond)
}

func TestCallerCancellationPropagates(t *testing.T) {
	m := newManager()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	policy := fastPolicy()
	policy.MaxAttempts = 100
	policy.InitialDelay = 10 * time.Millisecond

	err := m.Do(ctx, "op", policy, func(ctx context.Context) error {
		return transientErr()
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, types.IsKind(err, types.KindOverallTimeout))
}

func TestAttemptObserver(t *testing.T) {
	m := newManager()

	var observed []int
	m.OnAttempt = func(operation string, attempt int, err error) {
		observed = append(observed, attempt)
	}

	calls := 0
	_ = m.Do(context.Background(), "op", fastPolicy(), func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return transientErr()
		}
		return nil
	})

	assert.Equal(t, []int{1, 2}, observed)
}
