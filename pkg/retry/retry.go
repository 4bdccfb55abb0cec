package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/airchainpay/relay/pkg/breaker"
	"github.com/airchainpay/relay/pkg/log"
	"github.com/airchainpay/relay/pkg/types"
)

// Policy describes how an operation is retried
type Policy struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	Jitter            bool
	PerAttemptTimeout time.Duration
	OverallTimeout    time.Duration
}

// DefaultPolicy matches the relay's RPC defaults
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:       3,
		InitialDelay:      500 * time.Millisecond,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
		PerAttemptTimeout: 15 * time.Second,
		OverallTimeout:    2 * time.Minute,
	}
}

// AttemptFunc observes each attempt outcome, e.g. for audit records
type AttemptFunc func(operation string, attempt int, err error)

// Manager executes operations under a retry policy, gated by the circuit
// breaker registry. Recovery is local: callers see only the final outcome.
type Manager struct {
	breakers  *breaker.Registry
	logger    zerolog.Logger
	OnAttempt AttemptFunc
}

// NewManager creates a retry manager over the given breaker registry
func NewManager(breakers *breaker.Registry) *Manager {
	return &Manager{
		breakers: breakers,
		logger:   log.For(log.Retry),
	}
}

// Breakers exposes the underlying registry for status queries
func (m *Manager) Breakers() *breaker.Registry {
	return m.breakers
}

// Do runs fn under the named breaker and the policy. The breaker gates
// admission once per call and records one outcome for the whole retry
// sequence: transient failures that a later attempt recovers from never
// count against it. The returned error is one of: nil, CircuitOpen, a
// non-retryable error as classified, RetryExhausted wrapping the last
// underlying error, or OverallTimeout. OverallTimeout wins every tie.
func (m *Manager) Do(ctx context.Context, operation string, policy Policy, fn func(context.Context) error) error {
	done, err := m.breakers.Allow(operation)
	if err != nil {
		return err
	}
	succeeded := false
	defer func() { done(succeeded) }()

	overallCtx := ctx
	if policy.OverallTimeout > 0 {
		var cancel context.CancelFunc
		overallCtx, cancel = context.WithTimeout(ctx, policy.OverallTimeout)
		defer cancel()
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = policy.InitialDelay
	bo.MaxInterval = policy.MaxDelay
	bo.Multiplier = policy.BackoffMultiplier
	bo.MaxElapsedTime = 0 // the overall deadline is the context's job
	if policy.Jitter {
		bo.RandomizationFactor = 0.1
	} else {
		bo.RandomizationFactor = 0
	}

	attempt := 0
	var lastErr error

	op := func() error {
		attempt++

		attemptCtx := overallCtx
		if policy.PerAttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(overallCtx, policy.PerAttemptTimeout)
			defer cancel()
		}

		err := fn(attemptCtx)
		if m.OnAttempt != nil {
			m.OnAttempt(operation, attempt, err)
		}
		if err == nil {
			return nil
		}
		lastErr = err

		if !types.Retryable(err) {
			return backoff.Permanent(err)
		}
		if attempt >= policy.MaxAttempts {
			return backoff.Permanent(types.Wrap(types.KindRetryExhausted, operation, err))
		}

		m.logger.Debug().
			Str("operation", operation).
			Int("attempt", attempt).
			Err(err).
			Msg("Attempt failed, backing off")
		return err
	}

	err = backoff.Retry(op, backoff.WithContext(bo, overallCtx))
	if err == nil {
		succeeded = true
		return nil
	}

	// The overall deadline takes precedence over classification and
	// attempt count.
	if overallCtx.Err() != nil && ctx.Err() == nil {
		return types.Wrap(types.KindOverallTimeout, operation, lastErr)
	}
	if overallCtx.Err() != nil {
		// Caller cancellation propagates as-is
		return overallCtx.Err()
	}
	return err
}
