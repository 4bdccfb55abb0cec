package breaker

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/airchainpay/relay/pkg/log"
	"github.com/airchainpay/relay/pkg/types"
)

// Settings tunes breakers created by a Registry
type Settings struct {
	// FailureThreshold trips Closed -> Open after this many consecutive failures
	FailureThreshold uint32
	// SuccessThreshold closes a half-open breaker after this many consecutive
	// successes; it also bounds concurrent half-open probes
	SuccessThreshold uint32
	// OpenDuration is how long an open breaker rejects before probing
	OpenDuration time.Duration
}

// DefaultSettings matches the relay's conservative defaults
func DefaultSettings() Settings {
	return Settings{
		FailureThreshold: 5,
		SuccessThreshold: 3,
		OpenDuration:     60 * time.Second,
	}
}

// StateChangeFunc observes breaker transitions
type StateChangeFunc func(name string, from, to types.BreakerState)

// Registry holds one circuit breaker per operation name, created on first
// use. The breaker gates admission only; it never retries.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*gobreaker.TwoStepCircuitBreaker

	settings Settings
	onChange StateChangeFunc
	logger   zerolog.Logger
}

// NewRegistry creates a registry with the given settings
func NewRegistry(settings Settings, onChange StateChangeFunc) *Registry {
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = DefaultSettings().FailureThreshold
	}
	if settings.SuccessThreshold == 0 {
		settings.SuccessThreshold = DefaultSettings().SuccessThreshold
	}
	if settings.OpenDuration == 0 {
		settings.OpenDuration = DefaultSettings().OpenDuration
	}
	return &Registry{
		breakers: make(map[string]*gobreaker.TwoStepCircuitBreaker),
		settings: settings,
		onChange: onChange,
		logger:   log.For(log.Breaker),
	}
}

func (r *Registry) get(name string) *gobreaker.TwoStepCircuitBreaker {
	r.mu.RLock()
	cb, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	threshold := r.settings.FailureThreshold
	cb = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: r.settings.SuccessThreshold,
		Timeout:     r.settings.OpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: r.stateChanged,
	})
	r.breakers[name] = cb
	return cb
}

func (r *Registry) stateChanged(name string, from, to gobreaker.State) {
	r.logger.Warn().
		Str("operation", name).
		Str("from", string(mapState(from))).
		Str("to", string(mapState(to))).
		Msg("Circuit breaker state changed")
	if r.onChange != nil {
		r.onChange(name, mapState(from), mapState(to))
	}
}

// Allow asks the named breaker to admit one call. An open breaker (or a
// saturated half-open probe window) rejects with CircuitOpen. On
// admission the returned done func must be called exactly once with the
// call's outcome; the breaker itself never retries.
func (r *Registry) Allow(name string) (func(success bool), error) {
	done, err := r.get(name).Allow()
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, types.Wrap(types.KindCircuitOpen, name, err)
		}
		return nil, err
	}
	return done, nil
}

// Execute runs fn as a single gated call: one admission, one recorded
// outcome.
func (r *Registry) Execute(name string, fn func() error) error {
	done, err := r.Allow(name)
	if err != nil {
		return err
	}
	err = fn()
	done(err == nil)
	return err
}

// Status returns the operator view of one breaker. Unknown names report a
// closed breaker with zero counts, matching create-on-first-use semantics.
func (r *Registry) Status(name string) types.BreakerStatus {
	r.mu.RLock()
	cb, ok := r.breakers[name]
	r.mu.RUnlock()
	if !ok {
		return types.BreakerStatus{Name: name, State: types.BreakerClosed}
	}

	counts := cb.Counts()
	return types.BreakerStatus{
		Name:                 name,
		State:                mapState(cb.State()),
		ConsecutiveFailures:  counts.ConsecutiveFailures,
		ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
		Requests:             counts.Requests,
	}
}

// StatusAll returns the view of every breaker created so far
func (r *Registry) StatusAll() []types.BreakerStatus {
	r.mu.RLock()
	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	r.mu.RUnlock()

	out := make([]types.BreakerStatus, 0, len(names))
	for _, name := range names {
		out = append(out, r.Status(name))
	}
	return out
}

func mapState(s gobreaker.State) types.BreakerState {
	switch s {
	case gobreaker.StateOpen:
		return types.BreakerOpen
	case gobreaker.StateHalfOpen:
		return types.BreakerHalfOpen
	default:
		return types.BreakerClosed
	}
}
