package ratelimit

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/airchainpay/relay/pkg/log"
)

// Predefined ingress operations
const (
	OpConnect = "connect"
	OpSubmit  = "submit"
)

// Rule bounds one operation: at most MaxEvents admissions per Window
type Rule struct {
	MaxEvents int
	Window    time.Duration
}

// DefaultRules matches the relay's ingress defaults
func DefaultRules() map[string]Rule {
	return map[string]Rule{
		OpConnect: {MaxEvents: 5, Window: time.Minute},
		OpSubmit:  {MaxEvents: 10, Window: time.Minute},
	}
}

type key struct {
	deviceID  string
	operation string
}

// window is the ordered admission history for one (device, operation) pair
type window struct {
	stamps []time.Time
}

// Limiter admits requests against per-(device, operation) sliding windows
// plus a global concurrent-connection cap.
type Limiter struct {
	mu      sync.Mutex
	windows map[key]*window
	rules   map[string]Rule

	maxConnections int
	connections    int

	logger zerolog.Logger
	now    func() time.Time
}

// New creates a limiter. Unknown operations are admitted unconditionally;
// maxConnections <= 0 disables the global cap.
func New(rules map[string]Rule, maxConnections int) *Limiter {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Limiter{
		windows:        make(map[key]*window),
		rules:          rules,
		maxConnections: maxConnections,
		logger:         log.For(log.RateLimit),
		now:            time.Now,
	}
}

// SetRules replaces the rule set, e.g. after a config reload. Existing
// windows are kept; the new bounds apply from the next admission check.
func (l *Limiter) SetRules(rules map[string]Rule) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rules = rules
}

// TryAdmit records an admission attempt for (deviceID, operation) and
// reports whether it is allowed. Expired timestamps are evicted first.
func (l *Limiter) TryAdmit(deviceID, operation string) bool {
	rule, ok := l.ruleFor(operation)
	if !ok {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	k := key{deviceID: deviceID, operation: operation}
	w := l.windows[k]
	if w == nil {
		w = &window{}
		l.windows[k] = w
	}

	now := l.now()
	w.evict(now.Add(-rule.Window))

	if len(w.stamps) >= rule.MaxEvents {
		l.logger.Debug().
			Str("device_id", deviceID).
			Str("operation", operation).
			Int("window_size", len(w.stamps)).
			Msg("Admission denied")
		return false
	}
	w.stamps = append(w.stamps, now)
	return true
}

func (l *Limiter) ruleFor(operation string) (Rule, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rule, ok := l.rules[operation]
	return rule, ok
}

func (w *window) evict(cutoff time.Time) {
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}

// Acquire claims a global connection slot; callers must Release on
// disconnect. A cap of zero or below admits everything.
func (l *Limiter) Acquire() bool {
	if l.maxConnections <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.connections >= l.maxConnections {
		return false
	}
	l.connections++
	return true
}

// Release frees a global connection slot
func (l *Limiter) Release() {
	if l.maxConnections <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.connections > 0 {
		l.connections--
	}
}

// Prune drops windows that have been idle for longer than maxIdle. Run
// periodically so departed devices do not accumulate.
func (l *Limiter) Prune(maxIdle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-maxIdle)
	removed := 0
	for k, w := range l.windows {
		if len(w.stamps) == 0 || w.stamps[len(w.stamps)-1].Before(cutoff) {
			delete(l.windows, k)
			removed++
		}
	}
	return removed
}
