package config

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/airchainpay/relay/pkg/log"
	"github.com/airchainpay/relay/pkg/types"
)

// debounceDelay coalesces editor write bursts into one reload
const debounceDelay = 100 * time.Millisecond

// Subscriber receives the new snapshot after every successful swap
type Subscriber chan *Config

// AuditFunc lets the runtime record config events without a storage import
type AuditFunc func(types.AuditRecord)

// Manager owns the live Config snapshot. Reads are an atomic pointer load;
// every mutation validates first and then replaces the whole snapshot.
type Manager struct {
	snapshot atomic.Pointer[Config]

	mu          sync.RWMutex
	subscribers map[Subscriber]bool

	path    string
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	stopped sync.Once
	logger  zerolog.Logger

	// Audit is invoked for reload outcomes when set
	Audit AuditFunc
}

// NewManager loads the initial snapshot from path (or env defaults) and
// returns a manager ready to serve reads.
func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		subscribers: make(map[Subscriber]bool),
		path:        path,
		stopCh:      make(chan struct{}),
		logger:      log.For(log.ConfigMgr),
	}
	m.snapshot.Store(cfg)
	return m, nil
}

// Get returns the current immutable snapshot. Callers must not mutate it.
func (m *Manager) Get() *Config {
	return m.snapshot.Load()
}

// Update validates the candidate and, on success, swaps the snapshot and
// notifies subscribers. On failure the previous snapshot is retained.
func (m *Manager) Update(next *Config) error {
	if err := next.Validate(); err != nil {
		return err
	}
	m.snapshot.Store(next)
	m.broadcast(next)
	m.logger.Info().Str("environment", next.Environment).Msg("Configuration updated")
	return nil
}

// Reload re-reads the config file and applies it via Update. Validation or
// parse failures keep the previous snapshot.
func (m *Manager) Reload() error {
	cfg, err := Load(m.path)
	if err != nil {
		m.logger.Error().Err(err).Str("path", m.path).Msg("Config reload rejected, keeping previous snapshot")
		m.audit(types.EventConfigRejected, "failure", err.Error())
		return err
	}
	if err := m.Update(cfg); err != nil {
		m.audit(types.EventConfigRejected, "failure", err.Error())
		return err
	}
	m.audit(types.EventConfigReloaded, "success", "")
	return nil
}

// Subscribe registers a change stream. The channel receives each new
// snapshot; slow subscribers miss intermediate snapshots rather than block
// the swap.
func (m *Manager) Subscribe() Subscriber {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub := make(Subscriber, 1)
	m.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (m *Manager) Unsubscribe(sub Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.subscribers[sub] {
		delete(m.subscribers, sub)
		close(sub)
	}
}

func (m *Manager) broadcast(cfg *Config) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for sub := range m.subscribers {
		select {
		case sub <- cfg:
		default:
			// Drain the stale snapshot so the latest one lands
			select {
			case <-sub:
			default:
			}
			select {
			case sub <- cfg:
			default:
			}
		}
	}
}

// Watch starts the file watcher. Modify events on the config path trigger a
// debounced Reload.
func (m *Manager) Watch() error {
	if m.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory: editors replace files via rename, which drops
	// direct file watches.
	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		watcher.Close()
		return err
	}
	m.watcher = watcher

	go m.watchLoop()
	m.logger.Info().Str("path", m.path).Msg("Config file watcher started")
	return nil
}

func (m *Manager) watchLoop() {
	var timer *time.Timer
	var timerCh <-chan time.Time

	base := filepath.Clean(m.path)
	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceDelay)
				timerCh = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(debounceDelay)
			}
		case <-timerCh:
			timer = nil
			timerCh = nil
			if err := m.Reload(); err != nil {
				m.logger.Warn().Err(err).Msg("Watcher-triggered reload failed")
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Error().Err(err).Msg("Config watcher error")
		case <-m.stopCh:
			return
		}
	}
}

// Close stops the watcher and closes all subscriptions
func (m *Manager) Close() {
	m.stopped.Do(func() {
		close(m.stopCh)
		if m.watcher != nil {
			m.watcher.Close()
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		for sub := range m.subscribers {
			delete(m.subscribers, sub)
			close(sub)
		}
	})
}

func (m *Manager) audit(kind types.EventKind, outcome, detail string) {
	if m.Audit == nil {
		return
	}
	rec := types.AuditRecord{
		Actor:     "config-manager",
		EventKind: kind,
		Resource:  m.path,
		Outcome:   outcome,
	}
	if detail != "" {
		rec.Details = map[string]interface{}{"error": detail}
	}
	m.Audit(rec)
}
