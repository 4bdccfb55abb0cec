package relay

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/airchainpay/relay/pkg/breaker"
	"github.com/airchainpay/relay/pkg/config"
	"github.com/airchainpay/relay/pkg/log"
	"github.com/airchainpay/relay/pkg/metrics"
	"github.com/airchainpay/relay/pkg/queue"
	"github.com/airchainpay/relay/pkg/ratelimit"
	"github.com/airchainpay/relay/pkg/retry"
	"github.com/airchainpay/relay/pkg/rpc"
	"github.com/airchainpay/relay/pkg/storage"
	"github.com/airchainpay/relay/pkg/types"
	"github.com/airchainpay/relay/pkg/worker"
)

// Relay is the runtime root: it owns the queue, the worker pool, the
// limiter, the breaker registry and the storage layer, and exposes the
// in-process contract the transport adapters call.
type Relay struct {
	cfgMgr   *config.Manager
	store    *storage.FileStore
	queue    *queue.Queue
	limiter  *ratelimit.Limiter
	breakers *breaker.Registry
	retrier  *retry.Manager
	rpc      *rpc.Client
	pool     *worker.Pool
	backups  *storage.BackupScheduler

	cfgSub config.Subscriber
	stopCh chan struct{}
	logger zerolog.Logger

	accepted atomic.Uint64
	rejected atomic.Uint64
}

// New assembles a relay from the given config manager
func New(cfgMgr *config.Manager) (*Relay, error) {
	cfg := cfgMgr.Get()

	store, err := storage.NewFileStore(cfg.Database.DataDir, storage.Options{
		RetentionDays: cfg.Database.RetentionDays,
	})
	if err != nil {
		return nil, err
	}

	r := &Relay{
		cfgMgr: cfgMgr,
		store:  store,
		queue:  queue.New(cfg.Queue.MaxQueued),
		stopCh: make(chan struct{}),
		logger: log.For(log.Relay),
	}

	cfgMgr.Audit = func(rec types.AuditRecord) {
		outcome := "failure"
		if rec.EventKind == types.EventConfigReloaded {
			outcome = "success"
		}
		metrics.ConfigReloadsTotal.WithLabelValues(outcome).Inc()
		if err := store.AppendAudit(rec); err != nil {
			r.logger.Error().Err(err).Msg("Config audit append failed")
		}
	}

	r.breakers = breaker.NewRegistry(breaker.Settings{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		OpenDuration:     cfg.Breaker.OpenDuration(),
	}, r.breakerChanged)
	r.retrier = retry.NewManager(r.breakers)
	r.rpc = rpc.NewClient(func() *config.Config { return r.cfgMgr.Get() })
	r.limiter = ratelimit.New(rulesFrom(cfg), cfg.RateLimits.MaxConnections)
	r.pool = worker.NewPool(worker.Config{
		Workers:     cfg.Queue.Workers,
		GracePeriod: time.Duration(cfg.Queue.GracePeriod) * time.Second,
	}, r.queue, r.rpc, r.retrier, store, cfgMgr.Get)
	r.backups = storage.NewBackupScheduler(store, time.Duration(cfg.Database.BackupInterval)*time.Second)

	metrics.SetVersion(cfg.Version)
	metrics.SetComponent(metrics.ComponentStorage, metrics.StatusUp, "initialized")
	metrics.SetComponent(metrics.ComponentQueue, metrics.StatusUp, "initialized")
	return r, nil
}

// VerifyIntegrity runs the startup fsck and returns any violations
func (r *Relay) VerifyIntegrity() ([]storage.Violation, error) {
	violations, err := r.store.VerifyAll()
	for range violations {
		metrics.IntegrityViolationsTotal.Inc()
	}
	return violations, err
}

// Start launches the background machinery
func (r *Relay) Start() error {
	if err := r.cfgMgr.Watch(); err != nil {
		return err
	}
	r.cfgSub = r.cfgMgr.Subscribe()

	r.pool.Start()
	r.backups.Start()
	go r.housekeeping()
	go r.configChanges()

	r.logger.Info().Msg("Relay started")
	return nil
}

// Stop shuts the relay down in dependency order
func (r *Relay) Stop() {
	close(r.stopCh)
	r.pool.Stop()
	r.queue.Close()
	metrics.SetComponent(metrics.ComponentQueue, metrics.StatusDown, "shut down")
	r.backups.Stop()
	r.cfgMgr.Close()
	r.rpc.Close()
	r.persistMetrics()
	if err := r.store.Close(); err != nil {
		r.logger.Error().Err(err).Msg("Storage close failed")
	}
	metrics.SetComponent(metrics.ComponentStorage, metrics.StatusDown, "shut down")
	r.logger.Info().Msg("Relay stopped")
}

// configChanges applies hot-reloaded snapshots to the live components
func (r *Relay) configChanges() {
	for {
		select {
		case cfg, ok := <-r.cfgSub:
			if !ok {
				return
			}
			r.rpc.Invalidate()
			r.limiter.SetRules(rulesFrom(cfg))
			r.logger.Info().Msg("Applied new configuration snapshot")
		case <-r.stopCh:
			return
		}
	}
}

// housekeeping runs the periodic maintenance loops: queue gauges, metrics
// snapshot persistence, audit retention and limiter pruning.
func (r *Relay) housekeeping() {
	cfg := r.cfgMgr.Get()
	interval := time.Duration(cfg.Monitoring.MetricsInterval) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	retention := time.NewTicker(time.Hour)
	defer retention.Stop()

	for {
		select {
		case <-ticker.C:
			stats := r.queue.Stats()
			metrics.QueueDepth.Set(float64(stats.Depth))
			metrics.QueueLive.Set(float64(stats.Queued + stats.Processing + stats.Requeued))
			r.persistMetrics()
			r.limiter.Prune(time.Hour)
		case <-retention.C:
			horizon := time.Duration(r.cfgMgr.Get().Database.AuditRetention) * time.Hour
			if horizon <= 0 {
				continue
			}
			if _, err := r.store.TrimAudit(horizon); err != nil {
				r.logger.Error().Err(err).Msg("Audit retention trim failed")
			}
		case <-r.stopCh:
			return
		}
	}
}

func (r *Relay) persistMetrics() {
	stats := r.queue.Stats()
	snapshot := types.MetricsSnapshot{
		SubmissionsAccepted: r.accepted.Load(),
		SubmissionsRejected: r.rejected.Load(),
		Confirmed:           uint64(stats.Confirmed),
		Failed:              uint64(stats.FailedTerminal),
		UpdatedAt:           time.Now().UTC(),
	}
	if err := r.store.SaveMetrics(snapshot); err != nil {
		r.logger.Error().Err(err).Msg("Metrics snapshot persist failed")
	}
}

func (r *Relay) breakerChanged(name string, from, to types.BreakerState) {
	var level float64
	switch to {
	case types.BreakerHalfOpen:
		level = 1
	case types.BreakerOpen:
		level = 2
	}
	metrics.BreakerState.WithLabelValues(name).Set(level)
	metrics.BreakerTransitionsTotal.WithLabelValues(name, string(to)).Inc()

	if err := r.store.AppendAudit(types.AuditRecord{
		Actor:     "breaker",
		EventKind: types.EventCircuitStateChange,
		Resource:  name,
		Outcome:   string(to),
		Details:   map[string]interface{}{"from": string(from), "to": string(to)},
	}); err != nil {
		r.logger.Error().Err(err).Msg("Breaker audit append failed")
	}
}

func rulesFrom(cfg *config.Config) map[string]ratelimit.Rule {
	rules := ratelimit.DefaultRules()
	if cfg.RateLimits.MaxSubmits > 0 {
		rules[ratelimit.OpSubmit] = ratelimit.Rule{
			MaxEvents: cfg.RateLimits.MaxSubmits,
			Window:    cfg.RateLimits.Window(),
		}
	}
	if cfg.RateLimits.MaxConnects > 0 {
		rules[ratelimit.OpConnect] = ratelimit.Rule{
			MaxEvents: cfg.RateLimits.MaxConnects,
			Window:    cfg.RateLimits.Window(),
		}
	}
	return rules
}
