package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/airchainpay/relay/pkg/config"
	"github.com/airchainpay/relay/pkg/log"
	"github.com/airchainpay/relay/pkg/metrics"
	"github.com/airchainpay/relay/pkg/queue"
	"github.com/airchainpay/relay/pkg/retry"
	"github.com/airchainpay/relay/pkg/rpc"
	"github.com/airchainpay/relay/pkg/storage"
	"github.com/airchainpay/relay/pkg/types"
)

// DefaultWorkers is the pool size when config does not set one
const DefaultWorkers = 8

// DefaultGracePeriod bounds in-flight work during shutdown
const DefaultGracePeriod = 30 * time.Second

// Config holds worker pool configuration
type Config struct {
	Workers     int
	GracePeriod time.Duration
}

// Pool consumes the transaction queue with bounded parallelism. Workers
// are symmetric and stateless; all coordination lives in the queue.
type Pool struct {
	cfg      Config
	queue    *queue.Queue
	rpc      *rpc.Client
	retrier  *retry.Manager
	store    storage.Store
	snapshot func() *config.Config

	claimCtx    context.Context
	claimCancel context.CancelFunc
	procCtx     context.Context
	procCancel  context.CancelFunc

	wg     sync.WaitGroup
	logger zerolog.Logger
}

// NewPool creates a worker pool
func NewPool(cfg Config, q *queue.Queue, client *rpc.Client, retrier *retry.Manager, store storage.Store, snapshot func() *config.Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}

	claimCtx, claimCancel := context.WithCancel(context.Background())
	procCtx, procCancel := context.WithCancel(context.Background())

	return &Pool{
		cfg:         cfg,
		queue:       q,
		rpc:         client,
		retrier:     retrier,
		store:       store,
		snapshot:    snapshot,
		claimCtx:    claimCtx,
		claimCancel: claimCancel,
		procCtx:     procCtx,
		procCancel:  procCancel,
		logger:      log.For(log.Worker),
	}
}

// Start launches the workers
func (p *Pool) Start() {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.run(i)
	}
	p.logger.Info().Int("workers", p.cfg.Workers).Msg("Worker pool started")
	metrics.SetComponent(metrics.ComponentWorkers, metrics.StatusUp, "running")
}

// Stop initiates orderly shutdown: stop claiming, let in-flight work
// drain within the grace period, then fail open.
func (p *Pool) Stop() {
	p.claimCancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info().Msg("Worker pool drained")
	case <-time.After(p.cfg.GracePeriod):
		p.logger.Warn().Dur("grace_period", p.cfg.GracePeriod).Msg("Grace period elapsed with work in flight, proceeding with shutdown")
		p.procCancel()
		<-done
	}
	p.procCancel()
	metrics.SetComponent(metrics.ComponentWorkers, metrics.StatusDown, "stopped")
}

func (p *Pool) run(id int) {
	defer p.wg.Done()

	for {
		tx, err := p.queue.Claim(p.claimCtx)
		if err != nil {
			return
		}

		logger := log.Tx(log.Worker, tx.ID, tx.ChainID).With().Int("worker", id).Logger()
		metrics.WorkersBusy.Inc()
		p.process(logger, tx)
		metrics.WorkersBusy.Dec()
	}
}

// process drives one claimed transaction to completion or requeue
func (p *Pool) process(logger zerolog.Logger, tx types.Transaction) {
	cfg := p.snapshot()
	chainLabel := strconv.FormatUint(tx.ChainID, 10)
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDurationVec(metrics.ProcessingDuration, chainLabel)
	}()

	operation := fmt.Sprintf("eth_sendRawTransaction:%d", tx.ChainID)
	policy := policyFrom(cfg.Retry)

	attempts := 0
	var hash common.Hash
	err := p.retrier.Do(p.procCtx, operation, policy, func(ctx context.Context) error {
		attempts++
		rpcTimer := metrics.NewTimer()
		h, sendErr := p.rpc.Send(ctx, tx.ChainID, tx.Raw)
		rpcTimer.ObserveDurationVec(metrics.RPCDuration, chainLabel)

		outcome := "success"
		if sendErr != nil {
			outcome = "failure"
		} else {
			hash = h
		}
		metrics.RPCAttemptsTotal.WithLabelValues(chainLabel, outcome).Inc()
		p.auditAttempt(tx, attempts, outcome, sendErr)
		return sendErr
	})

	switch {
	case err == nil:
		p.confirm(logger, cfg, tx, hash, attempts)

	case types.IsKind(err, types.KindCircuitOpen):
		// Not terminal: the chain endpoint gets its open window to
		// recover, then the transaction competes again.
		delay := cfg.Breaker.OpenDuration()
		logger.Warn().Dur("delay", delay).Msg("Circuit open, requeueing transaction")
		p.queue.RecordProgress(tx.ID, attempts, err.Error())
		if qerr := p.queue.Requeue(tx.ID, delay); qerr != nil {
			logger.Error().Err(qerr).Msg("Requeue after circuit open failed")
		}

	case errors.Is(err, context.Canceled) && p.procCtx.Err() != nil:
		// Shutdown cancellation: roll back to Queued instead of failing
		// the transaction.
		p.queue.RecordProgress(tx.ID, attempts, "shutdown before completion")
		_ = p.queue.Requeue(tx.ID, 0)

	default:
		p.fail(logger, tx, attempts, err)
	}
}

// confirm finalizes a broadcast transaction, waiting for receipt
// confirmations when the chain requires them.
func (p *Pool) confirm(logger zerolog.Logger, cfg *config.Config, tx types.Transaction, hash common.Hash, attempts int) {
	if chain, ok := cfg.Chain(tx.ChainID); ok && chain.Confirmations > 0 {
		waitTimer := metrics.NewTimer()
		receipt, err := p.rpc.WaitForConfirmation(p.procCtx, tx.ChainID, hash, chain.Confirmations)
		waitTimer.ObserveDuration(metrics.ConfirmationWait)

		if err != nil || receipt.Status != types.ReceiptConfirmed {
			reason := "confirmation wait timed out"
			if err != nil {
				reason = err.Error()
			}
			p.completeTerminal(logger, tx, queue.Outcome{
				Status:    types.TxStatusFailedTerminal,
				Hash:      &hash,
				LastError: reason,
				Attempts:  attempts,
			})
			return
		}
	}

	p.completeTerminal(logger, tx, queue.Outcome{
		Status:   types.TxStatusConfirmed,
		Hash:     &hash,
		Attempts: attempts,
	})
}

func (p *Pool) fail(logger zerolog.Logger, tx types.Transaction, attempts int, err error) {
	p.completeTerminal(logger, tx, queue.Outcome{
		Status:    types.TxStatusFailedTerminal,
		LastError: err.Error(),
		Attempts:  attempts,
	})
}

// completeTerminal commits the outcome to the queue, the document store
// and the audit log.
func (p *Pool) completeTerminal(logger zerolog.Logger, tx types.Transaction, outcome queue.Outcome) {
	if err := p.queue.Complete(tx.ID, outcome); err != nil {
		logger.Error().Err(err).Msg("Queue completion failed")
		return
	}

	metrics.TransactionsTotal.WithLabelValues(string(outcome.Status)).Inc()

	tx.Status = outcome.Status
	tx.Hash = outcome.Hash
	tx.LastError = outcome.LastError
	tx.Attempts = outcome.Attempts
	if err := p.store.SaveTransaction(tx); err != nil {
		logger.Error().Err(err).Msg("Persisting terminal transaction failed")
	}

	kind := types.EventTransactionConfirmed
	result := "success"
	details := map[string]interface{}{"attempts": outcome.Attempts, "chain_id": tx.ChainID}
	if outcome.Status == types.TxStatusFailedTerminal {
		kind = types.EventTransactionFailed
		result = "failure"
		details["error"] = outcome.LastError
	} else if outcome.Hash != nil {
		details["hash"] = outcome.Hash.Hex()
	}
	if err := p.store.AppendAudit(types.AuditRecord{
		Actor:     "worker",
		EventKind: kind,
		Resource:  tx.ID,
		Outcome:   result,
		Details:   details,
	}); err != nil {
		logger.Error().Err(err).Msg("Audit append failed")
	}

	event := logger.Info()
	if outcome.Status == types.TxStatusFailedTerminal {
		event = logger.Warn()
	}
	event.Str("status", string(outcome.Status)).Int("attempts", outcome.Attempts).Msg("Transaction finalized")
}

func (p *Pool) auditAttempt(tx types.Transaction, attempt int, outcome string, err error) {
	details := map[string]interface{}{"attempt": attempt, "chain_id": tx.ChainID}
	if err != nil {
		details["error"] = err.Error()
	}
	if aerr := p.store.AppendAudit(types.AuditRecord{
		Actor:     "worker",
		EventKind: types.EventRpcAttempt,
		Resource:  tx.ID,
		Outcome:   outcome,
		Details:   details,
	}); aerr != nil {
		txLogger := log.Tx(log.Worker, tx.ID, tx.ChainID)
		txLogger.Error().Err(aerr).Msg("Audit append failed")
	}
}

func policyFrom(cfg config.RetryConfig) retry.Policy {
	policy := retry.DefaultPolicy()
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialDelayMs > 0 {
		policy.InitialDelay = cfg.InitialDelay()
	}
	if cfg.MaxDelayMs > 0 {
		policy.MaxDelay = cfg.MaxDelay()
	}
	if cfg.BackoffMultiplier > 0 {
		policy.BackoffMultiplier = cfg.BackoffMultiplier
	}
	policy.Jitter = cfg.Jitter
	if cfg.PerAttemptMs > 0 {
		policy.PerAttemptTimeout = cfg.PerAttempt()
	}
	if cfg.OverallMs > 0 {
		policy.OverallTimeout = cfg.Overall()
	}
	return policy
}
