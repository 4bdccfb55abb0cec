package relay

import (
	"github.com/airchainpay/relay/pkg/config"
	"github.com/airchainpay/relay/pkg/metrics"
	"github.com/airchainpay/relay/pkg/ratelimit"
	"github.com/airchainpay/relay/pkg/storage"
	"github.com/airchainpay/relay/pkg/types"
)

// Status returns the live view of a transaction, falling back to the
// document store for records from before the current process.
func (r *Relay) Status(id string) (types.TxStatusView, bool) {
	if view, ok := r.queue.Status(id); ok {
		return view, true
	}

	tx, ok, err := r.store.TransactionByID(id)
	if err != nil || !ok {
		return types.TxStatusView{}, false
	}
	return types.TxStatusView{
		ID:         tx.ID,
		ChainID:    tx.ChainID,
		Priority:   tx.Priority,
		Status:     tx.Status,
		Attempts:   tx.Attempts,
		Hash:       tx.Hash,
		LastError:  tx.LastError,
		ReceivedAt: tx.ReceivedAt,
	}, true
}

// QueueStats returns current queue occupancy
func (r *Relay) QueueStats() types.QueueStats {
	return r.queue.Stats()
}

// CircuitStatus returns one breaker's operator view
func (r *Relay) CircuitStatus(name string) types.BreakerStatus {
	return r.breakers.Status(name)
}

// CircuitStatuses returns every breaker created so far
func (r *Relay) CircuitStatuses() []types.BreakerStatus {
	return r.breakers.StatusAll()
}

// ConfigGet returns the current config snapshot
func (r *Relay) ConfigGet() *config.Config {
	return r.cfgMgr.Get()
}

// ConfigUpdate validates and applies a full replacement snapshot
func (r *Relay) ConfigUpdate(next *config.Config) error {
	return r.cfgMgr.Update(next)
}

// AuditRecent returns the most recent audit records, newest first
func (r *Relay) AuditRecent(limit int) []types.AuditRecord {
	return r.store.RecentAudit(limit)
}

// Transactions pages through persisted transaction records
func (r *Relay) Transactions(limit, offset int) ([]types.Transaction, error) {
	return r.store.Transactions(limit, offset)
}

// Devices lists every device that has submitted
func (r *Relay) Devices() ([]types.Device, error) {
	return r.store.Devices()
}

// Verify recomputes integrity hashes for the operator health surface
func (r *Relay) Verify() ([]storage.Violation, error) {
	return r.VerifyIntegrity()
}

// RecordIncident persists a security incident from a transport adapter
func (r *Relay) RecordIncident(kind string, details map[string]interface{}) {
	if err := r.store.LogIncident(kind, details); err != nil {
		r.logger.Error().Err(err).Str("kind", kind).Msg("Incident persist failed")
	}
}

// AcquireConnection claims a global connection slot for a transport
// adapter; Release must be called on disconnect.
func (r *Relay) AcquireConnection(deviceID string) bool {
	cfg := r.cfgMgr.Get()
	if cfg.Security.EnableRateLimiting && !r.limiter.TryAdmit(deviceID, ratelimit.OpConnect) {
		metrics.RateLimitDenialsTotal.WithLabelValues(ratelimit.OpConnect).Inc()
		return false
	}
	return r.limiter.Acquire()
}

// ReleaseConnection frees a slot taken by AcquireConnection
func (r *Relay) ReleaseConnection() {
	r.limiter.Release()
}
