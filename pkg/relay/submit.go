package relay

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/airchainpay/relay/pkg/log"
	"github.com/airchainpay/relay/pkg/metrics"
	"github.com/airchainpay/relay/pkg/queue"
	"github.com/airchainpay/relay/pkg/ratelimit"
	"github.com/airchainpay/relay/pkg/types"
)

// maxRawHexChars bounds the hex body of a submission at 64 KiB of hex
// characters (32 KiB decoded)
const maxRawHexChars = 64 * 1024

// Submit runs the submission pipeline: rate limit, shape validation,
// envelope sanity, durable pending record, enqueue. The accept is
// synchronous: if durability fails, the accept fails.
func (r *Relay) Submit(ctx context.Context, req types.SubmissionRequest) (types.Accepted, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SubmissionDuration)

	accepted, err := r.submit(ctx, req)
	if err != nil {
		r.rejected.Add(1)
		metrics.SubmissionsTotal.WithLabelValues(string(types.KindOf(err))).Inc()
		return types.Accepted{}, err
	}
	r.accepted.Add(1)
	metrics.SubmissionsTotal.WithLabelValues("accepted").Inc()
	return accepted, nil
}

func (r *Relay) submit(ctx context.Context, req types.SubmissionRequest) (types.Accepted, error) {
	if err := ctx.Err(); err != nil {
		return types.Accepted{}, err
	}

	cfg := r.cfgMgr.Get()

	// 1. Rate limit before the request touches anything else
	if cfg.Security.EnableRateLimiting && !r.limiter.TryAdmit(req.DeviceID, ratelimit.OpSubmit) {
		metrics.RateLimitDenialsTotal.WithLabelValues(ratelimit.OpSubmit).Inc()
		return types.Accepted{}, types.Ef(types.KindRateLimited, "device %s exceeded the submit window", req.DeviceID)
	}

	// 2. Shape validation
	raw, err := decodeRawHex(req.RawHex)
	if err != nil {
		return types.Accepted{}, err
	}
	if req.DeviceID == "" {
		return types.Accepted{}, types.E(types.KindInvalidInput, "device_id must not be empty")
	}
	if _, ok := cfg.Chain(req.ChainID); !ok {
		return types.Accepted{}, types.Ef(types.KindUnknownChain, "chain %d is not configured", req.ChainID)
	}
	priority := req.Priority
	if priority == "" {
		priority = types.PriorityNormal
	}
	if !priority.Valid() {
		return types.Accepted{}, types.Ef(types.KindInvalidInput, "unknown priority %q", string(req.Priority))
	}
	if len(req.Metadata) > 0 {
		encoded, err := json.Marshal(req.Metadata)
		if err != nil || len(encoded) > types.MaxMetadataBytes {
			return types.Accepted{}, types.E(types.KindInvalidInput, "metadata exceeds 4 KiB")
		}
	}

	// 3. Envelope sanity: the payload must parse as a typed transaction
	// envelope. Syntactic only; no nonce or balance checks.
	var envelope gethtypes.Transaction
	if err := envelope.UnmarshalBinary(raw); err != nil {
		return types.Accepted{}, types.Wrap(types.KindInvalidTransaction, "payload is not a valid transaction envelope", err)
	}

	// Early dedupe so duplicates never leave a stray pending record
	if existing, ok := r.queue.LookupFingerprint(raw); ok {
		return types.Accepted{}, types.Ef(types.KindDuplicate, "transaction already accepted as %s", existing).
			WithDetail("existing_id", existing)
	}

	tx := &types.Transaction{
		ID:         uuid.New().String(),
		Raw:        raw,
		ChainID:    req.ChainID,
		Priority:   priority,
		ReceivedAt: time.Now().UTC(),
		Status:     types.TxStatusQueued,
		DeviceID:   req.DeviceID,
		Metadata:   req.Metadata,
	}

	// 4. Durable pending record before the queue sees the transaction
	if err := r.store.SaveTransaction(*tx); err != nil {
		r.abandon(tx, "durable accept failed", err)
		return types.Accepted{}, err
	}

	// 5. Enqueue; QueueFull and a dedupe race both surface directly
	if err := r.queue.Enqueue(tx); err != nil {
		r.abandon(tx, "enqueue rejected", err)
		return types.Accepted{}, err
	}

	r.touchDevice(req.DeviceID)

	if err := r.store.AppendAudit(types.AuditRecord{
		Actor:     req.DeviceID,
		EventKind: types.EventTransactionAccepted,
		Resource:  tx.ID,
		Outcome:   "success",
		Details:   map[string]interface{}{"chain_id": tx.ChainID, "priority": string(tx.Priority)},
	}); err != nil {
		r.logger.Error().Err(err).Str("tx_id", tx.ID).Msg("Audit append failed")
	}
	metrics.AuditRecordsTotal.Inc()

	return types.Accepted{ID: tx.ID}, nil
}

// abandon records a submission that passed validation but failed to become
// durable or enqueued. The transaction is not accepted.
func (r *Relay) abandon(tx *types.Transaction, reason string, cause error) {
	fp := queue.FingerprintOf(tx.Raw)
	if err := r.store.AppendAudit(types.AuditRecord{
		Actor:     tx.DeviceID,
		EventKind: types.EventSubmissionAbandoned,
		Resource:  tx.ID,
		Outcome:   "failure",
		Details: map[string]interface{}{
			"reason":      reason,
			"cause":       cause.Error(),
			"fingerprint": hex.EncodeToString(fp[:]),
		},
	}); err != nil {
		r.logger.Error().Err(err).Str("tx_id", tx.ID).Msg("Abandon audit append failed")
	}
}

func (r *Relay) touchDevice(deviceID string) {
	logger := log.Device(log.Relay, deviceID)

	now := time.Now().UTC()
	device, ok, err := r.store.DeviceByID(deviceID)
	if err != nil {
		logger.Error().Err(err).Msg("Device lookup failed")
		return
	}
	if !ok {
		device = types.Device{DeviceID: deviceID, FirstSeen: now, Status: "active"}
	}
	device.LastSeen = now
	device.SubmissionCount++
	if err := r.store.SaveDevice(device); err != nil {
		logger.Error().Err(err).Msg("Device persist failed")
	}
}

// decodeRawHex validates and decodes the submission payload. The bound is
// on the hex body: even-length, within [2, 64 KiB] hex characters, with
// or without an 0x prefix.
func decodeRawHex(rawHex string) ([]byte, error) {
	body := strings.TrimPrefix(rawHex, "0x")
	if len(body) < 2 || len(body) > maxRawHexChars {
		return nil, types.Ef(types.KindInvalidInput, "raw_hex length %d outside bounds", len(body))
	}
	if len(body)%2 != 0 {
		return nil, types.E(types.KindInvalidInput, "raw_hex has odd length")
	}
	raw, err := hex.DecodeString(body)
	if err != nil {
		return nil, types.Wrap(types.KindInvalidInput, "raw_hex is not valid hex", err)
	}
	return raw, nil
}
