package types

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Priority orders transactions within the queue
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank returns the numeric weight of a priority (higher runs first)
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	case PriorityLow:
		return 0
	default:
		return 1
	}
}

// Valid reports whether p is a recognized priority
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// TxStatus represents the lifecycle state of a relayed transaction
type TxStatus string

const (
	TxStatusQueued         TxStatus = "queued"
	TxStatusProcessing     TxStatus = "processing"
	TxStatusRequeued       TxStatus = "requeued"
	TxStatusConfirmed      TxStatus = "confirmed"
	TxStatusFailedTerminal TxStatus = "failed_terminal"
)

// Terminal reports whether the status is absorbing
func (s TxStatus) Terminal() bool {
	return s == TxStatusConfirmed || s == TxStatusFailedTerminal
}

// Live reports whether the transaction still occupies queue capacity
func (s TxStatus) Live() bool {
	return s == TxStatusQueued || s == TxStatusProcessing || s == TxStatusRequeued
}

// Transaction is a signed transaction accepted for relay. Immutable once
// accepted; workers update only Status, Attempts, Hash and LastError.
type Transaction struct {
	ID         string            `json:"id"`
	Raw        hexutil.Bytes     `json:"raw"`
	ChainID    uint64            `json:"chain_id"`
	Priority   Priority          `json:"priority"`
	ReceivedAt time.Time         `json:"received_at"`
	Status     TxStatus          `json:"status"`
	Attempts   int               `json:"attempts"`
	LastError  string            `json:"last_error,omitempty"`
	Hash       *common.Hash      `json:"hash,omitempty"`
	DeviceID   string            `json:"device_id,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// MaxMetadataBytes bounds the JSON-encoded size of Transaction.Metadata
const MaxMetadataBytes = 4 * 1024

// SubmissionRequest is the transport-agnostic ingress shape. HTTP and BLE
// adapters both reduce to this.
type SubmissionRequest struct {
	RawHex   string            `json:"raw_hex"`
	ChainID  uint64            `json:"chain_id"`
	Priority Priority          `json:"priority,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	DeviceID string            `json:"device_id"`
}

// Accepted acknowledges a durable accept of a submission
type Accepted struct {
	ID string `json:"id"`
}

// ChainConfig describes one EVM-compatible network the relay forwards to
type ChainConfig struct {
	ChainID         uint64  `json:"chain_id" yaml:"chain_id"`
	Name            string  `json:"name" yaml:"name"`
	RPCURL          string  `json:"rpc_url" yaml:"rpc_url"`
	ExplorerURL     string  `json:"explorer_url,omitempty" yaml:"explorer_url,omitempty"`
	ContractAddress string  `json:"contract_address,omitempty" yaml:"contract_address,omitempty"`
	NativeSymbol    string  `json:"native_symbol,omitempty" yaml:"native_symbol,omitempty"`
	MaxGasLimit     *uint64 `json:"max_gas_limit,omitempty" yaml:"max_gas_limit,omitempty"`
	Confirmations   uint64  `json:"confirmations,omitempty" yaml:"confirmations,omitempty"`
}

// Device tracks a submitting client device
type Device struct {
	DeviceID        string    `json:"device_id"`
	FirstSeen       time.Time `json:"first_seen"`
	LastSeen        time.Time `json:"last_seen"`
	Status          string    `json:"status"`
	SubmissionCount uint64    `json:"submission_count"`
}

// EventKind classifies audit records
type EventKind string

const (
	EventTransactionAccepted  EventKind = "TransactionAccepted"
	EventTransactionConfirmed EventKind = "TransactionConfirmed"
	EventTransactionFailed    EventKind = "TransactionFailed"
	EventRpcAttempt           EventKind = "RpcAttempt"
	EventSubmissionAbandoned  EventKind = "SubmissionAbandoned"
	EventIntegrityViolation   EventKind = "IntegrityViolation"
	EventRetention            EventKind = "Retention"
	EventConfigReloaded       EventKind = "ConfigReloaded"
	EventConfigRejected       EventKind = "ConfigRejected"
	EventBackupCreated        EventKind = "BackupCreated"
	EventCircuitStateChange   EventKind = "CircuitStateChange"
	EventSecurityIncident     EventKind = "SecurityIncident"
)

// AuditRecord is one append-only audit log entry
type AuditRecord struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Actor     string                 `json:"actor"`
	EventKind EventKind              `json:"event_kind"`
	Resource  string                 `json:"resource"`
	Outcome   string                 `json:"outcome"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// TxStatusView is the read-side projection served by status queries
type TxStatusView struct {
	ID         string       `json:"id"`
	ChainID    uint64       `json:"chain_id"`
	Priority   Priority     `json:"priority"`
	Status     TxStatus     `json:"status"`
	Attempts   int          `json:"attempts"`
	Hash       *common.Hash `json:"hash,omitempty"`
	LastError  string       `json:"last_error,omitempty"`
	ReceivedAt time.Time    `json:"received_at"`
}

// QueueStats summarizes queue occupancy by status
type QueueStats struct {
	Depth          int `json:"depth"`
	Queued         int `json:"queued"`
	Processing     int `json:"processing"`
	Requeued       int `json:"requeued"`
	Confirmed      int `json:"confirmed"`
	FailedTerminal int `json:"failed_terminal"`
	Capacity       int `json:"capacity"`
}

// BreakerState mirrors the three circuit breaker states
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half-open"
)

// BreakerStatus is the operator view of one circuit breaker
type BreakerStatus struct {
	Name                 string       `json:"name"`
	State                BreakerState `json:"state"`
	ConsecutiveFailures  uint32       `json:"consecutive_failures"`
	ConsecutiveSuccesses uint32       `json:"consecutive_successes"`
	Requests             uint32       `json:"requests"`
}

// MetricsSnapshot is the persisted relay counter set (metrics.json)
type MetricsSnapshot struct {
	SubmissionsAccepted uint64    `json:"submissions_accepted"`
	SubmissionsRejected uint64    `json:"submissions_rejected"`
	Confirmed           uint64    `json:"confirmed"`
	Failed              uint64    `json:"failed"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// ReceiptStatus is the outcome of confirmation tracking
type ReceiptStatus string

const (
	ReceiptPending   ReceiptStatus = "pending"
	ReceiptMined     ReceiptStatus = "mined"
	ReceiptConfirmed ReceiptStatus = "confirmed"
	ReceiptTimeout   ReceiptStatus = "timeout"
)

// Receipt is the minimal receipt view the relay tracks
type Receipt struct {
	Status      ReceiptStatus `json:"status"`
	BlockNumber uint64        `json:"block_number,omitempty"`
}
