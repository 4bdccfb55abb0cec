package storage

import (
	"time"

	"github.com/airchainpay/relay/pkg/types"
)

// ManifestEntry is one integrity manifest record for a stored file
type ManifestEntry struct {
	SHA256     string    `json:"sha256"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Violation reports a file whose on-disk hash diverged from its manifest
type Violation struct {
	Name     string `json:"name"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// Store defines the relay's persistence interface: content-addressed named
// documents, an append-only audit log, and snapshot backups.
type Store interface {
	// Raw documents
	Read(name string) ([]byte, error)
	Write(name string, data []byte) error
	VerifyAll() ([]Violation, error)

	// Audit log
	AppendAudit(record types.AuditRecord) error
	RecentAudit(limit int) []types.AuditRecord
	TrimAudit(horizon time.Duration) (int, error)

	// Transactions
	SaveTransaction(tx types.Transaction) error
	TransactionByID(id string) (types.Transaction, bool, error)
	Transactions(limit, offset int) ([]types.Transaction, error)
	TransactionsByDevice(deviceID string, limit int) ([]types.Transaction, error)

	// Devices
	SaveDevice(device types.Device) error
	DeviceByID(deviceID string) (types.Device, bool, error)
	Devices() ([]types.Device, error)

	// Metrics snapshot
	SaveMetrics(snapshot types.MetricsSnapshot) error
	Metrics() (types.MetricsSnapshot, error)

	// Security incidents
	LogIncident(kind string, details map[string]interface{}) error
	Incidents() ([]Incident, error)

	// Backups
	Backup() (string, error)
	Cleanup() error

	// Utility
	Close() error
}
