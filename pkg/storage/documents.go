package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/airchainpay/relay/pkg/types"
)

// readDocument unmarshals a stored JSON document into out
func (s *FileStore) readDocument(name string, out interface{}) error {
	data, err := s.Read(name)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

// writeDocumentLocked marshals and commits a document under the write lock
func (s *FileStore) writeDocumentLocked(name string, doc interface{}) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	return s.writeLocked(name, data)
}

// SaveTransaction upserts one transaction record by id
func (s *FileStore) SaveTransaction(tx types.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var txs []types.Transaction
	if err := s.readDocument(transactionsFile, &txs); err != nil {
		return err
	}

	replaced := false
	for i := range txs {
		if txs[i].ID == tx.ID {
			txs[i] = tx
			replaced = true
			break
		}
	}
	if !replaced {
		txs = append(txs, tx)
	}
	return s.writeDocumentLocked(transactionsFile, txs)
}

// TransactionByID looks up one transaction record
func (s *FileStore) TransactionByID(id string) (types.Transaction, bool, error) {
	var txs []types.Transaction
	if err := s.readDocument(transactionsFile, &txs); err != nil {
		return types.Transaction{}, false, err
	}
	for _, tx := range txs {
		if tx.ID == id {
			return tx, true, nil
		}
	}
	return types.Transaction{}, false, nil
}

// Transactions returns records newest-first with limit/offset paging
func (s *FileStore) Transactions(limit, offset int) ([]types.Transaction, error) {
	var txs []types.Transaction
	if err := s.readDocument(transactionsFile, &txs); err != nil {
		return nil, err
	}

	// Stored order is append order; serve newest first
	out := make([]types.Transaction, 0, len(txs))
	for i := len(txs) - 1; i >= 0; i-- {
		out = append(out, txs[i])
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// TransactionsByDevice returns a device's records, newest first
func (s *FileStore) TransactionsByDevice(deviceID string, limit int) ([]types.Transaction, error) {
	var txs []types.Transaction
	if err := s.readDocument(transactionsFile, &txs); err != nil {
		return nil, err
	}

	var out []types.Transaction
	for i := len(txs) - 1; i >= 0; i-- {
		if txs[i].DeviceID == deviceID {
			out = append(out, txs[i])
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// SaveDevice upserts a device record
func (s *FileStore) SaveDevice(device types.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var devices []types.Device
	if err := s.readDocument(devicesFile, &devices); err != nil {
		return err
	}

	replaced := false
	for i := range devices {
		if devices[i].DeviceID == device.DeviceID {
			devices[i] = device
			replaced = true
			break
		}
	}
	if !replaced {
		devices = append(devices, device)
	}
	return s.writeDocumentLocked(devicesFile, devices)
}

// DeviceByID looks up one device record
func (s *FileStore) DeviceByID(deviceID string) (types.Device, bool, error) {
	var devices []types.Device
	if err := s.readDocument(devicesFile, &devices); err != nil {
		return types.Device{}, false, err
	}
	for _, d := range devices {
		if d.DeviceID == deviceID {
			return d, true, nil
		}
	}
	return types.Device{}, false, nil
}

// Devices returns all known devices
func (s *FileStore) Devices() ([]types.Device, error) {
	var devices []types.Device
	if err := s.readDocument(devicesFile, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// Incident is one recorded security incident
type Incident struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Kind      string                 `json:"kind"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// LogIncident appends a security incident and mirrors it into the audit log
func (s *FileStore) LogIncident(kind string, details map[string]interface{}) error {
	s.mu.Lock()

	var incidents []Incident
	if err := s.readDocument(incidentsFile, &incidents); err != nil {
		s.mu.Unlock()
		return err
	}
	incident := Incident{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Kind:      kind,
		Details:   details,
	}
	incidents = append(incidents, incident)
	if err := s.writeDocumentLocked(incidentsFile, incidents); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	return s.AppendAudit(types.AuditRecord{
		ID:        incident.ID,
		Actor:     "security",
		EventKind: types.EventSecurityIncident,
		Resource:  kind,
		Outcome:   "recorded",
		Details:   details,
	})
}

// Incidents returns all recorded incidents
func (s *FileStore) Incidents() ([]Incident, error) {
	var incidents []Incident
	if err := s.readDocument(incidentsFile, &incidents); err != nil {
		return nil, err
	}
	return incidents, nil
}

// SaveMetrics commits the relay counter snapshot
func (s *FileStore) SaveMetrics(snapshot types.MetricsSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeDocumentLocked(metricsFile, snapshot)
}

// Metrics returns the persisted counter snapshot
func (s *FileStore) Metrics() (types.MetricsSnapshot, error) {
	var snapshot types.MetricsSnapshot
	if err := s.readDocument(metricsFile, &snapshot); err != nil {
		return types.MetricsSnapshot{}, err
	}
	return snapshot, nil
}
