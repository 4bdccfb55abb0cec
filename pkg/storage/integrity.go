package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/airchainpay/relay/pkg/log"
	"github.com/airchainpay/relay/pkg/types"
)

const (
	manifestFile = "integrity.json"
	auditFile    = "audit.log"

	transactionsFile = "transactions.json"
	devicesFile      = "devices.json"
	metricsFile      = "metrics.json"
	incidentsFile    = "incidents.json"
)

// FileStore implements Store on a flat data directory. Every Write is
// temp-and-rename with a SHA-256 manifest entry committed under the write
// lock; reads go straight to the bytes on disk.
type FileStore struct {
	dataDir string

	mu       sync.Mutex // guards writes, the manifest and document upserts
	manifest map[string]ManifestEntry

	audit  *auditLog
	logger zerolog.Logger

	retentionDays int
}

// Options tunes a FileStore
type Options struct {
	// RetentionDays bounds how long backup archives are kept by Cleanup
	RetentionDays int
	// FsyncAudit forces an fsync after every audit append
	FsyncAudit bool
}

// NewFileStore opens (or initializes) the data directory
func NewFileStore(dataDir string, opts Options) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	// Probe writability up front so startup can fail with a clear error
	probe := filepath.Join(dataDir, ".probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return nil, fmt.Errorf("data dir not writable: %w", err)
	}
	os.Remove(probe)

	if opts.RetentionDays <= 0 {
		opts.RetentionDays = 30
	}

	s := &FileStore{
		dataDir:       dataDir,
		manifest:      make(map[string]ManifestEntry),
		logger:        log.For(log.Storage),
		retentionDays: opts.RetentionDays,
	}

	if err := s.loadManifest(); err != nil {
		return nil, err
	}

	audit, err := newAuditLog(filepath.Join(dataDir, auditFile), opts.FsyncAudit)
	if err != nil {
		return nil, err
	}
	s.audit = audit

	// Seed the standard documents so readers never see ENOENT
	for name, empty := range map[string]string{
		transactionsFile: "[]",
		devicesFile:      "[]",
		incidentsFile:    "[]",
		metricsFile:      "{}",
	} {
		if _, ok := s.manifest[name]; !ok {
			if err := s.Write(name, []byte(empty)); err != nil {
				return nil, err
			}
		}
	}

	return s, nil
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dataDir, filepath.Base(name))
}

// Read returns the bytes of a stored document verbatim
func (s *FileStore) Read(name string) ([]byte, error) {
	return os.ReadFile(s.path(name))
}

// Write commits new bytes under name: hash, temp file, rename, manifest
// update. A failed write leaves the previous version and manifest intact.
func (s *FileStore) Write(name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(name, data)
}

func (s *FileStore) writeLocked(name string, data []byte) error {
	sum := sha256.Sum256(data)

	target := s.path(name)
	tmp, err := os.CreateTemp(s.dataDir, "."+filepath.Base(name)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp for %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp for %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp for %s: %w", name, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", name, err)
	}

	s.manifest[filepath.Base(name)] = ManifestEntry{
		SHA256:     hex.EncodeToString(sum[:]),
		Size:       int64(len(data)),
		ModifiedAt: time.Now().UTC(),
	}
	return s.saveManifestLocked()
}

func (s *FileStore) loadManifest() error {
	data, err := os.ReadFile(s.path(manifestFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	if err := json.Unmarshal(data, &s.manifest); err != nil {
		return fmt.Errorf("parse manifest: %w", err)
	}
	return nil
}

func (s *FileStore) saveManifestLocked() error {
	data, err := json.MarshalIndent(s.manifest, "", "  ")
	if err != nil {
		return err
	}

	target := s.path(manifestFile)
	tmp, err := os.CreateTemp(s.dataDir, ".integrity.tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, target)
}

// VerifyAll recomputes the hash of every manifest entry and reports files
// whose bytes diverge. Divergence is audited; the store never self-repairs.
func (s *FileStore) VerifyAll() ([]Violation, error) {
	s.mu.Lock()
	entries := make(map[string]ManifestEntry, len(s.manifest))
	for k, v := range s.manifest {
		entries[k] = v
	}
	s.mu.Unlock()

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	var violations []Violation
	for _, name := range names {
		entry := entries[name]
		data, err := os.ReadFile(s.path(name))
		if err != nil {
			violations = append(violations, Violation{Name: name, Expected: entry.SHA256, Actual: "unreadable: " + err.Error()})
			continue
		}
		sum := sha256.Sum256(data)
		actual := hex.EncodeToString(sum[:])
		if actual != entry.SHA256 {
			violations = append(violations, Violation{Name: name, Expected: entry.SHA256, Actual: actual})
		}
	}

	for _, v := range violations {
		s.logger.Error().Str("file", v.Name).Str("expected", v.Expected).Str("actual", v.Actual).Msg("Integrity violation detected")
		if err := s.AppendAudit(types.AuditRecord{
			Actor:     "integrity-check",
			EventKind: types.EventIntegrityViolation,
			Resource:  v.Name,
			Outcome:   "violation",
			Details:   map[string]interface{}{"expected": v.Expected, "actual": v.Actual},
		}); err != nil {
			return violations, err
		}
	}
	return violations, nil
}

// AppendAudit appends one record to the audit log
func (s *FileStore) AppendAudit(record types.AuditRecord) error {
	return s.audit.append(record)
}

// RecentAudit returns up to limit of the most recent audit records,
// newest first, from the in-memory ring.
func (s *FileStore) RecentAudit(limit int) []types.AuditRecord {
	return s.audit.recent(limit)
}

// TrimAudit drops records older than the horizon, rewriting the log
// atomically. The trim itself is logged as a Retention event.
func (s *FileStore) TrimAudit(horizon time.Duration) (int, error) {
	return s.audit.trim(horizon)
}

// Close releases the audit log file handle
func (s *FileStore) Close() error {
	return s.audit.close()
}
