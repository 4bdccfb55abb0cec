package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/airchainpay/relay/pkg/types"
)

// auditRingSize bounds the in-memory window kept for query paths
const auditRingSize = 10_000

// auditLog is a line-delimited JSON append-only log with a bounded
// in-memory ring of the most recent records.
type auditLog struct {
	mu    sync.Mutex
	path  string
	file  *os.File
	fsync bool

	ring  []types.AuditRecord
	start int // index of the oldest record in ring
}

func newAuditLog(path string, fsync bool) (*auditLog, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	a := &auditLog{path: path, file: file, fsync: fsync}
	if err := a.warm(); err != nil {
		file.Close()
		return nil, err
	}
	return a, nil
}

// warm reloads the tail of the existing log into the ring
func (a *auditLog) warm() error {
	f, err := os.Open(a.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec types.AuditRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			// Skip corrupt lines rather than refuse to start; the
			// integrity check reports tampering separately.
			continue
		}
		a.push(rec)
	}
	return scanner.Err()
}

func (a *auditLog) push(rec types.AuditRecord) {
	if len(a.ring) < auditRingSize {
		a.ring = append(a.ring, rec)
		return
	}
	a.ring[a.start] = rec
	a.start = (a.start + 1) % auditRingSize
}

func (a *auditLog) append(rec types.AuditRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	if _, err := a.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	if a.fsync {
		if err := a.file.Sync(); err != nil {
			return fmt.Errorf("sync audit log: %w", err)
		}
	}

	a.push(rec)
	return nil
}

// recent returns up to limit records, newest first
func (a *auditLog) recent(limit int) []types.AuditRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(a.ring)
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]types.AuditRecord, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (a.start + n - 1 - i) % n
		out = append(out, a.ring[idx])
	}
	return out
}

// trim rewrites the log keeping only records within the horizon, preserving
// order, and logs the trim itself as a Retention event. Returns the number
// of records dropped.
func (a *auditLog) trim(horizon time.Duration) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := time.Now().UTC().Add(-horizon)

	src, err := os.Open(a.path)
	if err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(a.path), ".audit.tmp-*")
	if err != nil {
		src.Close()
		return 0, err
	}
	tmpName := tmp.Name()

	kept, dropped := 0, 0
	writer := bufio.NewWriter(tmp)
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec types.AuditRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			dropped++
			continue
		}
		if rec.Timestamp.Before(cutoff) {
			dropped++
			continue
		}
		writer.Write(scanner.Bytes())
		writer.WriteByte('\n')
		kept++
	}
	src.Close()
	if err := scanner.Err(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return 0, err
	}
	if err := writer.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return 0, err
	}

	// Swap the live handle over to the rewritten file
	if err := a.file.Close(); err != nil {
		os.Remove(tmpName)
		return 0, err
	}
	if err := os.Rename(tmpName, a.path); err != nil {
		os.Remove(tmpName)
		return 0, err
	}
	file, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return 0, err
	}
	a.file = file

	// Rebuild the ring from what survived
	a.ring = nil
	a.start = 0
	if err := a.warm(); err != nil {
		return dropped, err
	}

	rec := types.AuditRecord{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Actor:     "audit-retention",
		EventKind: types.EventRetention,
		Resource:  a.path,
		Outcome:   "success",
		Details:   map[string]interface{}{"kept": kept, "dropped": dropped},
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return dropped, err
	}
	if _, err := a.file.Write(append(line, '\n')); err != nil {
		return dropped, err
	}
	a.push(rec)

	return dropped, nil
}

func (a *auditLog) close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}
