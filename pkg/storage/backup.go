package storage

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/airchainpay/relay/pkg/types"
)

const backupDir = "backups"

// Backup writes a tar.gz snapshot of every stored document plus the audit
// log into the backups directory and returns the archive path.
func (s *FileStore) Backup() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.dataDir, backupDir)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	name := fmt.Sprintf("backup_%s.tar.gz", time.Now().UTC().Format("20060102_150405"))
	target := filepath.Join(dir, name)

	out, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("create backup archive: %w", err)
	}
	gw := gzip.NewWriter(out)
	tw := tar.NewWriter(gw)

	members := make([]string, 0, len(s.manifest)+2)
	for file := range s.manifest {
		members = append(members, file)
	}
	members = append(members, manifestFile, auditFile)

	for _, member := range members {
		if err := addToArchive(tw, s.path(member), member); err != nil {
			tw.Close()
			gw.Close()
			out.Close()
			os.Remove(target)
			return "", fmt.Errorf("archive %s: %w", member, err)
		}
	}

	if err := tw.Close(); err != nil {
		gw.Close()
		out.Close()
		os.Remove(target)
		return "", err
	}
	if err := gw.Close(); err != nil {
		out.Close()
		os.Remove(target)
		return "", err
	}
	if err := out.Close(); err != nil {
		os.Remove(target)
		return "", err
	}

	s.logger.Info().Str("archive", target).Msg("Backup created")
	if err := s.audit.append(types.AuditRecord{
		Actor:     "backup",
		EventKind: types.EventBackupCreated,
		Resource:  name,
		Outcome:   "success",
	}); err != nil {
		return target, err
	}
	return target, nil
}

func addToArchive(tw *tar.Writer, path, name string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = name
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}

// Cleanup removes backup archives older than the retention horizon
func (s *FileStore) Cleanup() error {
	dir := filepath.Join(s.dataDir, backupDir)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-time.Duration(s.retentionDays) * 24 * time.Hour)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "backup_") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
				s.logger.Warn().Err(err).Str("archive", entry.Name()).Msg("Failed to remove expired backup")
				continue
			}
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("Expired backups removed")
	}
	return nil
}

// BackupScheduler periodically snapshots the store and enforces retention
type BackupScheduler struct {
	store    *FileStore
	interval time.Duration
	stopCh   chan struct{}
}

// NewBackupScheduler creates a scheduler; interval <= 0 disables it
func NewBackupScheduler(store *FileStore, interval time.Duration) *BackupScheduler {
	return &BackupScheduler{
		store:    store,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the backup loop
func (b *BackupScheduler) Start() {
	if b.interval <= 0 {
		return
	}
	go b.run()
}

// Stop stops the backup loop
func (b *BackupScheduler) Stop() {
	close(b.stopCh)
}

func (b *BackupScheduler) run() {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := b.store.Backup(); err != nil {
				b.store.logger.Error().Err(err).Msg("Periodic backup failed")
			}
			if err := b.store.Cleanup(); err != nil {
				b.store.logger.Error().Err(err).Msg("Backup cleanup failed")
			}
		case <-b.stopCh:
			return
		}
	}
}
