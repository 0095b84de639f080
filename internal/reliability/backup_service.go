// Package reliability snapshots the SQLite databases, ships them to object
// storage and keeps them healthy.
package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	backupPrefix     = "folio-backup-"
	backupSuffix     = ".tar.gz"
	backupTimeLayout = "2006-01-02-150405"
	manifestName     = "backup-manifest.json"
	minBackupsToKeep = 3
	manifestVersion  = "1"
)

// Snapshotter writes a consistent copy of a database to a path
type Snapshotter interface {
	SnapshotTo(ctx context.Context, dest string) error
}

// BackupManifest is stored inside every archive
type BackupManifest struct {
	Timestamp time.Time          `json:"timestamp"`
	ID        string             `json:"id"`
	Version   string             `json:"version"`
	Databases []DatabaseManifest `json:"databases"`
}

// DatabaseManifest describes one database file in the archive
type DatabaseManifest struct {
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	Checksum  string `json:"checksum"`
	SizeBytes int64  `json:"size_bytes"`
}

// BackupInfo describes a backup stored remotely
type BackupInfo struct {
	Timestamp time.Time `json:"timestamp"`
	Key       string    `json:"key"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// BackupResult describes a completed upload
type BackupResult struct {
	Manifest  BackupManifest `json:"manifest"`
	Key       string         `json:"key"`
	SizeBytes int64          `json:"size_bytes"`
	Took      time.Duration  `json:"took_ms"`
}

// BackupService snapshots databases and uploads them as a tar.gz archive
type BackupService struct {
	store     ObjectStore
	databases map[string]Snapshotter
	dataDir   string
	now       func() time.Time
	log       zerolog.Logger
}

// NewBackupService creates a new backup service
func NewBackupService(
	store ObjectStore,
	databases map[string]Snapshotter,
	dataDir string,
	log zerolog.Logger,
) *BackupService {
	return &BackupService{
		store:     store,
		databases: databases,
		dataDir:   dataDir,
		now:       time.Now,
		log:       log.With().Str("service", "backup").Logger(),
	}
}

// DatabaseNames returns the backed-up database names, sorted
func (s *BackupService) DatabaseNames() []string {
	names := make([]string, 0, len(s.databases))
	for name := range s.databases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CreateAndUploadBackup snapshots every database, archives the snapshots
// with a checksum manifest and uploads the archive.
func (s *BackupService) CreateAndUploadBackup(ctx context.Context) (*BackupResult, error) {
	started := time.Now()
	stamp := s.now().UTC()
	id := uuid.NewString()
	log := s.log.With().Str("backup_id", id).Logger()
	log.Info().Msg("Starting backup")

	stagingDir, err := os.MkdirTemp(s.dataDir, "backup-staging-")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	manifest := BackupManifest{
		Timestamp: stamp,
		ID:        id,
		Version:   manifestVersion,
	}
	files := make([]string, 0, len(s.databases)+1)

	for _, name := range s.DatabaseNames() {
		filename := name + ".db"
		dest := filepath.Join(stagingDir, filename)
		if err := s.databases[name].SnapshotTo(ctx, dest); err != nil {
			return nil, fmt.Errorf("failed to snapshot %s: %w", name, err)
		}

		info, err := os.Stat(dest)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s snapshot: %w", name, err)
		}
		checksum, err := fileChecksum(dest)
		if err != nil {
			return nil, fmt.Errorf("failed to checksum %s: %w", name, err)
		}

		manifest.Databases = append(manifest.Databases, DatabaseManifest{
			Name:      name,
			Filename:  filename,
			Checksum:  checksum,
			SizeBytes: info.Size(),
		})
		files = append(files, filename)
		log.Debug().Str("database", name).Int64("size", info.Size()).Msg("Database snapshotted")
	}

	if err := writeManifest(filepath.Join(stagingDir, manifestName), manifest); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}
	files = append(files, manifestName)

	key := BackupKey(stamp)
	archivePath := filepath.Join(stagingDir, key)
	if err := createArchive(archivePath, stagingDir, files); err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}

	archive, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer archive.Close()

	info, err := archive.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}

	if err := s.store.Upload(ctx, key, archive, info.Size()); err != nil {
		return nil, err
	}

	result := &BackupResult{
		Manifest:  manifest,
		Key:       key,
		SizeBytes: info.Size(),
		Took:      time.Since(started),
	}
	log.Info().
		Str("key", key).
		Int64("size_bytes", result.SizeBytes).
		Dur("took", result.Took).
		Msg("Backup uploaded")

	return result, nil
}

// ListBackups lists stored backups, newest first
func (s *BackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.store.List(ctx, backupPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	now := s.now()
	backups := make([]BackupInfo, 0, len(objects))
	for _, obj := range objects {
		stamp, ok := ParseBackupKey(obj.Key)
		if !ok {
			s.log.Warn().Str("key", obj.Key).Msg("Skipping object with unparseable backup key")
			continue
		}
		backups = append(backups, BackupInfo{
			Timestamp: stamp,
			Key:       obj.Key,
			SizeBytes: obj.Size,
			AgeHours:  int64(now.Sub(stamp).Hours()),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// RotateOldBackups deletes backups older than retentionDays, always keeping
// the newest three. A retention of zero keeps everything.
func (s *BackupService) RotateOldBackups(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	backups, err := s.ListBackups(ctx)
	if err != nil {
		return 0, err
	}
	if len(backups) <= minBackupsToKeep {
		return 0, nil
	}

	cutoff := s.now().AddDate(0, 0, -retentionDays)
	deleted := 0
	for _, b := range backups[minBackupsToKeep:] {
		if !b.Timestamp.Before(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, b.Key); err != nil {
			s.log.Error().Err(err).Str("key", b.Key).Msg("Failed to delete old backup")
			continue
		}
		deleted++
	}

	s.log.Info().
		Int("deleted", deleted).
		Int("remaining", len(backups)-deleted).
		Msg("Backup rotation completed")
	return deleted, nil
}

// BackupKey is the object key for a backup taken at t
func BackupKey(t time.Time) string {
	return backupPrefix + t.UTC().Format(backupTimeLayout) + backupSuffix
}

// ParseBackupKey recovers the timestamp from a backup key
func ParseBackupKey(key string) (time.Time, bool) {
	name := filepath.Base(key)
	if !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, backupSuffix) {
		return time.Time{}, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(name, backupPrefix), backupSuffix)
	t, err := time.Parse(backupTimeLayout, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}

func writeManifest(path string, m BackupManifest) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

// createArchive writes the named files from dir into a tar.gz at path
func createArchive(path, dir string, names []string) (err error) {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	for _, name := range names {
		if err := addFileToArchive(tw, filepath.Join(dir, name), name); err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", name, err)
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

func addFileToArchive(tw *tar.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    name,
		Size:    info.Size(),
		Mode:    int64(info.Mode().Perm()),
		ModTime: info.ModTime(),
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}
