package backup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/idreset/cmd/idreset/internal/ids"
)

// Manager defines the interface for backup operations.
//
// # Description
//
// Manager snapshots identifier state before destructive writes so an
// operator can restore it manually. Snapshots are written once and
// never mutated; there is no automatic restore in the reset path —
// RestoreBackup exists for out-of-band operator use only.
//
// # Thread Safety
//
// Implementations should be safe for concurrent use.
type Manager interface {
	// BackupBeforeOverwrite copies a file to a timestamped sibling
	// before it is overwritten. A missing source is not an error and
	// yields an empty backup path.
	BackupBeforeOverwrite(path string) (backupPath string, err error)

	// SnapshotValues persists the given identifier values as a
	// human-inspectable JSON snapshot next to the canonical store.
	SnapshotValues(values ids.Set) (snapshotPath string, err error)

	// ListBackups returns all backups for a path, newest first.
	ListBackups(originalPath string) ([]Info, error)

	// RestoreBackup restores a backup to its original location.
	RestoreBackup(backupPath string) error

	// CleanOldBackups removes backups older than maxAge and returns
	// how many were removed.
	CleanOldBackups(originalPath string, maxAge time.Duration) (int, error)
}

// Info describes a single backup on disk.
type Info struct {
	// Path is the full path to the backup.
	Path string

	// OriginalPath is the path that was backed up.
	OriginalPath string

	// CreatedAt is when the backup was created.
	CreatedAt time.Time

	// Size is the size in bytes.
	Size int64
}

// Config controls backup naming, location, and retention.
type Config struct {
	// MaxBackups is the maximum number of file backups retained per
	// path. Default: 5
	MaxBackups int

	// FileSuffix is appended before the timestamp on whole-file
	// backups. Default: ".restore_bak"
	FileSuffix string

	// SnapshotName is the base name for identifier value snapshots.
	// Default: "storage.json.bak"
	SnapshotName string

	// SnapshotDir is the directory value snapshots are written to.
	// Required for SnapshotValues.
	SnapshotDir string

	// TimeFormat is the timestamp layout embedded in backup names.
	// It has second resolution so re-runs on the same day never
	// overwrite an earlier snapshot. Default: "20060102_150405"
	TimeFormat string
}

// DefaultConfig returns the standard naming scheme with snapshots
// written to the given directory.
func DefaultConfig(snapshotDir string) Config {
	return Config{
		MaxBackups:   5,
		FileSuffix:   ".restore_bak",
		SnapshotName: "storage.json.bak",
		SnapshotDir:  snapshotDir,
		TimeFormat:   "20060102_150405",
	}
}

// FileManager implements Manager on the local filesystem.
//
// # Description
//
// Backs up files by creating timestamped copies alongside the
// original, so a backup is always on the same filesystem as the live
// file and visible to anyone inspecting the store directory.
//
// # Limitations
//
//   - Does not preserve extended attributes on all platforms
//   - Assumes sufficient disk space next to the live file
type FileManager struct {
	config Config
	now    func() time.Time
}

// NewFileManager creates a backup manager with the given config.
func NewFileManager(config Config) *FileManager {
	if config.MaxBackups <= 0 {
		config.MaxBackups = 5
	}
	if config.FileSuffix == "" {
		config.FileSuffix = ".restore_bak"
	}
	if config.SnapshotName == "" {
		config.SnapshotName = "storage.json.bak"
	}
	if config.TimeFormat == "" {
		config.TimeFormat = "20060102_150405"
	}
	return &FileManager{config: config, now: time.Now}
}

// BackupBeforeOverwrite copies path to a timestamped sibling.
//
// # Outputs
//
//   - backupPath: Path of the created copy (empty if the source does
//     not exist — nothing to back up is not an error)
//   - error: Non-nil if the copy failed; callers must then skip the
//     destructive write for that backend
func (m *FileManager) BackupBeforeOverwrite(path string) (string, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("refusing to back up directory %s", path)
	}

	backupPath := fmt.Sprintf("%s%s.%s", path, m.config.FileSuffix, m.now().Format(m.config.TimeFormat))
	if err := copyFile(path, backupPath, info.Mode()); err != nil {
		return "", err
	}

	// Rotation best-effort: the backup itself already succeeded.
	_ = m.rotate(path)

	return backupPath, nil
}

// SnapshotValues writes the identifier values as an indented JSON
// document named {SnapshotName}.{timestamp} in SnapshotDir.
func (m *FileManager) SnapshotValues(values ids.Set) (string, error) {
	if len(values) == 0 {
		return "", fmt.Errorf("no identifier values to snapshot")
	}
	if m.config.SnapshotDir == "" {
		return "", fmt.Errorf("snapshot directory not configured")
	}

	data, err := json.MarshalIndent(values, "", "    ")
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}

	name := fmt.Sprintf("%s.%s", m.config.SnapshotName, m.now().Format(m.config.TimeFormat))
	snapshotPath := filepath.Join(m.config.SnapshotDir, name)
	if err := os.WriteFile(snapshotPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write snapshot %s: %w", snapshotPath, err)
	}

	return snapshotPath, nil
}

// ListBackups returns all file backups for originalPath, newest first.
func (m *FileManager) ListBackups(originalPath string) ([]Info, error) {
	dir := filepath.Dir(originalPath)
	prefix := filepath.Base(originalPath) + m.config.FileSuffix + "."

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var backups []Info
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		createdAt, err := time.Parse(m.config.TimeFormat, strings.TrimPrefix(name, prefix))
		if err != nil {
			continue
		}

		backups = append(backups, Info{
			Path:         filepath.Join(dir, name),
			OriginalPath: originalPath,
			CreatedAt:    createdAt,
			Size:         info.Size(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})

	return backups, nil
}

// ListSnapshots returns the identifier value snapshots in SnapshotDir,
// newest first. Snapshots use the {SnapshotName}.{timestamp} naming
// scheme and are not tied to a single original file, so they do not
// appear in ListBackups.
func (m *FileManager) ListSnapshots() ([]Info, error) {
	if m.config.SnapshotDir == "" {
		return nil, nil
	}
	prefix := m.config.SnapshotName + "."

	entries, err := os.ReadDir(m.config.SnapshotDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot directory: %w", err)
	}

	var snapshots []Info
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		createdAt, err := time.Parse(m.config.TimeFormat, strings.TrimPrefix(name, prefix))
		if err != nil {
			continue
		}

		snapshots = append(snapshots, Info{
			Path:      filepath.Join(m.config.SnapshotDir, name),
			CreatedAt: createdAt,
			Size:      info.Size(),
		})
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].CreatedAt.After(snapshots[j].CreatedAt)
	})

	return snapshots, nil
}

// RestoreBackup copies a backup over its original location.
//
// Out-of-band operator tool; the reset orchestrator never calls this.
func (m *FileManager) RestoreBackup(backupPath string) error {
	originalPath := m.originalPathFromBackup(backupPath)
	if originalPath == "" {
		return fmt.Errorf("cannot determine original path from backup: %s", backupPath)
	}

	info, err := os.Stat(backupPath)
	if err != nil {
		return fmt.Errorf("failed to stat backup: %w", err)
	}

	if err := copyFile(backupPath, originalPath, info.Mode()); err != nil {
		return fmt.Errorf("failed to restore backup: %w", err)
	}

	return nil
}

// CleanOldBackups removes file backups older than maxAge.
func (m *FileManager) CleanOldBackups(originalPath string, maxAge time.Duration) (int, error) {
	backups, err := m.ListBackups(originalPath)
	if err != nil {
		return 0, err
	}

	cutoff := m.now().Add(-maxAge)
	removed := 0
	for _, b := range backups {
		if b.CreatedAt.Before(cutoff) {
			if err := os.Remove(b.Path); err != nil {
				continue
			}
			removed++
		}
	}

	return removed, nil
}

// rotate removes the oldest backups beyond MaxBackups.
func (m *FileManager) rotate(originalPath string) error {
	backups, err := m.ListBackups(originalPath)
	if err != nil {
		return err
	}
	for i := m.config.MaxBackups; i < len(backups); i++ {
		os.Remove(backups[i].Path)
	}
	return nil
}

// originalPathFromBackup strips the suffix and timestamp.
func (m *FileManager) originalPathFromBackup(backupPath string) string {
	dir := filepath.Dir(backupPath)
	base := filepath.Base(backupPath)

	idx := strings.Index(base, m.config.FileSuffix+".")
	if idx == -1 {
		return ""
	}
	return filepath.Join(dir, base[:idx])
}

// copyFile copies src to dst preserving the file mode.
func copyFile(src, dst string, mode os.FileMode) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", src, err)
	}
	if err := os.WriteFile(dst, data, mode.Perm()); err != nil {
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return nil
}

// Compile-time interface check
var _ Manager = (*FileManager)(nil)
