// Package backup creates pre-apply snapshots of managed files and restores
// them when an apply fails or an operator requests a rollback.
package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aetherlight/ctxsync/internal/checksum"
	"github.com/aetherlight/ctxsync/internal/logging"
	"github.com/aetherlight/ctxsync/internal/util"
)

const (
	// DirPerm is the permission for snapshot directories (rwxr-x---)
	DirPerm = 0o750
	// FilePerm is the permission for snapshot files (rw-r-----)
	FilePerm = 0o640

	// timestampLayout keys snapshot directories by creation time.
	timestampLayout = "20060102-150405"
)

// FileEntry records one file captured in a snapshot.
type FileEntry struct {
	Checksum string `json:"checksum"` // SHA-256 hex of the captured content
	Size     int64  `json:"size"`
}

// Snapshot describes one pre-apply backup.
type Snapshot struct {
	ID        string               `json:"id"`      // {version}-{timestamp}
	Version   string               `json:"version"` // target bundle version of the apply
	CreatedAt time.Time            `json:"created_at"`
	Files     map[string]FileEntry `json:"files"` // keyed by managed relative path

	dir         string
	projectRoot string
}

// Dir returns the snapshot directory on disk.
func (s *Snapshot) Dir() string {
	return s.dir
}

// Contains reports whether the snapshot captured the managed path.
func (s *Snapshot) Contains(rel string) bool {
	_, ok := s.Files[rel]
	return ok
}

// Create snapshots every managed path that currently exists on disk into a
// fresh directory under the project's backups location, preserving relative
// structure. Paths that vanish between preview and backup are skipped; the
// snapshot is a best-effort capture of what still exists.
func Create(projectRoot, version string, paths []string) (*Snapshot, error) {
	backupsDir := util.BackupsPath(projectRoot)
	if err := os.MkdirAll(backupsDir, DirPerm); err != nil {
		return nil, fmt.Errorf("failed to create backups directory: %w", err)
	}

	now := time.Now()

	// Mkdir (not MkdirAll) detects an existing directory, so two snapshots
	// taken within the same second get distinct IDs instead of sharing one.
	id := version + "-" + now.Format(timestampLayout)
	snapshotDir := filepath.Join(backupsDir, id)
	for n := 2; ; n++ {
		err := os.Mkdir(snapshotDir, DirPerm)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
		}
		id = fmt.Sprintf("%s-%s-%d", version, now.Format(timestampLayout), n)
		snapshotDir = filepath.Join(backupsDir, id)
	}

	snapshot := &Snapshot{
		ID:          id,
		Version:     version,
		CreatedAt:   now,
		Files:       make(map[string]FileEntry),
		dir:         snapshotDir,
		projectRoot: projectRoot,
	}

	log := logging.With(logging.Operation("backup"))

	for _, rel := range paths {
		sourcePath := filepath.Join(projectRoot, filepath.FromSlash(rel))

		// #nosec G304 - rel comes from the fixed managed-file sets
		content, err := os.ReadFile(sourcePath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read %q for snapshot: %w", rel, err)
		}

		destPath := filepath.Join(snapshotDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(destPath), DirPerm); err != nil {
			return nil, fmt.Errorf("failed to create snapshot subdirectory: %w", err)
		}
		if err := os.WriteFile(destPath, content, FilePerm); err != nil {
			return nil, fmt.Errorf("failed to write snapshot file %q: %w", rel, err)
		}

		snapshot.Files[rel] = FileEntry{
			Checksum: checksum.Digest(content),
			Size:     int64(len(content)),
		}

		log.Debug("snapshotted file", logging.Path(rel))
	}

	if err := saveManifest(snapshot); err != nil {
		return nil, err
	}

	log.Info("created snapshot",
		logging.Version(version),
		logging.Count(len(snapshot.Files)),
		logging.Path(snapshotDir),
	)

	return snapshot, nil
}

// Restore writes every captured file back to its place under the project
// root, verifying each file's checksum before touching the project.
func (s *Snapshot) Restore(projectRoot string) error {
	for rel, entry := range s.Files {
		if err := s.RestoreFile(projectRoot, rel, entry); err != nil {
			return err
		}
	}

	logging.Info("restored snapshot",
		logging.Version(s.Version),
		logging.Count(len(s.Files)),
	)

	return nil
}

// RestoreFile writes one captured file back under the project root.
func (s *Snapshot) RestoreFile(projectRoot, rel string, entry FileEntry) error {
	backupPath := filepath.Join(s.dir, filepath.FromSlash(rel))

	// #nosec G304 - backupPath is inside the snapshot directory
	content, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("failed to read snapshot file %q: %w", rel, err)
	}

	if got := checksum.Digest(content); got != entry.Checksum {
		return fmt.Errorf("snapshot file %q corrupted: checksum mismatch (expected %s, got %s)",
			rel, entry.Checksum, got)
	}

	destPath := filepath.Join(projectRoot, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(destPath), DirPerm); err != nil {
		return fmt.Errorf("failed to create directory for %q: %w", rel, err)
	}

	// Replace whatever currently occupies the path; a failed apply can leave
	// something other than a regular file behind.
	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to replace %q: %w", rel, err)
	}
	// #nosec G306 - restored managed files should be user readable
	if err := os.WriteFile(destPath, content, 0o644); err != nil {
		return fmt.Errorf("failed to restore %q: %w", rel, err)
	}

	return nil
}

// Verify checks every captured file against its recorded checksum.
func (s *Snapshot) Verify() error {
	for rel, entry := range s.Files {
		backupPath := filepath.Join(s.dir, filepath.FromSlash(rel))

		// #nosec G304 - backupPath is inside the snapshot directory
		content, err := os.ReadFile(backupPath)
		if err != nil {
			return fmt.Errorf("snapshot file missing: %q: %w", rel, err)
		}
		if got := checksum.Digest(content); got != entry.Checksum {
			return fmt.Errorf("snapshot file %q corrupted: checksum mismatch", rel)
		}
	}
	return nil
}

// Delete removes the snapshot directory.
func (s *Snapshot) Delete() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("failed to delete snapshot %q: %w", s.ID, err)
	}
	return nil
}
