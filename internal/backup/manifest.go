package backup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/aetherlight/ctxsync/internal/util"
)

// manifestFilename is the per-snapshot manifest written into each snapshot
// directory.
const manifestFilename = "snapshot.json"

// saveManifest writes the snapshot manifest into the snapshot directory.
func saveManifest(s *Snapshot) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot manifest: %w", err)
	}

	manifestPath := filepath.Join(s.dir, manifestFilename)
	if err := os.WriteFile(manifestPath, data, FilePerm); err != nil {
		return fmt.Errorf("failed to write snapshot manifest: %w", err)
	}

	return nil
}

// Load reads a snapshot by ID from the project's backups directory.
func Load(projectRoot, id string) (*Snapshot, error) {
	dir := filepath.Join(util.BackupsPath(projectRoot), id)
	manifestPath := filepath.Join(dir, manifestFilename)

	// #nosec G304 - manifestPath is inside the project's backups directory
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("snapshot %q not found: %w", id, err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot manifest for %q: %w", id, err)
	}
	if snapshot.Files == nil {
		snapshot.Files = make(map[string]FileEntry)
	}

	snapshot.dir = dir
	snapshot.projectRoot = projectRoot
	return &snapshot, nil
}

// List returns all snapshots for a project, newest first. Directories
// without a readable manifest are skipped.
func List(projectRoot string) ([]*Snapshot, error) {
	backupsDir := util.BackupsPath(projectRoot)

	entries, err := os.ReadDir(backupsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backups directory: %w", err)
	}

	var snapshots []*Snapshot
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		snapshot, err := Load(projectRoot, entry.Name())
		if err != nil {
			continue
		}
		snapshots = append(snapshots, snapshot)
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].CreatedAt.After(snapshots[j].CreatedAt)
	})

	return snapshots, nil
}
