// Package manifest persists the per-project sync manifest, the record of
// which bundle version each managed file was last synced at.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aetherlight/ctxsync/internal/logging"
)

// SchemaVersion is the current version of the manifest format.
const SchemaVersion = "1.0"

// InitialVersion is the sentinel reference version for a never-synced project.
const InitialVersion = "0.0.0"

// FileRecord records the state of one managed file at the moment the engine
// last wrote it.
type FileRecord struct {
	// SyncedVersion is the bundle version in effect when this file was written.
	SyncedVersion string `json:"syncedVersion"`
	// Checksum is the SHA-256 hex digest of the content the engine wrote.
	// It drifts from the on-disk digest when the user edits the file, and
	// that drift is the conflict signal.
	Checksum string `json:"checksum"`
	// LastModified is informational only.
	LastModified time.Time `json:"lastModified,omitempty"`
}

// Record is the persisted sync manifest for one project.
type Record struct {
	Schema           string                `json:"schema,omitempty"`
	ReferenceVersion string                `json:"referenceVersion"`
	Mode             string                `json:"mode"`
	LastSyncedAt     time.Time             `json:"lastSyncedAt"`
	Files            map[string]FileRecord `json:"files"`
}

// NewRecord returns an empty record for the given mode.
func NewRecord(mode string) *Record {
	return &Record{
		Schema:           SchemaVersion,
		ReferenceVersion: InitialVersion,
		Mode:             mode,
		Files:            make(map[string]FileRecord),
	}
}

// FileChecksum returns the recorded checksum for path, or "" if the path has
// no record.
func (r *Record) FileChecksum(path string) string {
	if r == nil {
		return ""
	}
	if fr, ok := r.Files[path]; ok {
		return fr.Checksum
	}
	return ""
}

// Load reads the manifest at path. A missing file returns (nil, nil): the
// project has never been synced. Malformed content is logged and treated the
// same way, so a corrupted manifest never blocks future syncs.
func Load(path string) (*Record, error) {
	// #nosec G304 - path is the project-relative manifest location
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read manifest %q: %w", path, err)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		logging.Warn("manifest is malformed, treating project as never synced",
			logging.Path(path),
			logging.Err(err),
		)
		return nil, nil
	}

	if record.Files == nil {
		record.Files = make(map[string]FileRecord)
	}

	return &record, nil
}

// Save writes the full record to path atomically: the document is written to
// a temp file in the same directory and renamed into place, so a crash
// mid-write can never leave a half-updated manifest behind.
func Save(path string, record *Record) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	if record.Schema == "" {
		record.Schema = SchemaVersion
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".sync-manifest-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp manifest: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp manifest: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace manifest: %w", err)
	}

	logging.Debug("manifest saved",
		logging.Path(path),
		logging.Version(record.ReferenceVersion),
		logging.Count(len(record.Files)),
	)

	return nil
}
