package sync

import (
	"fmt"
	"path/filepath"

	"github.com/aetherlight/ctxsync/internal/bundle"
	"github.com/aetherlight/ctxsync/internal/checksum"
	"github.com/aetherlight/ctxsync/internal/logging"
	"github.com/aetherlight/ctxsync/internal/manifest"
	"github.com/aetherlight/ctxsync/internal/mode"
)

// BuildPreview compares the bundle, the last-synced record, and the on-disk
// state of every managed file and produces the action plan. record is nil
// for a never-synced project. When deep is false, a record whose reference
// version already matches the bundle short-circuits to "up to date" without
// scanning checksums.
func BuildPreview(projectRoot string, record *manifest.Record, b *bundle.Bundle, m mode.Mode, deep bool) (*Preview, error) {
	preview := &Preview{
		CurrentVersion: manifest.InitialVersion,
		TargetVersion:  b.Version(),
		Mode:           m,
	}

	paths := mode.Files(m)

	// First run: everything the bundle ships is new. No on-disk comparison
	// is performed and no conflict is possible.
	if record == nil {
		for _, rel := range paths {
			if !b.Has(rel) {
				logging.Debug("bundle does not ship managed path, skipping",
					logging.Path(rel),
				)
				continue
			}
			refSum, err := b.Checksum(rel)
			if err != nil {
				return nil, err
			}
			preview.Actions = append(preview.Actions, FileAction{
				Path:              rel,
				Action:            ActionAdded,
				ReferenceChecksum: refSum,
				Message:           "new managed file",
			})
		}
		preview.HasUpdates = len(preview.Actions) > 0
		return preview, nil
	}

	preview.CurrentVersion = record.ReferenceVersion

	// Version match short-circuit. The version string is trusted as sole
	// truth on the fast path; deep re-scans checksums anyway.
	if record.ReferenceVersion == b.Version() && !deep {
		logging.Debug("reference version matches, no update",
			logging.Version(b.Version()),
		)
		return preview, nil
	}

	for _, rel := range paths {
		if !b.Has(rel) {
			logging.Debug("bundle does not ship managed path, skipping",
				logging.Path(rel),
			)
			continue
		}

		refSum, err := b.Checksum(rel)
		if err != nil {
			return nil, err
		}

		onDiskSum, err := checksum.File(filepath.Join(projectRoot, filepath.FromSlash(rel)))
		if err != nil {
			return nil, fmt.Errorf("failed to checksum %q: %w", rel, err)
		}

		// Absent from disk entirely: recreate it, no conflict possible.
		if onDiskSum == "" {
			preview.Actions = append(preview.Actions, FileAction{
				Path:              rel,
				Action:            ActionAdded,
				ReferenceChecksum: refSum,
				Message:           "missing from project",
			})
			continue
		}

		// Drift between the recorded checksum and the on-disk checksum means
		// the user edited the file after the engine last wrote it. The edit
		// is flagged regardless of whether it happens to match the new
		// reference content.
		stored := record.FileChecksum(rel)
		if stored != "" && onDiskSum != stored {
			preview.Actions = append(preview.Actions, FileAction{
				Path:              rel,
				Action:            ActionConflict,
				ReferenceChecksum: refSum,
				OnDiskChecksum:    onDiskSum,
				UserModified:      true,
				Message:           "user modified since last sync",
			})
			continue
		}

		if refSum != onDiskSum {
			preview.Actions = append(preview.Actions, FileAction{
				Path:              rel,
				Action:            ActionModified,
				ReferenceChecksum: refSum,
				OnDiskChecksum:    onDiskSum,
				Message:           "bundle content changed",
			})
			continue
		}

		// Already current.
		logging.Debug("managed file already matches bundle",
			logging.Path(rel),
		)
	}

	preview.HasUpdates = len(preview.Actions) > 0
	return preview, nil
}
