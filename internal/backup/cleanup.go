package backup

import (
	"fmt"
	"time"

	"github.com/aetherlight/ctxsync/internal/logging"
)

// CleanupOptions configures snapshot cleanup behavior
type CleanupOptions struct {
	// MaxSnapshots limits the number of snapshots to keep (0 = unlimited)
	MaxSnapshots int

	// MaxAge is the maximum age of snapshots to keep (0 = unlimited)
	MaxAge time.Duration

	// KeepAtLeastOne ensures the newest snapshot is always kept
	KeepAtLeastOne bool

	// DryRun previews what would be deleted without actually deleting
	DryRun bool
}

// DefaultCleanupOptions returns sensible defaults for cleanup
func DefaultCleanupOptions() CleanupOptions {
	return CleanupOptions{
		MaxSnapshots:   10,
		MaxAge:         30 * 24 * time.Hour,
		KeepAtLeastOne: true,
	}
}

// Cleanup removes old snapshots based on the specified options and returns
// the IDs of the snapshots it deleted (or would delete, under DryRun).
func Cleanup(projectRoot string, opts CleanupOptions) ([]string, error) {
	snapshots, err := List(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	var deleted []string
	now := time.Now()

	for i, snapshot := range snapshots {
		if opts.KeepAtLeastOne && i == 0 {
			continue
		}

		expired := opts.MaxAge > 0 && now.Sub(snapshot.CreatedAt) > opts.MaxAge
		excess := opts.MaxSnapshots > 0 && i >= opts.MaxSnapshots

		if !expired && !excess {
			continue
		}

		if !opts.DryRun {
			if err := snapshot.Delete(); err != nil {
				return deleted, err
			}
		}
		deleted = append(deleted, snapshot.ID)

		logging.Debug("pruned snapshot",
			logging.Operation("cleanup"),
			logging.Version(snapshot.Version),
			logging.Path(snapshot.Dir()),
		)
	}

	return deleted, nil
}
