package sync

import (
	"fmt"
	"strings"

	"github.com/aetherlight/ctxsync/internal/mode"
)

// Action represents the planned or taken action for a managed file.
type Action string

const (
	// ActionAdded indicates the file does not exist on disk and will be created.
	ActionAdded Action = "added"

	// ActionModified indicates the file will be overwritten with bundle content.
	ActionModified Action = "modified"

	// ActionConflict indicates the file was edited by the user since the last
	// sync. Overwrite is still offered; the status exists to inform the caller
	// before they approve the apply.
	ActionConflict Action = "conflict"

	// ActionSkipped indicates the file was not touched.
	ActionSkipped Action = "skipped"

	// ActionFailed indicates an error occurred applying the file.
	ActionFailed Action = "failed"
)

// FileAction is the plan entry for one managed file.
type FileAction struct {
	// Path is the managed file's project-relative path.
	Path string `json:"path"`

	// Action is the planned action.
	Action Action `json:"action"`

	// ReferenceChecksum is the digest of the bundle content for this path.
	ReferenceChecksum string `json:"referenceChecksum"`

	// OnDiskChecksum is the digest of the current on-disk content, empty when
	// the file is absent.
	OnDiskChecksum string `json:"onDiskChecksum,omitempty"`

	// UserModified is true when the on-disk content drifted from the checksum
	// recorded at the last sync, meaning the user edited the file.
	UserModified bool `json:"userModified,omitempty"`

	// Message provides additional context about the action.
	Message string `json:"message,omitempty"`
}

// Preview is the computed, approvable description of what an apply would
// change. It is built fresh by CheckForUpdates and never persisted.
type Preview struct {
	// HasUpdates is true when at least one file action is planned.
	HasUpdates bool `json:"hasUpdates"`

	// CurrentVersion is the reference version recorded at the last sync, or
	// "0.0.0" for a never-synced project.
	CurrentVersion string `json:"currentVersion"`

	// TargetVersion is the bundle's version.
	TargetVersion string `json:"targetVersion"`

	// Mode is the managed-file set the preview was built for.
	Mode mode.Mode `json:"mode"`

	// Actions lists the planned file actions in managed-set order.
	Actions []FileAction `json:"actions"`
}

// Added returns actions that create new files.
func (p *Preview) Added() []FileAction {
	return p.filterByAction(ActionAdded)
}

// Modified returns actions that overwrite unmodified files.
func (p *Preview) Modified() []FileAction {
	return p.filterByAction(ActionModified)
}

// Conflicts returns actions for files the user edited since the last sync.
func (p *Preview) Conflicts() []FileAction {
	return p.filterByAction(ActionConflict)
}

// HasConflicts returns true if any managed file was edited by the user.
func (p *Preview) HasConflicts() bool {
	return len(p.Conflicts()) > 0
}

// filterByAction returns actions with the given status.
func (p *Preview) filterByAction(action Action) []FileAction {
	var filtered []FileAction
	for _, fa := range p.Actions {
		if fa.Action == action {
			filtered = append(filtered, fa)
		}
	}
	return filtered
}

// Summary returns a human-readable summary of the preview.
func (p *Preview) Summary() string {
	var sb strings.Builder

	if !p.HasUpdates {
		sb.WriteString(fmt.Sprintf("Up to date at version %s\n", p.CurrentVersion))
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("Update available: %s -> %s (%s mode)\n",
		p.CurrentVersion, p.TargetVersion, p.Mode))

	sb.WriteString(fmt.Sprintf("  Added:     %d\n", len(p.Added())))
	sb.WriteString(fmt.Sprintf("  Modified:  %d\n", len(p.Modified())))
	sb.WriteString(fmt.Sprintf("  Conflicts: %d\n", len(p.Conflicts())))

	if p.HasConflicts() {
		sb.WriteString("\nFiles edited since last sync (applying overwrites your edits):\n")
		for _, fa := range p.Conflicts() {
			sb.WriteString(fmt.Sprintf("  - %s\n", fa.Path))
		}
	}

	return sb.String()
}

// FileResult is the outcome of applying one file action.
type FileResult struct {
	// Path is the managed file's project-relative path.
	Path string

	// Action is the action that was taken.
	Action Action

	// Error contains any error that occurred applying this file.
	Error error
}

// ApplyResult contains the complete outcome of an apply operation.
type ApplyResult struct {
	// Version is the bundle version the project was synced to.
	Version string

	// SnapshotID identifies the pre-apply backup, empty when nothing was
	// backed up.
	SnapshotID string

	// Files contains the result for each applied file, in managed-set order.
	Files []FileResult

	// RolledBack is true when a failure occurred and all touched files were
	// restored from the snapshot.
	RolledBack bool

	// DryRun indicates no changes were made.
	DryRun bool
}

// Applied returns results for files that were written.
func (r *ApplyResult) Applied() []FileResult {
	var applied []FileResult
	for _, fr := range r.Files {
		if fr.Action == ActionAdded || fr.Action == ActionModified || fr.Action == ActionConflict {
			applied = append(applied, fr)
		}
	}
	return applied
}

// Summary returns a human-readable summary of the apply result.
func (r *ApplyResult) Summary() string {
	var sb strings.Builder

	if r.DryRun {
		sb.WriteString("Dry run - no changes made\n")
	}
	if r.RolledBack {
		sb.WriteString(fmt.Sprintf("Apply failed; restored %d file(s) from snapshot %s\n",
			len(r.Files), r.SnapshotID))
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("Synced %d file(s) to version %s\n", len(r.Applied()), r.Version))
	if r.SnapshotID != "" {
		sb.WriteString(fmt.Sprintf("  Snapshot: %s\n", r.SnapshotID))
	}

	return sb.String()
}
