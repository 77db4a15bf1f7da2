// Package sync implements the context synchronization engine: drift
// detection between the reference bundle, the last-synced record, and the
// on-disk managed files, and the transactional apply of bundle updates.
package sync

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aetherlight/ctxsync/internal/backup"
	"github.com/aetherlight/ctxsync/internal/bundle"
	"github.com/aetherlight/ctxsync/internal/checksum"
	"github.com/aetherlight/ctxsync/internal/logging"
	"github.com/aetherlight/ctxsync/internal/manifest"
	"github.com/aetherlight/ctxsync/internal/mode"
	"github.com/aetherlight/ctxsync/internal/util"
)

var (
	// ErrNoProject indicates no project root was supplied.
	ErrNoProject = errors.New("no project root")

	// ErrAlreadyApplied indicates the sync manifest already records the
	// preview's target version; re-applying would be a silent double-write.
	ErrAlreadyApplied = errors.New("target version already applied")

	// ErrStalePreview indicates the bundle version changed between
	// CheckForUpdates and ApplyUpdates.
	ErrStalePreview = errors.New("bundle changed since preview was built")
)

// Options configures an Engine.
type Options struct {
	// ProjectRoot is the project directory to sync into. Required.
	ProjectRoot string

	// BundleDir is the reference bundle directory. Required.
	BundleDir string

	// DeepScan re-compares checksums even when the recorded reference
	// version matches the bundle version.
	DeepScan bool

	// DryRun previews apply effects without touching the project.
	DryRun bool

	// Logger receives the engine's structured log output. Defaults to the
	// process default logger.
	Logger *slog.Logger

	// OnProgress, if set, is invoked after each file is applied.
	OnProgress func(done, total int, path string)
}

// Engine sequences mode detection, preview building, backup, and apply for
// one project. It is not safe for concurrent use against the same project;
// callers serialize per project root.
type Engine struct {
	opts   Options
	logger *slog.Logger
}

// New creates an Engine for the given options.
func New(opts Options) (*Engine, error) {
	if opts.ProjectRoot == "" {
		return nil, ErrNoProject
	}
	if opts.BundleDir == "" {
		return nil, errors.New("no bundle directory")
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}

	return &Engine{opts: opts, logger: logger}, nil
}

// CheckForUpdates builds a fresh preview of what an apply would change.
// It is a pure read path: neither the project nor the sync manifest is
// mutated.
func (e *Engine) CheckForUpdates() (*Preview, error) {
	defer logging.Timer("check")()

	b, err := bundle.Open(e.opts.BundleDir)
	if err != nil {
		return nil, err
	}

	record, err := manifest.Load(util.ManifestPath(e.opts.ProjectRoot))
	if err != nil {
		return nil, err
	}

	m := mode.Detect(e.opts.ProjectRoot, record)

	e.logger.Debug("checking for updates",
		logging.Project(e.opts.ProjectRoot),
		logging.Mode(m.String()),
		logging.Version(b.Version()),
	)

	return BuildPreview(e.opts.ProjectRoot, record, b, m, e.opts.DeepScan)
}

// ApplyUpdates executes an approved preview: snapshot every file about to be
// touched, copy the bundle content over each destination, verify what was
// written, and commit the new sync manifest. Any failure restores all
// touched files from the snapshot and leaves the manifest untouched, so the
// operation is all-or-nothing.
func (e *Engine) ApplyUpdates(preview *Preview) (*ApplyResult, error) {
	defer logging.Timer("apply")()

	result := &ApplyResult{DryRun: e.opts.DryRun}
	if preview == nil || !preview.HasUpdates {
		return result, nil
	}
	result.Version = preview.TargetVersion

	record, err := manifest.Load(util.ManifestPath(e.opts.ProjectRoot))
	if err != nil {
		return result, err
	}
	if record != nil && record.ReferenceVersion == preview.TargetVersion {
		return result, fmt.Errorf("%w: %s", ErrAlreadyApplied, preview.TargetVersion)
	}

	b, err := bundle.Open(e.opts.BundleDir)
	if err != nil {
		return result, err
	}
	if b.Version() != preview.TargetVersion {
		return result, fmt.Errorf("%w: preview targets %s, bundle is %s",
			ErrStalePreview, preview.TargetVersion, b.Version())
	}

	if e.opts.DryRun {
		for _, fa := range preview.Actions {
			result.Files = append(result.Files, FileResult{Path: fa.Path, Action: fa.Action})
		}
		return result, nil
	}

	paths := make([]string, 0, len(preview.Actions))
	for _, fa := range preview.Actions {
		paths = append(paths, fa.Path)
	}

	snapshot, err := backup.Create(e.opts.ProjectRoot, preview.TargetVersion, paths)
	if err != nil {
		return result, fmt.Errorf("failed to create pre-apply snapshot: %w", err)
	}
	result.SnapshotID = snapshot.ID

	var touched []string
	total := len(preview.Actions)

	for i, fa := range preview.Actions {
		if err := e.applyAction(b, fa); err != nil {
			result.Files = append(result.Files, FileResult{Path: fa.Path, Action: ActionFailed, Error: err})
			// The failing path may have been partially written before the
			// step errored; it needs restoring like every applied path.
			return e.rollback(result, snapshot, append(touched, fa.Path), err)
		}

		touched = append(touched, fa.Path)
		result.Files = append(result.Files, FileResult{Path: fa.Path, Action: fa.Action})

		if e.opts.OnProgress != nil {
			e.opts.OnProgress(i+1, total, fa.Path)
		}
	}

	if err := e.commit(record, preview, b); err != nil {
		return e.rollback(result, snapshot, touched, err)
	}

	e.logger.Info("applied updates",
		logging.Project(e.opts.ProjectRoot),
		logging.Version(preview.TargetVersion),
		logging.Count(len(touched)),
	)

	return result, nil
}

// applyAction copies the bundle content for one file action over the
// destination path and verifies the written bytes by re-reading and
// re-digesting them. Conflicted files are overwritten exactly like
// non-conflicted ones; the conflict status informed the approval, it does
// not change apply behavior.
func (e *Engine) applyAction(b *bundle.Bundle, fa FileAction) error {
	content, err := b.Read(fa.Path)
	if err != nil {
		return err
	}

	destPath := filepath.Join(e.opts.ProjectRoot, filepath.FromSlash(fa.Path))
	if err := os.MkdirAll(filepath.Dir(destPath), 0o750); err != nil {
		return fmt.Errorf("failed to create directory for %q: %w", fa.Path, err)
	}

	// #nosec G306 - managed context files should be user readable
	if err := os.WriteFile(destPath, content, 0o644); err != nil {
		return fmt.Errorf("failed to write %q: %w", fa.Path, err)
	}

	written, err := checksum.File(destPath)
	if err != nil {
		return err
	}
	if expected := checksum.Digest(content); written != expected {
		return fmt.Errorf("checksum mismatch after applying %q (expected %s, got %s)",
			fa.Path, expected, written)
	}

	e.logger.Debug("applied file",
		logging.Path(fa.Path),
		logging.Operation("apply"),
		slog.String("action", string(fa.Action)),
	)

	return nil
}

// commit writes the new sync manifest reflecting the applied preview. The
// whole document is rewritten: records for managed files this apply did not
// touch are carried forward unchanged.
func (e *Engine) commit(record *manifest.Record, preview *Preview, b *bundle.Bundle) error {
	now := time.Now().UTC()

	next := manifest.NewRecord(preview.Mode.String())
	if record != nil {
		for path, fr := range record.Files {
			next.Files[path] = fr
		}
		if m := mode.Mode(record.Mode); m.IsValid() {
			next.Mode = record.Mode
		}
	}

	next.ReferenceVersion = preview.TargetVersion
	next.LastSyncedAt = now

	for _, fa := range preview.Actions {
		content, err := b.Read(fa.Path)
		if err != nil {
			return err
		}
		next.Files[fa.Path] = manifest.FileRecord{
			SyncedVersion: preview.TargetVersion,
			Checksum:      checksum.Digest(content),
			LastModified:  now,
		}
	}

	return manifest.Save(util.ManifestPath(e.opts.ProjectRoot), next)
}

// rollback restores every touched file from the snapshot and removes files
// this apply created. The sync manifest is left untouched.
func (e *Engine) rollback(result *ApplyResult, snapshot *backup.Snapshot, touched []string, cause error) (*ApplyResult, error) {
	e.logger.Warn("apply failed, rolling back",
		logging.Count(len(touched)),
		logging.Err(cause),
	)

	for _, rel := range touched {
		if snapshot.Contains(rel) {
			if err := snapshot.RestoreFile(e.opts.ProjectRoot, rel, snapshot.Files[rel]); err != nil {
				return result, fmt.Errorf("apply failed (%w) and rollback of %q also failed: %v", cause, rel, err)
			}
			continue
		}

		// The file did not exist before this apply; remove what we created.
		destPath := filepath.Join(e.opts.ProjectRoot, filepath.FromSlash(rel))
		if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
			return result, fmt.Errorf("apply failed (%w) and removal of created file %q also failed: %v", cause, rel, err)
		}
	}

	result.RolledBack = true
	return result, fmt.Errorf("apply failed, all changes rolled back: %w", cause)
}
