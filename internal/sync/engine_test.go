package sync

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aetherlight/ctxsync/internal/backup"
	"github.com/aetherlight/ctxsync/internal/manifest"
	"github.com/aetherlight/ctxsync/internal/util"
)

func newEngine(t *testing.T, projectRoot, bundleDir string) *Engine {
	t.Helper()
	e, err := New(Options{ProjectRoot: projectRoot, BundleDir: bundleDir})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return e
}

func TestNew_RequiresProjectAndBundle(t *testing.T) {
	if _, err := New(Options{BundleDir: "/b"}); !errors.Is(err, ErrNoProject) {
		t.Errorf("expected ErrNoProject, got %v", err)
	}
	if _, err := New(Options{ProjectRoot: "/p"}); err == nil {
		t.Error("expected error for missing bundle directory")
	}
}

func TestCheckForUpdates_IsReadOnly(t *testing.T) {
	bundleDir := writeBundle(t, "1.0.0", map[string]string{
		".aetherlight/context.md": "# Context\n",
	})
	projectRoot := util.CreateTempDir(t)

	e := newEngine(t, projectRoot, bundleDir)

	preview, err := e.CheckForUpdates()
	util.AssertNoError(t, err)
	util.AssertEqual(t, preview.HasUpdates, true)

	// No manifest was written and the project was not touched.
	if _, err := os.Stat(util.ManifestPath(projectRoot)); !os.IsNotExist(err) {
		t.Error("CheckForUpdates must not write the sync manifest")
	}
	if _, err := os.Stat(filepath.Join(projectRoot, ".aetherlight/context.md")); !os.IsNotExist(err) {
		t.Error("CheckForUpdates must not write managed files")
	}
}

func TestApplyUpdates_FirstSync(t *testing.T) {
	bundleDir := writeBundle(t, "1.0.0", map[string]string{
		".aetherlight/context.md":  "# Context\n",
		".aetherlight/patterns.md": "# Patterns\n",
	})
	projectRoot := util.CreateTempDir(t)

	e := newEngine(t, projectRoot, bundleDir)

	preview, err := e.CheckForUpdates()
	util.AssertNoError(t, err)

	result, err := e.ApplyUpdates(preview)
	util.AssertNoError(t, err)
	util.AssertEqual(t, result.Version, "1.0.0")
	util.AssertEqual(t, result.RolledBack, false)
	util.AssertEqual(t, len(result.Applied()), 2)

	// Managed files landed with bundle content
	util.AssertEqual(t, util.ReadFile(t, filepath.Join(projectRoot, ".aetherlight/context.md")), "# Context\n")

	// Manifest records the new version with per-file checksums
	record, err := manifest.Load(util.ManifestPath(projectRoot))
	util.AssertNoError(t, err)
	if record == nil {
		t.Fatal("expected manifest after apply")
	}
	util.AssertEqual(t, record.ReferenceVersion, "1.0.0")
	util.AssertEqual(t, record.Mode, "standard")
	util.AssertEqual(t, len(record.Files), 2)
	util.AssertEqual(t, record.Files[".aetherlight/context.md"].SyncedVersion, "1.0.0")

	// A follow-up check reports up to date
	after, err := e.CheckForUpdates()
	util.AssertNoError(t, err)
	util.AssertEqual(t, after.HasUpdates, false)
}

func TestApplyUpdates_NoOpWithoutUpdates(t *testing.T) {
	bundleDir := writeBundle(t, "1.0.0", nil)
	projectRoot := util.CreateTempDir(t)

	e := newEngine(t, projectRoot, bundleDir)

	result, err := e.ApplyUpdates(&Preview{HasUpdates: false})
	util.AssertNoError(t, err)
	util.AssertEqual(t, len(result.Files), 0)

	result, err = e.ApplyUpdates(nil)
	util.AssertNoError(t, err)
	util.AssertEqual(t, len(result.Files), 0)
}

func TestApplyUpdates_RejectsDoubleApply(t *testing.T) {
	bundleDir := writeBundle(t, "1.0.0", map[string]string{
		".aetherlight/context.md": "# Context\n",
	})
	projectRoot := util.CreateTempDir(t)

	e := newEngine(t, projectRoot, bundleDir)

	preview, err := e.CheckForUpdates()
	util.AssertNoError(t, err)

	if _, err := e.ApplyUpdates(preview); err != nil {
		t.Fatalf("first apply failed: %v", err)
	}

	// Re-applying the same approved preview is an explicit rejection, never
	// a silent double-write.
	if _, err := e.ApplyUpdates(preview); !errors.Is(err, ErrAlreadyApplied) {
		t.Errorf("expected ErrAlreadyApplied, got %v", err)
	}
}

func TestApplyUpdates_StalePreview(t *testing.T) {
	bundleDir := writeBundle(t, "1.0.0", map[string]string{
		".aetherlight/context.md": "# Context\n",
	})
	projectRoot := util.CreateTempDir(t)

	e := newEngine(t, projectRoot, bundleDir)

	preview, err := e.CheckForUpdates()
	util.AssertNoError(t, err)

	// Bundle version bumps between preview and apply
	util.WriteFile(t, filepath.Join(bundleDir, "bundle.toml"), "version = \"2.0.0\"\n")

	if _, err := e.ApplyUpdates(preview); !errors.Is(err, ErrStalePreview) {
		t.Errorf("expected ErrStalePreview, got %v", err)
	}
}

func TestApplyUpdates_DryRun(t *testing.T) {
	bundleDir := writeBundle(t, "1.0.0", map[string]string{
		".aetherlight/context.md": "# Context\n",
	})
	projectRoot := util.CreateTempDir(t)

	e, err := New(Options{ProjectRoot: projectRoot, BundleDir: bundleDir, DryRun: true})
	util.AssertNoError(t, err)

	preview, err := e.CheckForUpdates()
	util.AssertNoError(t, err)

	result, err := e.ApplyUpdates(preview)
	util.AssertNoError(t, err)
	util.AssertEqual(t, result.DryRun, true)
	util.AssertEqual(t, len(result.Files), 1)

	if _, err := os.Stat(filepath.Join(projectRoot, ".aetherlight/context.md")); !os.IsNotExist(err) {
		t.Error("dry run must not write managed files")
	}
	if _, err := os.Stat(util.ManifestPath(projectRoot)); !os.IsNotExist(err) {
		t.Error("dry run must not write the sync manifest")
	}
}

func TestApplyUpdates_OverwritesConflictedFiles(t *testing.T) {
	bundleDir := writeBundle(t, "1.0.0", map[string]string{
		".aetherlight/context.md": "# Context v1\n",
	})
	projectRoot := util.CreateTempDir(t)

	e := newEngine(t, projectRoot, bundleDir)
	preview, err := e.CheckForUpdates()
	util.AssertNoError(t, err)
	if _, err := e.ApplyUpdates(preview); err != nil {
		t.Fatalf("first apply failed: %v", err)
	}

	// User edits the managed file, then the bundle bumps
	contextPath := filepath.Join(projectRoot, ".aetherlight/context.md")
	util.WriteFile(t, contextPath, "# Context v1 with my notes\n")
	util.WriteFile(t, filepath.Join(bundleDir, "bundle.toml"), "version = \"1.1.0\"\n")
	util.WriteFile(t, filepath.Join(bundleDir, ".aetherlight/context.md"), "# Context v2\n")

	preview, err = e.CheckForUpdates()
	util.AssertNoError(t, err)
	util.AssertEqual(t, len(preview.Conflicts()), 1)

	// Approved apply overwrites the user's edits like any other update
	result, err := e.ApplyUpdates(preview)
	util.AssertNoError(t, err)
	util.AssertEqual(t, util.ReadFile(t, contextPath), "# Context v2\n")

	// The pre-apply edit is preserved in the snapshot
	snapshot, err := backup.Load(projectRoot, result.SnapshotID)
	util.AssertNoError(t, err)
	got := util.ReadFile(t, filepath.Join(snapshot.Dir(), ".aetherlight/context.md"))
	util.AssertEqual(t, got, "# Context v1 with my notes\n")
}

func TestApplyUpdates_RollsBackOnFailure(t *testing.T) {
	// Scenario: three files to apply; the second fails mid-way. All changes
	// are rolled back and the manifest is untouched.
	bundleDir := writeBundle(t, "1.1.0", map[string]string{
		".aetherlight/context.md":           "# Context v2\n",
		".aetherlight/patterns.md":          "# Patterns v2\n",
		".aetherlight/prompts/implement.md": "# Implement v2\n",
	})
	projectRoot := util.CreateTempDir(t)
	util.WriteFile(t, filepath.Join(projectRoot, ".aetherlight/context.md"), "# Context v1\n")

	record := syncedRecord("1.0.0", map[string]string{".aetherlight/context.md": "# Context v1\n"})
	util.AssertNoError(t, manifest.Save(util.ManifestPath(projectRoot), record))

	e := newEngine(t, projectRoot, bundleDir)

	preview, err := e.CheckForUpdates()
	util.AssertNoError(t, err)
	util.AssertEqual(t, len(preview.Actions), 3)

	// Second action's bundle content vanishes between preview and apply
	util.AssertNoError(t, os.Remove(filepath.Join(bundleDir, ".aetherlight/patterns.md")))

	result, err := e.ApplyUpdates(preview)
	if err == nil {
		t.Fatal("expected apply to fail")
	}
	util.AssertEqual(t, result.RolledBack, true)

	// First file was overwritten, then restored from the snapshot
	util.AssertEqual(t, util.ReadFile(t, filepath.Join(projectRoot, ".aetherlight/context.md")), "# Context v1\n")

	// The snapshot still holds the pre-apply content for manual recovery
	snapshot, err := backup.Load(projectRoot, result.SnapshotID)
	util.AssertNoError(t, err)
	got := util.ReadFile(t, filepath.Join(snapshot.Dir(), ".aetherlight/context.md"))
	util.AssertEqual(t, got, "# Context v1\n")

	// The manifest still records the old version
	after, err := manifest.Load(util.ManifestPath(projectRoot))
	util.AssertNoError(t, err)
	util.AssertEqual(t, after.ReferenceVersion, "1.0.0")
}

func TestApplyUpdates_RollbackRestoresTheFailingPath(t *testing.T) {
	// The step that fails may itself have partially written its destination.
	// Rollback must restore that path from the snapshot too, not only the
	// paths applied before it.
	bundleDir := writeBundle(t, "1.1.0", map[string]string{
		".aetherlight/context.md":  "# Context v2\n",
		".aetherlight/patterns.md": "# Patterns v2\n",
	})
	projectRoot := util.CreateTempDir(t)
	util.WriteFile(t, filepath.Join(projectRoot, ".aetherlight/context.md"), "# Context v1\n")
	util.WriteFile(t, filepath.Join(projectRoot, ".aetherlight/patterns.md"), "# Patterns v1\n")

	record := syncedRecord("1.0.0", map[string]string{
		".aetherlight/context.md":  "# Context v1\n",
		".aetherlight/patterns.md": "# Patterns v1\n",
	})
	util.AssertNoError(t, manifest.Save(util.ManifestPath(projectRoot), record))

	// After the first file applies, redirect the second file's destination
	// to /dev/null: the write succeeds but the re-read digests empty, so the
	// post-write verification fails with the destination already clobbered.
	patternsPath := filepath.Join(projectRoot, ".aetherlight/patterns.md")
	e, err := New(Options{
		ProjectRoot: projectRoot,
		BundleDir:   bundleDir,
		OnProgress: func(done, total int, path string) {
			if done == 1 {
				util.AssertNoError(t, os.Remove(patternsPath))
				util.AssertNoError(t, os.Symlink(os.DevNull, patternsPath))
			}
		},
	})
	util.AssertNoError(t, err)

	preview, err := e.CheckForUpdates()
	util.AssertNoError(t, err)
	util.AssertEqual(t, len(preview.Actions), 2)

	result, err := e.ApplyUpdates(preview)
	if err == nil {
		t.Fatal("expected apply to fail on the corrupted destination")
	}
	util.AssertEqual(t, result.RolledBack, true)

	// Both the applied file and the failing file hold their pre-apply content.
	util.AssertEqual(t, util.ReadFile(t, filepath.Join(projectRoot, ".aetherlight/context.md")), "# Context v1\n")
	util.AssertEqual(t, util.ReadFile(t, patternsPath), "# Patterns v1\n")

	// The restored path is a regular file again, not the redirected link.
	info, err := os.Lstat(patternsPath)
	util.AssertNoError(t, err)
	util.AssertEqual(t, info.Mode().IsRegular(), true)

	after, err := manifest.Load(util.ManifestPath(projectRoot))
	util.AssertNoError(t, err)
	util.AssertEqual(t, after.ReferenceVersion, "1.0.0")
}

func TestApplyUpdates_RollbackRemovesCreatedFiles(t *testing.T) {
	bundleDir := writeBundle(t, "1.1.0", map[string]string{
		".aetherlight/context.md":  "# Context\n",
		".aetherlight/patterns.md": "# Patterns\n",
	})
	projectRoot := util.CreateTempDir(t)

	record := syncedRecord("1.0.0", nil)
	util.AssertNoError(t, manifest.Save(util.ManifestPath(projectRoot), record))

	e := newEngine(t, projectRoot, bundleDir)

	preview, err := e.CheckForUpdates()
	util.AssertNoError(t, err)
	util.AssertEqual(t, len(preview.Added()), 2)

	util.AssertNoError(t, os.Remove(filepath.Join(bundleDir, ".aetherlight/patterns.md")))

	result, err := e.ApplyUpdates(preview)
	if err == nil {
		t.Fatal("expected apply to fail")
	}
	util.AssertEqual(t, result.RolledBack, true)

	// The file created before the failure was removed again
	if _, err := os.Stat(filepath.Join(projectRoot, ".aetherlight/context.md")); !os.IsNotExist(err) {
		t.Error("created file must be removed on rollback")
	}
}

func TestApplyUpdates_CarriesForwardUntouchedRecords(t *testing.T) {
	bundleDir := writeBundle(t, "1.1.0", map[string]string{
		".aetherlight/context.md": "# Context v2\n",
	})
	projectRoot := util.CreateTempDir(t)
	util.WriteFile(t, filepath.Join(projectRoot, ".aetherlight/context.md"), "# Context v1\n")
	util.WriteFile(t, filepath.Join(projectRoot, ".aetherlight/patterns.md"), "# Patterns v1\n")

	record := syncedRecord("1.0.0", map[string]string{
		".aetherlight/context.md":  "# Context v1\n",
		".aetherlight/patterns.md": "# Patterns v1\n",
	})
	util.AssertNoError(t, manifest.Save(util.ManifestPath(projectRoot), record))

	e := newEngine(t, projectRoot, bundleDir)

	preview, err := e.CheckForUpdates()
	util.AssertNoError(t, err)
	// Bundle no longer ships patterns.md, so only context.md is planned
	util.AssertEqual(t, len(preview.Actions), 1)

	_, err = e.ApplyUpdates(preview)
	util.AssertNoError(t, err)

	after, err := manifest.Load(util.ManifestPath(projectRoot))
	util.AssertNoError(t, err)
	util.AssertEqual(t, after.ReferenceVersion, "1.1.0")
	util.AssertEqual(t, len(after.Files), 2)
	// The untouched file's record survives with its old synced version
	util.AssertEqual(t, after.Files[".aetherlight/patterns.md"].SyncedVersion, "1.0.0")
}

func TestApplyUpdates_ProgressCallback(t *testing.T) {
	bundleDir := writeBundle(t, "1.0.0", map[string]string{
		".aetherlight/context.md":  "# Context\n",
		".aetherlight/patterns.md": "# Patterns\n",
	})
	projectRoot := util.CreateTempDir(t)

	var seen []string
	e, err := New(Options{
		ProjectRoot: projectRoot,
		BundleDir:   bundleDir,
		OnProgress: func(done, total int, path string) {
			if total != 2 {
				t.Errorf("expected total 2, got %d", total)
			}
			seen = append(seen, path)
		},
	})
	util.AssertNoError(t, err)

	preview, err := e.CheckForUpdates()
	util.AssertNoError(t, err)

	_, err = e.ApplyUpdates(preview)
	util.AssertNoError(t, err)
	util.AssertEqual(t, len(seen), 2)
}
