// Package cli provides command definitions for ctxsync.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/aetherlight/ctxsync/internal/backup"
	"github.com/aetherlight/ctxsync/internal/bundle"
	"github.com/aetherlight/ctxsync/internal/config"
	"github.com/aetherlight/ctxsync/internal/logging"
	"github.com/aetherlight/ctxsync/internal/manifest"
	"github.com/aetherlight/ctxsync/internal/mode"
	"github.com/aetherlight/ctxsync/internal/progress"
	syncengine "github.com/aetherlight/ctxsync/internal/sync"
	"github.com/aetherlight/ctxsync/internal/ui"
	"github.com/aetherlight/ctxsync/internal/ui/tui"
	"github.com/aetherlight/ctxsync/internal/util"
)

// projectFlags are shared by every command that operates on a project.
func projectFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "project",
			Aliases: []string{"p"},
			Usage:   "Project root directory (defaults to the current directory)",
		},
		&cli.StringFlag{
			Name:  "bundle",
			Usage: "Reference bundle directory (overrides configuration)",
		},
	}
}

func projectRoot(cmd *cli.Command) (string, error) {
	if root := cmd.String("project"); root != "" {
		return root, nil
	}
	return os.Getwd()
}

func bundleDir(cmd *cli.Command, cfg *config.Config) string {
	if dir := cmd.String("bundle"); dir != "" {
		return util.ExpandPath(dir, "")
	}
	return cfg.BundlePath()
}

func newEngine(ctx context.Context, cmd *cli.Command, cfg *config.Config, dryRun bool) (*syncengine.Engine, error) {
	root, err := projectRoot(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}

	return syncengine.New(syncengine.Options{
		ProjectRoot: root,
		BundleDir:   bundleDir(cmd, cfg),
		DeepScan:    cmd.Bool("deep") || cfg.Sync.DeepScan,
		DryRun:      dryRun,
		Logger:      logging.WithContext(ctx),
	})
}

func printPreview(preview *syncengine.Preview) {
	if !preview.HasUpdates {
		fmt.Println(ui.StatusSuccess(fmt.Sprintf("Up to date (version %s, %s mode)",
			preview.CurrentVersion, preview.Mode)))
		return
	}

	fmt.Printf("Update available: %s → %s (%s mode)\n\n",
		preview.CurrentVersion, preview.TargetVersion, preview.Mode)

	for _, a := range preview.Actions {
		switch a.Action {
		case syncengine.ActionAdded:
			fmt.Println("  " + ui.StatusAdded(a.Path))
		case syncengine.ActionConflict:
			fmt.Println("  " + ui.StatusConflict(a.Path+" (local edits will be overwritten)"))
		default:
			fmt.Println("  " + ui.StatusModified(a.Path))
		}
	}

	fmt.Println()
	fmt.Println(preview.Summary())
}

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Check whether context file updates are available",
		Description: `Compares the reference bundle against the last-synced state and the
   files on disk, and reports what an apply would change. No files are
   modified.

   Exits with status 1 when updates are pending, so the command can be
   used in scripts and hooks.`,
		Flags: append(projectFlags(),
			&cli.BoolFlag{
				Name:  "deep",
				Usage: "Re-verify file checksums even when versions match",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			engine, err := newEngine(ctx, cmd, cfg, false)
			if err != nil {
				return err
			}

			preview, err := engine.CheckForUpdates()
			if err != nil {
				return err
			}

			printPreview(preview)

			if preview.HasUpdates {
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}

func applyCommand() *cli.Command {
	return &cli.Command{
		Name:  "apply",
		Usage: "Apply pending context file updates from the reference bundle",
		Description: `Applies the pending update to the project. Files that changed since the
   last sync are flagged; the pre-apply content of every touched file is
   preserved in a snapshot under .aetherlight/backups/.

   Without --yes an interactive review is shown first. If any file fails to
   apply, all files written so far are restored from the snapshot.

   Examples:
     ctxsync apply
     ctxsync apply --yes
     ctxsync apply --dry-run`,
		Flags: append(projectFlags(),
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "Apply without interactive review",
			},
			&cli.BoolFlag{
				Name:    "dry-run",
				Aliases: []string{"d"},
				Usage:   "Preview changes without modifying files",
			},
			&cli.BoolFlag{
				Name:  "deep",
				Usage: "Re-verify file checksums even when versions match",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			dryRun := cmd.Bool("dry-run")

			var bar *progress.Bar
			root, err := projectRoot(cmd)
			if err != nil {
				return fmt.Errorf("failed to resolve project root: %w", err)
			}

			engine, err := syncengine.New(syncengine.Options{
				ProjectRoot: root,
				BundleDir:   bundleDir(cmd, cfg),
				DeepScan:    cmd.Bool("deep") || cfg.Sync.DeepScan,
				DryRun:      dryRun,
				Logger:      logging.WithContext(ctx),
				OnProgress: func(done, total int, path string) {
					if bar == nil {
						bar = progress.Simple(int64(total), "Applying update")
					}
					bar.Describe(path)
					_ = bar.Set(done)
				},
			})
			if err != nil {
				return err
			}

			preview, err := engine.CheckForUpdates()
			if err != nil {
				return err
			}

			if !preview.HasUpdates {
				fmt.Println(ui.StatusSuccess(fmt.Sprintf("Already up to date (version %s)",
					preview.CurrentVersion)))
				return nil
			}

			if !cmd.Bool("yes") && !dryRun {
				approved, err := reviewPreview(cmd, cfg, preview)
				if err != nil {
					return err
				}
				if !approved {
					fmt.Println("Apply cancelled; no files were modified")
					return nil
				}
			}

			result, err := engine.ApplyUpdates(preview)
			if bar != nil {
				_ = bar.Finish()
			}
			if err != nil {
				if result != nil && result.RolledBack {
					fmt.Println(ui.StatusError("Apply failed; all files restored from snapshot " + result.SnapshotID))
				}
				return err
			}

			if dryRun {
				fmt.Println("DRY RUN: no files were modified")
				fmt.Println(result.Summary())
				return nil
			}

			fmt.Println(ui.StatusSuccess(result.Summary()))
			if result.SnapshotID != "" {
				fmt.Printf("Snapshot: %s\n", result.SnapshotID)
			}

			if cfg.Sync.AutoPrune {
				pruneAfterApply(root, cfg)
			}

			return nil
		},
	}
}

// reviewPreview runs the interactive review and reports whether the user
// approved the apply. Falls back to requiring --yes when stdout is not a
// terminal.
func reviewPreview(cmd *cli.Command, cfg *config.Config, preview *syncengine.Preview) (bool, error) {
	if !isInteractive() {
		return false, errors.New("refusing to apply without review; re-run with --yes")
	}

	var readIncoming func(string) ([]byte, error)
	if b, err := bundle.Open(bundleDir(cmd, cfg)); err == nil {
		readIncoming = b.Read
	}

	model := tui.NewPreviewListModel(preview, readIncoming)
	final, err := tui.Run(model)
	if err != nil {
		return false, fmt.Errorf("interactive review failed: %w", err)
	}

	if m, ok := final.(tui.PreviewListModel); ok {
		return m.Result().Action == tui.ReviewActionApply, nil
	}
	return false, nil
}

func pruneAfterApply(root string, cfg *config.Config) {
	opts := backup.CleanupOptions{
		MaxSnapshots:   cfg.Backup.MaxSnapshots,
		MaxAge:         cfg.RetentionAge(),
		KeepAtLeastOne: true,
	}

	deleted, err := backup.Cleanup(root, opts)
	if err != nil {
		fmt.Printf("Warning: snapshot cleanup failed: %v\n", err)
		return
	}
	if len(deleted) > 0 {
		fmt.Printf("Pruned %d old snapshot(s)\n", len(deleted))
	}
}

func isInteractive() bool {
	info, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the sync state of the current project",
		Flags: projectFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			root, err := projectRoot(cmd)
			if err != nil {
				return err
			}

			record, err := manifest.Load(util.ManifestPath(root))
			if err != nil {
				return err
			}

			detected := mode.Detect(root, record)

			fmt.Printf("Project: %s\n", root)
			fmt.Printf("Mode:    %s (%s)\n", detected, detected.Description())

			if record == nil {
				fmt.Println("Synced:  never")
			} else {
				fmt.Printf("Version: %s\n", record.ReferenceVersion)
				fmt.Printf("Synced:  %s\n", record.LastSyncedAt.Format("2006-01-02 15:04:05"))
				fmt.Printf("Files:   %d tracked\n", len(record.Files))
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if b, err := bundle.Open(bundleDir(cmd, cfg)); err == nil {
				fmt.Printf("Bundle:  %s (%s)\n", b.Version(), b.Root())

				engine, err := newEngine(ctx, cmd, cfg, false)
				if err == nil {
					if preview, err := engine.CheckForUpdates(); err == nil {
						if preview.HasUpdates {
							fmt.Printf("Pending: %s\n", preview.Summary())
							for _, a := range preview.Actions {
								fmt.Printf("  %-8s %s\n", a.Action, a.Path)
							}
						} else {
							fmt.Println("Pending: none")
						}
					}
				}
			} else {
				fmt.Println(ui.StatusSkipped("Bundle:  not available"))
			}

			snapshots, err := backup.List(root)
			if err == nil {
				fmt.Printf("Backups: %d snapshot(s)\n", len(snapshots))
			}

			return nil
		},
	}
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Display current configuration",
		Action: func(_ context.Context, _ *cli.Command) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			fmt.Printf("Config file: %s", config.FilePath())
			if !config.Exists() {
				fmt.Print(" (defaults)")
			}
			fmt.Println()
			fmt.Printf("Bundle path: %s\n", cfg.BundlePath())
			fmt.Printf("Deep scan:   %t\n", cfg.Sync.DeepScan)
			fmt.Printf("Auto prune:  %t\n", cfg.Sync.AutoPrune)
			fmt.Printf("Retention:   %d snapshot(s), %d day(s)\n",
				cfg.Backup.MaxSnapshots, cfg.Backup.RetentionDays)
			return nil
		},
	}
}

func backupCommand() *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "Manage pre-apply snapshots",
		Commands: []*cli.Command{
			backupListCommand(),
			backupRestoreCommand(),
			backupPruneCommand(),
		},
	}
}

func backupListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List snapshots for the current project",
		Flags: projectFlags(),
		Action: func(_ context.Context, cmd *cli.Command) error {
			root, err := projectRoot(cmd)
			if err != nil {
				return err
			}

			snapshots, err := backup.List(root)
			if err != nil {
				return err
			}
			if len(snapshots) == 0 {
				fmt.Println("No snapshots found")
				return nil
			}

			for _, s := range snapshots {
				fmt.Printf("%s  version %s  %s  %d file(s)\n",
					s.ID, s.Version, s.CreatedAt.Format("2006-01-02 15:04:05"), len(s.Files))
			}
			return nil
		},
	}
}

func backupRestoreCommand() *cli.Command {
	return &cli.Command{
		Name:      "restore",
		Usage:     "Restore project files from a snapshot",
		UsageText: "ctxsync backup restore [options] <snapshot-id>",
		Flags: append(projectFlags(),
			&cli.BoolFlag{
				Name:  "verify",
				Usage: "Verify snapshot checksums before restoring",
			},
		),
		Action: func(_ context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return errors.New("restore requires exactly 1 argument: <snapshot-id>")
			}

			root, err := projectRoot(cmd)
			if err != nil {
				return err
			}

			snapshot, err := backup.Load(root, cmd.Args().Get(0))
			if err != nil {
				return err
			}

			if cmd.Bool("verify") {
				if err := snapshot.Verify(); err != nil {
					return fmt.Errorf("snapshot verification failed: %w", err)
				}
			}

			if err := snapshot.Restore(root); err != nil {
				return err
			}

			fmt.Println(ui.StatusSuccess(fmt.Sprintf("Restored %d file(s) from snapshot %s",
				len(snapshot.Files), snapshot.ID)))
			return nil
		},
	}
}

func backupPruneCommand() *cli.Command {
	return &cli.Command{
		Name:  "prune",
		Usage: "Delete snapshots beyond the retention policy",
		Flags: append(projectFlags(),
			&cli.BoolFlag{
				Name:    "dry-run",
				Aliases: []string{"d"},
				Usage:   "Show what would be deleted without deleting",
			},
		),
		Action: func(_ context.Context, cmd *cli.Command) error {
			root, err := projectRoot(cmd)
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			opts := backup.CleanupOptions{
				MaxSnapshots:   cfg.Backup.MaxSnapshots,
				MaxAge:         cfg.RetentionAge(),
				KeepAtLeastOne: true,
				DryRun:         cmd.Bool("dry-run"),
			}

			deleted, err := backup.Cleanup(root, opts)
			if err != nil {
				return err
			}

			if len(deleted) == 0 {
				fmt.Println("Nothing to prune")
				return nil
			}

			verb := "Deleted"
			if opts.DryRun {
				verb = "Would delete"
			}
			for _, id := range deleted {
				fmt.Printf("%s %s\n", verb, id)
			}
			return nil
		},
	}
}
