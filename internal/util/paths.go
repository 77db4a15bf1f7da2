package util

import (
	"os"
	"path/filepath"
)

const (
	// MetaDirName is the project-relative directory holding ctxsync state.
	MetaDirName = ".aetherlight"
	// ManifestFilename is the name of the per-project sync manifest.
	ManifestFilename = "sync-manifest.json"
	// BackupsDirName is the directory under MetaDirName holding snapshots.
	BackupsDirName = "backups"
)

// HomeDir returns the user's home directory
func HomeDir() string {
	home, _ := os.UserHomeDir()
	return home
}

// ConfigHome returns the ctxsync configuration directory.
// CTXSYNC_HOME overrides the default of ~/.ctxsync.
func ConfigHome() string {
	if v := os.Getenv("CTXSYNC_HOME"); v != "" {
		return v
	}
	return filepath.Join(HomeDir(), ".ctxsync")
}

// MetaDir returns the ctxsync state directory for a project.
func MetaDir(projectRoot string) string {
	return filepath.Join(projectRoot, MetaDirName)
}

// ManifestPath returns the sync manifest path for a project.
func ManifestPath(projectRoot string) string {
	return filepath.Join(MetaDir(projectRoot), ManifestFilename)
}

// BackupsPath returns the snapshot directory for a project.
func BackupsPath(projectRoot string) string {
	return filepath.Join(MetaDir(projectRoot), BackupsDirName)
}

// ExpandPath expands a leading ~ to the home directory and resolves
// relative paths against baseDir. Empty input returns empty output.
func ExpandPath(path, baseDir string) string {
	if path == "" {
		return ""
	}
	if path == "~" {
		return HomeDir()
	}
	if len(path) > 1 && path[0] == '~' && path[1] == filepath.Separator {
		return filepath.Join(HomeDir(), path[2:])
	}
	if filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}
