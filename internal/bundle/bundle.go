// Package bundle reads the reference bundle: the read-only directory tree
// that is the source of truth for managed context files at a given release.
package bundle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/aetherlight/ctxsync/internal/checksum"
	"github.com/aetherlight/ctxsync/internal/logging"
)

// ManifestFilename is the release manifest at the bundle root.
const ManifestFilename = "bundle.toml"

// ErrVersionMissing indicates the release manifest carries no version string.
var ErrVersionMissing = errors.New("bundle manifest has no version")

// Manifest is the bundle's release manifest (bundle.toml).
type Manifest struct {
	Version string `toml:"version"`
	Channel string `toml:"channel"`
	Notes   string `toml:"notes"`
}

// Bundle provides read access to a reference bundle directory.
type Bundle struct {
	root     string
	manifest Manifest
}

// Open reads the release manifest under dir and returns a Bundle.
func Open(dir string) (*Bundle, error) {
	manifestPath := filepath.Join(dir, ManifestFilename)

	var m Manifest
	if _, err := toml.DecodeFile(manifestPath, &m); err != nil {
		return nil, fmt.Errorf("failed to read bundle manifest %q: %w", manifestPath, err)
	}
	if m.Version == "" {
		return nil, ErrVersionMissing
	}

	logging.Debug("opened bundle",
		logging.Path(dir),
		logging.Version(m.Version),
	)

	return &Bundle{root: dir, manifest: m}, nil
}

// Root returns the bundle directory.
func (b *Bundle) Root() string {
	return b.root
}

// Version returns the bundle's release version.
func (b *Bundle) Version() string {
	return b.manifest.Version
}

// Channel returns the bundle's release channel, if any.
func (b *Bundle) Channel() string {
	return b.manifest.Channel
}

// Has reports whether the bundle ships content for the managed path.
// A managed path absent from the bundle is not a fault; callers skip it.
func (b *Bundle) Has(rel string) bool {
	info, err := os.Stat(filepath.Join(b.root, filepath.FromSlash(rel)))
	return err == nil && info.Mode().IsRegular()
}

// Read returns the bundle content for the managed path.
func (b *Bundle) Read(rel string) ([]byte, error) {
	// #nosec G304 - rel comes from the fixed managed-file sets
	content, err := os.ReadFile(filepath.Join(b.root, filepath.FromSlash(rel)))
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle file %q: %w", rel, err)
	}
	return content, nil
}

// Checksum returns the SHA-256 hex digest of the bundle content for the
// managed path.
func (b *Bundle) Checksum(rel string) (string, error) {
	content, err := b.Read(rel)
	if err != nil {
		return "", err
	}
	return checksum.Digest(content), nil
}
