// Package checksum computes content digests for managed files.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
)

// Digest returns the SHA-256 hex digest of content.
func Digest(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// File returns the SHA-256 hex digest of the file at path.
// A missing file digests to the empty string, which is distinct from the
// digest of an empty file, so "absent" and "empty" never compare equal.
func File(path string) (string, error) {
	// #nosec G304 - path is a managed file path supplied by the caller
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read %q: %w", path, err)
	}
	return Digest(content), nil
}
