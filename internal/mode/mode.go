// Package mode determines which managed-file set a project uses.
package mode

import (
	"path/filepath"
	"strings"

	"github.com/aetherlight/ctxsync/internal/logging"
	"github.com/aetherlight/ctxsync/internal/manifest"
)

// Mode selects one of the fixed managed-file sets.
type Mode string

const (
	// ModeStandard is the minimal file set synced into ordinary projects.
	ModeStandard Mode = "standard"

	// ModeFull is the richer file set used by the ÆtherLight workspace itself.
	ModeFull Mode = "full"
)

// workspaceName is the directory-name heuristic for selecting ModeFull on a
// project that has never been synced.
const workspaceName = "aetherlight"

// IsValid returns true if the mode is recognized.
func (m Mode) IsValid() bool {
	switch m {
	case ModeStandard, ModeFull:
		return true
	default:
		return false
	}
}

// AllModes returns all supported modes.
func AllModes() []Mode {
	return []Mode{ModeStandard, ModeFull}
}

// String returns the string representation of the mode.
func (m Mode) String() string {
	return string(m)
}

// Description returns a human-readable description of the mode.
func (m Mode) Description() string {
	switch m {
	case ModeStandard:
		return "Minimal context file set for ordinary projects"
	case ModeFull:
		return "Full context file set including agent and verification templates"
	default:
		return "Unknown mode"
	}
}

// standardFiles is the managed set for ordinary projects.
var standardFiles = []string{
	".aetherlight/context.md",
	".aetherlight/patterns.md",
	".aetherlight/prompts/implement.md",
	".aetherlight/prompts/review.md",
}

// fullFiles extends the standard set with workspace-only templates.
var fullFiles = []string{
	".aetherlight/context.md",
	".aetherlight/patterns.md",
	".aetherlight/prompts/implement.md",
	".aetherlight/prompts/review.md",
	".aetherlight/prompts/sprint.md",
	".aetherlight/agents.md",
	".aetherlight/verification.md",
}

// Files returns the ordered managed-file set for the mode. The order is the
// order previews are built and files are backed up and applied in. Paths may
// be absent from a given bundle; the preview builder skips those.
func Files(m Mode) []string {
	var files []string
	switch m {
	case ModeFull:
		files = fullFiles
	default:
		files = standardFiles
	}

	out := make([]string, len(files))
	copy(out, files)
	return out
}

// Detect resolves the mode for a project. An explicit mode in the sync
// manifest always wins: once set it is sticky and only operator action
// changes it. First-run projects fall back to the workspace-name heuristic,
// then to the standard default.
func Detect(projectRoot string, record *manifest.Record) Mode {
	if record != nil {
		if m := Mode(record.Mode); m.IsValid() {
			logging.Debug("mode from manifest",
				logging.Mode(m.String()),
				logging.Project(projectRoot),
			)
			return m
		}
	}

	name := strings.ToLower(filepath.Base(filepath.Clean(projectRoot)))
	if name == workspaceName {
		logging.Debug("mode from project name heuristic",
			logging.Mode(ModeFull.String()),
			logging.Project(projectRoot),
		)
		return ModeFull
	}

	return ModeStandard
}
