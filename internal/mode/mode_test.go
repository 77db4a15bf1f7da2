package mode

import (
	"testing"

	"github.com/aetherlight/ctxsync/internal/manifest"
	"github.com/aetherlight/ctxsync/internal/util"
)

func TestIsValid(t *testing.T) {
	util.AssertEqual(t, ModeStandard.IsValid(), true)
	util.AssertEqual(t, ModeFull.IsValid(), true)
	util.AssertEqual(t, Mode("bogus").IsValid(), false)
	util.AssertEqual(t, Mode("").IsValid(), false)
}

func TestFiles_Ordered(t *testing.T) {
	standard := Files(ModeStandard)
	full := Files(ModeFull)

	util.AssertEqual(t, len(standard), 4)
	util.AssertEqual(t, len(full), 7)

	// The full set extends the standard set in the same order.
	for i, path := range standard {
		util.AssertEqual(t, full[i], path)
	}

	util.AssertEqual(t, standard[0], ".aetherlight/context.md")
}

func TestFiles_ReturnsCopy(t *testing.T) {
	first := Files(ModeStandard)
	first[0] = "mutated"

	second := Files(ModeStandard)
	util.AssertEqual(t, second[0], ".aetherlight/context.md")
}

func TestDetect_ManifestModeIsSticky(t *testing.T) {
	record := manifest.NewRecord("full")

	// Explicit mode wins even when the heuristic disagrees.
	util.AssertEqual(t, Detect("/work/ordinary-project", record), ModeFull)
}

func TestDetect_InvalidManifestModeFallsThrough(t *testing.T) {
	record := manifest.NewRecord("bogus")
	util.AssertEqual(t, Detect("/work/ordinary-project", record), ModeStandard)
}

func TestDetect_WorkspaceHeuristic(t *testing.T) {
	util.AssertEqual(t, Detect("/work/aetherlight", nil), ModeFull)
	util.AssertEqual(t, Detect("/work/Aetherlight", nil), ModeFull)
	util.AssertEqual(t, Detect("/work/aetherlight/", nil), ModeFull)
}

func TestDetect_DefaultStandard(t *testing.T) {
	util.AssertEqual(t, Detect("/work/some-project", nil), ModeStandard)
}
