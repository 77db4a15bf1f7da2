package tui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aetherlight/ctxsync/internal/sync"
)

func makePreview(actions ...sync.FileAction) *sync.Preview {
	return &sync.Preview{
		HasUpdates:     len(actions) > 0,
		CurrentVersion: "1.0.0",
		TargetVersion:  "1.1.0",
		Mode:           "standard",
		Actions:        actions,
	}
}

func conflictAction(path string) sync.FileAction {
	return sync.FileAction{
		Path:              path,
		Action:            sync.ActionConflict,
		ReferenceChecksum: strings.Repeat("a", 64),
		OnDiskChecksum:    strings.Repeat("b", 64),
		UserModified:      true,
	}
}

func TestPreviewListModel_BuildDetailContent(t *testing.T) {
	preview := makePreview(conflictAction(".aetherlight/context.md"))
	model := NewPreviewListModel(preview, func(string) ([]byte, error) {
		return []byte("line one\nline two"), nil
	})
	model.cursor = 0

	content := model.buildDetailContent()
	if !strings.Contains(content, ".aetherlight/context.md") {
		t.Errorf("expected file path in detail view")
	}
	if !strings.Contains(content, "Local edits since last sync") {
		t.Errorf("expected conflict warning for user-modified file")
	}
	if !strings.Contains(content, "Incoming Content") {
		t.Errorf("expected incoming content section")
	}
	if !strings.Contains(content, "1 │") {
		t.Errorf("expected line numbers in content view")
	}
}

func TestPreviewListModel_BuildDetailContent_ReadError(t *testing.T) {
	preview := makePreview(sync.FileAction{
		Path:   ".aetherlight/patterns.md",
		Action: sync.ActionAdded,
	})
	model := NewPreviewListModel(preview, func(string) ([]byte, error) {
		return nil, errors.New("gone")
	})
	model.cursor = 0

	content := model.buildDetailContent()
	if strings.Contains(content, "Incoming Content") {
		t.Errorf("expected no content section when the read fails")
	}
	if !strings.Contains(content, "added") {
		t.Errorf("expected status in detail view")
	}
}

func TestPreviewListModel_ApplyFlow(t *testing.T) {
	preview := makePreview(conflictAction(".aetherlight/context.md"))
	model := NewPreviewListModel(preview, nil)

	// y opens the confirmation prompt, a second y quits with approval.
	updated, _ := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'y'}})
	m := updated.(PreviewListModel)
	if !m.confirmMode {
		t.Fatal("expected confirmation mode after pressing y")
	}

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'y'}})
	m = updated.(PreviewListModel)
	if m.Result().Action != ReviewActionApply {
		t.Errorf("expected ReviewActionApply, got %v", m.Result().Action)
	}
	if cmd == nil {
		t.Error("expected quit command after approval")
	}
}

func TestPreviewListModel_ConfirmDeclineReturnsToList(t *testing.T) {
	preview := makePreview(conflictAction(".aetherlight/context.md"))
	model := NewPreviewListModel(preview, nil)

	updated, _ := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'y'}})
	m := updated.(PreviewListModel)

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'n'}})
	m = updated.(PreviewListModel)
	if m.confirmMode {
		t.Error("expected confirmation mode to be dismissed")
	}
	if m.Result().Action != ReviewActionNone {
		t.Errorf("expected no decision yet, got %v", m.Result().Action)
	}
}

func TestPreviewListModel_CancelFlow(t *testing.T) {
	preview := makePreview(conflictAction(".aetherlight/context.md"))
	model := NewPreviewListModel(preview, nil)

	updated, cmd := model.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m := updated.(PreviewListModel)
	if m.Result().Action != ReviewActionCancel {
		t.Errorf("expected ReviewActionCancel, got %v", m.Result().Action)
	}
	if cmd == nil {
		t.Error("expected quit command after cancel")
	}
}

func TestPreviewListModel_ViewList(t *testing.T) {
	preview := makePreview(
		sync.FileAction{Path: ".aetherlight/context.md", Action: sync.ActionModified},
		conflictAction(".aetherlight/patterns.md"),
	)
	model := NewPreviewListModel(preview, nil)

	view := model.View()
	if !strings.Contains(view, "1.0.0") || !strings.Contains(view, "1.1.0") {
		t.Errorf("expected version transition in list view")
	}
	if !strings.Contains(view, "local edits") {
		t.Errorf("expected conflict banner when preview has conflicts")
	}
}

func TestShortChecksum(t *testing.T) {
	if got := shortChecksum(""); got != "-" {
		t.Errorf("expected placeholder for empty checksum, got %q", got)
	}
	if got := shortChecksum(strings.Repeat("c", 64)); got != strings.Repeat("c", 10) {
		t.Errorf("expected truncated checksum, got %q", got)
	}
}
