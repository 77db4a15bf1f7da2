// Package tui implements the interactive update review shown by apply: a
// BubbleTea table of pending file actions with a per-file detail view, ending
// in an approve-or-cancel decision.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aetherlight/ctxsync/internal/sync"
)

// Run starts a BubbleTea program with the given model.
func Run(model tea.Model) (tea.Model, error) {
	p := tea.NewProgram(model)
	return p.Run()
}

// ReviewAction represents the outcome of an interactive preview review.
type ReviewAction int

const (
	// ReviewActionNone means no decision was made (user quit).
	ReviewActionNone ReviewAction = iota
	// ReviewActionApply means the user approved the pending update.
	ReviewActionApply
	// ReviewActionCancel means the user cancelled.
	ReviewActionCancel
)

// ReviewResult contains the result of the preview review interaction.
type ReviewResult struct {
	Action ReviewAction
}

// reviewPhase represents the current phase of preview review.
type reviewPhase int

const (
	phaseList reviewPhase = iota
	phaseDetail
)

// reviewKeyMap defines the key bindings for preview review.
type reviewKeyMap struct {
	Up       key.Binding
	Down     key.Binding
	Select   key.Binding
	Apply    key.Binding
	Back     key.Binding
	Help     key.Binding
	Quit     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
}

func defaultReviewKeyMap() reviewKeyMap {
	return reviewKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Select: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "view details"),
		),
		Apply: key.NewBinding(
			key.WithKeys("y"),
			key.WithHelp("y", "apply update"),
		),
		Back: key.NewBinding(
			key.WithKeys("b", "esc"),
			key.WithHelp("b/esc", "back"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("pgup", "page up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("pgdown", "page down"),
		),
	}
}

// PreviewListModel is the BubbleTea model for reviewing a pending update.
type PreviewListModel struct {
	preview      *sync.Preview
	readIncoming func(path string) ([]byte, error)
	table        table.Model
	viewport     viewport.Model
	keys         reviewKeyMap
	result       ReviewResult
	phase        reviewPhase
	cursor       int
	showHelp     bool
	confirmMode  bool
	width        int
	height       int
	quitting     bool
	ready        bool
}

// Styles for the preview review TUI.
var reviewStyles = struct {
	Title        lipgloss.Style
	Help         lipgloss.Style
	Status       lipgloss.Style
	Added        lipgloss.Style
	Modified     lipgloss.Style
	Conflict     lipgloss.Style
	Context      lipgloss.Style
	Info         lipgloss.Style
	Confirm      lipgloss.Style
	SectionTitle lipgloss.Style
}{
	Title:        lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")).Padding(0, 1),
	Help:         lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	Status:       lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Padding(0, 1),
	Added:        lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
	Modified:     lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
	Conflict:     lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
	Context:      lipgloss.NewStyle().Foreground(lipgloss.Color("7")),
	Info:         lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Italic(true),
	Confirm:      lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true).Padding(0, 1),
	SectionTitle: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")).Padding(1, 0),
}

// formatContentWithLineNumbers formats content with line numbers for display.
func formatContentWithLineNumbers(content string, style lipgloss.Style) string {
	lines := strings.Split(content, "\n")
	var b strings.Builder

	for i, line := range lines {
		lineNum := fmt.Sprintf("%4d │ ", i+1)
		b.WriteString(reviewStyles.Context.Render(lineNum))
		b.WriteString(style.Render(line))
		if i < len(lines)-1 {
			b.WriteString("\n")
		}
	}

	return b.String()
}

// NewPreviewListModel creates a new preview review model. readIncoming loads
// the incoming content of a file for the detail view; it may be nil.
func NewPreviewListModel(preview *sync.Preview, readIncoming func(path string) ([]byte, error)) PreviewListModel {
	columns := []table.Column{
		{Title: "Status", Width: 10},
		{Title: "File", Width: 40},
		{Title: "Incoming", Width: 12},
		{Title: "On Disk", Width: 12},
	}

	rows := make([]table.Row, len(preview.Actions))
	for i, a := range preview.Actions {
		rows[i] = buildActionRow(a)
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return PreviewListModel{
		preview:      preview,
		readIncoming: readIncoming,
		table:        t,
		keys:         defaultReviewKeyMap(),
		phase:        phaseList,
	}
}

func buildActionRow(a sync.FileAction) table.Row {
	return table.Row{
		string(a.Action),
		a.Path,
		shortChecksum(a.ReferenceChecksum),
		shortChecksum(a.OnDiskChecksum),
	}
}

func shortChecksum(sum string) string {
	if sum == "" {
		return "-"
	}
	if len(sum) > 10 {
		return sum[:10]
	}
	return sum
}

// Result returns the outcome of the interaction after the program finishes.
func (m PreviewListModel) Result() ReviewResult {
	return m.result
}

// Init implements tea.Model.
func (m PreviewListModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m PreviewListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m.phase {
	case phaseList:
		return m.updateList(msg)
	case phaseDetail:
		return m.updateDetail(msg)
	}
	return m, nil
}

func (m PreviewListModel) updateList(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		newHeight := max(msg.Height-10, 5)
		m.table.SetHeight(newHeight)

	case tea.KeyMsg:
		// Handle confirmation mode first
		if m.confirmMode {
			switch msg.String() {
			case "y", "Y":
				m.result = ReviewResult{Action: ReviewActionApply}
				m.quitting = true
				return m, tea.Quit
			case "n", "N", "esc":
				m.confirmMode = false
				return m, nil
			}
			return m, nil
		}

		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
			return m, nil

		case key.Matches(msg, m.keys.Select):
			if len(m.preview.Actions) > 0 {
				m.cursor = m.table.Cursor()
				m.phase = phaseDetail
				m.ready = false
				return m, nil
			}

		case key.Matches(msg, m.keys.Apply):
			m.confirmMode = true
			return m, nil

		case key.Matches(msg, m.keys.Back):
			m.result = ReviewResult{Action: ReviewActionCancel}
			m.quitting = true
			return m, tea.Quit
		}
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m PreviewListModel) updateDetail(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 6
		footerHeight := 4
		viewportHeight := max(msg.Height-headerHeight-footerHeight, 5)

		if !m.ready {
			m.viewport = viewport.New(msg.Width-2, viewportHeight)
			m.viewport.SetContent(m.buildDetailContent())
			m.ready = true
		} else {
			m.viewport.Width = msg.Width - 2
			m.viewport.Height = viewportHeight
		}

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
			return m, nil

		case key.Matches(msg, m.keys.Back):
			m.phase = phaseList
			return m, nil
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m PreviewListModel) actionStyle(a sync.Action) lipgloss.Style {
	switch a {
	case sync.ActionConflict:
		return reviewStyles.Conflict
	case sync.ActionAdded:
		return reviewStyles.Added
	default:
		return reviewStyles.Modified
	}
}

func (m PreviewListModel) buildDetailContent() string {
	if m.cursor < 0 || m.cursor >= len(m.preview.Actions) {
		return "No file selected"
	}

	a := m.preview.Actions[m.cursor]
	var b strings.Builder

	b.WriteString(reviewStyles.SectionTitle.Render("File Details"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  File:   %s\n", a.Path))
	b.WriteString(fmt.Sprintf("  Status: %s\n", m.actionStyle(a.Action).Render(string(a.Action))))
	b.WriteString(fmt.Sprintf("  Incoming checksum: %s\n", shortChecksum(a.ReferenceChecksum)))
	b.WriteString(fmt.Sprintf("  On-disk checksum:  %s\n", shortChecksum(a.OnDiskChecksum)))

	if a.UserModified {
		b.WriteString("\n")
		b.WriteString(reviewStyles.Conflict.Render("  ⚠ Local edits since last sync will be overwritten."))
		b.WriteString("\n")
		b.WriteString(reviewStyles.Info.Render("  The current content is preserved in a snapshot before apply."))
		b.WriteString("\n")
	}

	if a.Message != "" {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("  %s\n", a.Message))
	}

	if m.readIncoming != nil {
		if content, err := m.readIncoming(a.Path); err == nil {
			b.WriteString("\n")
			b.WriteString(reviewStyles.SectionTitle.Render("Incoming Content"))
			b.WriteString("\n")
			b.WriteString(formatContentWithLineNumbers(string(content), reviewStyles.Added))
		}
	}

	b.WriteString("\n\n")
	b.WriteString(reviewStyles.Info.Render("Press: b=back, y=apply from list view"))

	return b.String()
}

// View implements tea.Model.
func (m PreviewListModel) View() string {
	if m.quitting {
		return ""
	}

	switch m.phase {
	case phaseDetail:
		return m.viewDetail()
	default:
		return m.viewList()
	}
}

func (m PreviewListModel) viewList() string {
	var b strings.Builder

	title := reviewStyles.Title.Render(fmt.Sprintf("Update %s → %s",
		m.preview.CurrentVersion, m.preview.TargetVersion))
	b.WriteString(title)
	b.WriteString("\n\n")

	if m.preview.HasConflicts() {
		info := reviewStyles.Conflict.Render(
			fmt.Sprintf("⚠ %d file(s) have local edits that will be overwritten", len(m.preview.Conflicts())))
		b.WriteString(info)
	} else {
		info := reviewStyles.Info.Render("Review the pending changes, then press y to apply")
		b.WriteString(info)
	}
	b.WriteString("\n\n")

	// Confirmation dialog
	if m.confirmMode {
		b.WriteString(m.table.View())
		b.WriteString("\n\n")
		confirmMsg := fmt.Sprintf("Apply %d file update(s)? (y/n)", len(m.preview.Actions))
		b.WriteString(reviewStyles.Confirm.Render(confirmMsg))
		return b.String()
	}

	b.WriteString(m.table.View())
	b.WriteString("\n")

	status := m.preview.Summary()
	b.WriteString(reviewStyles.Status.Render(status))
	b.WriteString("\n")

	if m.showHelp {
		b.WriteString("\n")
		b.WriteString(m.renderFullHelp())
	} else {
		b.WriteString(m.renderShortHelp())
	}

	return b.String()
}

func (m PreviewListModel) viewDetail() string {
	if !m.ready {
		return "Loading..."
	}

	var b strings.Builder

	path := ""
	if m.cursor >= 0 && m.cursor < len(m.preview.Actions) {
		path = m.preview.Actions[m.cursor].Path
	}
	title := reviewStyles.Title.Render(fmt.Sprintf("File: %s", path))
	b.WriteString(title)
	b.WriteString("\n\n")

	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	scrollPercent := int(m.viewport.ScrollPercent() * 100)
	status := fmt.Sprintf("Scroll: %d%%", scrollPercent)
	b.WriteString(reviewStyles.Status.Render(status))
	b.WriteString("\n")

	if m.showHelp {
		b.WriteString("\n")
		b.WriteString(m.renderDetailHelp())
	} else {
		b.WriteString(m.renderDetailShortHelp())
	}

	return b.String()
}

func (m PreviewListModel) renderShortHelp() string {
	keys := []string{
		"↑/↓ navigate",
		"enter details",
		"y apply",
		"b cancel",
		"? help",
		"q quit",
	}
	return reviewStyles.Help.Render(strings.Join(keys, " • "))
}

func (m PreviewListModel) renderFullHelp() string {
	help := `Navigation:
  ↑/k      Move up
  ↓/j      Move down
  Enter    View file details

Actions:
  y        Apply the update
  b/Esc    Cancel without applying

General:
  ?        Toggle full help
  q        Quit`
	return reviewStyles.Help.Render(help)
}

func (m PreviewListModel) renderDetailShortHelp() string {
	keys := []string{
		"↑/↓ scroll",
		"pgup/pgdn page",
		"b back",
		"? help",
		"q quit",
	}
	return reviewStyles.Help.Render(strings.Join(keys, " • "))
}

func (m PreviewListModel) renderDetailHelp() string {
	help := `Navigation:
  ↑/k      Scroll up
  ↓/j      Scroll down
  PgUp     Page up
  PgDn     Page down
  b/Esc    Back to list

General:
  ?        Toggle full help
  q        Quit`
	return reviewStyles.Help.Render(help)
}
