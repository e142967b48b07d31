// ABOUTME: Bubbletea model for the prompt console TUI
// ABOUTME: Renders prompt weights, playback state, and transient notices
package ui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// PromptView is one prompt row as the UI shows it.
type PromptView struct {
	ID       string
	Text     string
	Weight   float64
	Color    string
	Filtered bool
	Reason   string
}

// StatusMsg updates playback and pipeline state.
type StatusMsg struct {
	Connected *bool
	State     string
	Prompts   []PromptView
	Received  int64
	Scheduled int64
	Underruns int64
	Dropped   int64
	Recording *bool
}

// NoticeMsg surfaces a transient, dismissible notice.
type NoticeMsg struct {
	Text string
}

// Model represents the TUI state.
type Model struct {
	connected bool
	state     string
	prompts   []PromptView
	selected  int

	received  int64
	scheduled int64
	underruns int64
	dropped   int64
	recording bool

	notice string

	controls *Controls

	width  int
	height int
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	case NoticeMsg:
		m.notice = msg.Text
	}

	return m, nil
}

// handleKey handles keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.controls.send(Intent{Kind: IntentQuit})
		return m, tea.Quit
	case " ":
		m.controls.send(Intent{Kind: IntentPlayPause})
	case "s":
		m.controls.send(Intent{Kind: IntentStop})
	case "r":
		m.controls.send(Intent{Kind: IntentReset})
	case "o":
		m.controls.send(Intent{Kind: IntentRecordToggle})
	case "up":
		if m.selected > 0 {
			m.selected--
		}
	case "down":
		if m.selected < len(m.prompts)-1 {
			m.selected++
		}
	case "left":
		if p, ok := m.selectedPrompt(); ok {
			w := p.Weight - 0.1
			if w < 0 {
				w = 0
			}
			m.controls.send(Intent{Kind: IntentSetWeight, PromptID: p.ID, Weight: w})
		}
	case "right":
		if p, ok := m.selectedPrompt(); ok {
			w := p.Weight + 0.1
			if w > 2 {
				w = 2
			}
			m.controls.send(Intent{Kind: IntentSetWeight, PromptID: p.ID, Weight: w})
		}
	case "esc":
		m.notice = ""
	}

	return m, nil
}

// selectedPrompt returns the highlighted prompt.
func (m Model) selectedPrompt() (PromptView, bool) {
	if m.selected < 0 || m.selected >= len(m.prompts) {
		return PromptView{}, false
	}
	return m.prompts[m.selected], true
}

// applyStatus updates the model from a status message.
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Connected != nil {
		m.connected = *msg.Connected
	}
	if msg.State != "" {
		m.state = msg.State
	}
	if msg.Prompts != nil {
		m.prompts = msg.Prompts
		if m.selected >= len(m.prompts) {
			m.selected = len(m.prompts) - 1
		}
		if m.selected < 0 {
			m.selected = 0
		}
	}
	if msg.Received != 0 {
		m.received = msg.Received
		m.scheduled = msg.Scheduled
		m.underruns = msg.Underruns
		m.dropped = msg.Dropped
	}
	if msg.Recording != nil {
		m.recording = *msg.Recording
	}
}

// View renders the TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := m.renderHeader()
	s += m.renderPrompts()
	s += m.renderStats()
	s += m.renderNotice()
	s += m.renderHelp()

	return s
}

// renderHeader renders connection and playback state.
func (m Model) renderHeader() string {
	conn := "offline"
	if m.connected {
		conn = "connected"
	}

	rec := ""
	if m.recording {
		rec = "  ● REC"
	}

	return fmt.Sprintf(`┌─ Soundrift ──────────────────────────────────────────┐
│ Service: %-10s  Playback: %-10s%-8s    │
├──────────────────────────────────────────────────────┤
`, conn, m.state, rec)
}

// renderPrompts renders the weighted prompt rows.
func (m Model) renderPrompts() string {
	if len(m.prompts) == 0 {
		return "│ (no prompts yet, edit the prompt file and restart)   │\n"
	}

	s := ""
	for i, p := range m.prompts {
		cursor := " "
		if i == m.selected {
			cursor = ">"
		}
		flag := " "
		if p.Filtered {
			flag = "✗"
		}
		bar := renderBar(p.Weight, 2.0, 12)
		s += fmt.Sprintf("│ %s %s [%s] %.1f %-28s │\n",
			cursor, flag, bar, p.Weight, truncate(p.Text, 28))
	}
	return s
}

// renderStats renders pipeline counters.
func (m Model) renderStats() string {
	return fmt.Sprintf(`├──────────────────────────────────────────────────────┤
│ RX: %-6d Sched: %-6d Under: %-4d Drop: %-6d   │
`, m.received, m.scheduled, m.underruns, m.dropped)
}

// renderNotice renders the transient notice line.
func (m Model) renderNotice() string {
	if m.notice == "" {
		return ""
	}
	return fmt.Sprintf("│ ⚠ %-50s │\n", truncate(m.notice, 50))
}

// renderHelp renders keyboard shortcuts.
func (m Model) renderHelp() string {
	return `│ space:Play/Pause s:Stop r:Reset o:Rec ←/→:Weight q:Quit │
└──────────────────────────────────────────────────────┘
`
}

// renderBar renders a fixed-width meter.
func renderBar(value, max float64, width int) string {
	if max <= 0 {
		max = 1
	}
	filled := int(value / max * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	bar := ""
	for i := 0; i < width; i++ {
		if i < filled {
			bar += "█"
		} else {
			bar += "░"
		}
	}
	return bar
}

// truncate shortens a string to fit a column, never splitting a rune.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
