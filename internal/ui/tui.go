// ABOUTME: TUI initialization and user intent channel
// ABOUTME: Wraps the bubbletea program for the prompt console
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// IntentKind discriminates user intents from the TUI.
type IntentKind int

const (
	IntentPlayPause IntentKind = iota
	IntentStop
	IntentReset
	IntentRecordToggle
	IntentSetWeight
	IntentQuit
)

// Intent is one user action for the console to act on.
type Intent struct {
	Kind     IntentKind
	PromptID string
	Weight   float64
}

// Controls carries user intents out of the TUI event loop.
type Controls struct {
	Intents chan Intent
}

// NewControls creates the intent channel.
func NewControls() *Controls {
	return &Controls{Intents: make(chan Intent, 16)}
}

// send forwards an intent without ever blocking the render loop.
func (c *Controls) send(i Intent) {
	if c == nil {
		return
	}
	select {
	case c.Intents <- i:
	default:
	}
}

// NewModel creates a TUI model bound to the given controls.
func NewModel(controls *Controls) Model {
	return Model{
		state:    "stopped",
		controls: controls,
	}
}

// Run creates the bubbletea program. The caller starts it.
func Run(controls *Controls) *tea.Program {
	return tea.NewProgram(NewModel(controls), tea.WithAltScreen())
}
