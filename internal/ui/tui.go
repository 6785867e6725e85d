// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and the channels back to the player
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// VolumeChangeMsg carries a volume change made in the TUI
type VolumeChangeMsg struct {
	Volume int
	Muted  bool
}

// Controls holds channels from the TUI back to the player
type Controls struct {
	Changes chan VolumeChangeMsg
	Quit    chan struct{}
}

// NewControls creates a new control handler
func NewControls() *Controls {
	return &Controls{
		Changes: make(chan VolumeChangeMsg, 10),
		Quit:    make(chan struct{}, 1),
	}
}

func (c *Controls) send(volume int, muted bool) {
	if c == nil {
		return
	}
	select {
	case c.Changes <- VolumeChangeMsg{Volume: volume, Muted: muted}:
	default:
	}
}

func (c *Controls) quit() {
	if c == nil {
		return
	}
	select {
	case c.Quit <- struct{}{}:
	default:
	}
}

// NewModel creates a new TUI model. controls may be nil.
func NewModel(controls *Controls) Model {
	return Model{
		volume:   100,
		state:    StateIdle,
		controls: controls,
	}
}

// Run creates the TUI program; the caller runs it
func Run(controls *Controls) *tea.Program {
	return tea.NewProgram(NewModel(controls), tea.WithAltScreen())
}
