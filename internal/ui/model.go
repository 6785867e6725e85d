// ABOUTME: Bubbletea model for the player TUI
// ABOUTME: Shows driver, stream format, buffers played and volume state
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Playback states shown in the header
const (
	StateIdle     = "idle"
	StateOpening  = "opening"
	StatePlaying  = "playing"
	StateFinished = "finished"
	StateFailed   = "failed"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))

	helpStyle = lipgloss.NewStyle().Faint(true)
)

// Model represents the TUI state
type Model struct {
	// Output
	driver   string
	spec     string
	hostName string

	// Source
	source     string
	sampleRate int
	channels   int

	// Playback
	state   string
	played  int64
	elapsed time.Duration
	volume  int
	muted   bool
	lastErr string

	showDebug  bool
	goroutines int

	controls *Controls

	width  int
	height int
}

// StatusMsg updates TUI state. Zero fields leave the current value alone.
type StatusMsg struct {
	Driver     string
	Spec       string
	HostName   string
	Source     string
	SampleRate int
	Channels   int
	State      string
	Played     int64
	Elapsed    time.Duration
	Volume     int
	Err        error
	Goroutines int
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Pepper Audio Player"))
	b.WriteString("\n\n")
	b.WriteString(m.renderOutput())
	b.WriteString(m.renderSource())
	b.WriteString(m.renderPlayback())
	if m.showDebug {
		b.WriteString(m.renderDebug())
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("↑/↓:Volume  m:Mute  d:Debug  q:Quit"))

	return b.String()
}

func field(b *strings.Builder, name, value string) {
	b.WriteString(headerStyle.Render(name + ": "))
	b.WriteString(valueStyle.Render(value))
	b.WriteString("\n")
}

func (m Model) renderOutput() string {
	var b strings.Builder

	drv := m.driver
	if drv == "" {
		drv = "(none)"
	}
	if m.hostName != "" {
		drv = fmt.Sprintf("%s via %s", drv, m.hostName)
	}
	field(&b, "Driver", drv)
	if m.spec != "" {
		field(&b, "Stream", m.spec)
	}
	return b.String()
}

func (m Model) renderSource() string {
	var b strings.Builder
	if m.source == "" {
		field(&b, "Source", "(none)")
		return b.String()
	}
	field(&b, "Source", truncate(m.source, 48))
	field(&b, "Format", fmt.Sprintf("%dHz %s", m.sampleRate, channelName(m.channels)))
	return b.String()
}

func (m Model) renderPlayback() string {
	var b strings.Builder

	field(&b, "State", m.state)
	field(&b, "Played", fmt.Sprintf("%d buffers (%s)", m.played, m.elapsed.Round(time.Second)))

	muteIcon := ""
	if m.muted {
		muteIcon = " (muted)"
	}
	field(&b, "Volume", fmt.Sprintf("[%s] %d%%%s", renderBar(m.volume, 100, 10), m.volume, muteIcon))

	if m.lastErr != "" {
		b.WriteString(errorStyle.Render("Error: " + m.lastErr))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderDebug() string {
	var b strings.Builder
	field(&b, "Goroutines", fmt.Sprintf("%d", m.goroutines))
	return b.String()
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.controls.quit()
		return m, tea.Quit
	case "up":
		m.volume = min(m.volume+5, 100)
		m.controls.send(m.volume, m.muted)
	case "down":
		m.volume = max(m.volume-5, 0)
		m.controls.send(m.volume, m.muted)
	case "m":
		m.muted = !m.muted
		m.controls.send(m.volume, m.muted)
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Driver != "" {
		m.driver = msg.Driver
	}
	if msg.Spec != "" {
		m.spec = msg.Spec
	}
	if msg.HostName != "" {
		m.hostName = msg.HostName
	}
	if msg.Source != "" {
		m.source = msg.Source
		m.sampleRate = msg.SampleRate
		m.channels = msg.Channels
	}
	if msg.State != "" {
		m.state = msg.State
	}
	if msg.Played != 0 {
		m.played = msg.Played
		m.elapsed = msg.Elapsed
	}
	if msg.Volume != 0 {
		m.volume = msg.Volume
	}
	if msg.Err != nil {
		m.lastErr = msg.Err.Error()
	}
	if msg.Goroutines != 0 {
		m.goroutines = msg.Goroutines
	}
}

func renderBar(value, total, width int) string {
	filled := (value * width) / total
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

func channelName(channels int) string {
	if channels == 1 {
		return "Mono"
	}
	return "Stereo"
}
