// ABOUTME: Bridge host TUI showing sessions and playback stats
// ABOUTME: Real-time host status display using bubbletea
package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// HostStatus holds bridge host state for the TUI
type HostStatus struct {
	Name           string
	Port           int
	Sessions       int
	ActiveSessions int
	BuffersPlayed  int64
	Driver         string
	Spec           string
}

// HostTUI manages the bridge host TUI
type HostTUI struct {
	program  *tea.Program
	updates  chan HostStatus
	quitChan chan struct{}

	mu     sync.Mutex
	closed bool
}

type hostModel struct {
	status    HostStatus
	startTime time.Time
	quitting  bool
	quitChan  chan struct{}
}

type tickMsg time.Time
type hostStatusMsg HostStatus

func (m hostModel) Init() tea.Cmd {
	return tickEvery()
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m hostModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			select {
			case m.quitChan <- struct{}{}:
			default:
			}
			return m, tea.Quit
		}

	case tickMsg:
		return m, tickEvery()

	case hostStatusMsg:
		m.status = HostStatus(msg)
	}

	return m, nil
}

func (m hostModel) View() string {
	if m.quitting {
		return "Shutting down host...\n"
	}

	sessionStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("220"))

	var b strings.Builder

	b.WriteString(titleStyle.Render("Pepper Bridge Host"))
	b.WriteString("\n\n")

	field(&b, "Host", m.status.Name)
	field(&b, "Port", fmt.Sprintf("%d", m.status.Port))
	field(&b, "Uptime", time.Since(m.startTime).Round(time.Second).String())
	b.WriteString("\n")

	b.WriteString(sessionStyle.Render(fmt.Sprintf("Plugins connected (%d, %d total)",
		m.status.ActiveSessions, m.status.Sessions)))
	b.WriteString("\n\n")

	if m.status.Driver == "" {
		b.WriteString(valueStyle.Render("  No stream opened yet"))
		b.WriteString("\n")
	} else {
		field(&b, "Driver", m.status.Driver)
		field(&b, "Stream", m.status.Spec)
		field(&b, "Played", fmt.Sprintf("%d buffers", m.status.BuffersPlayed))
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("Press 'q' or Ctrl+C to quit"))

	return b.String()
}

// NewHostTUI creates a new host TUI
func NewHostTUI() *HostTUI {
	return &HostTUI{
		updates:  make(chan HostStatus, 10),
		quitChan: make(chan struct{}, 1),
	}
}

// Start runs the TUI until the user quits
func (t *HostTUI) Start(name string, port int) error {
	m := hostModel{
		status:    HostStatus{Name: name, Port: port},
		startTime: time.Now(),
		quitChan:  t.quitChan,
	}

	program := tea.NewProgram(m, tea.WithAltScreen())
	t.mu.Lock()
	t.program = program
	t.mu.Unlock()

	go func() {
		for status := range t.updates {
			program.Send(hostStatusMsg(status))
		}
	}()

	_, err := program.Run()
	return err
}

// Update sends a status update to the TUI
func (t *HostTUI) Update(status HostStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	select {
	case t.updates <- status:
	default:
		// Don't block if channel is full
	}
}

// Stop stops the TUI
func (t *HostTUI) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true

	if t.program != nil {
		t.program.Quit()
	}
	close(t.updates)
}

// QuitChan returns the channel that signals when user wants to quit
func (t *HostTUI) QuitChan() <-chan struct{} {
	return t.quitChan
}
