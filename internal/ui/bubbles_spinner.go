package ui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// SpinnerFrames defines the animation frames (◐ ◓ ◑ ◒) for Bubble Tea programs.
var SpinnerFrames = spinner.Spinner{
	Frames: []string{"◐", "◓", "◑", "◒"},
	FPS:    time.Second / 10,
}

// SpinnerComponent is an embeddable spinner shown while the dashboard waits
// for the first metrics of a run.
type SpinnerComponent struct {
	spinner   spinner.Model
	Label     string
	Active    bool
	StartTime time.Time
}

// NewSpinnerComponent creates an inactive spinner with the given label.
func NewSpinnerComponent(label string) SpinnerComponent {
	sp := spinner.New()
	sp.Spinner = SpinnerFrames
	sp.Style = lipgloss.NewStyle().Foreground(ColorSecondary)
	return SpinnerComponent{spinner: sp, Label: label}
}

// Start activates the spinner and returns its first tick.
func (s *SpinnerComponent) Start() tea.Cmd {
	s.Active = true
	s.StartTime = time.Now()
	return s.spinner.Tick
}

// Stop freezes the spinner.
func (s *SpinnerComponent) Stop() {
	s.Active = false
}

// Update advances the animation on tick messages.
func (s SpinnerComponent) Update(msg tea.Msg) (SpinnerComponent, tea.Cmd) {
	if !s.Active {
		return s, nil
	}
	if tickMsg, ok := msg.(spinner.TickMsg); ok {
		var cmd tea.Cmd
		s.spinner, cmd = s.spinner.Update(tickMsg)
		return s, cmd
	}
	return s, nil
}

// View renders the spinner, or nothing when inactive.
func (s SpinnerComponent) View() string {
	if !s.Active {
		return ""
	}
	timing := lipgloss.NewStyle().Foreground(ColorMuted).Render(FormatDuration(time.Since(s.StartTime)))
	return s.spinner.View() + " " + s.Label + "... " + timing
}

// Tick returns the command that drives the next animation frame.
func (s SpinnerComponent) Tick() tea.Cmd {
	return s.spinner.Tick
}
