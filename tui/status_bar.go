// ABOUTME: Implements a single-line status bar for the bottom of the TUI showing run progress.
// ABOUTME: Displays workflow name, elapsed time, step completion count, and currently active step.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// StatusBarModel displays run status in a single line.
type StatusBarModel struct {
	workflowName   string
	startTime      time.Time
	totalSteps     int
	completedSteps int
	activeStep     string
	width          int
}

// NewStatusBarModel creates a new StatusBarModel with the given workflow name and total step count.
func NewStatusBarModel(workflowName string, totalSteps int) StatusBarModel {
	return StatusBarModel{
		workflowName: workflowName,
		totalSteps:   totalSteps,
	}
}

// Start records the run start time.
func (m *StatusBarModel) Start() {
	m.startTime = time.Now()
}

// SetCompleted updates the completed step count.
func (m *StatusBarModel) SetCompleted(n int) {
	m.completedSteps = n
}

// SetActiveStep sets the currently running step name.
func (m *StatusBarModel) SetActiveStep(name string) {
	m.activeStep = name
}

// SetWidth sets the bar width for rendering.
func (m *StatusBarModel) SetWidth(w int) {
	m.width = w
}

// Elapsed returns the time since Start() was called, or zero if not started.
func (m StatusBarModel) Elapsed() time.Duration {
	if m.startTime.IsZero() {
		return 0
	}
	return time.Since(m.startTime)
}

// formatElapsed formats a duration as a human-readable string.
// Durations under a minute show as seconds (e.g. "12s").
// Durations of a minute or more show as minutes and seconds (e.g. "2m30s").
func formatElapsed(d time.Duration) string {
	d = d.Truncate(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) - minutes*60
	return fmt.Sprintf("%dm%ds", minutes, seconds)
}

// View renders the status bar as a single styled line.
func (m StatusBarModel) View() string {
	active := m.activeStep
	if active == "" {
		active = "idle"
	}

	elapsed := formatElapsed(m.Elapsed())

	content := fmt.Sprintf("Workflow: %s | Elapsed: %s | %d/%d steps | Active: %s",
		m.workflowName, elapsed, m.completedSteps, m.totalSteps, active)

	style := StatusBarStyle.Width(m.width)

	return lipgloss.PlaceHorizontal(m.width, lipgloss.Left, style.Render(content))
}
