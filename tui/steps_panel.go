// ABOUTME: Bubble Tea sub-model for rendering the workflow step list with status markers and spinner animation.
// ABOUTME: Steps render in declared order, which is the engine's execution order.
package tui

import (
	"fmt"
	"strings"

	"github.com/2389-research/railcar/railway"
)

// StepsPanelModel displays the workflow's steps with status markers.
type StepsPanelModel struct {
	workflow     railway.WorkflowDescriptor
	statuses     map[string]StepStatus
	retries      map[string]string
	spinnerIndex int
	width        int
}

// NewStepsPanelModel creates a new steps panel for the given workflow.
func NewStepsPanelModel(wf railway.WorkflowDescriptor) StepsPanelModel {
	return StepsPanelModel{
		workflow: wf,
		statuses: make(map[string]StepStatus),
		retries:  make(map[string]string),
	}
}

// SetStepStatus updates a step's visual status.
func (m *StepsPanelModel) SetStepStatus(name string, status StepStatus) {
	m.statuses[name] = status
}

// GetStepStatus returns the current status (defaults to StepPending).
func (m StepsPanelModel) GetStepStatus(name string) StepStatus {
	if s, ok := m.statuses[name]; ok {
		return s
	}
	return StepPending
}

// SetRetry records a retry annotation like "2/5" for the given step.
func (m *StepsPanelModel) SetRetry(name string, attempt, maxAttempts any) {
	m.retries[name] = fmt.Sprintf("%v/%v", attempt, maxAttempts)
}

// AdvanceSpinner increments the spinner frame index.
func (m *StepsPanelModel) AdvanceSpinner() {
	m.spinnerIndex++
}

// SetWidth sets the available width for rendering.
func (m *StepsPanelModel) SetWidth(w int) {
	m.width = w
}

// View renders the steps panel as a string.
func (m StepsPanelModel) View() string {
	var b strings.Builder

	title := fmt.Sprintf("=== WORKFLOW: %s ===", m.workflow.Name)
	b.WriteString(TitleStyle.Render(title))
	b.WriteString("\n")

	for _, step := range m.workflow.Steps {
		status := m.GetStepStatus(step.Name)
		style := StyleForStatus(status)
		icon := status.Icon()

		line := fmt.Sprintf("  %s %s (%s)", icon, step.Name, stepSummary(step))
		if status == StepRunning {
			frame := SpinnerFrames[m.spinnerIndex%len(SpinnerFrames)]
			line += " " + frame
		}
		if retry, ok := m.retries[step.Name]; ok {
			line += LogRetryStyle.Render(fmt.Sprintf(" retry %s", retry))
		}

		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}

	content := b.String()
	if m.width > 0 {
		return BorderStyle.Width(m.width - 2).Render(content)
	}
	return BorderStyle.Render(content)
}

// stepSummary returns a short description of what the step dispatches to.
func stepSummary(step railway.StepDescriptor) string {
	if step.Shell {
		return "shell"
	}
	if step.Function != "" {
		return step.Function
	}
	return "?"
}
