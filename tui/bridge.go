// ABOUTME: Bridge connecting the railway engine to the Bubble Tea message loop.
// ABOUTME: Provides EventBridge for event injection and tea.Cmd factories for workflow execution and ticks.
package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/2389-research/railcar/railway"
)

// EventBridge wraps a tea.Program's Send method for injecting engine events
// into the Bubble Tea message loop.
type EventBridge struct {
	send func(msg tea.Msg)
}

// NewEventBridge creates an EventBridge that sends messages via the given function.
// Typically called with program.Send as the argument.
func NewEventBridge(send func(msg tea.Msg)) *EventBridge {
	return &EventBridge{send: send}
}

// Handle satisfies the railway.EventHandler signature. It wraps the event in
// an EngineEventMsg and sends it to the TUI.
func (b *EventBridge) Handle(evt railway.EngineEvent) {
	b.send(EngineEventMsg{Event: evt})
}

// RunWorkflowCmd returns a tea.Cmd that runs the given workflow on the engine.
// When the run completes (or fails), it sends a WorkflowResultMsg. The context
// allows cancellation when the user quits the TUI.
func RunWorkflowCmd(ctx context.Context, engine *railway.Engine, wf railway.WorkflowDescriptor, initial railway.Context) tea.Cmd {
	return func() tea.Msg {
		final, err := engine.RunWorkflow(ctx, wf, initial)
		return WorkflowResultMsg{Final: final, Err: err}
	}
}

// TickCmd returns a tea.Cmd that sends a TickMsg after the given interval.
// Used for spinner animation and periodic UI refreshes.
func TickCmd(interval time.Duration) tea.Cmd {
	return func() tea.Msg {
		time.Sleep(interval)
		return TickMsg{Time: time.Now()}
	}
}
