// ABOUTME: Bubble Tea message types used in the TUI message loop.
// ABOUTME: Each type wraps domain events for the tea.Msg interface (which is interface{}).
package tui

import (
	"time"

	"github.com/2389-research/railcar/railway"
)

// EngineEventMsg wraps a railway.EngineEvent for the Bubble Tea message loop.
type EngineEventMsg struct {
	Event railway.EngineEvent
}

// WorkflowResultMsg signals that the workflow has finished executing.
type WorkflowResultMsg struct {
	Final railway.Context
	Err   error
}

// TickMsg is sent periodically to update timers and spinners.
type TickMsg struct {
	Time time.Time
}
