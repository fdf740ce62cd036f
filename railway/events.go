// ABOUTME: Engine lifecycle events emitted during workflow execution for observers.
// ABOUTME: Consumed by the verbose CLI printer, the TUI bridge, and the history recorder.
package railway

import "time"

// EngineEventType identifies the kind of engine lifecycle event.
type EngineEventType string

const (
	EventWorkflowStarted   EngineEventType = "workflow.started"
	EventWorkflowCompleted EngineEventType = "workflow.completed"
	EventWorkflowFailed    EngineEventType = "workflow.failed"
	EventStepStarted       EngineEventType = "step.started"
	EventStepCompleted     EngineEventType = "step.completed"
	EventStepFailed        EngineEventType = "step.failed"
	EventStepSkipped       EngineEventType = "step.skipped"
	EventStepRetrying      EngineEventType = "step.retrying"
)

// EngineEvent is a lifecycle event emitted by the engine during a run.
type EngineEvent struct {
	Type      EngineEventType
	RunID     string
	Workflow  string
	Step      string
	Data      map[string]any
	Timestamp time.Time
}

// EventHandler receives engine events. Handlers run synchronously on the
// engine's goroutine and should return quickly.
type EventHandler func(EngineEvent)
