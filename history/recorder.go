// ABOUTME: Recorder subscribes to engine events and writes run/step outcomes to the store.
// ABOUTME: Maps workflow and step event types onto row statuses, retry counts, and timestamps.
package history

import (
	"log"

	"github.com/2389-research/railcar/railway"
)

// Recorder translates engine lifecycle events into history rows. Install its
// Handle method as the engine's event handler. Write failures are logged,
// never surfaced: recording must not disturb the run.
type Recorder struct {
	store *Store
}

// NewRecorder creates a Recorder over an open store.
func NewRecorder(store *Store) *Recorder {
	return &Recorder{store: store}
}

// Handle is a railway.EventHandler.
func (r *Recorder) Handle(evt railway.EngineEvent) {
	// Validation failures are emitted before a run ID exists; there is no
	// row to key them to.
	if evt.RunID == "" {
		return
	}

	var err error
	switch evt.Type {
	case railway.EventWorkflowStarted:
		err = r.store.StartRun(evt.RunID, evt.Workflow, evt.Timestamp)
	case railway.EventWorkflowCompleted:
		err = r.store.FinishRun(evt.RunID, StatusCompleted, nil, evt.Timestamp)
	case railway.EventWorkflowFailed:
		msg := failureMessage(evt)
		err = r.store.FinishRun(evt.RunID, StatusFailed, &msg, evt.Timestamp)
	case railway.EventStepStarted:
		err = r.store.StartStep(evt.RunID, evt.Step, evt.Timestamp)
	case railway.EventStepCompleted:
		err = r.store.FinishStep(evt.RunID, evt.Step, StatusCompleted, nil, evt.Timestamp)
	case railway.EventStepFailed:
		detail := dataString(evt, "message")
		err = r.store.FinishStep(evt.RunID, evt.Step, StatusFailed, &detail, evt.Timestamp)
	case railway.EventStepSkipped:
		reason := dataString(evt, "reason")
		err = r.store.FinishStep(evt.RunID, evt.Step, StatusSkipped, &reason, evt.Timestamp)
	case railway.EventStepRetrying:
		err = r.store.BumpStepRetries(evt.RunID, evt.Step)
	}

	if err != nil {
		log.Printf("component=history action=record_failed event=%s run_id=%s err=%v", evt.Type, evt.RunID, err)
	}
}

// failureMessage extracts the most specific failure description the event
// carries.
func failureMessage(evt railway.EngineEvent) string {
	if msg := dataString(evt, "error"); msg != "" {
		return msg
	}
	step := dataString(evt, "step")
	errType := dataString(evt, "error_type")
	if step != "" && errType != "" {
		return "step " + step + " failed [" + errType + "]"
	}
	return "workflow failed"
}

func dataString(evt railway.EngineEvent, key string) string {
	if evt.Data == nil {
		return ""
	}
	s, _ := evt.Data[key].(string)
	return s
}
