// ABOUTME: Workflow execution engine: sequencing, skip-after-failure, conditions, data-flow, aggregation.
// ABOUTME: Runs one workflow synchronously to completion or failure and returns exactly one result.
package railway

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// EngineConfig holds configuration for the workflow execution engine.
type EngineConfig struct {
	Registry     *Registry    // step function registry (nil = empty registry)
	EventHandler EventHandler // optional event callback
	RunID        string       // run identifier for events (empty = auto-generated per run)
}

// Engine executes workflows. It holds no mutable run state of its own, so a
// single Engine may run many workflows and multiple Engines may coexist in
// one process.
type Engine struct {
	config EngineConfig
}

// NewEngine creates a workflow execution engine with the given configuration.
func NewEngine(config EngineConfig) *Engine {
	return &Engine{config: config}
}

// SetEventHandler sets the engine's event callback after creation. This lets
// external components (like the TUI) wire into the event stream.
func (e *Engine) SetEventHandler(handler EventHandler) {
	e.config.EventHandler = handler
}

// registry returns the configured registry, initializing an empty one on
// first use so resolution errors stay diagnosable.
func (e *Engine) registry() *Registry {
	if e.config.Registry == nil {
		e.config.Registry = NewRegistry()
	}
	return e.config.Registry
}

// RunWorkflow executes the workflow's steps in declared order against the
// initial Context and returns the final Context, or exactly one structured
// error when any step failed. The loop never stops at a failure: later
// always-run steps still execute, and their failures are serialized into the
// primary failure's diagnostic context under "always_run_failures". On
// failure the returned Context is the last successfully advanced state.
func (e *Engine) RunWorkflow(ctx context.Context, wf WorkflowDescriptor, initial Context) (Context, error) {
	if err := wf.Validate(e.registry()); err != nil {
		wrapped := fmt.Errorf("validation failed: %w", err)
		e.emitEvent(EngineEvent{Type: EventWorkflowFailed, Workflow: wf.Name, Data: map[string]any{"error": wrapped.Error()}})
		return initial, wrapped
	}

	runID := e.config.RunID
	if runID == "" {
		runID = NewRunID()
	}
	meta := runMeta{runID: runID, workflow: wf.Name}

	e.emitEvent(EngineEvent{Type: EventWorkflowStarted, RunID: runID, Workflow: wf.Name,
		Data: map[string]any{"steps": len(wf.Steps)}})

	current := initial
	var pipelineFailure *StepError
	var alwaysRunFailures []map[string]any
	dataFlow := make(map[string]Vals)

	recordFailure := func(step StepDescriptor, index int, serr *StepError) {
		serr.WithContext("step_index", index)
		e.emitEvent(EngineEvent{Type: EventStepFailed, RunID: runID, Workflow: wf.Name, Step: step.Name,
			Data: map[string]any{"error_type": string(serr.Type), "message": serr.Message}})
		if pipelineFailure == nil {
			pipelineFailure = serr
		} else {
			alwaysRunFailures = append(alwaysRunFailures, serr.Serialize())
		}
	}

	for i, step := range wf.Steps {
		if err := ctx.Err(); err != nil {
			e.emitEvent(EngineEvent{Type: EventWorkflowFailed, RunID: runID, Workflow: wf.Name,
				Data: map[string]any{"error": err.Error()}})
			return current, err
		}

		// A failed pipeline skips everything except always-run steps.
		if pipelineFailure != nil && !step.AlwaysRun {
			e.emitEvent(EngineEvent{Type: EventStepSkipped, RunID: runID, Workflow: wf.Name, Step: step.Name,
				Data: map[string]any{"reason": "pipeline_failed"}})
			continue
		}

		// The condition gate applies to always-run steps too.
		if cond := step.conditionFunc(); cond != nil {
			ok, condErr := safeEvalCondition(cond, current)
			if condErr != nil {
				serr := NewStepError(step.Name, ErrorTypeConditionEvaluation,
					fmt.Sprintf("condition evaluation failed: %v", condErr)).WithCause(condErr)
				if step.When != "" {
					serr.WithContext("when", step.When)
				}
				recordFailure(step, i, serr)
				continue
			}
			if !ok {
				e.emitEvent(EngineEvent{Type: EventStepSkipped, RunID: runID, Workflow: wf.Name, Step: step.Name,
					Data: map[string]any{"reason": "condition_false"}})
				continue
			}
		}

		// Explicit data-flow resolution produces a Context for this step only.
		resolved := current
		if len(step.InputFrom) > 0 {
			var serr *StepError
			resolved, serr = resolveInputFrom(step, current, dataFlow)
			if serr != nil {
				recordFailure(step, i, serr)
				continue
			}
		}

		e.emitEvent(EngineEvent{Type: EventStepStarted, RunID: runID, Workflow: wf.Name, Step: step.Name,
			Data: map[string]any{"index": i, "always_run": step.AlwaysRun}})

		next, err := e.runStep(ctx, meta, step, resolved)
		if err != nil {
			recordFailure(step, i, attributeError(err, step.Name))
			continue
		}

		current = next
		if step.Output != "" {
			dataFlow[step.Output] = current.Outputs()
		}
		e.emitEvent(EngineEvent{Type: EventStepCompleted, RunID: runID, Workflow: wf.Name, Step: step.Name,
			Data: map[string]any{"outputs": current.Outputs().Len()}})

		// Implicit promotion: outputs become the next step's inputs. A key
		// collision would silently overwrite data, so it is a structural
		// failure, not a merge.
		if i < len(wf.Steps)-1 {
			promoted, collisions := current.PromoteOutputs()
			if len(collisions) > 0 {
				serr := NewStepError(step.Name, ErrorTypePromotionCollision,
					fmt.Sprintf("promoting outputs would overwrite input keys: %s", strings.Join(collisions, ", "))).
					WithContext("colliding_keys", collisions)
				recordFailure(step, i, serr)
				continue
			}
			current = promoted
		}
	}

	if pipelineFailure == nil {
		e.emitEvent(EngineEvent{Type: EventWorkflowCompleted, RunID: runID, Workflow: wf.Name})
		return current, nil
	}

	if len(alwaysRunFailures) > 0 {
		pipelineFailure.WithContext("always_run_failures", alwaysRunFailures)
	}
	e.emitEvent(EngineEvent{Type: EventWorkflowFailed, RunID: runID, Workflow: wf.Name,
		Data: map[string]any{"step": pipelineFailure.StepName, "error_type": string(pipelineFailure.Type)}})
	return current, pipelineFailure
}

// resolveInputFrom injects registered data-flow outputs into the step's
// inputs, pair by pair in sorted source order. Missing sources and target-key
// collisions are failures, never silent defaults or overwrites.
func resolveInputFrom(step StepDescriptor, pctx Context, dataFlow map[string]Vals) (Context, *StepError) {
	resolved := pctx
	for _, source := range sortedKeys(step.InputFrom) {
		target := step.InputFrom[source]
		registered, ok := dataFlow[source]
		if !ok {
			return pctx, NewStepError(step.Name, ErrorTypeMissingInputFrom,
				fmt.Sprintf("input_from source %q has not been registered by any completed step", source)).
				WithContext("missing_source", source).
				WithContext("available_sources", sortedKeys(dataFlow))
		}
		if resolved.Inputs().Has(target) {
			return pctx, NewStepError(step.Name, ErrorTypeInputFromCollision,
				fmt.Sprintf("input_from target key %q already present in inputs", target)).
				WithContext("source", source).
				WithContext("target_key", target)
		}
		resolved = resolved.WithInput(target, registered)
	}
	return resolved, nil
}

// safeEvalCondition evaluates a condition with panic recovery so a faulty
// predicate becomes a step failure instead of an engine crash.
func safeEvalCondition(cond ConditionFunc, pctx Context) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("condition panic: %v", r)
			ok = false
		}
	}()
	return cond(pctx)
}

// emitEvent sends an event to the configured handler, stamping the current
// time if Timestamp is unset.
func (e *Engine) emitEvent(evt EngineEvent) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	if e.config.EventHandler != nil {
		e.config.EventHandler(evt)
	}
}

// NewRunID creates a ULID run identifier.
func NewRunID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}
