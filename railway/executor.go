// ABOUTME: Single-step execution: shell/registry dispatch, the retry loop, and panic recovery.
// ABOUTME: Every exit path is a value; a misbehaving step function cannot crash the engine.
package railway

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"
)

// runMeta carries run identity into step-level events. Zero value means the
// step is being executed outside a workflow run (direct RunStep call).
type runMeta struct {
	runID    string
	workflow string
}

// RunStep resolves and executes a single step with its retry policy applied.
// On success it returns the step's resulting Context. On failure it returns
// the last attempt's error unchanged (never re-attributed) together with the
// input Context plus any retry feedback notes appended during the attempt
// cycle; callers aggregating at the workflow level discard that Context.
func (e *Engine) RunStep(ctx context.Context, step StepDescriptor, pctx Context) (Context, error) {
	return e.runStep(ctx, runMeta{}, step, pctx)
}

func (e *Engine) runStep(ctx context.Context, meta runMeta, step StepDescriptor, pctx Context) (Context, error) {
	fn, current, dispatchErr := e.dispatchTarget(step, pctx)
	if dispatchErr != nil {
		return pctx, dispatchErr
	}

	attempts := step.Attempts()
	var lastErr *StepError

	for attempt := 1; attempt <= attempts; attempt++ {
		// A cancelled context aborts the cycle with the last failure rather
		// than burning the remaining attempts.
		if ctx.Err() != nil {
			if lastErr != nil {
				return current, lastErr
			}
			return current, ctx.Err()
		}

		next, err := safeInvoke(ctx, fn, step.Name, current)
		if err == nil {
			return next, nil
		}
		lastErr = attributeError(err, step.Name)

		if attempt < attempts {
			current = current.WithFeedback(fmt.Sprintf("retry %d/%d for step '%s': %s",
				attempt, attempts, step.Name, lastErr.Message))
			e.emitEvent(EngineEvent{
				Type:     EventStepRetrying,
				RunID:    meta.runID,
				Workflow: meta.workflow,
				Step:     step.Name,
				Data:     map[string]any{"attempt": attempt, "max_attempts": attempts},
			})
			sleepWithContext(ctx, step.RetryDelay())
		}
	}

	return current, lastErr
}

// dispatchTarget picks the implementation for a step: the reserved shell
// dispatch (with the command injected under ShellCommandKey) for shell steps,
// a registry lookup otherwise.
func (e *Engine) dispatchTarget(step StepDescriptor, pctx Context) (StepFunc, Context, *StepError) {
	if step.Shell {
		fn, err := e.registry().shellDispatch()
		if err != nil {
			return nil, pctx, attributeError(err, step.Name)
		}
		return fn, pctx.WithInput(ShellCommandKey, step.Command), nil
	}

	fn, err := e.registry().Resolve(step.Function)
	if err != nil {
		return nil, pctx, attributeError(err, step.Name)
	}
	return fn, pctx, nil
}

// safeInvoke wraps a step function call with panic recovery, converting
// panics into StepPanic errors carrying the stack trace.
func safeInvoke(ctx context.Context, fn StepFunc, stepName string, pctx Context) (out Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewStepError(stepName, ErrorTypeStepPanic, fmt.Sprintf("step panic: %v", r)).
				WithContext("stack", string(debug.Stack()))
			out = pctx
		}
	}()
	return fn(ctx, pctx)
}

// sleepWithContext sleeps for the given duration, returning early if the
// context is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
		return
	}
}
