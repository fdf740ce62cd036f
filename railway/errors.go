// ABOUTME: StepError is the engine's sole failure representation: step name, category, message, diagnostics.
// ABOUTME: Defines the error taxonomy and helpers for attributing arbitrary step errors to a step.
package railway

import (
	"errors"
	"fmt"
)

// ErrorType is a short machine-readable failure category. The taxonomy is
// open: external step implementations may report their own types and the
// engine treats all of them uniformly.
type ErrorType string

const (
	ErrorTypeUnknownStepFunction ErrorType = "UnknownStepFunction"
	ErrorTypeShellCommandFailed  ErrorType = "ShellCommandFailed"
	ErrorTypeMissingInputFrom    ErrorType = "MissingInputFromError"
	ErrorTypeInputFromCollision  ErrorType = "InputFromCollisionError"
	ErrorTypeConditionEvaluation ErrorType = "ConditionEvaluationError"
	ErrorTypePromotionCollision  ErrorType = "PromotionCollisionError"
	ErrorTypeStepExecution       ErrorType = "StepExecutionError"
	ErrorTypeStepPanic           ErrorType = "StepPanic"
)

// StepError is the structured failure record produced by any failing engine
// operation. StepName attributes the failure, Type categorizes it, and
// Context carries open diagnostic data (available data-flow names, step
// index, nested always-run failures, shell exit codes).
type StepError struct {
	StepName string         `json:"step_name"`
	Type     ErrorType      `json:"error_type"`
	Message  string         `json:"message"`
	Context  map[string]any `json:"context,omitempty"`

	cause error
}

// NewStepError creates a StepError attributed to stepName.
func NewStepError(stepName string, errType ErrorType, message string) *StepError {
	return &StepError{
		StepName: stepName,
		Type:     errType,
		Message:  message,
	}
}

// Error implements the error interface.
func (e *StepError) Error() string {
	if e.StepName == "" {
		return fmt.Sprintf("[%s] %s", e.Type, e.Message)
	}
	return fmt.Sprintf("step %q failed [%s]: %s", e.StepName, e.Type, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *StepError) Unwrap() error {
	return e.cause
}

// WithContext sets a diagnostic key on the error and returns it for chaining.
func (e *StepError) WithContext(key string, value any) *StepError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithCause records the underlying error and returns the StepError for chaining.
func (e *StepError) WithCause(err error) *StepError {
	e.cause = err
	return e
}

// Serialize renders the error as a plain diagnostic record, used when nesting
// always-run failures inside a primary failure's context.
func (e *StepError) Serialize() map[string]any {
	out := map[string]any{
		"step_name":  e.StepName,
		"error_type": string(e.Type),
		"message":    e.Message,
	}
	if len(e.Context) > 0 {
		out["context"] = e.Context
	}
	return out
}

// AsStepError extracts a *StepError from err's chain.
func AsStepError(err error) (*StepError, bool) {
	var se *StepError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// attributeError guarantees that err is a *StepError carrying a step name.
// A StepError already naming a step is returned unchanged -- the engine never
// re-attributes a failure a step reported about itself. Plain errors are
// wrapped as StepExecutionError.
func attributeError(err error, stepName string) *StepError {
	if se, ok := AsStepError(err); ok {
		if se.StepName == "" {
			se.StepName = stepName
		}
		return se
	}
	return NewStepError(stepName, ErrorTypeStepExecution, err.Error()).WithCause(err)
}
