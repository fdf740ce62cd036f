// ABOUTME: StepDescriptor is the declarative record for one unit of work in a workflow.
// ABOUTME: Carries dispatch target, retry policy, always-run flag, data-flow wiring, and conditions.
package railway

import (
	"fmt"
	"strings"
	"time"
)

// StepDescriptor describes one step of a workflow. Descriptors are plain,
// inspectable data: everything except the compiled-in Condition round-trips
// through YAML/JSON, so tooling can list, validate, or author workflows
// without executing them.
type StepDescriptor struct {
	// Name uniquely labels the step within its workflow. Used for diagnostics
	// and as the failure attribution in StepError.
	Name string `yaml:"name" json:"name"`

	// Function names a registered step implementation. Ignored when Shell is set.
	Function string `yaml:"function,omitempty" json:"function,omitempty"`

	// Shell routes the step to the reserved shell-dispatch implementation,
	// with Command injected into inputs under ShellCommandKey.
	Shell   bool   `yaml:"shell,omitempty" json:"shell,omitempty"`
	Command string `yaml:"command,omitempty" json:"command,omitempty"`

	// AlwaysRun lets the step execute even after an earlier step has failed.
	AlwaysRun bool `yaml:"always_run,omitempty" json:"always_run,omitempty"`

	// MaxAttempts is the number of times the step executor invokes the step
	// before giving up. Zero normalizes to 1.
	MaxAttempts int `yaml:"max_attempts,omitempty" json:"max_attempts,omitempty"`

	// RetryDelaySeconds is the non-negative pause between retry attempts.
	RetryDelaySeconds float64 `yaml:"retry_delay_seconds,omitempty" json:"retry_delay_seconds,omitempty"`

	// Output registers the step's outputs under this name in the
	// workflow-scoped data-flow registry.
	Output string `yaml:"output,omitempty" json:"output,omitempty"`

	// InputFrom maps a data-flow source name to the input key the registered
	// output map is injected under before the step runs.
	InputFrom map[string]string `yaml:"input_from,omitempty" json:"input_from,omitempty"`

	// When is a serializable condition expression; false skips the step.
	When string `yaml:"when,omitempty" json:"when,omitempty"`

	// Condition is a compiled-in predicate, for workflows authored in code.
	// Takes precedence over When. Never serialized.
	Condition ConditionFunc `yaml:"-" json:"-"`
}

// Attempts returns MaxAttempts normalized to at least 1.
func (s StepDescriptor) Attempts() int {
	if s.MaxAttempts < 1 {
		return 1
	}
	return s.MaxAttempts
}

// RetryDelay returns the retry pause as a duration.
func (s StepDescriptor) RetryDelay() time.Duration {
	if s.RetryDelaySeconds <= 0 {
		return 0
	}
	return time.Duration(s.RetryDelaySeconds * float64(time.Second))
}

// conditionFunc returns the effective predicate for this step: the compiled-in
// Condition when present, a When-expression evaluator when When is set, nil
// when the step is unconditional.
func (s StepDescriptor) conditionFunc() ConditionFunc {
	if s.Condition != nil {
		return s.Condition
	}
	if strings.TrimSpace(s.When) != "" {
		return WhenCondition(s.When)
	}
	return nil
}

// Validate checks the descriptor for structural problems: missing name,
// missing dispatch target, negative retry settings, malformed when syntax,
// and empty input_from entries.
func (s StepDescriptor) Validate() error {
	var problems []string

	if strings.TrimSpace(s.Name) == "" {
		problems = append(problems, "name is required")
	}
	if s.Shell {
		if strings.TrimSpace(s.Command) == "" {
			problems = append(problems, "shell step requires a command")
		}
	} else if strings.TrimSpace(s.Function) == "" {
		problems = append(problems, "non-shell step requires a function")
	}
	if s.MaxAttempts < 0 {
		problems = append(problems, fmt.Sprintf("max_attempts must be >= 0, got %d", s.MaxAttempts))
	}
	if s.RetryDelaySeconds < 0 {
		problems = append(problems, fmt.Sprintf("retry_delay_seconds must be >= 0, got %g", s.RetryDelaySeconds))
	}
	if s.When != "" {
		if err := ValidateWhen(s.When); err != nil {
			problems = append(problems, fmt.Sprintf("invalid when expression: %v", err))
		}
	}
	for src, target := range s.InputFrom {
		if strings.TrimSpace(src) == "" {
			problems = append(problems, "input_from has an empty source name")
		}
		if strings.TrimSpace(target) == "" {
			problems = append(problems, fmt.Sprintf("input_from source %q has an empty target key", src))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}
