// ABOUTME: WorkflowDescriptor is an ordered list of StepDescriptors plus identifying metadata.
// ABOUTME: Validate catches structural problems at load time so typos fail fast, not mid-run.
package railway

import (
	"fmt"
	"strings"
)

// WorkflowDescriptor describes a workflow: the steps in execution order plus
// metadata. Execution order is exactly the declared order.
type WorkflowDescriptor struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Dispatchable marks the workflow as directly invocable by external
	// dispatch layers (the CLI run verb, the HTTP run endpoint). The engine
	// itself ignores it.
	Dispatchable bool `yaml:"dispatchable,omitempty" json:"dispatchable,omitempty"`

	Steps []StepDescriptor `yaml:"steps" json:"steps"`
}

// Validate checks the workflow for structural problems: invalid steps,
// duplicate step names, functions missing from the registry, and input_from
// sources that no earlier step's output declares. Pass a nil registry to
// skip function resolution (for tooling that validates shape only).
func (w WorkflowDescriptor) Validate(reg *Registry) error {
	var problems []string

	if strings.TrimSpace(w.Name) == "" {
		problems = append(problems, "workflow name is required")
	}
	if len(w.Steps) == 0 {
		problems = append(problems, "workflow has no steps")
	}

	seen := make(map[string]bool)
	produced := make(map[string]bool)
	for i, step := range w.Steps {
		label := fmt.Sprintf("step[%d] %q", i, step.Name)

		if err := step.Validate(); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", label, err))
		}
		if step.Name != "" {
			if seen[step.Name] {
				problems = append(problems, fmt.Sprintf("%s: duplicate step name", label))
			}
			seen[step.Name] = true
		}
		if !step.Shell && step.Function != "" && reg != nil && !reg.Has(step.Function) {
			problems = append(problems, fmt.Sprintf("%s: unknown step function %q (registered: %s)",
				label, step.Function, strings.Join(reg.Names(), ", ")))
		}
		for _, src := range sortedKeys(step.InputFrom) {
			if !produced[src] {
				problems = append(problems, fmt.Sprintf("%s: input_from source %q is not the output of any earlier step", label, src))
			}
		}
		if step.Output != "" {
			produced[step.Output] = true
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("workflow %q invalid: %s", w.Name, strings.Join(problems, "; "))
	}
	return nil
}

// FindStep returns the step with the given name, or nil if absent.
func (w WorkflowDescriptor) FindStep(name string) *StepDescriptor {
	for i := range w.Steps {
		if w.Steps[i].Name == name {
			return &w.Steps[i]
		}
	}
	return nil
}
