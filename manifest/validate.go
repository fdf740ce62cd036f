// ABOUTME: Manifest-level validation: cross-workflow checks plus per-workflow descriptor validation.
// ABOUTME: Rejects duplicate workflow names, empty documents, and per-workflow descriptor faults.
package manifest

import (
	"fmt"
	"strings"

	"github.com/2389-research/railcar/railway"
)

// Validate checks a loaded manifest against a step registry. It rejects
// empty manifests and duplicate workflow names, then validates each workflow
// (step shape, when syntax, unknown functions, input_from reachability).
// Pass a nil registry to skip function resolution.
func Validate(workflows []railway.WorkflowDescriptor, reg *railway.Registry) error {
	if len(workflows) == 0 {
		return fmt.Errorf("manifest declares no workflows")
	}

	var problems []string
	seen := make(map[string]bool)
	for _, wf := range workflows {
		if wf.Name != "" && seen[wf.Name] {
			problems = append(problems, fmt.Sprintf("duplicate workflow name %q", wf.Name))
		}
		seen[wf.Name] = true

		if err := wf.Validate(reg); err != nil {
			problems = append(problems, err.Error())
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("manifest invalid: %s", strings.Join(problems, "; "))
	}
	return nil
}
