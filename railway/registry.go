// ABOUTME: Registry maps step function names to implementations and holds the reserved shell dispatch.
// ABOUTME: Unknown names resolve to a structured error listing every registered name.
package railway

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// ShellCommandKey is the reserved input key the engine writes a shell step's
// command under before invoking the shell dispatch function.
const ShellCommandKey = "shell_command"

// StepFunc is the uniform step implementation signature: a step receives the
// execution Context and returns either the advanced Context or an error.
// The context.Context carries cancellation for the step's own I/O.
type StepFunc func(ctx context.Context, pctx Context) (Context, error)

// Registry is the name-to-implementation lookup table consulted for every
// non-shell step. Shell steps bypass it and go straight to the reserved
// shell dispatch function.
type Registry struct {
	funcs map[string]StepFunc
	shell StepFunc
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]StepFunc)}
}

// Register binds name to fn, replacing any previous binding.
func (r *Registry) Register(name string, fn StepFunc) {
	r.funcs[name] = fn
}

// SetShellDispatch installs the reserved shell-dispatch implementation.
func (r *Registry) SetShellDispatch(fn StepFunc) {
	r.shell = fn
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.funcs[name]
	return ok
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the implementation registered under name. Unknown names
// produce an UnknownStepFunction error whose context lists the registered
// names, so a typo is diagnosable without reading engine source.
func (r *Registry) Resolve(name string) (StepFunc, error) {
	fn, ok := r.funcs[name]
	if !ok {
		names := r.Names()
		return nil, NewStepError("", ErrorTypeUnknownStepFunction,
			fmt.Sprintf("unknown step function %q (registered: %s)", name, strings.Join(names, ", "))).
			WithContext("registered_functions", names)
	}
	return fn, nil
}

// shellDispatch returns the reserved shell implementation, or an error when
// none is configured.
func (r *Registry) shellDispatch() (StepFunc, error) {
	if r.shell == nil {
		return nil, NewStepError("", ErrorTypeUnknownStepFunction,
			"no shell dispatch function configured on the registry")
	}
	return r.shell, nil
}
