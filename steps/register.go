// ABOUTME: Wires the built-in step implementations into a railway Registry.
// ABOUTME: Optional collaborators gate their steps; without them the names stay unregistered.
package steps

import (
	"github.com/2389-research/railcar/bridge"
	"github.com/2389-research/railcar/llm"
	"github.com/2389-research/railcar/railway"
)

// Options configures optional collaborators for the built-in steps. A nil
// collaborator leaves its step unregistered, so workflows naming it fail
// validation with a clear error.
type Options struct {
	// Completer backs the llm_complete step.
	Completer llm.Completer

	// Filer backs the bmad_sync step.
	Filer bridge.IssueFiler
}

// RegisterBuiltins registers the built-in step functions on reg and installs
// the shell step as the registry's reserved shell dispatch.
func RegisterBuiltins(reg *railway.Registry, opts Options) {
	reg.SetShellDispatch(Shell)
	reg.Register("write_file", WriteFile)
	reg.Register("read_file", ReadFile)
	reg.Register("remove_file", RemoveFile)
	if opts.Completer != nil {
		reg.Register("llm_complete", LLMComplete(opts.Completer))
	}
	if opts.Filer != nil {
		reg.Register("bmad_sync", BMADSync(opts.Filer))
	}
}
