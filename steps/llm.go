// ABOUTME: The llm_complete step: sends prompt/system inputs to an LLM provider and captures the completion.
// ABOUTME: Maps prompt, system, model, and max_tokens inputs onto one Completer call.
package steps

import (
	"context"
	"fmt"

	"github.com/2389-research/railcar/llm"
	"github.com/2389-research/railcar/railway"
)

// LLMComplete builds the llm_complete step function over a Completer.
// Inputs: prompt (required), system, model, max_tokens (optional).
// Outputs: completion, completion_model, completion_usage.
func LLMComplete(client llm.Completer) railway.StepFunc {
	return func(ctx context.Context, pctx railway.Context) (railway.Context, error) {
		prompt, err := requireString(pctx, "prompt", "llm_complete")
		if err != nil {
			return pctx, err
		}

		req := llm.CompletionRequest{Prompt: prompt}
		if system, ok := stringInput(pctx, "system"); ok {
			req.System = system
		}
		if model, ok := stringInput(pctx, "model"); ok {
			req.Model = model
		}
		if maxTokens, present, err := intInput(pctx, "max_tokens"); err != nil {
			return pctx, fmt.Errorf("llm_complete: %w", err)
		} else if present {
			req.MaxTokens = maxTokens
		}

		completion, err := client.Complete(ctx, req)
		if err != nil {
			return pctx, fmt.Errorf("llm_complete: %w", err)
		}

		return claimOutputs(pctx, "completion", "completion_model", "completion_usage").
			WithOutput("completion", completion.Text).
			WithOutput("completion_model", completion.Model).
			WithOutput("completion_usage", map[string]int{
				"input_tokens":  completion.InputTokens,
				"output_tokens": completion.OutputTokens,
			}), nil
	}
}
