// ABOUTME: Typed accessors for step inputs, which arrive as untyped values from YAML, JSON, or prior steps.
// ABOUTME: Converts strings, numbers, and durations with per-step errors naming the bad key.
package steps

import (
	"fmt"

	"github.com/2389-research/railcar/railway"
)

// stringInput reads an input as a string. Returns false when the key is
// absent or holds a non-string value.
func stringInput(pctx railway.Context, key string) (string, bool) {
	val, ok := pctx.Input(key)
	if !ok {
		return "", false
	}
	s, isStr := val.(string)
	return s, isStr
}

// requireString reads a mandatory string input, erroring when it is absent
// or empty.
func requireString(pctx railway.Context, key, stepName string) (string, error) {
	s, ok := stringInput(pctx, key)
	if !ok || s == "" {
		return "", fmt.Errorf("%s requires a %q input", stepName, key)
	}
	return s, nil
}

// floatInput reads a numeric input, accepting the types YAML and JSON
// decoding produce. Returns present=false when the key is absent; an error
// when the value is not numeric.
func floatInput(pctx railway.Context, key string) (val float64, present bool, err error) {
	raw, ok := pctx.Input(key)
	if !ok {
		return 0, false, nil
	}
	switch n := raw.(type) {
	case float64:
		return n, true, nil
	case float32:
		return float64(n), true, nil
	case int:
		return float64(n), true, nil
	case int64:
		return float64(n), true, nil
	default:
		return 0, true, fmt.Errorf("input %q must be a number, got %T", key, raw)
	}
}

// intInput reads an integer-valued numeric input.
func intInput(pctx railway.Context, key string) (val int, present bool, err error) {
	f, present, err := floatInput(pctx, key)
	if err != nil || !present {
		return 0, present, err
	}
	return int(f), true, nil
}

// claimOutputs removes keys from the inputs of pctx. Built-in steps own
// their output keys: a stale value promoted from an earlier step is
// replaced rather than left to collide at promotion time.
func claimOutputs(pctx railway.Context, keys ...string) railway.Context {
	drop := make(map[string]bool, len(keys))
	for _, k := range keys {
		drop[k] = true
	}
	inputs := pctx.Inputs()
	cleaned := railway.NewVals()
	for _, k := range inputs.Keys() {
		if drop[k] {
			continue
		}
		v, _ := inputs.Get(k)
		cleaned = cleaned.Set(k, v)
	}
	return pctx.WithInputs(cleaned)
}
