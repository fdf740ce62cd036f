// ABOUTME: Condition predicates over the execution Context, including the serializable when-expression vocabulary.
// ABOUTME: Evaluates clauses like "inputs.mode = prod && outputs.status != dirty" without executing arbitrary code.
package railway

import (
	"fmt"
	"strings"
)

// ConditionFunc is a predicate over the execution Context. Returning an error
// marks the step as failed with ConditionEvaluationError rather than skipped.
type ConditionFunc func(pctx Context) (bool, error)

// WhenCondition compiles a when expression into a ConditionFunc.
// Expression grammar: Clause ('&&' Clause)*
// Clause: Key Operator Literal
// Key: 'inputs.' name | 'outputs.' name | bare name (resolved against inputs)
// Operator: '=' | '!='
// An empty or whitespace-only expression evaluates to true.
// The vocabulary is deliberately closed: workflows persisted as data stay
// inspectable and cannot smuggle executable code in.
func WhenCondition(expr string) ConditionFunc {
	return func(pctx Context) (bool, error) {
		return EvaluateWhen(expr, pctx)
	}
}

// EvaluateWhen evaluates a when expression against a Context. Malformed
// clauses return an error instead of silently evaluating false.
func EvaluateWhen(expr string, pctx Context) (bool, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return true, nil
	}

	for _, clause := range strings.Split(trimmed, "&&") {
		ok, err := evaluateClause(strings.TrimSpace(clause), pctx)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// evaluateClause evaluates a single "key op literal" clause.
func evaluateClause(clause string, pctx Context) (bool, error) {
	// Try != first (longer operator)
	if idx := strings.Index(clause, "!="); idx >= 0 {
		key := strings.TrimSpace(clause[:idx])
		literal := strings.TrimSpace(clause[idx+2:])
		if key == "" {
			return false, fmt.Errorf("clause %q has no key before !=", clause)
		}
		return resolveKey(key, pctx) != literal, nil
	}

	if idx := strings.Index(clause, "="); idx >= 0 {
		key := strings.TrimSpace(clause[:idx])
		literal := strings.TrimSpace(clause[idx+1:])
		if key == "" {
			return false, fmt.Errorf("clause %q has no key before =", clause)
		}
		return resolveKey(key, pctx) == literal, nil
	}

	return false, fmt.Errorf("clause %q has no = or != operator", clause)
}

// resolveKey resolves a key to its string rendering from the Context.
// "inputs.X" -> inputs[X], "outputs.X" -> outputs[X], bare key -> inputs[key].
// Absent keys resolve to the empty string, so "missing != anything" works.
func resolveKey(key string, pctx Context) string {
	if name, ok := strings.CutPrefix(key, "inputs."); ok {
		return stringify(pctx.Input(name))
	}
	if name, ok := strings.CutPrefix(key, "outputs."); ok {
		return stringify(pctx.Output(name))
	}
	return stringify(pctx.Input(key))
}

// stringify renders a looked-up value for comparison against a literal.
func stringify(val any, ok bool) string {
	if !ok || val == nil {
		return ""
	}
	if s, isStr := val.(string); isStr {
		return s
	}
	return fmt.Sprintf("%v", val)
}

// ValidateWhen checks a when expression for syntactic validity without
// evaluating it. Used at workflow-load time so malformed expressions fail
// fast instead of at step-execution time.
func ValidateWhen(expr string) error {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return nil
	}

	for _, clause := range strings.Split(trimmed, "&&") {
		c := strings.TrimSpace(clause)
		if c == "" {
			return fmt.Errorf("empty clause in expression %q", expr)
		}
		var key string
		if idx := strings.Index(c, "!="); idx >= 0 {
			key = strings.TrimSpace(c[:idx])
		} else if idx := strings.Index(c, "="); idx >= 0 {
			key = strings.TrimSpace(c[:idx])
		} else {
			return fmt.Errorf("clause %q has no = or != operator", c)
		}
		if key == "" {
			return fmt.Errorf("clause %q has no key before its operator", c)
		}
	}
	return nil
}
