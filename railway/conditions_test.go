// ABOUTME: Tests for the when-expression vocabulary used to gate steps.
// ABOUTME: Covers equality operators, AND conjunctions, key resolution, and malformed-clause errors.
package railway

import (
	"testing"
)

func TestEvaluateWhen(t *testing.T) {
	pctx := NewContext().
		WithInput("mode", "prod").
		WithInput("count", 3).
		WithOutput("status", "clean")

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"equals true", "mode = prod", true},
		{"equals false", "mode = dev", false},
		{"not equals true", "mode != dev", true},
		{"not equals false", "mode != prod", false},
		{"empty expression", "", true},
		{"whitespace expression", "   ", true},
		{"and both true", "mode = prod && count = 3", true},
		{"and second false", "mode = prod && count = 4", false},
		{"and first false", "mode = dev && count = 3", false},
		{"explicit inputs prefix", "inputs.mode = prod", true},
		{"outputs prefix", "outputs.status = clean", true},
		{"outputs prefix mismatch", "outputs.status = dirty", false},
		{"bare key resolves inputs not outputs", "status = clean", false},
		{"missing key equals empty", "absent = ", true},
		{"missing key not equals literal", "absent != anything", true},
		{"non-string value compares via rendering", "count = 3", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := EvaluateWhen(tc.expr, pctx)
			if err != nil {
				t.Fatalf("EvaluateWhen(%q) error: %v", tc.expr, err)
			}
			if got != tc.want {
				t.Errorf("EvaluateWhen(%q) = %v, want %v", tc.expr, got, tc.want)
			}
		})
	}
}

func TestEvaluateWhenMalformed(t *testing.T) {
	pctx := NewContext()

	tests := []struct {
		name string
		expr string
	}{
		{"no operator", "just a phrase"},
		{"missing key equals", "= value"},
		{"missing key not equals", "!= value"},
		{"second clause malformed", "mode = prod && broken"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := EvaluateWhen(tc.expr, pctx); err == nil {
				t.Errorf("expected error for %q", tc.expr)
			}
		})
	}
}

func TestWhenConditionCompiles(t *testing.T) {
	cond := WhenCondition("mode = prod")

	ok, err := cond(NewContext().WithInput("mode", "prod"))
	if err != nil || !ok {
		t.Errorf("expected true against prod inputs, got %v err=%v", ok, err)
	}

	ok, err = cond(NewContext().WithInput("mode", "dev"))
	if err != nil || ok {
		t.Errorf("expected false against dev inputs, got %v err=%v", ok, err)
	}
}

func TestResolveWhenKey(t *testing.T) {
	pctx := NewContext().
		WithInput("shared", "from-inputs").
		WithOutput("shared", "from-outputs")

	if got := resolveKey("shared", pctx); got != "from-inputs" {
		t.Errorf("expected bare key to resolve against inputs, got %q", got)
	}
	if got := resolveKey("inputs.shared", pctx); got != "from-inputs" {
		t.Errorf("expected inputs prefix to resolve inputs, got %q", got)
	}
	if got := resolveKey("outputs.shared", pctx); got != "from-outputs" {
		t.Errorf("expected outputs prefix to resolve outputs, got %q", got)
	}
	if got := resolveKey("missing", pctx); got != "" {
		t.Errorf("expected absent key to resolve empty, got %q", got)
	}
}

func TestValidateWhen(t *testing.T) {
	valid := []string{
		"",
		"   ",
		"mode = prod",
		"mode != dev",
		"inputs.a = 1 && outputs.b != 2",
		"key = ", // comparing against empty literal is legal
	}
	for _, expr := range valid {
		if err := ValidateWhen(expr); err != nil {
			t.Errorf("ValidateWhen(%q) = %v, want nil", expr, err)
		}
	}

	invalid := []string{
		"no operator here",
		"= value",
		"!= value",
		"a = 1 && ",
		"a = 1 && no operator",
	}
	for _, expr := range invalid {
		if err := ValidateWhen(expr); err == nil {
			t.Errorf("ValidateWhen(%q) = nil, want error", expr)
		}
	}
}
