// ABOUTME: Execution Context threaded through a workflow run: inputs, outputs, and feedback.
// ABOUTME: Every update returns a new Context; a caller holding an older value sees a stable snapshot.
package railway

import (
	"encoding/json"
	"sort"
)

// sortedKeys returns the keys of m in sorted order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Vals is an insertion-ordered string-to-value mapping used for Context inputs
// and outputs. The zero value is an empty, usable mapping. Vals is never
// mutated in place: Set returns a fresh copy, so two Vals values never share
// observable state.
type Vals struct {
	keys   []string
	values map[string]any
}

// NewVals returns an empty Vals.
func NewVals() Vals {
	return Vals{}
}

// ValsFromMap builds a Vals from a plain map. Insertion order is the sorted
// key order, so construction from an unordered map stays deterministic.
func ValsFromMap(m map[string]any) Vals {
	v := Vals{}
	for _, k := range sortedKeys(m) {
		v = v.Set(k, m[k])
	}
	return v
}

// Get returns the value stored under key and whether it is present.
func (v Vals) Get(key string) (any, bool) {
	val, ok := v.values[key]
	return val, ok
}

// Has reports whether key is present.
func (v Vals) Has(key string) bool {
	_, ok := v.values[key]
	return ok
}

// Len returns the number of entries.
func (v Vals) Len() int {
	return len(v.keys)
}

// Keys returns the keys in insertion order. The returned slice is a copy.
func (v Vals) Keys() []string {
	out := make([]string, len(v.keys))
	copy(out, v.keys)
	return out
}

// Map returns the entries as a plain map. The returned map is a copy.
func (v Vals) Map() map[string]any {
	out := make(map[string]any, len(v.values))
	for k, val := range v.values {
		out[k] = val
	}
	return out
}

// Set returns a copy of v with key set to value. A new key is appended to the
// insertion order; an existing key keeps its position.
func (v Vals) Set(key string, value any) Vals {
	next := v.clone()
	if _, exists := next.values[key]; !exists {
		next.keys = append(next.keys, key)
	}
	next.values[key] = value
	return next
}

// MarshalJSON serializes the mapping as a JSON object in insertion order.
func (v Vals) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, k := range v.keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		keyJSON, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		valJSON, err := json.Marshal(v.values[k])
		if err != nil {
			return nil, err
		}
		buf = append(buf, keyJSON...)
		buf = append(buf, ':')
		buf = append(buf, valJSON...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// clone copies the backing slice and map so the receiver is never aliased.
func (v Vals) clone() Vals {
	next := Vals{
		keys:   make([]string, len(v.keys)),
		values: make(map[string]any, len(v.values)),
	}
	copy(next.keys, v.keys)
	for k, val := range v.values {
		next.values[k] = val
	}
	return next
}

// Context is the execution state threaded through a workflow run. Inputs feed
// the step currently executing, outputs are populated by it, and feedback is
// an append-only trail of diagnostic notes accumulated across attempts.
//
// Context is a value type over copy-on-write data: every With*/Promote method
// returns a new Context and leaves the receiver untouched. This replacement
// discipline is the engine's sole concurrency property -- a caller retaining
// an earlier Context sees a stable snapshot even while the run advances.
type Context struct {
	inputs   Vals
	outputs  Vals
	feedback []string
}

// NewContext returns an empty Context.
func NewContext() Context {
	return Context{}
}

// NewContextWithInputs returns a Context seeded with the given inputs. Keys
// are inserted in sorted order so the seed ordering is deterministic.
func NewContextWithInputs(inputs map[string]any) Context {
	return Context{inputs: ValsFromMap(inputs)}
}

// Inputs returns the input mapping.
func (c Context) Inputs() Vals {
	return c.inputs
}

// Outputs returns the output mapping.
func (c Context) Outputs() Vals {
	return c.outputs
}

// Input returns the input stored under key and whether it is present.
func (c Context) Input(key string) (any, bool) {
	return c.inputs.Get(key)
}

// Output returns the output stored under key and whether it is present.
func (c Context) Output(key string) (any, bool) {
	return c.outputs.Get(key)
}

// Feedback returns the accumulated feedback notes. The returned slice is a copy.
func (c Context) Feedback() []string {
	out := make([]string, len(c.feedback))
	copy(out, c.feedback)
	return out
}

// WithInput returns a Context with key set in inputs.
func (c Context) WithInput(key string, value any) Context {
	c.inputs = c.inputs.Set(key, value)
	return c
}

// WithOutput returns a Context with key set in outputs.
func (c Context) WithOutput(key string, value any) Context {
	c.outputs = c.outputs.Set(key, value)
	return c
}

// WithInputs returns a Context whose inputs are replaced wholesale.
func (c Context) WithInputs(inputs Vals) Context {
	c.inputs = inputs
	return c
}

// WithOutputs returns a Context whose outputs are replaced wholesale.
func (c Context) WithOutputs(outputs Vals) Context {
	c.outputs = outputs
	return c
}

// WithFeedback returns a Context with note appended to the feedback trail.
func (c Context) WithFeedback(note string) Context {
	next := make([]string, len(c.feedback), len(c.feedback)+1)
	copy(next, c.feedback)
	c.feedback = append(next, note)
	return c
}

// PromoteOutputs merges the outputs into the inputs and clears the outputs,
// preparing the Context for the next step. Output keys already present in the
// inputs are returned as collisions; when collisions is non-empty the
// returned Context is the receiver unchanged, since a silent overwrite would
// lose data.
func (c Context) PromoteOutputs() (Context, []string) {
	var collisions []string
	for _, k := range c.outputs.keys {
		if c.inputs.Has(k) {
			collisions = append(collisions, k)
		}
	}
	if len(collisions) > 0 {
		return c, collisions
	}

	merged := c.inputs
	for _, k := range c.outputs.keys {
		merged = merged.Set(k, c.outputs.values[k])
	}
	c.inputs = merged
	c.outputs = Vals{}
	return c, nil
}
