// Package estimator defines the estimator sum type and its evaluator.
// An estimator is a resolvable source of one scalar: either a fixed constant
// or a predictive model evaluated against the resolved process inputs. Real
// cost computation reuses the same slot with a monitored measurement supplied
// as the constant, so aggregation never distinguishes the two modes.
package estimator

import (
	"encoding/json"
	"fmt"
	"strconv"

	"quote-engine/internal/errors"
)

// Estimator is a tagged union: a constant scalar or a model reference.
// Exactly one variant is active; the zero value is the constant 0.0.
type Estimator struct {
	constant float64
	model    *ModelSpec
}

// Constant creates a constant estimator
func Constant(v float64) Estimator {
	return Estimator{constant: v}
}

// Model creates a model-backed estimator
func Model(spec *ModelSpec) Estimator {
	return Estimator{model: spec}
}

// IsModel reports whether the model variant is active
func (e Estimator) IsModel() bool {
	return e.model != nil
}

// ConstantValue returns the constant variant's value (0 for model estimators)
func (e Estimator) ConstantValue() float64 {
	return e.constant
}

// ModelSpec references a predictive model and how its input slots bind to
// process inputs.
type ModelSpec struct {
	// Graph is the serialized model document; kept in canonical JSON form so
	// compiled runtimes can be cached by content hash
	Graph json.RawMessage

	// Inputs maps model input slots (by name or index) to process inputs.
	// A nil map requests implicit one-to-one binding by exact identifier.
	Inputs map[string]Target

	// HasInputs distinguishes an explicitly empty mapping from an omitted one
	HasInputs bool

	// Output selects which model output is the scalar result
	Output Selector
}

// Target is one binding in a model input mapping: a process input selected by
// identifier or positional index, or a dropped slot.
type Target struct {
	// Drop marks the slot as excluded from inference
	Drop bool

	// Name selects a process input by identifier
	Name string

	// Index selects a process input by sorted position
	Index int

	// ByIndex is true when Index is the active selector
	ByIndex bool
}

// Selector picks a model output by name or index; the zero value selects the
// first output.
type Selector struct {
	Name    string
	Index   int
	ByIndex bool
	named   bool
}

// IsDefault reports whether the selector was left unset
func (s Selector) IsDefault() bool {
	return !s.named && !s.ByIndex
}

func (s Selector) String() string {
	switch {
	case s.named:
		return s.Name
	case s.ByIndex:
		return strconv.Itoa(s.Index)
	default:
		return "<first>"
	}
}

// ParseValue builds an Estimator from a decoded configuration value: a bare
// number is a constant, an object with a model property is a model reference.
func ParseValue(path string, v interface{}) (Estimator, error) {
	if v == nil {
		return Constant(0), nil
	}
	if n, ok := toNumber(v); ok {
		return Constant(n), nil
	}

	record, ok := v.(map[string]interface{})
	if !ok {
		return Estimator{}, errors.Schemaf(path, "estimator must be a number or a model reference, got %T", v)
	}
	for key := range record {
		switch key {
		case "model", "inputs", "output":
		default:
			return Estimator{}, errors.Schemaf(path+"."+key, "unknown estimator property %q", key)
		}
	}

	modelRaw, ok := record["model"]
	if !ok {
		return Estimator{}, errors.Schema(path+".model", "model estimator requires a model graph")
	}
	// Re-marshal to canonical JSON (sorted keys) so identical models hash
	// identically regardless of source formatting.
	graph, err := json.Marshal(modelRaw)
	if err != nil {
		return Estimator{}, errors.Wrap(errors.TypeSchema, "model graph is not JSON-serializable", err).WithField(path + ".model")
	}

	spec := &ModelSpec{Graph: graph}

	if rawInputs, ok := record["inputs"]; ok {
		mapping, ok := rawInputs.(map[string]interface{})
		if !ok {
			return Estimator{}, errors.Schema(path+".inputs", "inputs mapping must be an object")
		}
		spec.HasInputs = true
		spec.Inputs = make(map[string]Target, len(mapping))
		for slot, target := range mapping {
			t, err := parseTarget(fmt.Sprintf("%s.inputs.%s", path, slot), target)
			if err != nil {
				return Estimator{}, err
			}
			spec.Inputs[slot] = t
		}
	}

	if rawOutput, ok := record["output"]; ok {
		sel, err := parseSelector(path+".output", rawOutput)
		if err != nil {
			return Estimator{}, err
		}
		spec.Output = sel
	}

	return Model(spec), nil
}

func parseTarget(path string, v interface{}) (Target, error) {
	if v == nil {
		return Target{Drop: true}, nil
	}
	if s, ok := v.(string); ok {
		return Target{Name: s}, nil
	}
	if n, ok := toNumber(v); ok {
		idx := int(n)
		if float64(idx) != n || idx < 0 {
			return Target{}, errors.Schema(path, "input index must be a non-negative integer")
		}
		return Target{Index: idx, ByIndex: true}, nil
	}
	return Target{}, errors.Schemaf(path, "mapping target must be an identifier, an index, or null, got %T", v)
}

func parseSelector(path string, v interface{}) (Selector, error) {
	if s, ok := v.(string); ok {
		return Selector{Name: s, named: true}, nil
	}
	if n, ok := toNumber(v); ok {
		idx := int(n)
		if float64(idx) != n || idx < 0 {
			return Selector{}, errors.Schema(path, "output index must be a non-negative integer")
		}
		return Selector{Index: idx, ByIndex: true}, nil
	}
	return Selector{}, errors.Schemaf(path, "output selector must be a name or an index, got %T", v)
}

func toNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
