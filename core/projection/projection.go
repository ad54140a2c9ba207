// Package projection forecasts output characteristics for workflow chaining.
// An outputs document mirrors the inputs document, but each of value, size,
// weight, and length may itself be an estimator instead of a literal, so a
// downstream process can quote against the predicted size of this process's
// output without waiting for an actual execution.
package projection

import (
	"context"

	"quote-engine/core/determinism"
	"quote-engine/core/document"
	"quote-engine/core/estimator"
	"quote-engine/core/feature"
	"quote-engine/internal/errors"
)

// Spec describes one process output: a value or size source plus weight and
// length sources, each either a literal constant or a model-backed estimator.
type Spec struct {
	// ID is the process output identifier
	ID string

	// Source resolves the value (literal outputs) or size (file outputs)
	Source estimator.Estimator

	// Complex is true for file/directory outputs (size-based)
	Complex bool

	// Weight and Length resolve the multipliers (default constant 1)
	Weight estimator.Estimator
	Length estimator.Estimator
}

// Outputs is a validated outputs document
type Outputs struct {
	specs *determinism.StableMap[string, *Spec]
}

// IDs returns the declared output identifiers in sorted order
func (o *Outputs) IDs() []string {
	return o.specs.Keys()
}

// Spec returns the declared output by identifier
func (o *Outputs) Spec(id string) (*Spec, bool) {
	return o.specs.Get(id)
}

// Resolved is one projected output ready to be threaded into a downstream
// estimation as an input feature.
type Resolved struct {
	// Value carries the projection for literal outputs, Size for file
	// outputs; Complex tells which one is populated
	Value   float64 `json:"value,omitempty"`
	Size    float64 `json:"size,omitempty"`
	Complex bool    `json:"-"`

	Weight float64 `json:"weight"`
	Length float64 `json:"length"`
}

// LoadOutputs reads and parses an outputs document file (JSON or YAML)
func LoadOutputs(path string) (*Outputs, error) {
	doc, err := document.Load(path)
	if err != nil {
		return nil, err
	}
	return ParseOutputs(doc)
}

// ParseOutputs validates a decoded outputs document
func ParseOutputs(raw map[string]interface{}) (*Outputs, error) {
	out := &Outputs{specs: determinism.NewStableMap[string, *Spec]()}

	for id, v := range raw {
		spec, err := parseSpec(id, v)
		if err != nil {
			return nil, err
		}
		out.specs.Set(id, spec)
	}
	return out, nil
}

func parseSpec(id string, raw interface{}) (*Spec, error) {
	path := "outputs." + id
	spec := &Spec{
		ID:     id,
		Weight: estimator.Constant(1),
		Length: estimator.Constant(1),
	}

	record, ok := raw.(map[string]interface{})
	if !ok {
		// Bare shorthand: a literal value with default multipliers.
		src, err := estimator.ParseValue(path, raw)
		if err != nil {
			return nil, err
		}
		spec.Source = src
		return spec, nil
	}

	value, hasValue := record["value"]
	size, hasSize := record["size"]
	if hasValue && hasSize {
		return nil, errors.Schema(path, "output cannot carry both value and size")
	}
	if !hasValue && !hasSize {
		return nil, errors.Schema(path, "output must carry either value or size")
	}
	for key := range record {
		switch key {
		case "value", "size", "weight", "length":
		default:
			return nil, errors.Schemaf(path+"."+key, "unknown output property %q", key)
		}
	}

	var err error
	if hasSize {
		spec.Complex = true
		spec.Source, err = estimator.ParseValue(path+".size", size)
	} else {
		spec.Source, err = estimator.ParseValue(path+".value", value)
	}
	if err != nil {
		return nil, err
	}

	if rawWeight, ok := record["weight"]; ok {
		if spec.Weight, err = estimator.ParseValue(path+".weight", rawWeight); err != nil {
			return nil, err
		}
	}
	if rawLength, ok := record["length"]; ok {
		if spec.Length, err = estimator.ParseValue(path+".length", rawLength); err != nil {
			return nil, err
		}
	}
	return spec, nil
}

// Projector resolves outputs documents against a feature context
type Projector struct {
	evaluator *estimator.Evaluator
}

// NewProjector creates a projector backed by the given evaluator
func NewProjector(ev *estimator.Evaluator) *Projector {
	return &Projector{evaluator: ev}
}

// Project evaluates every declared output against the same feature context
// used for cost estimation.
func (p *Projector) Project(ctx context.Context, outputs *Outputs, features *feature.Context) (map[string]Resolved, error) {
	resolved := make(map[string]Resolved, len(outputs.IDs()))

	for _, id := range outputs.IDs() {
		spec, _ := outputs.Spec(id)

		source, err := p.evaluator.Evaluate(ctx, "outputs."+id, spec.Source, features)
		if err != nil {
			return nil, err
		}
		weight, err := p.evaluator.Evaluate(ctx, "outputs."+id+".weight", spec.Weight, features)
		if err != nil {
			return nil, err
		}
		length, err := p.evaluator.Evaluate(ctx, "outputs."+id+".length", spec.Length, features)
		if err != nil {
			return nil, err
		}

		r := Resolved{Weight: weight, Length: length, Complex: spec.Complex}
		if spec.Complex {
			r.Size = source
		} else {
			r.Value = source
		}
		resolved[id] = r
	}
	return resolved, nil
}
