package estimator

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"quote-engine/core/feature"
	"quote-engine/core/modelgraph"
	"quote-engine/internal/errors"
	"quote-engine/internal/logging"
)

// RuntimeLoader turns a serialized model document into an executable runtime.
// modelgraph.Loader is the default implementation.
type RuntimeLoader interface {
	Load(data []byte) (modelgraph.Runtime, error)
}

// Evaluator resolves estimators to scalar values against a feature context
type Evaluator struct {
	loader RuntimeLoader
}

// NewEvaluator creates an evaluator backed by the given model loader
func NewEvaluator(loader RuntimeLoader) *Evaluator {
	return &Evaluator{loader: loader}
}

// Evaluate resolves one estimator. The category names the configuration slot
// being evaluated and is carried into every error. Constants return directly,
// independent of the feature context.
func (ev *Evaluator) Evaluate(ctx context.Context, category string, est Estimator, features *feature.Context) (float64, error) {
	if !est.IsModel() {
		return est.ConstantValue(), nil
	}

	spec := est.model
	rt, err := ev.loader.Load(spec.Graph)
	if err != nil {
		return 0, err
	}
	modelName := graphName(rt)

	vector, err := assembleVector(category, spec, rt.InputNames(), features)
	if err != nil {
		return 0, err
	}

	outputs, err := rt.Infer(ctx, vector)
	if err != nil {
		return 0, errors.Inference(category, modelName, err)
	}

	value, err := selectScalar(spec.Output, outputs)
	if err != nil {
		return 0, errors.Inference(category, modelName, err)
	}

	logging.Debug("estimator evaluated",
		zap.String("category", category),
		zap.String("model", modelName),
		zap.Float64("value", value))
	return value, nil
}

// assembleVector builds the feature vector in model input order. Dropped
// slots stay in the vector as zero so the model's declared arity is kept; a
// graph whose mapping drops a slot is expected not to consume it.
func assembleVector(category string, spec *ModelSpec, slots []string, features *feature.Context) ([]float64, error) {
	if !spec.HasInputs {
		return assembleImplicit(category, slots, features)
	}

	// Mapping entries must address real model slots.
	for key := range spec.Inputs {
		if !slotExists(key, slots) {
			return nil, errors.Mapping(category, key, "mapping references a model input the graph does not declare")
		}
	}

	vector := make([]float64, len(slots))
	for i, slot := range slots {
		target, ok := lookupTarget(spec.Inputs, slot, i)
		if !ok {
			// Slots absent from an explicit mapping bind by exact identifier.
			target = Target{Name: slot}
		}
		if target.Drop {
			continue
		}

		var f *feature.Feature
		if target.ByIndex {
			f, ok = features.At(target.Index)
			if !ok {
				return nil, errors.Mapping(category, slot,
					fmt.Sprintf("process input index %d is out of range (%d inputs)", target.Index, features.Len()))
			}
		} else {
			f, ok = features.Get(target.Name)
			if !ok {
				return nil, errors.Mapping(category, slot,
					fmt.Sprintf("process input %q was not supplied", target.Name))
			}
		}
		vector[i] = f.Contribution()
	}
	return vector, nil
}

// assembleImplicit binds slots one-to-one by exact identifier. The model
// input name set must equal the supplied process input identifier set.
func assembleImplicit(category string, slots []string, features *feature.Context) ([]float64, error) {
	for _, slot := range slots {
		if _, ok := features.Get(slot); !ok {
			return nil, errors.Mapping(category, slot,
				fmt.Sprintf("model input %q has no process input of the same identifier", slot))
		}
	}
	if features.Len() != len(slots) {
		return nil, errors.Mapping(category, "",
			fmt.Sprintf("implicit mapping requires exactly matching inputs: model declares %d, %d supplied",
				len(slots), features.Len()))
	}

	vector := make([]float64, len(slots))
	for i, slot := range slots {
		f, _ := features.Get(slot)
		vector[i] = f.Contribution()
	}
	return vector, nil
}

// lookupTarget finds the mapping entry for a slot, addressed by name first
// and by position as a fallback.
func lookupTarget(mapping map[string]Target, slot string, index int) (Target, bool) {
	if t, ok := mapping[slot]; ok {
		return t, true
	}
	if t, ok := mapping[strconv.Itoa(index)]; ok {
		return t, true
	}
	return Target{}, false
}

func slotExists(key string, slots []string) bool {
	for i, slot := range slots {
		if key == slot || key == strconv.Itoa(i) {
			return true
		}
	}
	return false
}

// selectScalar picks the configured model output and requires it to be a
// single floating-point value.
func selectScalar(sel Selector, outputs []modelgraph.Output) (float64, error) {
	if len(outputs) == 0 {
		return 0, fmt.Errorf("model produced no outputs")
	}

	var out modelgraph.Output
	switch {
	case sel.named:
		found := false
		for _, o := range outputs {
			if o.Name == sel.Name {
				out = o
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("model has no output named %q", sel.Name)
		}
	case sel.ByIndex:
		if sel.Index >= len(outputs) {
			return 0, fmt.Errorf("output index %d out of range (%d outputs)", sel.Index, len(outputs))
		}
		out = outputs[sel.Index]
	default:
		out = outputs[0]
	}

	if len(out.Values) != 1 {
		return 0, fmt.Errorf("output %q is not a scalar (%d values)", out.Name, len(out.Values))
	}
	return out.Values[0], nil
}

func graphName(rt modelgraph.Runtime) string {
	if named, ok := rt.(interface{ GraphName() string }); ok && named.GraphName() != "" {
		return named.GraphName()
	}
	return "model"
}
