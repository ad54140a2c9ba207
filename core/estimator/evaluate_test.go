package estimator

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"testing"

	"quote-engine/core/feature"
	"quote-engine/core/modelgraph"
	"quote-engine/internal/errors"
)

func newEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	loader, err := modelgraph.NewLoader(16)
	if err != nil {
		t.Fatalf("NewLoader failed: %v", err)
	}
	t.Cleanup(loader.Close)
	return NewEvaluator(loader)
}

func resolveFeatures(t *testing.T, inputs map[string]interface{}) *feature.Context {
	t.Helper()
	ctx, err := feature.Resolve(inputs)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	return ctx
}

func parseEstimator(t *testing.T, doc string) Estimator {
	t.Helper()
	var raw interface{}
	if err := json.Unmarshal([]byte(doc), &raw); err != nil {
		t.Fatalf("bad estimator document: %v", err)
	}
	est, err := ParseValue("config.test_estimator", raw)
	if err != nil {
		t.Fatalf("ParseValue failed: %v", err)
	}
	return est
}

// twoInputModel sums both inputs: y = a + b
const twoInputModel = `{
	"model": {
		"graph": {
			"name": "sum",
			"inputs": [{"name": "a"}, {"name": "b"}],
			"outputs": [{"name": "y"}],
			"nodes": [{"name": "add", "op": "Add", "inputs": ["a", "b"], "outputs": ["y"]}]
		}
	}MAPPING
}`

func modelWithMapping(mapping string) string {
	if mapping == "" {
		return replaceMapping(twoInputModel, "")
	}
	return replaceMapping(twoInputModel, `, "inputs": `+mapping)
}

func replaceMapping(doc, mapping string) string {
	return strings.ReplaceAll(doc, "MAPPING", mapping)
}

// Constants resolve independently of the feature context.
func TestConstantEvaluation(t *testing.T) {
	ev := newEvaluator(t)
	contexts := []*feature.Context{
		resolveFeatures(t, map[string]interface{}{}),
		resolveFeatures(t, map[string]interface{}{"data": 123.0}),
	}

	for _, c := range []float64{0, -1.5, 739, 1e9} {
		for _, fc := range contexts {
			got, err := ev.Evaluate(context.Background(), "duration", Constant(c), fc)
			if err != nil {
				t.Fatalf("Evaluate(Constant(%v)) failed: %v", c, err)
			}
			if got != c {
				t.Errorf("Evaluate(Constant(%v)) = %v", c, got)
			}
		}
	}
}

func TestImplicitMapping(t *testing.T) {
	ev := newEvaluator(t)
	est := parseEstimator(t, modelWithMapping(""))

	features := resolveFeatures(t, map[string]interface{}{"a": 3.0, "b": 4.0})
	got, err := ev.Evaluate(context.Background(), "duration", est, features)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if got != 7 {
		t.Errorf("sum = %v, want 7", got)
	}
}

// With no explicit mapping, the model input name set must equal the supplied
// process input identifier set exactly.
func TestImplicitMappingSetEquality(t *testing.T) {
	tests := []struct {
		name   string
		inputs map[string]interface{}
	}{
		{name: "missing model input", inputs: map[string]interface{}{"a": 1.0}},
		{name: "renamed input", inputs: map[string]interface{}{"a": 1.0, "c": 2.0}},
		{name: "extra process input", inputs: map[string]interface{}{"a": 1.0, "b": 2.0, "c": 3.0}},
	}

	ev := newEvaluator(t)
	est := parseEstimator(t, modelWithMapping(""))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			features := resolveFeatures(t, tt.inputs)
			_, err := ev.Evaluate(context.Background(), "duration", est, features)
			if err == nil {
				t.Fatal("expected mapping error, got nil")
			}
			if !errors.IsType(err, errors.TypeMapping) {
				t.Errorf("error type = %v, want MAPPING_ERROR", err)
			}
		})
	}
}

func TestExplicitMappingByName(t *testing.T) {
	ev := newEvaluator(t)
	est := parseEstimator(t, modelWithMapping(`{"a": "first", "b": "second"}`))

	features := resolveFeatures(t, map[string]interface{}{"first": 10.0, "second": 20.0})
	got, err := ev.Evaluate(context.Background(), "duration", est, features)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if got != 30 {
		t.Errorf("sum = %v, want 30", got)
	}
}

func TestExplicitMappingByIndex(t *testing.T) {
	ev := newEvaluator(t)
	// Sorted identifier order: alpha=0, zeta=1.
	est := parseEstimator(t, modelWithMapping(`{"a": 1, "b": 0}`))

	features := resolveFeatures(t, map[string]interface{}{"zeta": 5.0, "alpha": 2.0})
	got, err := ev.Evaluate(context.Background(), "duration", est, features)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if got != 7 {
		t.Errorf("sum = %v, want 7", got)
	}
}

func TestSameInputReusedAcrossSlots(t *testing.T) {
	ev := newEvaluator(t)
	est := parseEstimator(t, modelWithMapping(`{"a": "x", "b": "x"}`))

	features := resolveFeatures(t, map[string]interface{}{"x": 21.0})
	got, err := ev.Evaluate(context.Background(), "duration", est, features)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if got != 42 {
		t.Errorf("sum = %v, want 42", got)
	}
}

// A null-mapped slot runs without any process input; a non-null-mapped slot
// with a missing process input still fails.
func TestNullMappedSlot(t *testing.T) {
	ev := newEvaluator(t)
	est := parseEstimator(t, modelWithMapping(`{"a": "x", "b": null}`))

	features := resolveFeatures(t, map[string]interface{}{"x": 9.0})
	got, err := ev.Evaluate(context.Background(), "duration", est, features)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if got != 9 {
		t.Errorf("sum = %v, want 9 (dropped slot contributes zero)", got)
	}

	missing := resolveFeatures(t, map[string]interface{}{"y": 9.0})
	if _, err := ev.Evaluate(context.Background(), "duration", est, missing); err == nil {
		t.Fatal("expected mapping error for missing non-null-mapped input")
	}
}

func TestMappingErrors(t *testing.T) {
	tests := []struct {
		name    string
		mapping string
		inputs  map[string]interface{}
	}{
		{
			name:    "nonexistent process input",
			mapping: `{"a": "ghost", "b": "x"}`,
			inputs:  map[string]interface{}{"x": 1.0},
		},
		{
			name:    "index out of range",
			mapping: `{"a": 5, "b": "x"}`,
			inputs:  map[string]interface{}{"x": 1.0},
		},
		{
			name:    "mapping references undeclared model slot",
			mapping: `{"zz": "x"}`,
			inputs:  map[string]interface{}{"a": 1.0, "b": 2.0},
		},
	}

	ev := newEvaluator(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			est := parseEstimator(t, modelWithMapping(tt.mapping))
			features := resolveFeatures(t, tt.inputs)
			_, err := ev.Evaluate(context.Background(), "duration", est, features)
			if err == nil {
				t.Fatal("expected mapping error, got nil")
			}
			if !errors.IsType(err, errors.TypeMapping) {
				t.Errorf("error type = %v, want MAPPING_ERROR", err)
			}
		})
	}
}

func TestOutputSelection(t *testing.T) {
	const multiOutput = `{
		"model": {
			"graph": {
				"name": "multi",
				"inputs": [{"name": "x"}],
				"outputs": [{"name": "double"}, {"name": "triple"}],
				"nodes": [
					{"name": "d", "op": "Mul", "inputs": ["x", "two"], "outputs": ["double"]},
					{"name": "t", "op": "Mul", "inputs": ["x", "three"], "outputs": ["triple"]}
				],
				"initializers": [
					{"name": "two", "values": [2]},
					{"name": "three", "values": [3]}
				]
			}
		}OUTPUT
	}`

	tests := []struct {
		name     string
		selector string
		want     float64
		wantErr  bool
	}{
		{name: "default is first output", selector: "", want: 10},
		{name: "select by name", selector: `, "output": "triple"`, want: 15},
		{name: "select by index", selector: `, "output": 1`, want: 15},
		{name: "unknown name fails", selector: `, "output": "quadruple"`, wantErr: true},
		{name: "index out of range fails", selector: `, "output": 9`, wantErr: true},
	}

	ev := newEvaluator(t)
	features := resolveFeatures(t, map[string]interface{}{"x": 5.0})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			est := parseEstimator(t, strings.ReplaceAll(multiOutput, "OUTPUT", tt.selector))
			got, err := ev.Evaluate(context.Background(), "storage", est, features)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected inference error, got nil")
				}
				if !errors.IsType(err, errors.TypeInference) {
					t.Errorf("error type = %v, want INFERENCE_ERROR", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Evaluate failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("value = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNonScalarOutputFails(t *testing.T) {
	const vectorOutput = `{
		"model": {
			"graph": {
				"name": "vector",
				"inputs": [{"name": "x"}],
				"outputs": [{"name": "y"}],
				"nodes": [{"name": "m", "op": "Mul", "inputs": ["x", "w"], "outputs": ["y"]}],
				"initializers": [{"name": "w", "dims": [3], "values": [1, 2, 3]}]
			}
		}
	}`

	ev := newEvaluator(t)
	est := parseEstimator(t, vectorOutput)
	features := resolveFeatures(t, map[string]interface{}{"x": 5.0})

	_, err := ev.Evaluate(context.Background(), "memory", est, features)
	if err == nil {
		t.Fatal("expected inference error for non-scalar output")
	}
	if !errors.IsType(err, errors.TypeInference) {
		t.Errorf("error type = %v, want INFERENCE_ERROR", err)
	}
}

func TestParseValueVariants(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		isModel bool
		wantErr bool
	}{
		{name: "bare number is a constant", doc: `42`, isModel: false},
		{name: "null defaults to zero", doc: `null`, isModel: false},
		{name: "model object", doc: modelWithMapping(""), isModel: true},
		{name: "model property required", doc: `{"inputs": {}}`, wantErr: true},
		{name: "unknown property rejected", doc: `{"model": {}, "flavor": "mild"}`, wantErr: true},
		{name: "string is not an estimator", doc: `"cheap"`, wantErr: true},
		{name: "negative output index rejected", doc: replaceMapping(twoInputModel, `, "output": -1`), wantErr: true},
		{name: "fractional input index rejected", doc: replaceMapping(twoInputModel, `, "inputs": {"a": 1.5}`), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var raw interface{}
			if err := json.Unmarshal([]byte(tt.doc), &raw); err != nil {
				t.Fatalf("bad document: %v", err)
			}
			est, err := ParseValue("config.x_estimator", raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected schema violation, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseValue failed: %v", err)
			}
			if est.IsModel() != tt.isModel {
				t.Errorf("IsModel = %v, want %v", est.IsModel(), tt.isModel)
			}
		})
	}
}

func TestConstantZeroDefault(t *testing.T) {
	var est Estimator
	if est.IsModel() {
		t.Fatal("zero value must be the constant variant")
	}
	if est.ConstantValue() != 0 {
		t.Errorf("zero value constant = %v, want 0", est.ConstantValue())
	}
	if math.Signbit(est.ConstantValue()) {
		t.Error("zero value constant must be +0")
	}
}
