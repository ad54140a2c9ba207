package projection

import (
	"context"
	"encoding/json"
	"math"
	"testing"

	"quote-engine/core/estimator"
	"quote-engine/core/feature"
	"quote-engine/core/modelgraph"
	"quote-engine/internal/errors"
)

func newProjector(t *testing.T) *Projector {
	t.Helper()
	loader, err := modelgraph.NewLoader(16)
	if err != nil {
		t.Fatalf("NewLoader failed: %v", err)
	}
	t.Cleanup(loader.Close)
	return NewProjector(estimator.NewEvaluator(loader))
}

func decodeDoc(t *testing.T, doc string) map[string]interface{} {
	t.Helper()
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(doc), &raw); err != nil {
		t.Fatalf("bad document: %v", err)
	}
	return raw
}

func resolveFeatures(t *testing.T, inputs map[string]interface{}) *feature.Context {
	t.Helper()
	fc, err := feature.Resolve(inputs)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	return fc
}

func TestProjectLiterals(t *testing.T) {
	outputs, err := ParseOutputs(decodeDoc(t, `{
		"report": {"value": 3, "weight": 0.5, "length": 2},
		"archive": {"size": 1024},
		"count": 7
	}`))
	if err != nil {
		t.Fatalf("ParseOutputs failed: %v", err)
	}

	resolved, err := newProjector(t).Project(context.Background(), outputs, resolveFeatures(t, map[string]interface{}{}))
	if err != nil {
		t.Fatalf("Project failed: %v", err)
	}

	report := resolved["report"]
	if report.Value != 3 || report.Weight != 0.5 || report.Length != 2 {
		t.Errorf("report = %+v, want value=3 weight=0.5 length=2", report)
	}
	archive := resolved["archive"]
	if !archive.Complex || archive.Size != 1024 {
		t.Errorf("archive = %+v, want size=1024", archive)
	}
	if archive.Weight != 1 || archive.Length != 1 {
		t.Errorf("archive multipliers = (%v, %v), want defaults (1, 1)", archive.Weight, archive.Length)
	}
	count := resolved["count"]
	if count.Complex || count.Value != 7 {
		t.Errorf("count = %+v, want bare literal value=7", count)
	}
}

// An output size predicted by a model against the same feature context used
// for cost estimation.
func TestProjectModelBackedSize(t *testing.T) {
	outputs, err := ParseOutputs(decodeDoc(t, `{
		"result": {
			"size": {
				"model": {
					"graph": {
						"name": "half-input-size",
						"inputs": [{"name": "data"}],
						"outputs": [{"name": "size"}],
						"nodes": [{"name": "m", "op": "Mul", "inputs": ["data", "half"], "outputs": ["size"]}],
						"initializers": [{"name": "half", "values": [0.5]}]
					}
				}
			}
		}
	}`))
	if err != nil {
		t.Fatalf("ParseOutputs failed: %v", err)
	}

	features := resolveFeatures(t, map[string]interface{}{
		"data": map[string]interface{}{"size": 209715200.0},
	})
	resolved, err := newProjector(t).Project(context.Background(), outputs, features)
	if err != nil {
		t.Fatalf("Project failed: %v", err)
	}

	result := resolved["result"]
	if !result.Complex {
		t.Error("size-based output should be complex")
	}
	if math.Abs(result.Size-104857600) > 1e-6 {
		t.Errorf("projected size = %v, want 104857600", result.Size)
	}
}

func TestParseOutputsRejectsInvalidShapes(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "value and size together", doc: `{"x": {"value": 1, "size": 2}}`},
		{name: "neither value nor size", doc: `{"x": {"weight": 2}}`},
		{name: "unknown property", doc: `{"x": {"value": 1, "kind": "file"}}`},
		{name: "weight is not an estimator", doc: `{"x": {"value": 1, "weight": "heavy"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseOutputs(decodeDoc(t, tt.doc))
			if err == nil {
				t.Fatal("expected schema violation, got nil")
			}
			if !errors.IsType(err, errors.TypeSchema) {
				t.Errorf("error type = %v, want SCHEMA_VIOLATION", err)
			}
		})
	}
}

func TestProjectFailsOnEvaluatorError(t *testing.T) {
	outputs, err := ParseOutputs(decodeDoc(t, `{
		"result": {
			"value": {
				"model": {
					"graph": {
						"name": "needs-input",
						"inputs": [{"name": "data"}],
						"outputs": [{"name": "y"}],
						"nodes": [{"name": "id", "op": "Identity", "inputs": ["data"], "outputs": ["y"]}]
					}
				}
			}
		}
	}`))
	if err != nil {
		t.Fatalf("ParseOutputs failed: %v", err)
	}

	_, err = newProjector(t).Project(context.Background(), outputs, resolveFeatures(t, map[string]interface{}{}))
	if err == nil {
		t.Fatal("expected mapping error for missing input")
	}
	if !errors.IsType(err, errors.TypeMapping) {
		t.Errorf("error type = %v, want MAPPING_ERROR", err)
	}
}
