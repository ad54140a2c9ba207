package engine

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"testing"

	"quote-engine/internal/errors"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(eng.Close)
	return eng
}

func decodeDoc(t *testing.T, doc string) map[string]interface{} {
	t.Helper()
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(doc), &raw); err != nil {
		t.Fatalf("bad document: %v", err)
	}
	return raw
}

const quoteConfig = `{
	"flat_rate": 10,
	"duration_rate": 0.01,
	"duration_estimator": {
		"model": {
			"graph": {
				"name": "duration-from-size",
				"inputs": [{"name": "data"}],
				"outputs": [{"name": "duration"}],
				"nodes": [
					{"name": "scale", "op": "MatMul", "inputs": ["data", "W"], "outputs": ["scaled"]},
					{"name": "offset", "op": "Add", "inputs": ["scaled", "B"], "outputs": ["duration"]}
				],
				"initializers": [
					{"name": "W", "dims": [1, 1], "values": [3.5e-6]},
					{"name": "B", "dims": [1], "values": [20.1424]}
				]
			}
		}
	}
}`

func TestEstimateEndToEnd(t *testing.T) {
	eng := newEngine(t)
	result, err := eng.Estimate(context.Background(), &Request{
		Config: decodeDoc(t, quoteConfig),
		Inputs: decodeDoc(t, `{"data": {"size": 209715200}}`),
		Outputs: decodeDoc(t, `{
			"result": {"size": 4096, "weight": 2}
		}`),
	})
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}

	if math.Abs(result.Total-17.541456) > 1e-6 {
		t.Errorf("total = %v, want 17.541456", result.Total)
	}
	if math.Abs(result.Estimates["duration"]-754.1456) > 1e-6 {
		t.Errorf("duration estimate = %v, want 754.1456", result.Estimates["duration"])
	}
	if result.Currency != "USD" {
		t.Errorf("currency = %q, want USD", result.Currency)
	}

	out, ok := result.Outputs["result"]
	if !ok {
		t.Fatal("projected output missing")
	}
	if out.Size != 4096 || out.Weight != 2 {
		t.Errorf("projection = %+v, want size=4096 weight=2", out)
	}
}

func TestEstimateValidatesBeforeInference(t *testing.T) {
	eng := newEngine(t)

	// The inputs document is invalid; the configured model must never run.
	_, err := eng.Estimate(context.Background(), &Request{
		Config: decodeDoc(t, quoteConfig),
		Inputs: decodeDoc(t, `{"data": {"size": 1, "value": 2}}`),
	})
	if err == nil {
		t.Fatal("expected schema violation")
	}
	if !errors.IsType(err, errors.TypeSchema) {
		t.Errorf("error type = %v, want SCHEMA_VIOLATION", err)
	}
}

// Independent requests share only the read-only model cache and may run
// fully in parallel.
func TestConcurrentEstimates(t *testing.T) {
	eng := newEngine(t)
	cfg := decodeDoc(t, quoteConfig)

	var wg sync.WaitGroup
	results := make([]float64, 16)
	errs := make([]error, 16)

	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := eng.Estimate(context.Background(), &Request{
				Config: cfg,
				Inputs: decodeDoc(t, `{"data": {"size": 209715200}}`),
			})
			if err != nil {
				errs[i] = err
				return
			}
			results[i] = result.Total
		}(i)
	}
	wg.Wait()

	for i := range results {
		if errs[i] != nil {
			t.Fatalf("request %d failed: %v", i, errs[i])
		}
		if results[i] != results[0] {
			t.Errorf("request %d total = %v, differs from %v", i, results[i], results[0])
		}
	}
}

func TestEstimateIdempotence(t *testing.T) {
	eng := newEngine(t)
	req := &Request{
		Config: decodeDoc(t, quoteConfig),
		Inputs: decodeDoc(t, `{"data": {"size": 209715200}}`),
	}

	first, err := eng.Estimate(context.Background(), req)
	if err != nil {
		t.Fatalf("first Estimate failed: %v", err)
	}
	second, err := eng.Estimate(context.Background(), req)
	if err != nil {
		t.Fatalf("second Estimate failed: %v", err)
	}

	if first.Total != second.Total {
		t.Errorf("totals differ: %v vs %v", first.Total, second.Total)
	}
	for category, cost := range first.Breakdown {
		if second.Breakdown[category] != cost {
			t.Errorf("category %s differs: %v vs %v", category, cost, second.Breakdown[category])
		}
	}
}
