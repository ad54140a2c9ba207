// Package engine provides the API-primary estimation engine.
// CLI and HTTP layers are thin wrappers around this engine: they decode
// documents, call Estimate, and serialize the result. No cost logic lives
// outside this call path.
package engine

import (
	"context"

	"quote-engine/core/estimator"
	"quote-engine/core/feature"
	"quote-engine/core/modelgraph"
	"quote-engine/core/projection"
	"quote-engine/core/quote"
)

// Config configures the estimation engine
type Config struct {
	// Currency is the quote currency
	Currency string

	// ModelCacheSize is the maximum number of compiled model graphs to keep
	ModelCacheSize int64
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Currency:       quote.DefaultCurrency,
		ModelCacheSize: 128,
	}
}

// Engine evaluates estimation requests. Each request is a pure function of
// its configuration and inputs; the only shared state is the read-only model
// cache, so one Engine serves concurrent requests.
type Engine struct {
	loader     *modelgraph.Loader
	aggregator *quote.Aggregator
	projector  *projection.Projector
	currency   string
}

// New creates an engine
func New(cfg Config) (*Engine, error) {
	if cfg.Currency == "" {
		cfg.Currency = quote.DefaultCurrency
	}
	if cfg.ModelCacheSize <= 0 {
		cfg.ModelCacheSize = 128
	}

	loader, err := modelgraph.NewLoader(cfg.ModelCacheSize)
	if err != nil {
		return nil, err
	}
	ev := estimator.NewEvaluator(loader)
	return &Engine{
		loader:     loader,
		aggregator: quote.NewAggregatorWithCurrency(ev, cfg.Currency),
		projector:  projection.NewProjector(ev),
		currency:   cfg.Currency,
	}, nil
}

// Close releases the model cache
func (e *Engine) Close() {
	e.loader.Close()
}

// Request is one estimation request: decoded configuration and inputs
// documents, plus an optional outputs document for projection.
type Request struct {
	Config  map[string]interface{}
	Inputs  map[string]interface{}
	Outputs map[string]interface{}
}

// Result is the estimation output contract
type Result struct {
	// Total is flat rate plus all category costs
	Total float64 `json:"total"`

	// Breakdown is the per-category cost, for transparency and auditing
	Breakdown map[string]float64 `json:"breakdown"`

	// Estimates are the raw per-category estimates before rates apply
	Estimates map[string]float64 `json:"estimates,omitempty"`

	// Currency is the quote currency
	Currency string `json:"currency"`

	// Warnings lists lopsided rate/estimator pairings
	Warnings []string `json:"warnings,omitempty"`

	// Outputs carries projected output characteristics when requested
	Outputs map[string]projection.Resolved `json:"outputs,omitempty"`
}

// Estimate validates the request documents and evaluates them. Validation of
// all documents completes before any model runs.
func (e *Engine) Estimate(ctx context.Context, req *Request) (*Result, error) {
	cfg, err := quote.ParseConfig(req.Config)
	if err != nil {
		return nil, err
	}
	features, err := feature.Resolve(req.Inputs)
	if err != nil {
		return nil, err
	}
	var outputs *projection.Outputs
	if req.Outputs != nil {
		if outputs, err = projection.ParseOutputs(req.Outputs); err != nil {
			return nil, err
		}
	}

	q, err := e.aggregator.Aggregate(ctx, cfg, features)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Total:     q.Total.Float64(),
		Breakdown: q.Breakdown(),
		Estimates: make(map[string]float64, len(q.Lines)),
		Currency:  e.currency,
		Warnings:  q.Warnings,
	}
	for _, line := range q.Lines {
		result.Estimates[line.Category] = line.Estimate
	}

	if outputs != nil {
		if result.Outputs, err = e.projector.Project(ctx, outputs, features); err != nil {
			return nil, err
		}
	}
	return result, nil
}
