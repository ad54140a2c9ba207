package quote

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"quote-engine/core/determinism"
	"quote-engine/core/estimator"
	"quote-engine/core/feature"
	"quote-engine/internal/logging"
)

// DefaultCurrency is applied when the aggregator is not configured otherwise
const DefaultCurrency = "USD"

// Line is one category's contribution to a quote
type Line struct {
	// Category is the cost dimension name
	Category string

	// Estimate is the resolved scalar estimate
	Estimate float64

	// Rate is the configured per-unit price
	Rate float64

	// Cost is rate x estimate
	Cost determinism.Money
}

// Quote is the aggregated result: total, per-category breakdown, and any
// aggregation warnings. The same structure carries pre-execution estimates
// and post-execution real costs; only the supplied estimators differ.
type Quote struct {
	// Total is flat rate plus the sum of all category costs
	Total determinism.Money

	// FlatRate is the standalone scalar term
	FlatRate determinism.Money

	// Lines are the per-category terms, in sorted category order
	Lines []Line

	// Warnings records lopsided categories (rate without estimator or the
	// reverse); these contribute zero rather than failing the request
	Warnings []string
}

// Breakdown returns the per-category costs keyed by category name
func (q *Quote) Breakdown() map[string]float64 {
	out := make(map[string]float64, len(q.Lines))
	for _, line := range q.Lines {
		out[line.Category] = line.Cost.Float64()
	}
	return out
}

// Aggregator combines configured rate/estimate pairs into quotes
type Aggregator struct {
	evaluator *estimator.Evaluator
	currency  string
}

// NewAggregator creates an aggregator pricing in the default currency
func NewAggregator(ev *estimator.Evaluator) *Aggregator {
	return &Aggregator{evaluator: ev, currency: DefaultCurrency}
}

// NewAggregatorWithCurrency creates an aggregator pricing in the given currency
func NewAggregatorWithCurrency(ev *estimator.Evaluator, currency string) *Aggregator {
	return &Aggregator{evaluator: ev, currency: currency}
}

// Aggregate evaluates every configured category against the feature context
// and sums the terms. A category with no estimator contributes a zero
// estimate and a category with no rate multiplies to zero; either emits a
// warning. Any estimator failure fails the whole request: no partial quotes.
func (a *Aggregator) Aggregate(ctx context.Context, cfg *Configuration, features *feature.Context) (*Quote, error) {
	q := &Quote{
		FlatRate: determinism.NewMoneyFromFloat(cfg.FlatRate, a.currency),
	}
	total := q.FlatRate

	for _, name := range cfg.Categories() {
		cat, _ := cfg.Category(name)

		if cat.HasRate && !cat.HasEstimator {
			a.warn(q, "category "+name+" has a rate but no estimator; it contributes nothing")
		}
		if cat.HasEstimator && !cat.HasRate {
			a.warn(q, "category "+name+" has an estimator but no rate; it contributes nothing")
		}

		estimate := 0.0
		if cat.HasEstimator {
			var err error
			estimate, err = a.evaluator.Evaluate(ctx, name, cat.Estimator, features)
			if err != nil {
				return nil, err
			}
		}

		cost := determinism.NewMoneyFromDecimal(
			decimal.NewFromFloat(cat.Rate).Mul(decimal.NewFromFloat(estimate)),
			a.currency,
		)
		total = total.Add(cost)
		q.Lines = append(q.Lines, Line{
			Category: name,
			Estimate: estimate,
			Rate:     cat.Rate,
			Cost:     cost,
		})
	}

	q.Total = total
	logging.Debug("quote aggregated",
		zap.String("total", q.Total.StringRaw()),
		zap.Int("categories", len(q.Lines)),
		zap.Int("warnings", len(q.Warnings)))
	return q, nil
}

func (a *Aggregator) warn(q *Quote, msg string) {
	q.Warnings = append(q.Warnings, msg)
	logging.Warn(msg)
}
