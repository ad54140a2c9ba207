// Package quote parses estimation configurations and aggregates category
// costs into a quote. A configuration pairs per-category rates with
// estimators through a fixed suffix naming convention plus a standalone flat
// rate; aggregation multiplies each category's resolved estimate by its rate
// and sums the terms.
package quote

import (
	"regexp"
	"sort"
	"strings"

	"quote-engine/core/determinism"
	"quote-engine/core/document"
	"quote-engine/core/estimator"
	"quote-engine/internal/errors"
)

// BuiltinCategories are the category names every deployment understands.
// Custom categories follow the same suffix convention with any identifier
// matching categoryPattern.
var BuiltinCategories = []string{"duration", "memory", "storage", "cpu", "gpu"}

const (
	rateSuffix      = "_rate"
	estimatorSuffix = "_estimator"

	// FlatRateKey is the standalone scalar added once to every quote
	FlatRateKey = "flat_rate"
)

var categoryPattern = regexp.MustCompile(`^[A-Za-z_-][A-Za-z0-9_-]*$`)

// Category is one cost dimension: a rate paired with an estimator
type Category struct {
	// Name is the shared prefix of the _rate/_estimator property pair
	Name string

	// Rate is the per-unit price (0 when not configured)
	Rate float64

	// Estimator resolves the category's scalar estimate
	Estimator estimator.Estimator

	// HasRate and HasEstimator record which side of the pair was configured
	HasRate      bool
	HasEstimator bool
}

// Configuration is a validated estimation configuration
type Configuration struct {
	// FlatRate is added once to the total
	FlatRate float64

	categories *determinism.StableMap[string, *Category]
}

// Categories returns the configured category names in sorted order
func (c *Configuration) Categories() []string {
	return c.categories.Keys()
}

// Category returns a configured category by name
func (c *Configuration) Category(name string) (*Category, bool) {
	return c.categories.Get(name)
}

// LoadConfig reads and parses a configuration document file (JSON or YAML)
func LoadConfig(path string) (*Configuration, error) {
	doc, err := document.Load(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(doc)
}

// ParseConfig validates a decoded configuration document. This is the single
// place the suffix naming convention is interpreted: flat_rate is standalone,
// every other property must be <category>_rate or <category>_estimator with a
// category identifier matching the naming pattern, and a _rate and
// _estimator sharing a prefix form one category.
func ParseConfig(raw map[string]interface{}) (*Configuration, error) {
	if len(raw) == 0 {
		return nil, errors.Schema("config", "configuration must define at least one property")
	}

	cfg := &Configuration{categories: determinism.NewStableMap[string, *Category]()}

	// Sorted for deterministic first-error reporting
	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := raw[key]
		path := "config." + key

		switch {
		case key == FlatRateKey:
			rate, ok := toNumber(value)
			if !ok {
				return nil, errors.Schema(path, "flat_rate must be a number")
			}
			cfg.FlatRate = rate

		case strings.HasSuffix(key, estimatorSuffix):
			name := strings.TrimSuffix(key, estimatorSuffix)
			if !categoryPattern.MatchString(name) {
				return nil, errors.Schemaf(path, "invalid category identifier %q", name)
			}
			est, err := estimator.ParseValue(path, value)
			if err != nil {
				return nil, err
			}
			cat := cfg.category(name)
			cat.Estimator = est
			cat.HasEstimator = true

		case strings.HasSuffix(key, rateSuffix):
			name := strings.TrimSuffix(key, rateSuffix)
			if !categoryPattern.MatchString(name) {
				return nil, errors.Schemaf(path, "invalid category identifier %q", name)
			}
			rate, ok := toNumber(value)
			if !ok {
				return nil, errors.Schemaf(path, "%s must be a number", key)
			}
			cat := cfg.category(name)
			cat.Rate = rate
			cat.HasRate = true

		default:
			return nil, errors.Schemaf(path, "unknown configuration property %q", key)
		}
	}

	return cfg, nil
}

func (c *Configuration) category(name string) *Category {
	if cat, ok := c.categories.Get(name); ok {
		return cat
	}
	cat := &Category{Name: name}
	c.categories.Set(name, cat)
	return cat
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
	default:
		return 0, false
	}
}
