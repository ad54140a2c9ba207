// Package feature resolves raw process inputs into normalized numeric
// feature contributions. Inputs arrive either as bare literals (number,
// string, boolean, or arrays of those) or as structured records carrying an
// explicit value or size together with weight and length multipliers.
package feature

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"quote-engine/core/determinism"
	"quote-engine/internal/errors"
)

// Feature is the normalized contribution of one process input.
type Feature struct {
	// ID is the process input identifier
	ID string

	// Magnitude is the natural numeric magnitude of the input: the value for
	// literal inputs, the size in bytes for file/directory inputs
	Magnitude float64

	// Weight is the multiplicative weight applied to the magnitude
	Weight float64

	// Length is an additional multiplicative repetition factor. For
	// array-valued inputs it scales on top of the array's own element count,
	// it never replaces it.
	Length float64

	// Complex is true for file/directory inputs (size-based)
	Complex bool
}

// Contribution returns the effective scalar contribution of the input
func (f *Feature) Contribution() float64 {
	return f.Magnitude * f.Weight * f.Length
}

// Context is the resolved feature set of one estimation request, keyed by
// process input identifier. Iteration and positional lookup are in sorted
// identifier order so that integer-indexed model mappings are deterministic.
type Context struct {
	features *determinism.StableMap[string, *Feature]
}

// NewContext creates an empty feature context
func NewContext() *Context {
	return &Context{features: determinism.NewStableMap[string, *Feature]()}
}

// Add inserts a resolved feature
func (c *Context) Add(f *Feature) {
	c.features.Set(f.ID, f)
}

// Get returns the feature for a process input identifier
func (c *Context) Get(id string) (*Feature, bool) {
	return c.features.Get(id)
}

// At returns the feature at the given position in sorted identifier order
func (c *Context) At(i int) (*Feature, bool) {
	_, f, ok := c.features.At(i)
	return f, ok
}

// IDs returns all process input identifiers in sorted order
func (c *Context) IDs() []string {
	return c.features.Keys()
}

// Len returns the number of resolved features
func (c *Context) Len() int {
	return c.features.Len()
}

// ParseInputs decodes an inputs document and resolves it into a Context
func ParseInputs(data []byte) (*Context, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(errors.TypeSchema, "inputs document is not a JSON object", err).WithField("inputs")
	}
	return Resolve(raw)
}

// Resolve normalizes already-decoded process inputs into a Context.
// Structured records are validated before any estimator runs: a record with
// both value and size, with neither, or with an unrecognized key is rejected.
func Resolve(inputs map[string]interface{}) (*Context, error) {
	ctx := NewContext()

	// Sorted for deterministic first-error reporting
	ids := make([]string, 0, len(inputs))
	for id := range inputs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		f, err := resolveOne(id, inputs[id])
		if err != nil {
			return nil, err
		}
		ctx.Add(f)
	}
	return ctx, nil
}

func resolveOne(id string, raw interface{}) (*Feature, error) {
	path := "inputs." + id

	switch v := raw.(type) {
	case map[string]interface{}:
		return resolveRecord(id, path, v)

	case []interface{}:
		if len(v) > 0 {
			if _, ok := v[0].(map[string]interface{}); ok {
				return resolveRecordArray(id, path, v)
			}
		}
		mag, err := arrayMagnitude(path, v)
		if err != nil {
			return nil, err
		}
		return &Feature{ID: id, Magnitude: mag, Weight: 1.0, Length: 1.0}, nil

	default:
		mag, err := scalarMagnitude(path, raw)
		if err != nil {
			return nil, err
		}
		return &Feature{ID: id, Magnitude: mag, Weight: 1.0, Length: 1.0}, nil
	}
}

// resolveRecord handles the structured forms {value, weight, length} and
// {size, weight, length}. The value and size markers are mutually exclusive.
func resolveRecord(id, path string, record map[string]interface{}) (*Feature, error) {
	value, hasValue := record["value"]
	size, hasSize := record["size"]

	if hasValue && hasSize {
		return nil, errors.Schema(path, "input cannot carry both value and size")
	}
	if !hasValue && !hasSize {
		return nil, errors.Schema(path, "input must carry either value or size")
	}
	for key := range record {
		switch key {
		case "value", "size", "weight", "length":
		default:
			return nil, errors.Schemaf(path+"."+key, "unknown input property %q", key)
		}
	}

	weight, err := optionalNumber(path+".weight", record, "weight", 1.0)
	if err != nil {
		return nil, err
	}
	length, err := optionalNumber(path+".length", record, "length", 1.0)
	if err != nil {
		return nil, err
	}

	if hasSize {
		mag, ok := toNumber(size)
		if !ok {
			return nil, errors.Schema(path+".size", "size must be a number of bytes")
		}
		if math.IsNaN(mag) || math.IsInf(mag, 0) {
			return nil, errors.Schema(path+".size", "size is not a finite number")
		}
		if mag < 0 {
			return nil, errors.Schema(path+".size", "size cannot be negative")
		}
		return &Feature{ID: id, Magnitude: mag, Weight: weight, Length: length, Complex: true}, nil
	}

	var mag float64
	if arr, ok := value.([]interface{}); ok {
		mag, err = arrayMagnitude(path+".value", arr)
	} else {
		mag, err = scalarMagnitude(path+".value", value)
	}
	if err != nil {
		return nil, err
	}
	return &Feature{ID: id, Magnitude: mag, Weight: weight, Length: length}, nil
}

// resolveRecordArray folds an array of structured records into one feature.
// Each element carries its own weight and length, so the fold happens on
// effective contributions and the resulting feature has unit multipliers.
func resolveRecordArray(id, path string, elems []interface{}) (*Feature, error) {
	total := 0.0
	complexForm := false
	for i, elem := range elems {
		record, ok := elem.(map[string]interface{})
		if !ok {
			return nil, errors.Schema(fmt.Sprintf("%s[%d]", path, i), "mixed array of records and literals")
		}
		f, err := resolveRecord(id, fmt.Sprintf("%s[%d]", path, i), record)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			complexForm = f.Complex
		} else if f.Complex != complexForm {
			return nil, errors.Schema(fmt.Sprintf("%s[%d]", path, i), "array mixes value and size records")
		}
		total += f.Contribution()
	}
	return &Feature{ID: id, Magnitude: total, Weight: 1.0, Length: 1.0, Complex: complexForm}, nil
}

// arrayMagnitude sums the magnitudes of bare array elements. Array inputs
// contribute through their elements; the length multiplier of the enclosing
// record scales on top of this natural magnitude.
func arrayMagnitude(path string, elems []interface{}) (float64, error) {
	total := 0.0
	for i, elem := range elems {
		mag, err := scalarMagnitude(fmt.Sprintf("%s[%d]", path, i), elem)
		if err != nil {
			return 0, err
		}
		total += mag
	}
	return total, nil
}

// scalarMagnitude maps a bare literal to its numeric magnitude: numbers carry
// their value, booleans map to 1/0, strings contribute their rune count.
func scalarMagnitude(path string, v interface{}) (float64, error) {
	if n, ok := toNumber(v); ok {
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, errors.Schema(path, "value is not a finite number")
		}
		return n, nil
	}
	switch t := v.(type) {
	case string:
		return float64(len([]rune(t))), nil
	case bool:
		if t {
			return 1.0, nil
		}
		return 0.0, nil
	case nil:
		return 0, errors.Schema(path, "value cannot be null")
	default:
		return 0, errors.Schemaf(path, "unsupported input value of type %T", v)
	}
}

func optionalNumber(path string, record map[string]interface{}, key string, def float64) (float64, error) {
	raw, ok := record[key]
	if !ok {
		return def, nil
	}
	n, ok := toNumber(raw)
	if !ok {
		return 0, errors.Schemaf(path, "%s must be a number", key)
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, errors.Schemaf(path, "%s is not a finite number", key)
	}
	return n, nil
}

// toNumber accepts the numeric representations produced by the JSON and YAML
// decoders.
func toNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
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
