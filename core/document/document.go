// Package document loads configuration, inputs, and outputs documents.
// Both JSON and YAML serializations are accepted; YAML is normalized into the
// same decoded shape the JSON path produces so all downstream validation is
// format-agnostic.
package document

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"quote-engine/internal/errors"
)

// Load reads and decodes a document file, picking the format from the
// file extension (.json, .yaml, .yml).
func Load(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.TypeConfig, "cannot read document", err).WithField(path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return DecodeYAML(data)
	case ".json":
		return DecodeJSON(data)
	default:
		return nil, errors.Newf(errors.TypeConfig, "unsupported document format %q", filepath.Ext(path)).WithField(path)
	}
}

// DecodeJSON decodes a JSON document into a generic object
func DecodeJSON(data []byte) (map[string]interface{}, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(errors.TypeSchema, "document is not a JSON object", err)
	}
	return doc, nil
}

// DecodeYAML decodes a YAML document into a generic object
func DecodeYAML(data []byte) (map[string]interface{}, error) {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(errors.TypeSchema, "document is not a YAML mapping", err)
	}
	normalized, err := normalize(doc)
	if err != nil {
		return nil, err
	}
	return normalized.(map[string]interface{}), nil
}

// normalize rewrites YAML decoder output into JSON-compatible shapes
// (string-keyed maps all the way down).
func normalize(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, val := range t {
			n, err := normalize(val)
			if err != nil {
				return nil, err
			}
			t[k] = n
		}
		return t, nil
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			key, ok := k.(string)
			if !ok {
				return nil, errors.Newf(errors.TypeSchema, "non-string mapping key %v", k)
			}
			n, err := normalize(val)
			if err != nil {
				return nil, err
			}
			out[key] = n
		}
		return out, nil
	case []interface{}:
		for i, val := range t {
			n, err := normalize(val)
			if err != nil {
				return nil, err
			}
			t[i] = n
		}
		return t, nil
	default:
		return v, nil
	}
}
