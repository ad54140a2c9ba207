package api

import (
	"quote-engine/core/engine"
)

// QuoteRequest is the request body for POST /quote: the configuration and
// inputs documents, plus an optional outputs document for projection.
type QuoteRequest struct {
	Config  map[string]interface{} `json:"config"`
	Inputs  map[string]interface{} `json:"inputs"`
	Outputs map[string]interface{} `json:"outputs,omitempty"`
}

// QuoteResponse is the response body for POST /quote
type QuoteResponse struct {
	// QuoteID identifies this quote
	QuoteID string `json:"quoteID"`

	// Result is the estimation output contract
	*engine.Result

	// Metadata carries request provenance
	Metadata *ResponseMetadata `json:"metadata,omitempty"`
}

// ResponseMetadata carries provenance for auditing
type ResponseMetadata struct {
	// InputHash is a deterministic hash of the request documents
	InputHash string `json:"input_hash"`

	// EngineVersion is the engine build version
	EngineVersion string `json:"engine_version"`

	// DurationMs is the processing time
	DurationMs int64 `json:"duration_ms"`
}

// ErrorResponse is the error body for all endpoints
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}
