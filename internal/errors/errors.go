// Package errors provides error handling utilities.
package errors

import (
	"fmt"
)

// Type identifies the category of error
type Type string

const (
	// TypeSchema indicates a structurally invalid configuration, inputs, or
	// outputs document
	TypeSchema Type = "SCHEMA_VIOLATION"

	// TypeMapping indicates a model input mapping that references a
	// nonexistent process input or an out-of-range index
	TypeMapping Type = "MAPPING_ERROR"

	// TypeInference indicates a model execution failure or a selected output
	// that is not a single scalar
	TypeInference Type = "INFERENCE_ERROR"

	// TypeConfig indicates an application configuration error
	TypeConfig Type = "CONFIG_ERROR"

	// TypeNotFound indicates a resource not found error
	TypeNotFound Type = "NOT_FOUND"

	// TypeInternal indicates an internal error
	TypeInternal Type = "INTERNAL_ERROR"
)

// Error represents a domain error with context
type Error struct {
	Type    Type                   `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if field, ok := e.Context["field"].(string); ok && field != "" {
		msg = fmt.Sprintf("%s (at %s)", msg, field)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, msg, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, msg)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithField records the field path of the offending property
func (e *Error) WithField(path string) *Error {
	return e.WithContext("field", path)
}

// Field returns the recorded field path, if any
func (e *Error) Field() string {
	field, _ := e.Context["field"].(string)
	return field
}

// New creates a new error
func New(errType Type, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
	}
}

// Newf creates a new formatted error
func Newf(errType Type, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an error with context
func Wrap(errType Type, message string, cause error) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Cause:   cause,
	}
}

// Wrapf wraps an error with formatted context
func Wrapf(errType Type, cause error, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// IsType checks if an error is of a specific type
func IsType(err error, t Type) bool {
	if e, ok := err.(*Error); ok {
		return e.Type == t
	}
	return false
}

// Schema creates a schema violation error for the given field path
func Schema(path, message string) *Error {
	return New(TypeSchema, message).WithField(path)
}

// Schemaf creates a formatted schema violation error for the given field path
func Schemaf(path, format string, args ...interface{}) *Error {
	return Newf(TypeSchema, format, args...).WithField(path)
}

// Mapping creates a mapping error identifying the offending model slot
func Mapping(category, slot, message string) *Error {
	return New(TypeMapping, message).
		WithContext("category", category).
		WithContext("slot", slot)
}

// Inference creates an inference error identifying the category and model
func Inference(category, model string, cause error) *Error {
	return Wrap(TypeInference, "model inference failed", cause).
		WithContext("category", category).
		WithContext("model", model)
}

// NotFound creates a not found error
func NotFound(resourceType, identifier string) *Error {
	return Newf(TypeNotFound, "%s not found: %s", resourceType, identifier)
}

// Internal creates an internal error
func Internal(message string, cause error) *Error {
	return Wrap(TypeInternal, message, cause)
}
