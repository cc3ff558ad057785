// Package errors provides standardized error types for use across the
// gateway's components.
//
// ContextualError is the base error type that captures component, operation,
// and an error-taxonomy Kind. It implements the error and Unwrap interfaces
// for seamless integration with Go's errors package.
//
// Usage:
//
//	err := errors.New("worker", "call", KindTimeout, someErr)
//	err = err.WithDetails(map[string]any{"agent_id": "A1"})
package errors

import "fmt"

// Kind is a taxonomy atom from the gateway's error model. It is distinct
// from Go's error type hierarchy: many different causes can share one Kind,
// and a Kind is what external callers (JSON-RPC code mapping, telemetry)
// actually branch on.
type Kind string

// Error taxonomy, grouped as in the design.
const (
	// Admission.
	KindCircuitOpen      Kind = "circuit_open"
	KindTooManyRequests  Kind = "too_many_requests"

	// Not-found.
	KindAgentNotFound  Kind = "agent_not_found"
	KindTaskNotFound   Kind = "task_not_found"
	KindConfigNotFound Kind = "config_not_found"

	// Transport.
	KindUnreachable Kind = "unreachable"
	KindTimeout     Kind = "timeout"

	// Remote.
	KindRemote      Kind = "remote"
	KindInvalidJSON Kind = "invalid_json"

	// Validation.
	KindInvalid  Kind = "invalid"
	KindNoURL    Kind = "no_url"
	KindTerminal Kind = "terminal"

	// Shutdown.
	KindShutdown Kind = "shutdown"
)

// ContextualError is a structured error type that provides consistent
// context about where, why, and under which taxonomy atom an error
// occurred.
type ContextualError struct {
	// Component identifies the module that produced the error (e.g. "worker", "taskstore").
	Component string

	// Operation describes what was being done when the error occurred.
	Operation string

	// Kind is the error-taxonomy atom this error maps to (see spec §7).
	Kind Kind

	// StatusCode is an optional HTTP status, populated for Kind == KindRemote.
	StatusCode int

	// Details holds optional structured metadata about the error.
	Details map[string]any

	// Cause is the underlying error, if any.
	Cause error
}

// New creates a ContextualError with the given component, operation, kind, and cause.
func New(component, operation string, kind Kind, cause error) *ContextualError {
	return &ContextualError{
		Component: component,
		Operation: operation,
		Kind:      kind,
		Cause:     cause,
	}
}

// Error returns a human-readable representation of the error.
func (e *ContextualError) Error() string {
	base := fmt.Sprintf("[%s] %s: %s", e.Component, e.Operation, e.Kind)

	if e.StatusCode != 0 {
		base += fmt.Sprintf(" (status %d)", e.StatusCode)
	}

	if e.Cause != nil {
		base += ": " + e.Cause.Error()
	}

	return base
}

// Unwrap returns the underlying cause, enabling use with errors.Is and errors.As.
func (e *ContextualError) Unwrap() error {
	return e.Cause
}

// WithStatusCode returns the error with the given HTTP status code set.
func (e *ContextualError) WithStatusCode(code int) *ContextualError {
	e.StatusCode = code
	return e
}

// WithDetails returns the error with the given details map set.
func (e *ContextualError) WithDetails(details map[string]any) *ContextualError {
	e.Details = details
	return e
}

// KindOf recovers the taxonomy atom from err, if err is (or wraps) a
// *ContextualError. Callers that only care about the taxonomy — such as the
// JSON-RPC error-code mapping — should prefer this over errors.As.
func KindOf(err error) (Kind, bool) {
	var ce *ContextualError
	if asContextual(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}

// asContextual is a small errors.As wrapper kept local to avoid importing
// the standard errors package solely for one call site's sake beyond fmt's
// error interface.
func asContextual(err error, target **ContextualError) bool {
	for err != nil {
		if ce, ok := err.(*ContextualError); ok {
			*target = ce
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
