package chat

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure kinds the core distinguishes. Transport,
// parsing, and provider errors propagate to the caller without retry; tool
// handler errors are recovered into is_error tool results instead.
var (
	// ErrNoProvider is returned by the dispatcher when no registered
	// adapter's predicate matches the request.
	ErrNoProvider = errors.New("no provider available for request")

	// ErrInvalidRequest means the request could not be serialized for the
	// chosen backend.
	ErrInvalidRequest = errors.New("invalid request data")

	// ErrUnknownTool means the model requested a tool the request never
	// declared.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrBadToolArguments means the assembled argument string did not
	// parse as the tool's expected form.
	ErrBadToolArguments = errors.New("failed to decode tool arguments")

	// ErrMissingToolArguments means required argument keys were absent.
	ErrMissingToolArguments = errors.New("missing required tool arguments")

	// ErrEmptyResult means an agent run produced no usable text.
	ErrEmptyResult = errors.New("empty result")
)

// ProviderError is a non-success status from a backend, carrying the
// backend's own decoded error payload when available.
type ProviderError struct {
	Status  int
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider returned status %d: %s (%s)", e.Status, e.Message, e.Code)
	}
	return fmt.Sprintf("provider returned status %d: %s", e.Status, e.Message)
}

// TransportError wraps a network or connection failure from an adapter.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StreamError means a chunk of a streamed response could not be decoded.
type StreamError struct {
	Chunk string
	Err   error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("failed to decode stream chunk: %v", e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// AgentError wraps any failure that crosses the agent boundary, preserving
// the original error.
type AgentError struct {
	Agent string
	Err   error
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("agent %q failed: %v", e.Agent, e.Err)
}

func (e *AgentError) Unwrap() error { return e.Err }
