package rpc

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrInvalidEnvelope indicates the request body is not {fn: string, arg: object}
	ErrInvalidEnvelope = errors.New("invalid rpc envelope")

	// ErrUnknownFunction indicates no function is registered under the requested name
	ErrUnknownFunction = errors.New("unknown rpc function")

	// ErrDuplicateFunction indicates a function name was registered twice
	ErrDuplicateFunction = errors.New("rpc function already registered")

	// ErrInvalidArgument indicates arg does not match the function input
	ErrInvalidArgument = errors.New("invalid rpc argument")

	// ErrSearchUnavailable indicates msearch was called without a search index
	ErrSearchUnavailable = errors.New("search index not configured")
)

// DispatchError represents a failure to route a call to a function
type DispatchError struct {
	Fn  string
	Err error
}

func (e *DispatchError) Error() string {
	if e.Fn == "" {
		return fmt.Sprintf("rpc dispatch failed: %v", e.Err)
	}
	return fmt.Sprintf("rpc dispatch of %q failed: %v", e.Fn, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// HTTPError represents a non-2xx response received by the Client
type HTTPError struct {
	StatusCode int
	Status     string
	Message    string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP error (%d %s): %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("HTTP error: %d %s", e.StatusCode, e.Status)
}
