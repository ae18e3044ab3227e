package contentcore

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrUnknownContentType indicates no storage is registered for a content type
	ErrUnknownContentType = errors.New("unknown content type")

	// ErrDuplicateRegistration indicates a content type was registered twice
	ErrDuplicateRegistration = errors.New("content type already registered")

	// ErrInvalidContentType indicates an empty or malformed content type name
	ErrInvalidContentType = errors.New("invalid content type")

	// ErrTypeMismatch indicates the requested attribute type differs from the registered one
	ErrTypeMismatch = errors.New("content type registered with different attributes")

	// ErrNotFound indicates a content item was not found
	ErrNotFound = errors.New("content not found")

	// ErrConflict indicates an id or version conflict
	ErrConflict = errors.New("content conflict")

	// ErrInvalidContent indicates attributes failed decoding or validation
	ErrInvalidContent = errors.New("invalid content")

	// ErrNotSetup indicates Start was called before Setup
	ErrNotSetup = errors.New("content core not set up")

	// ErrAlreadyStarted indicates Start was called twice
	ErrAlreadyStarted = errors.New("content core already started")
)

// ContentTypeError represents a registry failure for one content type
type ContentTypeError struct {
	ContentType string
	Op          string
	Err         error
}

func (e *ContentTypeError) Error() string {
	return fmt.Sprintf("content type operation %s failed for %q: %v", e.Op, e.ContentType, e.Err)
}

func (e *ContentTypeError) Unwrap() error {
	return e.Err
}

// ValidationError represents attributes rejected at the boundary
type ValidationError struct {
	ContentType string
	Err         error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s content: %v", e.ContentType, e.Err)
}

func (e *ValidationError) Unwrap() []error {
	return []error{ErrInvalidContent, e.Err}
}
