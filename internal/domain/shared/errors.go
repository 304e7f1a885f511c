// Package shared contains common domain types, errors, and events that are
// used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation    = errors.New("validation error")
	ErrInvalidID     = errors.New("invalid ID")
	ErrInvalidInput  = errors.New("invalid input")
	ErrEmptyValue    = errors.New("value cannot be empty")
	ErrOutOfRange    = errors.New("value out of range")
	ErrInvalidFormat = errors.New("invalid format")

	// State errors
	ErrStateConflict    = errors.New("operation invalid for current state")
	ErrAlreadyProcessed = errors.New("already processed")

	// External service errors
	ErrDependency         = errors.New("external dependency error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrConsistencyRepaired marks a self-healing repair of diverged state
	// (stale cache pointer, under-counted attempt). It is log-only and must
	// never propagate to a caller as a failure.
	ErrConsistencyRepaired = errors.New("consistency repaired")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "practice", "content", "progress"
	Op      string // Operation that failed, e.g., "StartAttempt", "Confirm"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Practice domain errors
var (
	ErrAttemptNotFound      = NewDomainError("practice", "FindAttempt", ErrNotFound, "attempt not found")
	ErrAttemptNotInProgress = NewDomainError("practice", "Submit", ErrStateConflict, "attempt is not in progress")
	ErrAttemptNotPending    = NewDomainError("practice", "Resolve", ErrStateConflict, "attempt is not awaiting confirmation")
	ErrAttemptNotPassing    = NewDomainError("practice", "Confirm", ErrStateConflict, "attempt score is below the passing threshold")
	ErrAttemptAlreadyActive = NewDomainError("practice", "StartAttempt", ErrAlreadyExists, "an attempt is already active for this activity")
	ErrItemNotInAttempt     = NewDomainError("practice", "Submit", ErrNotFound, "item does not belong to this attempt")
	ErrItemOutOfOrder       = NewDomainError("practice", "Submit", ErrStateConflict, "item submitted out of order")
	ErrProgressNotFound     = NewDomainError("practice", "FindProgress", ErrNotFound, "practice progress not found")
	ErrUnknownActivityKind  = NewDomainError("practice", "Validate", ErrInvalidInput, "unknown activity kind")
)

// Content service errors
var (
	ErrContentUnavailable    = NewDomainError("content", "Request", ErrServiceUnavailable, "content service is unavailable")
	ErrContentTimeout        = NewDomainError("content", "Request", ErrTimeout, "content service request timeout")
	ErrContentInvalidPayload = NewDomainError("content", "Parse", ErrInvalidFormat, "invalid response from content service")
	ErrEmptyItemSet          = NewDomainError("content", "Generate", ErrInvalidInput, "generator returned no items")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrOutOfRange) ||
		errors.Is(err, ErrInvalidFormat)
}

// IsStateConflict checks if the error is a state conflict the caller should
// resolve by re-fetching current state, never by blind retry.
func IsStateConflict(err error) bool {
	return errors.Is(err, ErrStateConflict)
}

// IsDependency checks if the error originated in an external service. These
// are absorbed with a deterministic fallback on the submission path.
func IsDependency(err error) bool {
	return errors.Is(err, ErrDependency) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConcurrentModification)
}
