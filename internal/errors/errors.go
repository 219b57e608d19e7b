// Package errors provides centralized error definitions and error handling
// utilities for the Palaver codebase. It defines domain-specific sentinel
// errors, semantic error types, error constructors with context wrapping,
// and error classification helpers.
//
// # Error Types
//
// Sentinel errors represent the coordination error taxonomy:
//   - ErrInvalidRequest: a request is missing a required field
//   - ErrNotCurrentSpeaker: a revoke/yield was attempted by a non-holder
//   - ErrUnavailableParticipant: the participant is degraded or unknown
//   - ErrQueueFull: the floor queue is at capacity
//   - ErrInvalidState: an operation was attempted in the wrong session state
//   - ErrNotFound: an unknown task, thread, or sync point id
//
// Semantic error types carry structured context:
//   - NotFoundError: a keyed resource could not be found
//   - ValidationError: invalid input
//   - StateError: an operation attempted against the wrong status
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewNotFoundError("task", "task-42")
//	err := errors.NewStateError("mediation", "resolved", "mediate")
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrNotCurrentSpeaker) { ... }
//
//	var nf *errors.NotFoundError
//	if errors.As(err, &nf) { ... }
package errors

import (
	"errors"
	"fmt"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Floor-related sentinel errors
var (
	// ErrInvalidRequest indicates a request is missing a required field
	// (participant id, reason) or carries an out-of-range value.
	ErrInvalidRequest = New("invalid request")
	// ErrNotCurrentSpeaker indicates a revoke or yield by a participant
	// that does not hold the floor.
	ErrNotCurrentSpeaker = New("not the current speaker")
	// ErrUnavailableParticipant indicates the participant is marked
	// unavailable and may not be queued or granted the floor.
	ErrUnavailableParticipant = New("participant unavailable")
	// ErrQueueFull indicates the floor request queue is at capacity.
	ErrQueueFull = New("floor queue full")
)

// Coordination-related sentinel errors
var (
	// ErrInvalidState indicates a pattern operation against a session in
	// the wrong status (e.g., mediating on a resolved session).
	ErrInvalidState = New("invalid session state")
	// ErrNotFound indicates an unknown task, thread, sync point, or
	// participant id.
	ErrNotFound = New("not found")
)

// -----------------------------------------------------------------------------
// Semantic Error Types
// -----------------------------------------------------------------------------

// NotFoundError indicates that a keyed resource could not be found.
type NotFoundError struct {
	// Resource is the type of resource (e.g., "task", "thread", "sync point").
	Resource string
	// ID is the identifier that was looked up.
	ID string
}

// NewNotFoundError creates a NotFoundError for the given resource and id.
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// Is reports whether this error matches ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Severity returns the severity of a not-found error.
func (e *NotFoundError) Severity() Severity {
	return SeverityWarning
}

// ValidationError indicates invalid input to an operation.
type ValidationError struct {
	// Field is the name of the invalid field.
	Field string
	// Reason describes why the field is invalid.
	Reason string
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is reports whether this error matches ErrInvalidRequest.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidRequest
}

// Severity returns the severity of a validation error.
func (e *ValidationError) Severity() Severity {
	return SeverityWarning
}

// StateError indicates an operation attempted against an entity in the
// wrong status.
type StateError struct {
	// Entity is the kind of entity (e.g., "mediation", "sync point").
	Entity string
	// Current is the entity's current status.
	Current string
	// Attempted is the operation that was attempted.
	Attempted string
}

// NewStateError creates a StateError.
func NewStateError(entity, current, attempted string) *StateError {
	return &StateError{Entity: entity, Current: current, Attempted: attempted}
}

// Error implements the error interface.
func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s %s in state %s", e.Attempted, e.Entity, e.Current)
}

// Is reports whether this error matches ErrInvalidState.
func (e *StateError) Is(target error) bool {
	return target == ErrInvalidState
}

// Severity returns the severity of a state error.
func (e *StateError) Severity() Severity {
	return SeverityError
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable reports whether the error represents a transient condition
// that may succeed on retry. A full queue drains as the floor is released
// and an unavailable participant may be restored; validation and state
// errors will fail the same way every time.
func IsRetryable(err error) bool {
	return Is(err, ErrQueueFull) || Is(err, ErrUnavailableParticipant)
}

// IsUserFacing reports whether the error is safe to surface to a caller
// verbatim. All taxonomy errors are caller errors by construction; wrapped
// internal errors are not.
func IsUserFacing(err error) bool {
	switch {
	case Is(err, ErrInvalidRequest),
		Is(err, ErrNotCurrentSpeaker),
		Is(err, ErrUnavailableParticipant),
		Is(err, ErrQueueFull),
		Is(err, ErrInvalidState),
		Is(err, ErrNotFound):
		return true
	}
	return false
}

// SeverityOf returns the severity carried by the error, or SeverityError
// if the error does not declare one.
func SeverityOf(err error) Severity {
	var carrier interface{ Severity() Severity }
	if As(err, &carrier) {
		return carrier.Severity()
	}
	return SeverityError
}
