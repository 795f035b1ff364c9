/*
errors.go - Centralized error kinds for the membership engine

PURPOSE:
  All error kinds in one place for consistency and discoverability.
  Every failure the core reports is one of four kinds. Domain packages
  return the structured errors below, which unwrap to a sentinel so
  callers can branch with errors.Is().

ERROR KINDS:
  1. NotFound     - Referenced record is absent or soft-deleted
  2. InvalidState - A state precondition of the operation does not hold
  3. Conflict     - A uniqueness or business invariant would be violated
  4. Validation   - Malformed input shape

PROPAGATION:
  None of these are retried inside the core. They travel unchanged to the
  caller (api/handlers.go maps them to HTTP status codes).

USAGE:
  if generic.IsNotFound(err) {
      // 404
  }

  var ise *generic.InvalidStateError
  if errors.As(err, &ise) {
      log.Printf("member is %s", ise.Current)
  }

SEE ALSO:
  - approval.go: Workflow returns these errors
  - membership/lifecycle.go: State machine returns these errors
  - api/handlers.go: Maps kinds to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced Member, Approval, Payment or
	// Institution does not exist or is soft-deleted.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when an operation's state precondition is
	// violated (approving a non-PENDING approval, cancelling a non-ACTIVE member).
	ErrInvalidState = errors.New("invalid state")

	// ErrConflict is returned when a uniqueness or business invariant would be
	// violated, e.g. a second approved payment for the same period.
	ErrConflict = errors.New("conflict")

	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the missing record.
type NotFoundError struct {
	Kind string // "member", "approval", "payment", "institution"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// InvalidStateError reports the operation that was refused and the state
// the record was in at the time.
type InvalidStateError struct {
	Kind    string
	ID      string
	Op      string
	Current string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s %s %s: status is %s", e.Op, e.Kind, e.ID, e.Current)
}

func (e *InvalidStateError) Unwrap() error {
	return ErrInvalidState
}

// ConflictError describes which invariant a write would have broken.
type ConflictError struct {
	Kind    string
	ID      string
	Message string
}

func (e *ConflictError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s conflict: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s %s conflict: %s", e.Kind, e.ID, e.Message)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// ValidationError points at the offending input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidState returns true if a state precondition failed.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsConflict returns true if a uniqueness invariant would have been broken.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsValidation returns true if the input was malformed.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsClientError returns true if the error is due to the caller's request
// rather than a storage or programming failure.
func IsClientError(err error) bool {
	return IsNotFound(err) || IsInvalidState(err) || IsConflict(err) || IsValidation(err)
}
