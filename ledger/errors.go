/*
errors.go - Centralized error types for the credit ledger core

PURPOSE:
  All error kinds in one place so callers branch on errors.Is, never on
  message text. The HTTP layer maps these to status codes and stable
  machine-readable codes.

ERROR CATEGORIES:
  1. Client rejections - insufficient credit, already cancelled, paid delete
  2. Not-found errors  - referenced purchase/grant/attendance missing
  3. Store errors      - conflicts and unavailability

USAGE:
  if errors.Is(err, ledger.ErrInsufficientCredit) {
      // user-facing rejection: buy more credit
  }
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInsufficientCredit is returned by a debit when no single eligible
	// grant covers the requested amount. Non-retryable; the action cannot
	// proceed until more credit is purchased.
	ErrInsufficientCredit = errors.New("insufficient credit")

	// ErrAlreadyCancelled is returned when cancel is invoked on a
	// non-active attendance row. A caller error, not a server fault.
	ErrAlreadyCancelled = errors.New("attendance already cancelled")

	// ErrPurchasePaid is returned when deleting a paid purchase. A grant
	// references it; silent deletion would break credit conservation.
	ErrPurchasePaid = errors.New("purchase already paid")

	// ErrNotFound is the root of all missing-reference errors below.
	ErrNotFound = errors.New("not found")

	ErrPurchaseNotFound   = fmt.Errorf("purchase %w", ErrNotFound)
	ErrGrantNotFound      = fmt.Errorf("credit grant %w", ErrNotFound)
	ErrAttendanceNotFound = fmt.Errorf("attendance %w", ErrNotFound)
	ErrStudentNotFound    = fmt.Errorf("student %w", ErrNotFound)
	ErrTeacherNotFound    = fmt.Errorf("teacher %w", ErrNotFound)
	ErrPackageNotFound    = fmt.Errorf("package %w", ErrNotFound)
	ErrSubjectNotFound    = fmt.Errorf("subject %w", ErrNotFound)

	// ErrConcurrencyConflict is returned after bounded internal retries of
	// a conflicting grant mutation. Transient; the caller may retry.
	ErrConcurrencyConflict = errors.New("concurrent modification detected")

	// ErrStoreUnavailable is returned when the underlying transaction could
	// not be committed. Rollback guarantees no partial state is visible.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInvalidInput is returned for malformed operation arguments
	// (non-positive amounts, missing ids).
	ErrInvalidInput = errors.New("invalid input")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientCreditError reports a credit shortage for a student+subject.
type InsufficientCreditError struct {
	StudentID StudentID
	SubjectID SubjectID
	Available int
	Requested int
}

func (e *InsufficientCreditError) Error() string {
	return fmt.Sprintf("insufficient credit for student %s in subject %s: available %d, requested %d",
		e.StudentID, e.SubjectID, e.Available, e.Requested)
}

func (e *InsufficientCreditError) Unwrap() error { return ErrInsufficientCredit }

// AlreadyCancelledError reports a repeated cancel with the row's state.
type AlreadyCancelledError struct {
	AttendanceID AttendanceID
	Status       AttendanceStatus
}

func (e *AlreadyCancelledError) Error() string {
	return fmt.Sprintf("attendance %s is %s, not active", e.AttendanceID, e.Status)
}

func (e *AlreadyCancelledError) Unwrap() error { return ErrAlreadyCancelled }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// IsClientError returns true if the error is a user-facing rejection rather
// than a system fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientCredit) ||
		errors.Is(err, ErrAlreadyCancelled) ||
		errors.Is(err, ErrPurchasePaid) ||
		errors.Is(err, ErrInvalidInput)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
