/*
errors.go - Centralized error types for the credit ledger

PURPOSE:
  All ledger error values in one place. Callers branch with errors.Is /
  errors.As; the api package maps the classifier helpers onto HTTP status
  codes.

ERROR CATEGORIES:
  1. Validation errors - missing or malformed arguments
  2. Not-found errors  - referenced member/package/lesson/attendance absent
  3. Conflict errors   - duplicate attendance tuple, duplicate package
  4. ErrNoCredit       - consume with no package balance anywhere; this is
                         surfaced loudly instead of silently no-opping,
                         because a silent no-op masks real exhaustion.

SEE ALSO:
  - ledger.go, recorder.go: produce these errors
  - api/handlers.go: maps them to status codes
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
	// ErrValidation is returned for missing or malformed arguments.
	ErrValidation = errors.New("validation failed")

	// ErrMemberNotFound is returned when a referenced member doesn't exist.
	ErrMemberNotFound = errors.New("member not found")

	// ErrPackageNotFound is returned when a referenced package doesn't exist.
	ErrPackageNotFound = errors.New("package not found")

	// ErrLessonNotFound is returned when a referenced lesson doesn't exist.
	ErrLessonNotFound = errors.New("lesson not found")

	// ErrAttendanceNotFound is returned when an attendance row doesn't exist.
	ErrAttendanceNotFound = errors.New("attendance not found")

	// ErrPlanNotFound is returned when a package plan isn't in the catalog.
	ErrPlanNotFound = errors.New("plan not found")

	// ErrDuplicateAttendance is returned when a row already exists for the
	// same (member, lesson, date) tuple.
	ErrDuplicateAttendance = errors.New("attendance already recorded")

	// ErrDuplicatePackage is returned when Purchase is called for a member
	// who already owns a package row, regardless of its remaining balance.
	ErrDuplicatePackage = errors.New("member already owns a package")

	// ErrNoPackage is returned when Queue is called for a member with no
	// package at all; the first package must go through Purchase.
	ErrNoPackage = errors.New("member owns no package")

	// ErrNoCredit is returned when an included consume finds no package
	// with remaining balance anywhere.
	ErrNoCredit = errors.New("no lesson credit available")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NoCreditError reports which member hit exhaustion.
type NoCreditError struct {
	MemberID int64
}

func (e *NoCreditError) Error() string {
	return fmt.Sprintf("no lesson credit available for member %d", e.MemberID)
}

func (e *NoCreditError) Unwrap() error { return ErrNoCredit }

// DuplicateAttendanceError reports the conflicting tuple.
type DuplicateAttendanceError struct {
	MemberID   int64
	LessonID   int64
	ExistingID int64
}

func (e *DuplicateAttendanceError) Error() string {
	return fmt.Sprintf("attendance already recorded for member %d lesson %d (row %d)",
		e.MemberID, e.LessonID, e.ExistingID)
}

func (e *DuplicateAttendanceError) Unwrap() error { return ErrDuplicateAttendance }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrMemberNotFound) ||
		errors.Is(err, ErrPackageNotFound) ||
		errors.Is(err, ErrLessonNotFound) ||
		errors.Is(err, ErrAttendanceNotFound) ||
		errors.Is(err, ErrPlanNotFound)
}

// IsConflict returns true for duplicate-state errors and exhaustion.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateAttendance) ||
		errors.Is(err, ErrDuplicatePackage) ||
		errors.Is(err, ErrNoPackage) ||
		errors.Is(err, ErrNoCredit)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || IsNotFound(err) || IsConflict(err)
}
