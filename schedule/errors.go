/*
errors.go - Centralized error types for the schedule engine

PURPOSE:
  All error types in one place for consistency and discoverability.

ERROR CATEGORIES:
  1. Input errors - malformed requests, rejected before any computation
  2. Conflicts - locked schedules/items, apply lock held elsewhere
  3. Not found - unknown template, schedule or item
  4. Programming errors - validator reached with unresolved dates

  Validation failures (SUM_MISMATCH, FINAL_PAYMENT_TOO_LATE, ...) are NOT
  errors. They are returned as a ValidationResult, see validator.go.

USAGE:
  if errors.Is(err, schedule.ErrInvalidInput) {
      // 400
  }
  var in *schedule.InputError
  if errors.As(err, &in) {
      log.Printf("bad field %s", in.Field)
  }
*/
package schedule

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidInput is the parent of every InputError.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnresolvedDueDate is returned when validation is asked to check an
	// item without a due date. The resolver never lets this happen.
	ErrUnresolvedDueDate = errors.New("unresolved due date")

	// ErrTemplateNotFound is returned when a referenced template doesn't exist.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrScheduleNotFound is returned when an activity has no schedule.
	ErrScheduleNotFound = errors.New("schedule not found")

	// ErrItemNotFound is returned when a referenced payment item doesn't exist.
	ErrItemNotFound = errors.New("payment item not found")

	// ErrScheduleLocked is returned when a schedule with locked or paid items would be
	// re-resolved or deleted.
	ErrScheduleLocked = errors.New("schedule has locked or paid items")

	// ErrItemLocked is returned when a locked item would be changed.
	ErrItemLocked = errors.New("payment item is locked")

	// ErrLockBusy is returned when another apply for the same activity is in flight.
	ErrLockBusy = errors.New("schedule is being modified by another request")

	// ErrPartialPaymentNotAllowed is returned when a payment smaller than the
	// remaining amount posts against a schedule that disallows partial payments.
	ErrPartialPaymentNotAllowed = errors.New("partial payments not allowed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InputError describes one malformed field. It is raised before any amount or
// date math runs.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InputError) Unwrap() error {
	return ErrInvalidInput
}

// ProgrammingError marks a broken internal contract, not a user mistake.
type ProgrammingError struct {
	Op   string
	Item int // 1-based sequence of the offending item
	Err  error
}

func (e *ProgrammingError) Error() string {
	return fmt.Sprintf("%s: item %d: %v", e.Op, e.Item, e.Err)
}

func (e *ProgrammingError) Unwrap() error {
	return e.Err
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrPartialPaymentNotAllowed)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTemplateNotFound) ||
		errors.Is(err, ErrScheduleNotFound) ||
		errors.Is(err, ErrItemNotFound)
}

// IsConflict returns true if the error is caused by a lock.
func IsConflict(err error) bool {
	return errors.Is(err, ErrScheduleLocked) ||
		errors.Is(err, ErrItemLocked) ||
		errors.Is(err, ErrLockBusy)
}

func invalid(field, reason string) error {
	return &InputError{Field: field, Reason: reason}
}
