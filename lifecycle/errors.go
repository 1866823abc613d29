/*
errors.go - Centralized error types for the lifecycle engine

ERROR CATEGORIES:
  1. ParseError         - A validity date could not be normalized
  2. InvariantViolation - A write would break the payment/record invariants
  3. ConflictError      - A concurrent write won the race; retry with fresh data
  4. StoreError         - The persistence layer failed

  Interactive writes fail hard on all of them. The reconciliation sweep
  never returns them; it counts and logs instead.

USAGE:
  if errors.Is(err, lifecycle.ErrConflict) {
      // reload and retry
  }

  var perr *lifecycle.ParseError
  if errors.As(err, &perr) {
      log.Printf("bad %s: %q", perr.Field, perr.Raw)
  }
*/
package lifecycle

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrParse is wrapped by every ParseError.
	ErrParse = errors.New("date parse error")

	// ErrInvariant is wrapped by every InvariantViolation.
	ErrInvariant = errors.New("invariant violation")

	// ErrConflict is wrapped by every ConflictError.
	ErrConflict = errors.New("concurrent modification")

	// ErrStore is wrapped by every StoreError.
	ErrStore = errors.New("store failure")

	// ErrNotFound is returned when a record id does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrUnknownRecordType is returned for a record type nobody registered.
	ErrUnknownRecordType = errors.New("unknown record type")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ParseError reports a date that could not be normalized.
type ParseError struct {
	Field  string // validFrom, validTo; empty when parsed standalone
	Raw    string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Raw, e.Reason)
	}
	return fmt.Sprintf("invalid date %q: %s", e.Raw, e.Reason)
}

func (e *ParseError) Unwrap() error { return ErrParse }

// InvariantViolation reports a write rejected because it would leave a
// record inconsistent.
type InvariantViolation struct {
	Field  string
	Detail string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation on %s: %s", e.Field, e.Detail)
}

func (e *InvariantViolation) Unwrap() error { return ErrInvariant }

// ConflictError reports a lost optimistic race.
type ConflictError struct {
	RecordID RecordID
	Reason   string
}

func (e *ConflictError) Error() string {
	if e.RecordID != "" {
		return fmt.Sprintf("conflict on record %s: %s", e.RecordID, e.Reason)
	}
	return "conflict: " + e.Reason
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// StoreError wraps a persistence failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }

// Is lets errors.Is match both ErrStore and the wrapped cause.
func (e *StoreError) Is(target error) bool { return target == ErrStore }

func (e *StoreError) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the caller should reload and retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrParse) ||
		errors.Is(err, ErrInvariant) ||
		errors.Is(err, ErrUnknownRecordType)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// wrapStore turns a raw persistence error into a StoreError, leaving the
// engine's own error kinds untouched.
func wrapStore(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrStore) ||
		errors.Is(err, ErrInvariant) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

func withField(err error, field string) error {
	var perr *ParseError
	if errors.As(err, &perr) {
		cp := *perr
		cp.Field = field
		return &cp
	}
	return err
}
