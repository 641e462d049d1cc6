/*
errors.go - Centralized error types for the report engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers match sentinels with errors.Is() and unwrap structured errors
  with errors.As() for detail.

ERROR CATEGORIES:
  1. Conflict errors - another actor locked the report mid-operation
  2. Validation errors - month invariants violated, blocks submit only
  3. Commit errors - unresolved grid rows, invalid cell input
  4. Store errors - gateway-level failures

PROPAGATION POLICY:
  Transient store errors are retried only inside the sync engine's bounded
  per-date loop and the grid's single automatic commit retry; everywhere
  else errors propagate to the caller unmodified.

SEE ALSO:
  - state.go: Raises conflict and transition errors
  - grid.go: Raises unresolved-row and invalid-value errors
  - validate.go: Produces the violations carried by ValidationFailureError
*/
package report

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrConflict is returned when a report's authoritative status became
	// more restrictive than the caller observed. The operation aborted
	// without partial effect; the caller should reload and retry.
	ErrConflict = errors.New("report locked by another actor")

	// ErrClosed is returned when any write targets a closed report.
	// Closed is terminal, including for administrators.
	ErrClosed = errors.New("report is closed")

	// ErrNotFound is returned when a referenced report, entry or category
	// does not exist. Reports are created on demand instead; entry updates
	// and deletes treat this as a hard error.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned for status edges outside the
	// machine: anything leaving closed, skipping saved, etc.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrForbidden is returned when the write guard rejects the actor.
	ErrForbidden = errors.New("actor may not write this report")

	// ErrStoreUnavailable wraps transient gateway failures.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrUnresolvedRow blocks an entire commit when a row holds data but
	// no category label. All-or-nothing: zero gateway writes happen.
	ErrUnresolvedRow = errors.New("row has content but no category label")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ConflictError reports which status the caller observed versus what the
// store now holds.
type ConflictError struct {
	ReportID ReportID
	Observed Status
	Actual   Status
}

func (e *ConflictError) Error() string {
	if e.Observed == e.Actual {
		return fmt.Sprintf("report %s: is %s, operation refused", e.ReportID, e.Actual)
	}
	return fmt.Sprintf("report %s: status changed %s -> %s during operation, reload required",
		e.ReportID, e.Observed, e.Actual)
}

func (e *ConflictError) Unwrap() error {
	if e.Actual == StatusClosed {
		return ErrClosed
	}
	return ErrConflict
}

// TransitionError reports an illegal state-machine edge.
type TransitionError struct {
	ReportID ReportID
	From     Status
	To       Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("report %s: cannot transition %s -> %s", e.ReportID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	if e.From == StatusClosed {
		return ErrClosed
	}
	return ErrInvalidTransition
}

// ValidationFailureError carries the full ordered list of human-readable
// violations. It blocks the validated transition only, never saving drafts.
type ValidationFailureError struct {
	ReportID   ReportID
	Violations []string
}

func (e *ValidationFailureError) Error() string {
	return fmt.Sprintf("report %s: validation failed with %d violation(s)", e.ReportID, len(e.Violations))
}

// UnresolvedRowError identifies which grid row blocked the commit.
type UnresolvedRowError struct {
	RowKey RowKey
}

func (e *UnresolvedRowError) Error() string {
	return fmt.Sprintf("commit aborted: row %s has content but no category label", e.RowKey)
}

func (e *UnresolvedRowError) Unwrap() error { return ErrUnresolvedRow }

// InvalidValueError rejects cell input at the edit boundary.
type InvalidValueError struct {
	Raw    string
	Reason string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid cell value %q: %s", e.Raw, e.Reason)
}

// DailyCapError rejects a cell edit that would push a day's sum above one
// full day. Enforced live, before anything reaches the gateway.
type DailyCapError struct {
	Date Day
	Sum  string // would-be sum, formatted
}

func (e *DailyCapError) Error() string {
	return fmt.Sprintf("day %s: entries would sum to %s, maximum is 1", e.Date, e.Sum)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsConflict reports whether err means another actor locked the report.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrClosed)
}

// IsNotFound reports whether err indicates a missing record.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsRetryable reports whether the error might succeed on retry. Conflicts
// and validation failures never do; transient store failures might.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var uerr *UnresolvedRowError
	var verr *ValidationFailureError
	if errors.As(err, &uerr) || errors.As(err, &verr) {
		return false
	}
	return !IsConflict(err) && !IsNotFound(err) && !errors.Is(err, ErrForbidden)
}
