/*
Package report implements the monthly activity report engine.

PURPOSE:
  This package contains the domain types and algorithms for managing
  monthly activity reports ("timesheets"): one report per (owner, month),
  each holding dated entries that assign a quantized fraction of a day
  to a category.

KEY CONCEPTS IN THIS FILE (types.go):
  - Report: The monthly document with its lifecycle status
  - Entry: One dated, categorized, fractional-day record
  - Category: External reference data determining validation grouping
  - SpecialDay: External calendar data shrinking the business-day set
  - Actor: The caller identity used by every write guard

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal for day fractions, never float64
  2. Type Safety: Strong typing for IDs prevents mixing report/entry/category IDs
  3. Provenance: Every workflow-written entry carries (sourceType, sourceId)
  4. Guarded writes: Every mutation re-checks the authoritative status first

SEE ALSO:
  - state.go: Status transitions and write guards
  - grid.go: Optimistic edit buffer and batch commit
  - validate.go: Month validation engine
  - sync.go: Flagged-day synchronization engine
*/
package report

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ReportID string
type EntryID string
type CategoryID string

// =============================================================================
// REPORT - One monthly document per (owner, month)
// =============================================================================

type Status string

const (
	StatusDraft     Status = "draft"
	StatusSaved     Status = "saved"
	StatusValidated Status = "validated"
	StatusClosed    Status = "closed"
)

// Report is the monthly activity document. It is created lazily on first
// read or write for a given (owner, month) and never hard-deleted; a reset
// clears its entries and reverts it to draft.
type Report struct {
	ID      ReportID
	OwnerID string
	Month   Month
	Status  Status

	// Submitted mirrors Status ∈ {validated, closed}. It exists for
	// consumers that only care about the locked/unlocked distinction.
	Submitted bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Locked reports reject owner edits; admins with edit intent may still
// write unless the report is closed.
func (r *Report) Locked() bool {
	return r.Status == StatusValidated || r.Status == StatusClosed
}

// =============================================================================
// ENTRY - One dated fraction-of-a-day record
// =============================================================================

type SourceType string

const (
	SourceManual  SourceType = "manual"
	SourceLeave   SourceType = "leave"
	SourceSeminar SourceType = "seminar"
	SourceHoliday SourceType = "holiday"
)

type Entry struct {
	ID         EntryID
	ReportID   ReportID
	Date       Day
	CategoryID CategoryID
	Value      decimal.Decimal
	Comment    string

	// Provenance: which approval workflow produced this entry, if any.
	// Manual entries leave SourceID empty.
	SourceType SourceType
	SourceID   string
	SourceNote string
}

// Flagged reports whether this entry was stamped by an approval workflow
// rather than edited by hand.
func (e *Entry) Flagged() bool {
	return e.SourceType != "" && e.SourceType != SourceManual && e.SourceID != ""
}

// =============================================================================
// ENTRY VALUES - Quantized day fractions
// =============================================================================

var (
	quarterDay      = decimal.RequireFromString("0.25")
	halfDay         = decimal.RequireFromString("0.5")
	threeQuarterDay = decimal.RequireFromString("0.75")
	fullDay         = decimal.NewFromInt(1)

	allowedValues = []decimal.Decimal{quarterDay, halfDay, threeQuarterDay, fullDay}
)

// FullDay returns the value stamped on flagged days.
func FullDay() decimal.Decimal { return fullDay }

// AllowedValue reports whether v is one of the quantized day fractions
// {0.25, 0.5, 0.75, 1}.
func AllowedValue(v decimal.Decimal) bool {
	for _, a := range allowedValues {
		if v.Equal(a) {
			return true
		}
	}
	return false
}

// ParseCellValue parses raw user input into an entry value. A decimal comma
// is normalized to a decimal point before parsing. Values outside the
// allowed set are rejected here, at the edit boundary, never deferred to
// commit time.
func ParseCellValue(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(strings.ReplaceAll(raw, ",", "."))
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &InvalidValueError{Raw: raw, Reason: "not a number"}
	}
	if !AllowedValue(v) {
		return decimal.Zero, &InvalidValueError{Raw: raw, Reason: "must be one of 0.25, 0.5, 0.75, 1"}
	}
	return v, nil
}

// =============================================================================
// CATEGORY - External reference data (read-mostly here)
// =============================================================================

type CategoryKind string

const (
	KindBillable    CategoryKind = "billable"
	KindNonBillable CategoryKind = "nonbillable"
	KindOther       CategoryKind = "other"
)

type Category struct {
	ID     CategoryID
	Label  string
	Kind   CategoryKind
	Active bool
}

// RequiresComment reports whether a non-zero entry in this category must
// carry a non-empty comment.
func (c Category) RequiresComment() bool {
	return c.Kind == KindBillable || c.Kind == KindNonBillable
}

// =============================================================================
// SPECIAL DAY - External calendar data (read-only here)
// =============================================================================

type SpecialDayType string

const (
	SpecialHoliday        SpecialDayType = "holiday"
	SpecialMandatoryLeave SpecialDayType = "mandatory_leave"
	SpecialSeminar        SpecialDayType = "seminar"
	SpecialOther          SpecialDayType = "other"
)

type SpecialDayScope string

const (
	ScopeGlobal SpecialDayScope = "global"
	ScopeUser   SpecialDayScope = "user"
)

type SpecialDay struct {
	Date   Day
	Type   SpecialDayType
	Scope  SpecialDayScope
	UserID string // only for ScopeUser
}

// ExcludesBusinessDay reports whether this special day removes its date
// from ownerID's required business days.
func (s SpecialDay) ExcludesBusinessDay(ownerID string) bool {
	if s.Type != SpecialHoliday && s.Type != SpecialMandatoryLeave {
		return false
	}
	return s.Scope == ScopeGlobal || (s.Scope == ScopeUser && s.UserID == ownerID)
}

// =============================================================================
// ACTOR - Caller identity for write guards
// =============================================================================

// Actor is the resolved caller. Identity resolution itself is external;
// this engine only consumes the result.
type Actor struct {
	SubjectID string
	Admin     bool

	// EditIntent must be set explicitly for an administrator to mutate
	// another user's report. Viewing never requires it.
	EditIntent bool
}

// CanWrite is the single write-guard predicate consulted by every mutating
// operation: the owner while the report is draft or saved, or an admin with
// explicit edit intent on anything not closed.
func (a Actor) CanWrite(r *Report) bool {
	if r.Status == StatusClosed {
		return false
	}
	if a.Admin && a.EditIntent {
		return true
	}
	return a.SubjectID == r.OwnerID && !r.Locked()
}
