/*
store.go - Store Gateway contract for reports, entries and reference data

PURPOSE:
  Defines the interface between the report engine and persistence. The
  engine never assumes read-your-writes: a freshly created entry may be
  invisible to an immediately following list, which is why the sync engine
  verifies and retries (sync.go) and the grid re-fetches after writing
  (grid.go).

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite gateway
  - report/store:  In-memory gateway for tests, with a configurable
                   stale-read window to exercise the retry paths

SEE ALSO:
  - grid.go, sync.go, state.go: Consumers of this interface
*/
package report

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// FILTERS
// =============================================================================

type ReportFilter struct {
	OwnerID string
	Month   *Month
}

type EntryFilter struct {
	ReportID   ReportID
	Date       *Day
	CategoryID CategoryID
}

type SpecialDayFilter struct {
	// Month restricts results to special days whose date falls inside it.
	Month *Month
	// OwnerID, when set, keeps global days plus that user's days.
	OwnerID string
}

// =============================================================================
// PARTIAL UPDATES
// =============================================================================

// ReportUpdate mutates only the non-nil fields. Submitted is maintained as
// a mirror of the status by the lifecycle service, not by the gateway.
type ReportUpdate struct {
	Status    *Status
	Submitted *bool
}

type EntryUpdate struct {
	Value      *decimal.Decimal
	Comment    *string
	SourceType *SourceType
	SourceID   *string
	SourceNote *string
}

// =============================================================================
// STORE GATEWAY
// =============================================================================

// StoreGateway abstracts list/get/create/update/delete against the report
// and entry collections plus the read-only reference collections. All
// methods take a context and return explicit errors; missing records are
// reported as ErrNotFound.
type StoreGateway interface {
	ListReports(ctx context.Context, f ReportFilter) ([]Report, error)
	GetReport(ctx context.Context, id ReportID) (*Report, error)
	CreateReport(ctx context.Context, r Report) (*Report, error)
	UpdateReport(ctx context.Context, id ReportID, u ReportUpdate) (*Report, error)

	ListEntries(ctx context.Context, f EntryFilter) ([]Entry, error)
	CreateEntry(ctx context.Context, e Entry) (*Entry, error)
	UpdateEntry(ctx context.Context, id EntryID, u EntryUpdate) (*Entry, error)
	DeleteEntry(ctx context.Context, id EntryID) error

	// Reference data. Categories are read-mostly but commits may create
	// them when resolving freshly-typed row labels.
	ListCategories(ctx context.Context) ([]Category, error)
	CreateCategory(ctx context.Context, c Category) (*Category, error)
	ListSpecialDays(ctx context.Context, f SpecialDayFilter) ([]SpecialDay, error)
}
