/*
state.go - Report lifecycle state machine

PURPOSE:
  Owns the status field and transition legality. Every mutating operation
  funnels through here: it re-reads the authoritative status from the
  gateway immediately before acting and aborts with a conflict if another
  actor validated or closed the report in the meantime.

STATE MACHINE:

  draft ──▶ saved ──▶ validated ──▶ closed
              ▲           │
              └───────────┘  (explicit reopen)

  - draft:     default for a newly created report; editable by owner
  - saved:     entered on first successful batch commit; still editable
  - validated: requires a clean validation result; locks owner edits
  - closed:    terminal for everyone, administrators included

SEE ALSO:
  - types.go: Actor.CanWrite, the shared write-guard predicate
  - validate.go: The engine consulted inside the validated transition
*/
package report

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// =============================================================================
// TRANSITION TABLE
// =============================================================================

var transitions = map[Status][]Status{
	StatusDraft:     {StatusSaved},
	StatusSaved:     {StatusValidated},
	StatusValidated: {StatusClosed, StatusSaved},
	StatusClosed:    {},
}

// CanTransition reports whether from -> to is a legal edge. The only
// backward edge is validated -> saved.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// =============================================================================
// LIFECYCLE SERVICE
// =============================================================================

// Reports drives the report lifecycle: lazy creation, status transitions
// and reset. It consults the validation engine inside the validated
// transition and never trusts a client-side check.
type Reports struct {
	Store       StoreGateway
	Categories  *CategoryCache
	SpecialDays *SpecialDayCache
	Log         logrus.FieldLogger
}

func NewReports(store StoreGateway, categories *CategoryCache, specialDays *SpecialDayCache, log logrus.FieldLogger) *Reports {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Reports{Store: store, Categories: categories, SpecialDays: specialDays, Log: log}
}

// GetOrCreate returns the report for (ownerID, month), creating it in
// draft if absent. Owners reach only their own reports; administrators may
// view anyone's without edit intent.
func (s *Reports) GetOrCreate(ctx context.Context, actor Actor, ownerID string, month Month) (*Report, error) {
	// An empty owner would match every report in the store filters, and an
	// empty subject would satisfy the ownership check for it.
	if ownerID == "" || actor.SubjectID == "" {
		return nil, ErrForbidden
	}
	if ownerID != actor.SubjectID && !actor.Admin {
		return nil, ErrForbidden
	}
	existing, err := s.Store.ListReports(ctx, ReportFilter{OwnerID: ownerID, Month: &month})
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	if len(existing) > 0 {
		return &existing[0], nil
	}
	created, err := s.Store.CreateReport(ctx, Report{OwnerID: ownerID, Month: month, Status: StatusDraft})
	if err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}
	s.Log.WithFields(logrus.Fields{"report": created.ID, "owner": ownerID, "month": month.String()}).
		Info("report created")
	return created, nil
}

// Submit moves saved -> validated. The validation engine is re-run here,
// authoritatively, and the transition refuses on any violation.
func (s *Reports) Submit(ctx context.Context, actor Actor, id ReportID) (*Report, error) {
	rep, err := s.reread(ctx, id, StatusSaved)
	if err != nil {
		return nil, err
	}
	if !s.mayTransition(actor, rep) {
		return nil, ErrForbidden
	}
	if !CanTransition(rep.Status, StatusValidated) {
		return nil, &TransitionError{ReportID: id, From: rep.Status, To: StatusValidated}
	}

	result, err := s.Validation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !result.OK {
		return nil, &ValidationFailureError{ReportID: id, Violations: result.Errors}
	}

	return s.applyStatus(ctx, id, StatusValidated)
}

// Reopen moves validated -> saved, restoring owner editability.
func (s *Reports) Reopen(ctx context.Context, actor Actor, id ReportID) (*Report, error) {
	rep, err := s.reread(ctx, id, StatusValidated)
	if err != nil {
		return nil, err
	}
	if !s.mayTransition(actor, rep) {
		return nil, ErrForbidden
	}
	if !CanTransition(rep.Status, StatusSaved) {
		return nil, &TransitionError{ReportID: id, From: rep.Status, To: StatusSaved}
	}
	return s.applyStatus(ctx, id, StatusSaved)
}

// Close moves validated -> closed. Administrators only; there is no way
// back out.
func (s *Reports) Close(ctx context.Context, actor Actor, id ReportID) (*Report, error) {
	if !actor.Admin {
		return nil, ErrForbidden
	}
	rep, err := s.Store.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(rep.Status, StatusClosed) {
		return nil, &TransitionError{ReportID: id, From: rep.Status, To: StatusClosed}
	}
	return s.applyStatus(ctx, id, StatusClosed)
}

// Reset deletes every entry and reverts the report to draft. The report
// row itself survives; reports are never hard-deleted in normal flow.
func (s *Reports) Reset(ctx context.Context, actor Actor, id ReportID) (*Report, error) {
	rep, err := s.Store.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanWrite(rep) {
		if rep.Status == StatusClosed {
			return nil, ErrClosed
		}
		return nil, ErrForbidden
	}
	entries, err := s.Store.ListEntries(ctx, EntryFilter{ReportID: id})
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	for _, e := range entries {
		if err := s.Store.DeleteEntry(ctx, e.ID); err != nil {
			return nil, fmt.Errorf("delete entry %s: %w", e.ID, err)
		}
	}
	return s.applyStatus(ctx, id, StatusDraft)
}

// Validation runs the validation engine over the report's current entry
// set. Pure read; safe to call live from a presentation layer.
func (s *Reports) Validation(ctx context.Context, id ReportID) (Result, error) {
	rep, err := s.Store.GetReport(ctx, id)
	if err != nil {
		return Result{}, err
	}
	entries, err := s.Store.ListEntries(ctx, EntryFilter{ReportID: id})
	if err != nil {
		return Result{}, fmt.Errorf("list entries: %w", err)
	}
	categories, err := s.Categories.ByID(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load categories: %w", err)
	}
	specials, err := s.SpecialDays.ForMonth(ctx, rep.Month, rep.OwnerID)
	if err != nil {
		return Result{}, fmt.Errorf("load special days: %w", err)
	}
	return Validate(Input{
		Month:       rep.Month,
		OwnerID:     rep.OwnerID,
		Entries:     entries,
		Categories:  categories,
		SpecialDays: specials,
	}), nil
}

// =============================================================================
// INTERNAL
// =============================================================================

// reread fetches the authoritative report and surfaces a conflict when it
// has moved to a more restrictive state than the caller observed. Guards
// against a stale client writing into a report that was just locked.
func (s *Reports) reread(ctx context.Context, id ReportID, observed Status) (*Report, error) {
	rep, err := s.Store.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if rep.Status != observed && (rep.Status == StatusValidated || rep.Status == StatusClosed) {
		return nil, &ConflictError{ReportID: id, Observed: observed, Actual: rep.Status}
	}
	return rep, nil
}

// mayTransition: the owner drives their own lifecycle; an administrator
// needs explicit edit intent to drive someone else's.
func (s *Reports) mayTransition(actor Actor, rep *Report) bool {
	if actor.SubjectID == rep.OwnerID {
		return true
	}
	return actor.Admin && actor.EditIntent
}

func (s *Reports) applyStatus(ctx context.Context, id ReportID, to Status) (*Report, error) {
	submitted := to == StatusValidated || to == StatusClosed
	rep, err := s.Store.UpdateReport(ctx, id, ReportUpdate{Status: &to, Submitted: &submitted})
	if err != nil {
		return nil, fmt.Errorf("update report status: %w", err)
	}
	s.Log.WithFields(logrus.Fields{"report": id, "status": to}).Info("report status changed")
	return rep, nil
}
