/*
sync.go - Flagged-day synchronization engine

PURPOSE:
  Lets an external approval workflow (leave approved, seminar accepted,
  holiday declared) deterministically stamp a single authoritative entry on
  every weekday in a date range, tagged with provenance, and later retract
  exactly those entries. It never reads or writes a grid's pending state;
  grids converge through the shared entry list and the change notification.

APPLY, PER DATE:
  delete all existing entries for the date (authoritative overwrite, not a
  merge), create one full-day entry with provenance, then re-read to verify
  the new entry is visible. The gateway does not guarantee read-your-writes,
  so the delete-create-verify cycle retries up to 5 times with a fixed
  backoff. Re-running apply for the same range is idempotent: the end state
  is one entry per date, never duplicates.

REMOVE:
  Provenance is required on every flagged write, so removal matches
  provenance only: sourceType AND sourceId. The historical comment-marker
  and bare-category fallbacks are a one-time migration concern handled by
  MigrateLegacyMarkers, not a permanent matching path.

SEE ALSO:
  - grid.go: Commit step 5 re-fetches entries for exactly this reason
  - notify.go: The once-per-invocation change signal
*/
package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultMaxAttempts = 5
	defaultBackoff     = 150 * time.Millisecond
)

// SyncEngine stamps and retracts flagged days on behalf of approval
// workflows. The target user owns every report it touches; the caller's
// identity never appears in the data.
type SyncEngine struct {
	Store    StoreGateway
	Notifier *Notifier
	Log      logrus.FieldLogger

	// MaxAttempts and Backoff bound the per-date delete-create-verify
	// cycle. Zero values select the defaults (5 attempts, 150ms).
	MaxAttempts int
	Backoff     time.Duration
}

func NewSyncEngine(store StoreGateway, notifier *Notifier, log logrus.FieldLogger) *SyncEngine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &SyncEngine{Store: store, Notifier: notifier, Log: log}
}

// ApplyInput describes one approval decision to stamp across a range.
type ApplyInput struct {
	OwnerID    string
	Start      Day
	End        Day
	CategoryID CategoryID
	Comment    string
	SourceType SourceType
	SourceID   string
	SourceNote string
}

func (in ApplyInput) validate() error {
	if in.OwnerID == "" {
		return fmt.Errorf("apply: owner required")
	}
	if in.CategoryID == "" {
		return fmt.Errorf("apply: category required")
	}
	if in.End.Before(in.Start) {
		return fmt.Errorf("apply: end %s before start %s", in.End, in.Start)
	}
	if in.SourceType == "" || in.SourceType == SourceManual || in.SourceID == "" {
		return fmt.Errorf("apply: workflow provenance (sourceType, sourceId) required")
	}
	return nil
}

// RemoveInput identifies the stamped entries to retract.
type RemoveInput struct {
	OwnerID    string
	Start      Day
	End        Day
	SourceType SourceType
	SourceID   string
}

// Apply stamps one full-day entry on every weekday in [Start, End],
// grouped by month. Reports are created in draft when absent, owned by the
// target user. After each month's dates are processed its report is bumped
// draft -> saved best-effort; a failure there is logged and swallowed, it
// never blocks the data writes that matter.
func (s *SyncEngine) Apply(ctx context.Context, in ApplyInput) error {
	if err := in.validate(); err != nil {
		return err
	}

	days := WeekdaysBetween(in.Start, in.End)
	if len(days) == 0 {
		return nil
	}
	months, byMonth := GroupByMonth(days)

	for _, month := range months {
		rep, err := s.ensureReport(ctx, in.OwnerID, month)
		if err != nil {
			return err
		}
		if rep.Status == StatusClosed {
			return &ConflictError{ReportID: rep.ID, Observed: rep.Status, Actual: rep.Status}
		}

		for _, day := range byMonth[month] {
			if err := s.applyDay(ctx, rep.ID, day, in); err != nil {
				return fmt.Errorf("apply %s: %w", day, err)
			}
		}

		if rep.Status == StatusDraft {
			saved := StatusSaved
			submitted := false
			if _, err := s.Store.UpdateReport(ctx, rep.ID, ReportUpdate{Status: &saved, Submitted: &submitted}); err != nil {
				// Convenience transition only, not a correctness requirement.
				s.Log.WithFields(logrus.Fields{"report": rep.ID, "error": err.Error()}).
					Warn("best-effort status bump failed")
			}
		}
	}

	s.Log.WithFields(logrus.Fields{
		"owner": in.OwnerID, "from": in.Start.String(), "to": in.End.String(),
		"source_type": in.SourceType, "source_id": in.SourceID, "days": len(days),
	}).Info("flagged days applied")

	if s.Notifier != nil {
		s.Notifier.Notify()
	}
	return nil
}

// Remove deletes every entry in the affected months whose provenance
// matches (SourceType, SourceID). Entries written by hand or by other
// workflows on the same dates are untouched.
func (s *SyncEngine) Remove(ctx context.Context, in RemoveInput) error {
	if in.SourceType == "" || in.SourceType == SourceManual || in.SourceID == "" {
		return fmt.Errorf("remove: workflow provenance (sourceType, sourceId) required")
	}
	if in.End.Before(in.Start) {
		return fmt.Errorf("remove: end %s before start %s", in.End, in.Start)
	}

	months, _ := GroupByMonth(WeekdaysBetween(in.Start, in.End))
	removed := 0

	for _, month := range months {
		m := month
		reports, err := s.Store.ListReports(ctx, ReportFilter{OwnerID: in.OwnerID, Month: &m})
		if err != nil {
			return fmt.Errorf("list reports: %w", err)
		}
		if len(reports) == 0 {
			continue
		}
		rep := reports[0]
		if rep.Status == StatusClosed {
			return &ConflictError{ReportID: rep.ID, Observed: rep.Status, Actual: rep.Status}
		}

		entries, err := s.Store.ListEntries(ctx, EntryFilter{ReportID: rep.ID})
		if err != nil {
			return fmt.Errorf("list entries: %w", err)
		}
		for _, e := range entries {
			if e.SourceType != in.SourceType || e.SourceID != in.SourceID {
				continue
			}
			if err := s.Store.DeleteEntry(ctx, e.ID); err != nil {
				return fmt.Errorf("delete entry %s: %w", e.ID, err)
			}
			removed++
		}
	}

	s.Log.WithFields(logrus.Fields{
		"owner": in.OwnerID, "source_type": in.SourceType, "source_id": in.SourceID, "removed": removed,
	}).Info("flagged days removed")

	if removed > 0 && s.Notifier != nil {
		s.Notifier.Notify()
	}
	return nil
}

// MigrateLegacyMarkers stamps provenance onto entries that predate
// provenance tagging and carry only a comment marker (e.g. "[SEMINAIRE]").
// One-time migration helper; the matching never lives in Remove itself.
func (s *SyncEngine) MigrateLegacyMarkers(ctx context.Context, reportID ReportID, marker string, source SourceType, sourceID string) (int, error) {
	if marker == "" {
		return 0, fmt.Errorf("migrate: marker required")
	}
	entries, err := s.Store.ListEntries(ctx, EntryFilter{ReportID: reportID})
	if err != nil {
		return 0, fmt.Errorf("list entries: %w", err)
	}
	migrated := 0
	for _, e := range entries {
		if e.Flagged() || !strings.Contains(e.Comment, marker) {
			continue
		}
		st, sid := source, sourceID
		if _, err := s.Store.UpdateEntry(ctx, e.ID, EntryUpdate{SourceType: &st, SourceID: &sid}); err != nil {
			return migrated, fmt.Errorf("update entry %s: %w", e.ID, err)
		}
		migrated++
	}
	return migrated, nil
}

// =============================================================================
// INTERNAL
// =============================================================================

func (s *SyncEngine) ensureReport(ctx context.Context, ownerID string, month Month) (*Report, error) {
	m := month
	existing, err := s.Store.ListReports(ctx, ReportFilter{OwnerID: ownerID, Month: &m})
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
	return created, nil
}

// applyDay runs the delete-create-verify cycle for one date. A flagged day
// fully replaces whatever was there.
func (s *SyncEngine) applyDay(ctx context.Context, reportID ReportID, day Day, in ApplyInput) error {
	attempts := s.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	backoff := s.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		created, err := s.overwriteDay(ctx, reportID, day, in)
		if err != nil {
			lastErr = err
			continue
		}

		visible, err := s.entryVisible(ctx, reportID, day, created.ID)
		if err != nil {
			lastErr = err
			continue
		}
		if visible {
			return nil
		}
		lastErr = fmt.Errorf("entry %s not yet visible: %w", created.ID, ErrStoreUnavailable)
		s.Log.WithFields(logrus.Fields{"report": reportID, "day": day.String(), "attempt": attempt}).
			Debug("created entry not visible yet, retrying")
	}
	return fmt.Errorf("gave up after %d attempts: %w", attempts, lastErr)
}

func (s *SyncEngine) overwriteDay(ctx context.Context, reportID ReportID, day Day, in ApplyInput) (*Entry, error) {
	d := day
	existing, err := s.Store.ListEntries(ctx, EntryFilter{ReportID: reportID, Date: &d})
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	for _, e := range existing {
		if err := s.Store.DeleteEntry(ctx, e.ID); err != nil && !IsNotFound(err) {
			return nil, fmt.Errorf("delete entry %s: %w", e.ID, err)
		}
	}
	created, err := s.Store.CreateEntry(ctx, Entry{
		ReportID:   reportID,
		Date:       day,
		CategoryID: in.CategoryID,
		Value:      FullDay(),
		Comment:    in.Comment,
		SourceType: in.SourceType,
		SourceID:   in.SourceID,
		SourceNote: in.SourceNote,
	})
	if err != nil {
		return nil, fmt.Errorf("create entry: %w", err)
	}
	return created, nil
}

func (s *SyncEngine) entryVisible(ctx context.Context, reportID ReportID, day Day, id EntryID) (bool, error) {
	d := day
	entries, err := s.Store.ListEntries(ctx, EntryFilter{ReportID: reportID, Date: &d})
	if err != nil {
		return false, fmt.Errorf("verify read: %w", err)
	}
	for _, e := range entries {
		if e.ID == id {
			return true, nil
		}
	}
	return false, nil
}
