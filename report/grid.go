/*
grid.go - Optimistic edit buffer and batch commit

PURPOSE:
  Lets a caller freely edit many cells (day × category) before any gateway
  write happens, then persist everything in one pass. Edits accumulate in a
  single pending-change log keyed by a stable logical row identity: the
  category id once a row is bound, a grid-local key while the row only has
  a typed label. Binding a row is a rekey, not a merge.

COMMIT PROTOCOL (explicit save, never per keystroke):
  1. Reject outright if any row holds content but no label (zero writes)
  2. Resolve or create categories for labeled rows; duplicate labels
     resolve to distinct categories, never silently merged
  3. Re-check the status guard against the authoritative report
  4. Upsert pending cells, delete pending clears
  5. Re-fetch the full entry set (concurrent writers may have acted)
  6. Apply pending per-category comments to that category's entries
  7. draft -> saved on first successful commit
  8. Clear pending state and record the last-saved signature

  A failure during the gateway phase keeps the pending log intact and the
  whole commit is retried once automatically; creates and updates are keyed
  by (date, category), so replaying is safe.

INVARIANT (enforced live, at the edit boundary):
  The sum of values for any single day never exceeds 1, counting both
  persisted entries and pending cells.

SEE ALSO:
  - sync.go: The other writer whose effects step 5 re-synchronizes against
*/
package report

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// RowKey is the stable logical identity of a grid row: the category id for
// bound rows, a grid-local "row-N" key while unbound.
type RowKey string

type row struct {
	key        RowKey
	label      string
	categoryID CategoryID // empty while unbound
	cells      map[Day]decimal.Decimal
	clears     map[Day]bool
	comment    *string
}

func newRow(key RowKey) *row {
	return &row{key: key, cells: make(map[Day]decimal.Decimal), clears: make(map[Day]bool)}
}

func (r *row) hasContent() bool {
	return len(r.cells) > 0 || len(r.clears) > 0 || (r.comment != nil && strings.TrimSpace(*r.comment) != "")
}

// =============================================================================
// GRID
// =============================================================================

type Grid struct {
	store  StoreGateway
	actor  Actor
	report *Report
	log    logrus.FieldLogger

	entries []Entry // last authoritative snapshot

	rows    map[RowKey]*row
	order   []RowKey
	nextRow int

	lastSaved string
}

// NewGrid loads the authoritative entry set for rep and returns a clean
// grid over it.
func NewGrid(ctx context.Context, store StoreGateway, actor Actor, rep *Report, log logrus.FieldLogger) (*Grid, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	entries, err := store.ListEntries(ctx, EntryFilter{ReportID: rep.ID})
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return &Grid{
		store:     store,
		actor:     actor,
		report:    rep,
		log:       log,
		entries:   entries,
		rows:      make(map[RowKey]*row),
		lastSaved: Signature(entries),
	}, nil
}

func (g *Grid) Report() *Report  { return g.report }
func (g *Grid) Entries() []Entry { return g.entries }

// Row returns the row for an already-resolved category, creating the
// pending bucket on first touch.
func (g *Grid) Row(categoryID CategoryID) RowKey {
	key := RowKey(categoryID)
	if _, ok := g.rows[key]; !ok {
		r := newRow(key)
		r.categoryID = categoryID
		g.rows[key] = r
		g.order = append(g.order, key)
	}
	return key
}

// AddRow creates an unbound row from a typed label. The label may be empty
// at this point, but a commit will refuse while it still is.
func (g *Grid) AddRow(label string) RowKey {
	g.nextRow++
	key := RowKey(fmt.Sprintf("row-%d", g.nextRow))
	r := newRow(key)
	r.label = strings.TrimSpace(label)
	g.rows[key] = r
	g.order = append(g.order, key)
	return key
}

// SetRowLabel renames an unbound row.
func (g *Grid) SetRowLabel(key RowKey, label string) error {
	r, ok := g.rows[key]
	if !ok {
		return fmt.Errorf("unknown row %s", key)
	}
	if r.categoryID != "" {
		return fmt.Errorf("row %s is already bound to category %s", key, r.categoryID)
	}
	r.label = strings.TrimSpace(label)
	return nil
}

// SetCell records raw input for (row, day). An empty string is distinct
// from never-entered: it schedules a deletion, not a zero-value entry.
// Non-numeric and out-of-set values are rejected here, and so is any value
// that would push the day's sum above one full day.
func (g *Grid) SetCell(key RowKey, day Day, raw string) error {
	r, ok := g.rows[key]
	if !ok {
		return fmt.Errorf("unknown row %s", key)
	}
	day = dayKey(day)

	if strings.TrimSpace(raw) == "" {
		delete(r.cells, day)
		r.clears[day] = true
		return nil
	}

	v, err := ParseCellValue(raw)
	if err != nil {
		return err
	}

	sum := g.daySum(day, key).Add(v)
	if sum.GreaterThan(fullDay) {
		return &DailyCapError{Date: day, Sum: sum.String()}
	}

	r.cells[day] = v
	delete(r.clears, day)
	return nil
}

// SetComment stages a comment that commit will apply to every entry of the
// row's category.
func (g *Grid) SetComment(key RowKey, comment string) error {
	r, ok := g.rows[key]
	if !ok {
		return fmt.Errorf("unknown row %s", key)
	}
	r.comment = &comment
	return nil
}

// Dirty reports whether the grid holds anything unsaved, comparing the
// live entry signature against the last-committed one as well.
func (g *Grid) Dirty() bool {
	for _, r := range g.rows {
		if r.hasContent() {
			return true
		}
	}
	return Signature(g.entries) != g.lastSaved
}

// Refresh re-fetches the authoritative entry set, e.g. after a sync engine
// notification. Pending edits are preserved.
func (g *Grid) Refresh(ctx context.Context) error {
	entries, err := g.store.ListEntries(ctx, EntryFilter{ReportID: g.report.ID})
	if err != nil {
		return fmt.Errorf("list entries: %w", err)
	}
	g.entries = entries
	g.lastSaved = Signature(entries)
	return nil
}

// =============================================================================
// COMMIT
// =============================================================================

// Commit persists the whole pending log in one pass. It retries once
// automatically on a transient failure; every write is keyed by
// (date, category), so the replay cannot duplicate entries. On error the
// pending log is retained and a later Commit picks it up again.
func (g *Grid) Commit(ctx context.Context) error {
	// All-or-nothing precondition, checked before any gateway call.
	for _, key := range g.order {
		r := g.rows[key]
		if r.categoryID == "" && r.label == "" && r.hasContent() {
			return &UnresolvedRowError{RowKey: key}
		}
	}

	err := g.commitOnce(ctx)
	if err != nil && IsRetryable(err) {
		g.log.WithFields(logrus.Fields{"report": g.report.ID, "error": err.Error()}).
			Warn("commit failed, retrying with retained pending set")
		err = g.commitOnce(ctx)
	}
	return err
}

func (g *Grid) commitOnce(ctx context.Context) error {
	if err := g.resolveRows(ctx); err != nil {
		return err
	}

	// Status guard against the authoritative report. Another actor may
	// have validated or closed it since this grid was loaded.
	rep, err := g.store.GetReport(ctx, g.report.ID)
	if err != nil {
		return err
	}
	if !g.actor.CanWrite(rep) {
		if rep.Status != g.report.Status && rep.Locked() {
			return &ConflictError{ReportID: rep.ID, Observed: g.report.Status, Actual: rep.Status}
		}
		if rep.Status == StatusClosed {
			return ErrClosed
		}
		return ErrForbidden
	}
	g.report = rep

	existing, err := g.store.ListEntries(ctx, EntryFilter{ReportID: rep.ID})
	if err != nil {
		return fmt.Errorf("list entries: %w", err)
	}
	index := make(map[Day]map[CategoryID]Entry)
	for _, e := range existing {
		d := dayKey(e.Date)
		if index[d] == nil {
			index[d] = make(map[CategoryID]Entry)
		}
		index[d][e.CategoryID] = e
	}

	// Upserts.
	for _, key := range g.order {
		r := g.rows[key]
		for _, day := range sortedDays(r.cells) {
			v := r.cells[day]
			if prev, ok := index[day][r.categoryID]; ok {
				if prev.Value.Equal(v) {
					continue
				}
				if _, err := g.store.UpdateEntry(ctx, prev.ID, EntryUpdate{Value: &v}); err != nil {
					return fmt.Errorf("update entry %s: %w", prev.ID, err)
				}
				continue
			}
			_, err := g.store.CreateEntry(ctx, Entry{
				ReportID:   rep.ID,
				Date:       day,
				CategoryID: r.categoryID,
				Value:      v,
				SourceType: SourceManual,
			})
			if err != nil {
				return fmt.Errorf("create entry %s/%s: %w", day, r.categoryID, err)
			}
		}
		for _, day := range sortedClearDays(r.clears) {
			prev, ok := index[day][r.categoryID]
			if !ok {
				continue
			}
			if err := g.store.DeleteEntry(ctx, prev.ID); err != nil {
				return fmt.Errorf("delete entry %s: %w", prev.ID, err)
			}
			delete(index[day], r.categoryID)
		}
	}

	// Authoritative resync: concurrent writers (sync engine, another
	// session) may have created or removed entries while we were editing.
	g.entries, err = g.store.ListEntries(ctx, EntryFilter{ReportID: rep.ID})
	if err != nil {
		return fmt.Errorf("refetch entries: %w", err)
	}

	// Per-category comments apply to every entry of the category.
	for _, key := range g.order {
		r := g.rows[key]
		if r.comment == nil {
			continue
		}
		for i := range g.entries {
			if g.entries[i].CategoryID != r.categoryID {
				continue
			}
			if g.entries[i].Comment == *r.comment {
				continue
			}
			updated, err := g.store.UpdateEntry(ctx, g.entries[i].ID, EntryUpdate{Comment: r.comment})
			if err != nil {
				return fmt.Errorf("update comment on %s: %w", g.entries[i].ID, err)
			}
			g.entries[i] = *updated
		}
	}

	if rep.Status == StatusDraft {
		saved := StatusSaved
		submitted := false
		updated, err := g.store.UpdateReport(ctx, rep.ID, ReportUpdate{Status: &saved, Submitted: &submitted})
		if err != nil {
			return fmt.Errorf("transition to saved: %w", err)
		}
		g.report = updated
	}

	g.rows = make(map[RowKey]*row)
	g.order = nil
	g.lastSaved = Signature(g.entries)
	g.log.WithFields(logrus.Fields{"report": g.report.ID, "entries": len(g.entries)}).
		Info("grid committed")
	return nil
}

// resolveRows binds every unbound row with pending content to a category,
// creating one
// when the label matches nothing (or when an earlier row already claimed
// the match: duplicate labels must end up on distinct categories). Binding
// survives a retry, so a replayed commit never re-creates categories.
func (g *Grid) resolveRows(ctx context.Context) error {
	var unbound []RowKey
	claimed := make(map[CategoryID]bool)
	for _, key := range g.order {
		r := g.rows[key]
		if r.categoryID != "" {
			claimed[r.categoryID] = true
		} else if r.hasContent() {
			// A labeled row with nothing pending writes nothing, so it
			// must not cause a category write either.
			unbound = append(unbound, key)
		}
	}
	if len(unbound) == 0 {
		return nil
	}

	categories, err := g.store.ListCategories(ctx)
	if err != nil {
		return fmt.Errorf("list categories: %w", err)
	}

	for _, key := range unbound {
		r := g.rows[key]
		if r.label == "" {
			// hasContent but no label was already rejected in Commit
			continue
		}

		var cat *Category
		for i := range categories {
			c := categories[i]
			if c.Active && c.Label == r.label && !claimed[c.ID] {
				cat = &c
				break
			}
		}
		if cat == nil {
			created, err := g.store.CreateCategory(ctx, Category{Label: r.label, Kind: KindOther, Active: true})
			if err != nil {
				return fmt.Errorf("create category %q: %w", r.label, err)
			}
			cat = created
			categories = append(categories, *created)
		}
		claimed[cat.ID] = true

		// Rekey the row under its category identity.
		r.categoryID = cat.ID
		newKey := RowKey(cat.ID)
		if existing, ok := g.rows[newKey]; ok && existing != r {
			mergeRow(existing, r)
			delete(g.rows, key)
			g.order = removeKey(g.order, key)
			continue
		}
		delete(g.rows, key)
		g.rows[newKey] = r
		r.key = newKey
		for i, k := range g.order {
			if k == key {
				g.order[i] = newKey
			}
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// daySum totals the day across pending cells and persisted entries,
// excluding any contribution of the row being edited (its new value
// replaces both its pending cell and its persisted entry).
func (g *Grid) daySum(day Day, exclude RowKey) decimal.Decimal {
	sum := decimal.Zero
	overridden := make(map[CategoryID]bool)
	for key, r := range g.rows {
		if key == exclude {
			if r.categoryID != "" {
				overridden[r.categoryID] = true
			}
			continue
		}
		if v, ok := r.cells[day]; ok {
			sum = sum.Add(v)
			if r.categoryID != "" {
				overridden[r.categoryID] = true
			}
			continue
		}
		if r.clears[day] && r.categoryID != "" {
			overridden[r.categoryID] = true
		}
	}
	for _, e := range g.entries {
		if dayKey(e.Date) == day && !overridden[e.CategoryID] {
			sum = sum.Add(e.Value)
		}
	}
	return sum
}

func mergeRow(dst, src *row) {
	for d, v := range src.cells {
		dst.cells[d] = v
		delete(dst.clears, d)
	}
	for d := range src.clears {
		if _, ok := dst.cells[d]; !ok {
			dst.clears[d] = true
		}
	}
	if src.comment != nil {
		dst.comment = src.comment
	}
}

func removeKey(keys []RowKey, key RowKey) []RowKey {
	out := keys[:0]
	for _, k := range keys {
		if k != key {
			out = append(out, k)
		}
	}
	return out
}

func sortedDays(cells map[Day]decimal.Decimal) []Day {
	days := make([]Day, 0, len(cells))
	for d := range cells {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

func sortedClearDays(clears map[Day]bool) []Day {
	days := make([]Day, 0, len(clears))
	for d := range clears {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

// Signature is the sorted, concatenated digest of date:category:value:comment
// over an entry set. Equal signatures mean equal report content.
func Signature(entries []Entry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, fmt.Sprintf("%s:%s:%s:%s", dayKey(e.Date), e.CategoryID, e.Value, e.Comment))
	}
	sort.Strings(parts)
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
