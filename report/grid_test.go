package report_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/timesheet-engine/report"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newGrid(t *testing.T, e *env, actor report.Actor, rep *report.Report) *report.Grid {
	t.Helper()
	g, err := report.NewGrid(context.Background(), e.store, actor, rep, nil)
	require.NoError(t, err)
	return g
}

// =============================================================================
// EDIT BOUNDARY
// =============================================================================

func TestGrid_ParsesDecimalComma(t *testing.T) {
	e := newEnv(t)
	cat := e.category(t, "Client Work", report.KindBillable)
	rep := e.report(t, "u1", march2024(), report.StatusDraft)
	g := newGrid(t, e, owner("u1"), rep)

	key := g.Row(cat.ID)
	assert.NoError(t, g.SetCell(key, report.NewDay(2024, time.March, 4), "0,5"))
}

func TestGrid_RejectsValuesOutsideTheSet(t *testing.T) {
	e := newEnv(t)
	cat := e.category(t, "Client Work", report.KindBillable)
	rep := e.report(t, "u1", march2024(), report.StatusDraft)
	g := newGrid(t, e, owner("u1"), rep)

	key := g.Row(cat.ID)
	day := report.NewDay(2024, time.March, 4)

	var ivErr *report.InvalidValueError
	assert.ErrorAs(t, g.SetCell(key, day, "0.3"), &ivErr)
	assert.ErrorAs(t, g.SetCell(key, day, "2"), &ivErr)
	assert.ErrorAs(t, g.SetCell(key, day, "abc"), &ivErr)
}

func TestGrid_DailyCapEnforcedLive(t *testing.T) {
	// GIVEN: 0.5 Training and 0.5 Client Work already pending on March 4
	e := newEnv(t)
	training := e.category(t, "Training", report.KindBillable)
	client := e.category(t, "Client Work", report.KindBillable)
	extra := e.category(t, "Internal", report.KindOther)
	rep := e.report(t, "u1", march2024(), report.StatusDraft)
	g := newGrid(t, e, owner("u1"), rep)

	day := report.NewDay(2024, time.March, 4)
	require.NoError(t, g.SetCell(g.Row(training.ID), day, "0.5"))
	require.NoError(t, g.SetCell(g.Row(client.ID), day, "0.5"))

	// WHEN: a third category tries to add 0.25 on the same day
	err := g.SetCell(g.Row(extra.ID), day, "0.25")

	// THEN: the edit is blocked before it ever reaches the gateway
	var capErr *report.DailyCapError
	require.ErrorAs(t, err, &capErr)
	assert.True(t, capErr.Date.Equal(day))
}

func TestGrid_DailyCapCountsPersistedEntries(t *testing.T) {
	// GIVEN: A committed 0.5 + 0.5 day
	e := newEnv(t)
	training := e.category(t, "Training", report.KindBillable)
	client := e.category(t, "Client Work", report.KindBillable)
	extra := e.category(t, "Internal", report.KindOther)
	rep := e.report(t, "u1", march2024(), report.StatusDraft)
	day := report.NewDay(2024, time.March, 4)

	g := newGrid(t, e, owner("u1"), rep)
	require.NoError(t, g.SetCell(g.Row(training.ID), day, "0.5"))
	require.NoError(t, g.SetCell(g.Row(client.ID), day, "0.5"))
	require.NoError(t, g.Commit(context.Background()))

	// WHEN: a fresh grid adds 0.25 on the same day
	g2 := newGrid(t, e, owner("u1"), g.Report())
	err := g2.SetCell(g2.Row(extra.ID), day, "0.25")

	// THEN: persisted entries count against the cap too
	var capErr *report.DailyCapError
	assert.ErrorAs(t, err, &capErr)

	// Replacing an existing category's own value stays legal.
	assert.NoError(t, g2.SetCell(g2.Row(training.ID), day, "0.5"))
}

// =============================================================================
// COMMIT PROTOCOL
// =============================================================================

func TestGrid_Commit_TwoCategoriesOneDay(t *testing.T) {
	// GIVEN: Report 2024-03 in draft, 0.5 Training + 0.5 Client Work on March 4
	e := newEnv(t)
	ctx := context.Background()
	training := e.category(t, "Training", report.KindBillable)
	client := e.category(t, "Client Work", report.KindBillable)
	rep := e.report(t, "u1", march2024(), report.StatusDraft)
	day := report.NewDay(2024, time.March, 4)

	g := newGrid(t, e, owner("u1"), rep)
	require.NoError(t, g.SetCell(g.Row(training.ID), day, "0.5"))
	require.NoError(t, g.SetCell(g.Row(client.ID), day, "0.5"))

	// WHEN: committing
	require.NoError(t, g.Commit(ctx))

	// THEN: both entries persist, daily sum = 1, status becomes saved
	entries, err := e.store.ListEntries(ctx, report.EntryFilter{ReportID: rep.ID})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	sum := entries[0].Value.Add(entries[1].Value)
	assert.True(t, sum.Equal(report.FullDay()))
	assert.Equal(t, report.StatusSaved, g.Report().Status)
	assert.False(t, g.Dirty())
}

func TestGrid_Commit_UnresolvedRowBlocksEverything(t *testing.T) {
	// GIVEN: One valid bound edit and one unbound row with data but no label
	e := newEnv(t)
	ctx := context.Background()
	cat := e.category(t, "Client Work", report.KindBillable)
	rep := e.report(t, "u1", march2024(), report.StatusDraft)

	g := newGrid(t, e, owner("u1"), rep)
	require.NoError(t, g.SetCell(g.Row(cat.ID), report.NewDay(2024, time.March, 4), "1"))
	nameless := g.AddRow("")
	require.NoError(t, g.SetCell(nameless, report.NewDay(2024, time.March, 5), "0.5"))

	// WHEN: committing
	err := g.Commit(ctx)

	// THEN: the whole commit aborts with zero gateway writes
	require.ErrorIs(t, err, report.ErrUnresolvedRow)

	entries, lerr := e.store.ListEntries(ctx, report.EntryFilter{ReportID: rep.ID})
	require.NoError(t, lerr)
	assert.Empty(t, entries, "no entry may be written")
	cats, cerr := e.store.ListCategories(ctx)
	require.NoError(t, cerr)
	assert.Len(t, cats, 1, "no category may be created")
	fresh, gerr := e.store.GetReport(ctx, rep.ID)
	require.NoError(t, gerr)
	assert.Equal(t, report.StatusDraft, fresh.Status)

	// The pending log survives: labeling the row lets a retry succeed.
	require.NoError(t, g.SetRowLabel(nameless, "Research"))
	require.NoError(t, g.Commit(ctx))
	entries, lerr = e.store.ListEntries(ctx, report.EntryFilter{ReportID: rep.ID})
	require.NoError(t, lerr)
	assert.Len(t, entries, 2)
}

func TestGrid_Commit_UpdatesInPlaceAndDeletes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	cat := e.category(t, "Client Work", report.KindBillable)
	rep := e.report(t, "u1", march2024(), report.StatusDraft)
	day4 := report.NewDay(2024, time.March, 4)
	day5 := report.NewDay(2024, time.March, 5)

	g := newGrid(t, e, owner("u1"), rep)
	require.NoError(t, g.SetCell(g.Row(cat.ID), day4, "1"))
	require.NoError(t, g.SetCell(g.Row(cat.ID), day5, "1"))
	require.NoError(t, g.Commit(ctx))

	entries, err := e.store.ListEntries(ctx, report.EntryFilter{ReportID: rep.ID})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	day4ID := entries[0].ID

	// Update one cell in place, clear the other to empty.
	g2 := newGrid(t, e, owner("u1"), g.Report())
	require.NoError(t, g2.SetCell(g2.Row(cat.ID), day4, "0.5"))
	require.NoError(t, g2.SetCell(g2.Row(cat.ID), day5, ""))
	require.NoError(t, g2.Commit(ctx))

	entries, err = e.store.ListEntries(ctx, report.EntryFilter{ReportID: rep.ID})
	require.NoError(t, err)
	require.Len(t, entries, 1, "cleared cell schedules a deletion, not a zero entry")
	assert.Equal(t, day4ID, entries[0].ID, "existing entry updated in place, not recreated")
	assert.True(t, entries[0].Value.Equal(half()))
}

func TestGrid_Commit_DuplicateLabelsResolveToDistinctCategories(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	rep := e.report(t, "u1", march2024(), report.StatusDraft)

	g := newGrid(t, e, owner("u1"), rep)
	r1 := g.AddRow("Training")
	r2 := g.AddRow("Training")
	require.NoError(t, g.SetCell(r1, report.NewDay(2024, time.March, 4), "0.5"))
	require.NoError(t, g.SetCell(r2, report.NewDay(2024, time.March, 4), "0.5"))
	require.NoError(t, g.Commit(ctx))

	cats, err := e.store.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 2, "duplicate labels must not be silently merged")

	entries, err := e.store.ListEntries(ctx, report.EntryFilter{ReportID: rep.ID})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.NotEqual(t, entries[0].CategoryID, entries[1].CategoryID)
}

func TestGrid_Commit_LabeledRowWithoutContentWritesNothing(t *testing.T) {
	// GIVEN: A real edit plus a labeled row nobody ever typed into
	e := newEnv(t)
	ctx := context.Background()
	cat := e.category(t, "Client Work", report.KindBillable)
	rep := e.report(t, "u1", march2024(), report.StatusDraft)

	g := newGrid(t, e, owner("u1"), rep)
	require.NoError(t, g.SetCell(g.Row(cat.ID), report.NewDay(2024, time.March, 4), "1"))
	g.AddRow("Placeholder")

	// WHEN: committing
	require.NoError(t, g.Commit(ctx))

	// THEN: the idle row must not have created a category
	cats, err := e.store.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "Client Work", cats[0].Label)
}

func TestGrid_Commit_AppliesCommentToWholeCategory(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	cat := e.category(t, "Client Work", report.KindBillable)
	rep := e.report(t, "u1", march2024(), report.StatusDraft)

	g := newGrid(t, e, owner("u1"), rep)
	key := g.Row(cat.ID)
	require.NoError(t, g.SetCell(key, report.NewDay(2024, time.March, 4), "1"))
	require.NoError(t, g.SetCell(key, report.NewDay(2024, time.March, 5), "1"))
	require.NoError(t, g.SetComment(key, "sprint 12"))
	require.NoError(t, g.Commit(ctx))

	entries, err := e.store.ListEntries(ctx, report.EntryFilter{ReportID: rep.ID})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, en := range entries {
		assert.Equal(t, "sprint 12", en.Comment)
	}
}

func TestGrid_Commit_ConflictWhenLockedConcurrently(t *testing.T) {
	// GIVEN: A loaded grid with pending edits
	e := newEnv(t)
	ctx := context.Background()
	cat := e.category(t, "Client Work", report.KindBillable)
	rep := e.report(t, "u1", march2024(), report.StatusSaved)

	g := newGrid(t, e, owner("u1"), rep)
	require.NoError(t, g.SetCell(g.Row(cat.ID), report.NewDay(2024, time.March, 4), "1"))

	// WHEN: another actor validates the report before the commit lands
	validated := report.StatusValidated
	submitted := true
	_, err := e.store.UpdateReport(ctx, rep.ID, report.ReportUpdate{Status: &validated, Submitted: &submitted})
	require.NoError(t, err)

	// THEN: the commit aborts with a conflict and writes nothing
	err = g.Commit(ctx)
	assert.True(t, report.IsConflict(err), "expected conflict, got %v", err)
	entries, lerr := e.store.ListEntries(ctx, report.EntryFilter{ReportID: rep.ID})
	require.NoError(t, lerr)
	assert.Empty(t, entries)
}

func TestGrid_Commit_ResyncsEntriesWrittenConcurrently(t *testing.T) {
	// GIVEN: A grid loaded before the sync engine stamps a flagged day
	e := newEnv(t)
	ctx := context.Background()
	work := e.category(t, "Client Work", report.KindBillable)
	leave := e.category(t, "Leave", report.KindOther)
	rep := e.report(t, "u1", march2024(), report.StatusDraft)

	g := newGrid(t, e, owner("u1"), rep)
	require.NoError(t, g.SetCell(g.Row(work.ID), report.NewDay(2024, time.March, 4), "1"))

	require.NoError(t, e.sync.Apply(ctx, report.ApplyInput{
		OwnerID:    "u1",
		Start:      report.NewDay(2024, time.March, 5),
		End:        report.NewDay(2024, time.March, 5),
		CategoryID: leave.ID,
		SourceType: report.SourceLeave,
		SourceID:   "req-1",
	}))

	// WHEN: the grid commits
	require.NoError(t, g.Commit(ctx))

	// THEN: the local snapshot includes the externally written entry
	assert.Len(t, g.Entries(), 2)
}

func TestGrid_DirtyTracking(t *testing.T) {
	e := newEnv(t)
	cat := e.category(t, "Client Work", report.KindBillable)
	rep := e.report(t, "u1", march2024(), report.StatusDraft)

	g := newGrid(t, e, owner("u1"), rep)
	assert.False(t, g.Dirty(), "freshly loaded grid is clean")

	require.NoError(t, g.SetCell(g.Row(cat.ID), report.NewDay(2024, time.March, 4), "1"))
	assert.True(t, g.Dirty())

	require.NoError(t, g.Commit(context.Background()))
	assert.False(t, g.Dirty(), "commit records the last-saved signature")
}
