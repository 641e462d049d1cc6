package report_test

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/timesheet-engine/report"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func half() decimal.Decimal    { return decimal.RequireFromString("0.5") }
func quarter() decimal.Decimal { return decimal.RequireFromString("0.25") }

func billableCat(id, label string) report.Category {
	return report.Category{ID: report.CategoryID(id), Label: label, Kind: report.KindBillable, Active: true}
}

func otherCat(id, label string) report.Category {
	return report.Category{ID: report.CategoryID(id), Label: label, Kind: report.KindOther, Active: true}
}

func catMap(cats ...report.Category) map[report.CategoryID]report.Category {
	m := make(map[report.CategoryID]report.Category)
	for _, c := range cats {
		m[c.ID] = c
	}
	return m
}

func entry(day report.Day, cat string, v decimal.Decimal, comment string) report.Entry {
	return report.Entry{Date: day, CategoryID: report.CategoryID(cat), Value: v, Comment: comment}
}

// fullMonthEntries covers every weekday with a commented full-day entry.
func fullMonthEntries(month report.Month, cat string) []report.Entry {
	var entries []report.Entry
	for _, day := range month.Weekdays() {
		entries = append(entries, entry(day, cat, report.FullDay(), "work"))
	}
	return entries
}

// =============================================================================
// VALIDATION ENGINE (P2)
// =============================================================================

func TestValidate_FullCoverage_OK(t *testing.T) {
	month := march2024()
	result := report.Validate(report.Input{
		Month:      month,
		OwnerID:    "u1",
		Entries:    fullMonthEntries(month, "c1"),
		Categories: catMap(billableCat("c1", "Client Work")),
	})
	assert.True(t, result.OK)
	assert.Empty(t, result.Errors)
}

func TestValidate_DailySumMustBeExactlyOne(t *testing.T) {
	// GIVEN: A day covered with 0.75 instead of 1
	month := march2024()
	entries := fullMonthEntries(month, "c1")
	entries[0].Value = decimal.RequireFromString("0.75")

	result := report.Validate(report.Input{
		Month:      month,
		OwnerID:    "u1",
		Entries:    entries,
		Categories: catMap(billableCat("c1", "Client Work")),
	})

	require.False(t, result.OK)
	assert.Contains(t, result.Errors[0], "2024-03-01")
	assert.Contains(t, result.Errors[0], "0.75")
}

func TestValidate_SplitDaySummingToOne_OK(t *testing.T) {
	// Two categories at 0.5 each on the same day satisfy the invariant.
	month := march2024()
	entries := fullMonthEntries(month, "c1")
	first := entries[0].Date
	entries[0].Value = half()
	entries = append(entries, entry(first, "c2", half(), "training"))

	result := report.Validate(report.Input{
		Month:      month,
		OwnerID:    "u1",
		Entries:    entries,
		Categories: catMap(billableCat("c1", "Client Work"), billableCat("c2", "Training")),
	})
	assert.True(t, result.OK, "errors: %v", result.Errors)
}

func TestValidate_MissingDays_CappedPreview(t *testing.T) {
	// GIVEN: An entirely empty month (21 business days in March 2024)
	result := report.Validate(report.Input{
		Month:      march2024(),
		OwnerID:    "u1",
		Categories: catMap(),
	})

	require.False(t, result.OK)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "21 business day(s)")
	assert.Contains(t, result.Errors[0], "(+16 more)", "preview caps at 5 dates")
}

func TestValidate_SpecialDaysShrinkCoverage(t *testing.T) {
	// GIVEN: Good Friday 2024-03-29 as a global holiday and a user-scoped
	// mandatory leave on 2024-03-28
	month := march2024()
	var entries []report.Entry
	for _, day := range month.Weekdays() {
		if day.String() == "2024-03-29" || day.String() == "2024-03-28" {
			continue
		}
		entries = append(entries, entry(day, "c1", report.FullDay(), "work"))
	}
	specials := []report.SpecialDay{
		{Date: report.NewDay(2024, time.March, 29), Type: report.SpecialHoliday, Scope: report.ScopeGlobal},
		{Date: report.NewDay(2024, time.March, 28), Type: report.SpecialMandatoryLeave, Scope: report.ScopeUser, UserID: "u1"},
	}

	result := report.Validate(report.Input{
		Month:       month,
		OwnerID:     "u1",
		Entries:     entries,
		Categories:  catMap(billableCat("c1", "Client Work")),
		SpecialDays: specials,
	})
	assert.True(t, result.OK, "errors: %v", result.Errors)

	// The same mandatory leave scoped to another user excludes nothing.
	specials[1].UserID = "u2"
	result = report.Validate(report.Input{
		Month:       month,
		OwnerID:     "u1",
		Entries:     entries,
		Categories:  catMap(billableCat("c1", "Client Work")),
		SpecialDays: specials,
	})
	assert.False(t, result.OK)
}

func TestValidate_SeminarSpecialDayDoesNotExclude(t *testing.T) {
	s := report.SpecialDay{Date: report.NewDay(2024, time.March, 4), Type: report.SpecialSeminar, Scope: report.ScopeGlobal}
	assert.False(t, s.ExcludesBusinessDay("u1"), "only holiday and mandatory_leave shrink coverage")
}

func TestValidate_UnknownCategoryReported(t *testing.T) {
	month := march2024()
	entries := fullMonthEntries(month, "c1")
	entries = append(entries[:0:0], entries...)
	entries[3].CategoryID = "ghost"

	result := report.Validate(report.Input{
		Month:      month,
		OwnerID:    "u1",
		Entries:    entries,
		Categories: catMap(billableCat("c1", "Client Work")),
	})

	require.False(t, result.OK)
	found := false
	for _, msg := range result.Errors {
		if strings.Contains(msg, "unknown category") && strings.Contains(msg, "ghost") {
			found = true
		}
	}
	assert.True(t, found, "errors: %v", result.Errors)
}

func TestValidate_CommentRequiredForBillableWork(t *testing.T) {
	month := march2024()
	entries := fullMonthEntries(month, "c1")
	entries[0].Comment = "  "

	result := report.Validate(report.Input{
		Month:      month,
		OwnerID:    "u1",
		Entries:    entries,
		Categories: catMap(billableCat("c1", "Client Work")),
	})

	require.False(t, result.OK)
	assert.Contains(t, result.Errors[0], "requires a comment")
	assert.Contains(t, result.Errors[0], "Client Work")
}

func TestValidate_OtherKindNeedsNoComment(t *testing.T) {
	month := march2024()
	var entries []report.Entry
	for _, day := range month.Weekdays() {
		entries = append(entries, entry(day, "c1", report.FullDay(), ""))
	}

	result := report.Validate(report.Input{
		Month:      month,
		OwnerID:    "u1",
		Entries:    entries,
		Categories: catMap(otherCat("c1", "Internal")),
	})
	assert.True(t, result.OK, "errors: %v", result.Errors)
}
