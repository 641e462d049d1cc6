/*
validate.go - Month validation engine

PURPOSE:
  Pure computation over (entries, categories, special days, month) with no
  gateway access. Invoked live to gate the submit action, and invoked again
  authoritatively inside the validated transition (state.go), which never
  trusts a stale client-side result.

CHECKS, IN ORDER:
  1. Daily sums: every date carrying entries must sum to exactly 1
  2. Business-day coverage: every non-excluded weekday needs entries
  3. Category presence: every entry must carry a resolvable category
  4. Comment requirement: billable/nonbillable work needs a comment
*/
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// missingPreviewCap bounds how many absent dates a coverage violation
// spells out before collapsing into a remainder count.
const missingPreviewCap = 5

// Input is the full snapshot the engine judges. Categories is keyed by id
// and may contain inactive categories; historical entries keep validating
// against the kind they were recorded under.
type Input struct {
	Month       Month
	OwnerID     string
	Entries     []Entry
	Categories  map[CategoryID]Category
	SpecialDays []SpecialDay
}

// Result is ok/errors. Errors preserves check order, then date order.
type Result struct {
	OK     bool
	Errors []string
}

// Validate runs every check and returns the accumulated violations. It
// never short-circuits: the caller gets the complete list in one pass.
func Validate(in Input) Result {
	var errs []string

	errs = append(errs, checkDailySums(in)...)
	errs = append(errs, checkCoverage(in)...)
	errs = append(errs, checkCategories(in)...)
	errs = append(errs, checkComments(in)...)

	return Result{OK: len(errs) == 0, Errors: errs}
}

// checkDailySums requires full coverage on any touched day: exactly 1, not
// merely ≤ 1. The looser cap is what the grid enforces live while editing.
func checkDailySums(in Input) []string {
	sums := make(map[Day]decimal.Decimal)
	for _, e := range in.Entries {
		d := dayKey(e.Date)
		sums[d] = sums[d].Add(e.Value)
	}

	var days []Day
	for d := range sums {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	var errs []string
	for _, d := range days {
		if !sums[d].Equal(fullDay) {
			errs = append(errs, fmt.Sprintf("day %s: entries sum to %s, expected exactly 1", d, sums[d]))
		}
	}
	return errs
}

// checkCoverage requires at least one entry on every weekday of the month
// not excluded by a holiday or mandatory-leave special day in scope.
func checkCoverage(in Input) []string {
	excluded := make(map[Day]bool)
	for _, s := range in.SpecialDays {
		if s.ExcludesBusinessDay(in.OwnerID) {
			excluded[dayKey(s.Date)] = true
		}
	}
	covered := make(map[Day]bool)
	for _, e := range in.Entries {
		covered[dayKey(e.Date)] = true
	}

	var missing []string
	for _, d := range in.Month.Weekdays() {
		if !excluded[d] && !covered[d] {
			missing = append(missing, d.String())
		}
	}
	if len(missing) == 0 {
		return nil
	}

	preview := missing
	suffix := ""
	if len(missing) > missingPreviewCap {
		preview = missing[:missingPreviewCap]
		suffix = fmt.Sprintf(" (+%d more)", len(missing)-missingPreviewCap)
	}
	return []string{fmt.Sprintf("missing entries for %d business day(s): %s%s",
		len(missing), strings.Join(preview, ", "), suffix)}
}

func checkCategories(in Input) []string {
	var errs []string
	for _, e := range sortedByDate(in.Entries) {
		if e.CategoryID == "" {
			errs = append(errs, fmt.Sprintf("entry on %s has no category", e.Date))
			continue
		}
		if _, ok := in.Categories[e.CategoryID]; !ok {
			errs = append(errs, fmt.Sprintf("entry on %s references unknown category %s", e.Date, e.CategoryID))
		}
	}
	return errs
}

func checkComments(in Input) []string {
	var errs []string
	for _, e := range sortedByDate(in.Entries) {
		cat, ok := in.Categories[e.CategoryID]
		if !ok || !cat.RequiresComment() {
			continue
		}
		if e.Value.IsPositive() && strings.TrimSpace(e.Comment) == "" {
			errs = append(errs, fmt.Sprintf("entry on %s (%s) requires a comment", e.Date, cat.Label))
		}
	}
	return errs
}

func sortedByDate(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].CategoryID < out[j].CategoryID
	})
	return out
}

// dayKey normalizes a Day for use as a map key; entries loaded from
// different gateways must collapse onto the same calendar day.
func dayKey(d Day) Day { return Day{Time: d.normalize()} }
