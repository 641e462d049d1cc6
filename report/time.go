package report

import (
	"fmt"
	"time"
)

// =============================================================================
// DAY - Calendar day, always UTC
// =============================================================================

// Day is a single calendar day normalized to midnight UTC. All range
// enumeration happens in the UTC calendar to avoid local-time/DST boundary
// errors when an approval spans a transition weekend.
type Day struct {
	Time time.Time
}

func NewDay(year int, month time.Month, day int) Day {
	return Day{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDay parses "YYYY-MM-DD".
func ParseDay(s string) (Day, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Day{}, fmt.Errorf("invalid day %q: %w", s, err)
	}
	return Day{Time: t.UTC()}, nil
}

func (d Day) String() string { return d.Time.Format("2006-01-02") }

func (d Day) Before(o Day) bool        { return d.normalize().Before(o.normalize()) }
func (d Day) After(o Day) bool         { return d.normalize().After(o.normalize()) }
func (d Day) Equal(o Day) bool         { return d.normalize().Equal(o.normalize()) }
func (d Day) BeforeOrEqual(o Day) bool { return !d.After(o) }
func (d Day) AddDays(n int) Day        { return Day{Time: d.normalize().AddDate(0, 0, n)} }
func (d Day) IsZero() bool             { return d.Time.IsZero() }

func (d Day) Weekday() time.Weekday { return d.normalize().Weekday() }

func (d Day) IsWeekend() bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func (d Day) Month() Month {
	t := d.normalize()
	return Month{Year: t.Year(), Month: t.Month()}
}

func (d Day) normalize() time.Time {
	return time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// MONTH - Calendar month ("YYYY-MM")
// =============================================================================

type Month struct {
	Year  int
	Month time.Month
}

// ParseMonth parses "YYYY-MM".
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Month{}, fmt.Errorf("invalid month %q: %w", s, err)
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

func (m Month) IsZero() bool { return m.Year == 0 }

func (m Month) First() Day { return NewDay(m.Year, m.Month, 1) }

func (m Month) Last() Day {
	return Day{Time: time.Date(m.Year, m.Month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)}
}

func (m Month) Contains(d Day) bool {
	return d.Month() == m
}

// Weekdays returns every Monday-Friday day of the month, in order.
func (m Month) Weekdays() []Day {
	var days []Day
	for d := m.First(); d.BeforeOrEqual(m.Last()); d = d.AddDays(1) {
		if !d.IsWeekend() {
			days = append(days, d)
		}
	}
	return days
}

// =============================================================================
// RANGE ENUMERATION
// =============================================================================

// WeekdaysBetween returns every weekday in [from, to] inclusive.
func WeekdaysBetween(from, to Day) []Day {
	var days []Day
	for d := from; d.BeforeOrEqual(to); d = d.AddDays(1) {
		if !d.IsWeekend() {
			days = append(days, d)
		}
	}
	return days
}

// GroupByMonth splits days into per-month buckets, preserving order. The
// returned month slice is ordered by first occurrence.
func GroupByMonth(days []Day) ([]Month, map[Month][]Day) {
	byMonth := make(map[Month][]Day)
	var order []Month
	for _, d := range days {
		m := d.Month()
		if _, ok := byMonth[m]; !ok {
			order = append(order, m)
		}
		byMonth[m] = append(byMonth[m], d)
	}
	return order, byMonth
}
