// Package store provides StoreGateway implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warp/timesheet-engine/report"
)

// =============================================================================
// MEMORY GATEWAY - In-memory implementation (for testing/dev)
// =============================================================================

// Memory is a thread-safe in-memory StoreGateway. It can simulate a store
// without read-your-writes guarantees: after SetStaleReads(n), the next n
// ListEntries calls hide entries created since, which is exactly the
// condition the sync engine's verify-retry cycle exists for.
type Memory struct {
	mu          sync.RWMutex
	reports     map[report.ReportID]report.Report
	entries     map[report.EntryID]report.Entry
	categories  map[report.CategoryID]report.Category
	specialDays []report.SpecialDay

	staleReads int
	staleSince map[report.EntryID]bool // entries hidden while staleReads > 0
}

func NewMemory() *Memory {
	return &Memory{
		reports:    make(map[report.ReportID]report.Report),
		entries:    make(map[report.EntryID]report.Entry),
		categories: make(map[report.CategoryID]report.Category),
		staleSince: make(map[report.EntryID]bool),
	}
}

// SetStaleReads makes the next n ListEntries calls blind to entries
// created after this call.
func (m *Memory) SetStaleReads(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staleReads = n
	m.staleSince = make(map[report.EntryID]bool)
}

// =============================================================================
// REPORTS
// =============================================================================

func (m *Memory) ListReports(_ context.Context, f report.ReportFilter) ([]report.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []report.Report
	for _, r := range m.reports {
		if f.OwnerID != "" && r.OwnerID != f.OwnerID {
			continue
		}
		if f.Month != nil && r.Month != *f.Month {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetReport(_ context.Context, id report.ReportID) (*report.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, report.ErrNotFound
	}
	return &r, nil
}

func (m *Memory) CreateReport(_ context.Context, r report.Report) (*report.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = report.ReportID(uuid.NewString())
	}
	if r.Status == "" {
		r.Status = report.StatusDraft
	}
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	m.reports[r.ID] = r
	return &r, nil
}

func (m *Memory) UpdateReport(_ context.Context, id report.ReportID, u report.ReportUpdate) (*report.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, report.ErrNotFound
	}
	if u.Status != nil {
		r.Status = *u.Status
	}
	if u.Submitted != nil {
		r.Submitted = *u.Submitted
	}
	r.UpdatedAt = time.Now().UTC()
	m.reports[id] = r
	return &r, nil
}

// =============================================================================
// ENTRIES
// =============================================================================

func (m *Memory) ListEntries(_ context.Context, f report.EntryFilter) ([]report.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stale := m.staleReads > 0
	if stale {
		m.staleReads--
	}

	var out []report.Entry
	for _, e := range m.entries {
		if stale && m.staleSince[e.ID] {
			continue
		}
		if f.ReportID != "" && e.ReportID != f.ReportID {
			continue
		}
		if f.Date != nil && !e.Date.Equal(*f.Date) {
			continue
		}
		if f.CategoryID != "" && e.CategoryID != f.CategoryID {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) CreateEntry(_ context.Context, e report.Entry) (*report.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == "" {
		e.ID = report.EntryID(uuid.NewString())
	}
	if e.SourceType == "" {
		e.SourceType = report.SourceManual
	}
	m.entries[e.ID] = e
	if m.staleReads > 0 {
		m.staleSince[e.ID] = true
	}
	return &e, nil
}

func (m *Memory) UpdateEntry(_ context.Context, id report.EntryID, u report.EntryUpdate) (*report.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, report.ErrNotFound
	}
	if u.Value != nil {
		e.Value = *u.Value
	}
	if u.Comment != nil {
		e.Comment = *u.Comment
	}
	if u.SourceType != nil {
		e.SourceType = *u.SourceType
	}
	if u.SourceID != nil {
		e.SourceID = *u.SourceID
	}
	if u.SourceNote != nil {
		e.SourceNote = *u.SourceNote
	}
	m.entries[id] = e
	return &e, nil
}

func (m *Memory) DeleteEntry(_ context.Context, id report.EntryID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[id]; !ok {
		return report.ErrNotFound
	}
	delete(m.entries, id)
	return nil
}

// =============================================================================
// REFERENCE DATA
// =============================================================================

func (m *Memory) ListCategories(_ context.Context) ([]report.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]report.Category, 0, len(m.categories))
	for _, c := range m.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out, nil
}

func (m *Memory) CreateCategory(_ context.Context, c report.Category) (*report.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = report.CategoryID(uuid.NewString())
	}
	m.categories[c.ID] = c
	return &c, nil
}

func (m *Memory) ListSpecialDays(_ context.Context, f report.SpecialDayFilter) ([]report.SpecialDay, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []report.SpecialDay
	for _, d := range m.specialDays {
		if f.Month != nil && d.Date.Month() != *f.Month {
			continue
		}
		if f.OwnerID != "" && d.Scope == report.ScopeUser && d.UserID != f.OwnerID {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// AddSpecialDay seeds calendar data; the engine itself only reads it.
func (m *Memory) AddSpecialDay(d report.SpecialDay) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.specialDays = append(m.specialDays, d)
}
