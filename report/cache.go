/*
cache.go - Read-through caches for the external reference collections

PURPOSE:
  Categories and special days are read-mostly external data consulted on
  every validation pass and every commit. These caches replace implicit
  background polls with explicit read-through semantics: a bounded TTL as
  the fallback staleness limit plus an Invalidate hook wired to
  "categories changed" / "special days changed" signals.
*/
package report

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultCacheTTL bounds staleness when no invalidation signal arrives.
const DefaultCacheTTL = 60 * time.Second

// =============================================================================
// CATEGORY CACHE
// =============================================================================

type CategoryCache struct {
	store StoreGateway
	ttl   time.Duration
	now   func() time.Time

	mu        sync.RWMutex
	fetchedAt time.Time
	byID      map[CategoryID]Category
}

func NewCategoryCache(store StoreGateway, ttl time.Duration) *CategoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CategoryCache{store: store, ttl: ttl, now: time.Now}
}

// ByID returns the cached id -> category map, refreshing through the
// gateway when stale or invalidated.
func (c *CategoryCache) ByID(ctx context.Context) (map[CategoryID]Category, error) {
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[CategoryID]Category, len(c.byID))
	for id, cat := range c.byID {
		out[id] = cat
	}
	return out, nil
}

// ByLabel resolves an active category by exact label.
func (c *CategoryCache) ByLabel(ctx context.Context, label string) (*Category, error) {
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, cat := range c.byID {
		if cat.Active && cat.Label == label {
			out := cat
			return &out, nil
		}
	}
	return nil, fmt.Errorf("category %q: %w", label, ErrNotFound)
}

// Invalidate drops the cached snapshot. Wire this to a "categories
// changed" signal; the next read fetches fresh data.
func (c *CategoryCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchedAt = time.Time{}
}

func (c *CategoryCache) ensure(ctx context.Context) error {
	c.mu.RLock()
	fresh := !c.fetchedAt.IsZero() && c.now().Sub(c.fetchedAt) < c.ttl
	c.mu.RUnlock()
	if fresh {
		return nil
	}

	categories, err := c.store.ListCategories(ctx)
	if err != nil {
		return fmt.Errorf("list categories: %w", err)
	}
	byID := make(map[CategoryID]Category, len(categories))
	for _, cat := range categories {
		byID[cat.ID] = cat
	}

	c.mu.Lock()
	c.byID = byID
	c.fetchedAt = c.now()
	c.mu.Unlock()
	return nil
}

// =============================================================================
// SPECIAL DAY CACHE
// =============================================================================

type SpecialDayCache struct {
	store StoreGateway
	ttl   time.Duration
	now   func() time.Time

	mu     sync.RWMutex
	months map[Month]specialDaySnapshot
}

type specialDaySnapshot struct {
	fetchedAt time.Time
	days      []SpecialDay
}

func NewSpecialDayCache(store StoreGateway, ttl time.Duration) *SpecialDayCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &SpecialDayCache{store: store, ttl: ttl, now: time.Now, months: make(map[Month]specialDaySnapshot)}
}

// ForMonth returns the special days relevant to (month, ownerID): global
// days plus that user's days. Cached per month.
func (c *SpecialDayCache) ForMonth(ctx context.Context, month Month, ownerID string) ([]SpecialDay, error) {
	c.mu.RLock()
	snap, ok := c.months[month]
	c.mu.RUnlock()

	if !ok || c.now().Sub(snap.fetchedAt) >= c.ttl {
		m := month
		days, err := c.store.ListSpecialDays(ctx, SpecialDayFilter{Month: &m})
		if err != nil {
			return nil, fmt.Errorf("list special days: %w", err)
		}
		snap = specialDaySnapshot{fetchedAt: c.now(), days: days}
		c.mu.Lock()
		c.months[month] = snap
		c.mu.Unlock()
	}

	var out []SpecialDay
	for _, d := range snap.days {
		if d.Scope == ScopeGlobal || d.UserID == ownerID {
			out = append(out, d)
		}
	}
	return out, nil
}

// Invalidate drops every cached month.
func (c *SpecialDayCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.months = make(map[Month]specialDaySnapshot)
}
