// Package memory holds in-process repository implementations. They back the
// server when no DATABASE_URL is configured and every service test. Unique
// fields are enforced under a single mutex, so concurrent writers see the
// same duplicate-key behavior as the PostgreSQL store.
package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/techgrid/site-backend/internal/domain"
	"github.com/techgrid/site-backend/internal/lookup"
	"github.com/techgrid/site-backend/internal/query"
)

// schema describes how a collection reads its records.
type schema[T any] struct {
	// field returns the lookup value of rec for a lookup field name.
	field func(rec *T, name string) (string, bool)
	// unique lists the fields that must not repeat across records.
	unique []string
	// created returns the sort key; newest first, id breaks ties.
	created func(rec *T) (time.Time, string)
	clone   func(rec *T) *T
}

type collection[T any] struct {
	mu     sync.RWMutex
	rows   []*T
	schema schema[T]
}

func newCollection[T any](s schema[T]) *collection[T] {
	return &collection[T]{schema: s}
}

func (c *collection[T]) indexLocked(key lookup.Key) int {
	for i, r := range c.rows {
		if v, ok := c.schema.field(r, key.Field); ok && v == key.Value {
			return i
		}
	}
	return -1
}

// conflictLocked returns the first unique field on which rec collides with a
// row other than skip.
func (c *collection[T]) conflictLocked(rec *T, skip int) string {
	for _, f := range c.schema.unique {
		v, _ := c.schema.field(rec, f)
		if v == "" {
			continue
		}
		for i, r := range c.rows {
			if i == skip {
				continue
			}
			if ov, _ := c.schema.field(r, f); ov == v {
				return f
			}
		}
	}
	return ""
}

func (c *collection[T]) insert(rec *T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f := c.conflictLocked(rec, -1); f != "" {
		return &domain.DuplicateKeyError{Field: f}
	}
	c.rows = append(c.rows, c.schema.clone(rec))
	return nil
}

func (c *collection[T]) findOne(key lookup.Key) (*T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i := c.indexLocked(key)
	if i < 0 {
		return nil, domain.ErrNotFound
	}
	return c.schema.clone(c.rows[i]), nil
}

// update runs mutate on a copy of the matching row and stores it if mutate
// succeeds and no unique field collides.
func (c *collection[T]) update(key lookup.Key, mutate func(rec *T) error) (*T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexLocked(key)
	if i < 0 {
		return nil, domain.ErrNotFound
	}
	next := c.schema.clone(c.rows[i])
	if err := mutate(next); err != nil {
		return nil, err
	}
	if f := c.conflictLocked(next, i); f != "" {
		return nil, &domain.DuplicateKeyError{Field: f}
	}
	c.rows[i] = next
	return c.schema.clone(next), nil
}

func (c *collection[T]) remove(key lookup.Key) (*T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexLocked(key)
	if i < 0 {
		return nil, domain.ErrNotFound
	}
	rec := c.rows[i]
	c.rows = append(c.rows[:i], c.rows[i+1:]...)
	return rec, nil
}

// filter returns copies of every matching row, newest first.
func (c *collection[T]) filter(match func(rec *T) bool) []*T {
	c.mu.RLock()
	out := make([]*T, 0, len(c.rows))
	for _, r := range c.rows {
		if match == nil || match(r) {
			out = append(out, c.schema.clone(r))
		}
	}
	c.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		ti, idi := c.schema.created(out[i])
		tj, idj := c.schema.created(out[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return idi > idj
	})
	return out
}

// page applies q's window to the matching rows.
func (c *collection[T]) page(q query.List, match func(rec *T) bool) ([]T, int) {
	all := c.filter(match)
	q = q.Normalize()
	lo, hi := q.Window(len(all))
	items := make([]T, 0, hi-lo)
	for _, r := range all[lo:hi] {
		items = append(items, *r)
	}
	return items, len(all)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
