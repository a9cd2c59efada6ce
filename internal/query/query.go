// Package query holds the admin list contract: pagination, free-text search
// and exact-match filters shared by every entity listing.
package query

import (
	"math"
	"strconv"
	"strings"
)

// Defaults for admin listings.
const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// List describes a page of an admin listing. Zero values mean "no filter".
type List struct {
	Page   int
	Limit  int
	Search string
	// Status filters on the entity's lifecycle status.
	Status string
	// Experience filters registrations only.
	Experience string
	// Active filters subscriptions only.
	Active *bool
}

// Normalize applies defaults and bounds.
func (l List) Normalize() List {
	if l.Page < 1 {
		l.Page = DefaultPage
	}
	if l.Limit < 1 {
		l.Limit = DefaultLimit
	}
	if l.Limit > MaxLimit {
		l.Limit = MaxLimit
	}
	l.Search = strings.TrimSpace(l.Search)
	return l
}

// Offset is the number of records skipped before this page.
func (l List) Offset() int { return (l.Page - 1) * l.Limit }

// ParseBool parses an "active"-style filter value. Empty or unparseable
// input means no filter.
func ParseBool(s string) *bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	return &b
}

// MatchesSearch reports whether any of fields contains term, case-insensitively.
func MatchesSearch(term string, fields ...string) bool {
	if term == "" {
		return true
	}
	term = strings.ToLower(term)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), term) {
			return true
		}
	}
	return false
}

// Page is one page of results plus the numbers needed to render a pager.
type Page[T any] struct {
	Items []T `json:"items"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// NewPage builds a Page. Pages is ceil(total/limit).
func NewPage[T any](items []T, l List, total int) Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if l.Limit > 0 {
		pages = int(math.Ceil(float64(total) / float64(l.Limit)))
	}
	return Page[T]{Items: items, Page: l.Page, Limit: l.Limit, Total: total, Pages: pages}
}

// Window returns the slice bounds [lo, hi) of this page within n sorted records.
func (l List) Window(n int) (lo, hi int) {
	lo = l.Offset()
	if lo > n {
		lo = n
	}
	hi = lo + l.Limit
	if hi > n {
		hi = n
	}
	return lo, hi
}
