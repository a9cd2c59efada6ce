package api

import (
	"net/http"
	"strconv"

	"github.com/techgrid/site-backend/internal/pkg/httputil"
	"github.com/techgrid/site-backend/internal/query"
)

// parseList extracts page, limit, search and the entity filters from query
// params. Bounds and defaults are applied by query.List.Normalize.
func parseList(r *http.Request) query.List {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return query.List{
		Page:       page,
		Limit:      limit,
		Search:     q.Get("search"),
		Status:     q.Get("status"),
		Experience: q.Get("experience"),
		Active:     query.ParseBool(q.Get("active")),
	}.Normalize()
}

// respondPage writes one page of a listing with its pagination metadata.
func respondPage[T any](w http.ResponseWriter, p query.Page[T]) {
	httputil.Paged(w, p.Items, httputil.Pagination{
		Page:  p.Page,
		Limit: p.Limit,
		Total: p.Total,
		Pages: p.Pages,
	})
}
