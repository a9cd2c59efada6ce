package memory

import (
	"context"
	"time"

	"github.com/techgrid/site-backend/internal/domain"
	"github.com/techgrid/site-backend/internal/lookup"
	"github.com/techgrid/site-backend/internal/query"
)

// TemplateRepo implements templates.Repository in memory.
type TemplateRepo struct {
	rows *collection[domain.EmailTemplate]
}

// NewTemplateRepo creates an empty template store.
func NewTemplateRepo() *TemplateRepo {
	return &TemplateRepo{
		rows: newCollection(schema[domain.EmailTemplate]{
			field: func(t *domain.EmailTemplate, name string) (string, bool) {
				if name == lookup.FieldID {
					return t.ID, true
				}
				return "", false
			},
			unique:  []string{lookup.FieldID},
			created: func(t *domain.EmailTemplate) (time.Time, string) { return t.CreatedAt, t.ID },
			clone: func(t *domain.EmailTemplate) *domain.EmailTemplate {
				v := *t
				v.LastUsed = copyTime(t.LastUsed)
				return &v
			},
		}),
	}
}

func (r *TemplateRepo) Create(_ context.Context, t *domain.EmailTemplate) error {
	return r.rows.insert(t)
}

func (r *TemplateRepo) FindOne(_ context.Context, key lookup.Key) (*domain.EmailTemplate, error) {
	return r.rows.findOne(key)
}

func (r *TemplateRepo) Find(_ context.Context, q query.List) ([]domain.EmailTemplate, int, error) {
	q = q.Normalize()
	items, total := r.rows.page(q, func(t *domain.EmailTemplate) bool {
		return query.MatchesSearch(q.Search, t.Name, t.Subject)
	})
	return items, total, nil
}

func (r *TemplateRepo) FindOneAndDelete(_ context.Context, key lookup.Key) (*domain.EmailTemplate, error) {
	return r.rows.remove(key)
}

func (r *TemplateRepo) MarkUsed(_ context.Context, key lookup.Key, at time.Time) (*domain.EmailTemplate, error) {
	return r.rows.update(key, func(t *domain.EmailTemplate) error {
		t.UsageCount++
		used := at
		t.LastUsed = &used
		t.UpdatedAt = at
		return nil
	})
}
