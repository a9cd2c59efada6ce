package memory

import (
	"context"
	"time"

	"github.com/techgrid/site-backend/internal/domain"
	"github.com/techgrid/site-backend/internal/lookup"
	"github.com/techgrid/site-backend/internal/query"
	"github.com/techgrid/site-backend/internal/service/contact"
)

// ContactRepo implements contact.Repository in memory.
type ContactRepo struct {
	rows *collection[domain.Contact]
	now  func() time.Time
}

// NewContactRepo creates an empty contact store.
func NewContactRepo() *ContactRepo {
	return &ContactRepo{
		now: time.Now,
		rows: newCollection(schema[domain.Contact]{
			field: func(c *domain.Contact, name string) (string, bool) {
				switch name {
				case lookup.FieldID:
					return c.ID, true
				case lookup.FieldContactID:
					return c.ContactID, true
				case lookup.FieldEmail:
					return c.Email, true
				}
				return "", false
			},
			unique:  []string{lookup.FieldID, lookup.FieldContactID},
			created: func(c *domain.Contact) (time.Time, string) { return c.CreatedAt, c.ID },
			clone: func(c *domain.Contact) *domain.Contact {
				v := *c
				v.EmailSentAt = copyTime(c.EmailSentAt)
				v.AdminNotifiedAt = copyTime(c.AdminNotifiedAt)
				return &v
			},
		}),
	}
}

func (r *ContactRepo) Create(_ context.Context, c *domain.Contact) error {
	return r.rows.insert(c)
}

func (r *ContactRepo) FindOne(_ context.Context, key lookup.Key) (*domain.Contact, error) {
	return r.rows.findOne(key)
}

func contactMatches(q query.List) func(*domain.Contact) bool {
	return func(c *domain.Contact) bool {
		if q.Status != "" && string(c.Status) != q.Status {
			return false
		}
		return query.MatchesSearch(q.Search, c.Name, c.Email, c.Subject)
	}
}

func (r *ContactRepo) Find(_ context.Context, q query.List) ([]domain.Contact, int, error) {
	items, total := r.rows.page(q, contactMatches(q.Normalize()))
	return items, total, nil
}

func (r *ContactRepo) FindOneAndUpdate(_ context.Context, key lookup.Key, p contact.Patch) (*domain.Contact, error) {
	return r.rows.update(key, func(c *domain.Contact) error {
		if !p.Allows(c) {
			return domain.ErrPreconditionFailed
		}
		p.Apply(c, r.now().UTC())
		return nil
	})
}

func (r *ContactRepo) FindOneAndDelete(_ context.Context, key lookup.Key) (*domain.Contact, error) {
	return r.rows.remove(key)
}

func (r *ContactRepo) Stats(_ context.Context) (domain.ContactStats, error) {
	var st domain.ContactStats
	for _, c := range r.rows.filter(nil) {
		st.Total++
		switch c.Status {
		case domain.ContactPending:
			st.Pending++
		case domain.ContactProcessed:
			st.Processed++
		case domain.ContactResponded:
			st.Responded++
		}
		if c.EmailSent {
			st.EmailsSent++
		}
		if c.AdminNotified {
			st.AdminNotified++
		}
	}
	return st, nil
}
