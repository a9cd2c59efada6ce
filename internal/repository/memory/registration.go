package memory

import (
	"context"
	"time"

	"github.com/techgrid/site-backend/internal/domain"
	"github.com/techgrid/site-backend/internal/lookup"
	"github.com/techgrid/site-backend/internal/query"
	"github.com/techgrid/site-backend/internal/service/registration"
)

// RegistrationRepo implements registration.Repository in memory.
type RegistrationRepo struct {
	rows *collection[domain.Registration]
	now  func() time.Time
}

// NewRegistrationRepo creates an empty registration store.
func NewRegistrationRepo() *RegistrationRepo {
	return &RegistrationRepo{
		now: time.Now,
		rows: newCollection(schema[domain.Registration]{
			field: func(r *domain.Registration, name string) (string, bool) {
				switch name {
				case lookup.FieldID:
					return r.ID, true
				case lookup.FieldRegistrationID:
					return r.RegistrationID, true
				case lookup.FieldRegistrationNumber:
					return r.RegistrationNumber, true
				case lookup.FieldEmail:
					return r.Email, true
				}
				return "", false
			},
			// email is checked before registration_number so a request
			// colliding on both reports the email.
			unique: []string{
				lookup.FieldID, lookup.FieldRegistrationID,
				lookup.FieldEmail, lookup.FieldRegistrationNumber,
			},
			created: func(r *domain.Registration) (time.Time, string) { return r.CreatedAt, r.ID },
			clone: func(r *domain.Registration) *domain.Registration {
				v := *r
				v.Interests = append([]domain.Interest{}, r.Interests...)
				v.ConfirmationEmailSentAt = copyTime(r.ConfirmationEmailSentAt)
				v.AdminNotifiedAt = copyTime(r.AdminNotifiedAt)
				return &v
			},
		}),
	}
}

func (r *RegistrationRepo) Create(_ context.Context, reg *domain.Registration) error {
	return r.rows.insert(reg)
}

func (r *RegistrationRepo) FindOne(_ context.Context, key lookup.Key) (*domain.Registration, error) {
	return r.rows.findOne(key)
}

func registrationMatches(q query.List) func(*domain.Registration) bool {
	return func(r *domain.Registration) bool {
		if q.Status != "" && string(r.Metadata.Status) != q.Status {
			return false
		}
		if q.Experience != "" && string(r.Experience) != q.Experience {
			return false
		}
		return query.MatchesSearch(q.Search, r.FirstName, r.LastName, r.Email, r.Company, r.RegistrationNumber)
	}
}

func (r *RegistrationRepo) Find(_ context.Context, q query.List) ([]domain.Registration, int, error) {
	items, total := r.rows.page(q, registrationMatches(q.Normalize()))
	return items, total, nil
}

func (r *RegistrationRepo) FindOneAndUpdate(_ context.Context, key lookup.Key, p registration.Patch) (*domain.Registration, error) {
	return r.rows.update(key, func(reg *domain.Registration) error {
		p.Apply(reg, r.now().UTC())
		return nil
	})
}

func (r *RegistrationRepo) FindOneAndDelete(_ context.Context, key lookup.Key) (*domain.Registration, error) {
	return r.rows.remove(key)
}

func (r *RegistrationRepo) Stats(_ context.Context) (domain.RegistrationStats, error) {
	st := domain.RegistrationStats{ByExperience: map[string]int{}}
	for _, reg := range r.rows.filter(nil) {
		st.Total++
		switch reg.Metadata.Status {
		case domain.RegistrationRegistered:
			st.Registered++
		case domain.RegistrationConfirmed:
			st.Confirmed++
		case domain.RegistrationCancelled:
			st.Cancelled++
		case domain.RegistrationAttended:
			st.Attended++
		}
		if reg.ConfirmationEmailSent {
			st.ConfirmationsSent++
		}
		if reg.AdminNotified {
			st.AdminNotified++
		}
		if reg.Newsletter {
			st.NewsletterOptIns++
		}
		st.ByExperience[string(reg.Experience)]++
	}
	return st, nil
}

func (r *RegistrationRepo) Recipients(_ context.Context) ([]domain.Registration, error) {
	rows := r.rows.filter(func(reg *domain.Registration) bool {
		return reg.Metadata.Status != domain.RegistrationCancelled
	})
	out := make([]domain.Registration, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		out = append(out, *rows[i])
	}
	return out, nil
}
