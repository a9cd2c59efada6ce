package registration

import (
	"context"
	"time"

	"github.com/techgrid/site-backend/internal/domain"
	"github.com/techgrid/site-backend/internal/lookup"
	"github.com/techgrid/site-backend/internal/query"
)

// Repository defines the data access contract for registrations. Create
// returns a *domain.DuplicateKeyError naming "email" or
// "registration_number" when a unique field is taken.
type Repository interface {
	Create(ctx context.Context, r *domain.Registration) error
	FindOne(ctx context.Context, key lookup.Key) (*domain.Registration, error)
	Find(ctx context.Context, q query.List) ([]domain.Registration, int, error)
	FindOneAndUpdate(ctx context.Context, key lookup.Key, p Patch) (*domain.Registration, error)
	FindOneAndDelete(ctx context.Context, key lookup.Key) (*domain.Registration, error)
	Stats(ctx context.Context) (domain.RegistrationStats, error)
	// Recipients lists every registration that is not cancelled, oldest
	// first.
	Recipients(ctx context.Context) ([]domain.Registration, error)
}

// Patch lists the fields to change. Nil fields are left alone.
type Patch struct {
	FirstName    *string
	LastName     *string
	Email        *string
	Phone        *string
	Company      *string
	JobTitle     *string
	Experience   *domain.Experience
	Interests    []domain.Interest
	Expectations *string
	Newsletter   *bool
	Status       *domain.RegistrationStatus

	ConfirmationEmailSentAt *time.Time
	AdminNotifiedAt         *time.Time
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

// Apply copies the patch onto r.
func (p Patch) Apply(r *domain.Registration, now time.Time) {
	setString(&r.FirstName, p.FirstName)
	setString(&r.LastName, p.LastName)
	setString(&r.Email, p.Email)
	setString(&r.Phone, p.Phone)
	setString(&r.Company, p.Company)
	setString(&r.JobTitle, p.JobTitle)
	setString(&r.Expectations, p.Expectations)
	if p.Experience != nil {
		r.Experience = *p.Experience
	}
	if p.Interests != nil {
		r.Interests = append([]domain.Interest(nil), p.Interests...)
	}
	if p.Newsletter != nil {
		r.Newsletter = *p.Newsletter
	}
	if p.Status != nil {
		r.Metadata.Status = *p.Status
	}
	if p.ConfirmationEmailSentAt != nil {
		t := *p.ConfirmationEmailSentAt
		r.ConfirmationEmailSent, r.ConfirmationEmailSentAt = true, &t
	}
	if p.AdminNotifiedAt != nil {
		t := *p.AdminNotifiedAt
		r.AdminNotified, r.AdminNotifiedAt = true, &t
	}
	r.UpdatedAt = now
}
