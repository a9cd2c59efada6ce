package contact

import (
	"context"
	"time"

	"github.com/techgrid/site-backend/internal/domain"
	"github.com/techgrid/site-backend/internal/lookup"
	"github.com/techgrid/site-backend/internal/query"
)

// Repository defines the data access contract for contacts. Lookups by key
// return domain.ErrNotFound when nothing matches.
type Repository interface {
	Create(ctx context.Context, c *domain.Contact) error
	FindOne(ctx context.Context, key lookup.Key) (*domain.Contact, error)
	// Find returns one page of contacts, newest first, and the total number
	// of matches.
	Find(ctx context.Context, q query.List) ([]domain.Contact, int, error)
	// FindOneAndUpdate applies p atomically and returns the updated record.
	// It returns domain.ErrPreconditionFailed when p's guard does not hold.
	FindOneAndUpdate(ctx context.Context, key lookup.Key, p Patch) (*domain.Contact, error)
	FindOneAndDelete(ctx context.Context, key lookup.Key) (*domain.Contact, error)
	Stats(ctx context.Context) (domain.ContactStats, error)
}

// Patch lists the fields to change. Nil fields are left alone.
type Patch struct {
	Name    *string
	Email   *string
	Phone   *string
	Subject *string
	Message *string
	Status  *domain.ContactStatus

	// EmailSentAt / AdminNotifiedAt also set the matching flag.
	EmailSentAt     *time.Time
	AdminNotifiedAt *time.Time

	// IfStatusIn, when non-empty, guards the update: it applies only while
	// the stored status is one of these.
	IfStatusIn []domain.ContactStatus
}

// Apply copies the patch onto c. Repositories without native partial
// updates use it.
func (p Patch) Apply(c *domain.Contact, now time.Time) {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Email != nil {
		c.Email = *p.Email
	}
	if p.Phone != nil {
		c.Phone = *p.Phone
	}
	if p.Subject != nil {
		c.Subject = *p.Subject
	}
	if p.Message != nil {
		c.Message = *p.Message
	}
	if p.Status != nil {
		c.Status = *p.Status
	}
	if p.EmailSentAt != nil {
		t := *p.EmailSentAt
		c.EmailSent, c.EmailSentAt = true, &t
	}
	if p.AdminNotifiedAt != nil {
		t := *p.AdminNotifiedAt
		c.AdminNotified, c.AdminNotifiedAt = true, &t
	}
	c.UpdatedAt = now
}

// Allows reports whether the guard holds for c.
func (p Patch) Allows(c *domain.Contact) bool {
	if len(p.IfStatusIn) == 0 {
		return true
	}
	for _, s := range p.IfStatusIn {
		if c.Status == s {
			return true
		}
	}
	return false
}
