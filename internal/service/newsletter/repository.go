package newsletter

import (
	"context"
	"time"

	"github.com/techgrid/site-backend/internal/domain"
	"github.com/techgrid/site-backend/internal/lookup"
	"github.com/techgrid/site-backend/internal/query"
)

// Repository defines the data access contract for subscriptions. Create
// returns a *domain.DuplicateKeyError on field "email" when the address is
// taken.
type Repository interface {
	Create(ctx context.Context, s *domain.Subscription) error
	FindOne(ctx context.Context, key lookup.Key) (*domain.Subscription, error)
	Find(ctx context.Context, q query.List) ([]domain.Subscription, int, error)
	// FindOneAndUpdate applies p atomically. It returns
	// domain.ErrPreconditionFailed when p.UnlessStatus matches.
	FindOneAndUpdate(ctx context.Context, key lookup.Key, p Patch) (*domain.Subscription, error)
	FindOneAndDelete(ctx context.Context, key lookup.Key) (*domain.Subscription, error)
	Stats(ctx context.Context) (domain.NewsletterStats, error)
	// ActiveEmails reports which of emails have an active subscription.
	ActiveEmails(ctx context.Context, emails []string) (map[string]bool, error)
	// Active lists every active subscription, oldest first.
	Active(ctx context.Context) ([]domain.Subscription, error)
}

// Unsubscribe records when and why a subscriber left.
type Unsubscribe struct {
	At     time.Time
	Reason string
}

// Patch lists the fields to change. Nil fields are left alone.
type Patch struct {
	Email *string
	// Status also sets isActive.
	Status    *domain.SubscriptionStatus
	Timestamp *time.Time
	// Meta overwrites the request fields that are non-empty in it.
	Meta        *domain.SubscriptionMetadata
	Preferences *domain.Preferences
	Tags        []string

	Unsubscribe      *Unsubscribe
	ClearUnsubscribe bool

	WelcomeEmailSentAt *time.Time
	AdminNotifiedAt    *time.Time

	// UnlessStatus, when set, guards the update: it applies only while the
	// stored status differs.
	UnlessStatus *domain.SubscriptionStatus
}

// Allows reports whether the guard holds for s.
func (p Patch) Allows(s *domain.Subscription) bool {
	return p.UnlessStatus == nil || s.Metadata.Status != *p.UnlessStatus
}

// Apply copies the patch onto s.
func (p Patch) Apply(s *domain.Subscription, now time.Time) {
	if p.Email != nil {
		s.Email = *p.Email
	}
	if p.Status != nil {
		s.SetStatus(*p.Status)
	}
	if p.Timestamp != nil {
		s.Metadata.Timestamp = *p.Timestamp
	}
	if m := p.Meta; m != nil {
		if m.UserAgent != "" {
			s.Metadata.UserAgent = m.UserAgent
		}
		if m.IPAddress != "" {
			s.Metadata.IPAddress = m.IPAddress
		}
		if m.Source != "" {
			s.Metadata.Source = m.Source
		}
		if m.SourcePage != "" {
			s.Metadata.SourcePage = m.SourcePage
		}
	}
	if p.Preferences != nil {
		s.Preferences = *p.Preferences
	}
	if p.Tags != nil {
		s.Tags = append([]string(nil), p.Tags...)
	}
	if p.ClearUnsubscribe {
		s.UnsubscribedAt, s.UnsubscribeReason = nil, ""
	}
	if u := p.Unsubscribe; u != nil {
		at := u.At
		s.UnsubscribedAt, s.UnsubscribeReason = &at, u.Reason
	}
	if p.WelcomeEmailSentAt != nil {
		t := *p.WelcomeEmailSentAt
		s.WelcomeEmailSent, s.WelcomeEmailSentAt = true, &t
	}
	if p.AdminNotifiedAt != nil {
		t := *p.AdminNotifiedAt
		s.AdminNotified, s.AdminNotifiedAt = true, &t
	}
	s.UpdatedAt = now
}
