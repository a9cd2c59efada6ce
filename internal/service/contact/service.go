package contact

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/techgrid/site-backend/internal/domain"
	"github.com/techgrid/site-backend/internal/lookup"
	"github.com/techgrid/site-backend/internal/metrics"
	"github.com/techgrid/site-backend/internal/notify"
	"github.com/techgrid/site-backend/internal/pkg/logger"
	"github.com/techgrid/site-backend/internal/pkg/validate"
	"github.com/techgrid/site-backend/internal/query"
)

// Notifier queues transactional email.
type Notifier interface {
	Dispatch(tasks ...notify.Task)
}

// Service implements contact business logic. It is safe for concurrent use.
type Service struct {
	repo     Repository
	notifier Notifier
	now      func() time.Time
}

// NewService creates a contact service.
func NewService(repo Repository, notifier Notifier) *Service {
	return &Service{repo: repo, notifier: notifier, now: time.Now}
}

// Update is an admin edit. Nil fields are left unchanged.
type Update struct {
	Name    *string               `json:"name" validate:"omitempty,min=2,max=100,personname"`
	Email   *string               `json:"email" validate:"omitempty,email,max=320"`
	Phone   *string               `json:"phone" validate:"omitempty,min=7,max=25,phone"`
	Subject *string               `json:"subject" validate:"omitempty,min=5,max=200"`
	Message *string               `json:"message" validate:"omitempty,min=10,max=2000"`
	Status  *domain.ContactStatus `json:"status" validate:"omitempty,oneof=pending processed responded"`
}

// ReplyInput is an admin reply to a contact.
type ReplyInput struct {
	Subject string `json:"subject" validate:"max=200"`
	Message string `json:"message" validate:"required,min=2,max=5000"`
}

func sanitize(in *domain.ContactInput) {
	validate.SanitizeAll(&in.Name, &in.Email, &in.Phone, &in.Subject, &in.Message)
}

// Submit stores a public contact-form submission and queues the auto-reply
// and the admin notification.
func (s *Service) Submit(ctx context.Context, in domain.ContactInput, meta domain.RequestMetadata) (*domain.Contact, error) {
	c, err := s.create(ctx, in, meta.WithDefaults(domain.SourceContactForm, s.now().UTC()))
	if err != nil {
		metrics.Submission("contact", metrics.OutcomeFailed)
		return nil, err
	}
	metrics.Submission("contact", metrics.OutcomeOK)
	logger.Info("contact: submitted", "contact_id", c.ContactID, "email", c.Email)

	s.notifier.Dispatch(
		notify.Task{
			Template: "contact_auto_reply",
			To:       c.Email,
			Vars:     vars(c),
			OnSent: func(ctx context.Context, at time.Time) error {
				_, err := s.repo.FindOneAndUpdate(ctx, lookup.ByID(c.ID), Patch{EmailSentAt: &at})
				return err
			},
		},
		notify.Task{
			Template: "contact_admin_notification",
			ToAdmin:  true,
			Vars:     vars(c),
			OnSent: func(ctx context.Context, at time.Time) error {
				_, err := s.repo.FindOneAndUpdate(ctx, lookup.ByID(c.ID), Patch{AdminNotifiedAt: &at})
				return err
			},
		},
	)
	return c, nil
}

// Create stores a contact entered by an admin. No email is sent.
func (s *Service) Create(ctx context.Context, actor domain.Actor, in domain.ContactInput) (*domain.Contact, error) {
	c, err := s.create(ctx, in, domain.RequestMetadata{Source: domain.SourceAdminDashboard})
	if err != nil {
		return nil, err
	}
	logger.Info("contact: created by admin", "contact_id", c.ContactID, "actor", actor.Name())
	return c, nil
}

func (s *Service) create(ctx context.Context, in domain.ContactInput, meta domain.RequestMetadata) (*domain.Contact, error) {
	sanitize(&in)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	c := domain.NewContact(in, meta, s.now().UTC())
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create contact: %w", err)
	}
	return c, nil
}

// Get resolves id (contactId or internal id) to a contact.
func (s *Service) Get(ctx context.Context, id string) (*domain.Contact, error) {
	c, _, err := lookup.Resolve(ctx, id, lookup.Contacts, s.repo.FindOne)
	return c, err
}

// List returns one page of contacts.
func (s *Service) List(ctx context.Context, q query.List) (query.Page[domain.Contact], error) {
	q = q.Normalize()
	items, total, err := s.repo.Find(ctx, q)
	if err != nil {
		return query.Page[domain.Contact]{}, fmt.Errorf("list contacts: %w", err)
	}
	return query.NewPage(items, q, total), nil
}

// Recent returns the n newest contacts.
func (s *Service) Recent(ctx context.Context, n int) ([]domain.Contact, error) {
	items, _, err := s.repo.Find(ctx, query.List{Page: 1, Limit: n})
	return items, err
}

// Update applies an admin edit. A status change may only move forward.
func (s *Service) Update(ctx context.Context, actor domain.Actor, id string, u Update) (*domain.Contact, error) {
	validate.SanitizeAll(u.Name, u.Email, u.Phone, u.Subject, u.Message)
	if err := validate.Struct(u); err != nil {
		return nil, err
	}
	if u.Email != nil {
		e := domain.NormalizeEmail(*u.Email)
		u.Email = &e
	}

	_, key, err := lookup.Resolve(ctx, id, lookup.Contacts, s.repo.FindOne)
	if err != nil {
		return nil, err
	}
	p := Patch{Name: u.Name, Email: u.Email, Phone: u.Phone, Subject: u.Subject, Message: u.Message, Status: u.Status}
	if u.Status != nil {
		p.IfStatusIn = domain.ContactStatusesUpTo(*u.Status)
	}
	c, err := s.repo.FindOneAndUpdate(ctx, key, p)
	if errors.Is(err, domain.ErrPreconditionFailed) {
		return nil, ErrInvalidTransition
	}
	if err != nil {
		return nil, err
	}
	logger.Info("contact: updated", "contact_id", c.ContactID, "status", c.Status, "actor", actor.Name())
	return c, nil
}

// UpdateStatus moves a contact to status.
func (s *Service) UpdateStatus(ctx context.Context, actor domain.Actor, id string, status domain.ContactStatus) (*domain.Contact, error) {
	return s.Update(ctx, actor, id, Update{Status: &status})
}

// Reply marks the contact responded and queues the reply email.
func (s *Service) Reply(ctx context.Context, actor domain.Actor, id string, in ReplyInput) (*domain.Contact, error) {
	validate.SanitizeAll(&in.Subject, &in.Message)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	_, key, err := lookup.Resolve(ctx, id, lookup.Contacts, s.repo.FindOne)
	if err != nil {
		return nil, err
	}
	responded := domain.ContactResponded
	c, err := s.repo.FindOneAndUpdate(ctx, key, Patch{Status: &responded})
	if err != nil {
		return nil, err
	}

	subject := in.Subject
	if subject == "" {
		subject = c.Subject
	}
	v := vars(c)
	v["subject"] = subject
	v["reply"] = in.Message
	s.notifier.Dispatch(notify.Task{Template: "contact_reply", To: c.Email, Vars: v})

	logger.Info("contact: replied", "contact_id", c.ContactID, "actor", actor.Name())
	return c, nil
}

// Delete removes a contact and returns it.
func (s *Service) Delete(ctx context.Context, actor domain.Actor, id string) (*domain.Contact, error) {
	_, key, err := lookup.Resolve(ctx, id, lookup.Contacts, s.repo.FindOne)
	if err != nil {
		return nil, err
	}
	c, err := s.repo.FindOneAndDelete(ctx, key)
	if err != nil {
		return nil, err
	}
	logger.Info("contact: deleted", "contact_id", c.ContactID, "actor", actor.Name())
	return c, nil
}

// Stats returns contact aggregates.
func (s *Service) Stats(ctx context.Context) (domain.ContactStats, error) {
	return s.repo.Stats(ctx)
}

func vars(c *domain.Contact) map[string]interface{} {
	return map[string]interface{}{
		"name":        c.Name,
		"email":       c.Email,
		"phone":       c.Phone,
		"subject":     c.Subject,
		"message":     c.Message,
		"contactId":   c.ContactID,
		"submittedAt": c.CreatedAt.Format(time.RFC1123),
	}
}
