// Package dashboard assembles the admin overview.
package dashboard

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/techgrid/site-backend/internal/domain"
)

// RecentCount is how many of each record the overview lists.
const RecentCount = 5

// Contacts is the contact side of the overview.
type Contacts interface {
	Stats(ctx context.Context) (domain.ContactStats, error)
	Recent(ctx context.Context, n int) ([]domain.Contact, error)
}

// Registrations is the registration side of the overview.
type Registrations interface {
	Stats(ctx context.Context) (domain.RegistrationStats, error)
	Recent(ctx context.Context, n int) ([]domain.Registration, error)
}

// Subscriptions is the newsletter side of the overview.
type Subscriptions interface {
	Stats(ctx context.Context) (domain.NewsletterStats, error)
	Recent(ctx context.Context, n int) ([]domain.Subscription, error)
}

// Stats groups the three aggregates.
type Stats struct {
	Contacts      domain.ContactStats      `json:"contacts"`
	Registrations domain.RegistrationStats `json:"registrations"`
	Newsletter    domain.NewsletterStats   `json:"newsletter"`
}

// Recent groups the newest records of each kind.
type Recent struct {
	Contacts      []domain.Contact      `json:"contacts"`
	Registrations []domain.Registration `json:"registrations"`
	Newsletter    []domain.Subscription `json:"newsletter"`
}

// Overview is the dashboard landing payload.
type Overview struct {
	Stats  Stats  `json:"stats"`
	Recent Recent `json:"recent"`
}

// Service builds the overview.
type Service struct {
	contacts      Contacts
	registrations Registrations
	subscriptions Subscriptions
}

// NewService creates a dashboard service.
func NewService(c Contacts, r Registrations, s Subscriptions) *Service {
	return &Service{contacts: c, registrations: r, subscriptions: s}
}

// Overview loads every aggregate and recent list concurrently. The first
// failure cancels the rest.
func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	var out Overview
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		out.Stats.Contacts, err = s.contacts.Stats(ctx)
		return wrap("contact stats", err)
	})
	g.Go(func() (err error) {
		out.Stats.Registrations, err = s.registrations.Stats(ctx)
		return wrap("registration stats", err)
	})
	g.Go(func() (err error) {
		out.Stats.Newsletter, err = s.subscriptions.Stats(ctx)
		return wrap("newsletter stats", err)
	})
	g.Go(func() (err error) {
		out.Recent.Contacts, err = s.contacts.Recent(ctx, RecentCount)
		return wrap("recent contacts", err)
	})
	g.Go(func() (err error) {
		out.Recent.Registrations, err = s.registrations.Recent(ctx, RecentCount)
		return wrap("recent registrations", err)
	})
	g.Go(func() (err error) {
		out.Recent.Newsletter, err = s.subscriptions.Recent(ctx, RecentCount)
		return wrap("recent subscriptions", err)
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &out, nil
}

func wrap(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", what, err)
}
