package registration

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"time"

	"github.com/techgrid/site-backend/internal/domain"
	"github.com/techgrid/site-backend/internal/lookup"
	"github.com/techgrid/site-backend/internal/metrics"
	"github.com/techgrid/site-backend/internal/notify"
	"github.com/techgrid/site-backend/internal/pkg/logger"
	"github.com/techgrid/site-backend/internal/pkg/validate"
	"github.com/techgrid/site-backend/internal/query"
	"github.com/techgrid/site-backend/internal/service/newsletter"
)

// MaxNumberAttempts bounds registration-number regeneration on collision.
const MaxNumberAttempts = 5

// Notifier queues transactional email.
type Notifier interface {
	Dispatch(tasks ...notify.Task)
}

// Subscriber is the newsletter side of the opt-in.
type Subscriber interface {
	Subscribe(ctx context.Context, in domain.SubscribeInput) (*domain.Subscription, error)
	ActiveEmails(ctx context.Context, emails []string) (map[string]bool, error)
}

// Event describes the conference registrations are for.
type Event struct {
	ID           string
	Name         string
	Date         string
	Location     string
	NumberPrefix string
}

// Service implements registration business logic.
type Service struct {
	repo       Repository
	subscriber Subscriber
	notifier   Notifier
	event      Event
	baseURL    string
	now        func() time.Time
	number     func() int
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithNumberSource overrides the random part of registration numbers.
func WithNumberSource(next func() int) Option {
	return func(s *Service) { s.number = next }
}

// WithBaseURL sets the public site URL used to build verification links.
func WithBaseURL(u string) Option {
	return func(s *Service) { s.baseURL = strings.TrimRight(u, "/") }
}

// NewService creates a registration service.
func NewService(repo Repository, subscriber Subscriber, notifier Notifier, event Event, opts ...Option) *Service {
	event.NumberPrefix = strings.ToUpper(strings.TrimSpace(event.NumberPrefix))
	if event.NumberPrefix == "" {
		event.NumberPrefix = "TGS"
	}
	s := &Service{
		repo:       repo,
		subscriber: subscriber,
		notifier:   notifier,
		event:      event,
		now:        time.Now,
		number:     func() int { return rand.Intn(10000) },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Event returns the configured event.
func (s *Service) Event() Event { return s.event }

// Update is an admin edit. Nil fields are left unchanged.
type Update struct {
	FirstName    *string   `json:"firstName" validate:"omitempty,min=2,max=50,personname"`
	LastName     *string   `json:"lastName" validate:"omitempty,min=2,max=50,personname"`
	Email        *string   `json:"email" validate:"omitempty,email,max=320"`
	Phone        *string   `json:"phone" validate:"omitempty,min=7,max=25,phone"`
	Company      *string   `json:"company" validate:"omitempty,max=100"`
	JobTitle     *string   `json:"jobTitle" validate:"omitempty,max=100"`
	Experience   *string   `json:"experience" validate:"omitempty,oneof=beginner intermediate advanced expert"`
	Interests    *[]string `json:"interests" validate:"omitempty,dive,oneof=ai-trading risk-management fraud-detection robo-advisors regulatory-compliance"`
	Expectations *string   `json:"expectations" validate:"omitempty,max=1000"`
	Newsletter   *bool     `json:"newsletter"`
	Status       *string   `json:"status" validate:"omitempty,oneof=registered confirmed cancelled attended"`
}

func (s *Service) clock() time.Time { return s.now().UTC() }

func sanitize(in *domain.RegistrationInput) {
	validate.SanitizeAll(&in.FirstName, &in.LastName, &in.Email, &in.Phone,
		&in.Company, &in.JobTitle, &in.Expectations)
}

// Submit stores a public registration, opts the attendee into the newsletter
// when asked, and queues the confirmation and admin emails.
func (s *Service) Submit(ctx context.Context, in domain.RegistrationInput, meta domain.RequestMetadata) (*domain.Registration, error) {
	r, err := s.create(ctx, in, meta.WithDefaults(domain.SourceRegistration, s.clock()))
	if err != nil {
		metrics.Submission("registration", metrics.OutcomeFailed)
		return nil, err
	}
	metrics.Submission("registration", metrics.OutcomeOK)
	logger.Info("registration: submitted", "registration_id", r.RegistrationID,
		"registration_number", r.RegistrationNumber, "experience", r.Experience)

	if r.Newsletter {
		s.optIn(ctx, r.Email, map[string]string{
			domain.MetaUserAgent:  meta.UserAgent,
			domain.MetaIPAddress:  meta.IPAddress,
			domain.MetaSource:     domain.SourceRegistrationOpt,
			domain.MetaSourcePage: "registration",
		})
	}

	v := s.vars(r)
	s.notifier.Dispatch(
		notify.Task{
			Template: "registration_confirmation",
			To:       r.Email,
			Vars:     v,
			OnSent: func(ctx context.Context, at time.Time) error {
				_, err := s.repo.FindOneAndUpdate(ctx, lookup.ByID(r.ID), Patch{ConfirmationEmailSentAt: &at})
				return err
			},
		},
		notify.Task{
			Template: "registration_admin_notification",
			ToAdmin:  true,
			Vars:     v,
			OnSent: func(ctx context.Context, at time.Time) error {
				_, err := s.repo.FindOneAndUpdate(ctx, lookup.ByID(r.ID), Patch{AdminNotifiedAt: &at})
				return err
			},
		},
	)
	return r, nil
}

// optIn subscribes email to the newsletter. Failures never fail the
// registration.
func (s *Service) optIn(ctx context.Context, email string, meta map[string]string) {
	if s.subscriber == nil {
		return
	}
	_, err := s.subscriber.Subscribe(ctx, domain.SubscribeInput{Email: email, Metadata: meta})
	switch {
	case err == nil:
		logger.Info("registration: newsletter opt-in", "email", email)
	case errors.Is(err, newsletter.ErrAlreadySubscribed):
		logger.Debug("registration: already subscribed to newsletter", "email", email)
	default:
		logger.Warn("registration: newsletter opt-in failed", "email", email, "error", err)
	}
}

// Create stores a registration entered by an admin. No email is sent.
func (s *Service) Create(ctx context.Context, actor domain.Actor, in domain.RegistrationInput) (*domain.Registration, error) {
	r, err := s.create(ctx, in, domain.RequestMetadata{Source: domain.SourceAdminDashboard})
	if err != nil {
		return nil, err
	}
	logger.Info("registration: created by admin", "registration_id", r.RegistrationID, "actor", actor.Name())
	return r, nil
}

func (s *Service) create(ctx context.Context, in domain.RegistrationInput, meta domain.RequestMetadata) (*domain.Registration, error) {
	sanitize(&in)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	now := s.clock()
	r := domain.NewRegistration(in, meta.WithDefaults(domain.SourceRegistration, now), s.event.ID, now)

	// Only a collision on the registration number is retried; the random
	// part is drawn again each time.
	for attempt := 1; attempt <= MaxNumberAttempts; attempt++ {
		r.RegistrationNumber = domain.FormatRegistrationNumber(s.event.NumberPrefix, now.Year(), s.number())
		err := s.repo.Create(ctx, r)
		switch {
		case err == nil:
			return r, nil
		case domain.IsDuplicateOn(err, lookup.FieldEmail):
			return nil, ErrAlreadyRegistered
		case domain.IsDuplicateOn(err, lookup.FieldRegistrationNumber):
			logger.Warn("registration: number collision, retrying", "number", r.RegistrationNumber, "attempt", attempt)
		default:
			return nil, fmt.Errorf("create registration: %w", err)
		}
	}
	return nil, ErrNumbersExhausted
}

// Verify looks a registration up by registrationId or registration number
// for the public verification page.
func (s *Service) Verify(ctx context.Context, id string) (*domain.Registration, error) {
	r, _, err := lookup.Resolve(ctx, id, lookup.Registrations, s.repo.FindOne)
	return r, err
}

// Get resolves id and attaches the derived newsletter flag.
func (s *Service) Get(ctx context.Context, id string) (*domain.RegistrationView, error) {
	r, _, err := lookup.Resolve(ctx, id, lookup.Registrations, s.repo.FindOne)
	if err != nil {
		return nil, err
	}
	views, err := s.views(ctx, []domain.Registration{*r})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// List returns one page of registrations with the derived newsletter flag.
func (s *Service) List(ctx context.Context, q query.List) (query.Page[domain.RegistrationView], error) {
	q = q.Normalize()
	items, total, err := s.repo.Find(ctx, q)
	if err != nil {
		return query.Page[domain.RegistrationView]{}, fmt.Errorf("list registrations: %w", err)
	}
	views, err := s.views(ctx, items)
	if err != nil {
		return query.Page[domain.RegistrationView]{}, err
	}
	return query.NewPage(views, q, total), nil
}

// views computes newsletterSubscribed for each registration at read time.
func (s *Service) views(ctx context.Context, rs []domain.Registration) ([]domain.RegistrationView, error) {
	active := map[string]bool{}
	if s.subscriber != nil && len(rs) > 0 {
		emails := make([]string, 0, len(rs))
		for _, r := range rs {
			emails = append(emails, r.Email)
		}
		var err error
		if active, err = s.subscriber.ActiveEmails(ctx, emails); err != nil {
			return nil, fmt.Errorf("newsletter status: %w", err)
		}
	}
	out := make([]domain.RegistrationView, 0, len(rs))
	for i := range rs {
		r := rs[i]
		out = append(out, domain.RegistrationView{Registration: &r, NewsletterSubscribed: active[r.Email]})
	}
	return out, nil
}

// Recent returns the n newest registrations.
func (s *Service) Recent(ctx context.Context, n int) ([]domain.Registration, error) {
	items, _, err := s.repo.Find(ctx, query.List{Page: 1, Limit: n})
	return items, err
}

// Update applies an admin edit.
func (s *Service) Update(ctx context.Context, actor domain.Actor, id string, u Update) (*domain.Registration, error) {
	validate.SanitizeAll(u.FirstName, u.LastName, u.Email, u.Phone, u.Company, u.JobTitle, u.Expectations)
	if err := validate.Struct(u); err != nil {
		return nil, err
	}
	_, key, err := lookup.Resolve(ctx, id, lookup.Registrations, s.repo.FindOne)
	if err != nil {
		return nil, err
	}

	p := Patch{
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Phone:        u.Phone,
		Company:      u.Company,
		JobTitle:     u.JobTitle,
		Expectations: u.Expectations,
		Newsletter:   u.Newsletter,
	}
	if u.Email != nil {
		e := domain.NormalizeEmail(*u.Email)
		p.Email = &e
	}
	if u.Experience != nil {
		e := domain.Experience(*u.Experience)
		p.Experience = &e
	}
	if u.Interests != nil {
		p.Interests = make([]domain.Interest, 0, len(*u.Interests))
		for _, i := range *u.Interests {
			p.Interests = append(p.Interests, domain.Interest(i))
		}
	}
	if u.Status != nil {
		st := domain.RegistrationStatus(*u.Status)
		p.Status = &st
	}

	r, err := s.repo.FindOneAndUpdate(ctx, key, p)
	if domain.IsDuplicateOn(err, lookup.FieldEmail) {
		return nil, ErrAlreadyRegistered
	}
	if err != nil {
		return nil, err
	}
	logger.Info("registration: updated", "registration_id", r.RegistrationID, "actor", actor.Name())
	return r, nil
}

// UpdateStatus moves a registration to status.
func (s *Service) UpdateStatus(ctx context.Context, actor domain.Actor, id string, status domain.RegistrationStatus) (*domain.Registration, error) {
	if !status.Valid() {
		return nil, domain.NewValidationError("status", "Status must be one of: registered, confirmed, cancelled, attended")
	}
	st := string(status)
	return s.Update(ctx, actor, id, Update{Status: &st})
}

// AddToNewsletter subscribes the registrant's email and marks the
// registration as opted in. It succeeds when the address is already
// subscribed.
func (s *Service) AddToNewsletter(ctx context.Context, actor domain.Actor, id string) (*domain.RegistrationView, error) {
	if s.subscriber == nil {
		return nil, fmt.Errorf("add to newsletter: %w", domain.ErrUnavailable)
	}
	_, key, err := lookup.Resolve(ctx, id, lookup.Registrations, s.repo.FindOne)
	if err != nil {
		return nil, err
	}
	opted := true
	r, err := s.repo.FindOneAndUpdate(ctx, key, Patch{Newsletter: &opted})
	if err != nil {
		return nil, err
	}
	_, err = s.subscriber.Subscribe(ctx, domain.SubscribeInput{
		Email: r.Email,
		Metadata: map[string]string{
			domain.MetaSource:     domain.SourceAdminDashboard,
			domain.MetaSourcePage: "registration",
		},
	})
	if err != nil && !errors.Is(err, newsletter.ErrAlreadySubscribed) {
		return nil, fmt.Errorf("add to newsletter: %w", err)
	}
	logger.Info("registration: added to newsletter", "registration_id", r.RegistrationID, "actor", actor.Name())
	return &domain.RegistrationView{Registration: r, NewsletterSubscribed: true}, nil
}

// Delete removes a registration and returns it.
func (s *Service) Delete(ctx context.Context, actor domain.Actor, id string) (*domain.Registration, error) {
	_, key, err := lookup.Resolve(ctx, id, lookup.Registrations, s.repo.FindOne)
	if err != nil {
		return nil, err
	}
	r, err := s.repo.FindOneAndDelete(ctx, key)
	if err != nil {
		return nil, err
	}
	logger.Info("registration: deleted", "registration_id", r.RegistrationID, "actor", actor.Name())
	return r, nil
}

// Stats returns registration aggregates.
func (s *Service) Stats(ctx context.Context) (domain.RegistrationStats, error) {
	return s.repo.Stats(ctx)
}

// Recipients lists the registrations a campaign may mail.
func (s *Service) Recipients(ctx context.Context) ([]domain.Registration, error) {
	return s.repo.Recipients(ctx)
}

// VerifyURL is the public verification link for a registration.
func (s *Service) VerifyURL(registrationID string) string {
	if s.baseURL == "" {
		return ""
	}
	return s.baseURL + "/api/register/verify/" + url.PathEscape(registrationID)
}

func (s *Service) vars(r *domain.Registration) map[string]interface{} {
	interests := make([]string, 0, len(r.Interests))
	for _, i := range r.Interests {
		interests = append(interests, string(i))
	}
	return map[string]interface{}{
		"firstName":          r.FirstName,
		"lastName":           r.LastName,
		"fullName":           r.FullName(),
		"email":              r.Email,
		"phone":              r.Phone,
		"company":            r.Company,
		"jobTitle":           r.JobTitle,
		"experience":         string(r.Experience),
		"interests":          interests,
		"expectations":       r.Expectations,
		"newsletter":         r.Newsletter,
		"registrationId":     r.RegistrationID,
		"registrationNumber": r.RegistrationNumber,
		"ipAddress":          r.Metadata.IPAddress,
		"verifyUrl":          s.VerifyURL(r.RegistrationID),
		"event": map[string]interface{}{
			"id":       s.event.ID,
			"name":     s.event.Name,
			"date":     s.event.Date,
			"location": s.event.Location,
		},
	}
}
