package newsletter

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

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

// Service implements the subscription lifecycle.
type Service struct {
	repo     Repository
	notifier Notifier
	baseURL  string
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithBaseURL sets the public site URL used to build unsubscribe links.
func WithBaseURL(u string) Option {
	return func(s *Service) { s.baseURL = strings.TrimRight(u, "/") }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a newsletter service.
func NewService(repo Repository, notifier Notifier, opts ...Option) *Service {
	s := &Service{repo: repo, notifier: notifier, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Update is an admin edit. IsActive is applied as a status transition.
type Update struct {
	Email       *string             `json:"email" validate:"omitempty,email,max=320"`
	IsActive    *bool               `json:"isActive"`
	Preferences *domain.Preferences `json:"preferences"`
	Tags        []string            `json:"tags"`
}

// UnsubscribeReasonMax bounds a stored unsubscribe reason.
const UnsubscribeReasonMax = 500

func (s *Service) clock() time.Time { return s.now().UTC() }

func prepare(in *domain.SubscribeInput) error {
	validate.SanitizeAll(&in.Email)
	if err := validate.Struct(*in); err != nil {
		return err
	}
	in.Email = domain.NormalizeEmail(in.Email)
	return nil
}

// Subscribe creates a subscription for in.Email or reactivates a lapsed one.
// It returns ErrAlreadySubscribed when the address is already subscribed.
func (s *Service) Subscribe(ctx context.Context, in domain.SubscribeInput) (*domain.Subscription, error) {
	if err := prepare(&in); err != nil {
		metrics.Submission("newsletter", metrics.OutcomeFailed)
		return nil, err
	}

	sub, err := s.subscribe(ctx, in)
	if err != nil {
		metrics.Submission("newsletter", metrics.OutcomeFailed)
		return nil, err
	}
	metrics.Submission("newsletter", metrics.OutcomeOK)
	logger.Info("newsletter: subscribed", "subscription_id", sub.SubscriptionID, "email", sub.Email,
		"source_page", sub.Metadata.SourcePage)

	s.notifier.Dispatch(s.welcomeTask(sub), notify.Task{
		Template: "newsletter_admin_notification",
		ToAdmin:  true,
		Vars: map[string]interface{}{
			"email":        sub.Email,
			"sourcePage":   sub.Metadata.SourcePage,
			"ipAddress":    sub.Metadata.IPAddress,
			"subscribedAt": sub.Metadata.Timestamp.Format(time.RFC1123),
		},
		OnSent: func(ctx context.Context, at time.Time) error {
			_, err := s.repo.FindOneAndUpdate(ctx, lookup.ByID(sub.ID), Patch{AdminNotifiedAt: &at})
			return err
		},
	})
	return sub, nil
}

func (s *Service) subscribe(ctx context.Context, in domain.SubscribeInput) (*domain.Subscription, error) {
	// A record removed between the failed insert and the reactivation is
	// retried once as a fresh insert.
	for attempt := 0; attempt < 2; attempt++ {
		sub, dropped := domain.NewSubscription(in, s.clock())
		if len(dropped) > 0 {
			logger.Debug("newsletter: ignoring unknown metadata keys", "keys", dropped)
		}
		err := s.repo.Create(ctx, sub)
		if err == nil {
			return sub, nil
		}
		if !domain.IsDuplicateOn(err, lookup.FieldEmail) {
			return nil, fmt.Errorf("create subscription: %w", err)
		}

		sub, err = s.reactivate(ctx, in)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		return sub, err
	}
	return nil, ErrAlreadySubscribed
}

// reactivate brings a lapsed subscription for in.Email back to subscribed,
// merging the known metadata keys supplied with the request.
func (s *Service) reactivate(ctx context.Context, in domain.SubscribeInput) (*domain.Subscription, error) {
	var meta domain.SubscriptionMetadata
	meta.Merge(in.Metadata)
	now := s.clock()
	subscribed := domain.SubscriptionSubscribed
	sub, err := s.repo.FindOneAndUpdate(ctx, lookup.Key{Field: lookup.FieldEmail, Value: in.Email}, Patch{
		Status:           &subscribed,
		Timestamp:        &now,
		Meta:             &meta,
		ClearUnsubscribe: true,
		UnlessStatus:     &subscribed,
	})
	if errors.Is(err, domain.ErrPreconditionFailed) {
		return nil, ErrAlreadySubscribed
	}
	if err != nil {
		return nil, err
	}
	logger.Info("newsletter: reactivated", "subscription_id", sub.SubscriptionID)
	return sub, nil
}

// Unsubscribe ends the subscription identified by id (subscriptionId, email
// or internal id). An empty reason is recorded as "User requested".
func (s *Service) Unsubscribe(ctx context.Context, id, reason string) (*domain.Subscription, error) {
	reason = validate.Sanitize(reason)
	if reason == "" {
		reason = domain.DefaultUnsubscribeReason
	}
	if utf8.RuneCountInString(reason) > UnsubscribeReasonMax {
		return nil, domain.NewValidationError("reason", fmt.Sprintf("Reason cannot exceed %d characters", UnsubscribeReasonMax))
	}
	sub, err := s.unsubscribe(ctx, id, reason)
	if err != nil {
		return nil, err
	}
	logger.Info("newsletter: unsubscribed", "subscription_id", sub.SubscriptionID, "reason", reason)
	return sub, nil
}

func (s *Service) unsubscribe(ctx context.Context, id, reason string) (*domain.Subscription, error) {
	_, key, err := lookup.Resolve(ctx, id, lookup.Subscriptions, s.repo.FindOne)
	if err != nil {
		return nil, err
	}
	unsubscribed := domain.SubscriptionUnsubscribed
	sub, err := s.repo.FindOneAndUpdate(ctx, key, Patch{
		Status:       &unsubscribed,
		Unsubscribe:  &Unsubscribe{At: s.clock(), Reason: reason},
		UnlessStatus: &unsubscribed,
	})
	if errors.Is(err, domain.ErrPreconditionFailed) {
		return nil, ErrAlreadyUnsubscribed
	}
	return sub, err
}

// Resubscribe reactivates a lapsed subscription and sends the welcome email
// again.
func (s *Service) Resubscribe(ctx context.Context, id string) (*domain.Subscription, error) {
	sub, err := s.resubscribe(ctx, id)
	if err != nil {
		return nil, err
	}
	logger.Info("newsletter: resubscribed", "subscription_id", sub.SubscriptionID)
	s.notifier.Dispatch(s.welcomeTask(sub))
	return sub, nil
}

func (s *Service) resubscribe(ctx context.Context, id string) (*domain.Subscription, error) {
	_, key, err := lookup.Resolve(ctx, id, lookup.Subscriptions, s.repo.FindOne)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	subscribed := domain.SubscriptionSubscribed
	sub, err := s.repo.FindOneAndUpdate(ctx, key, Patch{
		Status:           &subscribed,
		Timestamp:        &now,
		ClearUnsubscribe: true,
		UnlessStatus:     &subscribed,
	})
	if errors.Is(err, domain.ErrPreconditionFailed) {
		return nil, ErrAlreadySubscribed
	}
	return sub, err
}

// MarkBounced records that mail to the subscriber bounced.
func (s *Service) MarkBounced(ctx context.Context, actor domain.Actor, id string) (*domain.Subscription, error) {
	_, key, err := lookup.Resolve(ctx, id, lookup.Subscriptions, s.repo.FindOne)
	if err != nil {
		return nil, err
	}
	bounced := domain.SubscriptionBounced
	sub, err := s.repo.FindOneAndUpdate(ctx, key, Patch{Status: &bounced, UnlessStatus: &bounced})
	if errors.Is(err, domain.ErrPreconditionFailed) {
		return nil, ErrAlreadyBounced
	}
	if err != nil {
		return nil, err
	}
	logger.Info("newsletter: marked bounced", "subscription_id", sub.SubscriptionID, "actor", actor.Name())
	return sub, nil
}

// SetStatus is the admin status change. Moving to subscribed sends no email.
func (s *Service) SetStatus(ctx context.Context, actor domain.Actor, id string, st domain.SubscriptionStatus) (*domain.Subscription, error) {
	var (
		sub *domain.Subscription
		err error
	)
	switch st {
	case domain.SubscriptionSubscribed:
		sub, err = s.resubscribe(ctx, id)
	case domain.SubscriptionUnsubscribed:
		sub, err = s.unsubscribe(ctx, id, domain.AdminDeactivationReason)
	case domain.SubscriptionBounced:
		return s.MarkBounced(ctx, actor, id)
	default:
		return nil, domain.NewValidationError("status", "Status must be one of: subscribed, unsubscribed, bounced")
	}
	if err != nil {
		return nil, err
	}
	logger.Info("newsletter: status changed", "subscription_id", sub.SubscriptionID, "status", st, "actor", actor.Name())
	return sub, nil
}

// Create adds a subscription from the dashboard. No email is sent.
func (s *Service) Create(ctx context.Context, actor domain.Actor, in domain.SubscribeInput) (*domain.Subscription, error) {
	if err := prepare(&in); err != nil {
		return nil, err
	}
	sub, _ := domain.NewSubscription(in, s.clock())
	sub.Metadata.Source = domain.SourceAdminDashboard
	if err := s.repo.Create(ctx, sub); err != nil {
		if domain.IsDuplicateOn(err, lookup.FieldEmail) {
			return nil, ErrAlreadySubscribed
		}
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	logger.Info("newsletter: created by admin", "subscription_id", sub.SubscriptionID, "actor", actor.Name())
	return sub, nil
}

// Update applies an admin edit.
func (s *Service) Update(ctx context.Context, actor domain.Actor, id string, u Update) (*domain.Subscription, error) {
	validate.SanitizeAll(u.Email)
	if err := validate.Struct(u); err != nil {
		return nil, err
	}
	current, key, err := lookup.Resolve(ctx, id, lookup.Subscriptions, s.repo.FindOne)
	if err != nil {
		return nil, err
	}

	p := Patch{Tags: u.Tags}
	if u.Preferences != nil {
		prefs := *u.Preferences
		// An edit that leaves frequency out keeps the stored one.
		if prefs.Frequency == "" {
			prefs.Frequency = current.Preferences.Frequency
		}
		if prefs.Frequency == "" {
			prefs.Frequency = domain.FrequencyWeekly
		}
		p.Preferences = &prefs
	}
	if u.Email != nil {
		e := domain.NormalizeEmail(*u.Email)
		p.Email = &e
	}
	if u.IsActive != nil {
		now := s.clock()
		if *u.IsActive {
			st := domain.SubscriptionSubscribed
			p.Status, p.ClearUnsubscribe = &st, true
		} else {
			st := domain.SubscriptionUnsubscribed
			p.Status = &st
			p.Unsubscribe = &Unsubscribe{At: now, Reason: domain.AdminDeactivationReason}
		}
	}

	sub, err := s.repo.FindOneAndUpdate(ctx, key, p)
	if domain.IsDuplicateOn(err, lookup.FieldEmail) {
		return nil, ErrAlreadySubscribed
	}
	if err != nil {
		return nil, err
	}
	logger.Info("newsletter: updated", "subscription_id", sub.SubscriptionID, "actor", actor.Name())
	return sub, nil
}

// Get resolves id to a subscription.
func (s *Service) Get(ctx context.Context, id string) (*domain.Subscription, error) {
	sub, _, err := lookup.Resolve(ctx, id, lookup.Subscriptions, s.repo.FindOne)
	return sub, err
}

// Delete removes a subscription and returns it.
func (s *Service) Delete(ctx context.Context, actor domain.Actor, id string) (*domain.Subscription, error) {
	_, key, err := lookup.Resolve(ctx, id, lookup.Subscriptions, s.repo.FindOne)
	if err != nil {
		return nil, err
	}
	sub, err := s.repo.FindOneAndDelete(ctx, key)
	if err != nil {
		return nil, err
	}
	logger.Info("newsletter: deleted", "subscription_id", sub.SubscriptionID, "actor", actor.Name())
	return sub, nil
}

// List returns one page of subscriptions.
func (s *Service) List(ctx context.Context, q query.List) (query.Page[domain.Subscription], error) {
	q = q.Normalize()
	items, total, err := s.repo.Find(ctx, q)
	if err != nil {
		return query.Page[domain.Subscription]{}, fmt.Errorf("list subscriptions: %w", err)
	}
	return query.NewPage(items, q, total), nil
}

// Recent returns the n newest subscriptions.
func (s *Service) Recent(ctx context.Context, n int) ([]domain.Subscription, error) {
	items, _, err := s.repo.Find(ctx, query.List{Page: 1, Limit: n})
	return items, err
}

// Stats returns subscription aggregates.
func (s *Service) Stats(ctx context.Context) (domain.NewsletterStats, error) {
	return s.repo.Stats(ctx)
}

// ActiveEmails reports which of emails are actively subscribed.
func (s *Service) ActiveEmails(ctx context.Context, emails []string) (map[string]bool, error) {
	return s.repo.ActiveEmails(ctx, emails)
}

// IsSubscribed reports whether email is actively subscribed.
func (s *Service) IsSubscribed(ctx context.Context, email string) (bool, error) {
	email = domain.NormalizeEmail(email)
	m, err := s.repo.ActiveEmails(ctx, []string{email})
	if err != nil {
		return false, err
	}
	return m[email], nil
}

// Recipients lists the active subscribers, oldest first.
func (s *Service) Recipients(ctx context.Context) ([]domain.Subscription, error) {
	return s.repo.Active(ctx)
}

// UnsubscribeURL is the public one-click unsubscribe link for sub.
func (s *Service) UnsubscribeURL(subscriptionID string) string {
	return s.baseURL + "/api/newsletter/unsubscribe?token=" + url.QueryEscape(subscriptionID)
}

func (s *Service) welcomeTask(sub *domain.Subscription) notify.Task {
	topics := make([]string, 0, len(sub.Preferences.Topics))
	for _, t := range sub.Preferences.Topics {
		topics = append(topics, string(t))
	}
	return notify.Task{
		Template: "newsletter_welcome",
		To:       sub.Email,
		Vars: map[string]interface{}{
			"email":          sub.Email,
			"subscriptionId": sub.SubscriptionID,
			"frequency":      string(sub.Preferences.Frequency),
			"topics":         topics,
			"unsubscribeUrl": s.UnsubscribeURL(sub.SubscriptionID),
		},
		OnSent: func(ctx context.Context, at time.Time) error {
			_, err := s.repo.FindOneAndUpdate(ctx, lookup.ByID(sub.ID), Patch{WelcomeEmailSentAt: &at})
			return err
		},
	}
}
