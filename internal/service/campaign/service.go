package campaign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/techgrid/site-backend/internal/domain"
	"github.com/techgrid/site-backend/internal/mailer"
	"github.com/techgrid/site-backend/internal/metrics"
	"github.com/techgrid/site-backend/internal/pkg/distlock"
	"github.com/techgrid/site-backend/internal/pkg/logger"
	"github.com/techgrid/site-backend/internal/pkg/validate"
)

// Audience names who a campaign goes to.
type Audience string

const (
	AudienceNewsletter    Audience = "newsletter"
	AudienceRegistrations Audience = "registrations"
)

// lockKey serializes campaign sends across processes.
const lockKey = "campaign:send"

// Subscribers supplies the newsletter audience.
type Subscribers interface {
	Recipients(ctx context.Context) ([]domain.Subscription, error)
	UnsubscribeURL(subscriptionID string) string
}

// Registrations supplies the registrant audience.
type Registrations interface {
	Recipients(ctx context.Context) ([]domain.Registration, error)
}

// Templates loads stored templates and records their use.
type Templates interface {
	Get(ctx context.Context, id string) (*domain.EmailTemplate, error)
	MarkUsed(ctx context.Context, id string) (*domain.EmailTemplate, error)
}

// Mailer renders and delivers ad-hoc content.
type Mailer interface {
	SendContent(ctx context.Context, to string, t mailer.Template, vars map[string]interface{}, tags map[string]string) error
}

// Request describes one campaign.
type Request struct {
	Audience   Audience `json:"audience" validate:"required,oneof=newsletter registrations"`
	TemplateID string   `json:"templateId"`
	Subject    string   `json:"subject" validate:"max=200"`
	Body       string   `json:"body" validate:"max=100000"`
}

// Summary reports the outcome of a send.
type Summary struct {
	Audience         Audience `json:"audience"`
	TemplateID       string   `json:"templateId,omitempty"`
	Total            int      `json:"total"`
	Sent             int      `json:"sent"`
	Failed           int      `json:"failed"`
	FailedRecipients []string `json:"failedRecipients"`
}

type recipient struct {
	email string
	vars  map[string]interface{}
}

// Config tunes sending.
type Config struct {
	// Interval is the pause between two recipients.
	Interval time.Duration
	// LockTTL bounds how long a crashed sender can block others.
	LockTTL time.Duration
}

// Service sends campaigns. It is safe for concurrent use; concurrent Sends
// are rejected rather than queued.
type Service struct {
	subscribers   Subscribers
	registrations Registrations
	templates     Templates
	mailer        Mailer
	locks         distlock.Factory
	cfg           Config
}

// NewService creates a campaign service. A nil locks factory falls back to a
// process-local lock.
func NewService(subs Subscribers, regs Registrations, tmpls Templates, m Mailer, locks distlock.Factory, cfg Config) *Service {
	if locks == nil {
		locks = distlock.NewFactory(nil, nil)
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Minute
	}
	return &Service{
		subscribers:   subs,
		registrations: regs,
		templates:     tmpls,
		mailer:        m,
		locks:         locks,
		cfg:           cfg,
	}
}

// Send mails req's content to its audience and returns the tally. It
// returns ErrCampaignInProgress while another campaign is sending.
func (s *Service) Send(ctx context.Context, actor domain.Actor, req Request) (*Summary, error) {
	validate.SanitizeAll(&req.TemplateID, &req.Subject)
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	content, err := s.content(ctx, req)
	if err != nil {
		return nil, err
	}

	var sum *Summary
	err = distlock.Run(ctx, s.locks(lockKey, s.cfg.LockTTL), func(ctx context.Context) error {
		recipients, err := s.recipients(ctx, req.Audience)
		if err != nil {
			return err
		}
		logger.Info("campaign: sending", "audience", req.Audience, "recipients", len(recipients),
			"template_id", req.TemplateID, "actor", actor.Name())
		sum = s.deliver(ctx, req, content, recipients)
		return nil
	})
	if errors.Is(err, distlock.ErrNotAcquired) {
		return nil, ErrCampaignInProgress
	}
	if err != nil {
		return nil, err
	}

	if req.TemplateID != "" {
		if _, err := s.templates.MarkUsed(ctx, req.TemplateID); err != nil {
			logger.Warn("campaign: could not record template use", "template_id", req.TemplateID, "error", err)
		}
	}
	logger.Info("campaign: finished", "audience", req.Audience, "sent", sum.Sent, "failed", sum.Failed)
	return sum, nil
}

// content returns the subject/body sources for req. A stored template wins
// over ad-hoc content.
func (s *Service) content(ctx context.Context, req Request) (mailer.Template, error) {
	if req.TemplateID != "" {
		t, err := s.templates.Get(ctx, req.TemplateID)
		if err != nil {
			return mailer.Template{}, err
		}
		return mailer.Template{Subject: t.Subject, HTML: t.Body}, nil
	}
	if req.Subject == "" || req.Body == "" {
		verr := &domain.ValidationError{}
		if req.Subject == "" {
			verr.Add("subject", "Subject is required when no template is selected")
		}
		if req.Body == "" {
			verr.Add("body", "Body is required when no template is selected")
		}
		return mailer.Template{}, verr
	}
	return mailer.Template{Subject: req.Subject, HTML: req.Body}, nil
}

func (s *Service) recipients(ctx context.Context, a Audience) ([]recipient, error) {
	switch a {
	case AudienceNewsletter:
		subs, err := s.subscribers.Recipients(ctx)
		if err != nil {
			return nil, fmt.Errorf("load subscribers: %w", err)
		}
		out := make([]recipient, 0, len(subs))
		for _, sub := range subs {
			out = append(out, recipient{email: sub.Email, vars: map[string]interface{}{
				"email":          sub.Email,
				"name":           "",
				"subscriptionId": sub.SubscriptionID,
				"unsubscribeUrl": s.subscribers.UnsubscribeURL(sub.SubscriptionID),
			}})
		}
		return out, nil
	case AudienceRegistrations:
		regs, err := s.registrations.Recipients(ctx)
		if err != nil {
			return nil, fmt.Errorf("load registrations: %w", err)
		}
		out := make([]recipient, 0, len(regs))
		for _, r := range regs {
			out = append(out, recipient{email: r.Email, vars: map[string]interface{}{
				"email":              r.Email,
				"name":               r.FullName(),
				"firstName":          r.FirstName,
				"lastName":           r.LastName,
				"registrationNumber": r.RegistrationNumber,
			}})
		}
		return out, nil
	}
	return nil, domain.NewValidationError("audience", "Audience must be one of: newsletter, registrations")
}

func (s *Service) deliver(ctx context.Context, req Request, content mailer.Template, recipients []recipient) *Summary {
	sum := &Summary{
		Audience:         req.Audience,
		TemplateID:       req.TemplateID,
		Total:            len(recipients),
		FailedRecipients: []string{},
	}
	tags := map[string]string{"campaign": string(req.Audience)}

	for i, r := range recipients {
		if i > 0 && s.cfg.Interval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(s.cfg.Interval):
			}
		}
		if err := ctx.Err(); err != nil {
			sum.Failed += len(recipients) - i
			for _, rest := range recipients[i:] {
				sum.FailedRecipients = append(sum.FailedRecipients, rest.email)
			}
			logger.Warn("campaign: cancelled", "remaining", len(recipients)-i, "error", err)
			break
		}

		if err := s.mailer.SendContent(ctx, r.email, content, r.vars, tags); err != nil {
			sum.Failed++
			sum.FailedRecipients = append(sum.FailedRecipients, r.email)
			metrics.CampaignRecipient(metrics.OutcomeFailed)
			logger.Warn("campaign: send failed", "recipient", r.email, "error", err)
			continue
		}
		sum.Sent++
		metrics.CampaignRecipient(metrics.OutcomeOK)
	}
	return sum
}
