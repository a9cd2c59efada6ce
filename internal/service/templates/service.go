package templates

import (
	"context"
	"fmt"
	"time"

	"github.com/techgrid/site-backend/internal/domain"
	"github.com/techgrid/site-backend/internal/lookup"
	"github.com/techgrid/site-backend/internal/pkg/logger"
	"github.com/techgrid/site-backend/internal/pkg/validate"
	"github.com/techgrid/site-backend/internal/query"
)

// Parser checks template syntax.
type Parser interface {
	Parse(src string) error
}

// Service manages email templates.
type Service struct {
	repo   Repository
	parser Parser
	now    func() time.Time
}

// NewService creates a template service. parser may be nil to skip syntax
// checks.
func NewService(repo Repository, parser Parser) *Service {
	return &Service{repo: repo, parser: parser, now: time.Now}
}

// Create stores a template authored by actor. Subject and body must parse.
func (s *Service) Create(ctx context.Context, actor domain.Actor, in domain.TemplateInput) (*domain.EmailTemplate, error) {
	validate.SanitizeAll(&in.Name, &in.Subject)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	if s.parser != nil {
		verr := &domain.ValidationError{}
		if err := s.parser.Parse(in.Subject); err != nil {
			verr.Add("subject", "Subject is not a valid template: "+err.Error())
		}
		if err := s.parser.Parse(in.Body); err != nil {
			verr.Add("body", "Body is not a valid template: "+err.Error())
		}
		if !verr.Empty() {
			return nil, verr
		}
	}

	now := s.now().UTC()
	t := &domain.EmailTemplate{
		ID:        domain.NewInternalID(),
		Name:      in.Name,
		Subject:   in.Subject,
		Body:      in.Body,
		CreatedBy: actor.Name(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}
	logger.Info("templates: created", "template_id", t.ID, "actor", t.CreatedBy)
	return t, nil
}

// Get returns the template with the given id.
func (s *Service) Get(ctx context.Context, id string) (*domain.EmailTemplate, error) {
	t, _, err := lookup.Resolve(ctx, id, lookup.Templates, s.repo.FindOne)
	return t, err
}

// List returns one page of templates, newest first.
func (s *Service) List(ctx context.Context, q query.List) (query.Page[domain.EmailTemplate], error) {
	q = q.Normalize()
	items, total, err := s.repo.Find(ctx, q)
	if err != nil {
		return query.Page[domain.EmailTemplate]{}, fmt.Errorf("list templates: %w", err)
	}
	return query.NewPage(items, q, total), nil
}

// Delete removes a template and returns it.
func (s *Service) Delete(ctx context.Context, actor domain.Actor, id string) (*domain.EmailTemplate, error) {
	_, key, err := lookup.Resolve(ctx, id, lookup.Templates, s.repo.FindOne)
	if err != nil {
		return nil, err
	}
	t, err := s.repo.FindOneAndDelete(ctx, key)
	if err != nil {
		return nil, err
	}
	logger.Info("templates: deleted", "template_id", t.ID, "actor", actor.Name())
	return t, nil
}

// MarkUsed records one campaign use of the template.
func (s *Service) MarkUsed(ctx context.Context, id string) (*domain.EmailTemplate, error) {
	_, key, err := lookup.Resolve(ctx, id, lookup.Templates, s.repo.FindOne)
	if err != nil {
		return nil, err
	}
	return s.repo.MarkUsed(ctx, key, s.now().UTC())
}
