// Package templates manages the admin-authored email templates used by bulk
// campaigns.
package templates

import (
	"context"
	"time"

	"github.com/techgrid/site-backend/internal/domain"
	"github.com/techgrid/site-backend/internal/lookup"
	"github.com/techgrid/site-backend/internal/query"
)

// Repository defines the data access contract for email templates.
type Repository interface {
	Create(ctx context.Context, t *domain.EmailTemplate) error
	FindOne(ctx context.Context, key lookup.Key) (*domain.EmailTemplate, error)
	Find(ctx context.Context, q query.List) ([]domain.EmailTemplate, int, error)
	FindOneAndDelete(ctx context.Context, key lookup.Key) (*domain.EmailTemplate, error)
	// MarkUsed increments usageCount and sets lastUsed in one atomic write.
	MarkUsed(ctx context.Context, key lookup.Key, at time.Time) (*domain.EmailTemplate, error)
}
