package memory

import (
	"context"
	"time"

	"github.com/techgrid/site-backend/internal/domain"
	"github.com/techgrid/site-backend/internal/lookup"
	"github.com/techgrid/site-backend/internal/query"
	"github.com/techgrid/site-backend/internal/service/newsletter"
)

// NewsletterRepo implements newsletter.Repository in memory.
type NewsletterRepo struct {
	rows *collection[domain.Subscription]
	now  func() time.Time
}

// NewNewsletterRepo creates an empty subscription store.
func NewNewsletterRepo() *NewsletterRepo {
	return &NewsletterRepo{
		now: time.Now,
		rows: newCollection(schema[domain.Subscription]{
			field: func(s *domain.Subscription, name string) (string, bool) {
				switch name {
				case lookup.FieldID:
					return s.ID, true
				case lookup.FieldSubscriptionID:
					return s.SubscriptionID, true
				case lookup.FieldEmail:
					return s.Email, true
				}
				return "", false
			},
			unique:  []string{lookup.FieldID, lookup.FieldSubscriptionID, lookup.FieldEmail},
			created: func(s *domain.Subscription) (time.Time, string) { return s.CreatedAt, s.ID },
			clone: func(s *domain.Subscription) *domain.Subscription {
				v := *s
				v.Preferences.Topics = append([]domain.Topic(nil), s.Preferences.Topics...)
				v.Tags = append([]string{}, s.Tags...)
				v.WelcomeEmailSentAt = copyTime(s.WelcomeEmailSentAt)
				v.AdminNotifiedAt = copyTime(s.AdminNotifiedAt)
				v.UnsubscribedAt = copyTime(s.UnsubscribedAt)
				return &v
			},
		}),
	}
}

func (r *NewsletterRepo) Create(_ context.Context, s *domain.Subscription) error {
	return r.rows.insert(s)
}

func (r *NewsletterRepo) FindOne(_ context.Context, key lookup.Key) (*domain.Subscription, error) {
	return r.rows.findOne(key)
}

func subscriptionMatches(q query.List) func(*domain.Subscription) bool {
	return func(s *domain.Subscription) bool {
		if q.Status != "" && string(s.Metadata.Status) != q.Status {
			return false
		}
		if q.Active != nil && s.IsActive != *q.Active {
			return false
		}
		return query.MatchesSearch(q.Search, s.Email)
	}
}

func (r *NewsletterRepo) Find(_ context.Context, q query.List) ([]domain.Subscription, int, error) {
	items, total := r.rows.page(q, subscriptionMatches(q.Normalize()))
	return items, total, nil
}

func (r *NewsletterRepo) FindOneAndUpdate(_ context.Context, key lookup.Key, p newsletter.Patch) (*domain.Subscription, error) {
	return r.rows.update(key, func(s *domain.Subscription) error {
		if !p.Allows(s) {
			return domain.ErrPreconditionFailed
		}
		p.Apply(s, r.now().UTC())
		return nil
	})
}

func (r *NewsletterRepo) FindOneAndDelete(_ context.Context, key lookup.Key) (*domain.Subscription, error) {
	return r.rows.remove(key)
}

func (r *NewsletterRepo) Stats(_ context.Context) (domain.NewsletterStats, error) {
	st := domain.NewsletterStats{BySourcePage: map[string]int{}}
	for _, s := range r.rows.filter(nil) {
		st.Total++
		if s.IsActive {
			st.Active++
		}
		switch s.Metadata.Status {
		case domain.SubscriptionSubscribed:
			st.Subscribed++
		case domain.SubscriptionUnsubscribed:
			st.Unsubscribed++
		case domain.SubscriptionBounced:
			st.Bounced++
		}
		if s.WelcomeEmailSent {
			st.WelcomesSent++
		}
		if s.AdminNotified {
			st.AdminNotified++
		}
		page := s.Metadata.SourcePage
		if page == "" {
			page = "unknown"
		}
		st.BySourcePage[page]++
	}
	return st, nil
}

func (r *NewsletterRepo) ActiveEmails(_ context.Context, emails []string) (map[string]bool, error) {
	want := make(map[string]bool, len(emails))
	for _, e := range emails {
		want[e] = true
	}
	out := make(map[string]bool)
	for _, s := range r.rows.filter(func(s *domain.Subscription) bool { return s.IsActive && want[s.Email] }) {
		out[s.Email] = true
	}
	return out, nil
}

func (r *NewsletterRepo) Active(_ context.Context) ([]domain.Subscription, error) {
	rows := r.rows.filter(func(s *domain.Subscription) bool { return s.IsActive })
	out := make([]domain.Subscription, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		out = append(out, *rows[i])
	}
	return out, nil
}
