package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/techgrid/site-backend/internal/domain"
	"github.com/techgrid/site-backend/internal/lookup"
	"github.com/techgrid/site-backend/internal/query"
	"github.com/techgrid/site-backend/internal/service/newsletter"
)

const subscriptionColumns = `id, subscription_id, email, is_active, status, meta_timestamp,
	user_agent, ip_address, source, source_page, frequency, topics, tags,
	welcome_email_sent, welcome_email_sent_at, admin_notified, admin_notified_at,
	unsubscribed_at, unsubscribe_reason, created_at, updated_at`

var subscriptionKeys = []string{lookup.FieldID, lookup.FieldSubscriptionID, lookup.FieldEmail}

// NewsletterRepo implements newsletter.Repository against PostgreSQL. The
// is_active column is only ever written together with status, and a CHECK
// constraint in the schema rejects any row where they disagree.
type NewsletterRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewNewsletterRepo creates a Postgres-backed subscription repository.
func NewNewsletterRepo(db *sql.DB) *NewsletterRepo { return &NewsletterRepo{db: db, now: time.Now} }

func scanSubscription(row rowScanner) (*domain.Subscription, error) {
	var (
		s                       domain.Subscription
		topics, tags            pq.StringArray
		welcomed, notified, off sql.NullTime
	)
	err := row.Scan(
		&s.ID, &s.SubscriptionID, &s.Email, &s.IsActive, &s.Metadata.Status, &s.Metadata.Timestamp,
		&s.Metadata.UserAgent, &s.Metadata.IPAddress, &s.Metadata.Source, &s.Metadata.SourcePage,
		&s.Preferences.Frequency, &topics, &tags,
		&s.WelcomeEmailSent, &welcomed, &s.AdminNotified, &notified,
		&off, &s.UnsubscribeReason, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Preferences.Topics = make([]domain.Topic, 0, len(topics))
	for _, t := range topics {
		s.Preferences.Topics = append(s.Preferences.Topics, domain.Topic(t))
	}
	s.Tags = []string(tags)
	if s.Tags == nil {
		s.Tags = []string{}
	}
	s.WelcomeEmailSentAt, s.AdminNotifiedAt, s.UnsubscribedAt = timePtr(welcomed), timePtr(notified), timePtr(off)
	return &s, nil
}

func topicArray(in []domain.Topic) interface{} {
	out := make([]string, 0, len(in))
	for _, t := range in {
		out = append(out, string(t))
	}
	return pqStrings(out)
}

func (r *NewsletterRepo) Create(ctx context.Context, s *domain.Subscription) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO newsletter_subscriptions (`+subscriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
		        $18, $19, $20, $21)
	`, s.ID, s.SubscriptionID, s.Email, s.Metadata.Status.Active(), string(s.Metadata.Status), s.Metadata.Timestamp,
		s.Metadata.UserAgent, s.Metadata.IPAddress, s.Metadata.Source, s.Metadata.SourcePage,
		s.Preferences.Frequency, topicArray(s.Preferences.Topics), pqStrings(s.Tags),
		s.WelcomeEmailSent, nullTime(s.WelcomeEmailSentAt), s.AdminNotified, nullTime(s.AdminNotifiedAt),
		nullTime(s.UnsubscribedAt), s.UnsubscribeReason, s.CreatedAt, s.UpdatedAt)
	return mapError("create subscription", err)
}

func (r *NewsletterRepo) FindOne(ctx context.Context, key lookup.Key) (*domain.Subscription, error) {
	col, err := keyColumn(key, subscriptionKeys...)
	if err != nil {
		return nil, err
	}
	s, err := scanSubscription(r.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM newsletter_subscriptions WHERE `+col+` = $1`, key.Value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, mapError("get subscription", err)
	}
	return s, nil
}

func (r *NewsletterRepo) list(ctx context.Context, stmt string, args ...interface{}) ([]domain.Subscription, error) {
	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, mapError("list subscriptions", err)
	}
	defer rows.Close()

	out := []domain.Subscription{}
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, mapError("scan subscription", err)
		}
		out = append(out, *s)
	}
	return out, mapError("list subscriptions", rows.Err())
}

func (r *NewsletterRepo) Find(ctx context.Context, q query.List) ([]domain.Subscription, int, error) {
	q = q.Normalize()
	var w where
	if q.Status != "" {
		w.eq("status", q.Status)
	}
	if q.Active != nil {
		w.eq("is_active", *q.Active)
	}
	w.search(q.Search, "email")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM newsletter_subscriptions`+w.String(), w.vals...).Scan(&total); err != nil {
		return nil, 0, mapError("count subscriptions", err)
	}
	stmt := fmt.Sprintf(`SELECT %s FROM newsletter_subscriptions%s ORDER BY created_at DESC, id DESC LIMIT %s OFFSET %s`,
		subscriptionColumns, w.String(), w.add(q.Limit), w.add(q.Offset()))
	items, err := r.list(ctx, stmt, w.vals...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *NewsletterRepo) FindOneAndUpdate(ctx context.Context, key lookup.Key, p newsletter.Patch) (*domain.Subscription, error) {
	col, err := keyColumn(key, subscriptionKeys...)
	if err != nil {
		return nil, err
	}
	var s set
	if p.Email != nil {
		s.to("email", *p.Email)
	}
	if p.Status != nil {
		s.to("status", string(*p.Status))
		s.to("is_active", p.Status.Active())
	}
	if p.Timestamp != nil {
		s.to("meta_timestamp", *p.Timestamp)
	}
	if m := p.Meta; m != nil {
		for _, f := range []struct{ col, v string }{
			{"user_agent", m.UserAgent}, {"ip_address", m.IPAddress},
			{"source", m.Source}, {"source_page", m.SourcePage},
		} {
			if f.v != "" {
				s.to(f.col, f.v)
			}
		}
	}
	if p.Preferences != nil {
		s.to("frequency", p.Preferences.Frequency)
		s.to("topics", topicArray(p.Preferences.Topics))
	}
	if p.Tags != nil {
		s.to("tags", pqStrings(p.Tags))
	}
	if p.ClearUnsubscribe && p.Unsubscribe == nil {
		s.raw("unsubscribed_at = NULL")
		s.raw("unsubscribe_reason = ''")
	}
	if u := p.Unsubscribe; u != nil {
		s.to("unsubscribed_at", u.At)
		s.to("unsubscribe_reason", u.Reason)
	}
	if p.WelcomeEmailSentAt != nil {
		s.raw("welcome_email_sent = TRUE")
		s.to("welcome_email_sent_at", *p.WelcomeEmailSentAt)
	}
	if p.AdminNotifiedAt != nil {
		s.raw("admin_notified = TRUE")
		s.to("admin_notified_at", *p.AdminNotifiedAt)
	}
	s.to("updated_at", r.now().UTC())

	guard := ""
	if p.UnlessStatus != nil {
		guard = "status <> " + s.add(string(*p.UnlessStatus))
	}

	var out *domain.Subscription
	err = guardedUpdate(ctx, r.db, "newsletter_subscriptions", subscriptionColumns, col, key.Value, &s, guard, func(row *sql.Row) error {
		sub, err := scanSubscription(row)
		out = sub
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *NewsletterRepo) FindOneAndDelete(ctx context.Context, key lookup.Key) (*domain.Subscription, error) {
	col, err := keyColumn(key, subscriptionKeys...)
	if err != nil {
		return nil, err
	}
	s, err := scanSubscription(r.db.QueryRowContext(ctx,
		`DELETE FROM newsletter_subscriptions WHERE `+col+` = $1 RETURNING `+subscriptionColumns, key.Value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, mapError("delete subscription", err)
	}
	return s, nil
}

func (r *NewsletterRepo) Stats(ctx context.Context) (domain.NewsletterStats, error) {
	st := domain.NewsletterStats{BySourcePage: map[string]int{}}
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE is_active),
		       COUNT(*) FILTER (WHERE status = 'subscribed'),
		       COUNT(*) FILTER (WHERE status = 'unsubscribed'),
		       COUNT(*) FILTER (WHERE status = 'bounced'),
		       COUNT(*) FILTER (WHERE welcome_email_sent),
		       COUNT(*) FILTER (WHERE admin_notified)
		FROM newsletter_subscriptions
	`).Scan(&st.Total, &st.Active, &st.Subscribed, &st.Unsubscribed, &st.Bounced,
		&st.WelcomesSent, &st.AdminNotified)
	if err != nil {
		return domain.NewsletterStats{}, mapError("newsletter stats", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT COALESCE(NULLIF(source_page, ''), 'unknown'), COUNT(*)
		FROM newsletter_subscriptions GROUP BY 1`)
	if err != nil {
		return domain.NewsletterStats{}, mapError("newsletter source stats", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			page string
			n    int
		)
		if err := rows.Scan(&page, &n); err != nil {
			return domain.NewsletterStats{}, mapError("scan source stats", err)
		}
		st.BySourcePage[page] = n
	}
	return st, mapError("newsletter source stats", rows.Err())
}

func (r *NewsletterRepo) ActiveEmails(ctx context.Context, emails []string) (map[string]bool, error) {
	out := make(map[string]bool)
	if len(emails) == 0 {
		return out, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT email FROM newsletter_subscriptions WHERE is_active AND email = ANY($1)`, pqStrings(emails))
	if err != nil {
		return nil, mapError("active emails", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, mapError("scan active email", err)
		}
		out[e] = true
	}
	return out, mapError("active emails", rows.Err())
}

func (r *NewsletterRepo) Active(ctx context.Context) ([]domain.Subscription, error) {
	return r.list(ctx, `SELECT `+subscriptionColumns+` FROM newsletter_subscriptions
		WHERE is_active ORDER BY created_at, id`)
}
