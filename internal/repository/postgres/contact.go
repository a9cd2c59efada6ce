package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/techgrid/site-backend/internal/domain"
	"github.com/techgrid/site-backend/internal/lookup"
	"github.com/techgrid/site-backend/internal/query"
	"github.com/techgrid/site-backend/internal/service/contact"
)

const contactColumns = `id, contact_id, name, email, phone, subject, message, status,
	email_sent, email_sent_at, admin_notified, admin_notified_at,
	meta_timestamp, user_agent, ip_address, source, created_at, updated_at`

// ContactRepo implements contact.Repository against PostgreSQL.
type ContactRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewContactRepo creates a Postgres-backed contact repository.
func NewContactRepo(db *sql.DB) *ContactRepo { return &ContactRepo{db: db, now: time.Now} }

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanContact(row rowScanner) (*domain.Contact, error) {
	var (
		c                domain.Contact
		sentAt, notified sql.NullTime
	)
	err := row.Scan(
		&c.ID, &c.ContactID, &c.Name, &c.Email, &c.Phone, &c.Subject, &c.Message, &c.Status,
		&c.EmailSent, &sentAt, &c.AdminNotified, &notified,
		&c.Metadata.Timestamp, &c.Metadata.UserAgent, &c.Metadata.IPAddress, &c.Metadata.Source,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.EmailSentAt, c.AdminNotifiedAt = timePtr(sentAt), timePtr(notified)
	return &c, nil
}

func (r *ContactRepo) Create(ctx context.Context, c *domain.Contact) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO contacts (`+contactColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, c.ID, c.ContactID, c.Name, c.Email, c.Phone, c.Subject, c.Message, c.Status,
		c.EmailSent, nullTime(c.EmailSentAt), c.AdminNotified, nullTime(c.AdminNotifiedAt),
		c.Metadata.Timestamp, c.Metadata.UserAgent, c.Metadata.IPAddress, c.Metadata.Source,
		c.CreatedAt, c.UpdatedAt)
	return mapError("create contact", err)
}

func (r *ContactRepo) FindOne(ctx context.Context, key lookup.Key) (*domain.Contact, error) {
	col, err := keyColumn(key, lookup.FieldID, lookup.FieldContactID)
	if err != nil {
		return nil, err
	}
	c, err := scanContact(r.db.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE `+col+` = $1`, key.Value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, mapError("get contact", err)
	}
	return c, nil
}

func (r *ContactRepo) Find(ctx context.Context, q query.List) ([]domain.Contact, int, error) {
	q = q.Normalize()
	var w where
	if q.Status != "" {
		w.eq("status", q.Status)
	}
	w.search(q.Search, "name", "email", "subject")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contacts`+w.String(), w.vals...).Scan(&total); err != nil {
		return nil, 0, mapError("count contacts", err)
	}

	stmt := fmt.Sprintf(`SELECT %s FROM contacts%s ORDER BY created_at DESC, id DESC LIMIT %s OFFSET %s`,
		contactColumns, w.String(), w.add(q.Limit), w.add(q.Offset()))
	rows, err := r.db.QueryContext(ctx, stmt, w.vals...)
	if err != nil {
		return nil, 0, mapError("list contacts", err)
	}
	defer rows.Close()

	out := []domain.Contact{}
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, 0, mapError("scan contact", err)
		}
		out = append(out, *c)
	}
	return out, total, mapError("list contacts", rows.Err())
}

func (r *ContactRepo) FindOneAndUpdate(ctx context.Context, key lookup.Key, p contact.Patch) (*domain.Contact, error) {
	col, err := keyColumn(key, lookup.FieldID, lookup.FieldContactID)
	if err != nil {
		return nil, err
	}
	var s set
	if p.Name != nil {
		s.to("name", *p.Name)
	}
	if p.Email != nil {
		s.to("email", *p.Email)
	}
	if p.Phone != nil {
		s.to("phone", *p.Phone)
	}
	if p.Subject != nil {
		s.to("subject", *p.Subject)
	}
	if p.Message != nil {
		s.to("message", *p.Message)
	}
	if p.Status != nil {
		s.to("status", *p.Status)
	}
	if p.EmailSentAt != nil {
		s.raw("email_sent = TRUE")
		s.to("email_sent_at", *p.EmailSentAt)
	}
	if p.AdminNotifiedAt != nil {
		s.raw("admin_notified = TRUE")
		s.to("admin_notified_at", *p.AdminNotifiedAt)
	}
	s.to("updated_at", r.now().UTC())

	guard := ""
	if len(p.IfStatusIn) > 0 {
		statuses := make([]string, 0, len(p.IfStatusIn))
		for _, st := range p.IfStatusIn {
			statuses = append(statuses, string(st))
		}
		guard = "status = ANY(" + s.add(pqStrings(statuses)) + ")"
	}

	var out *domain.Contact
	err = guardedUpdate(ctx, r.db, "contacts", contactColumns, col, key.Value, &s, guard, func(row *sql.Row) error {
		c, err := scanContact(row)
		out = c
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ContactRepo) FindOneAndDelete(ctx context.Context, key lookup.Key) (*domain.Contact, error) {
	col, err := keyColumn(key, lookup.FieldID, lookup.FieldContactID)
	if err != nil {
		return nil, err
	}
	c, err := scanContact(r.db.QueryRowContext(ctx,
		`DELETE FROM contacts WHERE `+col+` = $1 RETURNING `+contactColumns, key.Value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, mapError("delete contact", err)
	}
	return c, nil
}

func (r *ContactRepo) Stats(ctx context.Context) (domain.ContactStats, error) {
	var st domain.ContactStats
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'pending'),
		       COUNT(*) FILTER (WHERE status = 'processed'),
		       COUNT(*) FILTER (WHERE status = 'responded'),
		       COUNT(*) FILTER (WHERE email_sent),
		       COUNT(*) FILTER (WHERE admin_notified)
		FROM contacts
	`).Scan(&st.Total, &st.Pending, &st.Processed, &st.Responded, &st.EmailsSent, &st.AdminNotified)
	if err != nil {
		return domain.ContactStats{}, mapError("contact stats", err)
	}
	return st, nil
}
