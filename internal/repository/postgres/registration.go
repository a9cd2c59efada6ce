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
	"github.com/techgrid/site-backend/internal/service/registration"
)

const registrationColumns = `id, registration_id, registration_number, first_name, last_name,
	email, phone, company, job_title, experience, interests, expectations, newsletter, terms,
	confirmation_email_sent, confirmation_email_sent_at, admin_notified, admin_notified_at,
	meta_timestamp, user_agent, ip_address, source, event_id, status, created_at, updated_at`

var registrationKeys = []string{
	lookup.FieldID, lookup.FieldRegistrationID, lookup.FieldRegistrationNumber, lookup.FieldEmail,
}

// RegistrationRepo implements registration.Repository against PostgreSQL.
type RegistrationRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewRegistrationRepo creates a Postgres-backed registration repository.
func NewRegistrationRepo(db *sql.DB) *RegistrationRepo {
	return &RegistrationRepo{db: db, now: time.Now}
}

func scanRegistration(row rowScanner) (*domain.Registration, error) {
	var (
		r                 domain.Registration
		interests         pq.StringArray
		confirmed, notify sql.NullTime
	)
	err := row.Scan(
		&r.ID, &r.RegistrationID, &r.RegistrationNumber, &r.FirstName, &r.LastName,
		&r.Email, &r.Phone, &r.Company, &r.JobTitle, &r.Experience, &interests, &r.Expectations,
		&r.Newsletter, &r.Terms,
		&r.ConfirmationEmailSent, &confirmed, &r.AdminNotified, &notify,
		&r.Metadata.Timestamp, &r.Metadata.UserAgent, &r.Metadata.IPAddress, &r.Metadata.Source,
		&r.Metadata.EventID, &r.Metadata.Status, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Interests = make([]domain.Interest, 0, len(interests))
	for _, i := range interests {
		r.Interests = append(r.Interests, domain.Interest(i))
	}
	r.ConfirmationEmailSentAt, r.AdminNotifiedAt = timePtr(confirmed), timePtr(notify)
	return &r, nil
}

func interestArray(in []domain.Interest) interface{} {
	out := make([]string, 0, len(in))
	for _, i := range in {
		out = append(out, string(i))
	}
	return pqStrings(out)
}

func (r *RegistrationRepo) Create(ctx context.Context, reg *domain.Registration) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO registrations (`+registrationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
		        $19, $20, $21, $22, $23, $24, $25, $26)
	`, reg.ID, reg.RegistrationID, reg.RegistrationNumber, reg.FirstName, reg.LastName,
		reg.Email, reg.Phone, reg.Company, reg.JobTitle, reg.Experience, interestArray(reg.Interests),
		reg.Expectations, reg.Newsletter, reg.Terms,
		reg.ConfirmationEmailSent, nullTime(reg.ConfirmationEmailSentAt),
		reg.AdminNotified, nullTime(reg.AdminNotifiedAt),
		reg.Metadata.Timestamp, reg.Metadata.UserAgent, reg.Metadata.IPAddress, reg.Metadata.Source,
		reg.Metadata.EventID, reg.Metadata.Status, reg.CreatedAt, reg.UpdatedAt)
	return mapError("create registration", err)
}

func (r *RegistrationRepo) FindOne(ctx context.Context, key lookup.Key) (*domain.Registration, error) {
	col, err := keyColumn(key, registrationKeys...)
	if err != nil {
		return nil, err
	}
	reg, err := scanRegistration(r.db.QueryRowContext(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE `+col+` = $1`, key.Value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, mapError("get registration", err)
	}
	return reg, nil
}

func (r *RegistrationRepo) list(ctx context.Context, stmt string, args ...interface{}) ([]domain.Registration, error) {
	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, mapError("list registrations", err)
	}
	defer rows.Close()

	out := []domain.Registration{}
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, mapError("scan registration", err)
		}
		out = append(out, *reg)
	}
	return out, mapError("list registrations", rows.Err())
}

func (r *RegistrationRepo) Find(ctx context.Context, q query.List) ([]domain.Registration, int, error) {
	q = q.Normalize()
	var w where
	if q.Status != "" {
		w.eq("status", q.Status)
	}
	if q.Experience != "" {
		w.eq("experience", q.Experience)
	}
	w.search(q.Search, "first_name", "last_name", "email", "company", "registration_number")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM registrations`+w.String(), w.vals...).Scan(&total); err != nil {
		return nil, 0, mapError("count registrations", err)
	}
	stmt := fmt.Sprintf(`SELECT %s FROM registrations%s ORDER BY created_at DESC, id DESC LIMIT %s OFFSET %s`,
		registrationColumns, w.String(), w.add(q.Limit), w.add(q.Offset()))
	items, err := r.list(ctx, stmt, w.vals...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *RegistrationRepo) FindOneAndUpdate(ctx context.Context, key lookup.Key, p registration.Patch) (*domain.Registration, error) {
	col, err := keyColumn(key, registrationKeys...)
	if err != nil {
		return nil, err
	}
	var s set
	for _, f := range []struct {
		col string
		v   *string
	}{
		{"first_name", p.FirstName}, {"last_name", p.LastName}, {"email", p.Email},
		{"phone", p.Phone}, {"company", p.Company}, {"job_title", p.JobTitle},
		{"expectations", p.Expectations},
	} {
		if f.v != nil {
			s.to(f.col, *f.v)
		}
	}
	if p.Experience != nil {
		s.to("experience", *p.Experience)
	}
	if p.Interests != nil {
		s.to("interests", interestArray(p.Interests))
	}
	if p.Newsletter != nil {
		s.to("newsletter", *p.Newsletter)
	}
	if p.Status != nil {
		s.to("status", *p.Status)
	}
	if p.ConfirmationEmailSentAt != nil {
		s.raw("confirmation_email_sent = TRUE")
		s.to("confirmation_email_sent_at", *p.ConfirmationEmailSentAt)
	}
	if p.AdminNotifiedAt != nil {
		s.raw("admin_notified = TRUE")
		s.to("admin_notified_at", *p.AdminNotifiedAt)
	}
	s.to("updated_at", r.now().UTC())

	var out *domain.Registration
	err = guardedUpdate(ctx, r.db, "registrations", registrationColumns, col, key.Value, &s, "", func(row *sql.Row) error {
		reg, err := scanRegistration(row)
		out = reg
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *RegistrationRepo) FindOneAndDelete(ctx context.Context, key lookup.Key) (*domain.Registration, error) {
	col, err := keyColumn(key, registrationKeys...)
	if err != nil {
		return nil, err
	}
	reg, err := scanRegistration(r.db.QueryRowContext(ctx,
		`DELETE FROM registrations WHERE `+col+` = $1 RETURNING `+registrationColumns, key.Value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, mapError("delete registration", err)
	}
	return reg, nil
}

func (r *RegistrationRepo) Stats(ctx context.Context) (domain.RegistrationStats, error) {
	st := domain.RegistrationStats{ByExperience: map[string]int{}}
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'registered'),
		       COUNT(*) FILTER (WHERE status = 'confirmed'),
		       COUNT(*) FILTER (WHERE status = 'cancelled'),
		       COUNT(*) FILTER (WHERE status = 'attended'),
		       COUNT(*) FILTER (WHERE confirmation_email_sent),
		       COUNT(*) FILTER (WHERE admin_notified),
		       COUNT(*) FILTER (WHERE newsletter)
		FROM registrations
	`).Scan(&st.Total, &st.Registered, &st.Confirmed, &st.Cancelled, &st.Attended,
		&st.ConfirmationsSent, &st.AdminNotified, &st.NewsletterOptIns)
	if err != nil {
		return domain.RegistrationStats{}, mapError("registration stats", err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT experience, COUNT(*) FROM registrations GROUP BY experience`)
	if err != nil {
		return domain.RegistrationStats{}, mapError("registration experience stats", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			exp string
			n   int
		)
		if err := rows.Scan(&exp, &n); err != nil {
			return domain.RegistrationStats{}, mapError("scan experience stats", err)
		}
		st.ByExperience[exp] = n
	}
	return st, mapError("registration experience stats", rows.Err())
}

func (r *RegistrationRepo) Recipients(ctx context.Context) ([]domain.Registration, error) {
	return r.list(ctx, `SELECT `+registrationColumns+` FROM registrations
		WHERE status <> 'cancelled' ORDER BY created_at, id`)
}
