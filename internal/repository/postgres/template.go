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
)

const templateColumns = `id, name, subject, body, created_by, usage_count, last_used, created_at, updated_at`

// TemplateRepo implements templates.Repository against PostgreSQL.
type TemplateRepo struct {
	db *sql.DB
}

func NewTemplateRepo(db *sql.DB) *TemplateRepo { return &TemplateRepo{db: db} }

func scanTemplate(row rowScanner) (*domain.EmailTemplate, error) {
	var (
		t    domain.EmailTemplate
		used sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Subject, &t.Body, &t.CreatedBy, &t.UsageCount, &used,
		&t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.LastUsed = timePtr(used)
	return &t, nil
}

func (r *TemplateRepo) Create(ctx context.Context, t *domain.EmailTemplate) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO email_templates (`+templateColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, t.ID, t.Name, t.Subject, t.Body, t.CreatedBy, t.UsageCount, nullTime(t.LastUsed), t.CreatedAt, t.UpdatedAt)
	return mapError("create template", err)
}

func (r *TemplateRepo) one(ctx context.Context, op, stmt string, args ...interface{}) (*domain.EmailTemplate, error) {
	t, err := scanTemplate(r.db.QueryRowContext(ctx, stmt, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, mapError(op, err)
	}
	return t, nil
}

func (r *TemplateRepo) FindOne(ctx context.Context, key lookup.Key) (*domain.EmailTemplate, error) {
	col, err := keyColumn(key, lookup.FieldID)
	if err != nil {
		return nil, err
	}
	return r.one(ctx, "get template", `SELECT `+templateColumns+` FROM email_templates WHERE `+col+` = $1`, key.Value)
}

func (r *TemplateRepo) Find(ctx context.Context, q query.List) ([]domain.EmailTemplate, int, error) {
	q = q.Normalize()
	var w where
	w.search(q.Search, "name", "subject")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM email_templates`+w.String(), w.vals...).Scan(&total); err != nil {
		return nil, 0, mapError("count templates", err)
	}
	stmt := fmt.Sprintf(`SELECT %s FROM email_templates%s ORDER BY created_at DESC, id DESC LIMIT %s OFFSET %s`,
		templateColumns, w.String(), w.add(q.Limit), w.add(q.Offset()))
	rows, err := r.db.QueryContext(ctx, stmt, w.vals...)
	if err != nil {
		return nil, 0, mapError("list templates", err)
	}
	defer rows.Close()

	out := []domain.EmailTemplate{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, 0, mapError("scan template", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapError("list templates", err)
	}
	return out, total, nil
}

func (r *TemplateRepo) FindOneAndDelete(ctx context.Context, key lookup.Key) (*domain.EmailTemplate, error) {
	col, err := keyColumn(key, lookup.FieldID)
	if err != nil {
		return nil, err
	}
	return r.one(ctx, "delete template",
		`DELETE FROM email_templates WHERE `+col+` = $1 RETURNING `+templateColumns, key.Value)
}

// MarkUsed bumps the usage counter in the database so concurrent campaigns
// never lose an increment.
func (r *TemplateRepo) MarkUsed(ctx context.Context, key lookup.Key, at time.Time) (*domain.EmailTemplate, error) {
	col, err := keyColumn(key, lookup.FieldID)
	if err != nil {
		return nil, err
	}
	return r.one(ctx, "mark template used", `
		UPDATE email_templates
		SET usage_count = usage_count + 1, last_used = $2, updated_at = $2
		WHERE `+col+` = $1
		RETURNING `+templateColumns, key.Value, at)
}
