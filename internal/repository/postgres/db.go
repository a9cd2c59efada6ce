// Package postgres implements the service repositories on PostgreSQL via
// database/sql and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/techgrid/site-backend/internal/domain"
	"github.com/techgrid/site-backend/internal/lookup"
)

// SQLSTATE codes mapped to domain errors.
const (
	uniqueViolation = "23505"
	checkViolation  = "23514"
)

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// mapError translates driver errors into domain errors. Unique violations
// become *domain.DuplicateKeyError naming the column, read from the
// "<table>_<column>_key" constraint name.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case uniqueViolation:
			return &domain.DuplicateKeyError{Field: constraintField(pqErr.Table, pqErr.Constraint)}
		case checkViolation:
			field := strings.TrimSuffix(constraintField(pqErr.Table, pqErr.Constraint), "_check")
			return domain.NewValidationError(field, "Invalid value")
		}
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%s: %w", op, domain.ErrUnavailable)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func constraintField(table, constraint string) string {
	if strings.HasSuffix(constraint, "_pkey") {
		return lookup.FieldID
	}
	c := strings.TrimSuffix(constraint, "_key")
	return strings.TrimPrefix(c, table+"_")
}

// keyColumn returns the column for key if the table allows looking up by it.
func keyColumn(key lookup.Key, allowed ...string) (string, error) {
	for _, a := range allowed {
		if key.Field == a {
			return a, nil
		}
	}
	return "", fmt.Errorf("lookup by %q is not supported: %w", key.Field, domain.ErrNotFound)
}

// args accumulates positional parameters.
type args struct {
	vals []interface{}
}

// add appends v and returns its placeholder.
func (a *args) add(v interface{}) string {
	a.vals = append(a.vals, v)
	return fmt.Sprintf("$%d", len(a.vals))
}

// where builds an AND-combined WHERE clause.
type where struct {
	args
	clauses []string
}

func (w *where) eq(col string, v interface{}) {
	w.clauses = append(w.clauses, col+" = "+w.add(v))
}

// search adds a case-insensitive substring match over cols.
func (w *where) search(term string, cols ...string) {
	if term == "" {
		return
	}
	p := w.add("%" + escapeLike(term) + "%")
	ors := make([]string, 0, len(cols))
	for _, c := range cols {
		ors = append(ors, c+" ILIKE "+p)
	}
	w.clauses = append(w.clauses, "("+strings.Join(ors, " OR ")+")")
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// set builds the SET list of an UPDATE.
type set struct {
	args
	cols []string
}

func (s *set) to(col string, v interface{}) {
	s.cols = append(s.cols, col+" = "+s.add(v))
}

// raw adds an expression that takes no parameter.
func (s *set) raw(expr string) {
	s.cols = append(s.cols, expr)
}

func (s *set) String() string { return strings.Join(s.cols, ", ") }

// guardedUpdate runs an UPDATE ... RETURNING built from s and scans the row.
// When no row comes back it tells a missing row (domain.ErrNotFound) from a
// failed guard (domain.ErrPreconditionFailed).
func guardedUpdate(ctx context.Context, db *sql.DB, table, cols, keyCol, keyVal string, s *set, guard string, scan func(*sql.Row) error) error {
	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s", table, s.String(), keyCol, s.add(keyVal))
	if guard != "" {
		q += " AND " + guard
	}
	q += " RETURNING " + cols

	err := scan(db.QueryRowContext(ctx, q, s.vals...))
	if !errors.Is(err, sql.ErrNoRows) {
		return mapError("update "+table, err)
	}
	if guard == "" {
		return domain.ErrNotFound
	}
	var exists bool
	if err := db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE %s = $1)", table, keyCol), keyVal,
	).Scan(&exists); err != nil {
		return mapError("check "+table, err)
	}
	if exists {
		return domain.ErrPreconditionFailed
	}
	return domain.ErrNotFound
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time.UTC()
	return &t
}

// pqStrings wraps a string slice for a text[] parameter.
func pqStrings(v []string) interface{} {
	if v == nil {
		v = []string{}
	}
	return pq.Array(v)
}
