package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"bidline/internal/db"
	"bidline/internal/domain"
)

// Repo is the entity store. Every read and write has a variant that runs
// inside a caller-owned transaction; passing a nil tx uses the pool.
type Repo struct {
	DB      *sql.DB
	Dialect db.Dialect
}

// ErrNotFound is kept for callers that match on the repo package.
var ErrNotFound = domain.ErrNotFound

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func New(conn *sql.DB, dialect db.Dialect) Repo {
	return Repo{DB: conn, Dialect: dialect}
}

func (r Repo) q(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.DB
}

func (r Repo) exec(ctx context.Context, tx *sql.Tx, query string, args ...any) (sql.Result, error) {
	return r.q(tx).ExecContext(ctx, r.Dialect.Rebind(query), args...)
}

func (r Repo) query(ctx context.Context, tx *sql.Tx, query string, args ...any) (*sql.Rows, error) {
	return r.q(tx).QueryContext(ctx, r.Dialect.Rebind(query), args...)
}

func (r Repo) queryRow(ctx context.Context, tx *sql.Tx, query string, args ...any) *sql.Row {
	return r.q(tx).QueryRowContext(ctx, r.Dialect.Rebind(query), args...)
}

// Cursor is a keyset position for newest-first listings.
type Cursor struct {
	CreatedAt string
	ID        string
}

func (c Cursor) Set() bool { return c.CreatedAt != "" && c.ID != "" }

// keyset appends the (created_at, id) cursor predicate and returns the
// ORDER/LIMIT tail.
func keyset(clauses []string, args []any, cur Cursor, limit int, prefix string) ([]string, []any, string) {
	if cur.Set() {
		clauses = append(clauses, "("+prefix+"created_at < ? OR ("+prefix+"created_at = ? AND "+prefix+"id < ?))")
		args = append(args, cur.CreatedAt, cur.CreatedAt, cur.ID)
	}
	tail := " ORDER BY " + prefix + "created_at DESC, " + prefix + "id DESC"
	if limit > 0 {
		tail += " LIMIT ?"
		args = append(args, limit)
	}
	return clauses, args, tail
}

func where(clauses []string) string {
	if len(clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(clauses, " AND ")
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func rowsAffected(res sql.Result) int64 {
	n, _ := res.RowsAffected()
	return n
}

func encodeSkills(skills []string) string {
	if skills == nil {
		skills = []string{}
	}
	data, _ := json.Marshal(skills)
	return string(data)
}

func decodeSkills(raw string) []string {
	out := []string{}
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}
