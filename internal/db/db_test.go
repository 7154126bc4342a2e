package db

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"bidline/internal/domain"
)

func TestRebind(t *testing.T) {
	q := `UPDATE projects SET status=?, title='why?' WHERE id=? AND status=?`
	if got := SQLite.Rebind(q); got != q {
		t.Fatalf("sqlite should keep query, got %s", got)
	}
	want := `UPDATE projects SET status=$1, title='why?' WHERE id=$2 AND status=$3`
	if got := Postgres.Rebind(q); got != want {
		t.Fatalf("rebind = %s", got)
	}
}

func TestForUpdate(t *testing.T) {
	if SQLite.ForUpdate() != "" {
		t.Fatalf("sqlite has no FOR UPDATE")
	}
	if Postgres.ForUpdate() != " FOR UPDATE" {
		t.Fatalf("postgres should lock rows")
	}
}

func TestClassifyPostgres(t *testing.T) {
	unique := fmt.Errorf("exec: %w", &pgconn.PgError{Code: "23505", Message: "duplicate key"})
	if err := Classify("insert contract", unique); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("unique violation should be conflict: %v", err)
	}
	serial := &pgconn.PgError{Code: "40001"}
	err := Classify("commit", serial)
	if !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("serialization failure should be storage error: %v", err)
	}
	if err := Classify("get", sql.ErrNoRows); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("no rows should be not found: %v", err)
	}
	plain := errors.New("boom")
	if err := Classify("x", plain); errors.Is(err, domain.ErrStorage) || !errors.Is(err, plain) {
		t.Fatalf("plain errors pass through: %v", err)
	}
}

func TestClassifySQLiteUnique(t *testing.T) {
	conn, err := Open(Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Exec(`CREATE TABLE t(id TEXT PRIMARY KEY, v TEXT UNIQUE)`); err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Exec(`INSERT INTO t(id,v) VALUES ('a','x')`); err != nil {
		t.Fatal(err)
	}
	_, err = conn.Exec(`INSERT INTO t(id,v) VALUES ('b','x')`)
	if err := Classify("insert", err); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}
