package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"bidline/internal/domain"
)

// Classify maps driver errors onto the domain taxonomy: unique violations
// become ErrConflict, lock contention and serialization failures become a
// retryable *domain.StorageError. Other errors are wrapped with op.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		switch {
		case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE, code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY,
			code == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqliteErr.Error(), "UNIQUE"):
			return fmt.Errorf("%s: %w: %v", op, domain.ErrConflict, err)
		case code&0xff == sqlite3.SQLITE_BUSY, code&0xff == sqlite3.SQLITE_LOCKED:
			return &domain.StorageError{Op: op, Err: err}
		}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%s: %w: %s", op, domain.ErrConflict, pgErr.Message)
		case "40001", "40P01", "55P03":
			return &domain.StorageError{Op: op, Err: err}
		}
	}
	if errors.Is(err, sql.ErrConnDone) {
		return &domain.StorageError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
