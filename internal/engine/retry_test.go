package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"bidline/internal/db"
	"bidline/internal/domain"
	"bidline/internal/metrics"
	"bidline/internal/migrate"
)

func newRetryEngine(t *testing.T) Engine {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn, db.SQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := New(conn, db.SQLite)
	e.Metrics = metrics.New()
	e.Retry = RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	return e
}

func TestRunRetriesStorageFailures(t *testing.T) {
	e := newRetryEngine(t)
	attempts := 0
	err := e.run(context.Background(), "retry_check", func(t *txn) error {
		attempts++
		if attempts < 3 {
			return &domain.StorageError{Op: "write", Err: errors.New("database is locked")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	expected := `
# HELP bidline_tx_retries_total Transactions retried after a storage failure.
# TYPE bidline_tx_retries_total counter
bidline_tx_retries_total 2
`
	if err := testutil.GatherAndCompare(e.Metrics.Registry, strings.NewReader(expected), "bidline_tx_retries_total"); err != nil {
		t.Fatalf("retry metric: %v", err)
	}
}

func TestRunGivesUpAfterMaxAttempts(t *testing.T) {
	e := newRetryEngine(t)
	attempts := 0
	err := e.run(context.Background(), "retry_check", func(t *txn) error {
		attempts++
		return &domain.StorageError{Op: "write", Err: errors.New("serialization failure")}
	})
	if !errors.Is(err, domain.ErrStorage) || attempts != 3 {
		t.Fatalf("expected storage failure after 3 attempts, got %v after %d", err, attempts)
	}
}

func TestRunDoesNotRetryDomainErrors(t *testing.T) {
	e := newRetryEngine(t)
	attempts := 0
	err := e.run(context.Background(), "retry_check", func(t *txn) error {
		attempts++
		return domain.NewStateError("project", "p1", domain.ProjectOpen, domain.ProjectCompleted)
	})
	if !errors.Is(err, domain.ErrInvalidState) || attempts != 1 {
		t.Fatalf("expected one attempt with ErrInvalidState, got %v after %d", err, attempts)
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to string
		ok       bool
	}{
		{domain.ProjectOpen, domain.ProjectPendingContract, true},
		{domain.ProjectPendingContract, domain.ProjectInProgress, true},
		{domain.ProjectInProgress, domain.ProjectAwaitingReview, true},
		{domain.ProjectAwaitingReview, domain.ProjectCompleted, true},
		{domain.ProjectInProgress, domain.ProjectCancelled, true},
		{domain.ProjectOpen, domain.ProjectInProgress, false},
		{domain.ProjectCompleted, domain.ProjectCancelled, false},
		{domain.ProjectCancelled, domain.ProjectOpen, false},
		{domain.ProjectAwaitingReview, domain.ProjectInProgress, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.ok {
			t.Errorf("%s -> %s: got %v", tc.from, tc.to, got)
		}
	}
	if got := expectedFor(domain.ProjectCompleted); got != domain.ProjectAwaitingReview {
		t.Errorf("expectedFor(completed) = %s", got)
	}
}
