package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"bidline/internal/db"
	"bidline/internal/domain"
	"bidline/internal/events"
	"bidline/internal/metrics"
	"bidline/internal/repo"
)

// RetryPolicy bounds how often a transaction that failed with a storage
// error is replayed.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetry matches the engine.retry defaults of the config file.
var DefaultRetry = RetryPolicy{MaxAttempts: 3, BaseDelay: 25 * time.Millisecond, MaxDelay: 500 * time.Millisecond}

// Engine runs the engagement lifecycle. It is the only writer of
// Project.status; every operation is one transaction.
type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Retry   RetryPolicy
	Now     func() time.Time
}

func New(conn *sql.DB, dialect db.Dialect) Engine {
	return Engine{
		DB:     conn,
		Repo:   repo.New(conn, dialect),
		Events: events.Writer{Dialect: dialect},
		Retry:  DefaultRetry,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return domain.Timestamp(e.now())
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (e Engine) appendEvent(ctx context.Context, t *txn, evtType, projectID, entityKind, entityID, actorID string, payload events.EventPayload) error {
	w := e.Events
	w.Now = e.now
	return w.Append(ctx, t.Tx, evtType, projectID, entityKind, entityID, actorID, payload)
}

// txn is one attempt of a unit of work. Status moves are collected and
// only reported once the transaction committed.
type txn struct {
	*sql.Tx
	moves []move
}

type move struct {
	entity, id, from, to, actor string
}

func (t *txn) moved(entity, id, from, to, actor string) {
	t.moves = append(t.moves, move{entity: entity, id: id, from: from, to: to, actor: actor})
}

// run executes fn in a transaction, replaying it with exponential backoff
// while it fails with domain.ErrStorage.
func (e Engine) run(ctx context.Context, op string, fn func(t *txn) error) error {
	started := time.Now()
	policy := e.Retry
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	delay := policy.BaseDelay
	var err error
	for attempt := 1; ; attempt++ {
		var t *txn
		t, err = e.attempt(ctx, fn)
		if err == nil {
			e.report(op, t.moves)
			break
		}
		if !errors.Is(err, domain.ErrStorage) || attempt >= policy.MaxAttempts {
			break
		}
		e.Metrics.Retry()
		e.logger().Debug("retrying transaction", "operation", op, "attempt", attempt, "error", err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			e.Metrics.Observe(op, started, err)
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-timer.C:
		}
		delay *= 2
		if policy.MaxDelay > 0 && delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
	e.Metrics.Observe(op, started, err)
	if err != nil {
		level := slog.LevelDebug
		if errors.Is(err, domain.ErrStorage) {
			level = slog.LevelError
		}
		e.logger().Log(ctx, level, "operation failed", "operation", op, "outcome", domain.Outcome(err), "error", err)
	}
	return err
}

func (e Engine) attempt(ctx context.Context, fn func(t *txn) error) (*txn, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, db.Classify("begin", err)
	}
	defer tx.Rollback()
	t := &txn{Tx: tx}
	if err := fn(t); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, db.Classify("commit", err)
	}
	return t, nil
}

func (e Engine) report(op string, moves []move) {
	for _, m := range moves {
		e.Metrics.Transition(m.entity, m.from, m.to)
		e.logger().Info("status changed", "operation", op, "entity", m.entity, "id", m.id, "from", m.from, "to", m.to, "actor", m.actor)
	}
}

// authorize loads the caller inside t and checks its kind. Unknown ids are
// unauthenticated; actors of the wrong kind are unauthorized.
func (e Engine) authorize(ctx context.Context, t *txn, actorID string, kind domain.ActorKind) (domain.Actor, error) {
	if actorID == "" {
		return domain.Actor{}, domain.ErrUnauthenticated
	}
	a, err := e.Repo.GetActorTx(ctx, t.Tx, actorID)
	if errors.Is(err, domain.ErrNotFound) {
		return a, fmt.Errorf("actor %s: %w", actorID, domain.ErrUnauthenticated)
	}
	if err != nil {
		return a, err
	}
	if !a.Active {
		return a, fmt.Errorf("actor %s: %w", actorID, domain.ErrInactive)
	}
	if kind != "" && a.Kind != kind {
		return a, fmt.Errorf("actor %s is a %s: %w", actorID, a.Kind, domain.ErrUnauthorized)
	}
	return a, nil
}

// ownedProject locks a project and hides it from anyone but its client.
func (e Engine) ownedProject(ctx context.Context, t *txn, projectID, clientID string) (domain.Project, error) {
	p, err := e.Repo.LockProjectTx(ctx, t.Tx, projectID)
	if err != nil {
		return p, err
	}
	if p.ClientID != clientID {
		return domain.Project{}, domain.NotFound("project", projectID)
	}
	return p, nil
}
