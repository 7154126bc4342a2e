package repo

import (
	"context"
	"database/sql"
	"errors"

	"bidline/internal/db"
	"bidline/internal/domain"
)

const actorColumns = `id,kind,COALESCE(name,''),COALESCE(email,''),active,created_at`

func scanActor(row rowScanner) (domain.Actor, error) {
	var a domain.Actor
	var kind string
	err := row.Scan(&a.ID, &kind, &a.Name, &a.Email, &a.Active, &a.CreatedAt)
	a.Kind = domain.ActorKind(kind)
	return a, err
}

// InsertActor registers a client or service provider.
func (r Repo) InsertActor(ctx context.Context, tx *sql.Tx, a domain.Actor) error {
	if a.ID == "" {
		return errors.New("id required")
	}
	if !a.Kind.Valid() {
		return domain.Invalid("actor kind %q", a.Kind)
	}
	_, err := r.exec(ctx, tx, `INSERT INTO actors(id,kind,name,email,active,created_at) VALUES (?,?,?,?,?,?)`,
		a.ID, string(a.Kind), nullable(a.Name), nullable(a.Email), a.Active, a.CreatedAt)
	return db.Classify("insert actor", err)
}

func (r Repo) GetActor(ctx context.Context, id string) (domain.Actor, error) {
	return r.GetActorTx(ctx, nil, id)
}

func (r Repo) GetActorTx(ctx context.Context, tx *sql.Tx, id string) (domain.Actor, error) {
	a, err := scanActor(r.queryRow(ctx, tx, `SELECT `+actorColumns+` FROM actors WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return a, domain.NotFound("actor", id)
	}
	if err != nil {
		return a, db.Classify("get actor", err)
	}
	return a, nil
}

// ListActors returns actors, optionally filtered by kind.
func (r Repo) ListActors(ctx context.Context, kind domain.ActorKind) ([]domain.Actor, error) {
	query := `SELECT ` + actorColumns + ` FROM actors`
	var args []any
	if kind != "" {
		query += ` WHERE kind=?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.query(ctx, nil, query, args...)
	if err != nil {
		return nil, db.Classify("list actors", err)
	}
	defer rows.Close()
	res := []domain.Actor{}
	for rows.Next() {
		a, err := scanActor(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// SetActorActive flips the active flag.
func (r Repo) SetActorActive(ctx context.Context, tx *sql.Tx, id string, active bool) error {
	res, err := r.exec(ctx, tx, `UPDATE actors SET active=? WHERE id=?`, active, id)
	if err != nil {
		return db.Classify("set actor active", err)
	}
	if rowsAffected(res) == 0 {
		return domain.NotFound("actor", id)
	}
	return nil
}
