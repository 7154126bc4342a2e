package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"bidline/internal/db"
	"bidline/internal/domain"
)

const eventColumns = `id,ts,type,COALESCE(project_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json`

func (r Repo) scanEvents(rows *sql.Rows) ([]domain.Event, error) {
	defer rows.Close()
	res := []domain.Event{}
	for rows.Next() {
		var e domain.Event
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.ProjectID, &e.EntityKind, &e.EntityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// EventFilters narrows LatestEvents.
type EventFilters struct {
	ProjectID  string
	Type       string
	EntityKind string
	EntityID   string
	// Before returns events with ids strictly below it when non-zero.
	Before int64
	Limit  int
}

// LatestEvents returns events newest first.
func (r Repo) LatestEvents(ctx context.Context, f EventFilters) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.EntityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if f.Before > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.Before)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM events WHERE %s ORDER BY id DESC LIMIT ?`, eventColumns, strings.Join(clauses, " AND "))
	args = append(args, limit)
	rows, err := r.query(ctx, nil, query, args...)
	if err != nil {
		return nil, db.Classify("list events", err)
	}
	return r.scanEvents(rows)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.query(ctx, nil, `SELECT `+eventColumns+` FROM events WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, db.Classify("events after", err)
	}
	return r.scanEvents(rows)
}

// LatestEventID returns the most recent event ID.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	if err := r.queryRow(ctx, nil, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&id); err != nil {
		return 0, db.Classify("latest event id", err)
	}
	return id, nil
}

// RelayCursor returns the last event id delivered to sink. ok is false
// when the sink has never recorded a position.
func (r Repo) RelayCursor(ctx context.Context, sink string) (id int64, ok bool, err error) {
	err = r.queryRow(ctx, nil, `SELECT last_event_id FROM relay_cursors WHERE sink=?`, sink).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, db.Classify("get relay cursor", err)
	}
	return id, true, nil
}

// SetRelayCursor persists the delivery position of sink.
func (r Repo) SetRelayCursor(ctx context.Context, sink string, id int64, updatedAt string) error {
	_, err := r.exec(ctx, nil, `INSERT INTO relay_cursors(sink,last_event_id,updated_at) VALUES (?,?,?)
ON CONFLICT(sink) DO UPDATE SET last_event_id=excluded.last_event_id, updated_at=excluded.updated_at`, sink, id, updatedAt)
	return db.Classify("set relay cursor", err)
}
