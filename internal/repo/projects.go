package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"bidline/internal/db"
	"bidline/internal/domain"
)

const projectColumns = `id,client_id,title,description,COALESCE(budget_range,''),COALESCE(currency,''),COALESCE(duration,''),skills_json,status,COALESCE(submission_document,''),COALESCE(submission_github_link,''),escrow,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (domain.Project, error) {
	var p domain.Project
	var skills string
	err := row.Scan(&p.ID, &p.ClientID, &p.Title, &p.Description, &p.BudgetRange, &p.Currency, &p.Duration,
		&skills, &p.Status, &p.SubmissionDocument, &p.SubmissionGithubLink, &p.Escrow, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, err
	}
	p.Skills = decodeSkills(skills)
	return p, nil
}

func (r Repo) InsertProjectTx(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := r.exec(ctx, tx, `INSERT INTO projects(id,client_id,title,description,budget_range,currency,duration,skills_json,status,escrow,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.ClientID, p.Title, p.Description, nullable(p.BudgetRange), nullable(p.Currency), nullable(p.Duration),
		encodeSkills(p.Skills), p.Status, p.Escrow, p.CreatedAt, p.UpdatedAt)
	return db.Classify("insert project", err)
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return r.getProject(ctx, nil, id, false)
}

// LockProjectTx reads a project and holds its row lock for the rest of tx.
func (r Repo) LockProjectTx(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	return r.getProject(ctx, tx, id, true)
}

func (r Repo) GetProjectTx(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	return r.getProject(ctx, tx, id, false)
}

func (r Repo) getProject(ctx context.Context, tx *sql.Tx, id string, lock bool) (domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id=?`
	if lock {
		query += r.Dialect.ForUpdate()
	}
	p, err := scanProject(r.queryRow(ctx, tx, query, id))
	if err == sql.ErrNoRows {
		return p, domain.NotFound("project", id)
	}
	if err != nil {
		return p, db.Classify("get project", err)
	}
	return p, nil
}

// ProjectFilters narrows ListProjects.
type ProjectFilters struct {
	ClientID string
	Status   string
	// BidderID keeps projects the provider has bid on.
	BidderID           string
	SubmissionDocument string
	Limit              int
	Cursor             Cursor
}

func (r Repo) ListProjects(ctx context.Context, f ProjectFilters) ([]domain.Project, error) {
	var clauses []string
	var args []any
	if f.ClientID != "" {
		clauses = append(clauses, "client_id=?")
		args = append(args, f.ClientID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.BidderID != "" {
		clauses = append(clauses, "EXISTS (SELECT 1 FROM bids b WHERE b.project_id=projects.id AND b.service_provider_id=?)")
		args = append(args, f.BidderID)
	}
	if f.SubmissionDocument != "" {
		clauses = append(clauses, "submission_document=?")
		args = append(args, f.SubmissionDocument)
	}
	clauses, args, tail := keyset(clauses, args, f.Cursor, f.Limit, "")
	rows, err := r.query(ctx, nil, `SELECT `+projectColumns+` FROM projects`+where(clauses)+tail, args...)
	if err != nil {
		return nil, db.Classify("list projects", err)
	}
	defer rows.Close()
	res := []domain.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// UpdateProjectFieldsTx applies the non-nil descriptive fields of patch.
func (r Repo) UpdateProjectFieldsTx(ctx context.Context, tx *sql.Tx, id string, patch domain.ProjectPatch, updatedAt string) error {
	var (
		fields []string
		args   []any
	)
	if patch.Title != nil {
		fields = append(fields, "title=?")
		args = append(args, *patch.Title)
	}
	if patch.Description != nil {
		fields = append(fields, "description=?")
		args = append(args, *patch.Description)
	}
	if patch.BudgetRange != nil {
		fields = append(fields, "budget_range=?")
		args = append(args, nullable(*patch.BudgetRange))
	}
	if patch.Currency != nil {
		fields = append(fields, "currency=?")
		args = append(args, nullable(*patch.Currency))
	}
	if patch.Duration != nil {
		fields = append(fields, "duration=?")
		args = append(args, nullable(*patch.Duration))
	}
	if patch.Skills != nil {
		fields = append(fields, "skills_json=?")
		args = append(args, encodeSkills(*patch.Skills))
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, updatedAt, id)
	res, err := r.exec(ctx, tx, fmt.Sprintf(`UPDATE projects SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return db.Classify("update project", err)
	}
	if rowsAffected(res) == 0 {
		return domain.NotFound("project", id)
	}
	return nil
}

// TransitionProjectTx moves a project from one status to another. It only
// matches rows still in from, so a concurrent writer that got there first
// leaves zero rows affected and the caller sees ErrInvalidState.
func (r Repo) TransitionProjectTx(ctx context.Context, tx *sql.Tx, id, from, to, updatedAt string) error {
	res, err := r.exec(ctx, tx, `UPDATE projects SET status=?, updated_at=? WHERE id=? AND status=?`, to, updatedAt, id, from)
	if err != nil {
		return db.Classify("transition project", err)
	}
	if rowsAffected(res) == 0 {
		current, getErr := r.GetProjectTx(ctx, tx, id)
		if getErr != nil {
			return getErr
		}
		return domain.NewStateError("project", id, from, current.Status)
	}
	return nil
}

// RecordSubmissionTx stores the work submission once; a project that
// already carries a submission is left untouched.
func (r Repo) RecordSubmissionTx(ctx context.Context, tx *sql.Tx, id, document, githubLink, updatedAt string) error {
	res, err := r.exec(ctx, tx, `UPDATE projects SET submission_document=?, submission_github_link=?, updated_at=?
WHERE id=? AND submission_document IS NULL AND submission_github_link IS NULL`,
		nullable(document), nullable(githubLink), updatedAt, id)
	if err != nil {
		return db.Classify("record submission", err)
	}
	if rowsAffected(res) == 0 {
		return domain.NewStateError("project", id, "no prior submission", "submitted")
	}
	return nil
}

// ReleaseEscrowTx sets the escrow flag to released if it has not been.
func (r Repo) ReleaseEscrowTx(ctx context.Context, tx *sql.Tx, id, updatedAt string) error {
	res, err := r.exec(ctx, tx, `UPDATE projects SET escrow=?, updated_at=? WHERE id=? AND escrow<>?`,
		domain.EscrowReleased, updatedAt, id, domain.EscrowReleased)
	if err != nil {
		return db.Classify("release escrow", err)
	}
	if rowsAffected(res) == 0 {
		return domain.NewStateError("project", id, "escrow not released", domain.EscrowReleased)
	}
	return nil
}

// DeleteProjectTx removes a project; bids go with it through ON DELETE CASCADE.
func (r Repo) DeleteProjectTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.exec(ctx, tx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return db.Classify("delete project", err)
	}
	if rowsAffected(res) == 0 {
		return domain.NotFound("project", id)
	}
	return nil
}
