package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"bidline/internal/db"
	"bidline/internal/domain"
)

const bidColumns = `id,project_id,service_provider_id,amount,currency,cover_letter,status,created_at,updated_at`

func scanBid(row rowScanner) (domain.Bid, error) {
	var b domain.Bid
	err := row.Scan(&b.ID, &b.ProjectID, &b.ServiceProviderID, &b.Amount, &b.Currency, &b.CoverLetter, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

func (r Repo) InsertBidTx(ctx context.Context, tx *sql.Tx, b domain.Bid) error {
	_, err := r.exec(ctx, tx, `INSERT INTO bids(id,project_id,service_provider_id,amount,currency,cover_letter,status,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		b.ID, b.ProjectID, b.ServiceProviderID, b.Amount, b.Currency, b.CoverLetter, b.Status, b.CreatedAt, b.UpdatedAt)
	return db.Classify("insert bid", err)
}

func (r Repo) GetBid(ctx context.Context, id string) (domain.Bid, error) {
	return r.GetBidTx(ctx, nil, id)
}

func (r Repo) GetBidTx(ctx context.Context, tx *sql.Tx, id string) (domain.Bid, error) {
	b, err := scanBid(r.queryRow(ctx, tx, `SELECT `+bidColumns+` FROM bids WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return b, domain.NotFound("bid", id)
	}
	if err != nil {
		return b, db.Classify("get bid", err)
	}
	return b, nil
}

// BidFilters narrows ListBids.
type BidFilters struct {
	ProjectID         string
	ServiceProviderID string
	Status            string
	Limit             int
	Cursor            Cursor
}

func (r Repo) ListBids(ctx context.Context, f BidFilters) ([]domain.Bid, error) {
	return r.ListBidsTx(ctx, nil, f)
}

func (r Repo) ListBidsTx(ctx context.Context, tx *sql.Tx, f BidFilters) ([]domain.Bid, error) {
	var clauses []string
	var args []any
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.ServiceProviderID != "" {
		clauses = append(clauses, "service_provider_id=?")
		args = append(args, f.ServiceProviderID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	clauses, args, tail := keyset(clauses, args, f.Cursor, f.Limit, "")
	rows, err := r.query(ctx, tx, `SELECT `+bidColumns+` FROM bids`+where(clauses)+tail, args...)
	if err != nil {
		return nil, db.Classify("list bids", err)
	}
	defer rows.Close()
	res := []domain.Bid{}
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

// AmendBidTx writes the non-nil fields of patch to a bid that is still
// pending. A bid that left pending in the meantime yields ErrInvalidState.
func (r Repo) AmendBidTx(ctx context.Context, tx *sql.Tx, id string, patch domain.BidPatch, updatedAt string) error {
	var (
		fields []string
		args   []any
	)
	if patch.Amount != nil {
		fields = append(fields, "amount=?")
		args = append(args, *patch.Amount)
	}
	if patch.Currency != nil {
		fields = append(fields, "currency=?")
		args = append(args, *patch.Currency)
	}
	if patch.CoverLetter != nil {
		fields = append(fields, "cover_letter=?")
		args = append(args, *patch.CoverLetter)
	}
	if patch.Status != nil {
		fields = append(fields, "status=?")
		args = append(args, *patch.Status)
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, updatedAt, id, domain.BidPending)
	res, err := r.exec(ctx, tx, fmt.Sprintf(`UPDATE bids SET %s WHERE id=? AND status=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return db.Classify("amend bid", err)
	}
	if rowsAffected(res) == 0 {
		current, getErr := r.GetBidTx(ctx, tx, id)
		if getErr != nil {
			return getErr
		}
		return domain.NewStateError("bid", id, domain.BidPending, current.Status)
	}
	return nil
}

// AcceptBidTx marks one pending bid accepted and rejects every other bid
// on the same project.
func (r Repo) AcceptBidTx(ctx context.Context, tx *sql.Tx, projectID, bidID, updatedAt string) (rejected int64, err error) {
	res, err := r.exec(ctx, tx, `UPDATE bids SET status=?, updated_at=? WHERE id=? AND project_id=? AND status=?`,
		domain.BidAccepted, updatedAt, bidID, projectID, domain.BidPending)
	if err != nil {
		return 0, db.Classify("accept bid", err)
	}
	if rowsAffected(res) == 0 {
		current, getErr := r.GetBidTx(ctx, tx, bidID)
		if getErr != nil {
			return 0, getErr
		}
		return 0, domain.NewStateError("bid", bidID, domain.BidPending, current.Status)
	}
	res, err = r.exec(ctx, tx, `UPDATE bids SET status=?, updated_at=? WHERE project_id=? AND id<>? AND status<>?`,
		domain.BidRejected, updatedAt, projectID, bidID, domain.BidRejected)
	if err != nil {
		return 0, db.Classify("reject bids", err)
	}
	return rowsAffected(res), nil
}

// AcceptedBidTx returns the accepted bid of a project held by provider.
func (r Repo) AcceptedBidTx(ctx context.Context, tx *sql.Tx, projectID, providerID string) (domain.Bid, error) {
	b, err := scanBid(r.queryRow(ctx, tx, `SELECT `+bidColumns+` FROM bids WHERE project_id=? AND service_provider_id=? AND status=?`,
		projectID, providerID, domain.BidAccepted))
	if err == sql.ErrNoRows {
		return b, fmt.Errorf("accepted bid on project %s for provider %s: %w", projectID, providerID, domain.ErrNotFound)
	}
	if err != nil {
		return b, db.Classify("get accepted bid", err)
	}
	return b, nil
}
