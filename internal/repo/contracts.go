package repo

import (
	"context"
	"database/sql"
	"fmt"

	"bidline/internal/db"
	"bidline/internal/domain"
)

const contractColumns = `id,project_id,bid_id,client_id,service_provider_id,terms,client_signature,COALESCE(service_provider_signature,''),status,created_at,updated_at`

func scanContract(row rowScanner) (domain.Contract, error) {
	var c domain.Contract
	err := row.Scan(&c.ID, &c.ProjectID, &c.BidID, &c.ClientID, &c.ServiceProviderID, &c.Terms,
		&c.ClientSignature, &c.ServiceProviderSignature, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// InsertContractTx stores a new contract. A second contract for the same
// bid violates the unique bid_id column and surfaces as ErrConflict.
func (r Repo) InsertContractTx(ctx context.Context, tx *sql.Tx, c domain.Contract) error {
	_, err := r.exec(ctx, tx, `INSERT INTO contracts(id,project_id,bid_id,client_id,service_provider_id,terms,client_signature,service_provider_signature,status,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.ProjectID, c.BidID, c.ClientID, c.ServiceProviderID, c.Terms, c.ClientSignature,
		nullable(c.ServiceProviderSignature), c.Status, c.CreatedAt, c.UpdatedAt)
	return db.Classify("insert contract", err)
}

func (r Repo) GetContract(ctx context.Context, id string) (domain.Contract, error) {
	return r.GetContractTx(ctx, nil, id)
}

func (r Repo) GetContractTx(ctx context.Context, tx *sql.Tx, id string) (domain.Contract, error) {
	return r.getContract(ctx, tx, id, false)
}

// LockContractTx reads a contract and holds its row lock for the rest of tx.
func (r Repo) LockContractTx(ctx context.Context, tx *sql.Tx, id string) (domain.Contract, error) {
	return r.getContract(ctx, tx, id, true)
}

func (r Repo) getContract(ctx context.Context, tx *sql.Tx, id string, lock bool) (domain.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts WHERE id=?`
	if lock {
		query += r.Dialect.ForUpdate()
	}
	c, err := scanContract(r.queryRow(ctx, tx, query, id))
	if err == sql.ErrNoRows {
		return c, domain.NotFound("contract", id)
	}
	if err != nil {
		return c, db.Classify("get contract", err)
	}
	return c, nil
}

// ContractForBidTx returns the contract created from bidID, if any.
func (r Repo) ContractForBidTx(ctx context.Context, tx *sql.Tx, bidID string) (domain.Contract, error) {
	c, err := scanContract(r.queryRow(ctx, tx, `SELECT `+contractColumns+` FROM contracts WHERE bid_id=?`, bidID))
	if err == sql.ErrNoRows {
		return c, fmt.Errorf("contract for bid %s: %w", bidID, domain.ErrNotFound)
	}
	if err != nil {
		return c, db.Classify("get contract by bid", err)
	}
	return c, nil
}

// CountContractsForProjectTx reports how many contracts reference a project.
func (r Repo) CountContractsForProjectTx(ctx context.Context, tx *sql.Tx, projectID string) (int, error) {
	var n int
	if err := r.queryRow(ctx, tx, `SELECT COUNT(*) FROM contracts WHERE project_id=?`, projectID).Scan(&n); err != nil {
		return 0, db.Classify("count contracts", err)
	}
	return n, nil
}

// CounterSignTx records the provider signature on a contract that is still
// client_signed.
func (r Repo) CounterSignTx(ctx context.Context, tx *sql.Tx, id, signature, updatedAt string) error {
	res, err := r.exec(ctx, tx, `UPDATE contracts SET service_provider_signature=?, status=?, updated_at=? WHERE id=? AND status=?`,
		signature, domain.ContractFullySigned, updatedAt, id, domain.ContractClientSigned)
	if err != nil {
		return db.Classify("counter-sign contract", err)
	}
	if rowsAffected(res) == 0 {
		current, getErr := r.GetContractTx(ctx, tx, id)
		if getErr != nil {
			return getErr
		}
		return domain.NewStateError("contract", id, domain.ContractClientSigned, current.Status)
	}
	return nil
}

// ContractFilters narrows ListContracts.
type ContractFilters struct {
	ClientID          string
	ServiceProviderID string
	ProjectID         string
	// Signature matches either party's signature reference.
	Signature string
	Limit     int
	Cursor    Cursor
}

func (r Repo) ListContracts(ctx context.Context, f ContractFilters) ([]domain.Contract, error) {
	var clauses []string
	var args []any
	if f.ClientID != "" {
		clauses = append(clauses, "client_id=?")
		args = append(args, f.ClientID)
	}
	if f.ServiceProviderID != "" {
		clauses = append(clauses, "service_provider_id=?")
		args = append(args, f.ServiceProviderID)
	}
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.Signature != "" {
		clauses = append(clauses, "(client_signature=? OR service_provider_signature=?)")
		args = append(args, f.Signature, f.Signature)
	}
	clauses, args, tail := keyset(clauses, args, f.Cursor, f.Limit, "")
	rows, err := r.query(ctx, nil, `SELECT `+contractColumns+` FROM contracts`+where(clauses)+tail, args...)
	if err != nil {
		return nil, db.Classify("list contracts", err)
	}
	defer rows.Close()
	res := []domain.Contract{}
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
