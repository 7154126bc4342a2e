package repo

import (
	"context"
	"database/sql"

	"bidline/internal/db"
	"bidline/internal/domain"
)

const documentColumns = `ref,kind,owner_id,size,created_at`

func (r Repo) InsertDocumentTx(ctx context.Context, tx *sql.Tx, d domain.Document) error {
	_, err := r.exec(ctx, tx, `INSERT INTO documents(ref,kind,owner_id,size,created_at) VALUES (?,?,?,?,?)`,
		d.Ref, d.Kind, d.OwnerID, d.Size, d.CreatedAt)
	return db.Classify("insert document", err)
}

func (r Repo) GetDocument(ctx context.Context, ref string) (domain.Document, error) {
	return r.GetDocumentTx(ctx, nil, ref)
}

func (r Repo) GetDocumentTx(ctx context.Context, tx *sql.Tx, ref string) (domain.Document, error) {
	var d domain.Document
	err := r.queryRow(ctx, tx, `SELECT `+documentColumns+` FROM documents WHERE ref=?`, ref).
		Scan(&d.Ref, &d.Kind, &d.OwnerID, &d.Size, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return d, domain.NotFound("document", ref)
	}
	if err != nil {
		return d, db.Classify("get document", err)
	}
	return d, nil
}
