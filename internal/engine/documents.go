package engine

import (
	"context"
	"errors"
	"fmt"

	"bidline/internal/documents"
	"bidline/internal/domain"
	"bidline/internal/events"
	"bidline/internal/repo"
)

// RecordDocument registers an uploaded file as owned by its uploader.
func (e Engine) RecordDocument(ctx context.Context, ref, kind, ownerID string, size int64) (domain.Document, error) {
	if !documents.ValidKind(kind) {
		return domain.Document{}, domain.Invalid("unknown document kind %q", kind)
	}
	d := domain.Document{Ref: ref, Kind: kind, OwnerID: ownerID, Size: size, CreatedAt: e.stamp()}
	err := e.run(ctx, "record_document", func(t *txn) error {
		if _, err := e.authorize(ctx, t, ownerID, ""); err != nil {
			return err
		}
		if err := e.Repo.InsertDocumentTx(ctx, t.Tx, d); err != nil {
			return err
		}
		return e.appendEvent(ctx, t, events.DocumentUploaded, "", "document", ref, ownerID,
			events.EventPayload{"kind": kind, "size": size})
	})
	if err != nil {
		return domain.Document{}, fmt.Errorf("record document: %w", err)
	}
	return d, nil
}

// DocumentAccess returns the document behind ref when actor may read it:
// its uploader, either party of a contract signed with it, or the client
// and accepted provider of the project it was delivered to. Everyone else
// gets ErrNotFound.
func (e Engine) DocumentAccess(ctx context.Context, ref string, actor domain.Actor) (domain.Document, error) {
	d, err := e.Repo.GetDocument(ctx, ref)
	if err != nil {
		return domain.Document{}, err
	}
	if d.OwnerID == actor.ID {
		return d, nil
	}
	switch d.Kind {
	case documents.KindSignature:
		cs, err := e.Repo.ListContracts(ctx, repo.ContractFilters{Signature: ref})
		if err != nil {
			return domain.Document{}, err
		}
		for _, c := range cs {
			if c.ClientID == actor.ID || c.ServiceProviderID == actor.ID {
				return d, nil
			}
		}
	case documents.KindWork:
		ps, err := e.Repo.ListProjects(ctx, repo.ProjectFilters{SubmissionDocument: ref})
		if err != nil {
			return domain.Document{}, err
		}
		for _, p := range ps {
			party, err := e.projectParty(ctx, p, actor)
			if err != nil {
				return domain.Document{}, err
			}
			if party {
				return d, nil
			}
		}
	}
	return domain.Document{}, domain.NotFound("document", ref)
}

// claimDocument checks that a registered document cited by actorID was
// uploaded by it as kind. Unregistered references stay opaque strings and
// are never served by the download route.
func (e Engine) claimDocument(ctx context.Context, t *txn, ref, actorID, kind string) error {
	d, err := e.Repo.GetDocumentTx(ctx, t.Tx, ref)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if d.OwnerID != actorID {
		return domain.Invalid("document %s belongs to another actor", ref)
	}
	if d.Kind != kind {
		return domain.Invalid("document %s is a %s document, not %s", ref, d.Kind, kind)
	}
	return nil
}

// projectParty reports whether actor is the project's client or the
// provider whose bid was accepted.
func (e Engine) projectParty(ctx context.Context, p domain.Project, actor domain.Actor) (bool, error) {
	if actor.Client() {
		return p.ClientID == actor.ID, nil
	}
	_, err := e.Repo.AcceptedBidTx(ctx, nil, p.ID, actor.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}
