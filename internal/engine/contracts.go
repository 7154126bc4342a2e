package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"bidline/internal/documents"
	"bidline/internal/domain"
	"bidline/internal/events"
	"bidline/internal/repo"
)

// ContractInput carries the client's half of a contract.
type ContractInput struct {
	ProjectID    string
	BidID        string
	ClientID     string
	Terms        string
	SignatureRef string
}

// CreateContract opens a client_signed contract for an accepted bid. At
// most one contract exists per bid; a second attempt fails with ErrConflict.
func (e Engine) CreateContract(ctx context.Context, in ContractInput) (domain.Contract, error) {
	in.Terms = strings.TrimSpace(in.Terms)
	in.SignatureRef = strings.TrimSpace(in.SignatureRef)
	if in.Terms == "" {
		return domain.Contract{}, domain.Invalid("terms are required")
	}
	if in.SignatureRef == "" {
		return domain.Contract{}, domain.Invalid("client signature is required")
	}
	var c domain.Contract
	err := e.run(ctx, "create_contract", func(t *txn) error {
		if _, err := e.authorize(ctx, t, in.ClientID, domain.ActorClient); err != nil {
			return err
		}
		p, err := e.ownedProject(ctx, t, in.ProjectID, in.ClientID)
		if err != nil {
			return err
		}
		b, err := e.Repo.GetBidTx(ctx, t.Tx, in.BidID)
		if err != nil {
			return err
		}
		if b.ProjectID != p.ID {
			return domain.NotFound("bid", in.BidID)
		}
		if b.Status != domain.BidAccepted {
			return domain.NewStateError("bid", b.ID, domain.BidAccepted, b.Status)
		}
		existing, err := e.Repo.ContractForBidTx(ctx, t.Tx, b.ID)
		switch {
		case err == nil:
			return fmt.Errorf("contract %s already exists for bid %s: %w", existing.ID, b.ID, domain.ErrConflict)
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}
		if p.Status != domain.ProjectPendingContract {
			return domain.NewStateError("project", p.ID, domain.ProjectPendingContract, p.Status)
		}
		if err := e.claimDocument(ctx, t, in.SignatureRef, in.ClientID, documents.KindSignature); err != nil {
			return err
		}
		now := e.stamp()
		c = domain.Contract{
			ID:                uuid.NewString(),
			ProjectID:         p.ID,
			BidID:             b.ID,
			ClientID:          in.ClientID,
			ServiceProviderID: b.ServiceProviderID,
			Terms:             in.Terms,
			ClientSignature:   in.SignatureRef,
			Status:            domain.ContractClientSigned,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := e.Repo.InsertContractTx(ctx, t.Tx, c); err != nil {
			return err
		}
		return e.appendEvent(ctx, t, events.ContractCreated, p.ID, "contract", c.ID, in.ClientID,
			events.EventPayload{"bid_id": b.ID, "service_provider_id": b.ServiceProviderID})
	})
	if err != nil {
		return domain.Contract{}, fmt.Errorf("create contract: %w", err)
	}
	return c, nil
}

// CounterSignContract records the provider's signature, moving the
// contract to fully_signed and its project to in_progress together.
func (e Engine) CounterSignContract(ctx context.Context, contractID, providerID, signatureRef string) (domain.Contract, error) {
	signatureRef = strings.TrimSpace(signatureRef)
	if signatureRef == "" {
		return domain.Contract{}, domain.Invalid("service provider signature is required")
	}
	var c domain.Contract
	err := e.run(ctx, "counter_sign_contract", func(t *txn) error {
		if _, err := e.authorize(ctx, t, providerID, domain.ActorServiceProvider); err != nil {
			return err
		}
		var err error
		c, err = e.Repo.GetContractTx(ctx, t.Tx, contractID)
		if err != nil {
			return err
		}
		if c.ServiceProviderID != providerID {
			return domain.NotFound("contract", contractID)
		}
		p, err := e.Repo.LockProjectTx(ctx, t.Tx, c.ProjectID)
		if err != nil {
			return err
		}
		if c, err = e.Repo.LockContractTx(ctx, t.Tx, c.ID); err != nil {
			return err
		}
		if c.Status != domain.ContractClientSigned {
			return domain.NewStateError("contract", c.ID, domain.ContractClientSigned, c.Status)
		}
		if err := e.claimDocument(ctx, t, signatureRef, providerID, documents.KindSignature); err != nil {
			return err
		}
		now := e.stamp()
		if err := e.Repo.CounterSignTx(ctx, t.Tx, c.ID, signatureRef, now); err != nil {
			return err
		}
		t.moved("contract", c.ID, c.Status, domain.ContractFullySigned, providerID)
		c.ServiceProviderSignature = signatureRef
		c.Status = domain.ContractFullySigned
		c.UpdatedAt = now
		if err := e.appendEvent(ctx, t, events.ContractSigned, p.ID, "contract", c.ID, providerID, nil); err != nil {
			return err
		}
		return e.advanceProject(ctx, t, &p, domain.ProjectInProgress, providerID)
	})
	if err != nil {
		return domain.Contract{}, fmt.Errorf("counter-sign contract: %w", err)
	}
	return c, nil
}

// Contract returns a contract to either of its parties.
func (e Engine) Contract(ctx context.Context, contractID, actorID string) (domain.Contract, error) {
	c, err := e.Repo.GetContract(ctx, contractID)
	if err != nil {
		return c, err
	}
	if c.ClientID != actorID && c.ServiceProviderID != actorID {
		return domain.Contract{}, domain.NotFound("contract", contractID)
	}
	return c, nil
}

// Contracts lists the contracts actor is a party to.
func (e Engine) Contracts(ctx context.Context, actor domain.Actor, f repo.ContractFilters) ([]domain.Contract, error) {
	f.ClientID, f.ServiceProviderID = "", ""
	if actor.Client() {
		f.ClientID = actor.ID
	} else {
		f.ServiceProviderID = actor.ID
	}
	return e.Repo.ListContracts(ctx, f)
}
