package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"bidline/internal/domain"
	"bidline/internal/events"
	"bidline/internal/repo"
)

// BidInput carries a new bid.
type BidInput struct {
	ProjectID   string
	ProviderID  string
	Amount      int64
	Currency    string
	CoverLetter string
}

func normalizeCurrency(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}

// SubmitBid places a pending bid on an open project. A provider may bid
// more than once on the same project.
func (e Engine) SubmitBid(ctx context.Context, in BidInput) (domain.Bid, error) {
	if in.Amount <= 0 {
		return domain.Bid{}, domain.Invalid("amount must be positive")
	}
	in.Currency = normalizeCurrency(in.Currency)
	if in.Currency == "" {
		return domain.Bid{}, domain.Invalid("currency is required")
	}
	var b domain.Bid
	err := e.run(ctx, "submit_bid", func(t *txn) error {
		if _, err := e.authorize(ctx, t, in.ProviderID, domain.ActorServiceProvider); err != nil {
			return err
		}
		p, err := e.Repo.GetProjectTx(ctx, t.Tx, in.ProjectID)
		if err != nil {
			return err
		}
		if p.Status != domain.ProjectOpen {
			return domain.NewStateError("project", p.ID, domain.ProjectOpen, p.Status)
		}
		now := e.stamp()
		b = domain.Bid{
			ID:                uuid.NewString(),
			ProjectID:         p.ID,
			ServiceProviderID: in.ProviderID,
			Amount:            in.Amount,
			Currency:          in.Currency,
			CoverLetter:       in.CoverLetter,
			Status:            domain.BidPending,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := e.Repo.InsertBidTx(ctx, t.Tx, b); err != nil {
			return err
		}
		return e.appendEvent(ctx, t, events.BidSubmitted, p.ID, "bid", b.ID, in.ProviderID,
			events.EventPayload{"amount": b.Amount, "currency": b.Currency})
	})
	if err != nil {
		return domain.Bid{}, fmt.Errorf("submit bid: %w", err)
	}
	return b, nil
}

func validateBidPatch(patch *domain.BidPatch) error {
	if patch.Amount != nil && *patch.Amount <= 0 {
		return domain.Invalid("amount must be positive")
	}
	if patch.Currency != nil {
		c := normalizeCurrency(*patch.Currency)
		if c == "" {
			return domain.Invalid("currency must not be empty")
		}
		patch.Currency = &c
	}
	if patch.Status != nil && *patch.Status != domain.BidPending {
		return domain.Invalid("status may only be set to %s", domain.BidPending)
	}
	return nil
}

// AmendBid applies the supplied fields of patch to a pending bid owned by
// providerID.
func (e Engine) AmendBid(ctx context.Context, bidID, providerID string, patch domain.BidPatch) (domain.Bid, error) {
	if err := validateBidPatch(&patch); err != nil {
		return domain.Bid{}, err
	}
	var b domain.Bid
	err := e.run(ctx, "amend_bid", func(t *txn) error {
		if _, err := e.authorize(ctx, t, providerID, domain.ActorServiceProvider); err != nil {
			return err
		}
		var err error
		b, err = e.Repo.GetBidTx(ctx, t.Tx, bidID)
		if err != nil {
			return err
		}
		if b.ServiceProviderID != providerID {
			return domain.NotFound("bid", bidID)
		}
		if b.Status != domain.BidPending {
			return domain.NewStateError("bid", b.ID, domain.BidPending, b.Status)
		}
		if patch.Empty() {
			return nil
		}
		if err := e.Repo.AmendBidTx(ctx, t.Tx, b.ID, patch, e.stamp()); err != nil {
			return err
		}
		if err := e.appendEvent(ctx, t, events.BidAmended, b.ProjectID, "bid", b.ID, providerID, patchPayload(patch)); err != nil {
			return err
		}
		b, err = e.Repo.GetBidTx(ctx, t.Tx, b.ID)
		return err
	})
	if err != nil {
		return domain.Bid{}, fmt.Errorf("amend bid: %w", err)
	}
	return b, nil
}

func patchPayload(patch domain.BidPatch) events.EventPayload {
	payload := events.EventPayload{}
	if patch.Amount != nil {
		payload["amount"] = *patch.Amount
	}
	if patch.Currency != nil {
		payload["currency"] = *patch.Currency
	}
	if patch.CoverLetter != nil {
		payload["cover_letter"] = true
	}
	if patch.Status != nil {
		payload["status"] = *patch.Status
	}
	return payload
}

// AcceptBid accepts bidID, rejects every other bid on the project and moves
// the project to pending_contract, all in one transaction. The project row
// stays locked from the first read to commit, so concurrent accepts on one
// project serialize and the loser sees ErrInvalidState.
func (e Engine) AcceptBid(ctx context.Context, projectID, bidID, clientID string) (domain.Bid, domain.Project, error) {
	var (
		b domain.Bid
		p domain.Project
	)
	err := e.run(ctx, "accept_bid", func(t *txn) error {
		if _, err := e.authorize(ctx, t, clientID, domain.ActorClient); err != nil {
			return err
		}
		var err error
		p, err = e.ownedProject(ctx, t, projectID, clientID)
		if err != nil {
			return err
		}
		b, err = e.Repo.GetBidTx(ctx, t.Tx, bidID)
		if err != nil {
			return err
		}
		if b.ProjectID != p.ID {
			return domain.NotFound("bid", bidID)
		}
		if p.Status != domain.ProjectOpen {
			return domain.NewStateError("project", p.ID, domain.ProjectOpen, p.Status)
		}
		now := e.stamp()
		rejected, err := e.Repo.AcceptBidTx(ctx, t.Tx, p.ID, b.ID, now)
		if err != nil {
			return err
		}
		t.moved("bid", b.ID, b.Status, domain.BidAccepted, clientID)
		b.Status = domain.BidAccepted
		b.UpdatedAt = now
		if err := e.appendEvent(ctx, t, events.BidAccepted, p.ID, "bid", b.ID, clientID,
			events.EventPayload{"rejected": rejected, "service_provider_id": b.ServiceProviderID}); err != nil {
			return err
		}
		return e.advanceProject(ctx, t, &p, domain.ProjectPendingContract, clientID)
	})
	if err != nil {
		return domain.Bid{}, domain.Project{}, fmt.Errorf("accept bid: %w", err)
	}
	return b, p, nil
}

// ProjectBids lists the bids on a project for its client.
func (e Engine) ProjectBids(ctx context.Context, projectID, clientID string, f repo.BidFilters) ([]domain.Bid, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.ClientID != clientID {
		return nil, domain.NotFound("project", projectID)
	}
	f.ProjectID = p.ID
	f.ServiceProviderID = ""
	return e.Repo.ListBids(ctx, f)
}

// ProviderBids lists the bids placed by providerID.
func (e Engine) ProviderBids(ctx context.Context, providerID string, f repo.BidFilters) ([]domain.Bid, error) {
	f.ServiceProviderID = providerID
	return e.Repo.ListBids(ctx, f)
}
