package engine

import (
	"context"
	"fmt"
	"strings"

	"bidline/internal/documents"
	"bidline/internal/domain"
	"bidline/internal/events"
)

// projectTransitions lists the legal Project.status edges.
var projectTransitions = map[string][]string{
	domain.ProjectOpen:            {domain.ProjectPendingContract, domain.ProjectCancelled},
	domain.ProjectPendingContract: {domain.ProjectInProgress, domain.ProjectCancelled},
	domain.ProjectInProgress:      {domain.ProjectAwaitingReview, domain.ProjectCancelled},
	domain.ProjectAwaitingReview:  {domain.ProjectCompleted, domain.ProjectCancelled},
}

// CanTransition reports whether a project may move from one status to another.
func CanTransition(from, to string) bool {
	for _, next := range projectTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// advanceProject writes p's next status. p must have been read inside t;
// the conditional update fails if another transaction moved it first.
func (e Engine) advanceProject(ctx context.Context, t *txn, p *domain.Project, to, actorID string) error {
	if !CanTransition(p.Status, to) {
		return domain.NewStateError("project", p.ID, expectedFor(to), p.Status)
	}
	now := e.stamp()
	if err := e.Repo.TransitionProjectTx(ctx, t.Tx, p.ID, p.Status, to, now); err != nil {
		return err
	}
	if err := e.appendEvent(ctx, t, events.ProjectTransition, p.ID, "project", p.ID, actorID,
		events.EventPayload{"from": p.Status, "to": to}); err != nil {
		return err
	}
	t.moved("project", p.ID, p.Status, to, actorID)
	p.Status = to
	p.UpdatedAt = now
	return nil
}

// expectedFor names the status a project must hold to move to to.
func expectedFor(to string) string {
	var from []string
	for _, src := range []string{domain.ProjectOpen, domain.ProjectPendingContract, domain.ProjectInProgress, domain.ProjectAwaitingReview} {
		if CanTransition(src, to) {
			from = append(from, src)
		}
	}
	if len(from) > 1 {
		return "non-terminal"
	}
	return strings.Join(from, "|")
}

// SubmitWork records the accepted provider's deliverable and moves the
// project to awaiting_review.
func (e Engine) SubmitWork(ctx context.Context, projectID, providerID, githubLink, documentRef string) (domain.Project, error) {
	githubLink = strings.TrimSpace(githubLink)
	documentRef = strings.TrimSpace(documentRef)
	if githubLink == "" && documentRef == "" {
		return domain.Project{}, domain.Invalid("github_link or document is required")
	}
	var p domain.Project
	err := e.run(ctx, "submit_work", func(t *txn) error {
		if _, err := e.authorize(ctx, t, providerID, domain.ActorServiceProvider); err != nil {
			return err
		}
		var err error
		p, err = e.Repo.LockProjectTx(ctx, t.Tx, projectID)
		if err != nil {
			return err
		}
		bid, err := e.Repo.AcceptedBidTx(ctx, t.Tx, projectID, providerID)
		if err != nil {
			return err
		}
		if p.Status != domain.ProjectInProgress {
			return domain.NewStateError("project", p.ID, domain.ProjectInProgress, p.Status)
		}
		if documentRef != "" {
			if err := e.claimDocument(ctx, t, documentRef, providerID, documents.KindWork); err != nil {
				return err
			}
		}
		if err := e.Repo.RecordSubmissionTx(ctx, t.Tx, p.ID, documentRef, githubLink, e.stamp()); err != nil {
			return err
		}
		p.SubmissionDocument = documentRef
		p.SubmissionGithubLink = githubLink
		if err := e.appendEvent(ctx, t, events.WorkSubmitted, p.ID, "project", p.ID, providerID,
			events.EventPayload{"bid_id": bid.ID, "document": documentRef, "github_link": githubLink}); err != nil {
			return err
		}
		return e.advanceProject(ctx, t, &p, domain.ProjectAwaitingReview, providerID)
	})
	if err != nil {
		return domain.Project{}, fmt.Errorf("submit work: %w", err)
	}
	return p, nil
}

// ReleaseFunds completes the project and marks escrow released. It is
// one-way: a second call fails with ErrInvalidState.
func (e Engine) ReleaseFunds(ctx context.Context, projectID, clientID string) (domain.Project, error) {
	var p domain.Project
	err := e.run(ctx, "release_funds", func(t *txn) error {
		if _, err := e.authorize(ctx, t, clientID, domain.ActorClient); err != nil {
			return err
		}
		var err error
		p, err = e.ownedProject(ctx, t, projectID, clientID)
		if err != nil {
			return err
		}
		if p.Status != domain.ProjectAwaitingReview {
			return domain.NewStateError("project", p.ID, domain.ProjectAwaitingReview, p.Status)
		}
		if err := e.Repo.ReleaseEscrowTx(ctx, t.Tx, p.ID, e.stamp()); err != nil {
			return err
		}
		from := p.Escrow
		p.Escrow = domain.EscrowReleased
		if err := e.appendEvent(ctx, t, events.FundsReleased, p.ID, "project", p.ID, clientID,
			events.EventPayload{"escrow_from": from, "escrow_to": domain.EscrowReleased}); err != nil {
			return err
		}
		t.moved("escrow", p.ID, from, domain.EscrowReleased, clientID)
		return e.advanceProject(ctx, t, &p, domain.ProjectCompleted, clientID)
	})
	if err != nil {
		return domain.Project{}, fmt.Errorf("release funds: %w", err)
	}
	return p, nil
}

// CancelProject moves a non-terminal project owned by clientID to cancelled.
func (e Engine) CancelProject(ctx context.Context, projectID, clientID, reason string) (domain.Project, error) {
	var p domain.Project
	err := e.run(ctx, "cancel_project", func(t *txn) error {
		if _, err := e.authorize(ctx, t, clientID, domain.ActorClient); err != nil {
			return err
		}
		var err error
		p, err = e.ownedProject(ctx, t, projectID, clientID)
		if err != nil {
			return err
		}
		if p.Terminal() {
			return domain.NewStateError("project", p.ID, "non-terminal", p.Status)
		}
		if reason != "" {
			if err := e.appendEvent(ctx, t, events.ProjectCancelled, p.ID, "project", p.ID, clientID,
				events.EventPayload{"reason": reason}); err != nil {
				return err
			}
		}
		return e.advanceProject(ctx, t, &p, domain.ProjectCancelled, clientID)
	})
	if err != nil {
		return domain.Project{}, fmt.Errorf("cancel project: %w", err)
	}
	return p, nil
}
