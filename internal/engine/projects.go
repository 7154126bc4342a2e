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

// ProjectInput carries a new project posting.
type ProjectInput struct {
	ClientID    string
	Title       string
	Description string
	BudgetRange string
	Currency    string
	Duration    string
	Skills      []string
}

func cleanSkills(skills []string) []string {
	out := make([]string, 0, len(skills))
	seen := map[string]bool{}
	for _, s := range skills {
		s = strings.TrimSpace(s)
		if s == "" || seen[strings.ToLower(s)] {
			continue
		}
		seen[strings.ToLower(s)] = true
		out = append(out, s)
	}
	return out
}

// CreateProject posts an open project for clientID.
func (e Engine) CreateProject(ctx context.Context, in ProjectInput) (domain.Project, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return domain.Project{}, domain.Invalid("title is required")
	}
	var p domain.Project
	err := e.run(ctx, "create_project", func(t *txn) error {
		if _, err := e.authorize(ctx, t, in.ClientID, domain.ActorClient); err != nil {
			return err
		}
		now := e.stamp()
		p = domain.Project{
			ID:          uuid.NewString(),
			ClientID:    in.ClientID,
			Title:       in.Title,
			Description: in.Description,
			BudgetRange: in.BudgetRange,
			Currency:    normalizeCurrency(in.Currency),
			Duration:    in.Duration,
			Skills:      cleanSkills(in.Skills),
			Status:      domain.ProjectOpen,
			Escrow:      domain.EscrowNo,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := e.Repo.InsertProjectTx(ctx, t.Tx, p); err != nil {
			return err
		}
		return e.appendEvent(ctx, t, events.ProjectCreated, p.ID, "project", p.ID, in.ClientID,
			events.EventPayload{"title": p.Title, "status": p.Status})
	})
	if err != nil {
		return domain.Project{}, fmt.Errorf("create project: %w", err)
	}
	return p, nil
}

// Project returns a project to its client, to providers while it is open,
// and to any provider that bid on it. Delivered work is only shown to the
// client and the accepted provider.
func (e Engine) Project(ctx context.Context, projectID string, actor domain.Actor) (domain.Project, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return p, err
	}
	if actor.Client() {
		if p.ClientID != actor.ID {
			return domain.Project{}, domain.NotFound("project", projectID)
		}
		return p, nil
	}
	if p.Status == domain.ProjectOpen {
		return p, nil
	}
	bids, err := e.Repo.ListBids(ctx, repo.BidFilters{ProjectID: p.ID, ServiceProviderID: actor.ID, Limit: 1})
	if err != nil {
		return domain.Project{}, err
	}
	if len(bids) == 0 {
		return domain.Project{}, domain.NotFound("project", projectID)
	}
	party, err := e.projectParty(ctx, p, actor)
	if err != nil {
		return domain.Project{}, err
	}
	if !party {
		p = withoutSubmission(p)
	}
	return p, nil
}

// Projects lists the client's own projects. Providers see open projects,
// and projects in any other status only when they bid on them.
func (e Engine) Projects(ctx context.Context, actor domain.Actor, f repo.ProjectFilters) ([]domain.Project, error) {
	if actor.Client() {
		f.ClientID = actor.ID
		return e.Repo.ListProjects(ctx, f)
	}
	f.ClientID = ""
	if f.Status == "" {
		f.Status = domain.ProjectOpen
	}
	if f.Status != domain.ProjectOpen {
		f.BidderID = actor.ID
	}
	ps, err := e.Repo.ListProjects(ctx, f)
	if err != nil || f.Status == domain.ProjectOpen {
		return ps, err
	}
	won, err := e.Repo.ListBids(ctx, repo.BidFilters{ServiceProviderID: actor.ID, Status: domain.BidAccepted})
	if err != nil {
		return nil, err
	}
	accepted := make(map[string]bool, len(won))
	for _, b := range won {
		accepted[b.ProjectID] = true
	}
	for i := range ps {
		if !accepted[ps[i].ID] {
			ps[i] = withoutSubmission(ps[i])
		}
	}
	return ps, nil
}

func withoutSubmission(p domain.Project) domain.Project {
	p.SubmissionDocument = ""
	p.SubmissionGithubLink = ""
	return p
}

func validateProjectPatch(patch *domain.ProjectPatch) error {
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return domain.Invalid("title must not be empty")
		}
		patch.Title = &title
	}
	if patch.Currency != nil {
		c := normalizeCurrency(*patch.Currency)
		patch.Currency = &c
	}
	if patch.Skills != nil {
		skills := cleanSkills(*patch.Skills)
		patch.Skills = &skills
	}
	return nil
}

// UpdateProject applies the supplied descriptive fields of patch. Status is
// never written here.
func (e Engine) UpdateProject(ctx context.Context, projectID, clientID string, patch domain.ProjectPatch) (domain.Project, error) {
	if err := validateProjectPatch(&patch); err != nil {
		return domain.Project{}, err
	}
	var p domain.Project
	err := e.run(ctx, "update_project", func(t *txn) error {
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
		if patch.Empty() {
			return nil
		}
		if err := e.Repo.UpdateProjectFieldsTx(ctx, t.Tx, p.ID, patch, e.stamp()); err != nil {
			return err
		}
		if err := e.appendEvent(ctx, t, events.ProjectUpdated, p.ID, "project", p.ID, clientID, nil); err != nil {
			return err
		}
		p, err = e.Repo.GetProjectTx(ctx, t.Tx, p.ID)
		return err
	})
	if err != nil {
		return domain.Project{}, fmt.Errorf("update project: %w", err)
	}
	return p, nil
}

// DeleteProject removes a project and its bids. Projects that reached a
// contract are kept.
func (e Engine) DeleteProject(ctx context.Context, projectID, clientID string) error {
	err := e.run(ctx, "delete_project", func(t *txn) error {
		if _, err := e.authorize(ctx, t, clientID, domain.ActorClient); err != nil {
			return err
		}
		p, err := e.ownedProject(ctx, t, projectID, clientID)
		if err != nil {
			return err
		}
		if p.Status != domain.ProjectOpen && p.Status != domain.ProjectCancelled {
			return domain.NewStateError("project", p.ID, domain.ProjectOpen+"|"+domain.ProjectCancelled, p.Status)
		}
		n, err := e.Repo.CountContractsForProjectTx(ctx, t.Tx, p.ID)
		if err != nil {
			return err
		}
		if n > 0 {
			return domain.NewStateError("project", p.ID, "no contract", "contracted")
		}
		if err := e.Repo.DeleteProjectTx(ctx, t.Tx, p.ID); err != nil {
			return err
		}
		return e.appendEvent(ctx, t, events.ProjectDeleted, p.ID, "project", p.ID, clientID,
			events.EventPayload{"status": p.Status})
	})
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return nil
}

// ProjectEvents returns the audit trail of a project to its client or to
// the provider holding its accepted bid.
func (e Engine) ProjectEvents(ctx context.Context, projectID string, actor domain.Actor, f repo.EventFilters) ([]domain.Event, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.ClientID != actor.ID {
		bids, err := e.Repo.ListBids(ctx, repo.BidFilters{ProjectID: p.ID, ServiceProviderID: actor.ID, Status: domain.BidAccepted, Limit: 1})
		if err != nil {
			return nil, err
		}
		if len(bids) == 0 {
			return nil, domain.NotFound("project", projectID)
		}
	}
	f.ProjectID = p.ID
	return e.Repo.LatestEvents(ctx, f)
}
