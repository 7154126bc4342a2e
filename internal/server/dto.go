package server

import (
	"fmt"
	"strings"

	"bidline/internal/domain"
	"bidline/internal/repo"
)

// Request payloads

type CreateProjectRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	BudgetRange string   `json:"budget_range,omitempty"`
	Currency    string   `json:"currency,omitempty"`
	Duration    string   `json:"duration,omitempty"`
	Skills      []string `json:"skills,omitempty"`
}

type UpdateProjectRequest struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	BudgetRange *string   `json:"budget_range,omitempty"`
	Currency    *string   `json:"currency,omitempty"`
	Duration    *string   `json:"duration,omitempty"`
	Skills      *[]string `json:"skills,omitempty"`
}

func (r UpdateProjectRequest) patch() domain.ProjectPatch {
	return domain.ProjectPatch{
		Title:       r.Title,
		Description: r.Description,
		BudgetRange: r.BudgetRange,
		Currency:    r.Currency,
		Duration:    r.Duration,
		Skills:      r.Skills,
	}
}

type CancelProjectRequest struct {
	Reason string `json:"reason,omitempty"`
}

type SubmitBidRequest struct {
	Amount      int64  `json:"amount" minimum:"1"`
	Currency    string `json:"currency"`
	CoverLetter string `json:"cover_letter,omitempty"`
}

type AmendBidRequest struct {
	Amount      *int64  `json:"amount,omitempty"`
	Currency    *string `json:"currency,omitempty"`
	CoverLetter *string `json:"cover_letter,omitempty"`
	Status      *string `json:"status,omitempty" enum:"pending"`
}

func (r AmendBidRequest) patch() domain.BidPatch {
	return domain.BidPatch{
		Amount:      r.Amount,
		Currency:    r.Currency,
		CoverLetter: r.CoverLetter,
		Status:      r.Status,
	}
}

type CreateContractRequest struct {
	ProjectID string `json:"project_id"`
	BidID     string `json:"bid_id"`
	Terms     string `json:"terms"`
	Signature string `json:"signature" doc:"Document reference of the client signature"`
}

type SignContractRequest struct {
	Signature string `json:"signature" doc:"Document reference of the provider signature"`
}

type SubmitWorkRequest struct {
	GithubLink string `json:"github_link,omitempty"`
	Document   string `json:"document,omitempty" doc:"Document reference of the delivered work"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

// Responses

type DevLoginResponse struct {
	Token string       `json:"token"`
	Actor domain.Actor `json:"actor"`
}

type AcceptBidResponse struct {
	Bid     domain.Bid     `json:"bid"`
	Project domain.Project `json:"project"`
}

type DocumentResponse struct {
	Ref         string `json:"ref"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

type paginatedProjects struct {
	Items      []domain.Project `json:"items"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

type paginatedBids struct {
	Items      []domain.Bid `json:"items"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

type paginatedContracts struct {
	Items      []domain.Contract `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

func parseCompositeCursor(cursor string) (repo.Cursor, error) {
	if cursor == "" {
		return repo.Cursor{}, nil
	}
	parts := strings.SplitN(cursor, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return repo.Cursor{}, fmt.Errorf("invalid cursor")
	}
	return repo.Cursor{CreatedAt: parts[0], ID: parts[1]}, nil
}

func composeCursor(ts, id string) string {
	if ts == "" || id == "" {
		return ""
	}
	return ts + "|" + id
}

// page trims a limit+1 result to limit and returns the cursor of the last
// kept item when more rows remain.
func page[T any](items []T, limit int, key func(T) (string, string)) ([]T, string) {
	if items == nil {
		items = []T{}
	}
	if len(items) <= limit {
		return items, ""
	}
	items = items[:limit]
	ts, id := key(items[limit-1])
	return items, composeCursor(ts, id)
}

func projectKey(p domain.Project) (string, string)   { return p.CreatedAt, p.ID }
func bidKey(b domain.Bid) (string, string)           { return b.CreatedAt, b.ID }
func contractKey(c domain.Contract) (string, string) { return c.CreatedAt, c.ID }

type AttachKYCRequest struct {
	Document string `json:"document"`
}

type PortfolioRequest struct {
	Title       string `json:"title"`
	ProjectURL  string `json:"project_url,omitempty"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

type ExperienceRequest struct {
	Role             string `json:"role"`
	Company          string `json:"company"`
	StartDate        string `json:"start_date,omitempty"`
	EndDate          string `json:"end_date,omitempty"`
	CurrentlyWorking bool   `json:"currently_working,omitempty"`
	Summary          string `json:"summary,omitempty"`
}

type EducationRequest struct {
	School       string `json:"school"`
	Degree       string `json:"degree"`
	FieldOfStudy string `json:"field_of_study,omitempty"`
	StartYear    int    `json:"start_year,omitempty"`
	EndYear      int    `json:"end_year,omitempty"`
	Highlights   string `json:"highlights,omitempty"`
}

type CertificationRequest struct {
	Name   string `json:"name"`
	Issuer string `json:"issuer,omitempty"`
	Year   int    `json:"year,omitempty"`
	Link   string `json:"certificate_link,omitempty"`
}
