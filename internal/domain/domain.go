package domain

import "time"

// Project statuses.
const (
	ProjectOpen            = "open"
	ProjectPendingContract = "pending_contract"
	ProjectInProgress      = "in_progress"
	ProjectAwaitingReview  = "awaiting_review"
	ProjectCompleted       = "completed"
	ProjectCancelled       = "cancelled"
)

// Escrow flag values. The flag only moves forward.
const (
	EscrowNo       = "no"
	EscrowYes      = "yes"
	EscrowReleased = "released"
)

// Bid statuses.
const (
	BidPending  = "pending"
	BidAccepted = "accepted"
	BidRejected = "rejected"
)

// Contract statuses.
const (
	ContractClientSigned = "client_signed"
	ContractFullySigned  = "fully_signed"
)

type Project struct {
	ID                   string   `json:"id"`
	ClientID             string   `json:"client_id"`
	Title                string   `json:"title"`
	Description          string   `json:"description"`
	BudgetRange          string   `json:"budget_range,omitempty"`
	Currency             string   `json:"currency,omitempty"`
	Duration             string   `json:"duration,omitempty"`
	Skills               []string `json:"skills"`
	Status               string   `json:"status" enum:"open,pending_contract,in_progress,awaiting_review,completed,cancelled"`
	SubmissionDocument   string   `json:"submission_document,omitempty"`
	SubmissionGithubLink string   `json:"submission_github_link,omitempty"`
	Escrow               string   `json:"escrow" enum:"no,yes,released"`
	CreatedAt            string   `json:"created_at" format:"date-time"`
	UpdatedAt            string   `json:"updated_at" format:"date-time"`
}

// Terminal reports whether no further status transition is possible.
func (p Project) Terminal() bool {
	return p.Status == ProjectCompleted || p.Status == ProjectCancelled
}

type Bid struct {
	ID                string `json:"id"`
	ProjectID         string `json:"project_id"`
	ServiceProviderID string `json:"service_provider_id"`
	Amount            int64  `json:"amount"`
	Currency          string `json:"currency"`
	CoverLetter       string `json:"cover_letter"`
	Status            string `json:"status" enum:"pending,accepted,rejected"`
	CreatedAt         string `json:"created_at" format:"date-time"`
	UpdatedAt         string `json:"updated_at" format:"date-time"`
}

type Contract struct {
	ID                       string `json:"id"`
	ProjectID                string `json:"project_id"`
	BidID                    string `json:"bid_id"`
	ClientID                 string `json:"client_id"`
	ServiceProviderID        string `json:"service_provider_id"`
	Terms                    string `json:"terms"`
	ClientSignature          string `json:"client_signature"`
	ServiceProviderSignature string `json:"service_provider_signature,omitempty"`
	Status                   string `json:"status" enum:"client_signed,fully_signed"`
	CreatedAt                string `json:"created_at" format:"date-time"`
	UpdatedAt                string `json:"updated_at" format:"date-time"`
}

// ProjectPatch carries the descriptive fields a client may change. Nil
// fields are left untouched.
type ProjectPatch struct {
	Title       *string
	Description *string
	BudgetRange *string
	Currency    *string
	Duration    *string
	Skills      *[]string
}

// Empty reports whether the patch changes nothing.
func (p ProjectPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.BudgetRange == nil &&
		p.Currency == nil && p.Duration == nil && p.Skills == nil
}

// BidPatch carries the fields a provider may amend on a pending bid.
type BidPatch struct {
	Amount      *int64
	Currency    *string
	CoverLetter *string
	Status      *string
}

func (p BidPatch) Empty() bool {
	return p.Amount == nil && p.Currency == nil && p.CoverLetter == nil && p.Status == nil
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// TimeLayout is the fixed-width UTC layout used for stored timestamps so
// lexical order matches chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// Timestamp formats t with TimeLayout in UTC.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}
