package bidlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Bidline HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

type Actor struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Active bool   `json:"active"`
}

type Project struct {
	ID                   string   `json:"id"`
	ClientID             string   `json:"client_id"`
	Title                string   `json:"title"`
	Description          string   `json:"description"`
	BudgetRange          string   `json:"budget_range,omitempty"`
	Currency             string   `json:"currency,omitempty"`
	Duration             string   `json:"duration,omitempty"`
	Skills               []string `json:"skills"`
	Status               string   `json:"status"`
	SubmissionDocument   string   `json:"submission_document,omitempty"`
	SubmissionGithubLink string   `json:"submission_github_link,omitempty"`
	Escrow               string   `json:"escrow"`
	CreatedAt            string   `json:"created_at"`
	UpdatedAt            string   `json:"updated_at"`
}

type Bid struct {
	ID                string `json:"id"`
	ProjectID         string `json:"project_id"`
	ServiceProviderID string `json:"service_provider_id"`
	Amount            int64  `json:"amount"`
	Currency          string `json:"currency"`
	CoverLetter       string `json:"cover_letter"`
	Status            string `json:"status"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at"`
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
	Status                   string `json:"status"`
}

// Event represents an audit log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// Document is a stored upload reference.
type Document struct {
	Ref         string `json:"ref"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Profile is an actor profile. Sections the caller may not read come back
// empty.
type Profile struct {
	ActorID           string          `json:"actor_id"`
	Kind              string          `json:"kind"`
	FullName          string          `json:"full_name,omitempty"`
	Bio               string          `json:"bio,omitempty"`
	LocationCountry   string          `json:"location_country,omitempty"`
	CompanyName       string          `json:"company_name,omitempty"`
	ContactEmail      string          `json:"contact_email,omitempty"`
	BillingName       string          `json:"billing_name,omitempty"`
	ProfessionalTitle string          `json:"professional_title,omitempty"`
	HourlyRate        int64           `json:"hourly_rate,omitempty"`
	Skills            []string        `json:"skills"`
	KYCDocument       string          `json:"kyc_document,omitempty"`
	Portfolio         []PortfolioItem `json:"portfolio,omitempty"`
}

type PortfolioItem struct {
	ID          string `json:"id,omitempty"`
	Title       string `json:"title"`
	ProjectURL  string `json:"project_url,omitempty"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

// ProjectInput carries a new project posting.
type ProjectInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	BudgetRange string   `json:"budget_range,omitempty"`
	Currency    string   `json:"currency,omitempty"`
	Duration    string   `json:"duration,omitempty"`
	Skills      []string `json:"skills,omitempty"`
}

// BidAmendment changes only the fields that are set.
type BidAmendment struct {
	Amount      *int64  `json:"amount,omitempty"`
	Currency    *string `json:"currency,omitempty"`
	CoverLetter *string `json:"cover_letter,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedProjects wraps list responses with cursors.
type PaginatedProjects struct {
	Items      []Project `json:"items"`
	NextCursor string    `json:"next_cursor"`
}

type PaginatedBids struct {
	Items      []Bid  `json:"items"`
	NextCursor string `json:"next_cursor"`
}

type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// DevLogin obtains a token for actorID from a server running with dev login
// enabled, and uses it for later calls.
func (c *Client) DevLogin(ctx context.Context, actorID string) (Actor, error) {
	var resp struct {
		Token string `json:"token"`
		Actor Actor  `json:"actor"`
	}
	if err := c.do(ctx, http.MethodPost, "auth/dev/login", map[string]any{"actor_id": actorID}, &resp); err != nil {
		return Actor{}, err
	}
	c.BearerToken = resp.Token
	return resp.Actor, nil
}

// Logout revokes the current bearer token.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "auth/logout", nil, nil); err != nil {
		return err
	}
	c.BearerToken = ""
	return nil
}

// Me returns the authenticated actor.
func (c *Client) Me(ctx context.Context) (Actor, error) {
	var resp Actor
	err := c.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp, err
}

// CreateProject posts a project as the authenticated client.
func (c *Client) CreateProject(ctx context.Context, in ProjectInput) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, "projects", in, &resp)
	return resp, err
}

// Project fetches a project by id.
func (c *Client) Project(ctx context.Context, projectID string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, "projects/"+url.PathEscape(projectID), nil, &resp)
	return resp, err
}

// ProjectsPage lists projects visible to the caller.
func (c *Client) ProjectsPage(ctx context.Context, status string, limit int, cursor string) (PaginatedProjects, error) {
	var resp PaginatedProjects
	err := c.do(ctx, http.MethodGet, withQuery("projects", map[string]string{
		"status": status,
		"limit":  limitParam(limit),
		"cursor": cursor,
	}), nil, &resp)
	return resp, err
}

// CancelProject cancels a project that has not completed.
func (c *Client) CancelProject(ctx context.Context, projectID, reason string) (Project, error) {
	var resp Project
	endpoint := fmt.Sprintf("projects/%s/cancel", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"reason": reason}, &resp)
	return resp, err
}

// SubmitBid places a bid on an open project.
func (c *Client) SubmitBid(ctx context.Context, projectID string, amount int64, currency, coverLetter string) (Bid, error) {
	body := map[string]any{
		"amount":       amount,
		"currency":     currency,
		"cover_letter": coverLetter,
	}
	var resp Bid
	endpoint := fmt.Sprintf("projects/%s/bids", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// AmendBid updates a pending bid.
func (c *Client) AmendBid(ctx context.Context, bidID string, amendment BidAmendment) (Bid, error) {
	var resp Bid
	err := c.do(ctx, http.MethodPatch, "bids/"+url.PathEscape(bidID), amendment, &resp)
	return resp, err
}

// AcceptBid accepts a bid and returns it with the updated project.
func (c *Client) AcceptBid(ctx context.Context, projectID, bidID string) (Bid, Project, error) {
	var resp struct {
		Bid     Bid     `json:"bid"`
		Project Project `json:"project"`
	}
	endpoint := fmt.Sprintf("projects/%s/bids/%s/accept", url.PathEscape(projectID), url.PathEscape(bidID))
	err := c.do(ctx, http.MethodPut, endpoint, nil, &resp)
	return resp.Bid, resp.Project, err
}

// ProjectBids lists bids on one of the caller's projects.
func (c *Client) ProjectBids(ctx context.Context, projectID, status string, limit int, cursor string) (PaginatedBids, error) {
	var resp PaginatedBids
	endpoint := withQuery(fmt.Sprintf("projects/%s/bids", url.PathEscape(projectID)), map[string]string{
		"status": status,
		"limit":  limitParam(limit),
		"cursor": cursor,
	})
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CreateContract opens a client-signed contract for an accepted bid.
func (c *Client) CreateContract(ctx context.Context, projectID, bidID, terms, signatureRef string) (Contract, error) {
	body := map[string]any{
		"project_id": projectID,
		"bid_id":     bidID,
		"terms":      terms,
		"signature":  signatureRef,
	}
	var resp Contract
	err := c.do(ctx, http.MethodPost, "contracts", body, &resp)
	return resp, err
}

// CounterSign adds the provider's signature to a contract.
func (c *Client) CounterSign(ctx context.Context, contractID, signatureRef string) (Contract, error) {
	var resp Contract
	endpoint := fmt.Sprintf("contracts/%s/sign", url.PathEscape(contractID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"signature": signatureRef}, &resp)
	return resp, err
}

// SubmitWork hands in delivered work for review.
func (c *Client) SubmitWork(ctx context.Context, projectID, githubLink, documentRef string) (Project, error) {
	body := map[string]any{
		"github_link": githubLink,
		"document":    documentRef,
	}
	var resp Project
	endpoint := fmt.Sprintf("projects/%s/submit-work", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// ReleaseFunds completes a project under review.
func (c *Client) ReleaseFunds(ctx context.Context, projectID string) (Project, error) {
	var resp Project
	endpoint := fmt.Sprintf("projects/%s/release-funds", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodPut, endpoint, nil, &resp)
	return resp, err
}

// EventsPage returns a project's audit log, newest first.
func (c *Client) EventsPage(ctx context.Context, projectID string, limit int, cursor string) (PaginatedEvents, error) {
	var resp PaginatedEvents
	endpoint := withQuery(fmt.Sprintf("projects/%s/events", url.PathEscape(projectID)), map[string]string{
		"limit":  limitParam(limit),
		"cursor": cursor,
	})
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// UploadDocument stores a signature or work file and returns its reference.
func (c *Client) UploadDocument(ctx context.Context, kind, filename string, content []byte) (Document, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("kind", kind); err != nil {
		return Document{}, err
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return Document{}, err
	}
	if _, err := fw.Write(content); err != nil {
		return Document{}, err
	}
	if err := mw.Close(); err != nil {
		return Document{}, err
	}
	req, err := c.newRequest(ctx, http.MethodPost, "documents", &buf)
	if err != nil {
		return Document{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var resp Document
	err = c.send(req, &resp)
	return resp, err
}

// Download fetches the bytes behind a document reference.
func (c *Client) Download(ctx context.Context, ref string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "documents/"+strings.TrimLeft(ref, "/"), nil)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	err = c.send(req, &buf)
	return buf.Bytes(), err
}

// MyProfile returns the caller's full profile.
func (c *Client) MyProfile(ctx context.Context) (Profile, error) {
	var resp Profile
	err := c.do(ctx, http.MethodGet, "me/profile", nil, &resp)
	return resp, err
}

// UpdateProfile sets the given profile fields, keyed by their JSON names.
func (c *Client) UpdateProfile(ctx context.Context, fields map[string]any) (Profile, error) {
	var resp Profile
	err := c.do(ctx, http.MethodPatch, "me/profile", fields, &resp)
	return resp, err
}

// ActorProfile returns the public profile of another actor.
func (c *Client) ActorProfile(ctx context.Context, actorID string) (Profile, error) {
	var resp Profile
	err := c.do(ctx, http.MethodGet, "actors/"+url.PathEscape(actorID)+"/profile", nil, &resp)
	return resp, err
}

// AddPortfolioItem appends a portfolio entry to the provider profile.
func (c *Client) AddPortfolioItem(ctx context.Context, item PortfolioItem) (PortfolioItem, error) {
	var resp PortfolioItem
	err := c.do(ctx, http.MethodPost, "me/portfolio", item, &resp)
	return resp, err
}

// AttachKYC links an uploaded kyc document to the provider profile.
func (c *Client) AttachKYC(ctx context.Context, ref string) (Profile, error) {
	var resp Profile
	err := c.do(ctx, http.MethodPut, "me/kyc", map[string]string{"document": ref}, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := c.newRequest(ctx, method, endpoint, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	return req, nil
}

func (c *Client) send(req *http.Request, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code, apiErr.Message = envelope.Error.Code, envelope.Error.Message
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if w, ok := out.(io.Writer); ok {
		_, err := io.Copy(w, resp.Body)
		return err
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func withQuery(endpoint string, params map[string]string) string {
	q := url.Values{}
	for k, v := range params {
		if v != "" {
			q.Set(k, v)
		}
	}
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}

func limitParam(limit int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprint(limit)
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
