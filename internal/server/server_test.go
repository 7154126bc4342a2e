package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"testing"

	"bidline/internal/db"
	"bidline/internal/documents"
	"bidline/internal/domain"
	"bidline/internal/engine"
	"bidline/internal/events"
	"bidline/internal/identity"
	"bidline/internal/metrics"
	"bidline/internal/migrate"
)

type testServer struct {
	URL     string
	Engine  engine.Engine
	Gateway identity.Gateway
	client  *http.Client
	close   func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

// token mints a bearer header for a registered actor.
func (s *testServer) token(t *testing.T, actorID string) map[string]string {
	t.Helper()
	tok, _, err := s.Gateway.Issue(context.Background(), actorID)
	if err != nil {
		t.Fatalf("issue token for %s: %v", actorID, err)
	}
	return map[string]string{"Authorization": "Bearer " + tok}
}

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn, db.SQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, db.SQLite)
	e.Metrics = metrics.New()
	ctx := context.Background()
	for _, a := range []domain.Actor{
		{ID: "client-1", Kind: domain.ActorClient, Name: "Ada"},
		{ID: "client-2", Kind: domain.ActorClient},
		{ID: "sp-1", Kind: domain.ActorServiceProvider},
		{ID: "sp-2", Kind: domain.ActorServiceProvider},
		{ID: "sp-3", Kind: domain.ActorServiceProvider},
	} {
		if _, err := e.RegisterActor(ctx, a, "tester"); err != nil {
			t.Fatalf("register %s: %v", a.ID, err)
		}
	}
	gw := identity.Gateway{Repo: e.Repo, Secret: "test-secret", Revocations: identity.NewMemoryRevocations()}
	handler, err := New(Config{
		Engine:    e,
		Gateway:   gw,
		Documents: documents.FileStore{Root: t.TempDir(), MaxBytes: 1 << 20},
		Metrics:   e.Metrics,
		BasePath:  "/v1",
		DevLogin:  true,
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:     "http://" + ln.Addr().String(),
		Engine:  e,
		Gateway: gw,
		client:  &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal %s: %v", string(data), err)
	}
	return out
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func expectError(t *testing.T, res *http.Response, data []byte, status int, code string) errorEnvelope {
	t.Helper()
	if res.StatusCode != status {
		t.Fatalf("expected status %d, got %d: %s", status, res.StatusCode, string(data))
	}
	env := decode[errorEnvelope](t, data)
	if env.Error.Code != code {
		t.Fatalf("expected code %s, got %s: %s", code, env.Error.Code, string(data))
	}
	return env
}

func TestEngagementLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	asClient := srv.token(t, "client-1")
	asSP1 := srv.token(t, "sp-1")
	asSP2 := srv.token(t, "sp-2")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects", map[string]any{
		"title":    "Marketing site",
		"currency": "eur",
		"skills":   []string{"go", "css"},
	}, asClient)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project status %d: %s", res.StatusCode, string(data))
	}
	project := decode[domain.Project](t, data)
	if project.Status != domain.ProjectOpen || project.Escrow != domain.EscrowNo {
		t.Fatalf("unexpected new project %+v", project)
	}
	base := srv.URL + "/v1/projects/" + project.ID

	var bids []domain.Bid
	for _, hdr := range []map[string]string{asSP1, asSP2} {
		res, data = doJSON(t, client, http.MethodPost, base+"/bids", map[string]any{"amount": 1200, "currency": "eur", "cover_letter": "hi"}, hdr)
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("submit bid status %d: %s", res.StatusCode, string(data))
		}
		bids = append(bids, decode[domain.Bid](t, data))
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/bids", nil, asClient)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list bids status %d: %s", res.StatusCode, string(data))
	}
	if listed := decode[paginatedBids](t, data); len(listed.Items) != 2 {
		t.Fatalf("expected 2 bids, got %d", len(listed.Items))
	}

	res, data = doJSON(t, client, http.MethodPut, base+"/bids/"+bids[1].ID+"/accept", nil, asClient)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("accept status %d: %s", res.StatusCode, string(data))
	}
	accepted := decode[AcceptBidResponse](t, data)
	if accepted.Bid.Status != domain.BidAccepted || accepted.Project.Status != domain.ProjectPendingContract {
		t.Fatalf("unexpected accept result %+v", accepted)
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/bids/"+bids[0].ID, map[string]any{"amount": 900}, asSP1)
	expectError(t, res, data, http.StatusConflict, "invalid_state")

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/contracts", map[string]any{
		"project_id": project.ID, "bid_id": bids[1].ID, "terms": "Deliver in 3 weeks", "signature": "signatures/c.png",
	}, asClient)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create contract status %d: %s", res.StatusCode, string(data))
	}
	contract := decode[domain.Contract](t, data)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/contracts", map[string]any{
		"project_id": project.ID, "bid_id": bids[1].ID, "terms": "again", "signature": "signatures/c.png",
	}, asClient)
	expectError(t, res, data, http.StatusConflict, "conflict")

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/contracts/"+contract.ID+"/sign", map[string]any{"signature": "signatures/p.png"}, asSP2)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("sign status %d: %s", res.StatusCode, string(data))
	}
	if signed := decode[domain.Contract](t, data); signed.Status != domain.ContractFullySigned {
		t.Fatalf("expected fully_signed, got %s", signed.Status)
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/submit-work", map[string]any{"github_link": "https://github.com/acme/site"}, asSP1)
	expectError(t, res, data, http.StatusNotFound, "not_found")

	res, data = doJSON(t, client, http.MethodPost, base+"/submit-work", map[string]any{"github_link": "https://github.com/acme/site"}, asSP2)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("submit work status %d: %s", res.StatusCode, string(data))
	}
	if p := decode[domain.Project](t, data); p.Status != domain.ProjectAwaitingReview {
		t.Fatalf("expected awaiting_review, got %s", p.Status)
	}

	res, data = doJSON(t, client, http.MethodPut, base+"/release-funds", nil, asClient)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("release status %d: %s", res.StatusCode, string(data))
	}
	done := decode[domain.Project](t, data)
	if done.Status != domain.ProjectCompleted || done.Escrow != domain.EscrowReleased {
		t.Fatalf("unexpected completed project %+v", done)
	}

	res, data = doJSON(t, client, http.MethodPut, base+"/release-funds", nil, asClient)
	env := expectError(t, res, data, http.StatusConflict, "invalid_state")
	if env.Error.Details["expected"] != domain.ProjectAwaitingReview || env.Error.Details["actual"] != domain.ProjectCompleted {
		t.Fatalf("unexpected details %v", env.Error.Details)
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/events?limit=3", nil, asSP2)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	evts := decode[paginatedEvents](t, data)
	if len(evts.Items) != 3 || evts.NextCursor == "" {
		t.Fatalf("expected a full page with cursor, got %d items cursor %q", len(evts.Items), evts.NextCursor)
	}
	if evts.Items[0].Type != events.ProjectTransition {
		t.Fatalf("newest event should be the completion transition, got %s", evts.Items[0].Type)
	}
}

func TestAuthentication(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health should be public, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, nil)
	expectError(t, res, data, http.StatusUnauthorized, "unauthorized")

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"Authorization": "Basic abc"})
	expectError(t, res, data, http.StatusUnauthorized, "invalid_credentials")

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"Authorization": "Bearer not-a-jwt"})
	expectError(t, res, data, http.StatusUnauthorized, "unauthorized")

	plain, _, err := srv.Engine.IssueAPIKey(context.Background(), "client-1", "ci")
	if err != nil {
		t.Fatalf("issue api key: %v", err)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"X-Api-Key": plain})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("api key auth status %d: %s", res.StatusCode, string(data))
	}
	if me := decode[domain.Actor](t, data); me.ID != "client-1" || me.Kind != domain.ActorClient || me.Name != "Ada" {
		t.Fatalf("unexpected actor %+v", me)
	}

	asSP2 := srv.token(t, "sp-2")
	if err := srv.Engine.DeactivateActor(context.Background(), "sp-2", "tester"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, asSP2)
	expectError(t, res, data, http.StatusForbidden, "inactive_actor")
}

func TestDevLoginAndLogout(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/dev/login", map[string]any{"actor_id": "ghost"}, nil)
	expectError(t, res, data, http.StatusNotFound, "not_found")

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/dev/login", map[string]any{"actor_id": "sp-1"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login status %d: %s", res.StatusCode, string(data))
	}
	login := decode[DevLoginResponse](t, data)
	if login.Actor.Kind != domain.ActorServiceProvider || login.Token == "" {
		t.Fatalf("unexpected login %+v", login)
	}
	auth := map[string]string{"Authorization": "Bearer " + login.Token}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/logout", nil, auth)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("logout status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, auth)
	expectError(t, res, data, http.StatusUnauthorized, "unauthorized")
}

func TestRoleAndValidationErrors(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	asClient := srv.token(t, "client-1")
	asOther := srv.token(t, "client-2")
	asSP1 := srv.token(t, "sp-1")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects", map[string]any{"title": "Nope"}, asSP1)
	expectError(t, res, data, http.StatusForbidden, "forbidden")

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects", map[string]any{"title": "  "}, asClient)
	expectError(t, res, data, http.StatusBadRequest, "bad_request")

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects", map[string]any{"title": "API"}, asClient)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	project := decode[domain.Project](t, data)
	base := srv.URL + "/v1/projects/" + project.ID

	res, data = doJSON(t, client, http.MethodPost, base+"/bids", map[string]any{"amount": 0, "currency": "usd"}, asSP1)
	expectError(t, res, data, http.StatusBadRequest, "bad_request")

	res, data = doJSON(t, client, http.MethodPost, base+"/bids", map[string]any{"amount": 100, "currency": "usd"}, asSP1)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("bid status %d: %s", res.StatusCode, string(data))
	}
	bid := decode[domain.Bid](t, data)

	res, data = doJSON(t, client, http.MethodPut, base+"/bids/"+bid.ID+"/accept", nil, asOther)
	expectError(t, res, data, http.StatusNotFound, "not_found")

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me/bids", nil, asClient)
	expectError(t, res, data, http.StatusForbidden, "forbidden")

	res, data = doJSON(t, client, http.MethodPatch, base, map[string]any{"title": "API v2"}, asClient)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch status %d: %s", res.StatusCode, string(data))
	}
	if p := decode[domain.Project](t, data); p.Title != "API v2" || p.Currency != project.Currency {
		t.Fatalf("sparse patch mismatch %+v", p)
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/cancel", map[string]any{"reason": "budget cut"}, asClient)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("cancel status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, base+"/bids", map[string]any{"amount": 100, "currency": "usd"}, asSP1)
	expectError(t, res, data, http.StatusConflict, "invalid_state")

	res, data = doJSON(t, client, http.MethodDelete, base, nil, asClient)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, base, nil, asClient)
	expectError(t, res, data, http.StatusNotFound, "not_found")
}

func TestProjectListPagination(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	asClient := srv.token(t, "client-1")
	for _, title := range []string{"one", "two", "three"} {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects", map[string]any{"title": title}, asClient)
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("create status %d: %s", res.StatusCode, string(data))
		}
	}
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects?limit=2", nil, asClient)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	first := decode[paginatedProjects](t, data)
	if len(first.Items) != 2 || first.NextCursor == "" {
		t.Fatalf("expected first page of 2 with cursor, got %+v", first)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects?limit=2&cursor="+first.NextCursor, nil, asClient)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("second page status %d: %s", res.StatusCode, string(data))
	}
	second := decode[paginatedProjects](t, data)
	if len(second.Items) != 1 || second.NextCursor != "" {
		t.Fatalf("expected final page of 1, got %+v", second)
	}
	seen := map[string]bool{}
	for _, p := range append(first.Items, second.Items...) {
		seen[p.ID] = true
	}
	if len(seen) != 3 {
		t.Fatalf("pages overlap: %v", seen)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects?cursor=garbage", nil, asClient)
	expectError(t, res, data, http.StatusBadRequest, "bad_request")
}

func TestDocumentUploadAndDownload(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	asClient := srv.token(t, "client-1")

	content := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0x01}, 64)...)
	doc := upload(t, srv, asClient, documents.KindSignature, "signature.png", content)
	if !strings.HasPrefix(doc.Ref, "signatures/") || doc.ContentType != "image/png" {
		t.Fatalf("unexpected document %+v", doc)
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/documents/"+doc.Ref, nil, asClient)
	if res.StatusCode != http.StatusOK || !bytes.Equal(data, content) {
		t.Fatalf("download status %d, %d bytes", res.StatusCode, len(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/documents/"+doc.Ref, nil, nil)
	expectError(t, res, data, http.StatusUnauthorized, "unauthorized")

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/documents/signatures/missing.png", nil, asClient)
	expectError(t, res, data, http.StatusNotFound, "not_found")

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/documents/"+doc.Ref, nil, srv.token(t, "client-2"))
	expectError(t, res, data, http.StatusNotFound, "not_found")

	res, data = postDocument(t, srv, asClient, documents.KindWork, "x.pdf", []byte("hello"))
	expectError(t, res, data, http.StatusBadRequest, "bad_request")
}

// upload posts content as a multipart document and returns the stored reference.
func upload(t *testing.T, srv *testServer, headers map[string]string, kind, filename string, content []byte) DocumentResponse {
	t.Helper()
	res, data := postDocument(t, srv, headers, kind, filename, content)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("upload status %d: %s", res.StatusCode, string(data))
	}
	return decode[DocumentResponse](t, data)
}

func postDocument(t *testing.T, srv *testServer, headers map[string]string, kind, filename string, content []byte) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("kind", kind); err != nil {
		t.Fatal(err)
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(content)
	mw.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	data, _ := io.ReadAll(res.Body)
	res.Body.Close()
	return res, data
}

func TestOpenAPIAndMetrics(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi status %d", res.StatusCode)
	}
	var doc struct {
		Paths      map[string]any `json:"paths"`
		Components struct {
			SecuritySchemes map[string]any `json:"securitySchemes"`
		} `json:"components"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode openapi: %v", err)
	}
	if _, ok := doc.Paths["/v1/projects/{project_id}/bids/{bid_id}/accept"]; !ok {
		t.Fatalf("accept route missing from openapi")
	}
	if _, ok := doc.Components.SecuritySchemes["bearerAuth"]; !ok {
		t.Fatalf("bearerAuth scheme missing")
	}

	asClient := srv.token(t, "client-1")
	doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects", map[string]any{"title": "metered"}, asClient)
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/metrics", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("metrics status %d", res.StatusCode)
	}
	if !strings.Contains(string(data), `bidline_operations_total{operation="create_project",outcome="ok"} 1`) {
		t.Fatalf("operation counter missing from metrics output")
	}
}
