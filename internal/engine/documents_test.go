package engine_test

import (
	"errors"
	"testing"

	"bidline/internal/documents"
	"bidline/internal/domain"
	"bidline/internal/engine"
	"bidline/internal/repo"
)

func actor(id string, kind domain.ActorKind) domain.Actor {
	return domain.Actor{ID: id, Kind: kind, Active: true}
}

// delivered walks a project to awaiting_review: sp-1 wins against sp-2,
// signs with a registered signature and delivers a registered PDF.
func (env testEnv) delivered(t *testing.T) domain.Project {
	t.Helper()
	for _, d := range []struct{ ref, kind, owner string }{
		{"signatures/client.png", documents.KindSignature, "client-1"},
		{"signatures/provider.png", documents.KindSignature, "sp-1"},
		{"work/delivery.pdf", documents.KindWork, "sp-1"},
	} {
		if _, err := env.Engine.RecordDocument(env.Ctx, d.ref, d.kind, d.owner, 64); err != nil {
			t.Fatalf("record %s: %v", d.ref, err)
		}
	}
	p := env.project(t)
	winner := env.bid(t, p.ID, "sp-1", 900)
	env.bid(t, p.ID, "sp-2", 950)
	if _, _, err := env.Engine.AcceptBid(env.Ctx, p.ID, winner.ID, "client-1"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	c, err := env.Engine.CreateContract(env.Ctx, engine.ContractInput{
		ProjectID: p.ID, BidID: winner.ID, ClientID: "client-1", Terms: "terms", SignatureRef: "signatures/client.png",
	})
	if err != nil {
		t.Fatalf("create contract: %v", err)
	}
	if _, err := env.Engine.CounterSignContract(env.Ctx, c.ID, "sp-1", "signatures/provider.png"); err != nil {
		t.Fatalf("counter-sign: %v", err)
	}
	p, err = env.Engine.SubmitWork(env.Ctx, p.ID, "sp-1", "https://github.com/acme/checkout", "work/delivery.pdf")
	if err != nil {
		t.Fatalf("submit work: %v", err)
	}
	return p
}

func TestProviderBrowsingHidesDeliveries(t *testing.T) {
	env := newTestEnv(t)
	p := env.delivered(t)
	awaiting := repo.ProjectFilters{Status: domain.ProjectAwaitingReview}

	stranger := actor("sp-3", domain.ActorServiceProvider)
	listed, err := env.Engine.Projects(env.Ctx, stranger, awaiting)
	if err != nil || len(listed) != 0 {
		t.Fatalf("provider without a bid must not list %s projects: %v %+v", awaiting.Status, err, listed)
	}
	if _, err := env.Engine.Project(env.Ctx, p.ID, stranger); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("provider without a bid: expected ErrNotFound, got %v", err)
	}

	loser := actor("sp-2", domain.ActorServiceProvider)
	listed, err = env.Engine.Projects(env.Ctx, loser, awaiting)
	if err != nil || len(listed) != 1 {
		t.Fatalf("rejected bidder listing: %v %d", err, len(listed))
	}
	if listed[0].SubmissionDocument != "" || listed[0].SubmissionGithubLink != "" {
		t.Fatalf("rejected bidder sees the delivery: %+v", listed[0])
	}
	got, err := env.Engine.Project(env.Ctx, p.ID, loser)
	if err != nil || got.SubmissionDocument != "" || got.SubmissionGithubLink != "" {
		t.Fatalf("rejected bidder project view: %+v %v", got, err)
	}

	for _, a := range []domain.Actor{actor("sp-1", domain.ActorServiceProvider), actor("client-1", domain.ActorClient)} {
		got, err := env.Engine.Project(env.Ctx, p.ID, a)
		if err != nil || got.SubmissionDocument != "work/delivery.pdf" || got.SubmissionGithubLink == "" {
			t.Fatalf("%s should see the delivery: %+v %v", a.ID, got, err)
		}
		listed, err := env.Engine.Projects(env.Ctx, a, awaiting)
		if err != nil || len(listed) != 1 || listed[0].SubmissionDocument != "work/delivery.pdf" {
			t.Fatalf("%s listing: %+v %v", a.ID, listed, err)
		}
	}

	open, err := env.Engine.Projects(env.Ctx, stranger, repo.ProjectFilters{})
	if err != nil || len(open) != 0 {
		t.Fatalf("default browse lists only open projects: %+v %v", open, err)
	}
}

func TestDocumentAccess(t *testing.T) {
	env := newTestEnv(t)
	env.delivered(t)

	cases := []struct {
		ref     string
		actor   domain.Actor
		allowed bool
	}{
		{"work/delivery.pdf", actor("sp-1", domain.ActorServiceProvider), true},
		{"work/delivery.pdf", actor("client-1", domain.ActorClient), true},
		{"work/delivery.pdf", actor("sp-2", domain.ActorServiceProvider), false},
		{"work/delivery.pdf", actor("sp-3", domain.ActorServiceProvider), false},
		{"work/delivery.pdf", actor("client-2", domain.ActorClient), false},
		{"signatures/client.png", actor("sp-1", domain.ActorServiceProvider), true},
		{"signatures/provider.png", actor("client-1", domain.ActorClient), true},
		{"signatures/client.png", actor("sp-2", domain.ActorServiceProvider), false},
		{"signatures/client.png", actor("client-2", domain.ActorClient), false},
		{"work/unregistered.pdf", actor("client-1", domain.ActorClient), false},
	}
	for _, tc := range cases {
		_, err := env.Engine.DocumentAccess(env.Ctx, tc.ref, tc.actor)
		switch {
		case tc.allowed && err != nil:
			t.Errorf("%s reading %s: %v", tc.actor.ID, tc.ref, err)
		case !tc.allowed && !errors.Is(err, domain.ErrNotFound):
			t.Errorf("%s reading %s: expected ErrNotFound, got %v", tc.actor.ID, tc.ref, err)
		}
	}
}

func TestCitingAnotherActorsDocumentIsRefused(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.RecordDocument(env.Ctx, "signatures/foreign.png", documents.KindSignature, "client-2", 10); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.RecordDocument(env.Ctx, "work/mine.pdf", documents.KindWork, "client-1", 10); err != nil {
		t.Fatal(err)
	}
	p := env.project(t)
	b := env.bid(t, p.ID, "sp-1", 100)
	if _, _, err := env.Engine.AcceptBid(env.Ctx, p.ID, b.ID, "client-1"); err != nil {
		t.Fatal(err)
	}
	for _, ref := range []string{"signatures/foreign.png", "work/mine.pdf"} {
		_, err := env.Engine.CreateContract(env.Ctx, engine.ContractInput{
			ProjectID: p.ID, BidID: b.ID, ClientID: "client-1", Terms: "terms", SignatureRef: ref,
		})
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("citing %s: expected ErrInvalidInput, got %v", ref, err)
		}
	}
	if _, err := env.Engine.RecordDocument(env.Ctx, "kyc/x.png", "avatar", "client-1", 10); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("unknown kind: expected ErrInvalidInput, got %v", err)
	}
}
