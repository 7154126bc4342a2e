package engine_test

import (
	"errors"
	"testing"

	"bidline/internal/documents"
	"bidline/internal/domain"
	"bidline/internal/repo"
)

func ptr[T any](v T) *T { return &v }

func TestUpdateProfileSections(t *testing.T) {
	env := newTestEnv(t)
	client := actor("client-1", domain.ActorClient)

	empty, err := env.Engine.Profile(env.Ctx, "client-1", client)
	if err != nil || empty.ActorID != "client-1" || empty.Kind != domain.ActorClient {
		t.Fatalf("empty profile: %+v %v", empty, err)
	}

	p, err := env.Engine.UpdateProfile(env.Ctx, "client-1", domain.ProfilePatch{
		FullName:     ptr("Ada Lovelace"),
		CompanyName:  ptr("Analytical"),
		ContactEmail: ptr(" ada@analytical.test "),
		TaxNumber:    ptr("GB123"),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if p.CompanyName != "Analytical" || p.ContactEmail != "ada@analytical.test" || p.TaxNumber != "GB123" {
		t.Fatalf("unexpected profile %+v", p)
	}
	p, err = env.Engine.UpdateProfile(env.Ctx, "client-1", domain.ProfilePatch{Timezone: ptr("Europe/London")})
	if err != nil || p.CompanyName != "Analytical" || p.Timezone != "Europe/London" {
		t.Fatalf("sparse patch must keep other sections: %+v %v", p, err)
	}

	public, err := env.Engine.Profile(env.Ctx, "client-1", actor("sp-1", domain.ActorServiceProvider))
	if err != nil || public.CompanyName != "Analytical" || public.ContactEmail != "" || public.TaxNumber != "" {
		t.Fatalf("public client profile: %+v %v", public, err)
	}

	invalid := map[string]struct {
		actorID string
		patch   domain.ProfilePatch
		want    error
	}{
		"client sets provider field": {"client-1", domain.ProfilePatch{ProfessionalTitle: ptr("CEO")}, domain.ErrInvalidInput},
		"client sets hourly rate":    {"client-1", domain.ProfilePatch{HourlyRate: ptr(int64(10))}, domain.ErrInvalidInput},
		"provider sets billing":      {"sp-1", domain.ProfilePatch{BillingName: ptr("x")}, domain.ErrInvalidInput},
		"bad email":                  {"client-1", domain.ProfilePatch{ContactEmail: ptr("nope")}, domain.ErrInvalidInput},
		"negative rate":              {"sp-1", domain.ProfilePatch{HourlyRate: ptr(int64(-1))}, domain.ErrInvalidInput},
		"unknown actor":              {"ghost", domain.ProfilePatch{Bio: ptr("x")}, domain.ErrUnauthenticated},
	}
	for name, tc := range invalid {
		if _, err := env.Engine.UpdateProfile(env.Ctx, tc.actorID, tc.patch); !errors.Is(err, tc.want) {
			t.Errorf("%s: expected %v, got %v", name, tc.want, err)
		}
	}

	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, repo.EventFilters{Type: "actor.profile_updated"})
	if err != nil || len(evts) != 2 {
		t.Fatalf("expected two profile events, got %d %v", len(evts), err)
	}
}

func TestProviderCredentials(t *testing.T) {
	env := newTestEnv(t)
	sp := actor("sp-1", domain.ActorServiceProvider)

	if _, err := env.Engine.UpdateProfile(env.Ctx, "sp-1", domain.ProfilePatch{
		ProfessionalTitle: ptr("Backend engineer"),
		HourlyRate:        ptr(int64(75)),
		Skills:            ptr([]string{"go", " GO", "postgres"}),
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	item, err := env.Engine.AddPortfolioItem(env.Ctx, "sp-1", domain.PortfolioItem{Title: " Checkout "})
	if err != nil || item.Title != "Checkout" || item.ID == "" {
		t.Fatalf("portfolio: %+v %v", item, err)
	}
	if _, err := env.Engine.AddWorkExperience(env.Ctx, "sp-1", domain.WorkExperience{Role: "Dev", Company: "Acme", StartDate: "2020-01", CurrentlyWorking: true}); err != nil {
		t.Fatalf("experience: %v", err)
	}
	if _, err := env.Engine.AddEducation(env.Ctx, "sp-1", domain.Education{School: "ETH", Degree: "MSc", StartYear: 2012, EndYear: 2014}); err != nil {
		t.Fatalf("education: %v", err)
	}
	if _, err := env.Engine.AddCertification(env.Ctx, "sp-1", domain.Certification{Name: "CKA", Year: 2021}); err != nil {
		t.Fatalf("certification: %v", err)
	}

	p, err := env.Engine.Profile(env.Ctx, "sp-1", actor("client-1", domain.ActorClient))
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Skills) != 2 || len(p.Portfolio) != 1 || len(p.WorkHistory) != 1 || len(p.Education) != 1 || len(p.Certifications) != 1 {
		t.Fatalf("unexpected provider profile %+v", p)
	}

	rejected := map[string]error{
		"client adds portfolio": func() error {
			_, err := env.Engine.AddPortfolioItem(env.Ctx, "client-1", domain.PortfolioItem{Title: "x"})
			return err
		}(),
		"missing title": func() error {
			_, err := env.Engine.AddPortfolioItem(env.Ctx, "sp-1", domain.PortfolioItem{})
			return err
		}(),
		"end before start": func() error {
			_, err := env.Engine.AddWorkExperience(env.Ctx, "sp-1", domain.WorkExperience{Role: "a", Company: "b", StartDate: "2021-05", EndDate: "2020-01"})
			return err
		}(),
		"current with end date": func() error {
			_, err := env.Engine.AddWorkExperience(env.Ctx, "sp-1", domain.WorkExperience{Role: "a", Company: "b", EndDate: "2020-01", CurrentlyWorking: true})
			return err
		}(),
		"bad date": func() error {
			_, err := env.Engine.AddWorkExperience(env.Ctx, "sp-1", domain.WorkExperience{Role: "a", Company: "b", StartDate: "last year"})
			return err
		}(),
		"education years reversed": func() error {
			_, err := env.Engine.AddEducation(env.Ctx, "sp-1", domain.Education{School: "a", Degree: "b", StartYear: 2015, EndYear: 2010})
			return err
		}(),
		"certification year": func() error {
			_, err := env.Engine.AddCertification(env.Ctx, "sp-1", domain.Certification{Name: "x", Year: 42})
			return err
		}(),
	}
	for name, err := range rejected {
		want := domain.ErrInvalidInput
		if name == "client adds portfolio" {
			want = domain.ErrUnauthorized
		}
		if !errors.Is(err, want) {
			t.Errorf("%s: expected %v, got %v", name, want, err)
		}
	}

	if err := env.Engine.RemoveCredential(env.Ctx, "sp-2", domain.CredentialPortfolio, item.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("foreign removal: expected ErrNotFound, got %v", err)
	}
	if err := env.Engine.RemoveCredential(env.Ctx, "sp-1", domain.CredentialPortfolio, item.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := env.Engine.RemoveCredential(env.Ctx, "sp-1", "hobbies", item.ID); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("unknown kind: expected ErrInvalidInput, got %v", err)
	}
	p, err = env.Engine.Profile(env.Ctx, "sp-1", sp)
	if err != nil || len(p.Portfolio) != 0 {
		t.Fatalf("portfolio after removal: %+v %v", p.Portfolio, err)
	}
}

func TestAttachKYC(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.RecordDocument(env.Ctx, "kyc/sp1.pdf", documents.KindKYC, "sp-1", 100); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.RecordDocument(env.Ctx, "work/sp1.pdf", documents.KindWork, "sp-1", 100); err != nil {
		t.Fatal(err)
	}

	for name, tc := range map[string]struct{ actorID, ref string }{
		"someone else's document": {"sp-2", "kyc/sp1.pdf"},
		"wrong kind":              {"sp-1", "work/sp1.pdf"},
		"unregistered":            {"sp-1", "kyc/missing.pdf"},
	} {
		if _, err := env.Engine.AttachKYC(env.Ctx, tc.actorID, tc.ref); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("%s: expected ErrInvalidInput, got %v", name, err)
		}
	}
	if _, err := env.Engine.AttachKYC(env.Ctx, "client-1", "kyc/sp1.pdf"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("client kyc: expected ErrUnauthorized, got %v", err)
	}

	p, err := env.Engine.AttachKYC(env.Ctx, "sp-1", "kyc/sp1.pdf")
	if err != nil || p.KYCDocument != "kyc/sp1.pdf" {
		t.Fatalf("attach: %+v %v", p, err)
	}
	public, err := env.Engine.Profile(env.Ctx, "sp-1", actor("client-1", domain.ActorClient))
	if err != nil || public.KYCDocument != "" {
		t.Fatalf("kyc reference must stay private: %+v %v", public, err)
	}
	if _, err := env.Engine.DocumentAccess(env.Ctx, "kyc/sp1.pdf", actor("client-1", domain.ActorClient)); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("kyc download by client: expected ErrNotFound, got %v", err)
	}
}
