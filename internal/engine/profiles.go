package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"bidline/internal/documents"
	"bidline/internal/domain"
	"bidline/internal/events"
)

func (e Engine) loadProfile(ctx context.Context, tx *sql.Tx, a domain.Actor) (domain.Profile, error) {
	p, err := e.Repo.GetProfileTx(ctx, tx, a.ID)
	if errors.Is(err, domain.ErrNotFound) {
		p, err = domain.Profile{ActorID: a.ID, Kind: a.Kind, Skills: []string{}}, nil
	}
	if err != nil {
		return p, err
	}
	if a.ServiceProvider() {
		if err := e.Repo.LoadCredentialsTx(ctx, tx, &p); err != nil {
			return p, err
		}
	}
	return p, nil
}

// Profile returns an actor's profile. The owner sees every section; other
// actors see the public view.
func (e Engine) Profile(ctx context.Context, actorID string, viewer domain.Actor) (domain.Profile, error) {
	a, err := e.Repo.GetActor(ctx, actorID)
	if err != nil {
		return domain.Profile{}, err
	}
	if !a.Active && a.ID != viewer.ID {
		return domain.Profile{}, domain.NotFound("profile", actorID)
	}
	p, err := e.loadProfile(ctx, nil, a)
	if err != nil {
		return domain.Profile{}, err
	}
	if a.ID != viewer.ID {
		p = p.Public()
	}
	return p, nil
}

func validateProfilePatch(patch *domain.ProfilePatch) error {
	for _, f := range []*string{patch.ContactEmail, patch.BillingContactEmail} {
		if f != nil {
			*f = strings.TrimSpace(*f)
			if *f != "" && !strings.Contains(*f, "@") {
				return domain.Invalid("%q is not an email address", *f)
			}
		}
	}
	if patch.HourlyRate != nil && *patch.HourlyRate < 0 {
		return domain.Invalid("hourly_rate must not be negative")
	}
	if patch.Skills != nil {
		skills := cleanSkills(*patch.Skills)
		patch.Skills = &skills
	}
	return nil
}

// UpdateProfile writes the sections set on patch to the caller's own
// profile. Sections of the other actor kind are refused.
func (e Engine) UpdateProfile(ctx context.Context, actorID string, patch domain.ProfilePatch) (domain.Profile, error) {
	if err := validateProfilePatch(&patch); err != nil {
		return domain.Profile{}, err
	}
	var p domain.Profile
	err := e.run(ctx, "update_profile", func(t *txn) error {
		a, err := e.authorize(ctx, t, actorID, "")
		if err != nil {
			return err
		}
		if err := patch.CheckOwner(a.Kind); err != nil {
			return err
		}
		if !patch.Empty() {
			now := e.stamp()
			if err := e.Repo.EnsureProfileTx(ctx, t.Tx, a.ID, now); err != nil {
				return err
			}
			if err := e.Repo.UpdateProfileTx(ctx, t.Tx, a.ID, patch, now); err != nil {
				return err
			}
			if err := e.appendEvent(ctx, t, events.ProfileUpdated, "", "actor", a.ID, a.ID,
				events.EventPayload{"fields": patch.Fields()}); err != nil {
				return err
			}
		}
		p, err = e.loadProfile(ctx, t.Tx, a)
		return err
	})
	if err != nil {
		return domain.Profile{}, fmt.Errorf("update profile: %w", err)
	}
	return p, nil
}

// AttachKYC points a provider's profile at an identity document it
// uploaded as kind kyc.
func (e Engine) AttachKYC(ctx context.Context, actorID, ref string) (domain.Profile, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return domain.Profile{}, domain.Invalid("document is required")
	}
	var p domain.Profile
	err := e.run(ctx, "attach_kyc", func(t *txn) error {
		a, err := e.authorize(ctx, t, actorID, domain.ActorServiceProvider)
		if err != nil {
			return err
		}
		d, err := e.Repo.GetDocumentTx(ctx, t.Tx, ref)
		if errors.Is(err, domain.ErrNotFound) || (err == nil && (d.OwnerID != a.ID || d.Kind != documents.KindKYC)) {
			return domain.Invalid("document %s is not a kyc document uploaded by %s", ref, a.ID)
		}
		if err != nil {
			return err
		}
		now := e.stamp()
		if err := e.Repo.EnsureProfileTx(ctx, t.Tx, a.ID, now); err != nil {
			return err
		}
		if err := e.Repo.SetKYCDocumentTx(ctx, t.Tx, a.ID, ref, now); err != nil {
			return err
		}
		if err := e.appendEvent(ctx, t, events.KYCSubmitted, "", "actor", a.ID, a.ID, nil); err != nil {
			return err
		}
		p, err = e.loadProfile(ctx, t.Tx, a)
		return err
	})
	if err != nil {
		return domain.Profile{}, fmt.Errorf("attach kyc: %w", err)
	}
	return p, nil
}

func (e Engine) addCredential(ctx context.Context, op, kind, id, actorID string, insert func(t *txn) error) error {
	err := e.run(ctx, op, func(t *txn) error {
		if _, err := e.authorize(ctx, t, actorID, domain.ActorServiceProvider); err != nil {
			return err
		}
		if err := insert(t); err != nil {
			return err
		}
		return e.appendEvent(ctx, t, events.CredentialAdded, "", kind, id, actorID, nil)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", strings.ReplaceAll(op, "_", " "), err)
	}
	return nil
}

func (e Engine) AddPortfolioItem(ctx context.Context, actorID string, it domain.PortfolioItem) (domain.PortfolioItem, error) {
	it.Title = strings.TrimSpace(it.Title)
	if it.Title == "" {
		return domain.PortfolioItem{}, domain.Invalid("title is required")
	}
	it.ID, it.ActorID, it.CreatedAt = uuid.NewString(), actorID, e.stamp()
	err := e.addCredential(ctx, "add_portfolio_item", domain.CredentialPortfolio, it.ID, actorID, func(t *txn) error {
		return e.Repo.InsertPortfolioItemTx(ctx, t.Tx, it)
	})
	if err != nil {
		return domain.PortfolioItem{}, err
	}
	return it, nil
}

func (e Engine) AddWorkExperience(ctx context.Context, actorID string, w domain.WorkExperience) (domain.WorkExperience, error) {
	w.Role, w.Company = strings.TrimSpace(w.Role), strings.TrimSpace(w.Company)
	if w.Role == "" || w.Company == "" {
		return domain.WorkExperience{}, domain.Invalid("role and company are required")
	}
	start, err := parseMonth(w.StartDate)
	if err != nil {
		return domain.WorkExperience{}, err
	}
	end, err := parseMonth(w.EndDate)
	if err != nil {
		return domain.WorkExperience{}, err
	}
	if w.CurrentlyWorking && w.EndDate != "" {
		return domain.WorkExperience{}, domain.Invalid("end_date must be empty while currently working")
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return domain.WorkExperience{}, domain.Invalid("end_date precedes start_date")
	}
	w.ID, w.ActorID, w.CreatedAt = uuid.NewString(), actorID, e.stamp()
	err = e.addCredential(ctx, "add_work_experience", domain.CredentialExperience, w.ID, actorID, func(t *txn) error {
		return e.Repo.InsertWorkExperienceTx(ctx, t.Tx, w)
	})
	if err != nil {
		return domain.WorkExperience{}, err
	}
	return w, nil
}

func (e Engine) AddEducation(ctx context.Context, actorID string, ed domain.Education) (domain.Education, error) {
	ed.School, ed.Degree = strings.TrimSpace(ed.School), strings.TrimSpace(ed.Degree)
	if ed.School == "" || ed.Degree == "" {
		return domain.Education{}, domain.Invalid("school and degree are required")
	}
	if err := checkYears(ed.StartYear, ed.EndYear); err != nil {
		return domain.Education{}, err
	}
	ed.ID, ed.ActorID, ed.CreatedAt = uuid.NewString(), actorID, e.stamp()
	err := e.addCredential(ctx, "add_education", domain.CredentialEducation, ed.ID, actorID, func(t *txn) error {
		return e.Repo.InsertEducationTx(ctx, t.Tx, ed)
	})
	if err != nil {
		return domain.Education{}, err
	}
	return ed, nil
}

func (e Engine) AddCertification(ctx context.Context, actorID string, c domain.Certification) (domain.Certification, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return domain.Certification{}, domain.Invalid("name is required")
	}
	if err := checkYears(c.Year, 0); err != nil {
		return domain.Certification{}, err
	}
	c.ID, c.ActorID, c.CreatedAt = uuid.NewString(), actorID, e.stamp()
	err := e.addCredential(ctx, "add_certification", domain.CredentialCertification, c.ID, actorID, func(t *txn) error {
		return e.Repo.InsertCertificationTx(ctx, t.Tx, c)
	})
	if err != nil {
		return domain.Certification{}, err
	}
	return c, nil
}

// RemoveCredential deletes one of the caller's portfolio, experience,
// education or certification entries.
func (e Engine) RemoveCredential(ctx context.Context, actorID, kind, id string) error {
	err := e.run(ctx, "remove_credential", func(t *txn) error {
		if _, err := e.authorize(ctx, t, actorID, domain.ActorServiceProvider); err != nil {
			return err
		}
		if err := e.Repo.DeleteCredentialTx(ctx, t.Tx, kind, actorID, id); err != nil {
			return err
		}
		return e.appendEvent(ctx, t, events.CredentialRemoved, "", kind, id, actorID, nil)
	})
	if err != nil {
		return fmt.Errorf("remove credential: %w", err)
	}
	return nil
}

// parseMonth accepts YYYY-MM or YYYY-MM-DD; empty is the zero time.
func parseMonth(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{"2006-01-02", "2006-01"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, domain.Invalid("date %q must be YYYY-MM or YYYY-MM-DD", v)
}

func checkYears(start, end int) error {
	for _, y := range []int{start, end} {
		if y != 0 && (y < 1900 || y > 2200) {
			return domain.Invalid("year %d out of range", y)
		}
	}
	if start != 0 && end != 0 && end < start {
		return domain.Invalid("end_year precedes start_year")
	}
	return nil
}
