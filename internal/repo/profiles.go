package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"bidline/internal/db"
	"bidline/internal/domain"
)

var profileColumns = func() string {
	cols := []string{"p.actor_id", "a.kind"}
	for _, c := range domain.ProfileTextColumns() {
		cols = append(cols, "COALESCE(p."+c+",'')")
	}
	cols = append(cols, "COALESCE(p.hourly_rate,0)", "p.skills_json", "COALESCE(p.kyc_document,'')", "p.updated_at")
	return strings.Join(cols, ",")
}()

func scanProfile(row rowScanner) (domain.Profile, error) {
	var p domain.Profile
	var kind, skills string
	dest := []any{&p.ActorID, &kind}
	for _, t := range p.TextTargets() {
		dest = append(dest, t)
	}
	dest = append(dest, &p.HourlyRate, &skills, &p.KYCDocument, &p.UpdatedAt)
	if err := row.Scan(dest...); err != nil {
		return p, err
	}
	p.Kind = domain.ActorKind(kind)
	p.Skills = decodeSkills(skills)
	return p, nil
}

// GetProfileTx returns the stored profile fields of an actor. Credential
// lists are loaded separately.
func (r Repo) GetProfileTx(ctx context.Context, tx *sql.Tx, actorID string) (domain.Profile, error) {
	p, err := scanProfile(r.queryRow(ctx, tx, `SELECT `+profileColumns+` FROM actor_profiles p JOIN actors a ON a.id=p.actor_id WHERE p.actor_id=?`, actorID))
	if err == sql.ErrNoRows {
		return p, domain.NotFound("profile", actorID)
	}
	if err != nil {
		return p, db.Classify("get profile", err)
	}
	return p, nil
}

// EnsureProfileTx creates an empty profile row unless one exists.
func (r Repo) EnsureProfileTx(ctx context.Context, tx *sql.Tx, actorID, now string) error {
	_, err := r.exec(ctx, tx, `INSERT INTO actor_profiles(actor_id,updated_at) VALUES (?,?) ON CONFLICT(actor_id) DO NOTHING`, actorID, now)
	return db.Classify("create profile", err)
}

// UpdateProfileTx writes the fields set on patch.
func (r Repo) UpdateProfileTx(ctx context.Context, tx *sql.Tx, actorID string, patch domain.ProfilePatch, updatedAt string) error {
	var (
		fields []string
		args   []any
	)
	cols, vals := patch.TextChanges()
	for i, c := range cols {
		fields = append(fields, c+"=?")
		args = append(args, nullable(vals[i]))
	}
	if patch.HourlyRate != nil {
		fields = append(fields, "hourly_rate=?")
		args = append(args, *patch.HourlyRate)
	}
	if patch.Skills != nil {
		fields = append(fields, "skills_json=?")
		args = append(args, encodeSkills(*patch.Skills))
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, updatedAt, actorID)
	res, err := r.exec(ctx, tx, fmt.Sprintf(`UPDATE actor_profiles SET %s WHERE actor_id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return db.Classify("update profile", err)
	}
	if rowsAffected(res) == 0 {
		return domain.NotFound("profile", actorID)
	}
	return nil
}

// SetKYCDocumentTx points the profile at an uploaded identity document.
func (r Repo) SetKYCDocumentTx(ctx context.Context, tx *sql.Tx, actorID, ref, updatedAt string) error {
	res, err := r.exec(ctx, tx, `UPDATE actor_profiles SET kyc_document=?, updated_at=? WHERE actor_id=?`, ref, updatedAt, actorID)
	if err != nil {
		return db.Classify("set kyc document", err)
	}
	if rowsAffected(res) == 0 {
		return domain.NotFound("profile", actorID)
	}
	return nil
}

var credentialTables = map[string]string{
	domain.CredentialPortfolio:     "provider_portfolio",
	domain.CredentialExperience:    "provider_experience",
	domain.CredentialEducation:     "provider_education",
	domain.CredentialCertification: "provider_certifications",
}

func (r Repo) InsertPortfolioItemTx(ctx context.Context, tx *sql.Tx, it domain.PortfolioItem) error {
	_, err := r.exec(ctx, tx, `INSERT INTO provider_portfolio(id,actor_id,title,project_url,description,image_url,created_at) VALUES (?,?,?,?,?,?,?)`,
		it.ID, it.ActorID, it.Title, nullable(it.ProjectURL), nullable(it.Description), nullable(it.ImageURL), it.CreatedAt)
	return db.Classify("insert portfolio item", err)
}

func (r Repo) InsertWorkExperienceTx(ctx context.Context, tx *sql.Tx, w domain.WorkExperience) error {
	_, err := r.exec(ctx, tx, `INSERT INTO provider_experience(id,actor_id,role,company,start_date,end_date,currently_working,summary,created_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		w.ID, w.ActorID, w.Role, w.Company, nullable(w.StartDate), nullable(w.EndDate), w.CurrentlyWorking, nullable(w.Summary), w.CreatedAt)
	return db.Classify("insert work experience", err)
}

func (r Repo) InsertEducationTx(ctx context.Context, tx *sql.Tx, ed domain.Education) error {
	_, err := r.exec(ctx, tx, `INSERT INTO provider_education(id,actor_id,school,degree,field_of_study,start_year,end_year,highlights,created_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		ed.ID, ed.ActorID, ed.School, ed.Degree, nullable(ed.FieldOfStudy), nullableInt(ed.StartYear), nullableInt(ed.EndYear), nullable(ed.Highlights), ed.CreatedAt)
	return db.Classify("insert education", err)
}

func (r Repo) InsertCertificationTx(ctx context.Context, tx *sql.Tx, c domain.Certification) error {
	_, err := r.exec(ctx, tx, `INSERT INTO provider_certifications(id,actor_id,name,issuer,year,certificate_link,created_at) VALUES (?,?,?,?,?,?,?)`,
		c.ID, c.ActorID, c.Name, nullable(c.Issuer), nullableInt(c.Year), nullable(c.Link), c.CreatedAt)
	return db.Classify("insert certification", err)
}

// DeleteCredentialTx removes one credential entry owned by actorID.
func (r Repo) DeleteCredentialTx(ctx context.Context, tx *sql.Tx, kind, actorID, id string) error {
	table, ok := credentialTables[kind]
	if !ok {
		return domain.Invalid("unknown credential kind %q", kind)
	}
	res, err := r.exec(ctx, tx, `DELETE FROM `+table+` WHERE id=? AND actor_id=?`, id, actorID)
	if err != nil {
		return db.Classify("delete "+kind, err)
	}
	if rowsAffected(res) == 0 {
		return domain.NotFound(kind, id)
	}
	return nil
}

// LoadCredentialsTx fills the credential lists of p, oldest entry first.
func (r Repo) LoadCredentialsTx(ctx context.Context, tx *sql.Tx, p *domain.Profile) error {
	var err error
	if p.Portfolio, err = listRows(ctx, r, tx, "portfolio",
		`SELECT id,actor_id,title,COALESCE(project_url,''),COALESCE(description,''),COALESCE(image_url,''),created_at FROM provider_portfolio WHERE actor_id=? ORDER BY created_at, id`,
		p.ActorID, func(row rowScanner) (domain.PortfolioItem, error) {
			var it domain.PortfolioItem
			err := row.Scan(&it.ID, &it.ActorID, &it.Title, &it.ProjectURL, &it.Description, &it.ImageURL, &it.CreatedAt)
			return it, err
		}); err != nil {
		return err
	}
	if p.WorkHistory, err = listRows(ctx, r, tx, "work experience",
		`SELECT id,actor_id,role,company,COALESCE(start_date,''),COALESCE(end_date,''),currently_working,COALESCE(summary,''),created_at FROM provider_experience WHERE actor_id=? ORDER BY created_at, id`,
		p.ActorID, func(row rowScanner) (domain.WorkExperience, error) {
			var w domain.WorkExperience
			err := row.Scan(&w.ID, &w.ActorID, &w.Role, &w.Company, &w.StartDate, &w.EndDate, &w.CurrentlyWorking, &w.Summary, &w.CreatedAt)
			return w, err
		}); err != nil {
		return err
	}
	if p.Education, err = listRows(ctx, r, tx, "education",
		`SELECT id,actor_id,school,degree,COALESCE(field_of_study,''),COALESCE(start_year,0),COALESCE(end_year,0),COALESCE(highlights,''),created_at FROM provider_education WHERE actor_id=? ORDER BY created_at, id`,
		p.ActorID, func(row rowScanner) (domain.Education, error) {
			var ed domain.Education
			err := row.Scan(&ed.ID, &ed.ActorID, &ed.School, &ed.Degree, &ed.FieldOfStudy, &ed.StartYear, &ed.EndYear, &ed.Highlights, &ed.CreatedAt)
			return ed, err
		}); err != nil {
		return err
	}
	p.Certifications, err = listRows(ctx, r, tx, "certifications",
		`SELECT id,actor_id,name,COALESCE(issuer,''),COALESCE(year,0),COALESCE(certificate_link,''),created_at FROM provider_certifications WHERE actor_id=? ORDER BY created_at, id`,
		p.ActorID, func(row rowScanner) (domain.Certification, error) {
			var c domain.Certification
			err := row.Scan(&c.ID, &c.ActorID, &c.Name, &c.Issuer, &c.Year, &c.Link, &c.CreatedAt)
			return c, err
		})
	return err
}

func listRows[T any](ctx context.Context, r Repo, tx *sql.Tx, what, query string, arg any, scan func(rowScanner) (T, error)) ([]T, error) {
	rows, err := r.query(ctx, tx, query, arg)
	if err != nil {
		return nil, db.Classify("list "+what, err)
	}
	defer rows.Close()
	var res []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

func nullableInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}
