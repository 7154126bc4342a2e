package domain

// Document is an uploaded artifact and the actor that uploaded it.
type Document struct {
	Ref       string `json:"ref"`
	Kind      string `json:"kind"`
	OwnerID   string `json:"owner_id"`
	Size      int64  `json:"size"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Profile is the self-managed part of an actor record. Personal details
// apply to both kinds; company, contact and billing sections belong to
// clients and professional details to service providers.
type Profile struct {
	ActorID string    `json:"actor_id"`
	Kind    ActorKind `json:"kind" enum:"client,service_provider"`

	FullName        string `json:"full_name,omitempty"`
	ProfilePhoto    string `json:"profile_photo,omitempty"`
	LocationCountry string `json:"location_country,omitempty"`
	LocationCity    string `json:"location_city,omitempty"`
	Language        string `json:"language,omitempty"`
	Bio             string `json:"bio,omitempty"`

	CompanyName string `json:"company_name,omitempty"`
	CompanySize string `json:"company_size,omitempty"`
	Industry    string `json:"industry,omitempty"`
	Website     string `json:"website,omitempty"`

	PreferredContactMethod string `json:"preferred_contact_method,omitempty"`
	ContactEmail           string `json:"contact_email,omitempty"`
	ContactPhone           string `json:"contact_phone,omitempty"`
	Timezone               string `json:"timezone,omitempty"`
	Notes                  string `json:"notes,omitempty"`

	BillingName         string `json:"billing_name,omitempty"`
	TaxNumber           string `json:"tax_number,omitempty"`
	BillingContactEmail string `json:"billing_contact_email,omitempty"`
	BillingContactPhone string `json:"billing_contact_phone,omitempty"`
	BillingAddress      string `json:"billing_address,omitempty"`

	ProfessionalTitle string   `json:"professional_title,omitempty"`
	Availability      string   `json:"availability,omitempty"`
	ExperienceLevel   string   `json:"experience_level,omitempty"`
	HourlyRate        int64    `json:"hourly_rate,omitempty"`
	Skills            []string `json:"skills"`
	KYCDocument       string   `json:"kyc_document,omitempty"`

	Portfolio      []PortfolioItem  `json:"portfolio,omitempty"`
	WorkHistory    []WorkExperience `json:"work_history,omitempty"`
	Education      []Education      `json:"education,omitempty"`
	Certifications []Certification  `json:"certifications,omitempty"`

	UpdatedAt string `json:"updated_at,omitempty" format:"date-time"`
}

// Public strips what only the owner may read: identity documents, and for
// clients everything but personal details and company.
func (p Profile) Public() Profile {
	p.KYCDocument = ""
	if p.Kind == ActorClient {
		p.PreferredContactMethod, p.ContactEmail, p.ContactPhone, p.Timezone, p.Notes = "", "", "", "", ""
		p.BillingName, p.TaxNumber, p.BillingContactEmail, p.BillingContactPhone, p.BillingAddress = "", "", "", "", ""
	}
	return p
}

// ProfilePatch carries the sections an actor may overwrite. Nil fields are
// left untouched; an empty string clears a field.
type ProfilePatch struct {
	FullName        *string `json:"full_name,omitempty"`
	ProfilePhoto    *string `json:"profile_photo,omitempty"`
	LocationCountry *string `json:"location_country,omitempty"`
	LocationCity    *string `json:"location_city,omitempty"`
	Language        *string `json:"language,omitempty"`
	Bio             *string `json:"bio,omitempty"`

	CompanyName *string `json:"company_name,omitempty"`
	CompanySize *string `json:"company_size,omitempty"`
	Industry    *string `json:"industry,omitempty"`
	Website     *string `json:"website,omitempty"`

	PreferredContactMethod *string `json:"preferred_contact_method,omitempty"`
	ContactEmail           *string `json:"contact_email,omitempty"`
	ContactPhone           *string `json:"contact_phone,omitempty"`
	Timezone               *string `json:"timezone,omitempty"`
	Notes                  *string `json:"notes,omitempty"`

	BillingName         *string `json:"billing_name,omitempty"`
	TaxNumber           *string `json:"tax_number,omitempty"`
	BillingContactEmail *string `json:"billing_contact_email,omitempty"`
	BillingContactPhone *string `json:"billing_contact_phone,omitempty"`
	BillingAddress      *string `json:"billing_address,omitempty"`

	ProfessionalTitle *string   `json:"professional_title,omitempty"`
	Availability      *string   `json:"availability,omitempty"`
	ExperienceLevel   *string   `json:"experience_level,omitempty"`
	HourlyRate        *int64    `json:"hourly_rate,omitempty"`
	Skills            *[]string `json:"skills,omitempty"`
}

// profileText lists the free-text profile columns, the actor kind allowed
// to write each ("" for both) and where the value lives on each struct.
var profileText = []struct {
	column string
	owner  ActorKind
	field  func(*Profile) *string
	patch  func(*ProfilePatch) *string
}{
	{"full_name", "", func(p *Profile) *string { return &p.FullName }, func(pp *ProfilePatch) *string { return pp.FullName }},
	{"profile_photo", "", func(p *Profile) *string { return &p.ProfilePhoto }, func(pp *ProfilePatch) *string { return pp.ProfilePhoto }},
	{"location_country", "", func(p *Profile) *string { return &p.LocationCountry }, func(pp *ProfilePatch) *string { return pp.LocationCountry }},
	{"location_city", "", func(p *Profile) *string { return &p.LocationCity }, func(pp *ProfilePatch) *string { return pp.LocationCity }},
	{"language", "", func(p *Profile) *string { return &p.Language }, func(pp *ProfilePatch) *string { return pp.Language }},
	{"bio", "", func(p *Profile) *string { return &p.Bio }, func(pp *ProfilePatch) *string { return pp.Bio }},

	{"company_name", ActorClient, func(p *Profile) *string { return &p.CompanyName }, func(pp *ProfilePatch) *string { return pp.CompanyName }},
	{"company_size", ActorClient, func(p *Profile) *string { return &p.CompanySize }, func(pp *ProfilePatch) *string { return pp.CompanySize }},
	{"industry", ActorClient, func(p *Profile) *string { return &p.Industry }, func(pp *ProfilePatch) *string { return pp.Industry }},
	{"website", ActorClient, func(p *Profile) *string { return &p.Website }, func(pp *ProfilePatch) *string { return pp.Website }},

	{"preferred_contact_method", ActorClient, func(p *Profile) *string { return &p.PreferredContactMethod }, func(pp *ProfilePatch) *string { return pp.PreferredContactMethod }},
	{"contact_email", ActorClient, func(p *Profile) *string { return &p.ContactEmail }, func(pp *ProfilePatch) *string { return pp.ContactEmail }},
	{"contact_phone", ActorClient, func(p *Profile) *string { return &p.ContactPhone }, func(pp *ProfilePatch) *string { return pp.ContactPhone }},
	{"timezone", ActorClient, func(p *Profile) *string { return &p.Timezone }, func(pp *ProfilePatch) *string { return pp.Timezone }},
	{"notes", ActorClient, func(p *Profile) *string { return &p.Notes }, func(pp *ProfilePatch) *string { return pp.Notes }},

	{"billing_name", ActorClient, func(p *Profile) *string { return &p.BillingName }, func(pp *ProfilePatch) *string { return pp.BillingName }},
	{"tax_number", ActorClient, func(p *Profile) *string { return &p.TaxNumber }, func(pp *ProfilePatch) *string { return pp.TaxNumber }},
	{"billing_contact_email", ActorClient, func(p *Profile) *string { return &p.BillingContactEmail }, func(pp *ProfilePatch) *string { return pp.BillingContactEmail }},
	{"billing_contact_phone", ActorClient, func(p *Profile) *string { return &p.BillingContactPhone }, func(pp *ProfilePatch) *string { return pp.BillingContactPhone }},
	{"billing_address", ActorClient, func(p *Profile) *string { return &p.BillingAddress }, func(pp *ProfilePatch) *string { return pp.BillingAddress }},

	{"professional_title", ActorServiceProvider, func(p *Profile) *string { return &p.ProfessionalTitle }, func(pp *ProfilePatch) *string { return pp.ProfessionalTitle }},
	{"availability", ActorServiceProvider, func(p *Profile) *string { return &p.Availability }, func(pp *ProfilePatch) *string { return pp.Availability }},
	{"experience_level", ActorServiceProvider, func(p *Profile) *string { return &p.ExperienceLevel }, func(pp *ProfilePatch) *string { return pp.ExperienceLevel }},
}

// ProfileTextColumns returns the free-text profile columns in storage order.
func ProfileTextColumns() []string {
	cols := make([]string, len(profileText))
	for i, f := range profileText {
		cols[i] = f.column
	}
	return cols
}

// TextTargets returns pointers to p's free-text fields in the order of
// ProfileTextColumns.
func (p *Profile) TextTargets() []*string {
	out := make([]*string, len(profileText))
	for i, f := range profileText {
		out[i] = f.field(p)
	}
	return out
}

// TextChanges returns the columns and values of the free-text fields set
// on pp, in storage order.
func (pp *ProfilePatch) TextChanges() ([]string, []string) {
	var cols, vals []string
	for _, f := range profileText {
		if v := f.patch(pp); v != nil {
			cols = append(cols, f.column)
			vals = append(vals, *v)
		}
	}
	return cols, vals
}

// Fields names every field set on pp.
func (pp *ProfilePatch) Fields() []string {
	cols, _ := pp.TextChanges()
	if pp.HourlyRate != nil {
		cols = append(cols, "hourly_rate")
	}
	if pp.Skills != nil {
		cols = append(cols, "skills")
	}
	return cols
}

func (pp *ProfilePatch) Empty() bool {
	return len(pp.Fields()) == 0
}

// CheckOwner rejects fields that belong to the other actor kind.
func (pp *ProfilePatch) CheckOwner(kind ActorKind) error {
	for _, f := range profileText {
		if f.owner != "" && f.owner != kind && f.patch(pp) != nil {
			return Invalid("%s is not a %s profile field", f.column, kind)
		}
	}
	if kind != ActorServiceProvider && (pp.HourlyRate != nil || pp.Skills != nil) {
		return Invalid("hourly_rate and skills are service provider profile fields")
	}
	return nil
}

// Credential kinds a service provider lists on its profile.
const (
	CredentialPortfolio     = "portfolio"
	CredentialExperience    = "experience"
	CredentialEducation     = "education"
	CredentialCertification = "certification"
)

type PortfolioItem struct {
	ID          string `json:"id"`
	ActorID     string `json:"actor_id"`
	Title       string `json:"title"`
	ProjectURL  string `json:"project_url,omitempty"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type WorkExperience struct {
	ID               string `json:"id"`
	ActorID          string `json:"actor_id"`
	Role             string `json:"role"`
	Company          string `json:"company"`
	StartDate        string `json:"start_date,omitempty"`
	EndDate          string `json:"end_date,omitempty"`
	CurrentlyWorking bool   `json:"currently_working"`
	Summary          string `json:"summary,omitempty"`
	CreatedAt        string `json:"created_at" format:"date-time"`
}

type Education struct {
	ID           string `json:"id"`
	ActorID      string `json:"actor_id"`
	School       string `json:"school"`
	Degree       string `json:"degree"`
	FieldOfStudy string `json:"field_of_study,omitempty"`
	StartYear    int    `json:"start_year,omitempty"`
	EndYear      int    `json:"end_year,omitempty"`
	Highlights   string `json:"highlights,omitempty"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type Certification struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name"`
	Issuer    string `json:"issuer,omitempty"`
	Year      int    `json:"year,omitempty"`
	Link      string `json:"certificate_link,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
