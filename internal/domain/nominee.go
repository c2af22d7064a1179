package domain

import (
	"net/url"
	"strings"
	"time"
)

// NomineeKind discriminates person nominees from company nominees.
type NomineeKind string

const (
	NomineePerson  NomineeKind = "person"
	NomineeCompany NomineeKind = "company"
)

// Nominee is the person or company being nominated. Identity (kind + natural
// key) is immutable once created; content fields are editable on repeat
// submissions.
type Nominee struct {
	ID   string      `json:"id"`
	Kind NomineeKind `json:"kind"`
	Name string      `json:"name"`

	// Person fields
	Email       string `json:"email,omitempty"`
	JobTitle    string `json:"job_title,omitempty"`
	Employer    string `json:"employer,omitempty"`
	HeadshotURL string `json:"headshot_url,omitempty"`
	Bio         string `json:"bio,omitempty"`

	// Company fields
	Website     string `json:"website,omitempty"`
	Industry    string `json:"industry,omitempty"`
	CompanySize string `json:"company_size,omitempty"`
	LogoURL     string `json:"logo_url,omitempty"`

	// Shared
	LinkedIn string `json:"linkedin,omitempty"`
	Why      string `json:"why,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IdentityKey is the natural key used to de-duplicate nominees across
// submissions: email for people, website domain for companies, falling back
// to the lowercased name when neither is present.
func (n *Nominee) IdentityKey() string {
	switch n.Kind {
	case NomineePerson:
		if n.Email != "" {
			return NormalizeEmail(n.Email)
		}
	case NomineeCompany:
		if d := DomainFromWebsite(n.Website); d != "" {
			return d
		}
	}
	return strings.ToLower(strings.TrimSpace(n.Name))
}

// DomainFromWebsite extracts the bare host from a website URL. External CRM
// company records are keyed by domain, never by internal ids.
func DomainFromWebsite(website string) string {
	w := strings.TrimSpace(strings.ToLower(website))
	if w == "" {
		return ""
	}
	if !strings.Contains(w, "://") {
		w = "https://" + w
	}
	u, err := url.Parse(w)
	if err != nil || u.Host == "" {
		return strings.TrimPrefix(strings.ToLower(website), "www.")
	}
	return strings.TrimPrefix(u.Host, "www.")
}

// NomineeSnapshot is the denormalized nominee payload for outbox entries.
type NomineeSnapshot struct {
	Kind        NomineeKind `json:"kind"`
	Name        string      `json:"name"`
	Email       string      `json:"email,omitempty"`
	JobTitle    string      `json:"job_title,omitempty"`
	Employer    string      `json:"employer,omitempty"`
	Website     string      `json:"website,omitempty"`
	Industry    string      `json:"industry,omitempty"`
	CompanySize string      `json:"company_size,omitempty"`
	LinkedIn    string      `json:"linkedin,omitempty"`
	Why         string      `json:"why,omitempty"`
}

// Snapshot captures the nominee's current state for an outbox payload.
func (n *Nominee) Snapshot() NomineeSnapshot {
	return NomineeSnapshot{
		Kind:        n.Kind,
		Name:        n.Name,
		Email:       n.Email,
		JobTitle:    n.JobTitle,
		Employer:    n.Employer,
		Website:     n.Website,
		Industry:    n.Industry,
		CompanySize: n.CompanySize,
		LinkedIn:    n.LinkedIn,
		Why:         n.Why,
	}
}
