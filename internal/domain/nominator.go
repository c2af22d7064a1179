package domain

import (
	"strings"
	"time"
)

// Nominator is the person who files a nomination. Nominators are keyed by
// email: repeat submissions update the existing record instead of creating a
// new one.
type Nominator struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Company  string `json:"company"`
	JobTitle string `json:"job_title"`
	Phone    string `json:"phone"`
	Country  string `json:"country"`
	LinkedIn string `json:"linkedin"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NormalizeEmail lowercases and trims an email address so uniqueness checks
// are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NominatorSnapshot is the denormalized nominator payload stored in outbox
// entries. It carries everything an external sync needs so dispatch never has
// to re-read the nominator row.
type NominatorSnapshot struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Company  string `json:"company"`
	JobTitle string `json:"job_title,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Country  string `json:"country,omitempty"`
	LinkedIn string `json:"linkedin,omitempty"`
}

// Snapshot captures the nominator's current state for an outbox payload.
func (n *Nominator) Snapshot() NominatorSnapshot {
	return NominatorSnapshot{
		Email:    n.Email,
		Name:     n.Name,
		Company:  n.Company,
		JobTitle: n.JobTitle,
		Phone:    n.Phone,
		Country:  n.Country,
		LinkedIn: n.LinkedIn,
	}
}
