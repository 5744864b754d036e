package models

import "time"

// Credential is one stored Xtream panel account ({dns, username, password}
// plus a display label), owned by exactly one user. The password is stored
// as supplied; the API never returns username or password to the browser.
type Credential struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	DNS       string     `json:"dns"` // normalized: no trailing slash
	Username  string     `json:"username"`
	Password  string     `json:"password"`
	Label     string     `json:"label"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// SafeCredential is the listing shape returned by GET /api/credentials.
// Username and password are withheld.
type SafeCredential struct {
	ID        string     `json:"id"`
	DNS       string     `json:"dns"`
	Label     string     `json:"label"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// Safe strips the secret fields for API responses.
func (c Credential) Safe() SafeCredential {
	return SafeCredential{ID: c.ID, DNS: c.DNS, Label: c.Label, CreatedAt: c.CreatedAt}
}
