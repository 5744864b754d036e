package models

import "time"

// User is a row from the users table. Rows are created by the sign-in
// sync (Google OAuth upsert), never by credential or browse operations.
type User struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	GoogleID         string     `json:"google_id,omitempty"`
	Name             *string    `json:"name,omitempty"`
	AvatarURL        *string    `json:"avatar_url,omitempty"`
	IsAdmin          bool       `json:"is_admin"`
	MarketingOptIn   bool       `json:"marketing_opt_in"`
	MarketingOptInAt *time.Time `json:"marketing_opt_in_at,omitempty"`
	CreatedAt        *time.Time `json:"created_at,omitempty"`
}
