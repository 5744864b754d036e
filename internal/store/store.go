package store

import (
	"context"
	"errors"

	"github.com/fricwalter/kanalista4.0/internal/models"
)

// ErrNotFound is returned when a lookup matches no row. Callers must not
// distinguish "does not exist" from "not visible to you": both surface
// as ErrNotFound so credential existence never leaks across users.
var ErrNotFound = errors.New("not found")

// Store defines persistence for users, Xtream credentials, and the
// per-credential channel listing cache.
type Store interface {
	// GetUserByID returns a user by primary key.
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	// GetUserByEmail returns a user by email.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// GetUserByGoogleID returns a user by OAuth provider id.
	GetUserByGoogleID(ctx context.Context, googleID string) (*models.User, error)
	// UpsertUser creates or refreshes a user row on sign-in (google_id conflict key).
	UpsertUser(ctx context.Context, googleID, email string, name, avatarURL *string) (*models.User, error)
	// ListAdminUserIDs returns ids of users flagged is_admin; when none are
	// flagged it falls back to users whose email is in adminEmails.
	ListAdminUserIDs(ctx context.Context, adminEmails []string) ([]string, error)
	// SetUserAdmin sets the is_admin flag.
	SetUserAdmin(ctx context.Context, userID string, isAdmin bool) error
	// SetMarketingConsent sets marketing_opt_in and stamps (or clears)
	// marketing_opt_in_at.
	SetMarketingConsent(ctx context.Context, userID string, optIn bool) error

	// CreateCredential persists a credential and returns it with id and
	// created_at filled in.
	CreateCredential(ctx context.Context, cred *models.Credential) (*models.Credential, error)
	// ListCredentials returns credentials owned by any of ownerIDs,
	// newest first.
	ListCredentials(ctx context.Context, ownerIDs []string) ([]models.Credential, error)
	// GetCredential returns the credential only when its owner is in
	// ownerIDs; otherwise ErrNotFound.
	GetCredential(ctx context.Context, id string, ownerIDs []string) (*models.Credential, error)
	// DeleteCredential deletes the credential only when ownerID owns it.
	DeleteCredential(ctx context.Context, id, ownerID string) error

	// GetCacheEntry returns the stored listing for (credential, type),
	// or ErrNotFound when the pair was never fetched.
	GetCacheEntry(ctx context.Context, credentialID string, contentType models.ContentType) (*models.CacheEntry, error)
	// UpsertCacheEntry writes the listing snapshot for (credential, type).
	// Conflict-free: at most one row per pair, last writer wins.
	UpsertCacheEntry(ctx context.Context, entry *models.CacheEntry) error
}
