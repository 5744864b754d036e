package auth

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/fricwalter/kanalista4.0/internal/models"
	"github.com/fricwalter/kanalista4.0/internal/store"
)

// UserFinder is the slice of the store the resolver needs.
type UserFinder interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByGoogleID(ctx context.Context, googleID string) (*models.User, error)
	ListAdminUserIDs(ctx context.Context, adminEmails []string) ([]string, error)
	SetUserAdmin(ctx context.Context, userID string, isAdmin bool) error
}

// AuthUser is the resolved caller identity.
type AuthUser struct {
	ID             string
	Email          string
	IsAdmin        bool
	MarketingOptIn bool
}

// Resolver maps a verified session to a user row and computes admin
// status and credential visibility.
type Resolver struct {
	store       UserFinder
	adminEmails []string // lower-cased allow-list, injected at startup
	lookups     []lookup
}

// A lookup is one strategy for finding the user row behind a session.
// It returns store.ErrNotFound when the strategy does not apply or
// matches nothing, so the chain moves on.
type lookup func(ctx context.Context, s Session) (*models.User, error)

// NewResolver creates a Resolver. adminEmails is the effective allow-list
// (defaults unioned with configuration), already lower-cased.
func NewResolver(s UserFinder, adminEmails []string) *Resolver {
	r := &Resolver{store: s, adminEmails: adminEmails}
	// Ordered: internal id first, then email, then provider id. Each is a
	// fallback for schema or timing drift in the user table (tokens minted
	// before the sign-in sync ran carry the provider id as subject).
	r.lookups = []lookup{r.byID, r.byEmail, r.byGoogleID}
	return r
}

// Resolve finds the user behind a session. It returns (nil, nil) when no
// strategy matches — an authenticated token for an unknown user.
func (r *Resolver) Resolve(ctx context.Context, s Session) (*AuthUser, error) {
	row, err := r.find(ctx, s)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}

	admin := row.IsAdmin || r.IsAdminEmail(row.Email)
	if admin && !row.IsAdmin {
		// Allow-list membership without the stored flag: write it back so
		// the flag-based admin queries converge. Best effort.
		if err := r.store.SetUserAdmin(ctx, row.ID, true); err != nil {
			log.Printf("auth: is_admin write-back for %s: %v", row.ID, err)
		}
	}

	return &AuthUser{
		ID:             row.ID,
		Email:          row.Email,
		IsAdmin:        admin,
		MarketingOptIn: row.MarketingOptIn,
	}, nil
}

func (r *Resolver) find(ctx context.Context, s Session) (*models.User, error) {
	for _, strategy := range r.lookups {
		row, err := strategy(ctx, s)
		if err == nil {
			return row, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

func (r *Resolver) byID(ctx context.Context, s Session) (*models.User, error) {
	if uuid.Validate(s.Sub) != nil {
		return nil, store.ErrNotFound
	}
	return r.store.GetUserByID(ctx, s.Sub)
}

func (r *Resolver) byEmail(ctx context.Context, s Session) (*models.User, error) {
	if s.Email == "" {
		return nil, store.ErrNotFound
	}
	return r.store.GetUserByEmail(ctx, s.Email)
}

func (r *Resolver) byGoogleID(ctx context.Context, s Session) (*models.User, error) {
	if s.Sub == "" {
		return nil, store.ErrNotFound
	}
	return r.store.GetUserByGoogleID(ctx, s.Sub)
}

// IsAdminEmail reports allow-list membership.
func (r *Resolver) IsAdminEmail(email string) bool {
	if email == "" {
		return false
	}
	e := strings.ToLower(email)
	for _, a := range r.adminEmails {
		if a == e {
			return true
		}
	}
	return false
}

// VisibleOwnerIDs computes which credential owners the caller may read:
// an admin sees only their own, everyone else sees the admin-curated
// catalog (all admin-owned credentials, read-only).
func (r *Resolver) VisibleOwnerIDs(ctx context.Context, u *AuthUser) ([]string, error) {
	if u.IsAdmin {
		return []string{u.ID}, nil
	}
	return r.store.ListAdminUserIDs(ctx, r.adminEmails)
}
