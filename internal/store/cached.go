package store

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/fricwalter/kanalista4.0/internal/cache"
	"github.com/fricwalter/kanalista4.0/internal/models"
)

// TTLs for the Redis layer. These only smooth out the lookup chatter on
// every request (user resolution, credential reads); the channel listing
// cache is a Postgres table with its own freshness contract and is not
// cached here.
const (
	ttlUser     = 2 * time.Minute
	ttlAdminIDs = 1 * time.Minute
	ttlCred     = 5 * time.Minute
	ttlCredList = 1 * time.Minute
)

// CachedStore wraps a Store with a Redis caching layer. Read-heavy
// operations are served from cache when possible; writes invalidate the
// relevant keys.
type CachedStore struct {
	inner Store
	cache *cache.Redis
}

// NewCachedStore creates a CachedStore that wraps inner with Redis caching.
func NewCachedStore(inner Store, c *cache.Redis) *CachedStore {
	return &CachedStore{inner: inner, cache: c}
}

// --- cached user reads ---

func (c *CachedStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return c.getUser(ctx, "user:id:"+id, func() (*models.User, error) {
		return c.inner.GetUserByID(ctx, id)
	})
}

func (c *CachedStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return c.getUser(ctx, "user:email:"+strings.ToLower(email), func() (*models.User, error) {
		return c.inner.GetUserByEmail(ctx, email)
	})
}

func (c *CachedStore) GetUserByGoogleID(ctx context.Context, googleID string) (*models.User, error) {
	return c.getUser(ctx, "user:gid:"+googleID, func() (*models.User, error) {
		return c.inner.GetUserByGoogleID(ctx, googleID)
	})
}

func (c *CachedStore) getUser(ctx context.Context, key string, load func() (*models.User, error)) (*models.User, error) {
	if v, err := cache.Get[models.User](ctx, c.cache, key); err == nil {
		return &v, nil
	}
	u, err := load()
	if err != nil {
		return nil, err
	}
	if err := cache.Set(ctx, c.cache, key, u, ttlUser); err != nil {
		log.Printf("cache: set %s: %v", key, err)
	}
	return u, nil
}

func (c *CachedStore) ListAdminUserIDs(ctx context.Context, adminEmails []string) ([]string, error) {
	key := "admins:" + shortHash(strings.Join(adminEmails, ","))
	if v, err := cache.Get[[]string](ctx, c.cache, key); err == nil {
		return v, nil
	}
	ids, err := c.inner.ListAdminUserIDs(ctx, adminEmails)
	if err != nil {
		return nil, err
	}
	if err := cache.Set(ctx, c.cache, key, ids, ttlAdminIDs); err != nil {
		log.Printf("cache: set %s: %v", key, err)
	}
	return ids, nil
}

// --- user writes with invalidation ---

func (c *CachedStore) UpsertUser(ctx context.Context, googleID, email string, name, avatarURL *string) (*models.User, error) {
	u, err := c.inner.UpsertUser(ctx, googleID, email, name, avatarURL)
	if err != nil {
		return nil, err
	}
	c.invalidatePattern(ctx, "user:*")
	return u, nil
}

func (c *CachedStore) SetUserAdmin(ctx context.Context, userID string, isAdmin bool) error {
	if err := c.inner.SetUserAdmin(ctx, userID, isAdmin); err != nil {
		return err
	}
	c.invalidatePattern(ctx, "user:*", "admins:*")
	return nil
}

func (c *CachedStore) SetMarketingConsent(ctx context.Context, userID string, optIn bool) error {
	if err := c.inner.SetMarketingConsent(ctx, userID, optIn); err != nil {
		return err
	}
	c.invalidatePattern(ctx, "user:*")
	return nil
}

// --- cached credential reads ---

func (c *CachedStore) ListCredentials(ctx context.Context, ownerIDs []string) ([]models.Credential, error) {
	key := "creds:" + shortHash(strings.Join(ownerIDs, ","))
	if v, err := cache.Get[[]models.Credential](ctx, c.cache, key); err == nil {
		return v, nil
	}
	creds, err := c.inner.ListCredentials(ctx, ownerIDs)
	if err != nil {
		return nil, err
	}
	if err := cache.Set(ctx, c.cache, key, creds, ttlCredList); err != nil {
		log.Printf("cache: set %s: %v", key, err)
	}
	return creds, nil
}

func (c *CachedStore) GetCredential(ctx context.Context, id string, ownerIDs []string) (*models.Credential, error) {
	// The owner set is part of the key: the same credential id may be
	// visible to one caller and hidden from another.
	key := "cred:" + id + ":" + shortHash(strings.Join(ownerIDs, ","))
	if v, err := cache.Get[models.Credential](ctx, c.cache, key); err == nil {
		return &v, nil
	}
	cred, err := c.inner.GetCredential(ctx, id, ownerIDs)
	if err != nil {
		return nil, err
	}
	if err := cache.Set(ctx, c.cache, key, cred, ttlCred); err != nil {
		log.Printf("cache: set %s: %v", key, err)
	}
	return cred, nil
}

// --- credential writes with invalidation ---

func (c *CachedStore) CreateCredential(ctx context.Context, cred *models.Credential) (*models.Credential, error) {
	created, err := c.inner.CreateCredential(ctx, cred)
	if err != nil {
		return nil, err
	}
	c.invalidatePattern(ctx, "creds:*")
	return created, nil
}

func (c *CachedStore) DeleteCredential(ctx context.Context, id, ownerID string) error {
	if err := c.inner.DeleteCredential(ctx, id, ownerID); err != nil {
		return err
	}
	c.invalidatePattern(ctx, "creds:*", "cred:"+id+":*")
	return nil
}

// --- passthrough ---

// The channel_cache table IS the listing cache; its staleness is
// caller-controlled (forceRefresh), so layering Redis TTLs on top would
// change the contract.

func (c *CachedStore) GetCacheEntry(ctx context.Context, credentialID string, contentType models.ContentType) (*models.CacheEntry, error) {
	return c.inner.GetCacheEntry(ctx, credentialID, contentType)
}

func (c *CachedStore) UpsertCacheEntry(ctx context.Context, entry *models.CacheEntry) error {
	return c.inner.UpsertCacheEntry(ctx, entry)
}

// --- helpers ---

func (c *CachedStore) invalidatePattern(ctx context.Context, patterns ...string) {
	for _, p := range patterns {
		if err := cache.DelPattern(ctx, c.cache, p); err != nil {
			log.Printf("cache: del pattern %s: %v", p, err)
		}
	}
}

// shortHash produces a short deterministic key fragment for a composite value.
func shortHash(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", h[:8])
}
