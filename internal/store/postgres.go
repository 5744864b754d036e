package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fricwalter/kanalista4.0/internal/models"
)

// Postgres implements Store using PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres store from a DSN. Caller must call Close when done.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// --- users ---

// Older deployments predate the admin/consent columns, so user reads try
// the extended column set first and fall back to the legacy set with
// defined defaults on an undefined-column error.
const (
	userColsExtended = `id, email, COALESCE(google_id, ''),
		name, avatar_url,
		COALESCE(is_admin, false), COALESCE(marketing_opt_in, false),
		marketing_opt_in_at, created_at`
	userColsLegacy = `id, email, COALESCE(google_id, '')`
)

func (p *Postgres) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return p.getUser(ctx, "id = $1", id)
}

func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return p.getUser(ctx, "email = $1", email)
}

func (p *Postgres) GetUserByGoogleID(ctx context.Context, googleID string) (*models.User, error) {
	return p.getUser(ctx, "google_id = $1", googleID)
}

func (p *Postgres) getUser(ctx context.Context, where string, arg any) (*models.User, error) {
	var u models.User
	err := p.pool.QueryRow(ctx,
		`SELECT `+userColsExtended+` FROM users WHERE `+where, arg,
	).Scan(&u.ID, &u.Email, &u.GoogleID, &u.Name, &u.AvatarURL,
		&u.IsAdmin, &u.MarketingOptIn, &u.MarketingOptInAt, &u.CreatedAt)
	if err == nil {
		return &u, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if !isUndefinedColumn(err) && !isInvalidInput(err) {
		return nil, fmt.Errorf("getUser: %w", err)
	}
	if isInvalidInput(err) {
		// Non-UUID id against a uuid column: treat as no match.
		return nil, ErrNotFound
	}

	// Legacy schema: only the base columns exist.
	u = models.User{}
	err = p.pool.QueryRow(ctx,
		`SELECT `+userColsLegacy+` FROM users WHERE `+where, arg,
	).Scan(&u.ID, &u.Email, &u.GoogleID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getUser (legacy): %w", err)
	}
	return &u, nil
}

func (p *Postgres) UpsertUser(ctx context.Context, googleID, email string, name, avatarURL *string) (*models.User, error) {
	var u models.User
	err := p.pool.QueryRow(ctx,
		`INSERT INTO users (google_id, email, name, avatar_url)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (google_id) DO UPDATE SET
		   email = EXCLUDED.email,
		   name = COALESCE(EXCLUDED.name, users.name),
		   avatar_url = COALESCE(EXCLUDED.avatar_url, users.avatar_url)
		 RETURNING `+userColsExtended,
		googleID, email, name, avatarURL,
	).Scan(&u.ID, &u.Email, &u.GoogleID, &u.Name, &u.AvatarURL,
		&u.IsAdmin, &u.MarketingOptIn, &u.MarketingOptInAt, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("UpsertUser: %w", err)
	}
	return &u, nil
}

func (p *Postgres) ListAdminUserIDs(ctx context.Context, adminEmails []string) ([]string, error) {
	ids, err := p.scanIDs(ctx,
		`SELECT id FROM users WHERE COALESCE(is_admin, false) = true`)
	if err != nil {
		return nil, fmt.Errorf("ListAdminUserIDs: %w", err)
	}
	if len(ids) > 0 {
		return ids, nil
	}

	// No flags set yet (fresh deployment, or schema drift): fall back to
	// the configured allow-list.
	ids, err = p.scanIDs(ctx,
		`SELECT id FROM users WHERE lower(email) = ANY($1)`, adminEmails)
	if err != nil {
		return nil, fmt.Errorf("ListAdminUserIDs (by email): %w", err)
	}
	return ids, nil
}

func (p *Postgres) scanIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		if isUndefinedColumn(err) {
			return nil, nil
		}
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (p *Postgres) SetUserAdmin(ctx context.Context, userID string, isAdmin bool) error {
	_, err := p.pool.Exec(ctx,
		`UPDATE users SET is_admin = $2 WHERE id = $1`, userID, isAdmin)
	if err != nil {
		return fmt.Errorf("SetUserAdmin: %w", err)
	}
	return nil
}

func (p *Postgres) SetMarketingConsent(ctx context.Context, userID string, optIn bool) error {
	var optInAt *time.Time
	if optIn {
		now := time.Now().UTC()
		optInAt = &now
	}
	_, err := p.pool.Exec(ctx,
		`UPDATE users SET marketing_opt_in = $2, marketing_opt_in_at = $3 WHERE id = $1`,
		userID, optIn, optInAt)
	if err != nil {
		return fmt.Errorf("SetMarketingConsent: %w", err)
	}
	return nil
}

// --- credentials ---

const credentialCols = `id, user_id, dns, username, password, COALESCE(label, ''), created_at`

func (p *Postgres) CreateCredential(ctx context.Context, cred *models.Credential) (*models.Credential, error) {
	out := *cred
	err := p.pool.QueryRow(ctx,
		`INSERT INTO xtream_credentials (user_id, dns, username, password, label)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		cred.UserID, cred.DNS, cred.Username, cred.Password, cred.Label,
	).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("CreateCredential: %w", err)
	}
	return &out, nil
}

func (p *Postgres) ListCredentials(ctx context.Context, ownerIDs []string) ([]models.Credential, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+credentialCols+` FROM xtream_credentials
		 WHERE user_id = ANY($1)
		 ORDER BY created_at DESC`, ownerIDs)
	if err != nil {
		return nil, fmt.Errorf("ListCredentials: %w", err)
	}
	defer rows.Close()

	var creds []models.Credential
	for rows.Next() {
		var c models.Credential
		if err := rows.Scan(&c.ID, &c.UserID, &c.DNS, &c.Username, &c.Password, &c.Label, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListCredentials scan: %w", err)
		}
		creds = append(creds, c)
	}
	return creds, rows.Err()
}

func (p *Postgres) GetCredential(ctx context.Context, id string, ownerIDs []string) (*models.Credential, error) {
	var c models.Credential
	err := p.pool.QueryRow(ctx,
		`SELECT `+credentialCols+` FROM xtream_credentials
		 WHERE id = $1 AND user_id = ANY($2)`, id, ownerIDs,
	).Scan(&c.ID, &c.UserID, &c.DNS, &c.Username, &c.Password, &c.Label, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) || isInvalidInput(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetCredential: %w", err)
	}
	return &c, nil
}

func (p *Postgres) DeleteCredential(ctx context.Context, id, ownerID string) error {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM xtream_credentials WHERE id = $1 AND user_id = $2`, id, ownerID)
	if isInvalidInput(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("DeleteCredential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- channel cache ---

func (p *Postgres) GetCacheEntry(ctx context.Context, credentialID string, contentType models.ContentType) (*models.CacheEntry, error) {
	var e models.CacheEntry
	err := p.pool.QueryRow(ctx,
		`SELECT id, user_id, credential_id, type, data, cached_at
		 FROM channel_cache
		 WHERE credential_id = $1 AND type = $2`, credentialID, string(contentType),
	).Scan(&e.ID, &e.UserID, &e.CredentialID, &e.Type, &e.Data, &e.CachedAt)
	if errors.Is(err, pgx.ErrNoRows) || isInvalidInput(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetCacheEntry: %w", err)
	}
	return &e, nil
}

func (p *Postgres) UpsertCacheEntry(ctx context.Context, entry *models.CacheEntry) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO channel_cache (user_id, credential_id, type, data, cached_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (credential_id, type) DO UPDATE SET
		   user_id = EXCLUDED.user_id,
		   data = EXCLUDED.data,
		   cached_at = EXCLUDED.cached_at`,
		entry.UserID, entry.CredentialID, string(entry.Type), entry.Data, entry.CachedAt)
	if err != nil {
		return fmt.Errorf("UpsertCacheEntry: %w", err)
	}
	return nil
}

// --- error classification ---

// isUndefinedColumn reports SQLSTATE 42703 (schema drift: a column from
// the extended shape does not exist).
func isUndefinedColumn(err error) bool {
	return pgErrCode(err) == "42703"
}

// isInvalidInput reports SQLSTATE 22P02, which is what Postgres answers
// when a non-UUID string is compared against a uuid column. Treated as
// "no match" rather than an internal error.
func isInvalidInput(err error) bool {
	return pgErrCode(err) == "22P02"
}

func pgErrCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
