package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fricwalter/kanalista4.0/internal/auth"
	"github.com/fricwalter/kanalista4.0/internal/config"
	"github.com/fricwalter/kanalista4.0/internal/models"
	"github.com/fricwalter/kanalista4.0/internal/service"
	"github.com/fricwalter/kanalista4.0/internal/store"
	"github.com/fricwalter/kanalista4.0/internal/xtream"
)

const (
	testSecret  = "server-test-secret-32-chars-min!"
	adminUserID = "b7763810-2b1e-4f07-9b0d-5b2c63fd2762"
	plainUserID = "2c9e0f5e-9a43-4f5a-8f0f-0f9e6a7b1c2d"
	credID      = "7f3d1c2b-4a5e-4f6a-8b9c-0d1e2f3a4b5c"
)

// fakeStore backs the full HTTP surface in memory.
type fakeStore struct {
	store.Store

	users   map[string]*models.User
	creds   map[string]*models.Credential
	entries map[string]*models.CacheEntry

	consent map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:   map[string]*models.User{},
		creds:   map[string]*models.Credential{},
		entries: map[string]*models.CacheEntry{},
		consent: map[string]bool{},
	}
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (*models.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) GetUserByGoogleID(_ context.Context, googleID string) (*models.User, error) {
	for _, u := range f.users {
		if u.GoogleID == googleID {
			return u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) ListAdminUserIDs(_ context.Context, _ []string) ([]string, error) {
	var ids []string
	for id, u := range f.users {
		if u.IsAdmin {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeStore) UpsertUser(_ context.Context, googleID, email string, name, _ *string) (*models.User, error) {
	for _, u := range f.users {
		if u.GoogleID == googleID {
			u.Email = email
			if name != nil {
				u.Name = name
			}
			return u, nil
		}
	}
	u := &models.User{ID: "new-user", GoogleID: googleID, Email: email, Name: name}
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeStore) SetUserAdmin(_ context.Context, userID string, isAdmin bool) error {
	if u, ok := f.users[userID]; ok {
		u.IsAdmin = isAdmin
	}
	return nil
}

func (f *fakeStore) SetMarketingConsent(_ context.Context, userID string, optIn bool) error {
	f.consent[userID] = optIn
	return nil
}

func (f *fakeStore) CreateCredential(_ context.Context, cred *models.Credential) (*models.Credential, error) {
	c := *cred
	c.ID = credID
	now := time.Now()
	c.CreatedAt = &now
	f.creds[c.ID] = &c
	return &c, nil
}

func (f *fakeStore) ListCredentials(_ context.Context, ownerIDs []string) ([]models.Credential, error) {
	var out []models.Credential
	for _, c := range f.creds {
		for _, owner := range ownerIDs {
			if c.UserID == owner {
				out = append(out, *c)
			}
		}
	}
	return out, nil
}

func (f *fakeStore) GetCredential(_ context.Context, id string, ownerIDs []string) (*models.Credential, error) {
	c, ok := f.creds[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	for _, owner := range ownerIDs {
		if c.UserID == owner {
			return c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) DeleteCredential(_ context.Context, id, ownerID string) error {
	if c, ok := f.creds[id]; ok && c.UserID == ownerID {
		delete(f.creds, id)
		return nil
	}
	return store.ErrNotFound
}

func (f *fakeStore) GetCacheEntry(_ context.Context, credentialID string, typ models.ContentType) (*models.CacheEntry, error) {
	if e, ok := f.entries[credentialID+"/"+string(typ)]; ok {
		return e, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) UpsertCacheEntry(_ context.Context, entry *models.CacheEntry) error {
	f.entries[entry.CredentialID+"/"+string(entry.Type)] = entry
	return nil
}

// stubLister is the panel behind every credential in these tests.
type stubLister struct {
	loginErr error
	live     []xtream.Stream
}

func (s *stubLister) ValidateLogin(context.Context) (*xtream.UserInfo, error) {
	if s.loginErr != nil {
		return nil, s.loginErr
	}
	return &xtream.UserInfo{Username: "u", Status: "Active"}, nil
}
func (s *stubLister) GetLiveCategories(context.Context) ([]xtream.Category, error) {
	return []xtream.Category{{CategoryName: "News"}}, nil
}
func (s *stubLister) GetVodCategories(context.Context) ([]xtream.Category, error)    { return nil, nil }
func (s *stubLister) GetSeriesCategories(context.Context) ([]xtream.Category, error) { return nil, nil }
func (s *stubLister) GetLiveStreams(context.Context, string) ([]xtream.Stream, error) {
	return s.live, nil
}
func (s *stubLister) GetVodStreams(context.Context, string) ([]xtream.Stream, error) { return nil, nil }
func (s *stubLister) GetAllSeries(context.Context, string) ([]xtream.Series, error)  { return nil, nil }
func (s *stubLister) GetSeriesInfo(context.Context, int64) (json.RawMessage, error) {
	return json.RawMessage(`{"info":{"name":"Show"}}`), nil
}
func (s *stubLister) StreamURL(int64, string) string { return "http://panel/1.m3u8" }

type fixture struct {
	store  *fakeStore
	lister *stubLister
	srv    *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := newFakeStore()
	st.users[adminUserID] = &models.User{ID: adminUserID, Email: "admin@example.com", IsAdmin: true}
	st.users[plainUserID] = &models.User{ID: plainUserID, Email: "user@example.com"}
	st.creds[credID] = &models.Credential{
		ID: credID, UserID: adminUserID, DNS: "http://panel", Username: "u", Password: "p", Label: "Haupt",
	}

	lister := &stubLister{}
	cfg := &config.Config{AuthSecret: testSecret, ServerPort: "0"}
	resolver := auth.NewResolver(st, []string{"admin@example.com"})
	browser := service.NewBrowser(st, func(_, _, _ string) service.Lister { return lister })

	return &fixture{store: st, lister: lister, srv: New(st, cfg, resolver, browser)}
}

func tokenFor(t *testing.T, userID string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return tok
}

func (f *fixture) do(t *testing.T, method, target, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, userID))
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestUnauthenticated(t *testing.T) {
	f := newFixture(t)
	for _, target := range []string{
		"/api/credentials",
		"/api/categories?type=live&credentialId=" + credID,
		"/api/channels?type=live&credentialId=" + credID,
	} {
		rec := f.do(t, http.MethodGet, target, "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, target)
		assert.Equal(t, "Nicht authentifiziert", decodeBody(t, rec)["error"], target)
	}
}

func TestListCredentialsHidesSecrets(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/credentials", adminUserID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, credID)
	assert.Contains(t, body, "Haupt")
	assert.NotContains(t, body, `"username"`)
	assert.NotContains(t, body, `"password"`)
}

func TestListCredentialsVisibleToNonAdmin(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/credentials", plainUserID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), credID, "non-admins read the admin catalog")
}

func TestConnect(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/connect", adminUserID,
		`{"dns":"panel.example.com","username":"u","password":"p"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, credID, body["credentialId"])
}

func TestConnectValidation(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/connect", plainUserID,
		`{"dns":"d","username":"u","password":"p"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Nur Admin darf Zugangsdaten verwalten", decodeBody(t, rec)["error"])

	rec = f.do(t, http.MethodPost, "/api/connect", adminUserID, `{"dns":"d","username":"u"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "DNS, Username und Password erforderlich", decodeBody(t, rec)["error"])
}

func TestConnectUpstreamErrors(t *testing.T) {
	f := newFixture(t)

	f.lister.loginErr = &xtream.Error{Kind: xtream.KindInvalidLogin, Message: "Ungültige Xtream Zugangsdaten"}
	rec := f.do(t, http.MethodPost, "/api/connect", adminUserID,
		`{"dns":"d","username":"u","password":"p"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Ungültige Xtream Zugangsdaten", decodeBody(t, rec)["error"])

	f.lister.loginErr = &xtream.Error{Kind: xtream.KindConnectivity, Message: "Verbindung zum Xtream-Server fehlgeschlagen"}
	rec = f.do(t, http.MethodPost, "/api/connect", adminUserID,
		`{"dns":"d","username":"u","password":"p"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestDeleteCredential(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodDelete, "/api/credentials?id="+credID, adminUserID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.store.creds)
}

func TestDeleteCredentialValidation(t *testing.T) {
	f := newFixture(t)

	// Non-admins may not delete, even with a valid id.
	rec := f.do(t, http.MethodDelete, "/api/credentials?id="+credID, plainUserID, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Len(t, f.store.creds, 1)

	rec = f.do(t, http.MethodDelete, "/api/credentials", adminUserID, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Credential ID erforderlich", decodeBody(t, rec)["error"])

	rec = f.do(t, http.MethodDelete, "/api/credentials?id=unknown", adminUserID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Credentials nicht gefunden oder nicht berechtigt", decodeBody(t, rec)["error"])
}

func TestCategories(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/categories?type=live&credentialId="+credID, plainUserID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "News")
}

func TestCategoriesValidation(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/categories?type=movies&credentialId="+credID, adminUserID, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Ungültiger Typ: live, vod oder series erwartet", decodeBody(t, rec)["error"])

	rec = f.do(t, http.MethodGet, "/api/categories?type=live", adminUserID, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "credentialId erforderlich", decodeBody(t, rec)["error"])

	rec = f.do(t, http.MethodGet, "/api/categories?type=live&credentialId=unknown", adminUserID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Credentials nicht gefunden oder nicht berechtigt", decodeBody(t, rec)["error"])
}

func TestChannelsCachesAcrossRequests(t *testing.T) {
	f := newFixture(t)
	f.lister.live = []xtream.Stream{{StreamID: 1, Name: "Eins"}}
	target := "/api/channels?type=live&credentialId=" + credID

	rec := f.do(t, http.MethodGet, target, plainUserID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["fromCache"])
	assert.NotContains(t, rec.Body.String(), "cachedAt")

	rec = f.do(t, http.MethodGet, target, plainUserID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, true, body["fromCache"])
	assert.Contains(t, rec.Body.String(), "cachedAt")
}

func TestSeriesInfo(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/series-info?credentialId="+credID+"&seriesId=7", plainUserID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Show")

	rec = f.do(t, http.MethodGet, "/api/series-info?credentialId="+credID, plainUserID, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStreamURLEndpoint(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet,
		"/api/stream-url?type=live&credentialId="+credID+"&streamId=1", plainUserID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://panel/1.m3u8", decodeBody(t, rec)["url"])

	rec = f.do(t, http.MethodGet,
		"/api/stream-url?type=series&credentialId="+credID+"&streamId=1", plainUserID, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Serien haben keine direkte Stream-URL", decodeBody(t, rec)["error"])
}

func TestSyncUser(t *testing.T) {
	f := newFixture(t)

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "108234567890",
		"email": "new@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/users/sync",
		strings.NewReader(`{"name":"Neu","avatarUrl":"http://a/p.png"}`))
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "new-user", decodeBody(t, rec)["userId"])
	require.NotNil(t, f.store.users["new-user"])
	assert.Equal(t, "new@example.com", f.store.users["new-user"].Email)
}

func TestSyncUserRequiresToken(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/users/sync", "", `{}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMarketingConsent(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/users/marketing-consent", plainUserID,
		`{"marketingOptIn":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["marketingOptIn"])
	assert.True(t, f.store.consent[plainUserID])

	// Missing body defaults to opting out.
	rec = f.do(t, http.MethodPost, "/api/users/marketing-consent", plainUserID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["marketingOptIn"])
	assert.False(t, f.store.consent[plainUserID])
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	handler := withCORS(f.srv)

	req := httptest.NewRequest(http.MethodOptions, "/api/credentials", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}
