package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/fricwalter/kanalista4.0/internal/auth"
	"github.com/fricwalter/kanalista4.0/internal/models"
	"github.com/fricwalter/kanalista4.0/internal/service"
	"github.com/fricwalter/kanalista4.0/internal/store"
	"github.com/fricwalter/kanalista4.0/internal/xtream"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- credentials ---

func (s *Server) handleListCredentials(w http.ResponseWriter, r *http.Request, user *auth.AuthUser) {
	owners, err := s.resolver.VisibleOwnerIDs(r.Context(), user)
	if err != nil {
		writeInternal(w, "list owners", err)
		return
	}

	safe := []models.SafeCredential{}
	if len(owners) > 0 {
		creds, err := s.store.ListCredentials(r.Context(), owners)
		if err != nil {
			writeInternal(w, "list credentials", err)
			return
		}
		for _, c := range creds {
			safe = append(safe, c.Safe())
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"credentials": safe})
}

type connectRequest struct {
	DNS      string `json:"dns"`
	Username string `json:"username"`
	Password string `json:"password"`
	Label    string `json:"label"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request, user *auth.AuthUser) {
	if !user.IsAdmin {
		writeError(w, http.StatusForbidden, "Nur Admin darf Zugangsdaten verwalten")
		return
	}

	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Ungültiger Request-Body")
		return
	}
	if req.DNS == "" || req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "DNS, Username und Password erforderlich")
		return
	}

	cred, info, err := s.browser.Connect(r.Context(), user.ID, req.DNS, req.Username, req.Password, req.Label)
	if err != nil {
		var xerr *xtream.Error
		if errors.As(err, &xerr) {
			respondUpstreamError(w, xerr)
			return
		}
		log.Printf("ERROR: connect: %v", err)
		writeError(w, http.StatusInternalServerError, "Fehler beim Speichern der Credentials")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"credentialId": cred.ID,
		"user":         info,
	})
}

func (s *Server) handleDeleteCredential(w http.ResponseWriter, r *http.Request, user *auth.AuthUser) {
	if !user.IsAdmin {
		writeError(w, http.StatusForbidden, "Nur Admin darf Zugangsdaten verwalten")
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "Credential ID erforderlich")
		return
	}

	if err := s.store.DeleteCredential(r.Context(), id, user.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, msgCredentialNotFound)
			return
		}
		writeInternal(w, "delete credential", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// --- browse proxy ---

// Lookups never reveal whether a credential exists outside the caller's
// visible owner set; both cases answer 404 with the same message.
const msgCredentialNotFound = "Credentials nicht gefunden oder nicht berechtigt"

// visibleCredential resolves the credential addressed by the request,
// constrained to owners the caller may read. A nil return means the
// response has already been written.
func (s *Server) visibleCredential(w http.ResponseWriter, r *http.Request, user *auth.AuthUser) *models.Credential {
	credID := r.URL.Query().Get("credentialId")
	if credID == "" {
		writeError(w, http.StatusBadRequest, "credentialId erforderlich")
		return nil
	}

	owners, err := s.resolver.VisibleOwnerIDs(r.Context(), user)
	if err != nil {
		writeInternal(w, "list owners", err)
		return nil
	}
	if len(owners) == 0 {
		writeError(w, http.StatusNotFound, "Keine Admin-Zugangsdaten vorhanden")
		return nil
	}

	cred, err := s.store.GetCredential(r.Context(), credID, owners)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, msgCredentialNotFound)
			return nil
		}
		writeInternal(w, "get credential", err)
		return nil
	}
	return cred
}

func contentTypeParam(w http.ResponseWriter, r *http.Request) (models.ContentType, bool) {
	typ, ok := models.ParseContentType(r.URL.Query().Get("type"))
	if !ok {
		writeError(w, http.StatusBadRequest, "Ungültiger Typ: live, vod oder series erwartet")
		return "", false
	}
	return typ, true
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request, user *auth.AuthUser) {
	typ, ok := contentTypeParam(w, r)
	if !ok {
		return
	}
	cred := s.visibleCredential(w, r, user)
	if cred == nil {
		return
	}

	categories, err := s.browser.Categories(r.Context(), cred, typ)
	if err != nil {
		respondUpstreamError(w, err)
		return
	}
	if categories == nil {
		categories = []xtream.Category{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

type channelsResponse struct {
	Data      json.RawMessage `json:"data"`
	FromCache bool            `json:"fromCache"`
	CachedAt  *time.Time      `json:"cachedAt,omitempty"`
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request, user *auth.AuthUser) {
	typ, ok := contentTypeParam(w, r)
	if !ok {
		return
	}
	cred := s.visibleCredential(w, r, user)
	if cred == nil {
		return
	}

	categoryID := r.URL.Query().Get("categoryId")
	forceRefresh := r.URL.Query().Get("refresh") == "true"

	listing, err := s.browser.Channels(r.Context(), cred, typ, categoryID, forceRefresh)
	if err != nil {
		respondUpstreamError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, channelsResponse{
		Data:      listing.Data,
		FromCache: listing.FromCache,
		CachedAt:  listing.CachedAt,
	})
}

func (s *Server) handleSeriesInfo(w http.ResponseWriter, r *http.Request, user *auth.AuthUser) {
	seriesID, err := strconv.ParseInt(r.URL.Query().Get("seriesId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "seriesId erforderlich")
		return
	}
	cred := s.visibleCredential(w, r, user)
	if cred == nil {
		return
	}

	doc, err := s.browser.SeriesInfo(r.Context(), cred, seriesID)
	if err != nil {
		respondUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": doc})
}

func (s *Server) handleStreamURL(w http.ResponseWriter, r *http.Request, user *auth.AuthUser) {
	typ, ok := contentTypeParam(w, r)
	if !ok {
		return
	}
	streamID, err := strconv.ParseInt(r.URL.Query().Get("streamId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "streamId erforderlich")
		return
	}
	cred := s.visibleCredential(w, r, user)
	if cred == nil {
		return
	}

	url, err := s.browser.StreamURL(r.Context(), cred, typ, streamID)
	if err != nil {
		if errors.Is(err, service.ErrSeriesNotPlayable) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"url": url})
}

// --- users ---

type syncUserRequest struct {
	Name      *string `json:"name"`
	AvatarURL *string `json:"avatarUrl"`
}

// handleSyncUser upserts the user row for a freshly signed-in session.
// It runs on the raw verified token rather than the resolver: a
// first-time user has no row to resolve yet. The token subject is the
// OAuth provider id at this point in the sign-in flow.
func (s *Server) handleSyncUser(w http.ResponseWriter, r *http.Request) {
	token, ok := auth.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		writeError(w, http.StatusUnauthorized, "Nicht authentifiziert")
		return
	}
	session, err := s.verifier.Verify(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Nicht authentifiziert")
		return
	}
	if session.Email == "" {
		writeError(w, http.StatusBadRequest, "E-Mail im Token erforderlich")
		return
	}

	var req syncUserRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	u, err := s.store.UpsertUser(r.Context(), session.Sub, session.Email, req.Name, req.AvatarURL)
	if err != nil {
		log.Printf("ERROR: user sync: %v", err)
		writeError(w, http.StatusInternalServerError, "Benutzer konnte nicht gespeichert werden")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "userId": u.ID})
}

type marketingConsentRequest struct {
	MarketingOptIn bool `json:"marketingOptIn"`
}

func (s *Server) handleMarketingConsent(w http.ResponseWriter, r *http.Request, user *auth.AuthUser) {
	// A missing or malformed body counts as opting out.
	var req marketingConsentRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := s.store.SetMarketingConsent(r.Context(), user.ID, req.MarketingOptIn); err != nil {
		log.Printf("ERROR: marketing consent: %v", err)
		writeError(w, http.StatusInternalServerError, "Einwilligung konnte nicht gespeichert werden")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"marketingOptIn": req.MarketingOptIn,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writeJSON: %v", err)
	}
}

// writeError writes the uniform {"error": "..."} body.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeInternal logs the cause and answers 500 without leaking it.
func writeInternal(w http.ResponseWriter, op string, err error) {
	log.Printf("ERROR: %s: %v", op, err)
	writeError(w, http.StatusInternalServerError, "Interner Fehler")
}
