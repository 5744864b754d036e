// Package server exposes the authenticated HTTP JSON API: credential
// management, the Xtream browse proxy, and marketing consent.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/fricwalter/kanalista4.0/internal/auth"
	"github.com/fricwalter/kanalista4.0/internal/config"
	"github.com/fricwalter/kanalista4.0/internal/service"
	"github.com/fricwalter/kanalista4.0/internal/store"
	"github.com/fricwalter/kanalista4.0/internal/xtream"
)

// Server holds dependencies for the HTTP API.
type Server struct {
	store    store.Store
	cfg      *config.Config
	verifier *auth.Verifier
	resolver *auth.Resolver
	browser  *service.Browser
	mux      *http.ServeMux
}

// New creates a Server and registers routes.
func New(st store.Store, cfg *config.Config, resolver *auth.Resolver, browser *service.Browser) *Server {
	srv := &Server{
		store:    st,
		cfg:      cfg,
		verifier: auth.NewVerifier(cfg.AuthSecret),
		resolver: resolver,
		browser:  browser,
		mux:      http.NewServeMux(),
	}
	srv.routes()
	return srv
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	// Credentials
	s.mux.HandleFunc("GET /api/credentials", s.authed(s.handleListCredentials))
	s.mux.HandleFunc("POST /api/connect", s.authed(s.handleConnect))
	s.mux.HandleFunc("DELETE /api/credentials", s.authed(s.handleDeleteCredential))

	// Browse proxy
	s.mux.HandleFunc("GET /api/categories", s.authed(s.handleCategories))
	s.mux.HandleFunc("GET /api/channels", s.authed(s.handleChannels))
	s.mux.HandleFunc("GET /api/series-info", s.authed(s.handleSeriesInfo))
	s.mux.HandleFunc("GET /api/stream-url", s.authed(s.handleStreamURL))

	// Users
	s.mux.HandleFunc("POST /api/users/sync", s.handleSyncUser)
	s.mux.HandleFunc("POST /api/users/marketing-consent", s.authed(s.handleMarketingConsent))

	// Docs
	s.mux.HandleFunc("GET /api/docs", handleSwaggerUI)
	s.mux.HandleFunc("GET /api/docs/openapi.yaml", handleOpenAPISpec)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts the HTTP server on the configured port.
// It blocks until the server is shut down or ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := ":" + s.cfg.ServerPort
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      withCORS(withLogging(s)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("server shutdown: %v", err)
		}
	}()

	log.Printf("listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ListenAndServe: %w", err)
	}
	return nil
}

// --- authentication boundary ---

// authedHandler is a handler that runs behind session verification with
// the resolved caller identity.
type authedHandler func(w http.ResponseWriter, r *http.Request, user *auth.AuthUser)

// authed verifies the bearer token, resolves the session to a user row,
// and rejects the request with 401 when either step fails.
func (s *Server) authed(h authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
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
		user, err := s.resolver.Resolve(r.Context(), *session)
		if err != nil {
			log.Printf("auth: resolve: %v", err)
			writeError(w, http.StatusInternalServerError, "Fehler bei der Anmeldung")
			return
		}
		if user == nil {
			writeError(w, http.StatusUnauthorized, "Nicht authentifiziert")
			return
		}
		h(w, r, user)
	}
}

// --- middleware ---

// withCORS adds CORS headers to every response and handles preflight
// OPTIONS requests.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// withLogging logs each request with method, path, status, and duration.
// Query strings are not logged: they may carry credential ids.
func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		log.Printf("%s%-7s\x1b[0m %s%3d\x1b[0m %8s  %s",
			colorForMethod(r.Method), r.Method,
			colorForStatus(sw.status), sw.status,
			formatDuration(time.Since(start)), r.URL.Path)
	})
}

func colorForStatus(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "\x1b[32m" // green
	case code >= 300 && code < 400:
		return "\x1b[36m" // cyan
	case code >= 400 && code < 500:
		return "\x1b[33m" // yellow
	default:
		return "\x1b[31m" // red
	}
}

func colorForMethod(method string) string {
	switch method {
	case http.MethodGet:
		return "\x1b[36m" // cyan
	case http.MethodPost:
		return "\x1b[32m" // green
	case http.MethodDelete:
		return "\x1b[31m" // red
	default:
		return "\x1b[37m" // white
	}
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dus", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}

// --- error mapping ---

// respondUpstreamError maps a browse failure to an HTTP status: panel
// unreachable → 502, every other upstream complaint → 400, everything
// else is ours → 500.
func respondUpstreamError(w http.ResponseWriter, err error) {
	var xerr *xtream.Error
	if errors.As(err, &xerr) {
		status := http.StatusBadRequest
		if xerr.Kind == xtream.KindConnectivity {
			status = http.StatusBadGateway
		}
		writeError(w, status, xerr.Message)
		return
	}
	log.Printf("ERROR: %v", err)
	writeError(w, http.StatusInternalServerError, "Interner Fehler")
}
