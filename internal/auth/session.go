// Package auth verifies the externally issued session token and resolves
// it to an internal user identity with an admin flag. Session issuance
// itself (Google OAuth, token minting) happens in the front-end layer;
// this package only consumes the result.
package auth

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoSession is returned when a request carries no usable bearer token.
var ErrNoSession = errors.New("no session token")

// ErrInvalidSession is returned when the token fails verification.
var ErrInvalidSession = errors.New("invalid session token")

// Session is the verified claim set of a bearer token. Sub is opaque: it
// may be our internal user id or the OAuth provider id, depending on
// which layer minted the token — the resolver tries both.
type Session struct {
	Sub   string
	Email string
}

type sessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 session tokens against the shared AUTH_SECRET.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier for the given shared secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates a compact JWT and returns its session claims.
func (v *Verifier) Verify(token string) (*Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrNoSession
	}

	var claims sessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidSession
	}
	if claims.Subject == "" {
		return nil, ErrInvalidSession
	}
	return &Session{Sub: claims.Subject, Email: claims.Email}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}
