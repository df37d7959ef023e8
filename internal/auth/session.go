// Package auth resolves the session bearer credential for forwarded requests.
package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"chatdash-proxy/internal/config"
)

// ErrIdentityRequired is returned when a path requires a verified identity
// and the session yields no credential.
var ErrIdentityRequired = errors.New("identity required: no session credential for a non-anonymous path")

// Resolver extracts the session bearer token from inbound requests and
// applies the per-path anonymous-access policy.
type Resolver struct {
	cookieName        string
	fallbackToken     string
	anonymousPrefixes []string
}

// NewResolver creates a Resolver from config.
func NewResolver(cfg *config.Config) *Resolver {
	return &Resolver{
		cookieName:        cfg.Auth.SessionCookie,
		fallbackToken:     cfg.Auth.FallbackToken,
		anonymousPrefixes: cfg.Auth.AnonymousPrefixes,
	}
}

// Token returns the session credential carried in the header set: the
// Authorization bearer value if present, otherwise the session cookie value.
// Empty string means no credential.
func (r *Resolver) Token(header http.Header) string {
	if authz := header.Get("Authorization"); authz != "" {
		if tok, ok := strings.CutPrefix(authz, "Bearer "); ok && strings.TrimSpace(tok) != "" {
			return strings.TrimSpace(tok)
		}
	}
	// http.Request.Cookie is the only stdlib cookie parser; wrap the header.
	req := http.Request{Header: header}
	if c, err := req.Cookie(r.cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return ""
}

// Credential resolves the bearer credential to forward for the given proxy
// path. Paths matching an anonymous prefix substitute the sentinel fallback
// token when the session yields nothing; other paths return
// ErrIdentityRequired.
func (r *Resolver) Credential(header http.Header, path string) (string, error) {
	if tok := r.Token(header); tok != "" {
		return tok, nil
	}
	if r.anonymousAllowed(path) {
		return r.fallbackToken, nil
	}
	return "", ErrIdentityRequired
}

func (r *Resolver) anonymousAllowed(path string) bool {
	for _, p := range r.anonymousPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// UserID extracts the authenticated user id from the session JWT's "sub"
// claim. The token signature is NOT verified here: verification belongs to
// the identity provider and the backend; this layer only needs the id to
// attach to OAuth and workflow payloads. Returns empty string for missing
// or non-JWT credentials.
func UserID(token string) string {
	if token == "" {
		return ""
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return ""
	}
	return sub
}
