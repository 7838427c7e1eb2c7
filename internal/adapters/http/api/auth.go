package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/okian/draftboard/pkg/metrics"
)

// Authenticator checks bearer tokens on privileged routes. A token passes
// when it equals the shared secret or is an HS256 JWT signed with it.
type Authenticator struct {
	secret      []byte
	environment string
}

// NewAuthenticator creates an Authenticator. With an empty secret requests
// are allowed everywhere except in production.
func NewAuthenticator(secret, environment string) *Authenticator {
	return &Authenticator{secret: []byte(secret), environment: strings.ToLower(environment)}
}

// Verify checks the Authorization header of r.
func (a *Authenticator) Verify(r *http.Request) error {
	const op = "api.auth"
	if len(a.secret) == 0 {
		if a.environment == "production" {
			return WrapKind(op, ErrUnauthorized, fmt.Errorf("no pipeline secret configured"))
		}
		return nil
	}

	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return WrapKind(op, ErrUnauthorized, fmt.Errorf("missing bearer token"))
	}
	token = strings.TrimSpace(token)

	if subtle.ConstantTimeCompare([]byte(token), a.secret) == 1 {
		return nil
	}
	if err := a.verifyJWT(token); err != nil {
		return WrapKind(op, ErrUnauthorized, err)
	}
	return nil
}

func (a *Authenticator) verifyJWT(token string) error {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return fmt.Errorf("invalid token: %w", err)
	}
	if !parsed.Valid {
		return fmt.Errorf("invalid token")
	}
	return nil
}

// Middleware rejects unauthenticated requests with 401 before any work.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := a.Verify(r); err != nil {
			metrics.RecordErrorByComponent("auth", "unauthorized")
			w.Header().Set("WWW-Authenticate", `Bearer realm="draftboard"`)
			writeError(w, http.StatusUnauthorized, "unauthorized", err)
			return
		}
		next.ServeHTTP(w, r)
	})
}
