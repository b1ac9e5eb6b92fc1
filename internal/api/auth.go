package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/hearwell/clinic-backend/internal/identity"
)

const claimsKey contextKey = "claims"

// Authenticator verifies bearer tokens and loads the caller's claims into the
// request context.
type Authenticator struct {
	ident *identity.Service
}

func NewAuthenticator(ident *identity.Service) *Authenticator {
	return &Authenticator{ident: ident}
}

func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}

		claims, err := a.ident.VerifyToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireCapability gates a route on the caller's role capabilities.
func RequireCapability(cap identity.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}
			if !claims.Role.Can(cap) {
				writeError(w, http.StatusForbidden, "forbidden", "role is not allowed to perform this action")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClaimsFromContext returns the authenticated caller's claims, or nil.
func ClaimsFromContext(ctx context.Context) *identity.Claims {
	if c, ok := ctx.Value(claimsKey).(*identity.Claims); ok {
		return c
	}
	return nil
}
