// Package middleware provides HTTP middleware for owner isolation.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
)

// ContextKey is the type for context keys in this package.
type ContextKey string

// OwnerIDKey is the context key for the authenticated owner (user) ID.
const OwnerIDKey ContextKey = "owner_id"

// OwnerFromContext retrieves the owner ID from the request context.
// Returns empty string if not set.
func OwnerFromContext(ctx context.Context) string {
	if v := ctx.Value(OwnerIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// WithOwner returns a copy of ctx scoped to ownerID.
func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, OwnerIDKey, ownerID)
}

// Authenticator verifies HS256 access tokens issued by the hosted auth provider.
type Authenticator struct {
	secret []byte
}

// NewAuthenticator creates an Authenticator for the shared JWT secret.
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// RequireOwner is middleware that ensures a verified owner is present.
// The token is read from the Authorization bearer header, or from the
// access_token query parameter for websocket upgrades.
func (a *Authenticator) RequireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ownerID, _, err := a.Authenticate(extractToken(r))
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"missing or invalid access token"}`))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), ownerID)))
	})
}

// Authenticate validates a raw token and returns its subject and email claims.
func (a *Authenticator) Authenticate(raw string) (string, string, error) {
	if raw == "" {
		return "", "", fmt.Errorf("missing token")
	}
	if len(a.secret) == 0 {
		return "", "", fmt.Errorf("authenticator has no secret")
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return "", "", err
	}
	if !token.Valid {
		return "", "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", fmt.Errorf("unexpected claims type")
	}
	sub, _ := claims["sub"].(string)
	if _, err := uuid.Parse(strings.TrimSpace(sub)); err != nil {
		return "", "", fmt.Errorf("subject is not a uuid")
	}
	email, _ := claims["email"].(string)
	return strings.TrimSpace(sub), strings.TrimSpace(email), nil
}

func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}
