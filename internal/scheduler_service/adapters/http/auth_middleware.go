package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const AdminSubjectContextKey = ContextKey("adminSubject")

// AdminRole is the role claim required on admin tokens.
const AdminRole = "admin"

type adminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AdminAuthMiddleware accepts HS256 bearer tokens signed with secret that carry role=admin.
func AdminAuthMiddleware(secret []byte, logger *slog.Logger) func(next http.Handler) http.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	keyFunc := func(*jwt.Token) (interface{}, error) { return secret, nil }

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			scheme, tokenString, found := strings.Cut(r.Header.Get("Authorization"), " ")
			if !found || !strings.EqualFold(scheme, "Bearer") || tokenString == "" {
				logger.WarnContext(ctx, "Missing or malformed Authorization header")
				writeError(w, http.StatusUnauthorized, "bearer token required")
				return
			}

			claims := &adminClaims{}
			if _, err := parser.ParseWithClaims(tokenString, claims, keyFunc); err != nil {
				msg := "invalid token"
				if errors.Is(err, jwt.ErrTokenExpired) {
					msg = "token expired"
				}
				logger.WarnContext(ctx, "Token validation failed", "error", err)
				writeError(w, http.StatusUnauthorized, msg)
				return
			}
			if claims.Role != AdminRole {
				logger.WarnContext(ctx, "Token lacks admin role", "subject", claims.Subject, "role", claims.Role)
				writeError(w, http.StatusForbidden, "admin role required")
				return
			}

			ctx = context.WithValue(ctx, AdminSubjectContextKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
