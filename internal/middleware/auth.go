package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"fotograf-backend/internal/services"

	"github.com/rs/zerolog/log"
)

type contextKey string

const claimsKey contextKey = "claims"

// TokenValidator validates session tokens
type TokenValidator interface {
	ValidateJWT(token string) (*services.Claims, error)
}

// AuthMiddleware creates a middleware for JWT authentication
func AuthMiddleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondError(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				respondError(w, "Invalid authorization header format", http.StatusUnauthorized)
				return
			}

			claims, err := validator.ValidateJWT(parts[1])
			if err != nil {
				respondError(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// AdminAuthorizer checks that a session still carries admin rights
type AdminAuthorizer interface {
	AuthorizeAdmin(ctx context.Context, claims *services.Claims) error
}

// RequireAdmin rejects authenticated callers without the admin role
func RequireAdmin(authorizer AdminAuthorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaims(r.Context())
			if claims == nil {
				respondError(w, "Authentication required", http.StatusUnauthorized)
				return
			}
			if err := authorizer.AuthorizeAdmin(r.Context(), claims); err != nil {
				log.Warn().Err(err).Str("user_id", claims.UserID).Str("path", r.URL.Path).Msg("Admin route denied")
				message, code := AdminDenial(err)
				respondError(w, message, code)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AdminDenial maps an AuthorizeAdmin error to a response message and status
func AdminDenial(err error) (string, int) {
	switch {
	case errors.Is(err, services.ErrForbidden):
		return "Admin access required", http.StatusForbidden
	case errors.Is(err, services.ErrUnauthorized):
		return "Authentication required", http.StatusUnauthorized
	default:
		return "Failed to verify admin access", http.StatusInternalServerError
	}
}

// WithClaims stores session claims in ctx
func WithClaims(ctx context.Context, claims *services.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// GetClaims extracts the session claims from context
func GetClaims(ctx context.Context) *services.Claims {
	claims, _ := ctx.Value(claimsKey).(*services.Claims)
	return claims
}

// GetUserID extracts user ID from context
func GetUserID(ctx context.Context) string {
	if claims := GetClaims(ctx); claims != nil {
		return claims.UserID
	}
	return ""
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
