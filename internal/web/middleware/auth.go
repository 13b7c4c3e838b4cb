package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/windmill-io/windmill/internal/web/auth"
	"github.com/windmill-io/windmill/internal/web/response"
)

// Auth requires a valid bearer token. A nil service disables the check.
func Auth(tokens *auth.TokenService) Middleware {
	return func(next http.Handler) http.Handler {
		if tokens == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="windmill"`)
				response.Error(w, r, http.StatusUnauthorized, "authorization required")
				return
			}

			claims, err := tokens.ValidateToken(token)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				response.Error(w, r, http.StatusUnauthorized, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScope rejects requests whose token lacks scope. Requests without
// claims pass, which happens only when authentication is disabled.
func RequireScope(scope string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if claims := GetClaims(r.Context()); claims != nil && !claims.HasScope(scope) {
				response.Error(w, r, http.StatusForbidden, "missing scope "+scope)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetClaims returns the validated token claims, or nil
func GetClaims(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(ClaimsKey).(*auth.Claims)
	return claims
}
