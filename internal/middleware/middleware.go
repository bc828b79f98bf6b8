package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/manzil-bh/manzil-backend/internal/utils"
)

const TokenCookie = "token"

type TokenParser interface {
	// ParseToken verifies a signed token and returns the user id it was
	// issued for.
	ParseToken(token string) (string, error)
}

type PrincipalFetcher interface {
	FindPrincipalByUserID(ctx context.Context, userID string) (utils.Principal, error)
}

func tokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(TokenCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

// RequireAuth decodes the token cookie (or bearer header), loads the caller
// and puts a utils.Principal in the request context.
func RequireAuth(tokens TokenParser, fetcher PrincipalFetcher) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := tokenFromRequest(r)
			if raw == "" {
				http.Error(w, "Couldn't find token", http.StatusUnauthorized)
				return
			}

			userID, err := tokens.ParseToken(raw)
			if err != nil {
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			p, err := fetcher.FindPrincipalByUserID(r.Context(), userID)
			if err != nil {
				http.Error(w, "Couldn't find user", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(utils.WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireFirm rejects callers that are not attached to a firm.
func RequireFirm(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := utils.GetPrincipalFromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized: missing user in context", http.StatusUnauthorized)
			return
		}
		if !p.HasFirm() {
			http.Error(w, "Forbidden: user is not a member of a firm", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := utils.GetPrincipalFromContext(r.Context())
			if !ok {
				http.Error(w, "Unauthorized: missing user in context", http.StatusUnauthorized)
				return
			}
			if _, ok := allowed[p.Role]; !ok {
				http.Error(w, "Forbidden: insufficient role", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
