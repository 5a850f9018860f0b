package interceptors

import (
	"net/http"
	"slices"
	"strings"

	"github.com/FACorreiaa/collections-portal/internal/domain/common"
)

// TokenParser verifies a bearer token and returns its claims.
type TokenParser interface {
	Parse(token string) (*common.Claims, error)
}

// RequireAuth rejects requests without a valid staff bearer token and puts
// the verified claims on the request context.
func RequireAuth(parser TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				common.WriteError(w, common.ErrUnauthenticated)
				return
			}
			claims, err := parser.Parse(token)
			if err != nil {
				common.WriteError(w, common.ErrUnauthenticated)
				return
			}
			next.ServeHTTP(w, r.WithContext(common.WithClaims(r.Context(), claims)))
		})
	}
}

// RequireRole allows only the listed roles. It must run after RequireAuth.
func RequireRole(roles ...common.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := common.ClaimsFromContext(r.Context())
			if !ok {
				common.WriteError(w, common.ErrUnauthenticated)
				return
			}
			if !slices.Contains(roles, claims.Role) {
				common.WriteError(w, common.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
