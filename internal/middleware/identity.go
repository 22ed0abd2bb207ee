package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/chlear/crm/internal/auth"
)

// IdentityMiddleware resolves the caller from the identity headers set by
// the edge proxy and stashes it on the request context. Requests without a
// usable identity pass through unauthenticated; handlers decide whether
// that is acceptable.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, userErr := uuid.Parse(strings.TrimSpace(r.Header.Get("X-User-ID")))
		companyID, companyErr := uuid.Parse(strings.TrimSpace(r.Header.Get("X-Company-ID")))
		if userErr == nil && companyErr == nil {
			identity := auth.Identity{
				UserID:    userID,
				CompanyID: companyID,
				Role:      strings.TrimSpace(r.Header.Get("X-Role")),
			}
			r = r.WithContext(auth.ContextWithIdentity(r.Context(), identity))
		}
		next.ServeHTTP(w, r)
	})
}
