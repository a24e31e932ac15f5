package rbac

import (
	"net/http"

	"github.com/fixdesk/fixdesk/internal/platform/httpx"
)

// RequirePrincipal extracts the principal or writes a 401 problem response.
func RequirePrincipal(w http.ResponseWriter, r *http.Request) (Principal, bool) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing identity")
	}
	return p, ok
}
