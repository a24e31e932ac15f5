package rbac

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/fixdesk/fixdesk/internal/platform/httpx"
)

// Identity headers injected by the authentication gateway. Token issuance
// and verification happen upstream; this service only consumes the
// resolved identity.
const (
	HeaderUserID   = "X-Auth-User-Id"
	HeaderOrgID    = "X-Auth-Org-Id"
	HeaderRole     = "X-Auth-Role"
	HeaderBranches = "X-Auth-Branch-Ids"
)

// Middleware resolves gateway identity headers into a Principal.
type Middleware struct{}

// NewMiddleware constructs the principal middleware.
func NewMiddleware() Middleware {
	return Middleware{}
}

// Resolve parses identity headers and stores the Principal in context.
// Requests without a complete identity are rejected upfront.
func (Middleware) Resolve(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := strconv.ParseInt(r.Header.Get(HeaderUserID), 10, 64)
		if err != nil || userID <= 0 {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing identity")
			return
		}
		orgID, err := strconv.ParseInt(r.Header.Get(HeaderOrgID), 10, 64)
		if err != nil || orgID <= 0 {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing organization")
			return
		}
		role := Role(r.Header.Get(HeaderRole))
		if !ValidRole(role) {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "unknown role")
			return
		}
		var branchIDs []int64
		if raw := strings.TrimSpace(r.Header.Get(HeaderBranches)); raw != "" {
			for _, part := range strings.Split(raw, ",") {
				id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
				if err != nil || id <= 0 {
					httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid branch assignment")
					return
				}
				branchIDs = append(branchIDs, id)
			}
		}
		p := NewPrincipal(userID, orgID, role, branchIDs)
		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
	})
}

// Require returns middleware enforcing the capability on the resolved principal.
func (Middleware) Require(cap Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing identity")
				return
			}
			if !p.Can(cap) {
				httpx.Problem(w, http.StatusForbidden, "Unauthorized", "operation not permitted")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
