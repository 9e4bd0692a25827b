package middleware

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/stationhq/gatehouse/pkg/contextkeys"
	"github.com/stationhq/gatehouse/pkg/directory"
	"github.com/stationhq/gatehouse/pkg/httputil"
)

// OrgContextMiddleware resolves the {org_slug} path parameter against the
// caller's session organization and places the organization on the
// context. A slug that does not match the session's organization yields
// NotFound: sessions are bound to exactly one organization and must not
// be usable to probe others.
func OrgContextMiddleware(dir *directory.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			slug := mux.Vars(r)["org_slug"]
			if slug == "" {
				next.ServeHTTP(w, r)
				return
			}

			sess := contextkeys.SessionFrom(r.Context())
			if sess == nil {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			org, err := dir.ForSession(sess).Organization(r.Context())
			if err != nil {
				httputil.WriteDomainError(w, err)
				return
			}
			if org.Slug != slug {
				httputil.WriteNotFound(w, "organization not found")
				return
			}

			ctx := contextkeys.WithOrg(r.Context(), org)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
