package authz

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/katello/lifecycle/pkg/tenancy"
)

// RequirePermission returns middleware that enforces a specific resource/verb
// permission check. It retrieves the identity from context (via IdentityMiddleware)
// and the organization from context (via tenancy middleware), then calls the authorizer.
func RequirePermission(authorizer Authorizer, resource, verb string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			org := tenancy.OrganizationFromContext(r.Context())
			if !check(w, r, authorizer, ResourceMapping{Resource: resource, Verb: verb}, org) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AuthzMiddleware returns middleware that auto-maps the HTTP method and URL path
// to a (resource, verb) pair and performs the authorization check. This can be
// mounted as global middleware on all API routes.
func AuthzMiddleware(authorizer Authorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mapping := MapRequest(r.Method, r.URL.Path)

			// If we cannot map the request, deny by default.
			if mapping == UnknownMapping {
				writeDenied(w, http.StatusForbidden, "forbidden", "unknown endpoint, access denied")
				return
			}

			org := tenancy.OrganizationFromContext(r.Context())
			if org == "" {
				org = organizationFromPath(r.URL.Path)
			}
			if !check(w, r, authorizer, mapping, org) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// check authorizes the request and writes the error response when it fails.
func check(w http.ResponseWriter, r *http.Request, authorizer Authorizer, mapping ResourceMapping, org string) bool {
	id, _ := IdentityFromContext(r.Context())
	req := AuthzRequest{
		User:         id.User,
		Groups:       id.Groups,
		Resource:     mapping.Resource,
		Verb:         mapping.Verb,
		Organization: org,
	}

	allowed, err := authorizer.Authorize(r.Context(), req)
	if err != nil {
		writeDenied(w, http.StatusInternalServerError, "internal_error", "authorization check failed")
		return false
	}
	if !allowed {
		writeDenied(w, http.StatusForbidden, "forbidden",
			fmt.Sprintf("insufficient permissions for %s/%s in organization %s", mapping.Resource, mapping.Verb, org))
		return false
	}
	return true
}

func writeDenied(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}

// organizationFromPath returns the label in /organizations/{org}/... paths.
func organizationFromPath(path string) string {
	rest, ok := strings.CutPrefix(path, APIPrefix+"/organizations/")
	if !ok {
		return ""
	}
	org, _, _ := strings.Cut(rest, "/")
	return org
}
