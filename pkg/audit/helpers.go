package audit

import (
	"net/http"
	"strings"

	"github.com/katello/lifecycle/pkg/authz"
)

// extractResourceIDs returns the ids and labels that follow collection
// segments in an API path, e.g. ["ACME", "4"] for
// /katello/api/v2/organizations/ACME/environments/4.
func extractResourceIDs(path string) []string {
	rest, ok := strings.CutPrefix(strings.TrimRight(path, "/"), authz.APIPrefix+"/")
	if !ok {
		return nil
	}
	var ids []string
	parts := strings.Split(rest, "/")
	for i := 1; i < len(parts); i += 2 {
		if parts[i] == "resolve" {
			break
		}
		ids = append(ids, parts[i])
	}
	return ids
}

// actionForMethod names the change a mutating request makes.
func actionForMethod(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "destroy"
	default:
		return strings.ToLower(method)
	}
}

// isAuditedRequest returns true for mutating API requests. Reads are not
// audited.
func isAuditedRequest(method, path string) bool {
	if isHealthEndpoint(path) {
		return false
	}
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// isHealthEndpoint returns true for health-check paths.
func isHealthEndpoint(path string) bool {
	switch path {
	case "/livez", "/readyz", "/healthz":
		return true
	}
	return false
}

// outcomeFromStatus maps HTTP status codes to audit outcomes.
func outcomeFromStatus(code int) string {
	switch {
	case code >= 200 && code < 300:
		return OutcomeSuccess
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return OutcomeDenied
	default:
		return OutcomeFailure
	}
}
