package tenancy

import (
	"fmt"
	"net/http"
	"regexp"
)

// maxLabelLen matches the width of the organization label column.
const maxLabelLen = 255

// labelRe validates organization labels: letters, digits, underscores and
// hyphens.
var labelRe = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_\-]*$`)

// OrganizationQueryParam is the query parameter used for organization resolution.
const OrganizationQueryParam = "organization"

// OrganizationHeader is the HTTP header used for organization resolution.
const OrganizationHeader = "X-Organization"

// OrgResolver resolves the organization context from an HTTP request.
type OrgResolver interface {
	Resolve(r *http.Request) (OrgContext, error)
}

// SingleOrgResolver always returns its configured organization.
type SingleOrgResolver struct {
	Organization string
}

// Resolve returns the configured organization, or DefaultOrganization.
func (s SingleOrgResolver) Resolve(_ *http.Request) (OrgContext, error) {
	org := s.Organization
	if org == "" {
		org = DefaultOrganization
	}
	return OrgContext{Organization: org}, nil
}

// RequestOrgResolver reads the organization from the request query parameter
// or header. The organization is always required.
type RequestOrgResolver struct{}

// Resolve extracts the organization from the request. It checks the query
// parameter first, then falls back to the X-Organization header.
func (RequestOrgResolver) Resolve(r *http.Request) (OrgContext, error) {
	org := r.URL.Query().Get(OrganizationQueryParam)
	if org == "" {
		org = r.Header.Get(OrganizationHeader)
	}

	if org == "" {
		return OrgContext{}, fmt.Errorf("organization is required (use ?organization= query param or X-Organization header)")
	}

	if err := ValidateLabel(org); err != nil {
		return OrgContext{}, err
	}

	return OrgContext{Organization: org}, nil
}

// ValidateLabel checks that an organization label is well formed.
func ValidateLabel(label string) error {
	if len(label) > maxLabelLen {
		return fmt.Errorf("organization %q exceeds maximum length of %d characters", label, maxLabelLen)
	}
	if !labelRe.MatchString(label) {
		return fmt.Errorf("organization %q is invalid: must consist of letters, digits, underscores or hyphens", label)
	}
	return nil
}
