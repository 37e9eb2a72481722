// Package tenancy resolves the organization a request operates in. In
// single-organization mode every request uses the configured organization;
// in organization mode the caller names it per request.
package tenancy

// TenancyMode controls how the organization context is resolved.
type TenancyMode string

const (
	// ModeSingle uses the configured default organization for all requests.
	ModeSingle TenancyMode = "single"
	// ModeOrganization requires the organization on each request.
	ModeOrganization TenancyMode = "organization"
)

// DefaultOrganization is the organization label used in single mode when
// none is configured.
const DefaultOrganization = "Default_Organization"
