package lifecycle

import "time"

// OrganizationResponse is the API representation of an organization.
type OrganizationResponse struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	Label     string `json:"label"`
	CreatedAt string `json:"created_at"`
}

// EnvironmentResponse is the API representation of a lifecycle environment.
type EnvironmentResponse struct {
	ID             uint   `json:"id"`
	Name           string `json:"name"`
	Label          string `json:"label"`
	Library        bool   `json:"library"`
	OrganizationID uint   `json:"organization_id"`
}

// ContentViewResponse is the API representation of a content view.
type ContentViewResponse struct {
	ID             uint   `json:"id"`
	Name           string `json:"name"`
	Label          string `json:"label"`
	Default        bool   `json:"default"`
	OrganizationID uint   `json:"organization_id"`
}

// BindingResponse is the API representation of a content view environment.
type BindingResponse struct {
	ID                   uint                 `json:"id"`
	Name                 string               `json:"name"`
	Label                string               `json:"label"`
	CPID                 string               `json:"cp_id"`
	CandlepinName        string               `json:"candlepin_name"`
	Default              bool                 `json:"default_environment"`
	Organization         string               `json:"organization,omitempty"`
	ContentView          *ContentViewResponse `json:"content_view,omitempty"`
	Environment          *EnvironmentResponse `json:"lifecycle_environment,omitempty"`
	ContentViewVersionID *uint                `json:"content_view_version_id,omitempty"`
	CreatedAt            string               `json:"created_at"`
	UpdatedAt            string               `json:"updated_at"`
}

// BindingList is a list of bindings.
type BindingList struct {
	Results []BindingResponse `json:"results"`
	Total   int               `json:"total"`
	Search  string            `json:"search,omitempty"`
}

// HostResponse is the API representation of a host.
type HostResponse struct {
	ID             uint   `json:"id"`
	Name           string `json:"name"`
	OrganizationID uint   `json:"organization_id"`
	ContentFacetID uint   `json:"content_facet_id,omitempty"`
}

// ActivationKeyResponse is the API representation of an activation key.
type ActivationKeyResponse struct {
	ID            uint   `json:"id"`
	Name          string `json:"name"`
	ContentViewID uint   `json:"content_view_id"`
	EnvironmentID uint   `json:"environment_id"`
}

// PriorityResponse reports the priority a content facet gives a binding.
type PriorityResponse struct {
	ContentViewEnvironmentID uint `json:"content_view_environment_id"`
	ContentFacetID           uint `json:"content_facet_id"`
	Priority                 *int `json:"priority"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string              `json:"error"`
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

// CreateOrganizationRequest is the body of POST /organizations.
type CreateOrganizationRequest struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

// CreateNamedRequest is the body of environment and content view creation.
type CreateNamedRequest struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

// CreateBindingRequest is the body of POST /content_view_environments.
type CreateBindingRequest struct {
	Name                 string `json:"name,omitempty"`
	ContentViewID        uint   `json:"content_view_id"`
	EnvironmentID        uint   `json:"environment_id"`
	ContentViewVersionID *uint  `json:"content_view_version_id,omitempty"`
}

// SetPriorityRequest is the body of PUT .../content_facets/{facetId}.
type SetPriorityRequest struct {
	Priority int `json:"priority"`
}

// RegisterHostRequest is the body of POST /organizations/{org}/hosts.
type RegisterHostRequest struct {
	Name string `json:"name"`
}

// CreateActivationKeyRequest is the body of POST /organizations/{org}/activation_keys.
type CreateActivationKeyRequest struct {
	Name          string `json:"name"`
	ContentViewID uint   `json:"content_view_id"`
	EnvironmentID uint   `json:"environment_id"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func organizationToResponse(o *Organization) OrganizationResponse {
	return OrganizationResponse{
		ID:        o.ID,
		Name:      o.Name,
		Label:     o.Label,
		CreatedAt: formatTime(o.CreatedAt),
	}
}

func environmentToResponse(e *Environment) *EnvironmentResponse {
	if e == nil {
		return nil
	}
	return &EnvironmentResponse{
		ID:             e.ID,
		Name:           e.Name,
		Label:          e.Label,
		Library:        e.Library,
		OrganizationID: e.OrganizationID,
	}
}

func contentViewToResponse(cv *ContentView) *ContentViewResponse {
	if cv == nil {
		return nil
	}
	return &ContentViewResponse{
		ID:             cv.ID,
		Name:           cv.Name,
		Label:          cv.Label,
		Default:        cv.Default,
		OrganizationID: cv.OrganizationID,
	}
}

// BindingToResponse converts a binding to its API representation.
func BindingToResponse(c *ContentViewEnvironment) BindingResponse {
	return BindingResponse{
		ID:                   c.ID,
		Name:                 c.Name,
		Label:                c.Label,
		CPID:                 c.CPID,
		CandlepinName:        c.CandlepinName(),
		Default:              c.DefaultEnvironment(),
		Organization:         c.organizationLabel(),
		ContentView:          contentViewToResponse(c.ContentView),
		Environment:          environmentToResponse(c.Environment),
		ContentViewVersionID: c.ContentViewVersionID,
		CreatedAt:            formatTime(c.CreatedAt),
		UpdatedAt:            formatTime(c.UpdatedAt),
	}
}
