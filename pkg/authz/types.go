// Package authz provides authorization primitives for the lifecycle server.
// It supports Kubernetes SubjectAccessReview-based authorization, a static
// role file, and a no-op mode for development.
package authz

import "context"

// APIGroup is the API group for Katello resources in Kubernetes RBAC.
const APIGroup = "katello.theforeman.org"

// Resource names for RBAC mapping.
const (
	ResourceOrganizations           = "organizations"
	ResourceLifecycleEnvironments   = "lifecycle_environments"
	ResourceContentViews            = "content_views"
	ResourceContentViewEnvironments = "content_view_environments"
	ResourceHosts                   = "hosts"
	ResourceActivationKeys          = "activation_keys"
	ResourceTasks                   = "tasks"
	ResourceAudit                   = "audit"
)

// Verb names for RBAC mapping.
const (
	VerbGet     = "get"
	VerbList    = "list"
	VerbCreate  = "create"
	VerbUpdate  = "update"
	VerbDelete  = "delete"
	VerbPromote = "promote"
)

// AuthzRequest represents an authorization check.
type AuthzRequest struct {
	User     string
	Groups   []string
	Resource string
	Verb     string
	// Organization is the organization label; empty for global checks.
	Organization string
	// Name narrows the check to one record, e.g. a binding's Candlepin name.
	Name string
}

// Authorizer checks whether a user is authorized to perform an action.
type Authorizer interface {
	Authorize(ctx context.Context, req AuthzRequest) (bool, error)
}

// AuthorizerFunc adapts an ordinary function to Authorizer.
type AuthorizerFunc func(ctx context.Context, req AuthzRequest) (bool, error)

// Authorize calls f(ctx, req).
func (f AuthorizerFunc) Authorize(ctx context.Context, req AuthzRequest) (bool, error) {
	return f(ctx, req)
}

// AllowAll permits every request. It backs authz mode none.
var AllowAll Authorizer = AuthorizerFunc(func(context.Context, AuthzRequest) (bool, error) {
	return true, nil
})
