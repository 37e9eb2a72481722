package tenancy

import "context"

// ctxKey is an unexported type used as the context key for OrgContext.
type ctxKey struct{}

// OrgContext carries the resolved organization through request context.
type OrgContext struct {
	// Organization is the organization label.
	Organization string
}

// WithOrganization returns a new context with the given OrgContext attached.
func WithOrganization(ctx context.Context, oc OrgContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, oc)
}

// OrgFromContext retrieves the OrgContext from the context.
// Returns the zero value and false if none is set.
func OrgFromContext(ctx context.Context) (OrgContext, bool) {
	oc, ok := ctx.Value(ctxKey{}).(OrgContext)
	return oc, ok
}

// OrganizationFromContext returns the organization label from the context,
// or "" if no organization context is set.
func OrganizationFromContext(ctx context.Context) string {
	oc, ok := OrgFromContext(ctx)
	if !ok {
		return ""
	}
	return oc.Organization
}
