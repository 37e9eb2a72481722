package authz

import (
	"context"

	"github.com/katello/lifecycle/pkg/lifecycle"
)

// BindingAuthorizer adapts an Authorizer to the record-level checks of the
// lifecycle service.
type BindingAuthorizer struct {
	inner Authorizer
}

var _ lifecycle.Authorizer = (*BindingAuthorizer)(nil)

// NewBindingAuthorizer creates a BindingAuthorizer delegating to inner.
func NewBindingAuthorizer(inner Authorizer) *BindingAuthorizer {
	return &BindingAuthorizer{inner: inner}
}

// Authorize checks verb on subject for the identity in ctx.
func (b *BindingAuthorizer) Authorize(ctx context.Context, verb lifecycle.Verb, subject lifecycle.Authorizable) (bool, error) {
	id, _ := IdentityFromContext(ctx)
	return b.inner.Authorize(ctx, AuthzRequest{
		User:         id.User,
		Groups:       id.Groups,
		Resource:     subject.AuthzResource(),
		Verb:         rbacVerb(verb),
		Organization: subject.AuthzOrganization(),
		Name:         subject.AuthzName(),
	})
}

func rbacVerb(v lifecycle.Verb) string {
	switch v {
	case lifecycle.VerbView:
		return VerbGet
	case lifecycle.VerbCreate:
		return VerbCreate
	case lifecycle.VerbDestroy:
		return VerbDelete
	case lifecycle.VerbPromote:
		return VerbPromote
	default:
		return string(v)
	}
}
