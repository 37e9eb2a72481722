package authz

import (
	"context"
	"fmt"
	"strings"

	authorizationv1 "k8s.io/api/authorization/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	authorizationv1client "k8s.io/client-go/kubernetes/typed/authorization/v1"
)

// SARAuthorizer asks the Kubernetes API server through SubjectAccessReview.
// RBAC rules are written against APIGroup, the resource names in this
// package and the namespace returned by Namespace for each organization.
type SARAuthorizer struct {
	reviews authorizationv1client.SubjectAccessReviewInterface
}

// NewSARAuthorizer creates a SARAuthorizer backed by client.
func NewSARAuthorizer(client kubernetes.Interface) *SARAuthorizer {
	return &SARAuthorizer{reviews: client.AuthorizationV1().SubjectAccessReviews()}
}

// Authorize creates a SubjectAccessReview for req. An explicit denial wins
// over an allow from another authorizer in the chain.
func (s *SARAuthorizer) Authorize(ctx context.Context, req AuthzRequest) (bool, error) {
	review, err := s.reviews.Create(ctx, SubjectAccessReview(req), metav1.CreateOptions{})
	if err != nil {
		return false, fmt.Errorf("subject access review %s %s: %w", req.Verb, req.Resource, err)
	}
	if review.Status.Denied {
		return false, nil
	}
	return review.Status.Allowed, nil
}

// SubjectAccessReview builds the review sent for req. Organization-scoped
// requests are namespaced; global ones are cluster-scoped.
func SubjectAccessReview(req AuthzRequest) *authorizationv1.SubjectAccessReview {
	attrs := &authorizationv1.ResourceAttributes{
		Group:    APIGroup,
		Resource: req.Resource,
		Verb:     req.Verb,
		Name:     req.Name,
	}
	if req.Organization != "" {
		attrs.Namespace = Namespace(req.Organization)
	}
	return &authorizationv1.SubjectAccessReview{
		Spec: authorizationv1.SubjectAccessReviewSpec{
			User:               req.User,
			Groups:             req.Groups,
			ResourceAttributes: attrs,
		},
	}
}

// Namespace maps an organization label to a DNS-1123 label: lowercased,
// other characters replaced by '-', trimmed and capped at 63 characters.
func Namespace(org string) string {
	ns := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '-'
		}
	}, org)
	if len(ns) > 63 {
		ns = ns[:63]
	}
	return strings.Trim(ns, "-")
}
