package authz

import (
	"context"
	"testing"

	"github.com/katello/lifecycle/pkg/lifecycle"
)

func TestBindingAuthorizer(t *testing.T) {
	org := &lifecycle.Organization{ID: 1, Label: "ACME"}
	binding := &lifecycle.ContentViewEnvironment{
		ID:            5,
		ContentViewID: 2,
		ContentView:   &lifecycle.ContentView{ID: 2, Label: "web", OrganizationID: 1, Organization: org},
		EnvironmentID: 3,
		Environment:   &lifecycle.Environment{ID: 3, Label: "dev", OrganizationID: 1, Organization: org},
	}

	tests := []struct {
		verb     lifecycle.Verb
		wantVerb string
	}{
		{lifecycle.VerbView, VerbGet},
		{lifecycle.VerbCreate, VerbCreate},
		{lifecycle.VerbDestroy, VerbDelete},
		{lifecycle.VerbPromote, VerbPromote},
	}

	for _, tt := range tests {
		t.Run(string(tt.verb), func(t *testing.T) {
			inner := &recordingAuthorizer{}
			ctx := WithIdentity(context.Background(), Identity{User: "alice", Groups: []string{"ops"}})

			allowed, err := NewBindingAuthorizer(inner).Authorize(ctx, tt.verb, binding)
			if err != nil || !allowed {
				t.Fatalf("Authorize = %v, %v", allowed, err)
			}
			got := inner.last
			if got.User != "alice" || len(got.Groups) != 1 {
				t.Errorf("identity = %q %v", got.User, got.Groups)
			}
			if got.Resource != ResourceContentViewEnvironments {
				t.Errorf("Resource = %q", got.Resource)
			}
			if got.Verb != tt.wantVerb {
				t.Errorf("Verb = %q, want %q", got.Verb, tt.wantVerb)
			}
			if got.Organization != "ACME" {
				t.Errorf("Organization = %q, want ACME", got.Organization)
			}
			if got.Name != "dev/web" {
				t.Errorf("Name = %q, want dev/web", got.Name)
			}
		})
	}
}

// recordingAuthorizer allows every request and remembers the last one.
type recordingAuthorizer struct {
	last AuthzRequest
}

func (r *recordingAuthorizer) Authorize(_ context.Context, req AuthzRequest) (bool, error) {
	r.last = req
	return true, nil
}
