package tenancy

import (
	"context"
	"testing"
)

func TestWithOrganizationAndOrgFromContext(t *testing.T) {
	ctx := WithOrganization(context.Background(), OrgContext{Organization: "ACME_Corporation"})

	got, ok := OrgFromContext(ctx)
	if !ok {
		t.Fatal("expected OrgFromContext to return true")
	}
	if got.Organization != "ACME_Corporation" {
		t.Errorf("Organization = %q, want %q", got.Organization, "ACME_Corporation")
	}
}

func TestOrgFromContext_Missing(t *testing.T) {
	if _, ok := OrgFromContext(context.Background()); ok {
		t.Fatal("expected OrgFromContext to return false for empty context")
	}
}

func TestOrganizationFromContext(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{
			name: "with organization set",
			ctx:  WithOrganization(context.Background(), OrgContext{Organization: "Empty_Org"}),
			want: "Empty_Org",
		},
		{
			name: "without organization set",
			ctx:  context.Background(),
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OrganizationFromContext(tt.ctx); got != tt.want {
				t.Errorf("OrganizationFromContext() = %q, want %q", got, tt.want)
			}
		})
	}
}
