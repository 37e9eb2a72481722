package authz

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

const testRoleFile = `roles:
  - name: admins
    groups: [katello-admins]
    permissions: ["*:*"]
  - name: acme-viewer
    users: [alice]
    organizations: [ACME]
    permissions: ["content_view_environments:get", "content_view_environments:list"]
  - name: dev-promoter
    groups: [release]
    organizations: [ACME]
    permissions: ["content_view_environments:promote"]
    names: ["dev/*", "Library"]
`

func loadTestRoles(t *testing.T) *RoleAuthorizer {
	t.Helper()
	filename := filepath.Join(t.TempDir(), "roles.yaml")
	if err := os.WriteFile(filename, []byte(testRoleFile), 0o600); err != nil {
		t.Fatalf("write role file: %v", err)
	}
	a, err := LoadRoleFile(filename)
	if err != nil {
		t.Fatalf("LoadRoleFile: %v", err)
	}
	return a
}

func TestRoleAuthorizer(t *testing.T) {
	a := loadTestRoles(t)

	tests := []struct {
		name string
		req  AuthzRequest
		want bool
	}{
		{
			name: "admin group gets everything",
			req:  AuthzRequest{User: "root", Groups: []string{"katello-admins"}, Resource: ResourceOrganizations, Verb: VerbCreate},
			want: true,
		},
		{
			name: "viewer reads in own organization",
			req:  AuthzRequest{User: "alice", Resource: ResourceContentViewEnvironments, Verb: VerbGet, Organization: "ACME"},
			want: true,
		},
		{
			name: "viewer denied in other organization",
			req:  AuthzRequest{User: "alice", Resource: ResourceContentViewEnvironments, Verb: VerbGet, Organization: "Globex"},
			want: false,
		},
		{
			name: "viewer cannot delete",
			req:  AuthzRequest{User: "alice", Resource: ResourceContentViewEnvironments, Verb: VerbDelete, Organization: "ACME"},
			want: false,
		},
		{
			name: "promoter matches name pattern",
			req:  AuthzRequest{User: "bob", Groups: []string{"release"}, Resource: ResourceContentViewEnvironments, Verb: VerbPromote, Organization: "ACME", Name: "dev/web"},
			want: true,
		},
		{
			name: "promoter matches literal Library",
			req:  AuthzRequest{User: "bob", Groups: []string{"release"}, Resource: ResourceContentViewEnvironments, Verb: VerbPromote, Organization: "ACME", Name: "Library"},
			want: true,
		},
		{
			name: "promoter outside name pattern",
			req:  AuthzRequest{User: "bob", Groups: []string{"release"}, Resource: ResourceContentViewEnvironments, Verb: VerbPromote, Organization: "ACME", Name: "prod/web"},
			want: false,
		},
		{
			name: "unknown user",
			req:  AuthzRequest{User: "mallory", Groups: []string{"guests"}, Resource: ResourceContentViewEnvironments, Verb: VerbGet, Organization: "ACME"},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := a.Authorize(context.Background(), tt.req)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("allowed = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewRoleAuthorizer_InvalidPattern(t *testing.T) {
	_, err := NewRoleAuthorizer([]RoleSpec{{Name: "broken", Names: []string{"dev/["}}})
	if err == nil {
		t.Fatal("expected error for malformed name pattern")
	}
}

func TestLoadRoleFile_Errors(t *testing.T) {
	if _, err := LoadRoleFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	filename := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(filename, []byte("roles: [::"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadRoleFile(filename); err == nil {
		t.Error("expected error for malformed YAML")
	}
}
