package authz

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"k8s.io/client-go/kubernetes/fake"
)

func TestAuthzConfigFromEnv(t *testing.T) {
	t.Setenv("KATELLO_AUTHZ_MODE", "ROLES")
	t.Setenv("KATELLO_AUTHZ_ROLES_FILE", "/etc/katello/roles.yaml")
	t.Setenv("KATELLO_AUTHZ_CACHE_TTL", "30s")
	t.Setenv("KATELLO_AUTHZ_TOKEN_KEY", "s3cret")

	cfg := AuthzConfigFromEnv()
	if cfg.Mode != AuthzModeRoles {
		t.Errorf("Mode = %q, want %q", cfg.Mode, AuthzModeRoles)
	}
	if cfg.RolesFile != "/etc/katello/roles.yaml" {
		t.Errorf("RolesFile = %q", cfg.RolesFile)
	}
	if cfg.CacheTTL != 30*time.Second {
		t.Errorf("CacheTTL = %v, want 30s", cfg.CacheTTL)
	}
	if cfg.TokenKey != "s3cret" {
		t.Errorf("TokenKey = %q", cfg.TokenKey)
	}
}

func TestAuthzConfigFromEnv_InvalidTTLKeepsDefault(t *testing.T) {
	t.Setenv("KATELLO_AUTHZ_CACHE_TTL", "soon")
	if got := AuthzConfigFromEnv().CacheTTL; got != DefaultCacheTTL {
		t.Errorf("CacheTTL = %v, want %v", got, DefaultCacheTTL)
	}
}

func TestNewAuthorizer(t *testing.T) {
	rolesFile := filepath.Join(t.TempDir(), "roles.yaml")
	if err := os.WriteFile(rolesFile, []byte(testRoleFile), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	tests := []struct {
		name    string
		cfg     AuthzConfig
		client  bool
		wantErr bool
		check   func(t *testing.T, a Authorizer)
	}{
		{
			name: "none",
			cfg:  AuthzConfig{Mode: AuthzModeNone},
			check: func(t *testing.T, a Authorizer) {
				if _, ok := a.(*CachedAuthorizer); ok {
					t.Error("mode none should not be cached")
				}
				allowed, err := a.Authorize(context.Background(), AuthzRequest{User: "anyone", Verb: VerbDelete})
				if err != nil || !allowed {
					t.Errorf("mode none: allowed=%v err=%v", allowed, err)
				}
			},
		},
		{
			name:    "sar without client",
			cfg:     AuthzConfig{Mode: AuthzModeSAR},
			wantErr: true,
		},
		{
			name:   "sar cached",
			cfg:    AuthzConfig{Mode: AuthzModeSAR, CacheTTL: time.Second},
			client: true,
			check: func(t *testing.T, a Authorizer) {
				if _, ok := a.(*CachedAuthorizer); !ok {
					t.Errorf("got %T, want *CachedAuthorizer", a)
				}
			},
		},
		{
			name: "roles uncached",
			cfg:  AuthzConfig{Mode: AuthzModeRoles, RolesFile: rolesFile},
			check: func(t *testing.T, a Authorizer) {
				if _, ok := a.(*RoleAuthorizer); !ok {
					t.Errorf("got %T, want *RoleAuthorizer", a)
				}
			},
		},
		{
			name:    "roles missing file",
			cfg:     AuthzConfig{Mode: AuthzModeRoles, RolesFile: filepath.Join(t.TempDir(), "nope.yaml")},
			wantErr: true,
		},
		{
			name:    "unknown mode",
			cfg:     AuthzConfig{Mode: "ldap"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			var a Authorizer
			var err error
			if tt.client {
				a, err = NewAuthorizer(&cfg, fake.NewClientset())
			} else {
				a, err = NewAuthorizer(&cfg, nil)
			}
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, a)
		})
	}
}
