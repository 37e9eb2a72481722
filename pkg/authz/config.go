package authz

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"k8s.io/client-go/kubernetes"
)

// AuthzMode selects the authorization backend.
type AuthzMode string

const (
	// AuthzModeNone disables authorization checks (development).
	AuthzModeNone AuthzMode = "none"
	// AuthzModeSAR uses Kubernetes SubjectAccessReview for authorization.
	AuthzModeSAR AuthzMode = "sar"
	// AuthzModeRoles uses a static YAML role file.
	AuthzModeRoles AuthzMode = "roles"
)

// AuthzConfig controls authentication and authorization.
type AuthzConfig struct {
	Mode      AuthzMode     `mapstructure:"mode"`
	RolesFile string        `mapstructure:"roles_file"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
	// TokenKey enables HS256 bearer tokens when set.
	TokenKey      string `mapstructure:"token_key"`
	TokenIssuer   string `mapstructure:"token_issuer"`
	TokenAudience string `mapstructure:"token_audience"`
}

// DefaultAuthzConfig returns the default configuration.
func DefaultAuthzConfig() *AuthzConfig {
	return &AuthzConfig{
		Mode:     AuthzModeNone,
		CacheTTL: DefaultCacheTTL,
	}
}

// AuthzConfigFromEnv loads config from environment variables.
// KATELLO_AUTHZ_MODE, KATELLO_AUTHZ_ROLES_FILE, KATELLO_AUTHZ_CACHE_TTL,
// KATELLO_AUTHZ_TOKEN_KEY, KATELLO_AUTHZ_TOKEN_ISSUER, KATELLO_AUTHZ_TOKEN_AUDIENCE
func AuthzConfigFromEnv() *AuthzConfig {
	cfg := DefaultAuthzConfig()

	if v := os.Getenv("KATELLO_AUTHZ_MODE"); v != "" {
		cfg.Mode = AuthzMode(strings.ToLower(v))
	}
	if v := os.Getenv("KATELLO_AUTHZ_ROLES_FILE"); v != "" {
		cfg.RolesFile = v
	}
	if v := os.Getenv("KATELLO_AUTHZ_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.CacheTTL = d
		}
	}
	cfg.TokenKey = os.Getenv("KATELLO_AUTHZ_TOKEN_KEY")
	cfg.TokenIssuer = os.Getenv("KATELLO_AUTHZ_TOKEN_ISSUER")
	cfg.TokenAudience = os.Getenv("KATELLO_AUTHZ_TOKEN_AUDIENCE")

	return cfg
}

// NewAuthorizer builds the Authorizer selected by cfg. client is required in
// SAR mode. SAR and role decisions are cached for cfg.CacheTTL.
func NewAuthorizer(cfg *AuthzConfig, client kubernetes.Interface) (Authorizer, error) {
	var inner Authorizer
	switch cfg.Mode {
	case AuthzModeNone, "":
		return AllowAll, nil
	case AuthzModeSAR:
		if client == nil {
			return nil, errors.New("authz mode sar requires a Kubernetes client")
		}
		inner = NewSARAuthorizer(client)
	case AuthzModeRoles:
		roles, err := LoadRoleFile(cfg.RolesFile)
		if err != nil {
			return nil, err
		}
		inner = roles
	default:
		return nil, fmt.Errorf("unknown authz mode %q", cfg.Mode)
	}
	if cfg.CacheTTL > 0 {
		return NewCachedAuthorizer(inner, cfg.CacheTTL), nil
	}
	return inner, nil
}

// NewIdentityMiddleware builds the identity middleware for cfg.
func NewIdentityMiddleware(cfg *AuthzConfig) (func(http.Handler) http.Handler, error) {
	if cfg.TokenKey == "" {
		return IdentityMiddleware(), nil
	}
	v, err := NewTokenVerifier([]byte(cfg.TokenKey), cfg.TokenIssuer, cfg.TokenAudience)
	if err != nil {
		return nil, err
	}
	return IdentityMiddleware(WithTokenVerifier(v)), nil
}
