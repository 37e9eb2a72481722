package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katello/lifecycle/pkg/authz"
	"github.com/katello/lifecycle/pkg/database"
	"github.com/katello/lifecycle/pkg/tenancy"
)

const testConfigYAML = `
listen: ":9090"
cors_origins: ["https://foreman.example.com"]
database:
  type: postgres
  dsn: "host=db user=katello dbname=katello"
tenancy:
  mode: organization
logging:
  path: /tmp/katello-test
  loggers:
    root:
      type: file
      filename: test.log
    app:
      level: debug
    tire_rest:
      enabled: false
tasks:
  concurrency: 5
  poll_interval: 2s
candlepin:
  enabled: true
  url: https://cp.example.com/candlepin
ha:
  leader_election: true
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "katello-lifecycle.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func flagsFor(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, database.TypeSQLite, cfg.Database.Type)
	assert.Equal(t, tenancy.ModeSingle, cfg.Tenancy.Mode)
	assert.Equal(t, tenancy.DefaultOrganization, cfg.Tenancy.DefaultOrganization)
	assert.Equal(t, authz.AuthzModeNone, cfg.Authz.Mode)
	assert.Equal(t, 90, cfg.Audit.RetentionDays)
	assert.Equal(t, 3, cfg.Tasks.Concurrency)
	assert.Equal(t, 5*time.Second, cfg.Tasks.PollInterval)
	assert.False(t, cfg.Candlepin.Enabled)
	assert.True(t, cfg.Cache.Enabled)
	assert.True(t, cfg.HA.MigrationLockEnabled)
	assert.Equal(t, "info", cfg.Logging.Loggers["root"].Level)
	assert.Equal(t, "warn", cfg.Logging.Loggers["sql"].Level)

	def := Default()
	assert.Equal(t, def.Tasks, cfg.Tasks)
	assert.Equal(t, def.Audit, cfg.Audit)
	assert.Equal(t, def.Candlepin, cfg.Candlepin)
	assert.Equal(t, def.Database, cfg.Database)
	assert.NoError(t, def.Validate())
}

func TestLoad_File(t *testing.T) {
	fs := flagsFor(t, "--config", writeConfig(t, testConfigYAML))

	cfg, err := Load(fs)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, []string{"https://foreman.example.com"}, cfg.CORSOrigins)
	assert.Equal(t, database.TypePostgres, cfg.Database.Type)
	assert.Equal(t, "host=db user=katello dbname=katello", cfg.Database.DSN)
	assert.Equal(t, tenancy.ModeOrganization, cfg.Tenancy.Mode)
	assert.Equal(t, "/tmp/katello-test", cfg.Logging.Path)
	assert.Equal(t, "file", cfg.Logging.Loggers["root"].Type)
	assert.Equal(t, "info", cfg.Logging.Loggers["root"].Level)
	assert.Equal(t, "debug", cfg.Logging.Loggers["app"].Level)
	assert.False(t, cfg.Logging.Loggers["tire_rest"].IsEnabled())
	assert.Equal(t, 5, cfg.Tasks.Concurrency)
	assert.Equal(t, 2*time.Second, cfg.Tasks.PollInterval)
	assert.Equal(t, 3, cfg.Tasks.MaxRetries)
	assert.True(t, cfg.Candlepin.Enabled)
	assert.True(t, cfg.HA.LeaderElectionEnabled)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("KATELLO_LISTEN", ":7070")
	t.Setenv("KATELLO_DATABASE_DSN", "host=other")
	t.Setenv("KATELLO_AUDIT_RETENTION_DAYS", "30")
	t.Setenv("KATELLO_AUTHZ_CACHE_TTL", "1m")
	fs := flagsFor(t, "--config", writeConfig(t, testConfigYAML))

	cfg, err := Load(fs)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Listen)
	assert.Equal(t, "host=other", cfg.Database.DSN)
	assert.Equal(t, 30, cfg.Audit.RetentionDays)
	assert.Equal(t, time.Minute, cfg.Authz.CacheTTL)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("KATELLO_LISTEN", ":7070")
	fs := flagsFor(t,
		"--config", writeConfig(t, testConfigYAML),
		"--listen", ":6060",
		"--db-type", "mysql",
		"--log-level", "debug",
	)

	cfg, err := Load(fs)
	require.NoError(t, err)

	assert.Equal(t, ":6060", cfg.Listen)
	assert.Equal(t, database.TypeMySQL, cfg.Database.Type)
	assert.Equal(t, "debug", cfg.Logging.Loggers["root"].Level)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad tenancy mode", "tenancy:\n  mode: galaxy\n", "tenancy.mode"},
		{"bad default organization", "tenancy:\n  default_organization: \"has space\"\n", "default_organization"},
		{"zero concurrency", "tasks:\n  concurrency: 0\n", "tasks.concurrency"},
		{"candlepin without url", "candlepin:\n  enabled: true\n  url: \"\"\n", "candlepin.url"},
		{"malformed yaml", "listen: [\n", "read config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(flagsFor(t, "--config", writeConfig(t, tt.content)))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(flagsFor(t, "--config", filepath.Join(t.TempDir(), "missing.yaml")))
	assert.Error(t, err)
}
