// Package config loads the server configuration from a YAML file,
// KATELLO_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/katello/lifecycle/pkg/audit"
	"github.com/katello/lifecycle/pkg/authz"
	"github.com/katello/lifecycle/pkg/cache"
	"github.com/katello/lifecycle/pkg/candlepin"
	"github.com/katello/lifecycle/pkg/database"
	"github.com/katello/lifecycle/pkg/ha"
	"github.com/katello/lifecycle/pkg/logging"
	"github.com/katello/lifecycle/pkg/tasks"
	"github.com/katello/lifecycle/pkg/tenancy"
)

// EnvPrefix prefixes every environment override, e.g. KATELLO_DATABASE_DSN.
const EnvPrefix = "KATELLO"

// Config is the complete server configuration.
type Config struct {
	Listen          string                    `mapstructure:"listen"`
	ShutdownTimeout time.Duration             `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string                  `mapstructure:"cors_origins"`
	Database        database.DatabaseConfig   `mapstructure:"database"`
	Logging         logging.LoggingConfig     `mapstructure:"logging"`
	Tenancy         TenancyConfig             `mapstructure:"tenancy"`
	Authz           authz.AuthzConfig         `mapstructure:"authz"`
	Audit           audit.AuditConfig         `mapstructure:"audit"`
	Tasks           tasks.TaskConfig          `mapstructure:"tasks"`
	Candlepin       candlepin.CandlepinConfig `mapstructure:"candlepin"`
	Cache           cache.CacheConfig         `mapstructure:"cache"`
	HA              ha.HAConfig               `mapstructure:"ha"`
}

// TenancyConfig selects how requests name their organization.
type TenancyConfig struct {
	Mode                tenancy.TenancyMode `mapstructure:"mode"`
	DefaultOrganization string              `mapstructure:"default_organization"`
}

// Default returns the configuration used when no file, environment or
// flag overrides anything.
func Default() *Config {
	return &Config{
		Listen:          ":8080",
		ShutdownTimeout: 30 * time.Second,
		Database:        *database.DefaultDatabaseConfig(),
		Logging:         *logging.DefaultLoggingConfig(),
		Tenancy: TenancyConfig{
			Mode:                tenancy.ModeSingle,
			DefaultOrganization: tenancy.DefaultOrganization,
		},
		Authz:     *authz.DefaultAuthzConfig(),
		Audit:     *audit.DefaultAuditConfig(),
		Tasks:     *tasks.DefaultTaskConfig(),
		Candlepin: *candlepin.DefaultCandlepinConfig(),
		Cache:     *cache.DefaultCacheConfig(),
		HA:        *ha.DefaultHAConfig(),
	}
}

// RegisterFlags adds the server flags to fs. Flags override file and
// environment values only when set.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to the YAML configuration file")
	fs.String("listen", ":8080", "Address to listen on")
	fs.String("db-type", database.TypeSQLite, "Database type (sqlite, postgres or mysql)")
	fs.String("db-dsn", "", "Database connection string")
	fs.String("tenancy-mode", string(tenancy.ModeSingle), "Organization resolution (single or organization)")
	fs.String("authz-mode", string(authz.AuthzModeNone), "Authorization backend (none, sar or roles)")
	fs.String("log-level", "info", "Root log level")
}

var flagKeys = map[string]string{
	"listen":       "listen",
	"db-type":      "database.type",
	"db-dsn":       "database.dsn",
	"tenancy-mode": "tenancy.mode",
	"authz-mode":   "authz.mode",
	"log-level":    "logging.loggers.root.level",
}

// Load reads the configuration. fs may be nil; when it carries a --config
// flag that file is read, otherwise katello-lifecycle.yaml is looked up in
// the working directory and /etc/katello.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	configFile := ""
	if fs != nil {
		for flagName, key := range flagKeys {
			if f := fs.Lookup(flagName); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", flagName, err)
				}
			}
		}
		if f := fs.Lookup("config"); f != nil {
			configFile = f.Value.String()
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("katello-lifecycle")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/katello")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// Validate checks values the packages cannot default.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen must not be empty")
	}
	switch c.Tenancy.Mode {
	case tenancy.ModeSingle:
		if err := tenancy.ValidateLabel(c.Tenancy.DefaultOrganization); err != nil {
			return fmt.Errorf("tenancy.default_organization: %w", err)
		}
	case tenancy.ModeOrganization:
	default:
		return fmt.Errorf("tenancy.mode %q is not single or organization", c.Tenancy.Mode)
	}
	if c.Tasks.Concurrency < 1 {
		return errors.New("tasks.concurrency must be at least 1")
	}
	if c.Candlepin.Enabled && c.Candlepin.URL == "" {
		return errors.New("candlepin.url is required when candlepin is enabled")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":8080")
	v.SetDefault("shutdown_timeout", "30s")
	v.SetDefault("cors_origins", []string{})

	db := database.DefaultDatabaseConfig()
	v.SetDefault("database.type", db.Type)
	v.SetDefault("database.dsn", db.DSN)
	v.SetDefault("database.max_open_conns", db.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", db.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", db.ConnMaxLifetime)

	lc := logging.DefaultLoggingConfig()
	v.SetDefault("logging.colorize", lc.Colorize)
	v.SetDefault("logging.path", lc.Path)
	v.SetDefault("logging.console_inline", lc.ConsoleInline)
	v.SetDefault("logging.log_trace", lc.LogTrace)
	for name, l := range lc.Loggers {
		prefix := "logging.loggers." + name + "."
		setIfNotEmpty(v, prefix+"level", l.Level)
		setIfNotEmpty(v, prefix+"type", l.Type)
		setIfNotEmpty(v, prefix+"filename", l.Filename)
		setIfNotEmpty(v, prefix+"age", l.Age)
		setIfNotEmpty(v, prefix+"pattern", l.Pattern)
		if l.Keep > 0 {
			v.SetDefault(prefix+"keep", l.Keep)
		}
	}

	v.SetDefault("tenancy.mode", string(tenancy.ModeSingle))
	v.SetDefault("tenancy.default_organization", tenancy.DefaultOrganization)

	az := authz.DefaultAuthzConfig()
	v.SetDefault("authz.mode", string(az.Mode))
	v.SetDefault("authz.roles_file", az.RolesFile)
	v.SetDefault("authz.cache_ttl", az.CacheTTL)
	v.SetDefault("authz.token_key", "")
	v.SetDefault("authz.token_issuer", "")
	v.SetDefault("authz.token_audience", "")

	au := audit.DefaultAuditConfig()
	v.SetDefault("audit.retention_days", au.RetentionDays)
	v.SetDefault("audit.log_denied", au.LogDenied)
	v.SetDefault("audit.enabled", au.Enabled)
	v.SetDefault("audit.retention_interval", au.RetentionInterval)

	tc := tasks.DefaultTaskConfig()
	v.SetDefault("tasks.concurrency", tc.Concurrency)
	v.SetDefault("tasks.max_retries", tc.MaxRetries)
	v.SetDefault("tasks.poll_interval", tc.PollInterval)
	v.SetDefault("tasks.claim_timeout", tc.ClaimTimeout)
	v.SetDefault("tasks.cleanup_interval", tc.CleanupInterval)
	v.SetDefault("tasks.retention_days", tc.RetentionDays)
	v.SetDefault("tasks.enabled", tc.Enabled)

	cp := candlepin.DefaultCandlepinConfig()
	v.SetDefault("candlepin.url", cp.URL)
	v.SetDefault("candlepin.username", cp.Username)
	v.SetDefault("candlepin.password", cp.Password)
	v.SetDefault("candlepin.timeout", cp.Timeout)
	v.SetDefault("candlepin.retry_max", cp.RetryMax)
	v.SetDefault("candlepin.retry_wait_min", cp.RetryWaitMin)
	v.SetDefault("candlepin.retry_wait_max", cp.RetryWaitMax)
	v.SetDefault("candlepin.enabled", cp.Enabled)

	cc := cache.DefaultCacheConfig()
	v.SetDefault("cache.enabled", cc.Enabled)
	v.SetDefault("cache.resolution_ttl", cc.ResolutionTTL)
	v.SetDefault("cache.max_size", cc.MaxSize)

	hc := ha.DefaultHAConfig()
	v.SetDefault("ha.leader_election", hc.LeaderElectionEnabled)
	v.SetDefault("ha.lease_name", hc.LeaseName)
	v.SetDefault("ha.lease_namespace", hc.LeaseNamespace)
	v.SetDefault("ha.lease_duration", hc.LeaseDuration)
	v.SetDefault("ha.renew_deadline", hc.RenewDeadline)
	v.SetDefault("ha.retry_period", hc.RetryPeriod)
	v.SetDefault("ha.migration_lock", hc.MigrationLockEnabled)
	v.SetDefault("ha.migration_lock_wait", hc.MigrationLockWait)
	v.SetDefault("ha.identity", hc.Identity)
}

func setIfNotEmpty(v *viper.Viper, key, value string) {
	if value != "" {
		v.SetDefault(key, value)
	}
}
