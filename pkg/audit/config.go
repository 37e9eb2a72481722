package audit

import (
	"os"
	"strconv"
	"time"
)

// AuditConfig controls which events are recorded and how long they are kept.
type AuditConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// LogDenied records requests refused with 401/403 alongside mutations.
	LogDenied bool `mapstructure:"log_denied"`
	// RetentionDays of 0 keeps events forever.
	RetentionDays     int           `mapstructure:"retention_days"`
	RetentionInterval time.Duration `mapstructure:"retention_interval"`
}

// DefaultAuditConfig returns the default configuration.
func DefaultAuditConfig() *AuditConfig {
	return &AuditConfig{
		Enabled:           true,
		LogDenied:         true,
		RetentionDays:     90,
		RetentionInterval: 24 * time.Hour,
	}
}

// AuditConfigFromEnv overlays KATELLO_AUDIT_ENABLED, KATELLO_AUDIT_LOG_DENIED,
// KATELLO_AUDIT_RETENTION_DAYS and KATELLO_AUDIT_RETENTION_INTERVAL on the
// defaults. Unparseable values are ignored.
func AuditConfigFromEnv() *AuditConfig {
	cfg := DefaultAuditConfig()
	if b, err := strconv.ParseBool(os.Getenv("KATELLO_AUDIT_ENABLED")); err == nil {
		cfg.Enabled = b
	}
	if b, err := strconv.ParseBool(os.Getenv("KATELLO_AUDIT_LOG_DENIED")); err == nil {
		cfg.LogDenied = b
	}
	if days, err := strconv.Atoi(os.Getenv("KATELLO_AUDIT_RETENTION_DAYS")); err == nil && days >= 0 {
		cfg.RetentionDays = days
	}
	if d, err := time.ParseDuration(os.Getenv("KATELLO_AUDIT_RETENTION_INTERVAL")); err == nil && d > 0 {
		cfg.RetentionInterval = d
	}
	return cfg
}

func (c *AuditConfig) retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}
