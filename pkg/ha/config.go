// Package ha runs the lifecycle server with several replicas: schema
// migrations are serialized by a database lock, and singleton loops (task
// workers, audit retention) run only on the replica holding a Kubernetes Lease.
package ha

import (
	"os"
	"strconv"
	"time"
)

// HAConfig holds configuration for high-availability features.
type HAConfig struct {
	// LeaderElectionEnabled gates singleton loops behind a Lease. When false
	// the instance runs them unconditionally.
	LeaderElectionEnabled bool          `mapstructure:"leader_election"`
	LeaseName             string        `mapstructure:"lease_name"`
	LeaseNamespace        string        `mapstructure:"lease_namespace"`
	LeaseDuration         time.Duration `mapstructure:"lease_duration"`
	RenewDeadline         time.Duration `mapstructure:"renew_deadline"`
	RetryPeriod           time.Duration `mapstructure:"retry_period"`

	// MigrationLockEnabled serializes AutoMigrate across replicas.
	MigrationLockEnabled bool          `mapstructure:"migration_lock"`
	MigrationLockWait    time.Duration `mapstructure:"migration_lock_wait"`

	// Identity names this replica in the Lease. Defaults to POD_NAME or the hostname.
	Identity string `mapstructure:"identity"`
}

// DefaultHAConfig returns an HAConfig for a single replica.
func DefaultHAConfig() *HAConfig {
	ns := os.Getenv("POD_NAMESPACE")
	if ns == "" {
		ns = "katello"
	}
	return &HAConfig{
		LeaderElectionEnabled: false,
		LeaseName:             "katello-lifecycle-leader",
		LeaseNamespace:        ns,
		LeaseDuration:         15 * time.Second,
		RenewDeadline:         10 * time.Second,
		RetryPeriod:           2 * time.Second,
		MigrationLockEnabled:  true,
		MigrationLockWait:     30 * time.Second,
		Identity:              defaultIdentity(),
	}
}

// HAConfigFromEnv reads HA configuration from environment variables,
// falling back to defaults for any unset or invalid variable.
//
//   - KATELLO_LEADER_ELECTION_ENABLED (bool)
//   - KATELLO_LEADER_LEASE_NAME, KATELLO_LEADER_LEASE_NAMESPACE
//   - KATELLO_LEADER_LEASE_DURATION, KATELLO_LEADER_RENEW_DEADLINE,
//     KATELLO_LEADER_RETRY_PERIOD (Go durations, e.g. "15s")
//   - KATELLO_MIGRATION_LOCK_ENABLED (bool), KATELLO_MIGRATION_LOCK_WAIT (duration)
//   - POD_NAME
func HAConfigFromEnv() *HAConfig {
	cfg := DefaultHAConfig()

	if v, ok := envBool("KATELLO_LEADER_ELECTION_ENABLED"); ok {
		cfg.LeaderElectionEnabled = v
	}
	if v := os.Getenv("KATELLO_LEADER_LEASE_NAME"); v != "" {
		cfg.LeaseName = v
	}
	if v := os.Getenv("KATELLO_LEADER_LEASE_NAMESPACE"); v != "" {
		cfg.LeaseNamespace = v
	}
	envDuration("KATELLO_LEADER_LEASE_DURATION", &cfg.LeaseDuration)
	envDuration("KATELLO_LEADER_RENEW_DEADLINE", &cfg.RenewDeadline)
	envDuration("KATELLO_LEADER_RETRY_PERIOD", &cfg.RetryPeriod)
	if v, ok := envBool("KATELLO_MIGRATION_LOCK_ENABLED"); ok {
		cfg.MigrationLockEnabled = v
	}
	envDuration("KATELLO_MIGRATION_LOCK_WAIT", &cfg.MigrationLockWait)

	return cfg
}

func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

func envDuration(key string, dst *time.Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		*dst = d
	}
}

func defaultIdentity() string {
	if v := os.Getenv("POD_NAME"); v != "" {
		return v
	}
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}
