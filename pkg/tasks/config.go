package tasks

import (
	"os"
	"strconv"
	"time"
)

// TaskConfig controls task queue and worker behavior.
type TaskConfig struct {
	Concurrency     int           `mapstructure:"concurrency"`      // Max concurrent workers. Default 3.
	MaxRetries      int           `mapstructure:"max_retries"`      // Max retry attempts per task. Default 3.
	PollInterval    time.Duration `mapstructure:"poll_interval"`    // How often workers poll for new tasks. Default 5s.
	ClaimTimeout    time.Duration `mapstructure:"claim_timeout"`    // Max time a task can be running before considered stuck. Default 10m.
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"` // How often stuck recovery and retention run. Default 1m.
	RetentionDays   int           `mapstructure:"retention_days"`   // How long to keep finished tasks. Default 7.
	Enabled         bool          `mapstructure:"enabled"`          // Whether the task system is active. Default true.
}

// DefaultTaskConfig returns the default task configuration.
func DefaultTaskConfig() *TaskConfig {
	return &TaskConfig{
		Concurrency:     3,
		MaxRetries:      3,
		PollInterval:    5 * time.Second,
		ClaimTimeout:    10 * time.Minute,
		CleanupInterval: time.Minute,
		RetentionDays:   7,
		Enabled:         true,
	}
}

// TaskConfigFromEnv loads config from environment variables.
// KATELLO_TASK_CONCURRENCY, KATELLO_TASK_MAX_RETRIES, KATELLO_TASK_POLL_INTERVAL_SECONDS,
// KATELLO_TASK_CLAIM_TIMEOUT_MINUTES, KATELLO_TASK_RETENTION_DAYS, KATELLO_TASK_ENABLED
func TaskConfigFromEnv() *TaskConfig {
	cfg := DefaultTaskConfig()

	if v := os.Getenv("KATELLO_TASK_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Concurrency = n
		}
	}

	if v := os.Getenv("KATELLO_TASK_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.MaxRetries = n
		}
	}

	if v := os.Getenv("KATELLO_TASK_POLL_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PollInterval = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("KATELLO_TASK_CLAIM_TIMEOUT_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ClaimTimeout = time.Duration(n) * time.Minute
		}
	}

	if v := os.Getenv("KATELLO_TASK_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RetentionDays = n
		}
	}

	if v := os.Getenv("KATELLO_TASK_ENABLED"); v != "" {
		cfg.Enabled, _ = strconv.ParseBool(v)
	}

	return cfg
}
