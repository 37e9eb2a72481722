package candlepin

import (
	"os"
	"strconv"
	"time"
)

// CandlepinConfig controls the Candlepin client.
type CandlepinConfig struct {
	URL          string        `mapstructure:"url"`            // Base URL, e.g. https://localhost:23443/candlepin
	Username     string        `mapstructure:"username"`       // Basic auth user
	Password     string        `mapstructure:"password"`       // Basic auth password
	Timeout      time.Duration `mapstructure:"timeout"`        // Per-attempt timeout. Default 30s.
	RetryMax     int           `mapstructure:"retry_max"`      // Retries for transient failures. Default 4.
	RetryWaitMin time.Duration `mapstructure:"retry_wait_min"` // Default 500ms.
	RetryWaitMax time.Duration `mapstructure:"retry_wait_max"` // Default 30s.
	Enabled      bool          `mapstructure:"enabled"`        // Whether bindings are mirrored to Candlepin. Default false.
}

// DefaultCandlepinConfig returns the default configuration.
func DefaultCandlepinConfig() *CandlepinConfig {
	return &CandlepinConfig{
		URL:          "https://localhost:23443/candlepin",
		Timeout:      30 * time.Second,
		RetryMax:     4,
		RetryWaitMin: 500 * time.Millisecond,
		RetryWaitMax: 30 * time.Second,
	}
}

// CandlepinConfigFromEnv loads config from environment variables.
// KATELLO_CANDLEPIN_URL, KATELLO_CANDLEPIN_USERNAME, KATELLO_CANDLEPIN_PASSWORD,
// KATELLO_CANDLEPIN_TIMEOUT, KATELLO_CANDLEPIN_RETRY_MAX, KATELLO_CANDLEPIN_ENABLED
func CandlepinConfigFromEnv() *CandlepinConfig {
	cfg := DefaultCandlepinConfig()

	if v := os.Getenv("KATELLO_CANDLEPIN_URL"); v != "" {
		cfg.URL = v
	}
	if v := os.Getenv("KATELLO_CANDLEPIN_USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv("KATELLO_CANDLEPIN_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("KATELLO_CANDLEPIN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Timeout = d
		}
	}
	if v := os.Getenv("KATELLO_CANDLEPIN_RETRY_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.RetryMax = n
		}
	}
	if v := os.Getenv("KATELLO_CANDLEPIN_ENABLED"); v != "" {
		cfg.Enabled, _ = strconv.ParseBool(v)
	}

	return cfg
}
