package cache

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// CacheConfig holds configuration for the lookup caches.
type CacheConfig struct {
	// Enabled controls whether Candlepin-name lookups are cached.
	Enabled bool `mapstructure:"enabled"`

	// ResolutionTTL is how long a resolved Candlepin name stays cached.
	ResolutionTTL time.Duration `mapstructure:"resolution_ttl"`

	// MaxSize is the maximum number of cached lookups.
	MaxSize int `mapstructure:"max_size"`
}

// DefaultCacheConfig returns a CacheConfig with sensible defaults.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Enabled:       true,
		ResolutionTTL: 5 * time.Minute,
		MaxSize:       1000,
	}
}

// CacheConfigFromEnv reads cache configuration from environment variables,
// falling back to defaults for any unset variable.
//
// Environment variables:
//   - KATELLO_CACHE_ENABLED: "true" or "false" (default: "true")
//   - KATELLO_CACHE_RESOLUTION_TTL: duration in seconds (default: 300)
//   - KATELLO_CACHE_MAX_SIZE: max entries (default: 1000)
func CacheConfigFromEnv() *CacheConfig {
	cfg := DefaultCacheConfig()

	if v := os.Getenv("KATELLO_CACHE_ENABLED"); v != "" {
		cfg.Enabled = strings.EqualFold(v, "true") || v == "1"
	}

	if v := os.Getenv("KATELLO_CACHE_RESOLUTION_TTL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.ResolutionTTL = time.Duration(secs) * time.Second
		}
	}

	if v := os.Getenv("KATELLO_CACHE_MAX_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxSize = n
		}
	}

	return cfg
}
