package database

import (
	"os"
	"strconv"
	"time"
)

// Supported database types.
const (
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
	TypeMySQL    = "mysql"
)

// DatabaseConfig selects and tunes the database connection.
type DatabaseConfig struct {
	Type            string        `mapstructure:"type"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DefaultDatabaseConfig returns a local SQLite file database.
func DefaultDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		Type:            TypeSQLite,
		DSN:             "katello-lifecycle.db",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// DatabaseConfigFromEnv loads config from environment variables.
// KATELLO_DATABASE_TYPE, KATELLO_DATABASE_DSN, KATELLO_DATABASE_MAX_OPEN_CONNS,
// KATELLO_DATABASE_MAX_IDLE_CONNS, KATELLO_DATABASE_CONN_MAX_LIFETIME
func DatabaseConfigFromEnv() *DatabaseConfig {
	cfg := DefaultDatabaseConfig()

	if v := os.Getenv("KATELLO_DATABASE_TYPE"); v != "" {
		cfg.Type = v
	}
	if v := os.Getenv("KATELLO_DATABASE_DSN"); v != "" {
		cfg.DSN = v
	}
	if v := os.Getenv("KATELLO_DATABASE_MAX_OPEN_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxOpenConns = n
		}
	}
	if v := os.Getenv("KATELLO_DATABASE_MAX_IDLE_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.MaxIdleConns = n
		}
	}
	if v := os.Getenv("KATELLO_DATABASE_CONN_MAX_LIFETIME"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.ConnMaxLifetime = d
		}
	}

	return cfg
}
