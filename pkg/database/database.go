// Package database opens the GORM connection for the configured backend.
package database

import (
	"fmt"
	"strings"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open connects to the database described by cfg. A nil logger keeps
// GORM's default logger.
func Open(cfg *DatabaseConfig, logger gormlogger.Interface) (*gorm.DB, error) {
	if cfg == nil {
		cfg = DefaultDatabaseConfig()
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	gormCfg := &gorm.Config{}
	if logger != nil {
		gormCfg.Logger = logger
	}
	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", cfg.Type, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if cfg.Type == TypeSQLite && isMemory(cfg.DSN) {
		// Every connection to :memory: is a separate database.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return db, nil
}

func dialectorFor(cfg *DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Type {
	case TypeSQLite, "sqlite3":
		return sqlite.Open(cfg.DSN), nil
	case TypePostgres, "postgresql":
		return postgres.Open(cfg.DSN), nil
	case TypeMySQL:
		dsn, err := NormalizeMySQLDSN(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database type %q (expected sqlite, postgres or mysql)", cfg.Type)
	}
}

// NormalizeMySQLDSN enables parseTime on a MySQL DSN so that DATETIME
// columns scan into time.Time.
func NormalizeMySQLDSN(dsn string) (string, error) {
	c, err := mysqldriver.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid mysql DSN: %w", err)
	}
	c.ParseTime = true
	return c.FormatDSN(), nil
}

func isMemory(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory") || strings.HasPrefix(dsn, "file::memory:")
}
