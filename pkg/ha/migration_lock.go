package ha

import (
	"context"
	"database/sql"
	"fmt"
	"hash/crc32"
	"time"

	"gorm.io/gorm"
)

const migrationLockName = "katello-lifecycle-migration"

// MigrationLocker serializes schema migrations across replicas.
type MigrationLocker interface {
	// WithLock runs fn while holding the migration lock.
	WithLock(ctx context.Context, fn func() error) error
}

// Migrator is a store that can migrate its own schema.
type Migrator interface {
	AutoMigrate() error
}

// MigrateAll runs every migrator under one acquisition of the lock.
func MigrateAll(ctx context.Context, locker MigrationLocker, migrators ...Migrator) error {
	return locker.WithLock(ctx, func() error {
		for _, m := range migrators {
			if err := m.AutoMigrate(); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
		}
		return nil
	})
}

// NewMigrationLocker returns the locker for the database dialect: advisory
// locks on PostgreSQL, named locks on MySQL and a lock table elsewhere.
// A nil db or a disabled config yields a locker that only runs fn.
func NewMigrationLocker(db *gorm.DB, cfg *HAConfig) MigrationLocker {
	if cfg == nil {
		cfg = DefaultHAConfig()
	}
	if db == nil || !cfg.MigrationLockEnabled {
		return noopMigrationLock{}
	}
	switch db.Dialector.Name() {
	case "postgres":
		return &pgAdvisoryLock{
			db:     db,
			lockID: int64(crc32.ChecksumIEEE([]byte(migrationLockName))),
		}
	case "mysql":
		return &mysqlNamedLock{db: db, wait: cfg.MigrationLockWait}
	}
	_ = db.AutoMigrate(&migrationLockRecord{})
	return &tableMigrationLock{
		db:            db,
		owner:         cfg.Identity,
		wait:          cfg.MigrationLockWait,
		retryInterval: time.Second,
		staleAfter:    5 * time.Minute,
	}
}

type noopMigrationLock struct{}

func (noopMigrationLock) WithLock(_ context.Context, fn func() error) error {
	return fn()
}

type pgAdvisoryLock struct {
	db     *gorm.DB
	lockID int64
}

func (l *pgAdvisoryLock) WithLock(ctx context.Context, fn func() error) error {
	if err := l.db.WithContext(ctx).Exec("SELECT pg_advisory_lock(?)", l.lockID).Error; err != nil {
		return fmt.Errorf("failed to acquire migration advisory lock: %w", err)
	}
	defer l.db.Exec("SELECT pg_advisory_unlock(?)", l.lockID)
	return fn()
}

type mysqlNamedLock struct {
	db   *gorm.DB
	wait time.Duration
}

func (l *mysqlNamedLock) WithLock(ctx context.Context, fn func() error) error {
	var got sql.NullInt64
	err := l.db.WithContext(ctx).
		Raw("SELECT GET_LOCK(?, ?)", migrationLockName, int(l.wait.Seconds())).
		Row().Scan(&got)
	if err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	if !got.Valid || got.Int64 != 1 {
		return fmt.Errorf("timed out acquiring migration lock after %s", l.wait)
	}
	defer l.db.Exec("SELECT RELEASE_LOCK(?)", migrationLockName)
	return fn()
}

type migrationLockRecord struct {
	ID       string    `gorm:"primaryKey;column:id"`
	LockedAt time.Time `gorm:"column:locked_at"`
	LockedBy string    `gorm:"column:locked_by"`
}

func (migrationLockRecord) TableName() string { return "migration_lock" }

// tableMigrationLock holds the lock by owning the single row of the lock
// table. Rows older than staleAfter belong to crashed holders and are removed.
type tableMigrationLock struct {
	db            *gorm.DB
	owner         string
	wait          time.Duration
	retryInterval time.Duration
	staleAfter    time.Duration
}

func (l *tableMigrationLock) WithLock(ctx context.Context, fn func() error) error {
	deadline := time.Now().Add(l.wait)
	for {
		l.db.WithContext(ctx).
			Where("id = ? AND locked_at < ?", migrationLockName, time.Now().Add(-l.staleAfter)).
			Delete(&migrationLockRecord{})

		row := migrationLockRecord{ID: migrationLockName, LockedAt: time.Now(), LockedBy: l.owner}
		err := l.db.WithContext(ctx).Create(&row).Error
		if err == nil {
			break
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("failed to acquire migration lock within %s: %w", l.wait, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retryInterval):
		}
	}

	defer l.db.Where("id = ?", migrationLockName).Delete(&migrationLockRecord{})
	return fn()
}
