package tasks

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestStore(t *testing.T) *TaskStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	store := NewTaskStore(db)
	require.NoError(t, store.AutoMigrate())
	return store
}

func key(s string) *string { return &s }

func newTestTask(action, resourceID string) *Task {
	return &Task{
		ID:             uuid.New().String(),
		Organization:   "ACME",
		Action:         action,
		ResourceType:   "Katello::ContentViewEnvironment",
		ResourceID:     resourceID,
		ResourceLabel:  "dev/web",
		Input:          Payload{"owner": "ACME"},
		RequestedBy:    "test-user",
		RequestedAt:    time.Now(),
		IdempotencyKey: key(action + ":" + resourceID),
	}
}
