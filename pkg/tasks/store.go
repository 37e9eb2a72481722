package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound is returned when a task does not exist.
	ErrNotFound = errors.New("task not found")
	// ErrNotCancelable is returned when canceling a task that is not queued.
	ErrNotCancelable = errors.New("only queued tasks can be canceled")
)

// TaskStore provides database operations for tasks.
type TaskStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewTaskStore creates a new TaskStore.
func NewTaskStore(db *gorm.DB) *TaskStore {
	return &TaskStore{db: db, now: time.Now}
}

// AutoMigrate creates or updates the foreman_tasks table.
func (s *TaskStore) AutoMigrate() error {
	if err := s.db.AutoMigrate(&Task{}); err != nil {
		return fmt.Errorf("auto-migrate tasks: %w", err)
	}
	return nil
}

// TaskListFilter defines filters for listing tasks.
type TaskListFilter struct {
	Organization string
	Action       string
	ResourceType string
	ResourceID   string
	State        string
	RequestedBy  string
}

// errDuplicateKey aborts an enqueue transaction that lost an idempotency race.
var errDuplicateKey = errors.New("duplicate idempotency key")

// EnqueueOption configures Enqueue.
type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	supersedes []string
}

// Superseding cancels queued tasks holding any of the idempotency keys before
// the new task is enqueued. Running tasks are left to finish.
func Superseding(keys ...string) EnqueueOption {
	return func(o *enqueueOptions) { o.supersedes = append(o.supersedes, keys...) }
}

// Enqueue creates a new queued task. If the task carries an idempotency key
// and an active task with the same key exists, the existing task is returned
// instead of creating a duplicate. Safe for concurrent use.
func (s *TaskStore) Enqueue(ctx context.Context, task *Task, opts ...EnqueueOption) (*Task, error) {
	var o enqueueOptions
	for _, opt := range opts {
		opt(&o)
	}
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.State == "" {
		task.State = TaskStateQueued
	}
	if task.RequestedAt.IsZero() {
		task.RequestedAt = s.now()
	}
	if task.IdempotencyKey != nil && *task.IdempotencyKey == "" {
		task.IdempotencyKey = nil
	}

	db := s.db.WithContext(ctx)
	if task.IdempotencyKey == nil && len(o.supersedes) == 0 {
		if err := db.Create(task).Error; err != nil {
			return nil, fmt.Errorf("enqueue task: %w", err)
		}
		return task, nil
	}

	var result *Task
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := s.supersede(tx, task.ID, o.supersedes); err != nil {
			return err
		}
		if task.IdempotencyKey == nil {
			if err := tx.Create(task).Error; err != nil {
				return fmt.Errorf("enqueue task: %w", err)
			}
			result = task
			return nil
		}

		var existing Task
		err := tx.Where("idempotency_key = ? AND state IN ?", *task.IdempotencyKey, activeStates).First(&existing).Error
		if err == nil {
			result = &existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("check idempotency key: %w", err)
		}

		// Release the key held by finished tasks so the unique index admits
		// the new one.
		if err := tx.Model(&Task{}).
			Where("idempotency_key = ? AND state IN ?", *task.IdempotencyKey, terminalStates).
			Update("idempotency_key", nil).Error; err != nil {
			return fmt.Errorf("release idempotency key: %w", err)
		}

		if err := tx.Create(task).Error; err != nil {
			return errDuplicateKey
		}
		result = task
		return nil
	})
	if errors.Is(err, errDuplicateKey) {
		// A concurrent enqueue won; return its task.
		var existing Task
		if lookupErr := db.Where("idempotency_key = ? AND state IN ?", *task.IdempotencyKey, activeStates).
			First(&existing).Error; lookupErr == nil {
			return &existing, nil
		}
		return nil, fmt.Errorf("enqueue task: %w", err)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// supersede cancels the queued tasks holding keys and releases their keys.
func (s *TaskStore) supersede(tx *gorm.DB, by string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	err := tx.Model(&Task{}).
		Where("idempotency_key IN ? AND state = ?", keys, TaskStateQueued).
		Updates(map[string]any{
			"state":           TaskStateCanceled,
			"finished_at":     s.now(),
			"message":         "Superseded by " + by,
			"idempotency_key": nil,
		}).Error
	if err != nil {
		return fmt.Errorf("supersede tasks: %w", err)
	}
	return nil
}

// Claim atomically picks the oldest runnable queued task and transitions it
// to running. A task with a serial key is runnable only when no other task
// with that key is running or queued ahead of it. Postgres and MySQL skip
// rows locked by other workers.
// Returns nil if no tasks are available.
func (s *TaskStore) Claim(ctx context.Context, maxRetries int) (*Task, error) {
	var task Task
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ahead := tx.Session(&gorm.Session{NewDB: true}).
			Table("foreman_tasks AS ahead").
			Select("1").
			Where("ahead.serial_key = foreman_tasks.serial_key AND ahead.id <> foreman_tasks.id").
			Where("ahead.state = ? OR (ahead.state = ? AND (ahead.requested_at < foreman_tasks.requested_at OR (ahead.requested_at = foreman_tasks.requested_at AND ahead.id < foreman_tasks.id)))",
				TaskStateRunning, TaskStateQueued)
		query := tx.Where("state = ? AND attempt_count <= ?", TaskStateQueued, maxRetries).
			Where("serial_key = '' OR NOT EXISTS (?)", ahead).
			Order("requested_at ASC").
			Limit(1)
		switch tx.Dialector.Name() {
		case "postgres", "mysql":
			query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		if err := query.Find(&task).Error; err != nil {
			return err
		}
		if task.ID == "" {
			return nil
		}

		now := s.now()
		res := tx.Model(&Task{}).Where("id = ? AND state = ?", task.ID, TaskStateQueued).
			Updates(map[string]any{
				"state":         TaskStateRunning,
				"started_at":    now,
				"attempt_count": gorm.Expr("attempt_count + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			task = Task{}
			return nil
		}
		return tx.First(&task, "id = ?", task.ID).Error
	})
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}
	if task.ID == "" {
		return nil, nil
	}
	return &task, nil
}

// Complete marks a task as succeeded.
func (s *TaskStore) Complete(ctx context.Context, taskID string, output Payload, durationMs int64) error {
	result := s.db.WithContext(ctx).Model(&Task{}).Where("id = ?", taskID).Updates(map[string]any{
		"state":       TaskStateSucceeded,
		"finished_at": s.now(),
		"output":      output,
		"duration_ms": durationMs,
		"message":     "Completed",
	})
	if result.Error != nil {
		return fmt.Errorf("complete task: %w", result.Error)
	}
	return nil
}

// Fail records a failed attempt. The task is re-queued while its attempt
// count is below maxRetries and marked failed otherwise.
func (s *TaskStore) Fail(ctx context.Context, taskID string, errMsg string, maxRetries int) error {
	db := s.db.WithContext(ctx)
	var task Task
	if err := db.First(&task, "id = ?", taskID).Error; err != nil {
		return fmt.Errorf("load task for fail: %w", err)
	}

	updates := map[string]any{
		"last_error":  errMsg,
		"finished_at": s.now(),
	}
	if task.AttemptCount < maxRetries {
		updates["state"] = TaskStateQueued
		updates["started_at"] = nil
		updates["finished_at"] = nil
	} else {
		updates["state"] = TaskStateFailed
		updates["message"] = "Max retries exceeded: " + errMsg
	}

	if err := db.Model(&Task{}).Where("id = ?", taskID).Updates(updates).Error; err != nil {
		return fmt.Errorf("fail task: %w", err)
	}
	return nil
}

// Cancel marks a queued task as canceled. Running tasks are left to finish.
func (s *TaskStore) Cancel(ctx context.Context, taskID string) error {
	db := s.db.WithContext(ctx)
	result := db.Model(&Task{}).
		Where("id = ? AND state = ?", taskID, TaskStateQueued).
		Updates(map[string]any{
			"state":       TaskStateCanceled,
			"finished_at": s.now(),
			"message":     "Canceled by user",
		})
	if result.Error != nil {
		return fmt.Errorf("cancel task: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	task, err := s.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, taskID)
	}
	return fmt.Errorf("%w: task %s is %s", ErrNotCancelable, taskID, task.State)
}

// Get retrieves a task by ID, or nil if none exists.
func (s *TaskStore) Get(ctx context.Context, taskID string) (*Task, error) {
	var task Task
	if err := s.db.WithContext(ctx).First(&task, "id = ?", taskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return &task, nil
}

// List returns paginated tasks matching the given filter, newest first.
func (s *TaskStore) List(ctx context.Context, filter TaskListFilter, pageSize int, pageToken string) ([]Task, string, int, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	buildQuery := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&Task{})
		if filter.Organization != "" {
			q = q.Where("organization = ?", filter.Organization)
		}
		if filter.Action != "" {
			q = q.Where("action = ?", filter.Action)
		}
		if filter.ResourceType != "" {
			q = q.Where("resource_type = ?", filter.ResourceType)
		}
		if filter.ResourceID != "" {
			q = q.Where("resource_id = ?", filter.ResourceID)
		}
		if filter.State != "" {
			q = q.Where("state = ?", filter.State)
		}
		if filter.RequestedBy != "" {
			q = q.Where("requested_by = ?", filter.RequestedBy)
		}
		return q
	}

	var totalSize int64
	if err := buildQuery().Count(&totalSize).Error; err != nil {
		return nil, "", 0, fmt.Errorf("count tasks: %w", err)
	}

	query := buildQuery().Order("requested_at DESC").Limit(pageSize + 1)
	if pageToken != "" {
		t, err := time.Parse(time.RFC3339Nano, pageToken)
		if err != nil {
			return nil, "", 0, fmt.Errorf("invalid page token: %w", err)
		}
		query = query.Where("requested_at < ?", t)
	}

	var records []Task
	if err := query.Find(&records).Error; err != nil {
		return nil, "", 0, fmt.Errorf("list tasks: %w", err)
	}

	var nextToken string
	if len(records) > pageSize {
		nextToken = records[pageSize-1].RequestedAt.Format(time.RFC3339Nano)
		records = records[:pageSize]
	}
	return records, nextToken, int(totalSize), nil
}

// RecoverStuck transitions running tasks started before claimTimeout ago
// back to queued for retry.
func (s *TaskStore) RecoverStuck(ctx context.Context, claimTimeout time.Duration) (int64, error) {
	cutoff := s.now().Add(-claimTimeout)
	result := s.db.WithContext(ctx).Model(&Task{}).
		Where("state = ? AND started_at < ?", TaskStateRunning, cutoff).
		Updates(map[string]any{
			"state":      TaskStateQueued,
			"started_at": nil,
			"last_error": "Timed out (stuck task recovery)",
		})
	if result.Error != nil {
		return 0, fmt.Errorf("recover stuck tasks: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteOlderThan removes terminal tasks finished before cutoff.
func (s *TaskStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("state IN ? AND finished_at < ?", terminalStates, cutoff).
		Delete(&Task{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete old tasks: %w", result.Error)
	}
	return result.RowsAffected, nil
}
