package tasks

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// TaskState represents the lifecycle state of a task.
type TaskState string

const (
	TaskStateQueued    TaskState = "queued"
	TaskStateRunning   TaskState = "running"
	TaskStateSucceeded TaskState = "succeeded"
	TaskStateFailed    TaskState = "failed"
	TaskStateCanceled  TaskState = "canceled"
)

var (
	activeStates   = []TaskState{TaskStateQueued, TaskStateRunning}
	terminalStates = []TaskState{TaskStateSucceeded, TaskStateFailed, TaskStateCanceled}
)

// Payload is a string map stored as a JSON text column.
type Payload map[string]string

// Scan implements the sql.Scanner interface for Payload.
func (p *Payload) Scan(value any) error {
	if value == nil {
		*p = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case string:
		bytes = []byte(v)
	case []byte:
		bytes = v
	default:
		return fmt.Errorf("unsupported type for Payload: %T", value)
	}
	return json.Unmarshal(bytes, p)
}

// Value implements the driver.Valuer interface for Payload.
func (p Payload) Value() (driver.Value, error) {
	if p == nil {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Task is an asynchronous action against a subject record.
type Task struct {
	ID             string     `gorm:"primaryKey;column:id;type:varchar(36)"`
	Organization   string     `gorm:"column:organization;index:idx_task_org_state,priority:1"`
	Action         string     `gorm:"column:action;index:idx_task_action_state,priority:1;not null"`
	ResourceType   string     `gorm:"column:resource_type;index:idx_task_resource,priority:1"`
	ResourceID     string     `gorm:"column:resource_id;index:idx_task_resource,priority:2"`
	ResourceLabel  string     `gorm:"column:resource_label"`
	Input          Payload    `gorm:"column:input;type:text"`
	Output         Payload    `gorm:"column:output;type:text"`
	RequestedBy    string     `gorm:"column:requested_by;not null"`
	RequestedAt    time.Time  `gorm:"column:requested_at;not null"`
	State          TaskState  `gorm:"column:state;index:idx_task_org_state,priority:2;index:idx_task_action_state,priority:2;index:idx_task_state;not null;default:queued"`
	Message        string     `gorm:"column:message"`
	StartedAt      *time.Time `gorm:"column:started_at"`
	FinishedAt     *time.Time `gorm:"column:finished_at"`
	AttemptCount   int        `gorm:"column:attempt_count;default:0"`
	LastError      string     `gorm:"column:last_error"`
	IdempotencyKey *string    `gorm:"column:idempotency_key;uniqueIndex:idx_task_idemp_key"`
	// SerialKey orders tasks sharing it: at most one runs at a time, oldest first.
	SerialKey      string     `gorm:"column:serial_key;index:idx_task_serial_key;not null;default:''"`
	DurationMs     int64      `gorm:"column:duration_ms"`
}

// TableName returns the GORM table name.
func (Task) TableName() string { return "foreman_tasks" }

// IsTerminal returns true if the task is in a terminal state.
func (t *Task) IsTerminal() bool {
	switch t.State {
	case TaskStateSucceeded, TaskStateFailed, TaskStateCanceled:
		return true
	}
	return false
}
