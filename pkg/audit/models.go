package audit

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Event types.
const (
	// EventTypeRecord is a change to an audited record.
	EventTypeRecord = "record"
	// EventTypeRequest is a mutating API request.
	EventTypeRequest = "request"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeDenied  = "denied"
)

// JSONMap is a map stored as a JSON text column.
type JSONMap map[string]any

// Scan implements the sql.Scanner interface for JSONMap.
func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case string:
		bytes = []byte(v)
	case []byte:
		bytes = v
	default:
		return fmt.Errorf("unsupported type for JSONMap: %T", value)
	}
	return json.Unmarshal(bytes, m)
}

// Value implements the driver.Valuer interface for JSONMap.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Event is an immutable audit trail entry. Record events name the audited
// record and the record its trail is associated with.
type Event struct {
	ID             string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	Organization   string    `gorm:"column:organization;index:idx_audit_org_time,priority:1"`
	EventType      string    `gorm:"column:event_type;index:idx_audit_type_time,priority:1;not null"`
	Actor          string    `gorm:"column:actor;index:idx_audit_actor_time,priority:1;not null"`
	Action         string    `gorm:"column:action;not null"`
	Outcome        string    `gorm:"column:outcome;not null"`
	AuditableType  string    `gorm:"column:auditable_type;index:idx_audit_auditable,priority:1"`
	AuditableID    string    `gorm:"column:auditable_id;index:idx_audit_auditable,priority:2"`
	AuditableName  string    `gorm:"column:auditable_name"`
	AssociatedType string    `gorm:"column:associated_type;index:idx_audit_associated,priority:1"`
	AssociatedID   string    `gorm:"column:associated_id;index:idx_audit_associated,priority:2"`
	Changes        JSONMap   `gorm:"column:changes;type:text"`
	RequestID      string    `gorm:"column:request_id;index"`
	CorrelationID  string    `gorm:"column:correlation_id;index"`
	StatusCode     int       `gorm:"column:status_code"`
	Metadata       JSONMap   `gorm:"column:metadata;type:text"`
	CreatedAt      time.Time `gorm:"column:created_at;index:idx_audit_org_time,priority:2;index:idx_audit_type_time,priority:2;index:idx_audit_actor_time,priority:2;autoCreateTime"`
}

// TableName returns the GORM table name.
func (Event) TableName() string { return "audit_events" }
