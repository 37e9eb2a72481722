package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Filter narrows List results. Empty fields match everything.
type Filter struct {
	Organization   string
	Actor          string
	EventType      string
	Action         string
	AuditableType  string
	AuditableID    string
	AssociatedType string
	AssociatedID   string
}

// Store provides append-only operations for audit events.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the audit table.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&Event{}); err != nil {
		return fmt.Errorf("auto-migrate audit events: %w", err)
	}
	return nil
}

// Append creates a new immutable audit event.
func (s *Store) Append(ctx context.Context, event *Event) error {
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// Get returns the event with the given id, or nil if none exists.
func (s *Store) Get(ctx context.Context, id string) (*Event, error) {
	var event Event
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get audit event: %w", err)
	}
	return &event, nil
}

// List returns a page of events matching filter, newest first.
// pageToken is an RFC3339 timestamp; events created before it are returned.
func (s *Store) List(ctx context.Context, filter Filter, pageSize int, pageToken string) ([]Event, string, int, error) {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	base := s.filtered(ctx, filter)
	var totalSize int64
	if err := base.Session(&gorm.Session{}).Model(&Event{}).Count(&totalSize).Error; err != nil {
		return nil, "", 0, fmt.Errorf("count audit events: %w", err)
	}

	query := base.Order("created_at DESC").Order("id DESC").Limit(pageSize + 1)
	if pageToken != "" {
		t, err := time.Parse(time.RFC3339Nano, pageToken)
		if err != nil {
			return nil, "", 0, fmt.Errorf("invalid page token: %w", err)
		}
		query = query.Where("created_at < ?", t)
	}

	var events []Event
	if err := query.Find(&events).Error; err != nil {
		return nil, "", 0, fmt.Errorf("list audit events: %w", err)
	}

	var nextToken string
	if len(events) > pageSize {
		nextToken = events[pageSize-1].CreatedAt.Format(time.RFC3339Nano)
		events = events[:pageSize]
	}
	return events, nextToken, int(totalSize), nil
}

// ListByAssociation returns the trail associated with one record, such as
// every binding change of a content view.
func (s *Store) ListByAssociation(ctx context.Context, associatedType, associatedID string, pageSize int, pageToken string) ([]Event, string, int, error) {
	return s.List(ctx, Filter{AssociatedType: associatedType, AssociatedID: associatedID}, pageSize, pageToken)
}

// DeleteOlderThan deletes events created before cutoff and returns how many
// were removed.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&Event{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete old audit events: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *Store) filtered(ctx context.Context, f Filter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&Event{})
	for column, value := range map[string]string{
		"organization":    f.Organization,
		"actor":           f.Actor,
		"event_type":      f.EventType,
		"action":          f.Action,
		"auditable_type":  f.AuditableType,
		"auditable_id":    f.AuditableID,
		"associated_type": f.AssociatedType,
		"associated_id":   f.AssociatedID,
	} {
		if value != "" {
			q = q.Where(column+" = ?", value)
		}
	}
	return q
}
