package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"
)

// baseField collects errors that are not tied to a single attribute.
const baseField = "base"

// ValidationError reports constraint violations on a record. It is returned
// instead of persisting the record; nothing is written when it occurs.
type ValidationError struct {
	Fields map[string][]string
}

// Add records a message against field.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

// Empty reports whether no violation was recorded.
func (e *ValidationError) Empty() bool { return len(e.Fields) == 0 }

// On returns the messages recorded for field.
func (e *ValidationError) On(field string) []string { return e.Fields[field] }

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		for _, msg := range e.Fields[f] {
			if f == baseField {
				parts = append(parts, msg)
			} else {
				parts = append(parts, f+" "+msg)
			}
		}
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// IsValidationError reports whether err carries a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validator checks a binding before it is saved. Violations are added to
// verrs; the returned error is reserved for failures of the check itself.
type Validator interface {
	Validate(ctx context.Context, db *gorm.DB, c *ContentViewEnvironment, verrs *ValidationError) error
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(ctx context.Context, db *gorm.DB, c *ContentViewEnvironment, verrs *ValidationError) error

// Validate calls f.
func (f ValidatorFunc) Validate(ctx context.Context, db *gorm.DB, c *ContentViewEnvironment, verrs *ValidationError) error {
	return f(ctx, db, c, verrs)
}

// DefaultValidators returns the validators applied to every binding save.
func DefaultValidators() []Validator {
	return []Validator{
		ValidatorFunc(validateLengths),
		ValidatorFunc(validatePresence),
		ValidatorFunc(validateUniqueness),
		ValidatorFunc(validateOrganization),
		ValidatorFunc(validateCoherentDefault),
	}
}

func validateLengths(_ context.Context, _ *gorm.DB, c *ContentViewEnvironment, verrs *ValidationError) error {
	for field, value := range map[string]string{"name": c.Name, "label": c.Label, "cp_id": c.CPID} {
		if len(value) > maxFieldLen {
			verrs.Add(field, fmt.Sprintf("is too long (maximum is %d characters)", maxFieldLen))
		}
	}
	return nil
}

func validatePresence(_ context.Context, _ *gorm.DB, c *ContentViewEnvironment, verrs *ValidationError) error {
	if c.EnvironmentID == 0 || c.Environment == nil {
		verrs.Add("environment_id", "can't be blank")
	}
	if c.ContentViewID == 0 || c.ContentView == nil {
		verrs.Add("content_view_id", "can't be blank")
	}
	return nil
}

func validateUniqueness(ctx context.Context, db *gorm.DB, c *ContentViewEnvironment, verrs *ValidationError) error {
	if c.EnvironmentID == 0 || c.ContentViewID == 0 {
		return nil
	}
	query := db.WithContext(ctx).Model(&ContentViewEnvironment{}).
		Where("content_view_id = ? AND environment_id = ?", c.ContentViewID, c.EnvironmentID)
	if c.ID != 0 {
		query = query.Where("id <> ?", c.ID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return fmt.Errorf("check binding uniqueness: %w", err)
	}
	if count > 0 {
		verrs.Add("environment_id", "has already been taken")
	}
	return nil
}

func validateOrganization(_ context.Context, _ *gorm.DB, c *ContentViewEnvironment, verrs *ValidationError) error {
	if c.ContentView == nil || c.Environment == nil {
		return nil
	}
	if c.ContentView.OrganizationID != c.Environment.OrganizationID {
		verrs.Add(baseField, "content view and lifecycle environment must belong to the same organization")
	}
	return nil
}

func validateCoherentDefault(_ context.Context, _ *gorm.DB, c *ContentViewEnvironment, verrs *ValidationError) error {
	if c.ContentView == nil || c.Environment == nil {
		return nil
	}
	if c.ContentView.Default && !c.Environment.Library {
		verrs.Add(baseField, "the default content view can only be associated with the library environment")
	}
	return nil
}

// isUniqueViolation recognises duplicate-key errors across the supported
// dialects, with or without GORM error translation enabled.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "duplicate entry")
}
