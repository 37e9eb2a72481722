package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrLibraryEnvironment is returned when deleting a library environment.
var ErrLibraryEnvironment = errors.New("the library environment cannot be deleted")

// OrganizationStore manages the records bindings are built from:
// organizations, lifecycle environments, content views and their versions,
// hosts and activation keys.
type OrganizationStore struct {
	db       *gorm.DB
	bindings *BindingStore
}

// NewOrganizationStore creates a new OrganizationStore. Organization
// bootstrap creates the default binding through bindings.
func NewOrganizationStore(db *gorm.DB, bindings *BindingStore) *OrganizationStore {
	return &OrganizationStore{db: db, bindings: bindings}
}

// CreateOrganization creates an organization together with its Library
// environment, its default content view and the default binding between them.
func (s *OrganizationStore) CreateOrganization(ctx context.Context, name, label string) (*Organization, *ContentViewEnvironment, error) {
	org := &Organization{Name: name, Label: label}
	var binding *ContentViewEnvironment

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(org).Error; err != nil {
			return fmt.Errorf("create organization: %w", err)
		}
		library := &Environment{
			OrganizationID: org.ID,
			Name:           LibraryLabel,
			Label:          LibraryLabel,
			Library:        true,
		}
		if err := tx.Omit(clause.Associations).Create(library).Error; err != nil {
			return fmt.Errorf("create library environment: %w", err)
		}
		view := &ContentView{
			OrganizationID: org.ID,
			Name:           DefaultContentViewName,
			Label:          DefaultContentViewLabel,
			Default:        true,
		}
		if err := tx.Omit(clause.Associations).Create(view).Error; err != nil {
			return fmt.Errorf("create default content view: %w", err)
		}

		library.Organization = org
		view.Organization = org
		binding = &ContentViewEnvironment{
			ContentViewID: view.ID,
			ContentView:   view,
			EnvironmentID: library.ID,
			Environment:   library,
		}
		return s.bindings.createIn(ctx, tx, binding)
	})
	if err != nil {
		return nil, nil, err
	}
	return org, binding, nil
}

// DeleteOrganization removes an organization together with its environments,
// content views, bindings, hosts and activation keys.
func (s *OrganizationStore) DeleteOrganization(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		envs := tx.Model(&Environment{}).Select("id").Where("organization_id = ?", id)
		var ids []uint
		if err := tx.Model(&ContentViewEnvironment{}).
			Where("environment_id IN (?)", envs).
			Pluck("id", &ids).Error; err != nil {
			return fmt.Errorf("list organization bindings: %w", err)
		}
		if err := deleteBindingsIn(tx, ids); err != nil {
			return err
		}
		hosts := tx.Model(&Host{}).Select("id").Where("organization_id = ?", id)
		views := tx.Model(&ContentView{}).Select("id").Where("organization_id = ?", id)
		steps := []struct {
			what  string
			query *gorm.DB
			model any
		}{
			{"activation keys", tx.Where("organization_id = ?", id), &ActivationKey{}},
			{"content facets", tx.Where("host_id IN (?)", hosts), &ContentFacet{}},
			{"hosts", tx.Where("organization_id = ?", id), &Host{}},
			{"content view versions", tx.Where("content_view_id IN (?)", views), &ContentViewVersion{}},
			{"content views", tx.Where("organization_id = ?", id), &ContentView{}},
			{"environments", tx.Where("organization_id = ?", id), &Environment{}},
		}
		for _, step := range steps {
			if err := step.query.Delete(step.model).Error; err != nil {
				return fmt.Errorf("delete %s: %w", step.what, err)
			}
		}
		if err := tx.Delete(&Organization{}, id).Error; err != nil {
			return fmt.Errorf("delete organization: %w", err)
		}
		return nil
	})
}

// GetOrganization retrieves an organization by label.
// Returns nil, nil if no organization exists.
func (s *OrganizationStore) GetOrganization(ctx context.Context, label string) (*Organization, error) {
	var org Organization
	if err := s.db.WithContext(ctx).Where("label = ?", label).First(&org).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get organization: %w", err)
	}
	return &org, nil
}

// Library returns the library environment of an organization.
// Returns nil, nil if the organization has none.
func (s *OrganizationStore) Library(ctx context.Context, organizationID uint) (*Environment, error) {
	var env Environment
	err := s.db.WithContext(ctx).Preload("Organization").
		Where("organization_id = ? AND library = ?", organizationID, true).
		First(&env).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get library environment: %w", err)
	}
	return &env, nil
}

// CreateEnvironment creates a non-library lifecycle environment.
func (s *OrganizationStore) CreateEnvironment(ctx context.Context, organizationID uint, name, label string) (*Environment, error) {
	if label == LibraryLabel {
		verrs := &ValidationError{}
		verrs.Add("label", "is reserved for the library environment")
		return nil, verrs
	}
	env := &Environment{OrganizationID: organizationID, Name: name, Label: label}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(env).Error; err != nil {
		if isUniqueViolation(err) {
			verrs := &ValidationError{}
			verrs.Add("label", "has already been taken")
			return nil, verrs
		}
		return nil, fmt.Errorf("create environment: %w", err)
	}
	return env, nil
}

// GetEnvironment retrieves a lifecycle environment by id.
// Returns nil, nil if no environment exists.
func (s *OrganizationStore) GetEnvironment(ctx context.Context, id uint) (*Environment, error) {
	var env Environment
	if err := s.db.WithContext(ctx).Preload("Organization").First(&env, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get environment: %w", err)
	}
	return &env, nil
}

// DeleteEnvironment removes a lifecycle environment with its bindings and
// returns the removed bindings.
func (s *OrganizationStore) DeleteEnvironment(ctx context.Context, id uint) ([]ContentViewEnvironment, error) {
	env, err := s.GetEnvironment(ctx, id)
	if err != nil || env == nil {
		return nil, err
	}
	if env.Library {
		return nil, ErrLibraryEnvironment
	}
	removed, err := s.bindings.List(ctx, ListOptions{EnvironmentID: id})
	if err != nil {
		return nil, err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deleteBindingsIn(tx, bindingIDs(removed)); err != nil {
			return err
		}
		if err := tx.Delete(&Environment{}, id).Error; err != nil {
			return fmt.Errorf("delete environment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// CreateContentView creates a non-default content view.
func (s *OrganizationStore) CreateContentView(ctx context.Context, organizationID uint, name, label string) (*ContentView, error) {
	cv := &ContentView{OrganizationID: organizationID, Name: name, Label: label}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(cv).Error; err != nil {
		if isUniqueViolation(err) {
			verrs := &ValidationError{}
			verrs.Add("label", "has already been taken")
			return nil, verrs
		}
		return nil, fmt.Errorf("create content view: %w", err)
	}
	return cv, nil
}

// GetContentView retrieves a content view by id.
// Returns nil, nil if no content view exists.
func (s *OrganizationStore) GetContentView(ctx context.Context, id uint) (*ContentView, error) {
	var cv ContentView
	if err := s.db.WithContext(ctx).Preload("Organization").First(&cv, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get content view: %w", err)
	}
	return &cv, nil
}

// DeleteContentView removes a content view with its versions and bindings and
// returns the removed bindings.
func (s *OrganizationStore) DeleteContentView(ctx context.Context, id uint) ([]ContentViewEnvironment, error) {
	removed, err := s.bindings.List(ctx, ListOptions{ContentViewID: id})
	if err != nil {
		return nil, err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deleteBindingsIn(tx, bindingIDs(removed)); err != nil {
			return err
		}
		if err := tx.Where("content_view_id = ?", id).Delete(&ContentViewVersion{}).Error; err != nil {
			return fmt.Errorf("delete content view versions: %w", err)
		}
		if err := tx.Delete(&ContentView{}, id).Error; err != nil {
			return fmt.Errorf("delete content view: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// CreateContentViewVersion publishes a version of a content view.
func (s *OrganizationStore) CreateContentViewVersion(ctx context.Context, contentViewID uint, major, minor int) (*ContentViewVersion, error) {
	v := &ContentViewVersion{ContentViewID: contentViewID, Major: major, Minor: minor}
	if err := s.db.WithContext(ctx).Create(v).Error; err != nil {
		return nil, fmt.Errorf("create content view version: %w", err)
	}
	return v, nil
}

// RegisterHost creates a host and its content facet.
func (s *OrganizationStore) RegisterHost(ctx context.Context, organizationID uint, name string) (*Host, *ContentFacet, error) {
	host := &Host{Name: name, OrganizationID: organizationID}
	facet := &ContentFacet{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(host).Error; err != nil {
			return fmt.Errorf("create host: %w", err)
		}
		facet.HostID = host.ID
		if err := tx.Omit(clause.Associations).Create(facet).Error; err != nil {
			return fmt.Errorf("create content facet: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return host, facet, nil
}

// CreateActivationKey creates an activation key.
func (s *OrganizationStore) CreateActivationKey(ctx context.Context, key *ActivationKey) error {
	if err := s.db.WithContext(ctx).Create(key).Error; err != nil {
		return fmt.Errorf("create activation key: %w", err)
	}
	return nil
}

func bindingIDs(records []ContentViewEnvironment) []uint {
	ids := make([]uint, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids
}
