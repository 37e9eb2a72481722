package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/katello/lifecycle/pkg/tenancy"
)

// BindingStore persists content view environment bindings. It is the
// persistence collaborator of the identity resolver: every save runs the
// validators and then the BeforeSave identity derivation.
type BindingStore struct {
	db         *gorm.DB
	resolver   *IdentityResolver
	validators []Validator
}

// BindingStoreOption configures a BindingStore.
type BindingStoreOption func(*BindingStore)

// WithDigester sets the digest used for Candlepin ids.
func WithDigester(d Digester) BindingStoreOption {
	return func(s *BindingStore) { s.resolver = NewIdentityResolver(d) }
}

// WithValidators appends validators to the default set.
func WithValidators(v ...Validator) BindingStoreOption {
	return func(s *BindingStore) { s.validators = append(s.validators, v...) }
}

// NewBindingStore creates a new BindingStore.
func NewBindingStore(db *gorm.DB, opts ...BindingStoreOption) *BindingStore {
	s := &BindingStore{
		db:         db,
		resolver:   NewIdentityResolver(nil),
		validators: DefaultValidators(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AutoMigrate creates or updates all lifecycle tables.
func (s *BindingStore) AutoMigrate() error {
	if err := s.db.AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("auto-migrate lifecycle tables: %w", err)
	}
	return nil
}

// Resolver returns the identity resolver used on save.
func (s *BindingStore) Resolver() *IdentityResolver { return s.resolver }

// Validate runs the validators against c without saving it. The returned
// error is a *ValidationError when c is invalid.
func (s *BindingStore) Validate(ctx context.Context, c *ContentViewEnvironment) error {
	return s.validate(ctx, s.db.WithContext(ctx), c)
}

func (s *BindingStore) validate(ctx context.Context, tx *gorm.DB, c *ContentViewEnvironment) error {
	if err := loadBindingAssociations(tx, c); err != nil {
		return err
	}
	verrs := &ValidationError{}
	for _, v := range s.validators {
		if err := v.Validate(ctx, tx, c, verrs); err != nil {
			return err
		}
	}
	if !verrs.Empty() {
		return verrs
	}
	return nil
}

// Create validates and inserts a new binding. Name, Label and CPID are
// derived before the insert when they are empty.
func (s *BindingStore) Create(ctx context.Context, c *ContentViewEnvironment) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.createIn(ctx, tx, c)
	})
}

func (s *BindingStore) createIn(ctx context.Context, tx *gorm.DB, c *ContentViewEnvironment) error {
	if err := s.validate(ctx, tx, c); err != nil {
		return err
	}
	err := tx.WithContext(ContextWithResolver(ctx, s.resolver)).Omit(clause.Associations).Create(c).Error
	if err != nil {
		if isUniqueViolation(err) {
			verrs := &ValidationError{}
			verrs.Add("environment_id", "has already been taken")
			return verrs
		}
		return fmt.Errorf("create binding: %w", err)
	}
	return nil
}

// Save validates and updates an existing binding. Derived fields that are
// already set are kept.
func (s *BindingStore) Save(ctx context.Context, c *ContentViewEnvironment) error {
	if c.ID == 0 {
		return s.Create(ctx, c)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.validate(ctx, tx, c); err != nil {
			return err
		}
		if err := tx.WithContext(ContextWithResolver(ctx, s.resolver)).Omit(clause.Associations).Save(c).Error; err != nil {
			if isUniqueViolation(err) {
				verrs := &ValidationError{}
				verrs.Add("environment_id", "has already been taken")
				return verrs
			}
			return fmt.Errorf("save binding: %w", err)
		}
		return nil
	})
}

// preloaded returns a query loading the associations every binding needs to
// derive its identity.
func (s *BindingStore) preloaded(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Preload("ContentView.Organization").
		Preload("Environment.Organization").
		Preload("ContentViewVersion")
}

// joined returns a preloaded query joined with environments and content views.
func (s *BindingStore) joined(ctx context.Context) *gorm.DB {
	return s.preloaded(ctx).
		Select("content_view_environments.*").
		Joins("JOIN lifecycle_environments ON lifecycle_environments.id = content_view_environments.environment_id").
		Joins("JOIN content_views ON content_views.id = content_view_environments.content_view_id")
}

func firstOrNil(db *gorm.DB, what string) (*ContentViewEnvironment, error) {
	var c ContentViewEnvironment
	if err := db.First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	return &c, nil
}

// Get retrieves a binding by id.
// Returns nil, nil if no binding exists.
func (s *BindingStore) Get(ctx context.Context, id uint) (*ContentViewEnvironment, error) {
	return firstOrNil(s.preloaded(ctx).Where("content_view_environments.id = ?", id), "get binding")
}

// Find retrieves the binding of a content view in an environment.
// Returns nil, nil if no binding exists.
func (s *BindingStore) Find(ctx context.Context, contentViewID, environmentID uint) (*ContentViewEnvironment, error) {
	return firstOrNil(s.preloaded(ctx).Where(
		"content_view_id = ? AND environment_id = ?", contentViewID, environmentID,
	), "find binding")
}

// ListOptions filters List.
type ListOptions struct {
	OrganizationID uint
	ContentViewID  uint
	EnvironmentID  uint
	// Default selects default bindings when true, non-default when false.
	Default *bool
	Search  *SearchQuery
}

// List returns bindings matching opts ordered by id.
func (s *BindingStore) List(ctx context.Context, opts ListOptions) ([]ContentViewEnvironment, error) {
	query := s.joined(ctx)
	if opts.OrganizationID != 0 {
		query = query.Where("lifecycle_environments.organization_id = ?", opts.OrganizationID)
	}
	if opts.ContentViewID != 0 {
		query = query.Where("content_view_environments.content_view_id = ?", opts.ContentViewID)
	}
	if opts.EnvironmentID != 0 {
		query = query.Where("content_view_environments.environment_id = ?", opts.EnvironmentID)
	}
	if opts.Default != nil {
		query = query.Where("content_views.default_view = ?", *opts.Default)
	}
	query = opts.Search.apply(query)

	var records []ContentViewEnvironment
	if err := query.Order("content_view_environments.id ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list bindings: %w", err)
	}
	return records, nil
}

// Default lists the bindings of default content views.
func (s *BindingStore) Default(ctx context.Context, organizationID uint) ([]ContentViewEnvironment, error) {
	def := true
	return s.List(ctx, ListOptions{OrganizationID: organizationID, Default: &def})
}

// NonDefault lists the bindings of non-default content views.
func (s *BindingStore) NonDefault(ctx context.Context, organizationID uint) ([]ContentViewEnvironment, error) {
	def := false
	return s.List(ctx, ListOptions{OrganizationID: organizationID, Default: &def})
}

// DefaultForOrganization returns the default binding in the organization's
// library environment.
// Returns nil, nil if the organization has no library environment or no
// default binding.
func (s *BindingStore) DefaultForOrganization(ctx context.Context, organizationID uint) (*ContentViewEnvironment, error) {
	return firstOrNil(s.joined(ctx).Where(
		"lifecycle_environments.organization_id = ? AND lifecycle_environments.library = ? AND content_views.default_view = ?",
		organizationID, true, true,
	).Order("content_view_environments.id ASC"), "find default binding")
}

// WithCandlepinName resolves a Candlepin environment name ("<lce>" or
// "<lce>/<cv>") to a binding within org. A nil org selects the organization
// of the request context. "Library" alone resolves to the organization's
// default binding. Malformed names and unknown labels resolve to nil, nil.
func (s *BindingStore) WithCandlepinName(ctx context.Context, name string, org *Organization) (*ContentViewEnvironment, error) {
	if org == nil {
		current, err := s.currentOrganization(ctx)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, nil
		}
		org = current
	}

	// Segments past the content view label are ignored.
	parts := strings.Split(name, "/")
	lceLabel, cvLabel := parts[0], ""
	if len(parts) > 1 {
		cvLabel = parts[1]
	}

	if strings.TrimSpace(cvLabel) == "" {
		if lceLabel == LibraryLabel {
			return s.DefaultForOrganization(ctx, org.ID)
		}
		return nil, nil
	}
	if lceLabel == "" {
		return nil, nil
	}

	return firstOrNil(s.joined(ctx).Where(
		"lifecycle_environments.label = ? AND content_views.label = ? AND lifecycle_environments.organization_id = ?",
		lceLabel, cvLabel, org.ID,
	).Order("content_view_environments.id ASC"), "find binding by candlepin name")
}

// currentOrganization loads the organization named by the tenancy context.
func (s *BindingStore) currentOrganization(ctx context.Context) (*Organization, error) {
	label := tenancy.OrganizationFromContext(ctx)
	if label == "" {
		return nil, nil
	}
	var org Organization
	if err := s.db.WithContext(ctx).Where("label = ?", label).First(&org).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load current organization: %w", err)
	}
	return &org, nil
}

// Priority returns the priority the content facet assigns to the binding.
// Returns nil, nil if the facet is not linked to the binding.
func (s *BindingStore) Priority(ctx context.Context, c *ContentViewEnvironment, contentFacetID uint) (*int, error) {
	var link ContentViewEnvironmentContentFacet
	err := s.db.WithContext(ctx).Where(
		"content_view_environment_id = ? AND content_facet_id = ?", c.ID, contentFacetID,
	).First(&link).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get priority: %w", err)
	}
	priority := link.Priority
	return &priority, nil
}

// SetPriority links the content facet to the binding with priority, or
// updates the priority of an existing link. The facet must exist and belong
// to a host of the binding's organization.
func (s *BindingStore) SetPriority(ctx context.Context, c *ContentViewEnvironment, contentFacetID uint, priority int) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var facet ContentFacet
		if err := tx.Preload("Host").First(&facet, contentFacetID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("content facet %d: %w", contentFacetID, ErrNotFound)
			}
			return fmt.Errorf("get content facet: %w", err)
		}
		var env Environment
		if err := tx.Select("organization_id").First(&env, c.EnvironmentID).Error; err != nil {
			return fmt.Errorf("get binding environment: %w", err)
		}
		if facet.Host == nil || facet.Host.OrganizationID != env.OrganizationID {
			verrs := &ValidationError{}
			verrs.Add("content_facet_id", "belongs to a host of another organization")
			return verrs
		}

		link := &ContentViewEnvironmentContentFacet{
			ContentViewEnvironmentID: c.ID,
			ContentFacetID:           contentFacetID,
			Priority:                 priority,
		}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "content_view_environment_id"},
				{Name: "content_facet_id"},
			},
			DoUpdates: clause.AssignmentColumns([]string{"priority"}),
		}).Create(link).Error
		if err != nil {
			return fmt.Errorf("set priority: %w", err)
		}
		return nil
	})
}

// ForContentFacets returns the distinct bindings linked to any of the given
// content facets.
func (s *BindingStore) ForContentFacets(ctx context.Context, contentFacetIDs []uint) ([]ContentViewEnvironment, error) {
	ids := mapset.NewThreadUnsafeSet(contentFacetIDs...)
	if ids.Cardinality() == 0 {
		return nil, nil
	}
	linked := s.db.Model(&ContentViewEnvironmentContentFacet{}).
		Select("content_view_environment_id").
		Where("content_facet_id IN ?", ids.ToSlice())

	var records []ContentViewEnvironment
	err := s.preloaded(ctx).
		Where("content_view_environments.id IN (?)", linked).
		Order("content_view_environments.id ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list bindings for content facets: %w", err)
	}
	return records, nil
}

// Hosts returns the hosts whose content facet is linked to the binding.
func (s *BindingStore) Hosts(ctx context.Context, c *ContentViewEnvironment) ([]Host, error) {
	facets := s.db.Model(&ContentViewEnvironmentContentFacet{}).
		Select("content_facet_id").
		Where("content_view_environment_id = ?", c.ID)
	hostIDs := s.db.Model(&ContentFacet{}).
		Select("host_id").
		Where("id IN (?)", facets)

	var hosts []Host
	if err := s.db.WithContext(ctx).Where("id IN (?)", hostIDs).Order("name ASC").Find(&hosts).Error; err != nil {
		return nil, fmt.Errorf("list binding hosts: %w", err)
	}
	return hosts, nil
}

// ActivationKeys returns the content view's activation keys in the binding's
// environment.
func (s *BindingStore) ActivationKeys(ctx context.Context, c *ContentViewEnvironment) ([]ActivationKey, error) {
	var keys []ActivationKey
	err := s.db.WithContext(ctx).Where(
		"content_view_id = ? AND environment_id = ?", c.ContentViewID, c.EnvironmentID,
	).Order("name ASC").Find(&keys).Error
	if err != nil {
		return nil, fmt.Errorf("list binding activation keys: %w", err)
	}
	return keys, nil
}

// Delete removes the binding and its content facet links.
func (s *BindingStore) Delete(ctx context.Context, c *ContentViewEnvironment) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteBindingsIn(tx, []uint{c.ID})
	})
}

// deleteBindingsIn removes bindings and their content facet links inside tx.
func deleteBindingsIn(tx *gorm.DB, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	if err := tx.Where("content_view_environment_id IN ?", ids).
		Delete(&ContentViewEnvironmentContentFacet{}).Error; err != nil {
		return fmt.Errorf("delete binding content facets: %w", err)
	}
	if err := tx.Where("id IN ?", ids).Delete(&ContentViewEnvironment{}).Error; err != nil {
		return fmt.Errorf("delete bindings: %w", err)
	}
	return nil
}
