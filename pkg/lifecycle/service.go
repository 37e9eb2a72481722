package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/katello/lifecycle/pkg/cache"
	"github.com/katello/lifecycle/pkg/tenancy"
)

var (
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the authorizer denies an operation.
	ErrForbidden = errors.New("forbidden")
)

// Service exposes binding operations with auditing, authorization and
// Candlepin mirroring composed in at construction.
type Service struct {
	bindings   *BindingStore
	orgs       *OrganizationStore
	auditor    Auditor
	authorizer Authorizer
	linker     CandlepinLinker
	resolved   *cache.LRUCache[string, uint]
	logger     *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithAuditor sets the auditor. The default discards audit events.
func WithAuditor(a Auditor) ServiceOption {
	return func(s *Service) { s.auditor = a }
}

// WithAuthorizer sets the authorizer. The default allows everything.
func WithAuthorizer(a Authorizer) ServiceOption {
	return func(s *Service) { s.authorizer = a }
}

// WithCandlepinLinker sets the Candlepin linker. The default does nothing.
func WithCandlepinLinker(l CandlepinLinker) ServiceOption {
	return func(s *Service) { s.linker = l }
}

// WithResolutionCache caches Candlepin-name lookups.
func WithResolutionCache(c *cache.LRUCache[string, uint]) ServiceOption {
	return func(s *Service) { s.resolved = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// NewService creates a new Service.
func NewService(bindings *BindingStore, orgs *OrganizationStore, opts ...ServiceOption) *Service {
	s := &Service{
		bindings:   bindings,
		orgs:       orgs,
		auditor:    noopAuditor{},
		authorizer: allowAllAuthorizer{},
		linker:     noopLinker{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Bindings returns the underlying binding store.
func (s *Service) Bindings() *BindingStore { return s.bindings }

// Organizations returns the underlying organization store.
func (s *Service) Organizations() *OrganizationStore { return s.orgs }

func (s *Service) authorize(ctx context.Context, verb Verb, c *ContentViewEnvironment) error {
	allowed, err := s.authorizer.Authorize(ctx, verb, c)
	if err != nil {
		return fmt.Errorf("authorize %s: %w", verb, err)
	}
	if !allowed {
		return fmt.Errorf("%s %s: %w", verb, c.CandlepinName(), ErrForbidden)
	}
	return nil
}

// audit records an event, logging rather than failing on errors.
func (s *Service) audit(ctx context.Context, action AuditAction, c *ContentViewEnvironment) {
	if err := s.auditor.Audit(ctx, action, c); err != nil {
		s.logger.Error("failed to audit binding change",
			"action", action, "binding", c.ID, "label", c.Label, "error", err)
	}
}

// CreateBindingInput describes a new binding.
type CreateBindingInput struct {
	ContentViewID        uint
	EnvironmentID        uint
	ContentViewVersionID *uint
	Name                 string
}

// CreateBinding validates, authorizes, persists and links a new binding.
// Validation failures are returned as *ValidationError.
func (s *Service) CreateBinding(ctx context.Context, in CreateBindingInput) (*ContentViewEnvironment, error) {
	c := &ContentViewEnvironment{
		Name:                 in.Name,
		ContentViewID:        in.ContentViewID,
		EnvironmentID:        in.EnvironmentID,
		ContentViewVersionID: in.ContentViewVersionID,
	}
	if err := s.bindings.Validate(ctx, c); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, VerbCreate, c); err != nil {
		return nil, err
	}
	if err := s.bindings.Create(ctx, c); err != nil {
		return nil, err
	}

	if err := s.linker.LinkEnvironment(ctx, c); err != nil {
		// Roll back so a binding never exists without its Candlepin environment.
		if delErr := s.bindings.Delete(ctx, c); delErr != nil {
			s.logger.Error("failed to roll back binding", "binding", c.ID, "error", delErr)
		}
		return nil, fmt.Errorf("link candlepin environment: %w", err)
	}

	s.audit(ctx, AuditCreate, c)
	s.invalidate(c)
	s.logger.Info("created content view environment",
		"binding", c.ID, "label", c.Label, "cpID", c.CPID)
	return c, nil
}

// GetBinding returns a binding the caller may view.
func (s *Service) GetBinding(ctx context.Context, id uint) (*ContentViewEnvironment, error) {
	c, err := s.bindings.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("content view environment %d: %w", id, ErrNotFound)
	}
	if err := s.authorize(ctx, VerbView, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListBindings returns the bindings of the context organization the caller
// may view.
func (s *Service) ListBindings(ctx context.Context, opts ListOptions) ([]ContentViewEnvironment, error) {
	if opts.OrganizationID == 0 {
		org, err := s.bindings.currentOrganization(ctx)
		if err != nil {
			return nil, err
		}
		if org == nil {
			return nil, nil
		}
		opts.OrganizationID = org.ID
	}
	records, err := s.bindings.List(ctx, opts)
	if err != nil {
		return nil, err
	}

	visible := records[:0]
	for i := range records {
		allowed, err := s.authorizer.Authorize(ctx, VerbView, &records[i])
		if err != nil {
			return nil, fmt.Errorf("authorize view: %w", err)
		}
		if allowed {
			visible = append(visible, records[i])
		}
	}
	return visible, nil
}

// Resolve looks up a binding by Candlepin name in the context organization.
// Returns nil, nil when nothing matches, including for malformed names.
func (s *Service) Resolve(ctx context.Context, name string) (*ContentViewEnvironment, error) {
	key := resolutionKey(tenancy.OrganizationFromContext(ctx), name)
	if s.resolved != nil {
		if id, ok := s.resolved.Get(key); ok {
			c, err := s.bindings.Get(ctx, id)
			if err != nil {
				return nil, err
			}
			if c != nil {
				return s.visible(ctx, c)
			}
			s.resolved.Invalidate(key)
		}
	}

	c, err := s.bindings.WithCandlepinName(ctx, name, nil)
	if err != nil || c == nil {
		return nil, err
	}
	if s.resolved != nil {
		s.resolved.Set(key, c.ID)
	}
	return s.visible(ctx, c)
}

func (s *Service) visible(ctx context.Context, c *ContentViewEnvironment) (*ContentViewEnvironment, error) {
	if err := s.authorize(ctx, VerbView, c); err != nil {
		return nil, err
	}
	return c, nil
}

// DestroyBinding removes a binding, its content facet links and its
// Candlepin environment.
func (s *Service) DestroyBinding(ctx context.Context, id uint) error {
	c, err := s.bindings.Get(ctx, id)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("content view environment %d: %w", id, ErrNotFound)
	}
	if err := s.authorize(ctx, VerbDestroy, c); err != nil {
		return err
	}
	if err := s.bindings.Delete(ctx, c); err != nil {
		return err
	}
	s.invalidate(c)
	s.audit(ctx, AuditDestroy, c)
	if err := s.linker.UnlinkEnvironment(ctx, c); err != nil {
		return fmt.Errorf("unlink candlepin environment: %w", err)
	}
	s.logger.Info("destroyed content view environment", "binding", c.ID, "label", c.Label)
	return nil
}

// Priority returns the priority the content facet assigns to the binding.
// Returns nil, nil when the facet is not linked.
func (s *Service) Priority(ctx context.Context, id, contentFacetID uint) (*int, error) {
	c, err := s.GetBinding(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.bindings.Priority(ctx, c, contentFacetID)
}

// SetPriority links a content facet to the binding with priority.
func (s *Service) SetPriority(ctx context.Context, id, contentFacetID uint, priority int) error {
	c, err := s.GetBinding(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, VerbPromote, c); err != nil {
		return err
	}
	return s.bindings.SetPriority(ctx, c, contentFacetID, priority)
}

// Hosts returns the hosts attached to the binding.
func (s *Service) Hosts(ctx context.Context, id uint) ([]Host, error) {
	c, err := s.GetBinding(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.bindings.Hosts(ctx, c)
}

// ActivationKeys returns the activation keys registering into the binding.
func (s *Service) ActivationKeys(ctx context.Context, id uint) ([]ActivationKey, error) {
	c, err := s.GetBinding(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.bindings.ActivationKeys(ctx, c)
}

// CreateOrganization creates an organization with its library environment,
// default content view and default binding, and links that binding.
func (s *Service) CreateOrganization(ctx context.Context, name, label string) (*Organization, error) {
	if err := tenancy.ValidateLabel(label); err != nil {
		verrs := &ValidationError{}
		verrs.Add("label", err.Error())
		return nil, verrs
	}
	existing, err := s.orgs.GetOrganization(ctx, label)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		verrs := &ValidationError{}
		verrs.Add("label", "has already been taken")
		return nil, verrs
	}

	org, binding, err := s.orgs.CreateOrganization(ctx, name, label)
	if err != nil {
		return nil, err
	}
	if err := s.linker.LinkEnvironment(ctx, binding); err != nil {
		// Roll back so the default binding never exists without its Candlepin environment.
		if delErr := s.orgs.DeleteOrganization(ctx, org.ID); delErr != nil {
			s.logger.Error("failed to roll back organization", "organization", label, "error", delErr)
		}
		return nil, fmt.Errorf("link candlepin environment: %w", err)
	}
	s.audit(ctx, AuditCreate, binding)
	return org, nil
}

// GetOrganization returns the organization with label.
func (s *Service) GetOrganization(ctx context.Context, label string) (*Organization, error) {
	org, err := s.orgs.GetOrganization(ctx, label)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, fmt.Errorf("organization %q: %w", label, ErrNotFound)
	}
	return org, nil
}

// CreateEnvironment creates a lifecycle environment in the organization.
func (s *Service) CreateEnvironment(ctx context.Context, orgLabel, name, label string) (*Environment, error) {
	org, err := s.GetOrganization(ctx, orgLabel)
	if err != nil {
		return nil, err
	}
	if err := tenancy.ValidateLabel(label); err != nil {
		verrs := &ValidationError{}
		verrs.Add("label", err.Error())
		return nil, verrs
	}
	if name == "" {
		name = label
	}
	return s.orgs.CreateEnvironment(ctx, org.ID, name, label)
}

// CreateContentView creates a content view in the organization.
func (s *Service) CreateContentView(ctx context.Context, orgLabel, name, label string) (*ContentView, error) {
	org, err := s.GetOrganization(ctx, orgLabel)
	if err != nil {
		return nil, err
	}
	if err := tenancy.ValidateLabel(label); err != nil {
		verrs := &ValidationError{}
		verrs.Add("label", err.Error())
		return nil, verrs
	}
	if name == "" {
		name = label
	}
	return s.orgs.CreateContentView(ctx, org.ID, name, label)
}

// RegisterHost registers a content host in the organization.
func (s *Service) RegisterHost(ctx context.Context, orgLabel, name string) (*Host, *ContentFacet, error) {
	org, err := s.GetOrganization(ctx, orgLabel)
	if err != nil {
		return nil, nil, err
	}
	if name == "" {
		verrs := &ValidationError{}
		verrs.Add("name", "can't be blank")
		return nil, nil, verrs
	}
	return s.orgs.RegisterHost(ctx, org.ID, name)
}

// CreateActivationKey creates an activation key registering into an existing
// binding of the organization.
func (s *Service) CreateActivationKey(ctx context.Context, orgLabel string, key *ActivationKey) error {
	org, err := s.GetOrganization(ctx, orgLabel)
	if err != nil {
		return err
	}
	binding, err := s.bindings.Find(ctx, key.ContentViewID, key.EnvironmentID)
	if err != nil {
		return err
	}
	if binding == nil || binding.organizationLabel() != org.Label {
		verrs := &ValidationError{}
		verrs.Add(baseField, "content view is not available in the lifecycle environment")
		return verrs
	}
	key.OrganizationID = org.ID
	return s.orgs.CreateActivationKey(ctx, key)
}

// DeleteContentView removes a content view of the organization and unlinks
// its bindings. The caller must be allowed to destroy every removed binding.
func (s *Service) DeleteContentView(ctx context.Context, orgLabel string, id uint) error {
	org, err := s.GetOrganization(ctx, orgLabel)
	if err != nil {
		return err
	}
	cv, err := s.orgs.GetContentView(ctx, id)
	if err != nil {
		return err
	}
	if cv == nil || cv.OrganizationID != org.ID {
		return fmt.Errorf("content view %d: %w", id, ErrNotFound)
	}
	if err := s.authorizeCascade(ctx, ListOptions{OrganizationID: org.ID, ContentViewID: id}); err != nil {
		return err
	}
	removed, err := s.orgs.DeleteContentView(ctx, id)
	if err != nil {
		return err
	}
	s.afterCascade(ctx, removed)
	return nil
}

// DeleteEnvironment removes a lifecycle environment of the organization and
// unlinks its bindings. The caller must be allowed to destroy every removed
// binding.
func (s *Service) DeleteEnvironment(ctx context.Context, orgLabel string, id uint) error {
	org, err := s.GetOrganization(ctx, orgLabel)
	if err != nil {
		return err
	}
	env, err := s.orgs.GetEnvironment(ctx, id)
	if err != nil {
		return err
	}
	if env == nil || env.OrganizationID != org.ID {
		return fmt.Errorf("environment %d: %w", id, ErrNotFound)
	}
	if env.Library {
		return ErrLibraryEnvironment
	}
	if err := s.authorizeCascade(ctx, ListOptions{OrganizationID: org.ID, EnvironmentID: id}); err != nil {
		return err
	}
	removed, err := s.orgs.DeleteEnvironment(ctx, id)
	if err != nil {
		return err
	}
	s.afterCascade(ctx, removed)
	return nil
}

func (s *Service) authorizeCascade(ctx context.Context, opts ListOptions) error {
	affected, err := s.bindings.List(ctx, opts)
	if err != nil {
		return err
	}
	for i := range affected {
		if err := s.authorize(ctx, VerbDestroy, &affected[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) afterCascade(ctx context.Context, removed []ContentViewEnvironment) {
	for i := range removed {
		c := &removed[i]
		s.invalidate(c)
		s.audit(ctx, AuditDestroy, c)
		if err := s.linker.UnlinkEnvironment(ctx, c); err != nil {
			s.logger.Error("failed to unlink candlepin environment", "binding", c.ID, "error", err)
		}
	}
}

// invalidate drops cached lookups that could resolve to c.
func (s *Service) invalidate(c *ContentViewEnvironment) {
	if s.resolved == nil {
		return
	}
	prefix := c.organizationLabel() + "|"
	s.resolved.InvalidateFunc(func(key string, id uint) bool {
		return id == c.ID || strings.HasPrefix(key, prefix)
	})
}

func resolutionKey(org, name string) string {
	return org + "|" + name
}
