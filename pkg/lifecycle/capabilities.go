package lifecycle

import (
	"context"
	"fmt"
	"strconv"
)

// ResourceContentViewEnvironments is the authorization and audit resource
// name of bindings.
const ResourceContentViewEnvironments = "content_view_environments"

// Verb is an action a caller may be authorized to perform on a binding.
type Verb string

const (
	VerbView    Verb = "view"
	VerbCreate  Verb = "create"
	VerbDestroy Verb = "destroy"
	VerbPromote Verb = "promote"
)

// AuditAction names an audited change.
type AuditAction string

const (
	AuditCreate  AuditAction = "create"
	AuditUpdate  AuditAction = "update"
	AuditDestroy AuditAction = "destroy"
)

// Auditable describes a record whose changes are audited against an owning
// record.
type Auditable interface {
	AuditResourceType() string
	AuditResourceID() string
	AuditResourceName() string
	// AuditAssociation returns the type and id of the record the audit trail
	// is associated with.
	AuditAssociation() (string, string)
	AuditOrganization() string
	AuditedChanges() map[string]any
}

// Authorizable describes a record for permission checks.
type Authorizable interface {
	AuthzResource() string
	AuthzOrganization() string
	AuthzName() string
}

// CandlepinLinked describes a record mirrored as a Candlepin environment.
type CandlepinLinked interface {
	CandlepinID() string
	CandlepinName() string
	CandlepinOwner() string
	CandlepinDescription() string
}

// Auditor records audit events.
type Auditor interface {
	Audit(ctx context.Context, action AuditAction, subject Auditable) error
}

// Authorizer decides whether the caller in ctx may perform verb on subject.
type Authorizer interface {
	Authorize(ctx context.Context, verb Verb, subject Authorizable) (bool, error)
}

// CandlepinLinker keeps Candlepin environments in step with bindings.
type CandlepinLinker interface {
	LinkEnvironment(ctx context.Context, subject CandlepinLinked) error
	UnlinkEnvironment(ctx context.Context, subject CandlepinLinked) error
}

var (
	_ Auditable       = (*ContentViewEnvironment)(nil)
	_ Authorizable    = (*ContentViewEnvironment)(nil)
	_ CandlepinLinked = (*ContentViewEnvironment)(nil)
)

// AuditResourceType implements Auditable.
func (c *ContentViewEnvironment) AuditResourceType() string { return "Katello::ContentViewEnvironment" }

// AuditResourceID implements Auditable.
func (c *ContentViewEnvironment) AuditResourceID() string { return strconv.FormatUint(uint64(c.ID), 10) }

// AuditResourceName implements Auditable.
func (c *ContentViewEnvironment) AuditResourceName() string { return c.Label }

// AuditAssociation implements Auditable. Binding audits hang off the content view.
func (c *ContentViewEnvironment) AuditAssociation() (string, string) {
	return "Katello::ContentView", strconv.FormatUint(uint64(c.ContentViewID), 10)
}

// AuditOrganization implements Auditable.
func (c *ContentViewEnvironment) AuditOrganization() string { return c.organizationLabel() }

// AuditedChanges implements Auditable.
func (c *ContentViewEnvironment) AuditedChanges() map[string]any {
	changes := map[string]any{
		"name":            c.Name,
		"label":           c.Label,
		"cp_id":           c.CPID,
		"content_view_id": c.ContentViewID,
		"environment_id":  c.EnvironmentID,
	}
	if c.ContentViewVersionID != nil {
		changes["content_view_version_id"] = *c.ContentViewVersionID
	}
	return changes
}

// AuthzResource implements Authorizable.
func (c *ContentViewEnvironment) AuthzResource() string { return ResourceContentViewEnvironments }

// AuthzOrganization implements Authorizable.
func (c *ContentViewEnvironment) AuthzOrganization() string { return c.organizationLabel() }

// AuthzName implements Authorizable.
func (c *ContentViewEnvironment) AuthzName() string { return c.CandlepinName() }

// CandlepinID implements CandlepinLinked.
func (c *ContentViewEnvironment) CandlepinID() string { return c.CPID }

// CandlepinOwner implements CandlepinLinked.
func (c *ContentViewEnvironment) CandlepinOwner() string { return c.organizationLabel() }

// CandlepinDescription implements CandlepinLinked.
func (c *ContentViewEnvironment) CandlepinDescription() string {
	if c.ContentView == nil {
		return c.Name
	}
	return fmt.Sprintf("%s (%s)", c.Name, c.ContentView.Name)
}

func (c *ContentViewEnvironment) organizationLabel() string {
	if c.Environment != nil && c.Environment.Organization != nil {
		return c.Environment.Organization.Label
	}
	if c.ContentView != nil && c.ContentView.Organization != nil {
		return c.ContentView.Organization.Label
	}
	return ""
}

// noopAuditor discards audit events.
type noopAuditor struct{}

func (noopAuditor) Audit(context.Context, AuditAction, Auditable) error { return nil }

// allowAllAuthorizer permits every action.
type allowAllAuthorizer struct{}

func (allowAllAuthorizer) Authorize(context.Context, Verb, Authorizable) (bool, error) {
	return true, nil
}

// noopLinker leaves Candlepin untouched.
type noopLinker struct{}

func (noopLinker) LinkEnvironment(context.Context, CandlepinLinked) error   { return nil }
func (noopLinker) UnlinkEnvironment(context.Context, CandlepinLinked) error { return nil }
