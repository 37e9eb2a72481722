// Package lifecycle implements the content view environment binding: the
// pairing of a content view with a lifecycle environment inside an
// organization, its derived Candlepin identity, and the reverse lookup from a
// Candlepin environment name back to the binding.
package lifecycle

import (
	"time"
)

// LibraryLabel is the reserved label (and name) of an organization's library
// environment.
const LibraryLabel = "Library"

// DefaultContentViewName is the name given to an organization's default view.
const DefaultContentViewName = "Default Organization View"

// DefaultContentViewLabel is the label of an organization's default view.
const DefaultContentViewLabel = "Default_Organization_View"

// maxFieldLen mirrors the varchar(255) columns of the binding table.
const maxFieldLen = 255

// Organization scopes environments, content views and hosts.
type Organization struct {
	ID        uint      `gorm:"primaryKey;column:id"`
	Name      string    `gorm:"column:name;size:255;not null"`
	Label     string    `gorm:"column:label;size:255;uniqueIndex;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the GORM table name.
func (Organization) TableName() string { return "organizations" }

// Environment is a lifecycle environment (Library, Dev, Production, ...).
type Environment struct {
	ID             uint          `gorm:"primaryKey;column:id"`
	OrganizationID uint          `gorm:"column:organization_id;not null;uniqueIndex:idx_lce_org_label,priority:1"`
	Organization   *Organization `gorm:"foreignKey:OrganizationID"`
	Name           string        `gorm:"column:name;size:255;not null"`
	Label          string        `gorm:"column:label;size:255;not null;uniqueIndex:idx_lce_org_label,priority:2"`
	Library        bool          `gorm:"column:library;not null;default:false"`
	CreatedAt      time.Time     `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time     `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the GORM table name.
func (Environment) TableName() string { return "lifecycle_environments" }

// ContentView is a filtered, versioned snapshot of content.
type ContentView struct {
	ID             uint          `gorm:"primaryKey;column:id"`
	OrganizationID uint          `gorm:"column:organization_id;not null;uniqueIndex:idx_cv_org_label,priority:1"`
	Organization   *Organization `gorm:"foreignKey:OrganizationID"`
	Name           string        `gorm:"column:name;size:255;not null"`
	Label          string        `gorm:"column:label;size:255;not null;uniqueIndex:idx_cv_org_label,priority:2"`
	Default        bool          `gorm:"column:default_view;not null;default:false"`
	CreatedAt      time.Time     `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time     `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the GORM table name.
func (ContentView) TableName() string { return "content_views" }

// ContentViewVersion is a published version of a content view.
type ContentViewVersion struct {
	ID            uint      `gorm:"primaryKey;column:id"`
	ContentViewID uint      `gorm:"column:content_view_id;not null;index"`
	Major         int       `gorm:"column:major;not null"`
	Minor         int       `gorm:"column:minor;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the GORM table name.
func (ContentViewVersion) TableName() string { return "content_view_versions" }

// ContentViewEnvironment binds one content view to one lifecycle environment.
// Name, Label and CPID are derived by GenerateInfo before the first save and
// never overwritten afterwards.
type ContentViewEnvironment struct {
	ID                   uint                `gorm:"primaryKey;column:id"`
	Name                 string              `gorm:"column:name;size:255"`
	Label                string              `gorm:"column:label;size:255;index"`
	CPID                 string              `gorm:"column:cp_id;size:255;index"`
	ContentViewID        uint                `gorm:"column:content_view_id;not null;uniqueIndex:idx_cve_view_env,priority:1"`
	ContentView          *ContentView        `gorm:"foreignKey:ContentViewID"`
	EnvironmentID        uint                `gorm:"column:environment_id;not null;uniqueIndex:idx_cve_view_env,priority:2;index"`
	Environment          *Environment        `gorm:"foreignKey:EnvironmentID"`
	ContentViewVersionID *uint               `gorm:"column:content_view_version_id"`
	ContentViewVersion   *ContentViewVersion `gorm:"foreignKey:ContentViewVersionID"`
	CreatedAt            time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the GORM table name.
func (ContentViewEnvironment) TableName() string { return "content_view_environments" }

// Host is a registered content host.
type Host struct {
	ID             uint      `gorm:"primaryKey;column:id"`
	Name           string    `gorm:"column:name;size:255;not null"`
	OrganizationID uint      `gorm:"column:organization_id;not null;index"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the GORM table name.
func (Host) TableName() string { return "hosts" }

// ContentFacet carries the content-related attributes of a host.
type ContentFacet struct {
	ID     uint  `gorm:"primaryKey;column:id"`
	HostID uint  `gorm:"column:host_id;not null;uniqueIndex"`
	Host   *Host `gorm:"foreignKey:HostID"`
}

// TableName returns the GORM table name.
func (ContentFacet) TableName() string { return "content_facets" }

// ContentViewEnvironmentContentFacet links a binding to a content facet with
// the priority the host assigns to it.
type ContentViewEnvironmentContentFacet struct {
	ID                       uint `gorm:"primaryKey;column:id"`
	ContentViewEnvironmentID uint `gorm:"column:content_view_environment_id;not null;uniqueIndex:idx_cvecf_binding_facet,priority:1"`
	ContentFacetID           uint `gorm:"column:content_facet_id;not null;uniqueIndex:idx_cvecf_binding_facet,priority:2;index"`
	Priority                 int  `gorm:"column:priority;not null;default:0"`
}

// TableName returns the GORM table name.
func (ContentViewEnvironmentContentFacet) TableName() string {
	return "content_view_environment_content_facets"
}

// ActivationKey registers hosts into a content view and environment.
type ActivationKey struct {
	ID             uint      `gorm:"primaryKey;column:id"`
	Name           string    `gorm:"column:name;size:255;not null"`
	OrganizationID uint      `gorm:"column:organization_id;not null;index"`
	ContentViewID  uint      `gorm:"column:content_view_id;index:idx_ak_view_env,priority:1"`
	EnvironmentID  uint      `gorm:"column:environment_id;index:idx_ak_view_env,priority:2"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the GORM table name.
func (ActivationKey) TableName() string { return "activation_keys" }

// allModels lists every model in migration order.
func allModels() []any {
	return []any{
		&Organization{},
		&Environment{},
		&ContentView{},
		&ContentViewVersion{},
		&ContentViewEnvironment{},
		&Host{},
		&ContentFacet{},
		&ContentViewEnvironmentContentFacet{},
		&ActivationKey{},
	}
}
