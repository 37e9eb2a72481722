package authz

import (
	"context"
	"fmt"
	"os"
	"path"

	mapset "github.com/deckarep/golang-set/v2"
	"gopkg.in/yaml.v3"
)

// Wildcard matches any resource or verb in a permission.
const Wildcard = "*"

// RoleFile is the on-disk role definition document.
type RoleFile struct {
	Roles []RoleSpec `yaml:"roles"`
}

// RoleSpec grants permissions to users and groups.
//
//	roles:
//	  - name: dev-promoter
//	    groups: [release]
//	    organizations: [ACME]
//	    permissions: ["content_view_environments:get", "content_view_environments:promote"]
//	    names: ["dev/*"]
type RoleSpec struct {
	Name          string   `yaml:"name"`
	Users         []string `yaml:"users"`
	Groups        []string `yaml:"groups"`
	Organizations []string `yaml:"organizations"`
	// Permissions are "resource:verb" pairs; either side may be "*".
	Permissions []string `yaml:"permissions"`
	// Names are path.Match patterns restricting the records a role covers.
	Names []string `yaml:"names"`
}

type role struct {
	name          string
	users         mapset.Set[string]
	groups        mapset.Set[string]
	organizations mapset.Set[string]
	permissions   mapset.Set[string]
	names         []string
}

// RoleAuthorizer grants requests matched by any configured role.
type RoleAuthorizer struct {
	roles []role
}

// LoadRoleFile reads a YAML role file.
func LoadRoleFile(filename string) (*RoleAuthorizer, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read role file %s: %w", filename, err)
	}
	var rf RoleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse role file %s: %w", filename, err)
	}
	return NewRoleAuthorizer(rf.Roles)
}

// NewRoleAuthorizer creates a RoleAuthorizer from role specs.
func NewRoleAuthorizer(specs []RoleSpec) (*RoleAuthorizer, error) {
	a := &RoleAuthorizer{}
	for _, spec := range specs {
		for _, pattern := range spec.Names {
			if _, err := path.Match(pattern, ""); err != nil {
				return nil, fmt.Errorf("role %q: invalid name pattern %q: %w", spec.Name, pattern, err)
			}
		}
		a.roles = append(a.roles, role{
			name:          spec.Name,
			users:         mapset.NewSet(spec.Users...),
			groups:        mapset.NewSet(spec.Groups...),
			organizations: mapset.NewSet(spec.Organizations...),
			permissions:   mapset.NewSet(spec.Permissions...),
			names:         spec.Names,
		})
	}
	return a, nil
}

// Authorize implements Authorizer.
func (a *RoleAuthorizer) Authorize(_ context.Context, req AuthzRequest) (bool, error) {
	groups := mapset.NewSet(req.Groups...)
	for _, r := range a.roles {
		if r.grants(req, groups) {
			return true, nil
		}
	}
	return false, nil
}

func (r role) grants(req AuthzRequest, groups mapset.Set[string]) bool {
	if !r.users.ContainsOne(req.User) && !r.groups.ContainsAnyElement(groups) {
		return false
	}
	if r.organizations.Cardinality() > 0 && req.Organization != "" && !r.organizations.ContainsOne(req.Organization) {
		return false
	}
	if !r.permissions.ContainsAny(
		req.Resource+":"+req.Verb,
		req.Resource+":"+Wildcard,
		Wildcard+":"+req.Verb,
		Wildcard+":"+Wildcard,
	) {
		return false
	}
	if len(r.names) == 0 || req.Name == "" {
		return true
	}
	for _, pattern := range r.names {
		if ok, _ := path.Match(pattern, req.Name); ok {
			return true
		}
	}
	return false
}
