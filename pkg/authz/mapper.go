package authz

import (
	"net/http"
	"strings"
)

// APIPrefix is the mount point of the versioned API.
const APIPrefix = "/katello/api/v2"

// ResourceMapping maps an HTTP request to a resource and verb for authorization.
type ResourceMapping struct {
	Resource string
	Verb     string
}

// UnknownMapping is returned when no known pattern matches the request.
// Callers should deny requests with this mapping by default.
var UnknownMapping = ResourceMapping{Resource: "", Verb: ""}

// MapRequest maps an HTTP method and URL path to a ResourceMapping.
func MapRequest(method, path string) ResourceMapping {
	path = strings.TrimRight(path, "/")
	if !strings.HasPrefix(path, APIPrefix+"/") {
		return UnknownMapping
	}
	segs := strings.Split(strings.TrimPrefix(path, APIPrefix+"/"), "/")

	switch segs[0] {
	case "organizations":
		return mapOrganizationRoute(method, segs[1:])
	case "content_view_environments":
		return mapBindingRoute(method, segs[1:])
	case "audit":
		if method == http.MethodGet {
			return ResourceMapping{Resource: ResourceAudit, Verb: readVerb(len(segs) > 2)}
		}
	case "tasks":
		switch method {
		case http.MethodGet:
			return ResourceMapping{Resource: ResourceTasks, Verb: readVerb(len(segs) > 1)}
		case http.MethodPost:
			if len(segs) == 3 && segs[2] == "cancel" {
				return ResourceMapping{Resource: ResourceTasks, Verb: VerbUpdate}
			}
		}
	}
	return UnknownMapping
}

// mapOrganizationRoute handles /organizations and its nested collections.
func mapOrganizationRoute(method string, segs []string) ResourceMapping {
	if len(segs) <= 1 {
		switch method {
		case http.MethodGet:
			return ResourceMapping{Resource: ResourceOrganizations, Verb: readVerb(len(segs) == 1)}
		case http.MethodPost:
			if len(segs) == 0 {
				return ResourceMapping{Resource: ResourceOrganizations, Verb: VerbCreate}
			}
		}
		return UnknownMapping
	}

	var resource string
	switch segs[1] {
	case "environments":
		resource = ResourceLifecycleEnvironments
	case "content_views":
		resource = ResourceContentViews
	case "hosts":
		resource = ResourceHosts
	case "activation_keys":
		resource = ResourceActivationKeys
	default:
		return UnknownMapping
	}
	return crudMapping(resource, method, len(segs) > 2)
}

// mapBindingRoute handles /content_view_environments routes.
func mapBindingRoute(method string, segs []string) ResourceMapping {
	if len(segs) == 0 {
		return crudMapping(ResourceContentViewEnvironments, method, false)
	}
	if segs[0] == "resolve" && method == http.MethodGet {
		return ResourceMapping{Resource: ResourceContentViewEnvironments, Verb: VerbGet}
	}
	if len(segs) == 1 {
		return crudMapping(ResourceContentViewEnvironments, method, true)
	}

	switch segs[1] {
	case "hosts":
		if method == http.MethodGet {
			return ResourceMapping{Resource: ResourceHosts, Verb: VerbList}
		}
	case "activation_keys":
		if method == http.MethodGet {
			return ResourceMapping{Resource: ResourceActivationKeys, Verb: VerbList}
		}
	case "priority":
		if method == http.MethodGet {
			return ResourceMapping{Resource: ResourceContentViewEnvironments, Verb: VerbGet}
		}
	case "content_facets":
		if method == http.MethodPut {
			return ResourceMapping{Resource: ResourceContentViewEnvironments, Verb: VerbPromote}
		}
	}
	return UnknownMapping
}

func crudMapping(resource, method string, member bool) ResourceMapping {
	switch method {
	case http.MethodGet:
		return ResourceMapping{Resource: resource, Verb: readVerb(member)}
	case http.MethodPost:
		if !member {
			return ResourceMapping{Resource: resource, Verb: VerbCreate}
		}
	case http.MethodPut, http.MethodPatch:
		if member {
			return ResourceMapping{Resource: resource, Verb: VerbUpdate}
		}
	case http.MethodDelete:
		if member {
			return ResourceMapping{Resource: resource, Verb: VerbDelete}
		}
	}
	return UnknownMapping
}

func readVerb(member bool) string {
	if member {
		return VerbGet
	}
	return VerbList
}
