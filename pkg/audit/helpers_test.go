package audit

import (
	"net/http"
	"reflect"
	"testing"
)

func TestExtractResourceIDs(t *testing.T) {
	tests := []struct {
		name string
		path string
		want []string
	}{
		{name: "collection", path: "/katello/api/v2/content_view_environments", want: nil},
		{name: "member", path: "/katello/api/v2/content_view_environments/12", want: []string{"12"}},
		{name: "nested member", path: "/katello/api/v2/content_view_environments/12/content_facets/3", want: []string{"12", "3"}},
		{name: "organization nested", path: "/katello/api/v2/organizations/ACME/environments/4/", want: []string{"ACME", "4"}},
		{name: "resolve", path: "/katello/api/v2/content_view_environments/resolve", want: nil},
		{name: "outside api", path: "/healthz", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractResourceIDs(tt.path)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("extractResourceIDs(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestActionForMethod(t *testing.T) {
	tests := map[string]string{
		http.MethodPost:   "create",
		http.MethodPut:    "update",
		http.MethodPatch:  "update",
		http.MethodDelete: "destroy",
		http.MethodGet:    "get",
	}
	for method, want := range tests {
		if got := actionForMethod(method); got != want {
			t.Errorf("actionForMethod(%s) = %q, want %q", method, got, want)
		}
	}
}

func TestIsAuditedRequest(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   bool
	}{
		{http.MethodPost, "/katello/api/v2/content_view_environments", true},
		{http.MethodDelete, "/katello/api/v2/content_view_environments/1", true},
		{http.MethodPut, "/katello/api/v2/content_view_environments/1/content_facets/2", true},
		{http.MethodGet, "/katello/api/v2/content_view_environments", false},
		{http.MethodPost, "/healthz", false},
	}
	for _, tt := range tests {
		if got := isAuditedRequest(tt.method, tt.path); got != tt.want {
			t.Errorf("isAuditedRequest(%s, %s) = %v, want %v", tt.method, tt.path, got, tt.want)
		}
	}
}

func TestOutcomeFromStatus(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, OutcomeSuccess},
		{201, OutcomeSuccess},
		{204, OutcomeSuccess},
		{400, OutcomeFailure},
		{401, OutcomeDenied},
		{403, OutcomeDenied},
		{404, OutcomeFailure},
		{422, OutcomeFailure},
		{500, OutcomeFailure},
	}

	for _, tt := range tests {
		got := outcomeFromStatus(tt.code)
		if got != tt.want {
			t.Errorf("outcomeFromStatus(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}
