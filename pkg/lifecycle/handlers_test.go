package lifecycle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katello/lifecycle/pkg/tenancy"
)

func newTestServer(t *testing.T, opts ...ServiceOption) (*httptest.Server, *fixture) {
	t.Helper()
	svc, f := newTestService(t, opts...)
	srv := httptest.NewServer(NewRouter(svc, tenancy.NewMiddleware(tenancy.ModeOrganization, "")))
	t.Cleanup(srv.Close)
	return srv, f
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(tenancy.OrganizationHeader, "ACME")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestHandlers_BindingLifecycle(t *testing.T) {
	srv, f := newTestServer(t)
	base := srv.URL + "/content_view_environments"

	resp, body := doJSON(t, http.MethodPost, base, CreateBindingRequest{ContentViewID: f.cv1.ID, EnvironmentID: f.dev.ID})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var created BindingResponse
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, "dev/cv1", created.Label)
	assert.Equal(t, "dev/cv1", created.CandlepinName)
	assert.Equal(t, "ACME", created.Organization)
	assert.False(t, created.Default)
	require.NotNil(t, created.Environment)
	assert.Equal(t, "dev", created.Environment.Label)

	resp, body = doJSON(t, http.MethodPost, base, CreateBindingRequest{ContentViewID: f.cv1.ID, EnvironmentID: f.dev.ID})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.Equal(t, []string{"has already been taken"}, errResp.Errors["environment_id"])

	resp, body = doJSON(t, http.MethodGet, fmt.Sprintf("%s/%d", base, created.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got BindingResponse
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, created.CPID, got.CPID)

	resp, body = doJSON(t, http.MethodGet, base+"?search=environment%20%3D%20dev", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list BindingList
	require.NoError(t, json.Unmarshal(body, &list))
	require.Equal(t, 1, list.Total)
	assert.Equal(t, created.ID, list.Results[0].ID)

	resp, body = doJSON(t, http.MethodGet, base+"?default=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &list))
	require.Equal(t, 1, list.Total)
	assert.True(t, list.Results[0].Default)

	resp, _ = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/%d", base, created.ID), nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, fmt.Sprintf("%s/%d", base, created.ID), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandlers_Resolve(t *testing.T) {
	srv, f := newTestServer(t)
	f.bind(t, f.cv1, f.dev)

	tests := []struct {
		name   string
		status int
		label  string
	}{
		{name: "Library", status: http.StatusOK, label: "Library"},
		{name: "dev/cv1", status: http.StatusOK, label: "dev/cv1"},
		{name: "dev", status: http.StatusNotFound},
		{name: "a/b/c", status: http.StatusNotFound},
		{name: "dev/cv1/extra", status: http.StatusOK, label: "dev/cv1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doJSON(t, http.MethodGet, srv.URL+"/content_view_environments/resolve?name="+tt.name, nil)
			require.Equal(t, tt.status, resp.StatusCode, string(body))
			if tt.status == http.StatusOK {
				var got BindingResponse
				require.NoError(t, json.Unmarshal(body, &got))
				assert.Equal(t, tt.label, got.Label)
			}
		})
	}
}

func TestHandlers_OrganizationRequired(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/content_view_environments")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandlers_Priority(t *testing.T) {
	srv, f := newTestServer(t)
	c := f.bind(t, f.cv1, f.dev)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/organizations/ACME/hosts", RegisterHostRequest{Name: "web01"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var host HostResponse
	require.NoError(t, json.Unmarshal(body, &host))
	require.NotZero(t, host.ContentFacetID)

	priorityURL := fmt.Sprintf("%s/content_view_environments/%d/priority?content_facet_id=%d", srv.URL, c.ID, host.ContentFacetID)
	resp, body = doJSON(t, http.MethodGet, priorityURL, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pr PriorityResponse
	require.NoError(t, json.Unmarshal(body, &pr))
	assert.Nil(t, pr.Priority)

	resp, _ = doJSON(t, http.MethodPut,
		fmt.Sprintf("%s/content_view_environments/%d/content_facets/%d", srv.URL, c.ID, host.ContentFacetID),
		SetPriorityRequest{Priority: 5})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = doJSON(t, http.MethodGet, priorityURL, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &pr))
	require.NotNil(t, pr.Priority)
	assert.Equal(t, 5, *pr.Priority)

	resp, body = doJSON(t, http.MethodGet, fmt.Sprintf("%s/content_view_environments/%d/hosts", srv.URL, c.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "web01")

	resp, _ = doJSON(t, http.MethodGet, fmt.Sprintf("%s/content_view_environments/%d/priority", srv.URL, c.ID), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandlers_Organizations(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/organizations", CreateOrganizationRequest{Label: "Engineering"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var org OrganizationResponse
	require.NoError(t, json.Unmarshal(body, &org))
	assert.Equal(t, "Engineering", org.Name)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/organizations/Engineering", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/organizations/Missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/organizations/Engineering/environments", CreateNamedRequest{Label: "prod"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var env EnvironmentResponse
	require.NoError(t, json.Unmarshal(body, &env))
	assert.False(t, env.Library)

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/organizations/Engineering/content_views", CreateNamedRequest{Label: "web"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var cv ContentViewResponse
	require.NoError(t, json.Unmarshal(body, &cv))

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/organizations/Engineering/activation_keys",
		CreateActivationKeyRequest{Name: "prod-web", ContentViewID: cv.ID, EnvironmentID: env.ID})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, string(body))

	resp, _ = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/organizations/Engineering/content_views/%d", srv.URL, cv.ID), nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/organizations/Engineering/environments/%d", srv.URL, env.ID), nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestHandlers_DeleteOtherOrganization(t *testing.T) {
	srv, f := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/organizations", CreateOrganizationRequest{Label: "OTHER"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/organizations/OTHER/content_views", CreateNamedRequest{Label: "web"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var cv ContentViewResponse
	require.NoError(t, json.Unmarshal(body, &cv))
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/organizations/OTHER/environments", CreateNamedRequest{Label: "qa"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var env EnvironmentResponse
	require.NoError(t, json.Unmarshal(body, &env))

	tests := []struct {
		name string
		path string
	}{
		{name: "content view of another org", path: fmt.Sprintf("/organizations/ACME/content_views/%d", cv.ID)},
		{name: "environment of another org", path: fmt.Sprintf("/organizations/ACME/environments/%d", env.ID)},
		{name: "missing content view", path: "/organizations/ACME/content_views/9999"},
		{name: "missing environment", path: "/organizations/ACME/environments/9999"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doJSON(t, http.MethodDelete, srv.URL+tt.path, nil)
			assert.Equal(t, http.StatusNotFound, resp.StatusCode, string(body))
		})
	}

	stillView, err := f.orgs.GetContentView(context.Background(), cv.ID)
	require.NoError(t, err)
	assert.NotNil(t, stillView)
	stillEnv, err := f.orgs.GetEnvironment(context.Background(), env.ID)
	require.NoError(t, err)
	assert.NotNil(t, stillEnv)
}

func TestHandlers_Forbidden(t *testing.T) {
	srv, f := newTestServer(t, WithAuthorizer(verbAuthorizer{deny: map[Verb]bool{VerbDestroy: true}}))
	resp, body := doJSON(t, http.MethodDelete, fmt.Sprintf("%s/content_view_environments/%d", srv.URL, f.defaultBinding.ID), nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.Equal(t, "forbidden", errResp.Error)
}

func TestHandlers_BadRequests(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/content_view_environments/abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/content_view_environments?search=bogus%20%3D%201", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/content_view_environments?default=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
