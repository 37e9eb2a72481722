package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/katello/lifecycle/pkg/audit"
	"github.com/katello/lifecycle/pkg/candlepin"
	"github.com/katello/lifecycle/pkg/config"
	"github.com/katello/lifecycle/pkg/database"
	"github.com/katello/lifecycle/pkg/lifecycle"
	"github.com/katello/lifecycle/pkg/tasks"
	"github.com/katello/lifecycle/pkg/tenancy"
)

type fakeCandlepin struct {
	mu      sync.Mutex
	created []candlepin.Environment
}

func (f *fakeCandlepin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var env candlepin.Environment
		_ = json.NewDecoder(r.Body).Decode(&env)
		f.mu.Lock()
		f.created = append(f.created, env)
		f.mu.Unlock()
	}
	w.WriteHeader(http.StatusOK)
}

func (f *fakeCandlepin) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.created {
		out = append(out, e.Name)
	}
	return out
}

func testConfig(cpURL string) *config.Config {
	cfg := config.Default()
	cfg.Listen = "127.0.0.1:0"
	cfg.Database = database.DatabaseConfig{Type: database.TypeSQLite, DSN: ":memory:"}
	cfg.Tenancy.Mode = tenancy.ModeOrganization
	cfg.Tasks.PollInterval = 20 * time.Millisecond
	cfg.Tasks.Concurrency = 1
	cfg.HA.Identity = "test-replica"
	if cpURL != "" {
		cfg.Candlepin.Enabled = true
		cfg.Candlepin.URL = cpURL
		cfg.Candlepin.RetryMax = 0
	}
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *httptest.Server) {
	t.Helper()
	db, err := database.Open(&cfg.Database, logger.Default.LogMode(logger.Silent))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	s, err := New(context.Background(), cfg, db)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func call(t *testing.T, method, url, org string, body any, out any) int {
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
	req.Header.Set("X-Remote-User", "admin")
	if org != "" {
		req.Header.Set(tenancy.OrganizationHeader, org)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func bootstrap(t *testing.T, api string) lifecycle.BindingResponse {
	t.Helper()
	require.Equal(t, http.StatusCreated, call(t, http.MethodPost, api+"/organizations", "",
		lifecycle.CreateOrganizationRequest{Name: "ACME", Label: "ACME"}, nil))

	var env lifecycle.EnvironmentResponse
	require.Equal(t, http.StatusCreated, call(t, http.MethodPost, api+"/organizations/ACME/environments", "",
		lifecycle.CreateNamedRequest{Name: "Dev", Label: "dev"}, &env))
	var cv lifecycle.ContentViewResponse
	require.Equal(t, http.StatusCreated, call(t, http.MethodPost, api+"/organizations/ACME/content_views", "",
		lifecycle.CreateNamedRequest{Name: "Web", Label: "web"}, &cv))

	var binding lifecycle.BindingResponse
	require.Equal(t, http.StatusCreated, call(t, http.MethodPost, api+"/content_view_environments", "ACME",
		lifecycle.CreateBindingRequest{ContentViewID: cv.ID, EnvironmentID: env.ID}, &binding))
	return binding
}

func TestServer_Health(t *testing.T) {
	_, ts := newTestServer(t, testConfig(""))

	var health map[string]any
	assert.Equal(t, http.StatusOK, call(t, http.MethodGet, ts.URL+"/healthz", "", nil, &health))
	assert.Equal(t, "ok", health["status"])

	var ready map[string]any
	assert.Equal(t, http.StatusOK, call(t, http.MethodGet, ts.URL+"/readyz", "", nil, &ready))
	assert.Equal(t, false, ready["leader"])
}

func TestServer_BindingLifecycleThroughMiddleware(t *testing.T) {
	_, ts := newTestServer(t, testConfig(""))
	api := ts.URL + "/katello/api/v2"

	binding := bootstrap(t, api)
	assert.Equal(t, "dev/web", binding.CandlepinName)
	assert.Equal(t, "ACME", binding.Organization)

	var resolved lifecycle.BindingResponse
	require.Equal(t, http.StatusOK, call(t, http.MethodGet,
		api+"/content_view_environments/resolve?name=dev/web", "ACME", nil, &resolved))
	assert.Equal(t, binding.ID, resolved.ID)

	var library lifecycle.BindingResponse
	require.Equal(t, http.StatusOK, call(t, http.MethodGet,
		api+"/content_view_environments/resolve?name=Library", "ACME", nil, &library))
	assert.True(t, library.Default)

	// Organization mode requires the organization on binding routes.
	assert.Equal(t, http.StatusBadRequest, call(t, http.MethodGet, api+"/content_view_environments", "", nil, nil))

	var events audit.EventList
	require.Equal(t, http.StatusOK, call(t, http.MethodGet, api+"/audit/events", "ACME", nil, &events))
	assert.NotZero(t, events.TotalSize)
	var sawRecord bool
	for _, e := range events.Events {
		if e.EventType == audit.EventTypeRecord && e.AuditableType == "Katello::ContentViewEnvironment" {
			sawRecord = true
		}
	}
	assert.True(t, sawRecord, "expected a record event for the binding")
}

func TestServer_CandlepinMirroring(t *testing.T) {
	cp := &fakeCandlepin{}
	cpServer := httptest.NewServer(cp)
	t.Cleanup(cpServer.Close)

	s, ts := newTestServer(t, testConfig(cpServer.URL))
	api := ts.URL + "/katello/api/v2"
	bootstrap(t, api)

	var queued tasks.TaskList
	require.Equal(t, http.StatusOK, call(t, http.MethodGet, api+"/tasks", "ACME", nil, &queued))
	require.GreaterOrEqual(t, queued.TotalSize, 2)
	for _, task := range queued.Tasks {
		assert.Equal(t, candlepin.ActionCreateEnvironment, task.Action)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.elector.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, func() bool {
		return len(cp.names()) >= 2
	}, 5*time.Second, 20*time.Millisecond)
	assert.ElementsMatch(t, []string{"Library", "dev/web"}, cp.names())
	assert.True(t, s.elector.IsLeader())
}

func TestServer_Run(t *testing.T) {
	s, _ := newTestServer(t, testConfig(""))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNew_InvalidAuthzMode(t *testing.T) {
	cfg := testConfig("")
	cfg.Authz.Mode = "galaxy"
	db, err := database.Open(&cfg.Database, logger.Default.LogMode(logger.Silent))
	require.NoError(t, err)

	_, err = New(context.Background(), cfg, db)
	assert.ErrorContains(t, err, "authorizer")
}
