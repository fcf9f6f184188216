package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/mfeshell/internal/config"
	"github.com/fyrsmithlabs/mfeshell/internal/loader"
	"github.com/fyrsmithlabs/mfeshell/internal/logging"
	"github.com/fyrsmithlabs/mfeshell/internal/manifest"
	"github.com/fyrsmithlabs/mfeshell/internal/routes"
)

// fakeShell is a canned Orchestrator.
type fakeShell struct {
	mu       sync.Mutex
	path     string
	active   string
	navErr   error
	statuses []loader.Status
	routes   map[string][]routes.Entry
}

func (f *fakeShell) Navigate(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.navErr != nil {
		return f.navErr
	}
	f.path = path
	return nil
}

func (f *fakeShell) CurrentPath() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.path
}

func (f *fakeShell) ActiveModule() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active, f.active != ""
}

func (f *fakeShell) Routes(moduleID string) []routes.Entry { return f.routes[moduleID] }

func (f *fakeShell) ModuleStatuses() []loader.Status { return f.statuses }

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.NavigateRate = 100
	cfg.Server.NavigateBurst = 100
	return cfg
}

func newTestServer(t *testing.T, sh *fakeShell, m *manifest.Manifest) *Server {
	t.Helper()
	return New(testConfig(), sh, manifest.NewStore(m), logging.NewNop())
}

func doJSON(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echoContentType, "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

const echoContentType = "Content-Type"

func TestServer_Health(t *testing.T) {
	sh := &fakeShell{path: "/orders", active: "orders"}
	s := newTestServer(t, sh, &manifest.Manifest{Version: "1.0"})

	rec := doJSON(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "mfeshell", resp.Service)
	assert.Equal(t, "orders", resp.ActiveModule)
	assert.Equal(t, "/orders", resp.CurrentPath)
}

func TestServer_Metrics(t *testing.T) {
	s := newTestServer(t, &fakeShell{}, &manifest.Manifest{Version: "1.0"})
	rec := doJSON(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServer_Manifest(t *testing.T) {
	m := &manifest.Manifest{
		Version: "2.0",
		MFEs: []manifest.Registration{
			{ID: "orders", Entry: "builtin://orders", Route: "/orders"},
		},
	}
	s := newTestServer(t, &fakeShell{}, m)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/manifest", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got manifest.Manifest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "2.0", got.Version)
	require.Len(t, got.MFEs, 1)
	assert.Equal(t, "orders", got.MFEs[0].ID)
}

func TestServer_ManifestMissing(t *testing.T) {
	s := newTestServer(t, &fakeShell{}, nil)
	rec := doJSON(t, s, http.MethodGet, "/api/v1/manifest", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_Modules(t *testing.T) {
	now := time.Now()
	sh := &fakeShell{statuses: []loader.Status{
		{ModuleID: "orders", State: loader.StateActive, Initialized: true, MountID: "m-1", MountedAt: &now},
	}}
	s := newTestServer(t, sh, &manifest.Manifest{Version: "1.0"})

	rec := doJSON(t, s, http.MethodGet, "/api/v1/modules", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []loader.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, loader.StateActive, got[0].State)
}

func TestServer_Routes(t *testing.T) {
	sh := &fakeShell{routes: map[string][]routes.Entry{
		"orders": {{Label: "All Orders", Path: "/orders", Order: 1}},
	}}
	s := newTestServer(t, sh, &manifest.Manifest{Version: "1.0"})

	rec := doJSON(t, s, http.MethodGet, "/api/v1/routes?module=orders", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []routes.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "All Orders", got[0].Label)

	rec = doJSON(t, s, http.MethodGet, "/api/v1/routes", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "module param required")

	rec = doJSON(t, s, http.MethodGet, "/api/v1/routes?module=unknown", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestServer_Navigate(t *testing.T) {
	sh := &fakeShell{active: "orders"}
	s := newTestServer(t, sh, &manifest.Manifest{Version: "1.0"})

	rec := doJSON(t, s, http.MethodPost, "/api/v1/navigate", `{"path":"/orders"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp NavigateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "/orders", resp.Path)
	assert.Equal(t, "orders", resp.ActiveModule)
}

func TestServer_NavigateValidation(t *testing.T) {
	s := newTestServer(t, &fakeShell{}, &manifest.Manifest{Version: "1.0"})

	rec := doJSON(t, s, http.MethodPost, "/api/v1/navigate", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/navigate", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_NavigateFailurePropagates(t *testing.T) {
	sh := &fakeShell{navErr: errors.New("module load failed")}
	s := newTestServer(t, sh, &manifest.Manifest{Version: "1.0"})

	rec := doJSON(t, s, http.MethodPost, "/api/v1/navigate", `{"path":"/orders"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestServer_NavigateRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.Server.NavigateRate = 1
	cfg.Server.NavigateBurst = 1
	s := New(cfg, &fakeShell{}, manifest.NewStore(&manifest.Manifest{Version: "1.0"}), logging.NewNop())

	first := doJSON(t, s, http.MethodPost, "/api/v1/navigate", `{"path":"/a"}`)
	require.Equal(t, http.StatusOK, first.Code)

	second := doJSON(t, s, http.MethodPost, "/api/v1/navigate", `{"path":"/b"}`)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestServer_GracefulShutdown(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Port = 0 // ephemeral
	s := New(cfg, &fakeShell{}, manifest.NewStore(&manifest.Manifest{Version: "1.0"}), logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}
