package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/policyadmin/internal/admin"
	"github.com/kiranshivaraju/policyadmin/internal/api"
	mw "github.com/kiranshivaraju/policyadmin/internal/api/middleware"
	"github.com/kiranshivaraju/policyadmin/internal/cache"
	"github.com/kiranshivaraju/policyadmin/pkg/models"
)

// --- stub authenticator: "admin" and "viewer" log in with secret "pw" ---

type stubAuthn struct{}

func (stubAuthn) Authenticate(_ context.Context, login, secret string) (models.Principal, error) {
	if secret != "pw" {
		return models.Principal{}, admin.ErrInvalidCredentials
	}
	switch login {
	case "admin":
		return models.Principal{ID: 1, Login: login, IsAdmin: true}, nil
	case "viewer":
		return models.Principal{ID: 2, Login: login}, nil
	}
	return models.Principal{}, admin.ErrInvalidCredentials
}

// --- stub cache ---

type stubCache struct{}

func (c *stubCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *stubCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *stubCache) Delete(_ context.Context, _ string) error                          { return nil }
func (c *stubCache) DeleteByPrefix(_ context.Context, _ string) (int, error)          { return 0, nil }
func (c *stubCache) Ping(_ context.Context) error                                      { return nil }
func (c *stubCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

// --- router tests ---

func newTestRouter() http.Handler {
	return api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(stubAuthn{}),
		RateLimit: mw.NewRateLimit(&stubCache{}, 60),
		HealthHandler: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		},
	})
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"].(map[string]any)["code"].(string)
}

func TestRouter_HealthEndpoint_Public(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(mw.RequestIDHeader))
}

var protected = []struct {
	method string
	path   string
}{
	{"GET", "/api/v1/groups"},
	{"POST", "/api/v1/groups"},
	{"PUT", "/api/v1/groups/1"},
	{"DELETE", "/api/v1/groups/1"},
	{"POST", "/api/v1/groups/1/companies"},
	{"GET", "/api/v1/groups/1/modules"},
	{"POST", "/api/v1/modules/1/tables/remove"},
	{"GET", "/api/v1/tables/1/columns"},
	{"DELETE", "/api/v1/profiles/1"},
	{"POST", "/api/v1/users"},
	{"PUT", "/api/v1/users/1/grants"},
	{"PUT", "/api/v1/profiles/1/permissions/sales"},
	{"POST", "/api/v1/permissions/preview"},
	{"POST", "/api/v1/deletions"},
	{"POST", "/api/v1/deletions/2b1f5a5e-5d0c-4a5e-9a43-7b8b6b7f6d10/execute"},
	{"GET", "/api/v1/portal-principals"},
	{"GET", "/api/v1/audit"},
	{"GET", "/api/v1/enforcement"},
}

func TestRouter_ProtectedEndpoints_RequireAuth(t *testing.T) {
	router := newTestRouter()

	for _, ep := range protected {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			req := httptest.NewRequest(ep.method, ep.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "UNAUTHORIZED", errCode(t, w))
		})
	}
}

func TestRouter_WrongSecret(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest("GET", "/api/v1/groups", nil)
	req.SetBasicAuth("admin", "nope")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", errCode(t, w))
}

func TestRouter_UnwiredHandlersAnswerNotImplemented(t *testing.T) {
	router := newTestRouter()

	for _, ep := range protected {
		if ep.path == "/api/v1/permissions/preview" {
			continue
		}
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			req := httptest.NewRequest(ep.method, ep.path, nil)
			req.SetBasicAuth("admin", "pw")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusNotImplemented, w.Code)
			assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))
		})
	}
}

func TestRouter_AdminRoutesRejectNonAdmins(t *testing.T) {
	router := newTestRouter()

	for _, path := range []string{
		"/api/v1/portal-principals",
		"/api/v1/audit",
		"/api/v1/modules/1/catalog",
		"/api/v1/enforcement",
	} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest("GET", path, nil)
			req.SetBasicAuth("viewer", "pw")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusForbidden, w.Code)
			assert.Equal(t, "FORBIDDEN", errCode(t, w))
		})
	}
}

func TestRouter_NotFound(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest("GET", "/api/v1/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

var _ cache.Cache = (*stubCache)(nil)
