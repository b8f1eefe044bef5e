package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/roombridge/internal/api/handler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pluginPath(id uuid.UUID, suffix string) string {
	return "/api/v1/projects/" + id.String() + "/plugin" + suffix
}

func TestPluginStatus(t *testing.T) {
	f := setup(t)

	w := f.serve(httptest.NewRequest(http.MethodGet, pluginPath(f.project.ID, "/"), nil))
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, false, data["enabled"])
	assert.Equal(t, false, data["configured"])
	assert.Equal(t, []any{}, data["tenants"])

	f.linkTenant(t, "t1", 1)

	w = f.serve(httptest.NewRequest(http.MethodGet, pluginPath(f.project.ID, "/"), nil))
	require.Equal(t, http.StatusOK, w.Code)
	data = decodeData(t, w)
	assert.Equal(t, true, data["enabled"])
	assert.Equal(t, true, data["configured"])
	assert.Equal(t, []any{"t1"}, data["tenants"])
}

func TestPluginEnableDisable(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.linkTenant(t, "t1", 1)

	w := f.serve(httptest.NewRequest(http.MethodPost, pluginPath(f.project.ID, "/disable"), nil))
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, false, data["enabled"])
	assert.Equal(t, []any{}, data["tenants"])

	linked, err := f.store.ListTenantProjects(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, linked)
	_, err = f.store.GetTenant(ctx, "t1")
	assert.NoError(t, err, "retain policy keeps the tenant")

	w = f.serve(httptest.NewRequest(http.MethodPost, pluginPath(f.project.ID, "/enable"), nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeData(t, w)["enabled"])
}

func TestPluginConfigureFragment(t *testing.T) {
	f := setup(t)
	f.linkTenant(t, "t1", 1)

	req := httptest.NewRequest(http.MethodGet, pluginPath(f.project.ID, "/configure"), nil)
	req.Host = "sentry.internal.example.com"
	w := f.serve(req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), baseURL+"/descriptor")
}

func TestPlugin_BadProject(t *testing.T) {
	f := setup(t)

	w := f.serve(httptest.NewRequest(http.MethodGet, "/api/v1/projects/nope/plugin/", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.serve(httptest.NewRequest(http.MethodPost, pluginPath(uuid.New(), "/enable"), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "PROJECT_NOT_FOUND", decodeErrCode(t, w))
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	w := httptest.NewRecorder()
	handler.NewHealthHandler(pinger{}, pinger{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeData(t, w)["status"])

	w = httptest.NewRecorder()
	handler.NewHealthHandler(pinger{}, pinger{err: errors.New("down")}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "DEGRADED", decodeErrCode(t, w))
}
