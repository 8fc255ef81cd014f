package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf2docx/internal/config"
	"pdf2docx/internal/domain"
	"pdf2docx/internal/http/handlers"
	"pdf2docx/internal/infra/metrics"
	"pdf2docx/internal/staging"
	"pdf2docx/internal/testutil"
)

type stubConverter func(in, out string) error

func (s stubConverter) Convert(_ context.Context, in, out string, _ domain.PageRange) error {
	return s(in, out)
}

func writeDocx(_, out string) error {
	return os.WriteFile(out, []byte("PK\x03\x04docx"), 0o600)
}

func newApp(t *testing.T, conv stubConverter) (*fiber.App, string) {
	t.Helper()
	dir := t.TempDir()
	area, err := staging.NewArea(dir)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Auth.StaticToken = "Secret_101"

	reg := prometheus.NewRegistry()
	app := New(cfg, Deps{
		Deps: handlers.Deps{
			Area:      area,
			Converter: conv,
			Metrics:   metrics.New(reg),
		},
		Gatherer: reg,
	})
	return app, dir
}

func convertRequest(token string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, ConvertPath, bytes.NewReader(testutil.MinimalPDF(1)))
	req.Header.Set("Content-Type", "application/pdf")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	return req
}

func decodeError(t *testing.T, resp *http.Response) string {
	t.Helper()
	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out["error"]
}

func TestNew_ConvertRoundTrip(t *testing.T) {
	app, dir := newApp(t, writeDocx)

	resp, err := app.Test(convertRequest("Secret_101"), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, handlers.DocxMIME, resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, []byte("PK\x03\x04docx"), body)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNew_UnknownRouteReturnsJSON404(t *testing.T) {
	app, _ := newApp(t, writeDocx)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Not Found", decodeError(t, resp))
}

func TestNew_ConversionFailureHidesCause(t *testing.T) {
	app, dir := newApp(t, func(string, string) error {
		return os.ErrPermission
	})

	resp, err := app.Test(convertRequest("Secret_101"), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Content-Disposition"))
	assert.Equal(t, domain.MsgConversion, decodeError(t, resp))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNew_PanicIsInternalError(t *testing.T) {
	app, dir := newApp(t, func(string, string) error {
		panic("converter exploded")
	})

	resp, err := app.Test(convertRequest("Secret_101"), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, domain.MsgInternal, decodeError(t, resp))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNew_MetricsEndpoint(t *testing.T) {
	app, _ := newApp(t, writeDocx)

	resp, err := app.Test(convertRequest("wrong"), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `pdf2docx_requests_total{outcome="unauthorized"} 1`)
}

func TestNew_OpsEndpoints(t *testing.T) {
	app, _ := newApp(t, writeDocx)

	for _, path := range []string{"/ops/health", "/ops/ready"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode, path)
	}

	req := httptest.NewRequest(http.MethodGet, MonitorPath, nil)
	req.Header.Set("Accept", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestNew_ReadinessFailsWithoutStagingDir(t *testing.T) {
	app, dir := newApp(t, writeDocx)
	require.NoError(t, os.RemoveAll(dir))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ops/ready", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}
