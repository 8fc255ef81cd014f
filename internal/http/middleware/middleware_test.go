package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	memoryStorage "github.com/gofiber/storage/memory/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf2docx/internal/config"
	"pdf2docx/internal/domain"
	"pdf2docx/internal/infra/metrics"
)

func TestRegister_AddsHealthAndRequestID(t *testing.T) {
	app := fiber.New()
	Register(app, config.Config{}, nil)
	app.Get("/ping", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	healthResp, err := app.Test(httptest.NewRequest(http.MethodGet, HealthPath, nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, healthResp.StatusCode)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}

func TestRegister_ReadinessFollowsProbe(t *testing.T) {
	ready := false
	app := fiber.New()
	Register(app, config.Config{}, func() bool { return ready })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, ReadyPath, nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	ready = true
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, ReadyPath, nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestStaticToken(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	app := fiber.New()
	app.Post("/convert", StaticToken("Secret_101", m), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	tests := []struct {
		name   string
		header string
		code   int
	}{
		{name: "exact match", header: "Secret_101", code: fiber.StatusOK},
		{name: "missing", header: "", code: fiber.StatusUnauthorized},
		{name: "wrong", header: "wrong", code: fiber.StatusUnauthorized},
		{name: "bearer prefix is not stripped", header: "Bearer Secret_101", code: fiber.StatusUnauthorized},
		{name: "prefix of token", header: "Secret", code: fiber.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/convert", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.code, resp.StatusCode)

			if tc.code == fiber.StatusUnauthorized {
				body, _ := io.ReadAll(resp.Body)
				var out map[string]string
				require.NoError(t, json.Unmarshal(body, &out))
				assert.Equal(t, domain.MsgUnauthorized, out["error"])
				assert.Len(t, out, 1)
			}
		})
	}
}

func TestClientRateLimit(t *testing.T) {
	cfg := config.Config{}
	cfg.RateLimiter.Limit = 2
	cfg.RateLimiter.Interval = time.Hour

	app := fiber.New()
	app.Use(ClientRateLimit(cfg, memoryStorage.New()))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	makeReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("User-Agent", "test-agent")
		req.RemoteAddr = "1.2.3.4:5678"
		return req
	}

	for i := 0; i < 2; i++ {
		resp, err := app.Test(makeReq(), -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
	resp, err := app.Test(makeReq(), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}

func TestClientRateLimit_DisabledPassesThrough(t *testing.T) {
	app := fiber.New()
	app.Use(ClientRateLimit(config.Config{}, nil))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	for i := 0; i < 5; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
}
