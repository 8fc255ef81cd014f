// Package server assembles the fiber application: global middleware, the
// conversion route and the operational endpoints.
package server

import (
	"runtime/debug"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pdf2docx/internal/config"
	"pdf2docx/internal/domain"
	"pdf2docx/internal/http/handlers"
	"pdf2docx/internal/http/middleware"
	"pdf2docx/internal/infra/logging"
	"pdf2docx/internal/infra/metrics"
)

const (
	ConvertPath = "/convert"
	MonitorPath = "/ops/monitor"
)

// Deps wires the collaborators of the app. Gatherer serves the metrics
// endpoint and RateStore backs the client limiter; both may be nil.
type Deps struct {
	handlers.Deps
	Gatherer  prometheus.Gatherer
	RateStore fiber.Storage
}

// New creates and configures the fiber app.
func New(cfg config.Config, deps Deps) *fiber.App {
	if deps.Metrics == nil {
		reg := prometheus.NewRegistry()
		deps.Metrics = metrics.New(reg)
		if deps.Gatherer == nil {
			deps.Gatherer = reg
		}
	}

	app := fiber.New(fiber.Config{
		Prefork:               cfg.Server.Prefork,
		DisableStartupMessage: true,
		BodyLimit:             cfg.Server.BodyLimitMB << 20,
		ErrorHandler:          errorHandler,
	})

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e interface{}) {
			logging.Error("Unexpected error",
				"panic", e,
				"path", c.Path(),
				"request_id", c.GetRespHeader(fiber.HeaderXRequestID),
				"stack", string(debug.Stack()),
			)
		},
	}))

	var ready func() bool
	if deps.Area != nil {
		ready = deps.Area.Ready
	}
	middleware.Register(app, cfg, ready)
	RegisterRoutes(app, cfg, deps)

	// Ensure all responses, including 404s, return JSON
	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Not Found")
	})

	return app
}

// RegisterRoutes mounts the conversion and operational routes.
func RegisterRoutes(app *fiber.App, cfg config.Config, deps Deps) {
	svc := handlers.NewConvertService(cfg, deps.Deps)

	app.Post(ConvertPath,
		middleware.ClientRateLimit(cfg, deps.RateStore),
		middleware.StaticToken(cfg.Auth.StaticToken, deps.Metrics),
		svc.HandleConvert,
	)

	if cfg.Metrics.Enabled && deps.Gatherer != nil {
		app.Get(cfg.Metrics.Path, adaptor.HTTPHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}
	app.Get(MonitorPath, monitor.New())
}

func errorHandler(c *fiber.Ctx, err error) error {
	code, msg := handlers.StatusFor(err)
	kv := []interface{}{
		"path", c.Path(),
		"status", code,
		"message", msg,
		"request_id", c.GetRespHeader(fiber.HeaderXRequestID),
	}
	if code >= fiber.StatusInternalServerError {
		logging.Error("Request failed", append(kv, "kind", domain.KindOf(err).String(), "error", err)...)
	} else {
		logging.Warn("Request failed", append(kv, "error", err)...)
	}

	// Headers staged for a successful download must not leak into an error.
	c.Response().Header.Del(fiber.HeaderContentDisposition)
	return c.Status(code).JSON(fiber.Map{"error": msg})
}
