package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"pdf2docx/internal/config"
	"pdf2docx/internal/http/handlers"
	"pdf2docx/internal/http/server"
	"pdf2docx/internal/infra/cache"
	"pdf2docx/internal/infra/converter"
	"pdf2docx/internal/infra/logging"
	"pdf2docx/internal/infra/metrics"
	"pdf2docx/internal/infra/pdfinfo"
	"pdf2docx/internal/infra/ratelimit"
	"pdf2docx/internal/staging"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg)

	if cfg.UsesDefaultToken() {
		logging.Warn("Using the built-in default auth token; set STATIC_AUTH_TOKEN")
	}

	area, err := staging.NewArea(cfg.Staging.Dir)
	if err != nil {
		logging.Error("Failed to prepare staging directory", "dir", cfg.Staging.Dir, "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	sweepStaging(area, cfg.Staging.SweepAge, m)

	conv := converter.NewCommand(cfg.Converter.Command, cfg.Converter.Args, cfg.Converter.Timeout)
	if err := conv.Available(); err != nil {
		logging.Warn("Converter not found on PATH; conversions will fail", "command", conv.Name(), "error", err)
	}

	deps := server.Deps{
		Deps: handlers.Deps{
			Area:      area,
			Converter: conv,
			Pages:     pdfinfo.NewInspector(),
			Metrics:   m,
		},
		Gatherer: reg,
	}
	if rc := newResultCache(cfg); rc != nil {
		deps.Cache = rc
	}
	if cfg.RateLimiter.Limit > 0 {
		deps.RateStore = ratelimit.NewStore(ratelimit.RedisConfig{
			Addr: cfg.RateLimiter.RedisHost,
			DB:   cfg.RateLimiter.DB,
		})
	}

	app := server.New(cfg, deps)

	idleConnsClosed := make(chan struct{})
	startServer(app, cfg, idleConnsClosed)
	<-idleConnsClosed
}

func setupLogging(cfg config.Config) {
	path := cfg.LogPath()
	if err := logging.EnsureLogDir(path); err != nil {
		logging.Warn("Failed to create log directory, logging to stdout only", "path", path, "error", err)
		path = ""
	}
	logging.InitLogger(
		path,
		cfg.Logger.MaxSizeMB,
		cfg.Logger.MaxBackups,
		cfg.Logger.MaxAgeDays,
		cfg.Logger.Compress,
		cfg.Logger.Level,
	)
	logging.SetLogLevel(cfg.Logger.Level)
}

// sweepStaging removes files orphaned by an earlier process.
func sweepStaging(area *staging.Area, maxAge time.Duration, m *metrics.Metrics) {
	n, err := area.Sweep(maxAge, time.Now())
	if err != nil {
		logging.Warn("Staging sweep incomplete", "dir", area.Dir(), "error", err)
	}
	if n > 0 {
		m.RecordSwept(n)
		logging.Info("Removed orphaned staged files", "dir", area.Dir(), "count", n)
	}
}

// newResultCache returns nil when caching is disabled or Redis does not
// answer at startup.
func newResultCache(cfg config.Config) *cache.Results {
	if !cfg.Cache.Enabled {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Cache.RedisHost,
		DB:   cfg.Cache.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logging.Warn("Redis unreachable, result cache disabled", "addr", cfg.Cache.RedisHost, "error", err)
		_ = rdb.Close()
		return nil
	}
	logging.Info("Using Redis for converted results", "addr", cfg.Cache.RedisHost, "db", cfg.Cache.DB, "ttl", cfg.Cache.TTL.String())
	return cache.New(rdb, cfg.Cache.TTL)
}

// startServer starts the Fiber app and listens for shutdown signals
func startServer(app *fiber.App, cfg config.Config, idleConnsClosed chan struct{}) {
	go func() {
		logging.Info("Starting server", "addr", cfg.Server.Host+cfg.Server.Port)
		if err := app.Listen(cfg.Server.Host + cfg.Server.Port); err != nil {
			logging.Error("Server error", "error", err)
		}
	}()

	// Listen for OS termination signals
	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigint)
	<-sigint

	logging.Warn("Shutdown signal received, closing server...")

	// In-flight conversions finish, and clean up, within the timeout.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logging.Error("Server forced to shutdown", "error", err)
	}

	close(idleConnsClosed)
	logging.Info("Server stopped cleanly")
}
