package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/gofiber/fiber/v2/middleware/keyauth"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/xid"

	"pdf2docx/internal/config"
	"pdf2docx/internal/domain"
	"pdf2docx/internal/infra/logging"
	"pdf2docx/internal/infra/metrics"
)

// ErrInvalidToken signals an Authorization header that does not match.
var ErrInvalidToken = errors.New("invalid token")

const (
	HealthPath = "/ops/health"
	ReadyPath  = "/ops/ready"
)

// Register attaches global middleware to the app. ready backs the readiness
// probe; nil means always ready.
func Register(app *fiber.App, cfg config.Config, ready func() bool) {
	app.Use(cors.New())

	app.Use(requestid.New(requestid.Config{
		Header: fiber.HeaderXRequestID,
		Generator: func() string {
			return xid.New().String()
		},
	}))

	app.Use(healthcheck.New(healthcheck.Config{
		LivenessEndpoint:  HealthPath,
		ReadinessEndpoint: ReadyPath,
		ReadinessProbe: func(c *fiber.Ctx) bool {
			return ready == nil || ready()
		},
	}))

	app.Use(func(c *fiber.Ctx) error {
		requestID := c.Get(fiber.HeaderXRequestID)
		if requestID == "" {
			requestID = c.GetRespHeader(fiber.HeaderXRequestID)
		}
		logging.Info("Incoming request", "method", c.Method(), "path", c.Path(), "request_id", requestID)
		return c.Next()
	})
}

// StaticToken rejects requests whose Authorization header is not exactly
// token. The header is compared verbatim, without an auth scheme. m may be nil.
func StaticToken(token string, m *metrics.Metrics) fiber.Handler {
	want := []byte(token)
	return keyauth.New(keyauth.Config{
		KeyLookup:  "header:" + fiber.HeaderAuthorization,
		AuthScheme: "",
		Validator: func(c *fiber.Ctx, key string) (bool, error) {
			if subtle.ConstantTimeCompare([]byte(key), want) != 1 {
				return false, ErrInvalidToken
			}
			return true, nil
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// keyauth can call ErrorHandler with a nil error.
			if err == nil {
				err = ErrInvalidToken
			}
			logging.Warn("Unauthorized access attempt",
				"path", c.Path(),
				"ip", c.IP(),
				"reason", err.Error(),
				"request_id", c.GetRespHeader(fiber.HeaderXRequestID),
			)
			if m != nil {
				m.RecordOutcome(metrics.OutcomeUnauthorized)
			}
			// 401 rather than 403: the caller has not authenticated.
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": domain.MsgUnauthorized,
			})
		},
	})
}

// ClientRateLimit limits requests per client (IP and User-Agent). A
// non-positive limit disables it.
func ClientRateLimit(cfg config.Config, store fiber.Storage) fiber.Handler {
	if cfg.RateLimiter.Limit <= 0 {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}
	return limiter.New(limiter.Config{
		Max:               cfg.RateLimiter.Limit,
		Expiration:        cfg.RateLimiter.Interval,
		LimiterMiddleware: limiter.SlidingWindow{},
		Storage:           store,
		KeyGenerator:      clientKey,
		LimitReached: func(c *fiber.Ctx) error {
			logging.Warn("Rate limit exceeded", "client", clientKey(c), "path", c.Path())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests.",
			})
		},
	})
}

func clientKey(c *fiber.Ctx) string {
	sum := sha256.Sum256([]byte(c.IP() + c.Get(fiber.HeaderUserAgent)))
	return hex.EncodeToString(sum[:])
}
