package fixture

import (
	"errors"
	"strings"

	"github.com/birbparty/birb-call/internal/telemetry"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"
)

// LocalSubject is the fiber.Ctx local holding the authenticated subject.
const LocalSubject = "subject"

// SetupMiddleware configures all middleware for the application
func SetupMiddleware(app *fiber.App, metrics *telemetry.Metrics, logger logrus.FieldLogger) {
	// Request ID middleware
	app.Use(requestid.New())

	// Recover middleware
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// Tracing and request metrics
	app.Use(telemetry.FiberMetricsMiddleware(metrics, telemetry.Tracer()))

	// Structured request logging
	app.Use(telemetry.FiberLoggingMiddleware(logger))
}

// RequireBearer rejects requests without a valid access token with a 401
// the client recognises as an expired token.
func RequireBearer(tokens *TokenIssuer, metrics *telemetry.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		auth := c.Get(fiber.HeaderAuthorization)
		token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		if !strings.HasPrefix(auth, "Bearer ") || token == "" || token == "null" {
			return reject(c, metrics, "missing", "missing bearer token")
		}

		claims, err := tokens.Verify(token)
		switch {
		case err == nil:
		case errors.Is(err, ErrTokenRevoked):
			return reject(c, metrics, "revoked", "token revoked")
		case errors.Is(err, jwt.ErrTokenExpired):
			return reject(c, metrics, "expired", "token expired")
		default:
			return reject(c, metrics, "invalid", "invalid token")
		}

		c.Locals(LocalSubject, claims.Subject)
		return c.Next()
	}
}

func reject(c *fiber.Ctx, metrics *telemetry.Metrics, reason, message string) error {
	metrics.RecordTokenRejected(reason)
	c.Set(fiber.HeaderWWWAuthenticate, `Bearer error="invalid_token"`)
	return c.Status(fiber.StatusUnauthorized).JSON(NewErrorResponse(message, ErrCodeUnauthorized))
}

func subject(c *fiber.Ctx) string {
	s, _ := c.Locals(LocalSubject).(string)
	return s
}
