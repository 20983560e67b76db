package fixture

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/birbparty/birb-call/internal/telemetry"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/sirupsen/logrus"
)

// Version is reported by the health and root endpoints.
const Version = "1.0.0"

// Server is a JWT-protected API used to exercise the client end to end:
// tokens expire or get revoked on demand, items support CRUD, and uploads
// and downloads go through multipart and Content-Disposition.
type Server struct {
	cfg      *Config
	app      *fiber.App
	tokens   *TokenIssuer
	items    *ItemStore
	files    *FileStore
	metrics  *telemetry.Metrics
	logger   logrus.FieldLogger
	validate *validator.Validate
	started  time.Time
}

// New builds the fiber app. A nil metrics gets a private registry and a nil
// logger selects the telemetry logger.
func New(cfg *Config, metrics *telemetry.Metrics, logger logrus.FieldLogger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if metrics == nil {
		metrics = telemetry.NewMetrics()
	}
	if logger == nil {
		logger = telemetry.L()
	}

	s := &Server{
		cfg:      cfg,
		tokens:   NewTokenIssuer(cfg),
		items:    NewItemStore(),
		files:    NewFileStore(StoredFile{Name: "hello.txt", ContentType: "text/plain; charset=utf-8", Data: []byte("hello from birb-call\n")}),
		metrics:  metrics,
		logger:   logger.WithField("component", "fixture"),
		validate: validator.New(),
		started:  time.Now(),
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "birb-call fixture API",
		ErrorHandler:          s.errorHandler,
		BodyLimit:             cfg.MaxUploadBytes,
		ReadTimeout:           time.Duration(cfg.RequestTimeout) * time.Second,
		WriteTimeout:          time.Duration(cfg.RequestTimeout) * time.Second,
		IdleTimeout:           120 * time.Second,
		UnescapePath:          true,
		DisableStartupMessage: true,
	})

	SetupMiddleware(s.app, s.metrics, s.logger)
	SetupRoutes(s.app, s)
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Handler exposes the app as a net/http handler, for httptest servers.
func (s *Server) Handler() http.Handler {
	return adaptor.FiberApp(s.app)
}

// Tokens returns the token issuer.
func (s *Server) Tokens() *TokenIssuer {
	return s.tokens
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *telemetry.Metrics {
	return s.metrics
}

// RevokeAll invalidates every access token issued so far.
func (s *Server) RevokeAll() int64 {
	gen := s.tokens.RevokeAll()
	s.metrics.RecordRevocation()
	s.logger.WithField("generation", gen).Info("access tokens revoked")
	return gen
}

// Listen serves on the configured host and port until Shutdown.
func (s *Server) Listen() error {
	return s.app.Listen(fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port))
}

// Shutdown stops accepting connections and waits for active requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.metrics.SetServiceDown()
	return s.app.ShutdownWithContext(ctx)
}

// errorHandler renders errors returned by handlers as ErrorResponse.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"
	errCode := ErrCodeInternalError

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	switch code {
	case fiber.StatusNotFound:
		errCode = ErrCodeNotFound
	case fiber.StatusBadRequest:
		errCode = ErrCodeInvalidRequest
	case fiber.StatusUnauthorized:
		errCode = ErrCodeUnauthorized
	case fiber.StatusRequestEntityTooLarge:
		errCode = ErrCodeTooLarge
	}

	if code >= fiber.StatusInternalServerError {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"path":   c.Path(),
			"method": c.Method(),
		}).Error("request failed")
	}

	return c.Status(code).JSON(NewErrorResponse(message, errCode))
}
