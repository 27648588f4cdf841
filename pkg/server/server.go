package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/rs/zerolog"

	"github.com/openfroyo/sketcher/pkg/config"
	"github.com/openfroyo/sketcher/pkg/engine"
	"github.com/openfroyo/sketcher/pkg/telemetry"
)

// Server exposes an Engine over HTTP.
type Server struct {
	app      *fiber.App
	engine   *engine.Engine
	cfg      config.ServerConfig
	validate *validator.Validate
	logger   zerolog.Logger
	events   *telemetry.EventLog
}

// eventLogSize is the number of recent events kept for /v1/events.
const eventLogSize = 512

// New creates a server for eng with its routes registered.
func New(eng *engine.Engine, cfg config.ServerConfig) *Server {
	s := &Server{
		engine:   eng,
		cfg:      cfg,
		validate: validator.New(),
		logger:   eng.Telemetry().Logger.NewComponentLogger("server").Zerolog(),
		events:   telemetry.NewEventLog(eventLogSize),
	}
	eng.Telemetry().Events.Subscribe(s.events.Record, nil)

	s.app = fiber.New(fiber.Config{
		AppName:      "sketcher",
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		BodyLimit:    cfg.BodyLimit,
		ErrorHandler: s.handleError,
	})

	s.app.Use(recover.New())
	s.app.Use(requestid.New())
	s.app.Use(s.requestLogger())

	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/health/live", s.live)
	s.app.Get("/health/ready", s.ready)
	s.app.Get("/metrics", adaptor.HTTPHandler(s.engine.Telemetry().Metrics.Handler()))

	v1 := s.app.Group("/v1")
	v1.Post("/solve", s.solve)
	v1.Post("/validate", s.validateScript)
	v1.Post("/lint", s.lint)
	v1.Post("/format", s.format)
	v1.Post("/graph", s.graph)
	v1.Get("/policies", s.listPolicies)
	v1.Get("/events", s.listEvents)

	docs := v1.Group("/documents")
	docs.Post("/", s.createDocument)
	docs.Get("/", s.listDocuments)
	docs.Get("/:id", s.getDocument)
	docs.Delete("/:id", s.deleteDocument)
	docs.Post("/:id/revisions", s.commit)
	docs.Get("/:id/revisions", s.listRevisions)
	docs.Get("/:id/revisions/:seq", s.getRevision)
	docs.Post("/:id/undo", s.undo)
}

// App returns the underlying fiber application.
func (s *Server) App() *fiber.App { return s.app }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("address", s.cfg.Address).Msg("Server listening")
		errCh <- s.app.Listen(s.cfg.Address, fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info().Dur("timeout", s.cfg.ShutdownTimeout).Msg("Shutting down server")
	if err := s.app.ShutdownWithTimeout(s.cfg.ShutdownTimeout); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error  *engine.Error `json:"error"`
	Result interface{}   `json:"result,omitempty"`
}

// handleError renders errors returned by handlers.
func (s *Server) handleError(c fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code := engine.ErrCodeInternal
		switch {
		case fe.Code == fiber.StatusNotFound:
			code = engine.ErrCodeNotFound
		case fe.Code < fiber.StatusInternalServerError:
			code = engine.ErrCodeInvalidRequest
		}
		return c.Status(fe.Code).JSON(errorResponse{Error: engine.NewError(code, fe.Message, nil)})
	}

	var re *resultError
	if errors.As(err, &re) {
		ee := engine.Classify(re.err)
		return c.Status(ee.HTTPStatus()).JSON(errorResponse{Error: ee, Result: re.result})
	}

	ee := engine.Classify(err)
	return c.Status(ee.HTTPStatus()).JSON(errorResponse{Error: ee})
}

// resultError carries a partial result, such as a non-converged solve,
// into the error response.
type resultError struct {
	err    error
	result interface{}
}

func (e *resultError) Error() string { return e.err.Error() }

func (e *resultError) Unwrap() error { return e.err }

func (s *Server) requestLogger() fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if err != nil {
			if herr := s.handleError(c, err); herr != nil {
				return herr
			}
		}

		status := c.Response().StatusCode()
		ev := s.logger.Info()
		switch {
		case status >= fiber.StatusInternalServerError:
			ev = s.logger.Error().Err(err)
		case status >= fiber.StatusBadRequest:
			ev = s.logger.Warn().Err(err)
		}
		ev.Str("request_id", requestid.FromContext(c)).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("Request handled")
		return nil
	}
}
