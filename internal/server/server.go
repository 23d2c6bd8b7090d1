// Package server exposes the assistant as a small JSON HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/mwiater/coachrag/internal/logging"
	"github.com/mwiater/coachrag/internal/metrics"
	"github.com/mwiater/coachrag/internal/rag"
)

// Server wraps a fiber app bound to one assistant.
type Server struct {
	app *fiber.App
}

// Options tunes the HTTP layer.
type Options struct {
	// MaxK caps the k a caller may request. Zero means 50.
	MaxK int
	// BodyLimit caps request bodies in bytes. Zero uses fiber's default.
	BodyLimit int
	// Metrics receives per-request statistics. Nil keeps them in memory only.
	Metrics *metrics.Aggregator
}

// New builds the routes for assistant.
func New(assistant *rag.Assistant, opts Options) *Server {
	if opts.MaxK <= 0 {
		opts.MaxK = 50
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewAggregator("")
	}
	cfg := fiber.Config{
		AppName:               "coachrag",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	}
	if opts.BodyLimit > 0 {
		cfg.BodyLimit = opts.BodyLimit
	}
	s := &Server{app: fiber.New(cfg)}
	s.app.Use(recover.New())
	s.app.Use(requestLogger)
	RegisterRoutes(s.app, NewHandler(assistant, opts.Metrics, opts.MaxK))
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Listen(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.app.Listen(addr) }()
	logging.LogEvent("[HTTP] Listening on %s", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	}
}

func requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	status := c.Response().StatusCode()
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	}
	logging.LogEvent("[HTTP] %s %s %d %s", c.Method(), c.Path(), status, time.Since(start).Truncate(time.Microsecond))
	return err
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := http.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
