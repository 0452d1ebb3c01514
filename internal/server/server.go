package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Server wraps a Fiber application bound to one listen address. Both the
// wallet API and the projector's read API are built through it.
type Server struct {
	app  *fiber.App
	addr string
}

// New instantiates the HTTP server and delegates route wiring to setup.
func New(appName, addr string, setup func(app *fiber.App) error) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      appName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	if err := setup(app); err != nil {
		return nil, err
	}

	return &Server{app: app, addr: addr}, nil
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.addr)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
