// Package api serves the dashboard page, its panel fragments and the live
// viewer websocket.
package api

import (
	"context"
	"fmt"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// APIModule is the HTTP module with WebSocket support.
type APIModule struct {
	app     *fiber.App
	port    string
	logger  types.Logger
	view    Dashboard
	search  SearchInput
	toasts  Notifications
	channel ChannelControl
	linker  ChatLinker
	hub     Viewers
}

// Compile-time interface checks.
var _ mono.Module = (*APIModule)(nil)
var _ mono.HealthCheckableModule = (*APIModule)(nil)

// NewModule creates a new APIModule listening on port.
func NewModule(port string, logger types.Logger) *APIModule {
	if port == "" {
		port = "3000"
	}
	return &APIModule{
		port:   port,
		logger: logger,
	}
}

// Name returns the module name.
func (m *APIModule) Name() string {
	return "api"
}

// SetDashboard sets the view service (called from main.go).
func (m *APIModule) SetDashboard(d Dashboard) {
	m.view = d
}

// SetSearch sets the search controller.
func (m *APIModule) SetSearch(s SearchInput) {
	m.search = s
}

// SetNotifications sets the toaster.
func (m *APIModule) SetNotifications(n Notifications) {
	m.toasts = n
}

// SetChannel sets the live update channel.
func (m *APIModule) SetChannel(c ChannelControl) {
	m.channel = c
}

// SetChatLinker sets the upstream chat URL builder.
func (m *APIModule) SetChatLinker(l ChatLinker) {
	m.linker = l
}

// SetHub sets the broadcast hub.
func (m *APIModule) SetHub(hub Viewers) {
	m.hub = hub
}

func (m *APIModule) checkDependencies() error {
	switch {
	case m.view == nil:
		return fmt.Errorf("dashboard dependency not set")
	case m.search == nil:
		return fmt.Errorf("search dependency not set")
	case m.toasts == nil:
		return fmt.Errorf("notifications dependency not set")
	case m.channel == nil:
		return fmt.Errorf("channel dependency not set")
	case m.linker == nil:
		return fmt.Errorf("chat linker dependency not set")
	case m.hub == nil:
		return fmt.Errorf("broadcast hub dependency not set")
	}
	return nil
}

// Start initializes the Fiber HTTP server.
func (m *APIModule) Start(_ context.Context) error {
	if err := m.checkDependencies(); err != nil {
		return err
	}

	m.app = m.newApp()

	errChan := make(chan error, 1)
	go func() {
		if err := m.app.Listen(":" + m.port); err != nil {
			errChan <- err
		}
	}()

	// Catch immediate bind failures.
	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	m.logger.Info("HTTP server started", "port", m.port)
	return nil
}

func (m *APIModule) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
		IdleTimeout:           120 * time.Second,
	})

	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(m.loggerMiddleware())

	m.setupRoutes(app)
	return app
}

// Stop shuts down the Fiber HTTP server.
func (m *APIModule) Stop(ctx context.Context) error {
	if m.app == nil {
		return nil
	}
	m.logger.Info("Shutting down HTTP server")
	return m.app.ShutdownWithContext(ctx)
}

// Health returns the health status.
func (m *APIModule) Health(_ context.Context) mono.HealthStatus {
	details := map[string]any{"port": m.port}
	if m.hub != nil {
		details["connected_viewers"] = m.hub.ClientCount()
	}
	return mono.HealthStatus{
		Healthy: m.app != nil,
		Message: "operational",
		Details: details,
	}
}

// customErrorHandler handles Fiber errors.
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:   "server_error",
		Message: message,
	})
}

// loggerMiddleware returns a Fiber middleware for request logging.
func (m *APIModule) loggerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Skip logging for WebSocket upgrade requests
		if c.Get("Upgrade") == "websocket" {
			return c.Next()
		}
		start := time.Now()
		err := c.Next()
		m.logger.Debug("HTTP request",
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"duration", time.Since(start).String())
		return err
	}
}
