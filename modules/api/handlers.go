package api

import (
	"net/url"
	"strings"
	"time"

	"github.com/example/pulse-dashboard/modules/broadcast"
	"github.com/example/pulse-dashboard/modules/render"
	"github.com/example/pulse-dashboard/modules/view"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/google/uuid"
)

const (
	maxQueryLength = 256
	// Keystrokes per client per second accepted by POST /search.
	searchBurst = 20
)

// setupRoutes configures all HTTP routes.
func (m *APIModule) setupRoutes(app *fiber.App) {
	app.Get("/health", m.healthHandler)

	app.Get("/", m.pageHandler)
	app.Get("/fragments/:panel", m.fragmentHandler)
	app.Get("/api/view", m.snapshotHandler)

	app.Post("/search", limiter.New(limiter.Config{
		Max:        searchBurst,
		Expiration: time.Second,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(ErrorResponse{
				Error:   "rate_limited",
				Message: "Rate limit exceeded, please slow down",
			})
		},
	}), m.searchHandler)
	app.Delete("/notifications/:id", m.dismissHandler)
	app.Get("/open/:username", m.openChatHandler)
	app.Post("/reload", m.reloadHandler)

	// Live viewer endpoint
	app.Use("/live", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/live", websocket.New(m.handleLive))
}

// healthHandler handles GET /health.
func (m *APIModule) healthHandler(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status: "healthy",
		Details: map[string]any{
			"module":            "api",
			"connection":        m.channel.Status().Text,
			"connected_viewers": m.hub.ClientCount(),
		},
	})
}

// pageHandler handles GET /.
func (m *APIModule) pageHandler(c *fiber.Ctx) error {
	page, err := renderPage(m.view)
	if err != nil {
		m.logger.Error("Failed to render page", "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to render page")
	}
	c.Type("html", "utf-8")
	return c.SendString(page)
}

// fragmentHandler handles GET /fragments/:panel.
func (m *APIModule) fragmentHandler(c *fiber.Ctx) error {
	html, ok := m.view.Panel(c.Params("panel"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: "Unknown panel",
		})
	}
	c.Type("html", "utf-8")
	return c.SendString(string(html))
}

// snapshotHandler handles GET /api/view.
func (m *APIModule) snapshotHandler(c *fiber.Ctx) error {
	return c.JSON(m.view.Snapshot())
}

// searchHandler handles POST /search.
func (m *APIModule) searchHandler(c *fiber.Ctx) error {
	var req SearchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
	}

	if len(req.Query) > maxQueryLength {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "validation_error",
			Message: "Query too long (max 256 bytes)",
		})
	}

	m.search.Input(req.Query)
	return c.Status(fiber.StatusAccepted).JSON(SearchAccepted{
		Status: "accepted",
		Query:  req.Query,
	})
}

// dismissHandler handles DELETE /notifications/:id.
func (m *APIModule) dismissHandler(c *fiber.Ctx) error {
	if !m.toasts.Dismiss(c.Params("id")) {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: "Notification not found",
		})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// openChatHandler handles GET /open/:username.
func (m *APIModule) openChatHandler(c *fiber.Ctx) error {
	username, err := url.PathUnescape(c.Params("username"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid username",
		})
	}
	path, ok := render.ChatPath(username)
	if !ok {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.Redirect(m.linker.ChatURL(path), fiber.StatusFound)
}

// reloadHandler handles POST /reload.
func (m *APIModule) reloadHandler(c *fiber.Ctx) error {
	restarted := m.channel.Reload()
	if err := m.view.Reload(c.UserContext()); err != nil {
		m.logger.Warn("Manual reload incomplete", "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{
			Error:   "reload_failed",
			Message: "Upstream service unavailable",
		})
	}
	return c.JSON(ReloadResponse{
		ChannelRestarted: restarted,
		Connection:       m.channel.Status(),
	})
}

// handleLive streams panel updates to a viewer at /live.
func (m *APIModule) handleLive(c *websocket.Conn) {
	client := m.newViewer(uuid.NewString(), c, c.Query("panels"))

	m.hub.Register(client)
	defer func() {
		m.hub.Unregister(client)
		m.logger.Info("Viewer disconnected", "client", client.ID)
	}()

	m.logger.Info("Viewer connected", "client", client.ID, "panels", c.Query("panels"))

	// Viewers only listen; reads detect the close.
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.logger.Debug("Viewer read error", "client", client.ID, "error", err)
			}
			return
		}
	}
}

// newViewer builds a hub client whose initial panels are read when the hub
// registers it, so no panel change can fall between snapshot and subscription.
func (m *APIModule) newViewer(id string, conn broadcast.Conn, panels string) *broadcast.Client {
	client := &broadcast.Client{
		ID:     id,
		Conn:   conn,
		Panels: parsePanels(panels),
	}
	client.Snapshot = func() []broadcast.Frame {
		frames := make([]broadcast.Frame, 0, len(view.Panels))
		for _, name := range view.Panels {
			if !client.Wants(name) {
				continue
			}
			html, _ := m.view.Panel(name)
			frames = append(frames, broadcast.Frame{Panel: name, HTML: string(html)})
		}
		return frames
	}
	return client
}

// parsePanels turns "stats,chats" into a subscription set. Unknown names are
// dropped; nil means every panel.
func parsePanels(raw string) map[string]bool {
	if raw == "" {
		return nil
	}
	known := make(map[string]bool, len(view.Panels))
	for _, name := range view.Panels {
		known[name] = true
	}
	panels := make(map[string]bool)
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		if known[name] {
			panels[name] = true
		}
	}
	if len(panels) == 0 {
		return nil
	}
	return panels
}
