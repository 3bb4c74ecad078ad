package api

import (
	"context"
	"html/template"

	"github.com/example/pulse-dashboard/domain/dashboard"
	"github.com/example/pulse-dashboard/modules/broadcast"
	"github.com/example/pulse-dashboard/modules/view"
)

// Dashboard is the part of the view service the HTTP surface reads from.
type Dashboard interface {
	Panel(name string) (template.HTML, bool)
	Snapshot() view.Snapshot
	Reload(ctx context.Context) error
}

// SearchInput receives search box keystrokes.
type SearchInput interface {
	Input(value string)
}

// Notifications dismisses toasts by id.
type Notifications interface {
	Dismiss(id string) bool
}

// ChannelControl restarts the live update channel.
type ChannelControl interface {
	Reload() bool
	Status() dashboard.ConnectionStatus
}

// ChatLinker builds upstream chat page URLs.
type ChatLinker interface {
	ChatURL(chatPath string) string
}

// Viewers tracks attached live viewers.
type Viewers interface {
	Register(client *broadcast.Client)
	Unregister(client *broadcast.Client)
	ClientCount() int
}

// SearchRequest is the body of POST /search.
type SearchRequest struct {
	Query string `json:"q"`
}

// SearchAccepted is returned once input is handed to the debouncer.
type SearchAccepted struct {
	Status string `json:"status"`
	Query  string `json:"q"`
}

// ReloadResponse is the API response for a manual reload.
type ReloadResponse struct {
	ChannelRestarted bool                       `json:"channel_restarted"`
	Connection       dashboard.ConnectionStatus `json:"connection"`
}

// ErrorResponse is the API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse is the API health check response.
type HealthResponse struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}
