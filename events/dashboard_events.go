package events

import (
	"time"

	"github.com/example/pulse-dashboard/domain/dashboard"
	"github.com/go-monolith/mono/pkg/helper"
)

// Stats sources.
const (
	SourcePush = "push"
	SourcePoll = "poll"
)

// StatsUpdatedEvent carries a full-state stats overwrite.
type StatsUpdatedEvent struct {
	Source     string                  `json:"source"`
	Stats      dashboard.StatsSnapshot `json:"stats"`
	ReceivedAt time.Time               `json:"received_at"`
}

// ChatMessageReceivedEvent is a new chat message announced by the server.
type ChatMessageReceivedEvent struct {
	Username    string    `json:"username"`
	Message     string    `json:"message"`
	MessageType string    `json:"message_type,omitempty"`
	ReceivedAt  time.Time `json:"received_at"`
}

// Channel frame kinds.
const (
	FrameStats      = "stats"
	FrameNewMessage = "new_message"
	FrameStatus     = "status"
)

// ChannelFrameEvent is everything the push channel delivers, in arrival
// order on a single subject. Exactly one payload is set, matching Kind.
type ChannelFrameEvent struct {
	Kind       string                      `json:"kind"`
	Stats      *dashboard.StatsSnapshot    `json:"stats,omitempty"`
	Message    *ChatMessageReceivedEvent   `json:"message,omitempty"`
	Status     *dashboard.ConnectionStatus `json:"status,omitempty"`
	ReceivedAt time.Time                   `json:"received_at"`
}

// PanelChangedEvent is emitted when a dashboard panel was re-rendered.
type PanelChangedEvent struct {
	Panel     string    `json:"panel"`
	HTML      string    `json:"html"`
	Timestamp time.Time `json:"timestamp"`
}

// Event definitions for the dashboard.
var (
	ChannelFrameV1 = helper.EventDefinition[ChannelFrameEvent](
		"channel",
		"ChannelFrame",
		"v1",
	)

	StatsPolledV1 = helper.EventDefinition[StatsUpdatedEvent](
		"poller",
		"StatsPolled",
		"v1",
	)

	PanelChangedV1 = helper.EventDefinition[PanelChangedEvent](
		"view",
		"PanelChanged",
		"v1",
	)
)
