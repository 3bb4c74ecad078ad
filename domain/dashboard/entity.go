package dashboard

import (
	"strings"
	"time"
)

// UnknownUser is shown in place of a missing username.
const UnknownUser = "Unknown"

// Direction classifies a message as seen from the support side.
type Direction string

// Message directions.
const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
	DirectionUnknown  Direction = "unknown"
)

// ChatRecord is one entry of the active or closed chat list.
type ChatRecord struct {
	Username     string `json:"username"`
	ChatID       int64  `json:"chat_id"`
	LastActivity string `json:"last_activity"`
}

// ChatStats is the chat section of a stats payload.
type ChatStats struct {
	ActiveChats    int          `json:"active_chats"`
	ClosedChats    int          `json:"closed_chats"`
	TotalUsers     int          `json:"total_users"`
	ActiveChatList []ChatRecord `json:"active_chat_list,omitempty"`
	ClosedChatList []ChatRecord `json:"closed_chat_list,omitempty"`
}

// StatsSnapshot is the full-state update delivered by the push channel
// and by GET /api/stats.
type StatsSnapshot struct {
	ChatStats     *ChatStats `json:"chat_stats,omitempty"`
	TotalMessages int        `json:"total_messages"`
	IncomingCount int        `json:"incoming_count"`
	OutgoingCount int        `json:"outgoing_count"`
	Shift         string     `json:"shift,omitempty"`
	Timestamp     string     `json:"timestamp,omitempty"`
}

// Counters holds the four headline numbers of the dashboard.
type Counters struct {
	ActiveChats   int `json:"active_chats"`
	ClosedChats   int `json:"closed_chats"`
	TotalUsers    int `json:"total_users"`
	TotalMessages int `json:"total_messages"`
}

// Counters returns the headline numbers. Absent sections count as zero.
func (s *StatsSnapshot) Counters() Counters {
	if s == nil {
		return Counters{}
	}
	c := Counters{TotalMessages: s.TotalMessages}
	if s.ChatStats != nil {
		c.ActiveChats = s.ChatStats.ActiveChats
		c.ClosedChats = s.ChatStats.ClosedChats
		c.TotalUsers = s.ChatStats.TotalUsers
	}
	return c
}

// MessageRecord is one message of the recent list or of search results.
// All fields are untrusted text.
type MessageRecord struct {
	Username    string `json:"username"`
	Message     string `json:"message"`
	Timestamp   string `json:"timestamp"`
	ChatID      int64  `json:"chat_id"`
	Type        string `json:"type,omitempty"`
	MessageType string `json:"message_type,omitempty"`
}

// Direction resolves the message direction. "type" wins over "message_type".
func (m MessageRecord) Direction() Direction {
	kind := m.Type
	if kind == "" {
		kind = m.MessageType
	}
	switch Direction(kind) {
	case DirectionIncoming:
		return DirectionIncoming
	case DirectionOutgoing:
		return DirectionOutgoing
	default:
		return DirectionUnknown
	}
}

// MessagesResponse is the body of GET /api/recent-messages.
type MessagesResponse struct {
	Messages []MessageRecord `json:"messages"`
}

// SearchResponse is the body of GET /search.
type SearchResponse struct {
	Results []MessageRecord `json:"results"`
}

// IsUnknownUser reports whether name is empty or the unknown placeholder.
func IsUnknownUser(name string) bool {
	name = strings.TrimSpace(name)
	return name == "" || strings.EqualFold(name, UnknownUser)
}

// ConnectionState is the push channel state.
type ConnectionState string

// Push channel states.
const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
	StateFailed       ConnectionState = "failed"
)

// ConnectionStatus is what the status indicator shows.
type ConnectionStatus struct {
	State       ConnectionState `json:"state"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"max_attempts"`
	Text        string          `json:"text"`
}

// Online reports whether the indicator shows the online style.
func (s ConnectionStatus) Online() bool {
	return s.State == StateConnected
}

// Severity selects the icon and style of a notification.
type Severity string

// Notification severities.
const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Notification is one toast.
type Notification struct {
	ID       string        `json:"id"`
	Message  string        `json:"message"`
	Severity Severity      `json:"severity"`
	Lifetime time.Duration `json:"lifetime"`
	Created  time.Time     `json:"created"`
	Retiring bool          `json:"retiring"`
}

// Persistent reports whether the notification stays until dismissed.
func (n Notification) Persistent() bool {
	return n.Lifetime <= 0
}

// Icon returns the icon name for the severity. Unknown severities use the
// info icon.
func (s Severity) Icon() string {
	switch s {
	case SeveritySuccess:
		return "check-circle"
	case SeverityError:
		return "exclamation-triangle"
	case SeverityWarning:
		return "exclamation-circle"
	default:
		return "info-circle"
	}
}
