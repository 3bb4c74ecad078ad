// Package render turns dashboard payloads into HTML fragments.
//
// Every renderer accepts partial or absent payloads and falls back to an
// explicit empty state. Untrusted text goes through Escape and Truncate
// before it reaches a template.
package render

import (
	"bytes"
	"html/template"

	"github.com/example/pulse-dashboard/domain/dashboard"
)

// ClosedChatsShown caps the closed chats listed next to the active ones.
const ClosedChatsShown = 5

// Renderer renders dashboard fragments.
type Renderer struct {
	limit int
}

// New creates a Renderer truncating text fields at limit runes.
// A non-positive limit selects DefaultTruncateLimit.
func New(limit int) *Renderer {
	if limit <= 0 {
		limit = DefaultTruncateLimit
	}
	return &Renderer{limit: limit}
}

// StatsView is the rendered form of a stats snapshot.
type StatsView struct {
	dashboard.Counters
	CountersHTML template.HTML `json:"counters_html"`
	// HasChats is false when the payload carried no chat section; the chats
	// panel should then be left as it is.
	HasChats bool          `json:"has_chats"`
	Chats    template.HTML `json:"chats,omitempty"`
}

// Stats renders a stats snapshot. Missing counters are zero.
func (r *Renderer) Stats(s *dashboard.StatsSnapshot) StatsView {
	counters := s.Counters()
	view := StatsView{Counters: counters, CountersHTML: r.Counters(counters)}
	if s != nil && s.ChatStats != nil {
		view.HasChats = true
		view.Chats = r.Chats(s.ChatStats)
	}
	return view
}

// Counters renders the four headline numbers.
func (r *Renderer) Counters(c dashboard.Counters) template.HTML {
	return execute("counters", c)
}

type messageItem struct {
	Kind     dashboard.Direction
	Href     string
	Icon     string
	Tone     string
	Username template.HTML
	ChatID   int64
	Time     string
	Text     template.HTML
}

func (r *Renderer) messageItems(records []dashboard.MessageRecord) []messageItem {
	items := make([]messageItem, 0, len(records))
	for _, rec := range records {
		item := messageItem{
			Kind:     rec.Direction(),
			Icon:     "arrow-up",
			Tone:     "tone-success",
			Username: template.HTML(Escape(displayName(rec.Username))),
			ChatID:   rec.ChatID,
			Time:     FormatTime(rec.Timestamp),
			Text:     template.HTML(Escape(Truncate(rec.Message, r.limit))),
		}
		if item.Kind == dashboard.DirectionIncoming {
			item.Icon = "arrow-down"
			item.Tone = "tone-info"
		}
		if href, ok := ChatPath(rec.Username); ok {
			item.Href = href
		}
		items = append(items, item)
	}
	return items
}

// Messages renders the recent messages list.
func (r *Renderer) Messages(records []dashboard.MessageRecord) template.HTML {
	if len(records) == 0 {
		return emptyState("inbox", "No messages")
	}
	return execute("messages", r.messageItems(records))
}

// SearchResults renders search results in place of the message list.
func (r *Renderer) SearchResults(records []dashboard.MessageRecord) template.HTML {
	if len(records) == 0 {
		return emptyState("search", "Nothing found")
	}
	return execute("messages", r.messageItems(records))
}

type chatItem struct {
	Href     string
	Username template.HTML
	ChatID   int64
	Time     string
}

type chatList struct {
	Active []chatItem
	Closed []chatItem
}

func chatItems(records []dashboard.ChatRecord) []chatItem {
	items := make([]chatItem, 0, len(records))
	for _, rec := range records {
		item := chatItem{
			Username: template.HTML(Escape(displayName(rec.Username))),
			ChatID:   rec.ChatID,
			Time:     FormatTime(rec.LastActivity),
		}
		if href, ok := ChatPath(rec.Username); ok {
			item.Href = href
		}
		items = append(items, item)
	}
	return items
}

// Chats renders active chats followed by at most ClosedChatsShown closed
// chats.
func (r *Renderer) Chats(stats *dashboard.ChatStats) template.HTML {
	if stats == nil {
		return emptyState("comments", "No chats")
	}
	closed := stats.ClosedChatList
	if len(closed) > ClosedChatsShown {
		closed = closed[:ClosedChatsShown]
	}
	list := chatList{
		Active: chatItems(stats.ActiveChatList),
		Closed: chatItems(closed),
	}
	if len(list.Active) == 0 && len(list.Closed) == 0 {
		return emptyState("comments", "No chats")
	}
	return execute("chats", list)
}

type notificationItem struct {
	ID       string
	Severity dashboard.Severity
	Icon     string
	Message  template.HTML
	Retiring bool
}

// Notifications renders the toast container.
func (r *Renderer) Notifications(list []dashboard.Notification) template.HTML {
	items := make([]notificationItem, 0, len(list))
	for _, n := range list {
		items = append(items, notificationItem{
			ID:       n.ID,
			Severity: n.Severity,
			Icon:     n.Severity.Icon(),
			Message:  template.HTML(Escape(n.Message)),
			Retiring: n.Retiring,
		})
	}
	return execute("notifications", items)
}

// ConnectionStatus renders the status indicator.
func (r *Renderer) ConnectionStatus(status dashboard.ConnectionStatus) template.HTML {
	return execute("status", status)
}

func emptyState(icon, text string) template.HTML {
	return execute("empty", struct {
		Icon string
		Text string
	}{Icon: icon, Text: text})
}

func execute(name string, data any) template.HTML {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return template.HTML(`<div class="empty-state render-error"></div>`)
	}
	return template.HTML(buf.String())
}
