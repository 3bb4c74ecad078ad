// Package view owns the dashboard panels and keeps them in sync with push,
// poll and search updates.
package view

import (
	"context"
	"fmt"
	"html/template"
	"sync"
	"time"

	"github.com/example/pulse-dashboard/domain/dashboard"
	"github.com/example/pulse-dashboard/modules/render"
	"github.com/example/pulse-dashboard/modules/toast"
	"github.com/go-monolith/mono/pkg/types"
	"golang.org/x/sync/singleflight"
)

// Panel names.
const (
	PanelStats         = "stats"
	PanelChats         = "chats"
	PanelMessages      = "messages"
	PanelNotifications = "notifications"
	PanelStatus        = "status"
)

// Panels lists every panel name.
var Panels = []string{PanelStats, PanelChats, PanelMessages, PanelNotifications, PanelStatus}

// SystemTitle is the title of OS-level notifications for new messages.
const SystemTitle = "New PulseAI message"

// API is the part of the upstream client the view needs.
type API interface {
	Stats(ctx context.Context) (*dashboard.StatsSnapshot, error)
	RecentMessages(ctx context.Context) ([]dashboard.MessageRecord, error)
}

// Snapshot is the JSON form of the dashboard state.
type Snapshot struct {
	Counters       dashboard.Counters         `json:"counters"`
	Stats          *dashboard.StatsSnapshot   `json:"stats,omitempty"`
	StatsSource    string                     `json:"stats_source,omitempty"`
	StatsUpdatedAt time.Time                  `json:"stats_updated_at,omitempty"`
	Messages       []dashboard.MessageRecord  `json:"messages"`
	SearchQuery    string                     `json:"search_query,omitempty"`
	SearchResults  []dashboard.MessageRecord  `json:"search_results,omitempty"`
	Connection     dashboard.ConnectionStatus `json:"connection"`
	Notifications  []dashboard.Notification   `json:"notifications"`
}

// Service holds the rendered panels. It is safe for concurrent use; stats
// updates are full overwrites, so the last writer wins.
type Service struct {
	renderer *render.Renderer
	api      API
	toaster  *toast.Toaster
	notifier toast.SystemNotifier
	logger   types.Logger
	timeout  time.Duration
	sf       singleflight.Group

	mu        sync.RWMutex
	state     Snapshot
	panels    map[string]template.HTML
	listeners []func(panel string, html template.HTML)
}

// NewService creates the view service and subscribes it to toaster changes.
func NewService(renderer *render.Renderer, api API, toaster *toast.Toaster, notifier toast.SystemNotifier, logger types.Logger) *Service {
	s := &Service{
		renderer: renderer,
		api:      api,
		toaster:  toaster,
		notifier: notifier,
		logger:   logger,
		timeout:  10 * time.Second,
		panels:   make(map[string]template.HTML, len(Panels)),
	}
	s.state.Connection = dashboard.ConnectionStatus{State: dashboard.StateDisconnected, Text: "Disconnected"}

	s.panels[PanelStats] = renderer.Counters(dashboard.Counters{})
	s.panels[PanelChats] = renderer.Chats(nil)
	s.panels[PanelMessages] = renderer.Messages(nil)
	s.panels[PanelNotifications] = renderer.Notifications(nil)
	s.panels[PanelStatus] = renderer.ConnectionStatus(s.state.Connection)

	toaster.OnChange(s.SetNotifications)
	return s
}

// OnPanelChange registers fn to receive every re-rendered panel.
func (s *Service) OnPanelChange(fn func(panel string, html template.HTML)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Panel returns the current HTML of a panel.
func (s *Service) Panel(name string) (template.HTML, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	html, ok := s.panels[name]
	return html, ok
}

// Snapshot returns a copy of the dashboard state.
func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.state
	snap.Messages = append([]dashboard.MessageRecord(nil), s.state.Messages...)
	snap.SearchResults = append([]dashboard.MessageRecord(nil), s.state.SearchResults...)
	snap.Notifications = append([]dashboard.Notification(nil), s.state.Notifications...)
	return snap
}

// ApplyStats renders a stats overwrite. The chats panel is kept when the
// snapshot carries no chat section.
func (s *Service) ApplyStats(source string, stats dashboard.StatsSnapshot) {
	view := s.renderer.Stats(&stats)

	s.mu.Lock()
	s.state.Stats = &stats
	s.state.Counters = view.Counters
	s.state.StatsSource = source
	s.state.StatsUpdatedAt = time.Now()
	changed := []string{PanelStats}
	s.panels[PanelStats] = view.CountersHTML
	if view.HasChats {
		s.panels[PanelChats] = view.Chats
		changed = append(changed, PanelChats)
	}
	s.mu.Unlock()

	s.emit(changed...)
}

// RefreshStats fetches stats over the API and applies them. Concurrent calls
// share one request.
func (s *Service) RefreshStats(ctx context.Context) error {
	_, err, _ := s.sf.Do(PanelStats, func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		stats, err := s.api.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("refresh stats: %w", err)
		}
		s.ApplyStats("api", *stats)
		return nil, nil
	})
	return err
}

// RefreshMessages fetches the recent messages. While a search is shown the
// results stay visible and only the stored list is updated.
func (s *Service) RefreshMessages(ctx context.Context) error {
	_, err, _ := s.sf.Do(PanelMessages, func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		messages, err := s.api.RecentMessages(ctx)
		if err != nil {
			return nil, fmt.Errorf("refresh messages: %w", err)
		}

		s.mu.Lock()
		s.state.Messages = messages
		searching := s.state.SearchQuery != ""
		if !searching {
			s.panels[PanelMessages] = s.renderer.Messages(messages)
		}
		s.mu.Unlock()

		if !searching {
			s.emit(PanelMessages)
		}
		return nil, nil
	})
	return err
}

// ShowResults replaces the message list with search results.
func (s *Service) ShowResults(query string, results []dashboard.MessageRecord) {
	s.mu.Lock()
	s.state.SearchQuery = query
	s.state.SearchResults = results
	s.panels[PanelMessages] = s.renderer.SearchResults(results)
	s.mu.Unlock()

	s.emit(PanelMessages)
}

// ClearSearch restores the default message list and refreshes it.
func (s *Service) ClearSearch() {
	s.mu.Lock()
	wasSearching := s.state.SearchQuery != ""
	s.state.SearchQuery = ""
	s.state.SearchResults = nil
	s.panels[PanelMessages] = s.renderer.Messages(s.state.Messages)
	s.mu.Unlock()

	if wasSearching {
		s.emit(PanelMessages)
	}
	if err := s.RefreshMessages(context.Background()); err != nil {
		s.logger.Warn("Message refresh after search failed", "error", err)
	}
}

// SetConnection renders the connection indicator.
func (s *Service) SetConnection(status dashboard.ConnectionStatus) {
	s.mu.Lock()
	s.state.Connection = status
	s.panels[PanelStatus] = s.renderer.ConnectionStatus(status)
	s.mu.Unlock()

	s.emit(PanelStatus)
}

// SetNotifications renders the toast stack.
func (s *Service) SetNotifications(list []dashboard.Notification) {
	s.mu.Lock()
	s.state.Notifications = list
	s.panels[PanelNotifications] = s.renderer.Notifications(list)
	s.mu.Unlock()

	s.emit(PanelNotifications)
}

// HandleNewMessage announces a new chat message and refreshes the list.
func (s *Service) HandleNewMessage(ctx context.Context, username, message string) {
	name := username
	if dashboard.IsUnknownUser(name) {
		name = "unknown user"
	}
	s.toaster.Info("New message from " + name)

	if s.notifier != nil {
		if err := s.notifier.Notify(SystemTitle, toast.SystemBody(username, message)); err != nil {
			s.logger.Warn("System notification failed", "error", err)
		}
	}

	if err := s.RefreshMessages(ctx); err != nil {
		s.logger.Warn("Message refresh failed", "error", err)
	}
}

// Reload refreshes stats and messages, as a page reload would.
func (s *Service) Reload(ctx context.Context) error {
	statsErr := s.RefreshStats(ctx)
	if statsErr != nil {
		s.logger.Warn("Stats refresh failed", "error", statsErr)
	}
	msgErr := s.RefreshMessages(ctx)
	if msgErr != nil {
		s.logger.Warn("Message refresh failed", "error", msgErr)
	}
	if statsErr != nil {
		return statsErr
	}
	return msgErr
}

func (s *Service) emit(panels ...string) {
	s.mu.RLock()
	fns := make([]func(string, template.HTML), len(s.listeners))
	copy(fns, s.listeners)
	htmls := make([]template.HTML, len(panels))
	for i, p := range panels {
		htmls[i] = s.panels[p]
	}
	s.mu.RUnlock()

	for i, p := range panels {
		for _, fn := range fns {
			fn(p, htmls[i])
		}
	}
}
