package channel

import (
	"context"
	"time"

	"github.com/example/pulse-dashboard/config"
	"github.com/example/pulse-dashboard/domain/dashboard"
	"github.com/example/pulse-dashboard/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
)

// Module owns the push channel and republishes what it delivers on the event bus.
type Module struct {
	channel  *Channel
	eventBus mono.EventBus
	logger   types.Logger
	cancel   context.CancelFunc

	// publish delivers a frame; it defaults to the event bus. All kinds share
	// one subject so consumers see them in arrival order.
	publish func(events.ChannelFrameEvent) error
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
	_ Sink                       = (*Module)(nil)
)

// NewModule creates the channel module for the configured upstream.
func NewModule(cfg *config.Config, logger types.Logger) *Module {
	m := &Module{logger: logger}
	m.publish = m.publishEvent
	m.channel = New(PushURL(cfg.UpstreamURL), m, logger, Options{
		BaseDelay:   cfg.ReconnectDelay,
		MaxAttempts: cfg.MaxReconnects,
		ReadTimeout: 2 * time.Minute,
	})
	return m
}

// Name returns the module name.
func (m *Module) Name() string {
	return "channel"
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.ChannelFrameV1.ToBase(),
	}
}

// Start opens the push channel in the background.
func (m *Module) Start(_ context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.channel.Start(ctx)
	m.logger.Info("Channel module started", "url", m.channel.url)
	return nil
}

// Stop closes the push channel.
func (m *Module) Stop(ctx context.Context) error {
	err := m.channel.Stop(ctx)
	if m.cancel != nil {
		m.cancel()
	}
	m.logger.Info("Channel module stopped")
	return err
}

// Health reports the push channel state. A failed channel is unhealthy; the
// poll fallback keeps the dashboard fresh in every other state.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	status := m.channel.Status()
	return mono.HealthStatus{
		Healthy: status.State != dashboard.StateFailed,
		Message: status.Text,
		Details: map[string]any{
			"state":        status.State,
			"attempt":      status.Attempt,
			"max_attempts": status.MaxAttempts,
		},
	}
}

// IsOpen reports whether the push channel is open.
func (m *Module) IsOpen() bool {
	return m.channel.IsOpen()
}

// Status returns the push channel status.
func (m *Module) Status() dashboard.ConnectionStatus {
	return m.channel.Status()
}

// Reload restarts a failed or reconnecting push channel.
func (m *Module) Reload() bool {
	return m.channel.Reload()
}

// OnStats publishes a pushed stats snapshot.
func (m *Module) OnStats(stats dashboard.StatsSnapshot) {
	m.emit(events.ChannelFrameEvent{Kind: events.FrameStats, Stats: &stats})
}

// OnNewMessage publishes a new chat message announcement.
func (m *Module) OnNewMessage(msg NewMessage) {
	m.emit(events.ChannelFrameEvent{
		Kind: events.FrameNewMessage,
		Message: &events.ChatMessageReceivedEvent{
			Username:    msg.Username,
			Message:     msg.Message,
			MessageType: msg.MessageType,
			ReceivedAt:  time.Now(),
		},
	})
}

// OnStatus publishes a connection status change.
func (m *Module) OnStatus(status dashboard.ConnectionStatus) {
	m.emit(events.ChannelFrameEvent{Kind: events.FrameStatus, Status: &status})
}

func (m *Module) emit(event events.ChannelFrameEvent) {
	event.ReceivedAt = time.Now()
	if err := m.publish(event); err != nil {
		m.logger.Error("Failed to publish ChannelFrame event", "kind", event.Kind, "error", err)
	}
}

func (m *Module) publishEvent(event events.ChannelFrameEvent) error {
	if m.eventBus == nil {
		return nil
	}
	return events.ChannelFrameV1.Publish(m.eventBus, event, nil)
}
