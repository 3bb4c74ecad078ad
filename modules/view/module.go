package view

import (
	"context"
	"fmt"
	"html/template"
	"sync"
	"time"

	"github.com/example/pulse-dashboard/events"
	"github.com/example/pulse-dashboard/modules/search"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/jonboulle/clockwork"
)

// ReadyDelay is how long after start the "Dashboard ready" toast appears.
const ReadyDelay = time.Second

// Module connects the view service to the event bus.
type Module struct {
	service  *Service
	search   *search.Controller
	clock    clockwork.Clock
	eventBus mono.EventBus
	logger   types.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
	_ mono.EventConsumerModule   = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates the view module. The search controller is closed when
// the module stops. A nil clock uses the real clock.
func NewModule(service *Service, controller *search.Controller, clock clockwork.Clock, logger types.Logger) *Module {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	m := &Module{
		service: service,
		search:  controller,
		clock:   clock,
		logger:  logger,
	}
	service.OnPanelChange(m.publishPanel)
	return m
}

// Name returns the module name.
func (m *Module) Name() string {
	return "view"
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.PanelChangedV1.ToBase(),
	}
}

// RegisterEventConsumers subscribes to channel frames and polled stats.
func (m *Module) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(
		registry, events.ChannelFrameV1, m.handleChannelFrame, m,
	); err != nil {
		return fmt.Errorf("failed to register ChannelFrame consumer: %w", err)
	}

	if err := helper.RegisterTypedEventConsumer(
		registry, events.StatsPolledV1, m.handleStats, m,
	); err != nil {
		return fmt.Errorf("failed to register StatsPolled consumer: %w", err)
	}

	m.logger.Info("Registered event consumers",
		"events", []string{"ChannelFrame.v1", "StatsPolled.v1"})
	return nil
}

// Start performs the initial load in the background.
func (m *Module) Start(_ context.Context) error {
	m.ctx, m.cancel = context.WithCancel(context.Background())

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.service.Reload(m.ctx); err != nil {
			m.logger.Warn("Initial dashboard load incomplete", "error", err)
		}
		select {
		case <-m.ctx.Done():
		case <-m.clock.After(ReadyDelay):
			m.service.toaster.Success("Dashboard ready")
		}
	}()

	m.logger.Info("View module started")
	return nil
}

// Stop cancels background work and drops pending search input.
func (m *Module) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}
	if m.search != nil {
		m.search.Close()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	m.service.toaster.Clear()
	m.logger.Info("View module stopped")
	return nil
}

// Health reports the freshness of the stats panel.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	snap := m.service.Snapshot()
	details := map[string]any{
		"connection":    snap.Connection.Text,
		"messages":      len(snap.Messages),
		"notifications": len(snap.Notifications),
		"stats_source":  snap.StatsSource,
	}
	if !snap.StatsUpdatedAt.IsZero() {
		details["stats_age"] = time.Since(snap.StatsUpdatedAt).Round(time.Second).String()
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: details,
	}
}

// handleChannelFrame applies push channel frames in arrival order.
func (m *Module) handleChannelFrame(ctx context.Context, event events.ChannelFrameEvent, _ *mono.Msg) error {
	switch {
	case event.Kind == events.FrameStats && event.Stats != nil:
		m.logger.Debug("Applying stats", "source", events.SourcePush)
		m.service.ApplyStats(events.SourcePush, *event.Stats)
	case event.Kind == events.FrameNewMessage && event.Message != nil:
		m.logger.Info("New chat message", "username", event.Message.Username)
		m.service.HandleNewMessage(ctx, event.Message.Username, event.Message.Message)
	case event.Kind == events.FrameStatus && event.Status != nil:
		m.service.SetConnection(*event.Status)
	default:
		m.logger.Warn("Ignoring malformed channel frame", "kind", event.Kind)
	}
	return nil
}

func (m *Module) handleStats(_ context.Context, event events.StatsUpdatedEvent, _ *mono.Msg) error {
	m.logger.Debug("Applying stats", "source", event.Source)
	m.service.ApplyStats(event.Source, event.Stats)
	return nil
}

func (m *Module) publishPanel(panel string, html template.HTML) {
	if m.eventBus == nil {
		return
	}
	event := events.PanelChangedEvent{
		Panel:     panel,
		HTML:      string(html),
		Timestamp: m.clock.Now(),
	}
	if err := events.PanelChangedV1.Publish(m.eventBus, event, nil); err != nil {
		m.logger.Error("Failed to publish PanelChanged event", "panel", panel, "error", err)
	}
}
