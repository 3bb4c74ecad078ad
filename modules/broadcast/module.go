// Package broadcast pushes re-rendered dashboard panels to attached viewers.
package broadcast

import (
	"context"
	"fmt"

	"github.com/example/pulse-dashboard/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// Module is an EventConsumerModule that relays PanelChanged events to viewers.
type Module struct {
	hub       *Hub
	logger    types.Logger
	cancelHub context.CancelFunc
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.EventConsumerModule   = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new broadcast module.
func NewModule(logger types.Logger) *Module {
	return &Module{
		hub:    NewHub(logger),
		logger: logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "broadcast"
}

// Start runs the hub.
func (m *Module) Start(_ context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelHub = cancel
	go m.hub.Run(ctx)
	m.logger.Info("Broadcast module started")
	return nil
}

// Stop closes every viewer connection.
func (m *Module) Stop(_ context.Context) error {
	clientCount := m.hub.ClientCount()
	if m.cancelHub != nil {
		m.cancelHub()
		m.hub.Wait()
	}
	m.logger.Info("Broadcast module stopped", "viewers", clientCount)
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"connected_viewers": m.hub.ClientCount(),
		},
	}
}

// RegisterEventConsumers registers event handlers.
func (m *Module) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(
		registry, events.PanelChangedV1, m.handlePanelChanged, m,
	); err != nil {
		return fmt.Errorf("failed to register PanelChanged consumer: %w", err)
	}

	m.logger.Info("Registered event consumers", "events", []string{"PanelChanged.v1"})
	return nil
}

func (m *Module) handlePanelChanged(_ context.Context, event events.PanelChangedEvent, _ *mono.Msg) error {
	m.hub.Broadcast(event.Panel, event.HTML)
	return nil
}

// Hub returns the viewer hub for the API module to use.
func (m *Module) Hub() *Hub {
	return m.hub
}
