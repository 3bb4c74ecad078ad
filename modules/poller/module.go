// Package poller refreshes stats over the JSON API while the push channel is
// not open.
package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/example/pulse-dashboard/domain/dashboard"
	"github.com/example/pulse-dashboard/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
)

// ChannelState tells whether the push channel currently delivers updates.
type ChannelState interface {
	IsOpen() bool
}

// StatsFetcher fetches a stats snapshot.
type StatsFetcher interface {
	Stats(ctx context.Context) (*dashboard.StatsSnapshot, error)
}

// Module implements the poll fallback as a mono background worker.
type Module struct {
	interval time.Duration
	channel  ChannelState
	fetcher  StatsFetcher
	eventBus mono.EventBus
	logger   types.Logger

	// publish delivers a polled snapshot; it defaults to the event bus.
	publish func(events.StatsUpdatedEvent) error

	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once

	polls    atomic.Int64
	failures atomic.Int64
	skipped  atomic.Int64
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates the poller. It polls every interval while channel is
// not open.
func NewModule(interval time.Duration, channel ChannelState, fetcher StatsFetcher, logger types.Logger) *Module {
	m := &Module{
		interval: interval,
		channel:  channel,
		fetcher:  fetcher,
		logger:   logger,
	}
	m.publish = m.publishEvent
	return m
}

// Name returns the module name.
func (m *Module) Name() string {
	return "poller"
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.StatsPolledV1.ToBase(),
	}
}

// Start launches the polling loop.
func (m *Module) Start(_ context.Context) error {
	m.stopChan = make(chan struct{})
	m.doneChan = make(chan struct{})

	go m.run()

	m.logger.Info("Poll fallback started", "interval", m.interval)
	return nil
}

func (m *Module) run() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	defer close(m.doneChan)

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.Poll()
		}
	}
}

// Poll performs one tick: it fetches stats unless the push channel is open.
// It reports whether a snapshot was published.
func (m *Module) Poll() bool {
	if m.channel.IsOpen() {
		m.skipped.Add(1)
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.interval)
	defer cancel()
	go func() {
		select {
		case <-m.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	m.polls.Add(1)
	stats, err := m.fetcher.Stats(ctx)
	if err != nil {
		m.failures.Add(1)
		m.logger.Warn("Stats poll failed", "error", err)
		return false
	}

	event := events.StatsUpdatedEvent{
		Source:     events.SourcePoll,
		Stats:      *stats,
		ReceivedAt: time.Now(),
	}
	if err := m.publish(event); err != nil {
		m.logger.Error("Failed to publish StatsPolled event", "error", err)
		return false
	}
	m.logger.Debug("Stats polled", "total_messages", stats.TotalMessages)
	return true
}

func (m *Module) publishEvent(event events.StatsUpdatedEvent) error {
	if m.eventBus == nil {
		return nil
	}
	return events.StatsPolledV1.Publish(m.eventBus, event, nil)
}

// Stop ends the polling loop, waiting for an in-flight poll.
func (m *Module) Stop(ctx context.Context) error {
	if m.stopChan == nil {
		return nil
	}

	m.stopOnce.Do(func() {
		close(m.stopChan)
	})

	select {
	case <-m.doneChan:
		m.logger.Info("Poll fallback stopped", "polls", m.polls.Load(), "failures", m.failures.Load())
	case <-ctx.Done():
		m.logger.Warn("Poll fallback shutdown timeout exceeded")
		return ctx.Err()
	}

	return nil
}

// Health reports poll counters.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"interval": m.interval.String(),
			"polls":    m.polls.Load(),
			"failures": m.failures.Load(),
			"skipped":  m.skipped.Load(),
		},
	}
}
