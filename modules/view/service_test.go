package view

import (
	"context"
	"errors"
	"html/template"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/pulse-dashboard/domain/dashboard"
	"github.com/example/pulse-dashboard/events"
	"github.com/example/pulse-dashboard/modules/render"
	"github.com/example/pulse-dashboard/modules/toast"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements types.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(_ string, _ ...any) {}
func (m *mockLogger) Info(_ string, _ ...any)  {}
func (m *mockLogger) Warn(_ string, _ ...any)  {}
func (m *mockLogger) Error(_ string, _ ...any) {}
func (m *mockLogger) With(_ ...any) types.Logger {
	return m
}
func (m *mockLogger) WithModule(_ string) types.Logger {
	return m
}
func (m *mockLogger) WithError(_ error) types.Logger {
	return m
}

type fakeAPI struct {
	statsCalls   atomic.Int32
	messageCalls atomic.Int32
	stats        *dashboard.StatsSnapshot
	messages     []dashboard.MessageRecord
	err          error
	gate         chan struct{}
}

func (a *fakeAPI) Stats(_ context.Context) (*dashboard.StatsSnapshot, error) {
	a.statsCalls.Add(1)
	if a.gate != nil {
		<-a.gate
	}
	if a.err != nil {
		return nil, a.err
	}
	return a.stats, nil
}

func (a *fakeAPI) RecentMessages(_ context.Context) ([]dashboard.MessageRecord, error) {
	a.messageCalls.Add(1)
	if a.err != nil {
		return nil, a.err
	}
	return a.messages, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	titles []string
	bodies []string
}

func (n *fakeNotifier) Notify(title, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.titles = append(n.titles, title)
	n.bodies = append(n.bodies, body)
	return nil
}

type panelLog struct {
	mu     sync.Mutex
	panels []string
	last   map[string]template.HTML
}

func (l *panelLog) record(panel string, html template.HTML) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.panels = append(l.panels, panel)
	if l.last == nil {
		l.last = map[string]template.HTML{}
	}
	l.last[panel] = html
}

type serviceFixture struct {
	api      *fakeAPI
	notifier *fakeNotifier
	toaster  *toast.Toaster
	clock    clockwork.FakeClock
	log      *panelLog
	svc      *Service
}

func newServiceFixture() *serviceFixture {
	clk := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	f := &serviceFixture{
		api: &fakeAPI{
			stats: &dashboard.StatsSnapshot{
				ChatStats:     &dashboard.ChatStats{ActiveChats: 3, ClosedChats: 1, TotalUsers: 10},
				TotalMessages: 42,
			},
			messages: []dashboard.MessageRecord{{Username: "alice", Message: "hello", Type: "incoming"}},
		},
		notifier: &fakeNotifier{},
		clock:    clk,
		log:      &panelLog{},
	}
	f.toaster = toast.New(3*time.Second, toast.WithClock(clk))
	f.svc = NewService(render.New(0), f.api, f.toaster, f.notifier, &mockLogger{})
	f.svc.OnPanelChange(f.log.record)
	return f
}

func TestService_InitialPanels(t *testing.T) {
	f := newServiceFixture()
	for _, name := range Panels {
		html, ok := f.svc.Panel(name)
		assert.True(t, ok, name)
		assert.NotEmpty(t, html, name)
	}
	_, ok := f.svc.Panel("bogus")
	assert.False(t, ok)

	html, _ := f.svc.Panel(PanelMessages)
	assert.Contains(t, string(html), "No messages")
}

func TestService_ApplyStats(t *testing.T) {
	f := newServiceFixture()

	f.svc.ApplyStats(events.SourcePush, dashboard.StatsSnapshot{
		ChatStats: &dashboard.ChatStats{
			ActiveChats:    1,
			ActiveChatList: []dashboard.ChatRecord{{Username: "bob", ChatID: 9}},
		},
		TotalMessages: 5,
	})
	assert.Equal(t, []string{PanelStats, PanelChats}, f.log.panels)

	snap := f.svc.Snapshot()
	assert.Equal(t, 1, snap.Counters.ActiveChats)
	assert.Equal(t, 5, snap.Counters.TotalMessages)
	assert.Equal(t, events.SourcePush, snap.StatsSource)

	chats, _ := f.svc.Panel(PanelChats)
	assert.Contains(t, string(chats), "bob")

	// No chat section: counters update, chats stay.
	f.svc.ApplyStats(events.SourcePoll, dashboard.StatsSnapshot{TotalMessages: 6})
	assert.Equal(t, []string{PanelStats, PanelChats, PanelStats}, f.log.panels)
	chats, _ = f.svc.Panel(PanelChats)
	assert.Contains(t, string(chats), "bob")
	assert.Zero(t, f.svc.Snapshot().Counters.ActiveChats)
}

func TestService_RefreshStats(t *testing.T) {
	f := newServiceFixture()
	require.NoError(t, f.svc.RefreshStats(context.Background()))

	stats, _ := f.svc.Panel(PanelStats)
	assert.Contains(t, string(stats), `id="total-messages-count">42<`)
	assert.Equal(t, "api", f.svc.Snapshot().StatsSource)

	f.api.err = errors.New("down")
	err := f.svc.RefreshStats(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refresh stats")
	stats, _ = f.svc.Panel(PanelStats)
	assert.Contains(t, string(stats), `id="total-messages-count">42<`, "last good state kept")
}

func TestService_RefreshStatsCollapsesConcurrentCalls(t *testing.T) {
	f := newServiceFixture()
	f.api.gate = make(chan struct{})

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.svc.RefreshStats(context.Background())
		}()
	}
	require.Eventually(t, func() bool { return f.api.statsCalls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	close(f.api.gate)
	wg.Wait()

	assert.Equal(t, int32(1), f.api.statsCalls.Load())
}

func TestService_SearchLifecycle(t *testing.T) {
	f := newServiceFixture()
	require.NoError(t, f.svc.RefreshMessages(context.Background()))

	f.svc.ShowResults("refund", []dashboard.MessageRecord{{Username: "carol", Message: "refund please"}})
	html, _ := f.svc.Panel(PanelMessages)
	assert.Contains(t, string(html), "carol")
	assert.NotContains(t, string(html), "alice")

	// A refresh while searching keeps the results on screen.
	f.api.messages = append(f.api.messages, dashboard.MessageRecord{Username: "dave", Message: "new"})
	require.NoError(t, f.svc.RefreshMessages(context.Background()))
	html, _ = f.svc.Panel(PanelMessages)
	assert.Contains(t, string(html), "carol")
	assert.Len(t, f.svc.Snapshot().Messages, 2)

	f.svc.ClearSearch()
	html, _ = f.svc.Panel(PanelMessages)
	assert.Contains(t, string(html), "alice")
	assert.Contains(t, string(html), "dave")
	assert.Empty(t, f.svc.Snapshot().SearchQuery)
}

func TestService_EmptySearchResults(t *testing.T) {
	f := newServiceFixture()
	f.svc.ShowResults("zz", nil)
	html, _ := f.svc.Panel(PanelMessages)
	assert.Contains(t, string(html), "Nothing found")
}

func TestService_HandleNewMessage(t *testing.T) {
	f := newServiceFixture()

	f.svc.HandleNewMessage(context.Background(), "alice", strings.Repeat("m", 60))

	list := f.toaster.List()
	require.Len(t, list, 1)
	assert.Equal(t, "New message from alice", list[0].Message)
	assert.Equal(t, dashboard.SeverityInfo, list[0].Severity)

	require.Len(t, f.notifier.bodies, 1)
	assert.Equal(t, SystemTitle, f.notifier.titles[0])
	assert.Equal(t, "alice: "+strings.Repeat("m", 50)+"...", f.notifier.bodies[0])

	assert.Equal(t, int32(1), f.api.messageCalls.Load())
	notifications, _ := f.svc.Panel(PanelNotifications)
	assert.Contains(t, string(notifications), "New message from alice")

	f.svc.HandleNewMessage(context.Background(), "", "hi")
	assert.Equal(t, "New message from unknown user", f.toaster.List()[1].Message)
}

func TestService_NotificationsFollowToaster(t *testing.T) {
	f := newServiceFixture()
	f.toaster.Success("Saved")

	html, _ := f.svc.Panel(PanelNotifications)
	assert.Contains(t, string(html), "Saved")

	// Toast timers fire on their own goroutines; step through retirement.
	f.clock.Advance(3 * time.Second)
	require.Eventually(t, func() bool {
		list := f.toaster.List()
		return len(list) == 1 && list[0].Retiring
	}, time.Second, time.Millisecond)
	f.clock.Advance(toast.ExitGrace)
	require.Eventually(t, func() bool {
		html, _ := f.svc.Panel(PanelNotifications)
		return !strings.Contains(string(html), "Saved")
	}, time.Second, time.Millisecond)
	assert.Empty(t, f.svc.Snapshot().Notifications)
}

func TestService_SetConnection(t *testing.T) {
	f := newServiceFixture()
	f.svc.SetConnection(dashboard.ConnectionStatus{State: dashboard.StateReconnecting, Attempt: 2, MaxAttempts: 5, Text: "Reconnecting 2/5"})

	html, _ := f.svc.Panel(PanelStatus)
	assert.Contains(t, string(html), "Reconnecting 2/5")
	assert.Contains(t, string(html), "status-offline")
	assert.Equal(t, []string{PanelStatus}, f.log.panels)
}

func TestService_Reload(t *testing.T) {
	f := newServiceFixture()
	require.NoError(t, f.svc.Reload(context.Background()))
	assert.Equal(t, int32(1), f.api.statsCalls.Load())
	assert.Equal(t, int32(1), f.api.messageCalls.Load())

	f.api.err = errors.New("down")
	assert.Error(t, f.svc.Reload(context.Background()))
}

func TestModule_HandlesEvents(t *testing.T) {
	f := newServiceFixture()
	m := NewModule(f.svc, nil, f.clock, &mockLogger{})
	assert.Equal(t, "view", m.Name())
	assert.Len(t, m.EmitEvents(), 1)

	require.NoError(t, m.handleStats(context.Background(), events.StatsUpdatedEvent{
		Source: events.SourcePoll,
		Stats:  dashboard.StatsSnapshot{TotalMessages: 11},
	}, nil))
	assert.Equal(t, 11, f.svc.Snapshot().Counters.TotalMessages)

	require.NoError(t, m.handleChannelFrame(context.Background(), events.ChannelFrameEvent{
		Kind:   events.FrameStatus,
		Status: &dashboard.ConnectionStatus{State: dashboard.StateConnected, Text: "Online"},
	}, nil))
	assert.True(t, f.svc.Snapshot().Connection.Online())

	health := m.Health(context.Background())
	assert.True(t, health.Healthy)
	assert.Equal(t, "Online", health.Details["connection"])
}

func TestModule_ChannelFramesAppliedInOrder(t *testing.T) {
	f := newServiceFixture()
	m := NewModule(f.svc, nil, f.clock, &mockLogger{})
	ctx := context.Background()

	frames := []events.ChannelFrameEvent{
		{Kind: events.FrameStatus, Status: &dashboard.ConnectionStatus{State: dashboard.StateConnected, Text: "Online"}},
		{Kind: events.FrameStats, Stats: &dashboard.StatsSnapshot{TotalMessages: 5}},
		{Kind: events.FrameNewMessage, Message: &events.ChatMessageReceivedEvent{Username: "alice", Message: "hi"}},
		{Kind: events.FrameStats, Stats: &dashboard.StatsSnapshot{TotalMessages: 6}},
		{Kind: events.FrameStatus, Status: &dashboard.ConnectionStatus{State: dashboard.StateDisconnected, Text: "Offline"}},
		{Kind: events.FrameStats},
	}
	for _, frame := range frames {
		require.NoError(t, m.handleChannelFrame(ctx, frame, nil))
	}

	snap := f.svc.Snapshot()
	assert.Equal(t, 6, snap.Counters.TotalMessages, "last stats frame wins")
	assert.Equal(t, events.SourcePush, snap.StatsSource)
	assert.Equal(t, "Offline", snap.Connection.Text, "last status frame wins")
	require.Len(t, f.toaster.List(), 1)
	assert.Equal(t, "New message from alice", f.toaster.List()[0].Message)

	f.log.mu.Lock()
	defer f.log.mu.Unlock()
	assert.Equal(t, PanelStatus, f.log.panels[0])
	assert.Equal(t, PanelStatus, f.log.panels[len(f.log.panels)-1])
}

func TestModule_ReadyToastAfterDelay(t *testing.T) {
	f := newServiceFixture()
	m := NewModule(f.svc, nil, f.clock, &mockLogger{})
	require.NoError(t, m.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.clock.BlockUntilContext(ctx, 1), "ready timer armed")
	assert.Zero(t, f.toaster.Len())

	f.clock.Advance(ReadyDelay)
	require.Eventually(t, func() bool { return f.toaster.Len() == 1 }, time.Second, time.Millisecond)
	ready := f.toaster.List()[0]
	assert.Equal(t, "Dashboard ready", ready.Message)
	assert.Equal(t, dashboard.SeveritySuccess, ready.Severity)
	assert.Equal(t, int32(1), f.api.statsCalls.Load())

	require.NoError(t, m.Stop(context.Background()))
	assert.Zero(t, f.toaster.Len())
}

func TestModule_StopBeforeReadyDelay(t *testing.T) {
	f := newServiceFixture()
	m := NewModule(f.svc, nil, f.clock, &mockLogger{})
	require.NoError(t, m.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))

	require.NoError(t, m.Stop(context.Background()))
	f.clock.Advance(ReadyDelay)
	assert.Zero(t, f.toaster.Len())
}
