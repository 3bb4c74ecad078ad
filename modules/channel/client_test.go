package channel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/pulse-dashboard/domain/dashboard"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gorilla/websocket"
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

type recordingSink struct {
	mu       sync.Mutex
	stats    []dashboard.StatsSnapshot
	messages []NewMessage
	statuses []dashboard.ConnectionStatus
}

func (s *recordingSink) OnStats(stats dashboard.StatsSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = append(s.stats, stats)
}

func (s *recordingSink) OnNewMessage(msg NewMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

func (s *recordingSink) OnStatus(status dashboard.ConnectionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
}

func (s *recordingSink) states() []dashboard.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]dashboard.ConnectionState, 0, len(s.statuses))
	for _, st := range s.statuses {
		out = append(out, st.State)
	}
	return out
}

// pushServer is an upstream stand-in. Dials listed in accept are upgraded
// and receive frames before the server hangs up; every other dial gets 404.
type pushServer struct {
	*httptest.Server
	hits   atomic.Int32
	accept map[int32]bool
	frames []string
}

func newPushServer(t *testing.T, accept map[int32]bool, frames ...string) *pushServer {
	t.Helper()
	ps := &pushServer{accept: accept, frames: frames}
	upgrader := websocket.Upgrader{}
	ps.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := ps.hits.Add(1)
		if !ps.accept[n] {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, f := range ps.frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	}))
	t.Cleanup(ps.Close)
	return ps
}

func (ps *pushServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ps.URL, "http") + "/ws"
}

func newTestChannel(url string, sink Sink, maxAttempts int) (*Channel, *[]time.Duration) {
	c := New(url, sink, &mockLogger{}, Options{
		BaseDelay:   time.Second,
		MaxAttempts: maxAttempts,
	})
	var mu sync.Mutex
	delays := []time.Duration{}
	c.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
		return ctx.Err()
	}
	return c, &delays
}

func TestChannel_ExhaustsAttempts(t *testing.T) {
	srv := newPushServer(t, nil)
	sink := &recordingSink{}
	c, delays := newTestChannel(srv.wsURL(), sink, 3)

	err := c.Run(context.Background())
	require.ErrorIs(t, err, ErrRetriesExhausted)

	assert.Equal(t, int32(4), srv.hits.Load(), "initial dial plus one per attempt")
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, *delays)
	assert.Equal(t, 3, c.Attempts())

	status := c.Status()
	assert.Equal(t, dashboard.StateFailed, status.State)
	assert.Equal(t, TextFailed, status.Text)
	assert.False(t, c.IsOpen())

	var reconnecting []string
	for _, st := range sink.statuses {
		assert.LessOrEqual(t, st.Attempt, 3)
		if st.State == dashboard.StateReconnecting {
			reconnecting = append(reconnecting, st.Text)
		}
		if st.State == dashboard.StateDisconnected {
			assert.Equal(t, TextUnavailable, st.Text)
		}
	}
	assert.Equal(t, []string{"Reconnecting 1/3", "Reconnecting 2/3", "Reconnecting 3/3"}, reconnecting)
	assert.Equal(t, dashboard.StateFailed, sink.statuses[len(sink.statuses)-1].State)
}

func TestChannel_ZeroAttemptsFailsImmediately(t *testing.T) {
	srv := newPushServer(t, nil)
	sink := &recordingSink{}
	c, delays := newTestChannel(srv.wsURL(), sink, 0)

	require.ErrorIs(t, c.Run(context.Background()), ErrRetriesExhausted)
	assert.Equal(t, int32(1), srv.hits.Load())
	assert.Empty(t, *delays)
	assert.Equal(t, []dashboard.ConnectionState{
		dashboard.StateConnecting,
		dashboard.StateDisconnected,
		dashboard.StateFailed,
	}, sink.states())
}

func TestChannel_DispatchesFrames(t *testing.T) {
	srv := newPushServer(t, map[int32]bool{1: true},
		`{"type":"ping"}`,
		`not json`,
		`{"type":"update","data":{"chat_stats":{"active_chats":3,"closed_chats":1,"total_users":10},"total_messages":42}}`,
		`{"type":"mystery"}`,
		`{"type":"new_message","username":"alice","message":"hello"}`,
	)
	sink := &recordingSink{}
	c, _ := newTestChannel(srv.wsURL(), sink, 0)

	require.ErrorIs(t, c.Run(context.Background()), ErrRetriesExhausted)

	require.Len(t, sink.stats, 1)
	assert.Equal(t, 42, sink.stats[0].TotalMessages)
	require.Len(t, sink.messages, 1)
	assert.Equal(t, "alice", sink.messages[0].Username)

	assert.Equal(t, []dashboard.ConnectionState{
		dashboard.StateConnecting,
		dashboard.StateConnected,
		dashboard.StateDisconnected,
		dashboard.StateFailed,
	}, sink.states())
	assert.Equal(t, TextOnline, sink.statuses[1].Text)
	assert.Equal(t, TextOffline, sink.statuses[2].Text)
}

func TestChannel_OpenResetsCounter(t *testing.T) {
	// fail, fail, open then close, fail, fail
	srv := newPushServer(t, map[int32]bool{3: true})
	sink := &recordingSink{}
	c, delays := newTestChannel(srv.wsURL(), sink, 2)

	require.ErrorIs(t, c.Run(context.Background()), ErrRetriesExhausted)

	assert.Equal(t, int32(5), srv.hits.Load())
	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second,
		time.Second, 2 * time.Second,
	}, *delays)

	for _, st := range sink.statuses {
		if st.State == dashboard.StateConnected {
			assert.Zero(t, st.Attempt)
		}
	}
}

func TestChannel_CancelStopsLoop(t *testing.T) {
	srv := newPushServer(t, nil)
	sink := &recordingSink{}
	c := New(srv.wsURL(), sink, &mockLogger{}, Options{BaseDelay: time.Hour, MaxAttempts: 5})

	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)

	require.Eventually(t, func() bool {
		return c.Status().State == dashboard.StateReconnecting
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	require.NoError(t, c.Stop(stopCtx))
	assert.Equal(t, int32(1), srv.hits.Load())
}

func TestChannel_ReloadAfterFailure(t *testing.T) {
	srv := newPushServer(t, nil)
	sink := &recordingSink{}
	c, _ := newTestChannel(srv.wsURL(), sink, 1)

	assert.False(t, c.Reload(), "not started")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	require.Eventually(t, func() bool {
		return c.Status().State == dashboard.StateFailed
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(2), srv.hits.Load())

	require.True(t, c.Reload())
	require.Eventually(t, func() bool {
		return srv.hits.Load() == 4 && c.Status().State == dashboard.StateFailed
	}, 2*time.Second, 10*time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	require.NoError(t, c.Stop(stopCtx))
	assert.False(t, c.Reload(), "stopped")
}

func TestChannel_StaleRetryIsNoop(t *testing.T) {
	sink := &recordingSink{}
	c := New("ws://127.0.0.1:1/ws", sink, &mockLogger{}, Options{BaseDelay: time.Second, MaxAttempts: 3})

	c.gen = 2
	_, err := c.nextRetry(1)
	require.ErrorIs(t, err, errStale)
	assert.Zero(t, c.Attempts())
	assert.Empty(t, sink.statuses)

	c.status = newStatus(dashboard.StateFailed, 3, 3)
	_, err = c.nextRetry(2)
	require.ErrorIs(t, err, errStale)
	assert.Empty(t, sink.statuses)
}

func TestNewStatus(t *testing.T) {
	tests := []struct {
		state dashboard.ConnectionState
		n     int
		want  string
	}{
		{state: dashboard.StateConnecting, want: TextConnecting},
		{state: dashboard.StateConnected, want: TextOnline},
		{state: dashboard.StateDisconnected, want: TextOffline},
		{state: dashboard.StateReconnecting, n: 2, want: "Reconnecting 2/5"},
		{state: dashboard.StateFailed, n: 5, want: TextFailed},
	}
	for _, tt := range tests {
		st := newStatus(tt.state, tt.n, 5)
		assert.Equal(t, tt.want, st.Text)
		assert.Equal(t, tt.state == dashboard.StateConnected, st.Online())
	}
}
