package channel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/example/pulse-dashboard/domain/dashboard"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gorilla/websocket"
)

var (
	// ErrRetriesExhausted is returned by Run once the reconnect budget is spent.
	ErrRetriesExhausted = errors.New("push channel reconnect attempts exhausted")
	// ErrChannelClosed wraps the read error that ended a connection.
	ErrChannelClosed = errors.New("push channel closed")

	errStale = errors.New("stale reconnect loop")
)

// Sink receives everything the channel delivers. Calls come from the channel
// goroutine in frame order.
type Sink interface {
	OnStats(stats dashboard.StatsSnapshot)
	OnNewMessage(msg NewMessage)
	OnStatus(status dashboard.ConnectionStatus)
}

// Options configures a Channel.
type Options struct {
	// BaseDelay is the backoff unit; retry n waits BaseDelay*n.
	BaseDelay time.Duration
	// MaxAttempts bounds the consecutive reconnects after a failure.
	MaxAttempts int
	// ReadTimeout closes a connection that stays silent for longer. Zero
	// disables the deadline.
	ReadTimeout time.Duration
	// HandshakeTimeout bounds a single dial.
	HandshakeTimeout time.Duration
}

// Channel maintains one push connection at a time and reconnects with linear
// backoff.
type Channel struct {
	url    string
	opts   Options
	dialer *websocket.Dialer
	sink   Sink
	logger types.Logger
	sleep  func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	status   dashboard.ConnectionStatus
	attempts int
	gen      uint64
	parent   context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// PushURL derives the push endpoint from the upstream base URL: same host,
// path /ws, wss for https origins.
func PushURL(base *url.URL) string {
	scheme := "ws"
	if base.Scheme == "https" {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: base.Host, Path: "/ws"}
	return u.String()
}

// New creates a Channel dialing pushURL.
func New(pushURL string, sink Sink, logger types.Logger, opts Options) *Channel {
	if opts.MaxAttempts < 0 {
		opts.MaxAttempts = 0
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	return &Channel{
		url:  pushURL,
		opts: opts,
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: opts.HandshakeTimeout,
		},
		sink:   sink,
		logger: logger,
		sleep:  sleepContext,
		status: newStatus(dashboard.StateDisconnected, 0, opts.MaxAttempts),
	}
}

// Status returns the current connection status.
func (c *Channel) Status() dashboard.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// IsOpen reports whether a push connection is currently open.
func (c *Channel) IsOpen() bool {
	return c.Status().State == dashboard.StateConnected
}

// Attempts returns the reconnect attempt counter.
func (c *Channel) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Start runs the reconnect loop in the background until ctx is cancelled or
// Stop is called.
func (c *Channel) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.parent = ctx
	c.spawnLocked()
}

// Reload is the manual reload: it resets the attempt counter and restarts the
// loop. It reports false when the channel is open or was never started.
func (c *Channel) Reload() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.parent == nil || c.status.State == dashboard.StateConnected {
		return false
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.logger.Info("Push channel reloaded", "url", c.url)
	c.spawnLocked()
	return true
}

// Stop cancels the loop and waits for it to exit.
func (c *Channel) Stop(ctx context.Context) error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.parent = nil
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Channel) spawnLocked() {
	ctx, cancel := context.WithCancel(c.parent)
	c.gen++
	c.attempts = 0
	c.cancel = cancel
	done := make(chan struct{})
	c.done = done

	gen := c.gen
	go func() {
		defer close(done)
		err := c.run(ctx, gen)
		switch {
		case err == nil, errors.Is(err, context.Canceled):
		case errors.Is(err, ErrRetriesExhausted):
			c.logger.Error("Push channel gave up", "url", c.url, "attempts", c.opts.MaxAttempts)
		default:
			c.logger.Error("Push channel loop stopped", "url", c.url, "error", err)
		}
	}()
}

// Run dials and serves the push channel in the calling goroutine until ctx is
// cancelled or the reconnect attempts are exhausted.
func (c *Channel) Run(ctx context.Context) error {
	c.mu.Lock()
	c.gen++
	c.attempts = 0
	gen := c.gen
	c.mu.Unlock()
	return c.run(ctx, gen)
}

func (c *Channel) run(ctx context.Context, gen uint64) error {
	for {
		c.report(gen, dashboard.StateConnecting, "")

		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("Push channel dial failed", "url", c.url, "error", err)
			c.report(gen, dashboard.StateDisconnected, TextUnavailable)
		} else {
			c.opened(gen)
			err = c.serve(ctx, conn)
			_ = conn.Close()
			if ctx.Err() != nil {
				c.report(gen, dashboard.StateDisconnected, "")
				return ctx.Err()
			}
			c.logger.Info("Push channel disconnected", "url", c.url, "error", err)
			c.report(gen, dashboard.StateDisconnected, "")
		}

		delay, err := c.nextRetry(gen)
		if errors.Is(err, errStale) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// serve reads frames until the connection fails or ctx is cancelled.
func (c *Channel) serve(ctx context.Context, conn *websocket.Conn) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		if c.opts.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrChannelClosed, err)
		}
		c.dispatch(data)
	}
}

func (c *Channel) dispatch(data []byte) {
	env, err := Decode(data)
	if errors.Is(err, ErrUnknownKind) {
		c.logger.Info("Ignoring push frame", "kind", env.Kind)
		return
	}
	if err != nil {
		c.logger.Warn("Dropping push frame", "error", err)
		return
	}

	switch env.Kind {
	case KindUpdate:
		c.sink.OnStats(*env.Stats)
	case KindNewMessage:
		c.sink.OnNewMessage(*env.Message)
	case KindPing:
	}
}

func (c *Channel) opened(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.attempts = 0
	status := newStatus(dashboard.StateConnected, 0, c.opts.MaxAttempts)
	c.status = status
	c.mu.Unlock()

	c.logger.Info("Push channel connected", "url", c.url)
	c.sink.OnStatus(status)
}

// report publishes a status for the loop of generation gen. Stale loops are
// silent. A non-empty text overrides the default one.
func (c *Channel) report(gen uint64, state dashboard.ConnectionState, text string) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	status := newStatus(state, c.attempts, c.opts.MaxAttempts)
	if text != "" {
		status.Text = text
	}
	c.status = status
	c.mu.Unlock()

	c.sink.OnStatus(status)
}

// nextRetry advances the attempt counter and returns the backoff delay, or
// moves the channel into the terminal failed state.
func (c *Channel) nextRetry(gen uint64) (time.Duration, error) {
	c.mu.Lock()
	if gen != c.gen || c.status.State == dashboard.StateFailed {
		c.mu.Unlock()
		return 0, errStale
	}
	if c.attempts >= c.opts.MaxAttempts {
		status := newStatus(dashboard.StateFailed, c.attempts, c.opts.MaxAttempts)
		c.status = status
		c.mu.Unlock()

		c.sink.OnStatus(status)
		return 0, ErrRetriesExhausted
	}
	c.attempts++
	delay := c.opts.BaseDelay * time.Duration(c.attempts)
	status := newStatus(dashboard.StateReconnecting, c.attempts, c.opts.MaxAttempts)
	c.status = status
	c.mu.Unlock()

	c.logger.Info("Push channel reconnect scheduled", "attempt", status.Attempt, "delay", delay)
	c.sink.OnStatus(status)
	return delay, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
