// Package toast manages the stack of transient dashboard notifications.
package toast

import (
	"strings"
	"sync"
	"time"

	"github.com/example/pulse-dashboard/domain/dashboard"
	"github.com/example/pulse-dashboard/modules/render"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// ExitGrace is how long a retired notification stays in the stack so its
// exit transition can play.
const ExitGrace = 300 * time.Millisecond

// SystemBodyLimit caps the message excerpt of an OS-level notification.
const SystemBodyLimit = 50

// SystemNotifier delivers OS-level notifications.
type SystemNotifier interface {
	Notify(title, body string) error
}

// LogNotifier is a SystemNotifier writing to the application log.
type LogNotifier struct {
	Logger types.Logger
}

// Notify logs the notification.
func (n LogNotifier) Notify(title, body string) error {
	n.Logger.Info("System notification", "title", title, "body", body)
	return nil
}

// Toaster holds the visible notifications. All methods are safe for
// concurrent use.
type Toaster struct {
	defaultLifetime time.Duration
	clock           clockwork.Clock

	mu       sync.Mutex
	items    []dashboard.Notification
	timers   map[string]clockwork.Timer
	onChange []func([]dashboard.Notification)
}

// Option configures a Toaster.
type Option func(*Toaster)

// WithClock sets the clock driving lifetimes and timestamps.
func WithClock(clock clockwork.Clock) Option {
	return func(t *Toaster) {
		t.clock = clock
	}
}

// New creates a Toaster whose convenience methods default to defaultLifetime.
func New(defaultLifetime time.Duration, opts ...Option) *Toaster {
	t := &Toaster{
		defaultLifetime: defaultLifetime,
		clock:           clockwork.NewRealClock(),
		timers:          make(map[string]clockwork.Timer),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// OnChange registers fn to receive the stack after every change. fn runs
// outside the toaster lock.
func (t *Toaster) OnChange(fn func([]dashboard.Notification)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = append(t.onChange, fn)
}

// Show adds a notification and returns it. A lifetime of zero or less keeps
// it until dismissed; otherwise it retires after lifetime and is removed
// ExitGrace later.
func (t *Toaster) Show(message string, severity dashboard.Severity, lifetime time.Duration) dashboard.Notification {
	n := dashboard.Notification{
		ID:       uuid.NewString(),
		Message:  message,
		Severity: severity,
		Lifetime: lifetime,
		Created:  t.clock.Now(),
	}

	t.mu.Lock()
	t.items = append(t.items, n)
	if !n.Persistent() {
		id := n.ID
		t.timers[id] = t.clock.AfterFunc(lifetime, func() { t.retire(id) })
	}
	t.mu.Unlock()

	t.notify()
	return n
}

// Success shows a success notification. The lifetime defaults to the
// toaster's default when duration is omitted.
func (t *Toaster) Success(message string, duration ...time.Duration) dashboard.Notification {
	return t.Show(message, dashboard.SeveritySuccess, t.lifetime(duration))
}

// Error shows an error notification.
func (t *Toaster) Error(message string, duration ...time.Duration) dashboard.Notification {
	return t.Show(message, dashboard.SeverityError, t.lifetime(duration))
}

// Warning shows a warning notification.
func (t *Toaster) Warning(message string, duration ...time.Duration) dashboard.Notification {
	return t.Show(message, dashboard.SeverityWarning, t.lifetime(duration))
}

// Info shows an info notification.
func (t *Toaster) Info(message string, duration ...time.Duration) dashboard.Notification {
	return t.Show(message, dashboard.SeverityInfo, t.lifetime(duration))
}

func (t *Toaster) lifetime(duration []time.Duration) time.Duration {
	if len(duration) > 0 {
		return duration[0]
	}
	return t.defaultLifetime
}

// Dismiss removes a notification immediately. It reports whether id was
// present.
func (t *Toaster) Dismiss(id string) bool {
	t.mu.Lock()
	ok := t.removeLocked(id)
	t.mu.Unlock()

	if ok {
		t.notify()
	}
	return ok
}

// List returns a copy of the stack, oldest first.
func (t *Toaster) List() []dashboard.Notification {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]dashboard.Notification(nil), t.items...)
}

// Len returns the number of notifications in the stack.
func (t *Toaster) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}

// Clear stops all timers and empties the stack.
func (t *Toaster) Clear() {
	t.mu.Lock()
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
	had := len(t.items) > 0
	t.items = nil
	t.mu.Unlock()

	if had {
		t.notify()
	}
}

func (t *Toaster) retire(id string) {
	t.mu.Lock()
	i := t.indexLocked(id)
	if i < 0 {
		t.mu.Unlock()
		return
	}
	t.items[i].Retiring = true
	t.timers[id] = t.clock.AfterFunc(ExitGrace, func() { t.Dismiss(id) })
	t.mu.Unlock()

	t.notify()
}

func (t *Toaster) removeLocked(id string) bool {
	i := t.indexLocked(id)
	if i < 0 {
		return false
	}
	if timer, ok := t.timers[id]; ok {
		timer.Stop()
		delete(t.timers, id)
	}
	t.items = append(t.items[:i], t.items[i+1:]...)
	return true
}

func (t *Toaster) indexLocked(id string) int {
	for i := range t.items {
		if t.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (t *Toaster) notify() {
	t.mu.Lock()
	items := append([]dashboard.Notification(nil), t.items...)
	fns := make([]func([]dashboard.Notification), len(t.onChange))
	copy(fns, t.onChange)
	t.mu.Unlock()

	for _, fn := range fns {
		fn(items)
	}
}

// SystemBody formats the body of the OS-level notification for a new message.
func SystemBody(username, message string) string {
	if strings.TrimSpace(username) == "" {
		username = dashboard.UnknownUser
	}
	return username + ": " + render.Truncate(message, SystemBodyLimit)
}
