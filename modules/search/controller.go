// Package search debounces search input and swaps the message list with
// search results.
package search

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/example/pulse-dashboard/domain/dashboard"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/jonboulle/clockwork"
)

// MinQueryLength is the shortest trimmed query that is sent.
const MinQueryLength = 2

// FailureMessage is the toast raised when a search request fails.
const FailureMessage = "Search failed"

// Searcher runs a search against the API.
type Searcher interface {
	Search(ctx context.Context, q string) ([]dashboard.MessageRecord, error)
}

// Display receives search outcomes.
type Display interface {
	ShowResults(query string, results []dashboard.MessageRecord)
	ClearSearch()
}

// ErrorReporter surfaces user-visible errors. An omitted duration means the
// reporter's default lifetime.
type ErrorReporter interface {
	Error(message string, duration ...time.Duration) dashboard.Notification
}

// Options configures a Controller.
type Options struct {
	Debounce time.Duration
	Timeout  time.Duration
	// Clock drives the debounce window; nil means the real clock.
	Clock clockwork.Clock
}

// Controller handles search box input.
type Controller struct {
	searcher Searcher
	display  Display
	errors   ErrorReporter
	logger   types.Logger
	timeout  time.Duration
	debounce *Debouncer

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	seq    uint64
	active string
}

// NewController creates a Controller.
func NewController(searcher Searcher, display Display, errors ErrorReporter, logger types.Logger, opts Options) *Controller {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		searcher: searcher,
		display:  display,
		errors:   errors,
		logger:   logger,
		timeout:  opts.Timeout,
		debounce: NewDebouncer(opts.Debounce, opts.Clock),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Input records the current search box value. Only the last value within
// the debounce window is acted upon.
func (c *Controller) Input(value string) {
	c.debounce.Trigger(func() { c.run(value) })
}

// Active returns the query whose results are displayed, or "" when the
// default list is shown.
func (c *Controller) Active() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Close drops pending input and cancels an in-flight search.
func (c *Controller) Close() {
	c.debounce.Cancel()
	c.cancel()
}

func (c *Controller) run(value string) {
	q := strings.TrimSpace(value)
	switch n := utf8.RuneCountInString(q); {
	case n == 0:
		c.mu.Lock()
		c.seq++
		c.active = ""
		c.mu.Unlock()
		c.display.ClearSearch()
		return
	case n < MinQueryLength:
		return
	}

	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
	defer cancel()

	results, err := c.searcher.Search(ctx, q)
	if err != nil {
		if c.ctx.Err() != nil {
			return
		}
		c.logger.Error("Search request failed", "query", q, "error", err)
		c.errors.Error(FailureMessage)
		return
	}

	c.mu.Lock()
	if seq != c.seq {
		c.mu.Unlock()
		c.logger.Debug("Discarding superseded search results", "query", q)
		return
	}
	c.active = q
	c.mu.Unlock()

	c.display.ShowResults(q, results)
}
