// Package upstream is the request/response client for the support server's
// JSON API.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/example/pulse-dashboard/domain/dashboard"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

// DefaultTimeout bounds a request when the caller sets no timeout.
const DefaultTimeout = 10 * time.Second

// API paths.
const (
	PathStats          = "/api/stats"
	PathRecentMessages = "/api/recent-messages"
	PathSearch         = "/search"
)

// StatusError is returned for responses outside the 2xx range.
type StatusError struct {
	Code int
	Text string
	Path string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d %s", e.Path, e.Code, e.Text)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

type request struct {
	headers map[string]string
	query   url.Values
	body    []byte
	timeout time.Duration
}

// Option adjusts a single request.
type Option func(*request)

// WithHeader sets a request header. It overrides the default content type
// when key is Content-Type.
func WithHeader(key, value string) Option {
	return func(r *request) {
		r.headers[key] = value
	}
}

// WithQuery adds a query parameter.
func WithQuery(key, value string) Option {
	return func(r *request) {
		r.query.Add(key, value)
	}
}

// WithBody sets a raw request body.
func WithBody(body []byte) Option {
	return func(r *request) {
		r.body = body
	}
}

// WithTimeout overrides the client timeout for one request.
func WithTimeout(d time.Duration) Option {
	return func(r *request) {
		r.timeout = d
	}
}

// Client calls the upstream JSON API.
type Client struct {
	base    *url.URL
	timeout time.Duration
}

// NewClient creates a client for the API rooted at base.
func NewClient(base *url.URL, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{base: base, timeout: timeout}
}

type response struct {
	code int
	body []byte
	errs []error
}

// Request issues method on path and returns the raw response body. Any
// non-2xx status is a *StatusError. The fiber agent has no context support,
// so a cancelled ctx returns at once and the abandoned request runs out on
// its timeout.
func (c *Client) Request(ctx context.Context, method, path string, opts ...Option) ([]byte, error) {
	req := &request{
		headers: map[string]string{fiber.HeaderContentType: fiber.MIMEApplicationJSON},
		query:   url.Values{},
		timeout: c.timeout,
	}
	for _, opt := range opts {
		opt(req)
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < req.timeout {
			req.timeout = left
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target := c.resolve(path, req.query)

	agent := fiber.AcquireAgent()
	r := agent.Request()
	r.Header.SetMethod(method)
	r.SetRequestURI(target)
	for k, v := range req.headers {
		agent.Set(k, v)
	}
	if req.body != nil {
		agent.Body(req.body)
	}
	agent.Timeout(req.timeout)
	if err := agent.Parse(); err != nil {
		fiber.ReleaseAgent(agent)
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	done := make(chan response, 1)
	go func() {
		code, body, errs := agent.Bytes()
		done <- response{code: code, body: body, errs: errs}
	}()

	var resp response
	select {
	case resp = <-done:
	case <-ctx.Done():
		return nil, fmt.Errorf("%s %s: %w", method, path, ctx.Err())
	}
	if len(resp.errs) > 0 {
		return nil, fmt.Errorf("%s %s: %w", method, path, errors.Join(resp.errs...))
	}
	if resp.code < fiber.StatusOK || resp.code >= fiber.StatusMultipleChoices {
		return nil, &StatusError{Code: resp.code, Text: utils.StatusMessage(resp.code), Path: path}
	}
	return resp.body, nil
}

// Get issues a GET request and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, path string, out any, opts ...Option) error {
	body, err := c.Request(ctx, fiber.MethodGet, path, opts...)
	if err != nil {
		return err
	}
	return decode(path, body, out)
}

// Post encodes in as JSON, issues a POST request and decodes the response
// into out. A nil out discards the response body.
func (c *Client) Post(ctx context.Context, path string, in, out any, opts ...Option) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", path, err)
	}
	opts = append([]Option{WithBody(payload)}, opts...)
	body, err := c.Request(ctx, fiber.MethodPost, path, opts...)
	if err != nil {
		return err
	}
	return decode(path, body, out)
}

// Stats fetches the current stats snapshot.
func (c *Client) Stats(ctx context.Context) (*dashboard.StatsSnapshot, error) {
	var stats dashboard.StatsSnapshot
	if err := c.Get(ctx, PathStats, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// RecentMessages fetches the default message list.
func (c *Client) RecentMessages(ctx context.Context) ([]dashboard.MessageRecord, error) {
	var resp dashboard.MessagesResponse
	if err := c.Get(ctx, PathRecentMessages, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// Search queries messages matching q.
func (c *Client) Search(ctx context.Context, q string) ([]dashboard.MessageRecord, error) {
	var resp dashboard.SearchResponse
	if err := c.Get(ctx, PathSearch, &resp, WithQuery("q", q)); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// ChatURL returns the absolute URL of a chat page on the upstream server.
func (c *Client) ChatURL(chatPath string) string {
	u := *c.base
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return strings.TrimSuffix(u.String(), "/") + chatPath
}

func (c *Client) resolve(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawPath = ""
	u.RawQuery = query.Encode()
	return u.String()
}

func decode(path string, body []byte, out any) error {
	if out == nil || len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
