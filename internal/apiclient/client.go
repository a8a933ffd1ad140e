// Package apiclient is the HTTP client every portal component uses to reach
// the judge backend. It injects the session's bearer token and turns a 401
// response into a one-time forced logout.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

// Defaults match the backend's mount point and the front end's timeout.
const (
	DefaultRoot    = "/api"
	DefaultTimeout = 10 * time.Second
	maxErrorBody   = 64 << 10
)

// Expirer is notified when the backend rejects the session.
type Expirer interface {
	Expire() bool
}

// Observer receives the status of every response, or 0 when the request
// failed before one arrived.
type Observer func(method string, status int)

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithTransport sets the underlying transport (tests, proxies).
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.base = rt }
}

// WithExpirer sets the forced-logout coordinator.
func WithExpirer(e Expirer) Option {
	return func(c *Client) { c.expirer = e }
}

// WithObserver registers a response observer.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observe = o }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// Client talks JSON to the backend under a fixed API root.
type Client struct {
	http    *http.Client
	base    http.RoundTripper
	baseURL string
	tokens  TokenSource
	expirer Expirer
	observe Observer
	logger  *slog.Logger
}

// New creates a client rooted at origin+root (for example
// "http://localhost:8000" + "/api"). An empty origin yields a
// same-origin root such as "/api", which is only usable for URL building.
func New(origin, root string, tokens TokenSource, opts ...Option) *Client {
	if root == "" {
		root = DefaultRoot
	}
	c := &Client{
		http:    &http.Client{Timeout: DefaultTimeout},
		base:    http.DefaultTransport,
		baseURL: strings.TrimRight(origin, "/") + "/" + strings.Trim(root, "/"),
		tokens:  tokens,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http.Transport = &bearerTransport{base: c.base, tokens: tokens}
	return c
}

// BaseURL returns the configured API root, for example "/api".
func (c *Client) BaseURL() string { return c.baseURL }

// Timeout returns the per-request timeout.
func (c *Client) Timeout() time.Duration { return c.http.Timeout }

// Do sends a request to path (relative to the API root). A non-nil body is
// encoded as JSON; a non-nil out receives the decoded 2xx response body.
// Non-2xx responses return *StatusError. A 401 additionally starts the
// forced-logout sequence; the error is still returned to the caller.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var (
		rdr         io.Reader
		contentType string
	)
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("apiclient: encode body: %w", err)
		}
		rdr = bytes.NewReader(buf)
		contentType = "application/json"
	}
	return c.send(ctx, method, path, rdr, contentType, out)
}

// Upload posts data as the single file field of a multipart form.
func (c *Client) Upload(ctx context.Context, path, field, filename, fileType string, data []byte, out any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	h.Set("Content-Type", fileType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("apiclient: build form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("apiclient: build form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("apiclient: build form: %w", err)
	}
	return c.send(ctx, http.MethodPost, path, &buf, mw.FormDataContentType(), out)
}

func (c *Client) send(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	url := c.baseURL + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("apiclient: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if c.observe != nil {
			c.observe(method, 0)
		}
		return fmt.Errorf("apiclient: %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	if c.observe != nil {
		c.observe(method, resp.StatusCode)
	}

	if resp.StatusCode == http.StatusUnauthorized && c.expirer != nil {
		if c.expirer.Expire() {
			c.logger.Warn("session rejected by backend",
				slog.String("method", method), slog.String("url", url))
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Method: method, URL: url, Status: resp.StatusCode, Body: data}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("apiclient: decode %s %s: %w", method, url, err)
	}
	return nil
}

// Get is Do with GET.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post is Do with POST.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}
