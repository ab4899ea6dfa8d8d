// Package sdk is the HTTP core shared by the Ollama and OpenAI method
// sets. A [Client] owns the endpoint, the HTTP clients, the logging
// switches and the event bus; the generic helpers in this package turn
// requests into decoded values or into [stream.Stream] sessions.
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sharpai/sharpai-go/internal/events"
	"github.com/sharpai/sharpai-go/internal/httpkit"
)

// DefaultTimeout bounds unary requests when no timeout option is given.
const DefaultTimeout = 5 * time.Minute

// levelTrace carries request and response payloads.
const levelTrace = slog.Level(-8)

// errorBodyLimit bounds the body excerpt kept on a StatusError.
const errorBodyLimit = 4096

// Client talks to one SharpAI server.
type Client struct {
	endpoint     string
	unary        *http.Client
	streaming    *http.Client
	logger       *slog.Logger
	logRequests  bool
	logResponses bool
	bus          *events.Bus

	timeout     time.Duration
	insecureTLS bool
	httpClient  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds each unary request. Streaming requests are bounded
// by their context only.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithInsecureTLS skips certificate verification on the clients New
// builds. It has no effect together with WithHTTPClient.
func WithInsecureTLS(on bool) Option {
	return func(c *Client) { c.insecureTLS = on }
}

// WithHTTPClient sends every request, unary and streaming, through hc.
// The timeout options then no longer apply.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithLogRequests logs the method, URL and size of each request.
func WithLogRequests(on bool) Option {
	return func(c *Client) { c.logRequests = on }
}

// WithLogResponses logs the status and body of each unary response.
func WithLogResponses(on bool) Option {
	return func(c *Client) { c.logResponses = on }
}

// WithEvents publishes request, response and stream events on bus.
func WithEvents(bus *events.Bus) Option {
	return func(c *Client) { c.bus = bus }
}

// New creates a client for endpoint, a base URL such as
// "http://localhost:8000". A trailing slash is ignored.
func New(endpoint string, opts ...Option) (*Client, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("endpoint %q: scheme must be http or https", endpoint)
	}

	c := &Client{
		endpoint: endpoint,
		timeout:  DefaultTimeout,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}

	if c.httpClient != nil {
		c.unary, c.streaming = c.httpClient, c.httpClient
	} else {
		c.unary = c.newHTTPClient(c.timeout)
		c.streaming = c.newHTTPClient(0)
	}
	return c, nil
}

func (c *Client) newHTTPClient(timeout time.Duration) *http.Client {
	opts := []httpkit.ClientOption{httpkit.WithTimeout(timeout)}
	if c.insecureTLS {
		opts = append(opts, httpkit.WithInsecureTLS())
	}
	return httpkit.NewClient(opts...)
}

// Endpoint returns the base URL requests are sent to.
func (c *Client) Endpoint() string { return c.endpoint }

// Logger returns the client's logger.
func (c *Client) Logger() *slog.Logger { return c.logger }

// Events returns the bus events are published on, possibly nil.
func (c *Client) Events() *events.Bus { return c.bus }

// call is one request in flight.
type call struct {
	id     string
	method string
	path   string
	source string
	start  time.Time
	log    *slog.Logger
}

func (c *Client) newCall(method, path string) *call {
	id := ""
	if v, err := uuid.NewV7(); err == nil {
		id = v.String()
	}
	return &call{
		id:     id,
		method: method,
		path:   path,
		source: sourceFor(path),
		start:  time.Now(),
		log:    c.logger.With("session_id", id, "method", method, "path", path),
	}
}

// sourceFor names the API surface a path belongs to.
func sourceFor(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/"):
		return events.SourceOllama
	case strings.HasPrefix(path, "/v1/"):
		return events.SourceOpenAI
	default:
		return events.SourceSDK
	}
}

// send marshals body and issues the request with hc. A nil body sends
// no payload.
func (c *Client) send(ctx context.Context, hc *http.Client, cl *call, body any) (*http.Response, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s %s request: %w", cl.method, cl.path, err)
		}
	}

	var rdr io.Reader
	if payload != nil {
		rdr = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, cl.method, c.endpoint+cl.path, rdr)
	if err != nil {
		return nil, fmt.Errorf("create %s %s request: %w", cl.method, cl.path, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.logRequests {
		cl.log.Debug("sending request", "url", req.URL.String(), "bytes", len(payload))
		cl.log.Log(ctx, levelTrace, "request body", "body", string(payload))
	}
	c.bus.Emit(cl.source, events.KindRequest, map[string]any{
		"session_id": cl.id,
		"method":     cl.method,
		"path":       cl.path,
		"bytes":      len(payload),
	})

	resp, err := hc.Do(req)
	if err != nil {
		cl.log.Warn("request failed", "error", err)
		return nil, fmt.Errorf("%s %s: %w", cl.method, cl.path, err)
	}

	c.bus.Emit(cl.source, events.KindResponse, map[string]any{
		"session_id": cl.id,
		"method":     cl.method,
		"path":       cl.path,
		"status":     resp.StatusCode,
		"elapsed_ms": time.Since(cl.start).Milliseconds(),
	})
	return resp, nil
}

// ReadResponse reads the whole body of resp and closes it. Chunked and
// fixed-length bodies are handled alike.
func ReadResponse(resp *http.Response) (string, error) {
	if resp == nil || resp.Body == nil {
		return "", nil
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return string(data), fmt.Errorf("read response body: %w", err)
	}
	return string(data), nil
}

// raw issues a request and returns the response body. Non-2xx statuses
// produce a *StatusError.
func (c *Client) raw(ctx context.Context, method, path string, body any) (string, error) {
	cl := c.newCall(method, path)
	resp, err := c.send(ctx, c.unary, cl, body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data := httpkit.ReadErrorBody(resp.Body, errorBodyLimit)
		cl.log.Warn("non-success response", "status", resp.StatusCode, "bytes", len(data))
		cl.log.Log(ctx, levelTrace, "non-success response body", "body", data)
		return "", newStatusError(method, path, resp.StatusCode, data)
	}

	data, err := ReadResponse(resp)
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", method, path, err)
	}
	if c.logResponses {
		cl.log.Debug("response received", "status", resp.StatusCode, "bytes", len(data))
		cl.log.Log(ctx, levelTrace, "response body", "body", data)
	}
	cl.log.Debug("success", "status", resp.StatusCode, "bytes", len(data),
		"elapsed", time.Since(cl.start).Round(time.Millisecond))
	return data, nil
}

// GetRaw issues a GET and returns the response body unparsed.
func (c *Client) GetRaw(ctx context.Context, path string) (string, error) {
	return c.raw(ctx, http.MethodGet, path, nil)
}

// PostRaw issues a POST with a JSON body and returns the response body
// unparsed.
func (c *Client) PostRaw(ctx context.Context, path string, body any) (string, error) {
	return c.raw(ctx, http.MethodPost, path, body)
}

func unary[T any](ctx context.Context, c *Client, method, path string, body any) (*T, error) {
	data, err := c.raw(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(data) == "" {
		c.logger.Debug("empty response body", "method", method, "path", path)
		return nil, nil
	}
	var out *T
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return out, nil
}

// Post sends body as JSON and decodes the response into a T. An empty
// success body yields nil and no error.
func Post[T any](ctx context.Context, c *Client, path string, body any) (*T, error) {
	return unary[T](ctx, c, http.MethodPost, path, body)
}

// Get decodes the response of a GET into a T.
func Get[T any](ctx context.Context, c *Client, path string) (*T, error) {
	return unary[T](ctx, c, http.MethodGet, path, nil)
}

// Delete sends a DELETE carrying body as JSON and decodes the response.
func Delete[T any](ctx context.Context, c *Client, path string, body any) (*T, error) {
	return unary[T](ctx, c, http.MethodDelete, path, body)
}
