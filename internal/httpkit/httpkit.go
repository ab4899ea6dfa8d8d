// Package httpkit builds the HTTP clients used to reach a SharpAI
// server and holds the small response helpers shared by the SDK.
//
// Generation requests can sit for minutes before the first header byte
// arrives, so transports carry no response header timeout. Unary calls
// are bounded with [WithTimeout]; streaming calls use a zero timeout and
// rely on their context.
package httpkit

import (
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/sharpai/sharpai-go/internal/buildinfo"
)

// Transport defaults.
const (
	DialTimeout         = 10 * time.Second
	KeepAlive           = 30 * time.Second
	TLSHandshakeTimeout = 10 * time.Second
	IdleConnTimeout     = 90 * time.Second

	// A client talks to a single server, so the per-host limit is the
	// whole pool.
	MaxIdleConnsPerHost = 8

	// DefaultClientTimeout bounds a whole request when no timeout is given.
	DefaultClientTimeout = 5 * time.Minute
)

// ClientOption configures a client built by NewClient.
type ClientOption func(*clientConfig)

type clientConfig struct {
	timeout     time.Duration
	userAgent   string
	insecureTLS bool
}

// WithTimeout sets http.Client.Timeout. Zero disables it, which a
// streaming client needs so a long body is not cut off mid-read.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) { c.timeout = d }
}

// WithUserAgent replaces the default User-Agent. An empty string sends
// Go's own.
func WithUserAgent(ua string) ClientOption {
	return func(c *clientConfig) { c.userAgent = ua }
}

// WithInsecureTLS skips certificate verification, for servers on a LAN
// with self-signed certificates.
func WithInsecureTLS() ClientOption {
	return func(c *clientConfig) { c.insecureTLS = true }
}

// NewTransport returns the transport shape every client starts from.
func NewTransport() *http.Transport {
	d := &net.Dialer{Timeout: DialTimeout, KeepAlive: KeepAlive}
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         d.DialContext,
		TLSHandshakeTimeout: TLSHandshakeTimeout,
		IdleConnTimeout:     IdleConnTimeout,
		MaxIdleConns:        MaxIdleConnsPerHost,
		MaxIdleConnsPerHost: MaxIdleConnsPerHost,
		ForceAttemptHTTP2:   true,
	}
}

// NewClient builds an *http.Client on a fresh transport that stamps the
// module's User-Agent on every request.
func NewClient(opts ...ClientOption) *http.Client {
	cfg := clientConfig{
		timeout:   DefaultClientTimeout,
		userAgent: buildinfo.UserAgent(),
	}
	for _, o := range opts {
		o(&cfg)
	}

	t := NewTransport()
	if cfg.insecureTLS {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // explicit opt-in
	}

	var rt http.RoundTripper = t
	if cfg.userAgent != "" {
		rt = userAgent{next: t, value: cfg.userAgent}
	}
	return &http.Client{Timeout: cfg.timeout, Transport: rt}
}

type userAgent struct {
	next  http.RoundTripper
	value string
}

func (u userAgent) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return u.next.RoundTrip(req)
	}
	// A RoundTripper must not modify the caller's request.
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", u.value)
	return u.next.RoundTrip(r)
}

// IsChunked reports whether resp delivers its body incrementally: the
// server declared chunked transfer encoding, or sent no length at all.
func IsChunked(resp *http.Response) bool {
	if resp == nil {
		return false
	}
	return slices.Contains(resp.TransferEncoding, "chunked") || resp.ContentLength < 0
}

// ReadErrorBody returns up to limit bytes of rc for an error message,
// discards a bounded remainder so the connection can be reused, and
// closes rc. A nil rc yields "".
func ReadErrorBody(rc io.ReadCloser, limit int64) string {
	if rc == nil {
		return ""
	}
	defer rc.Close()

	body, err := io.ReadAll(io.LimitReader(rc, limit))
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 64*1024))
	if err != nil {
		return fmt.Sprintf("(failed to read error body: %v)", err)
	}
	return string(body)
}
