// Package httpclient is the outbound HTTP client used by the marketplace and
// game-data adapters: logging, default headers, retries through pkg/retry and
// error kinds from internal/shared.
package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	stdhttp "net/http"
	"net/url"
	"strconv"
	"time"

	"opportunity/internal/shared"
	"opportunity/pkg/retry"
)

// maxBodySize bounds decoded JSON responses.
const maxBodySize = 4 << 20

// Client wraps http.Client with logging and retries.
type Client struct {
	hc      *stdhttp.Client
	log     *slog.Logger
	retry   retry.Config
	headers map[string]string
}

// Option configures Client.
type Option func(*Client)

// WithTimeout sets the per-attempt timeout.
func WithTimeout(t time.Duration) Option {
	return func(c *Client) { c.hc.Timeout = t }
}

// WithLogger sets logger used by client.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithRetry replaces the retry policy. MaxAttempts 1 disables retries.
func WithRetry(cfg retry.Config) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithHeaders adds default headers to each request.
func WithHeaders(h map[string]string) Option {
	return func(c *Client) {
		for k, v := range h {
			c.headers[k] = v
		}
	}
}

// WithTransport sets custom transport.
func WithTransport(rt stdhttp.RoundTripper) Option {
	return func(c *Client) {
		if rt != nil {
			c.hc.Transport = rt
		}
	}
}

// New creates configured Client.
func New(opts ...Option) *Client {
	tr := stdhttp.DefaultTransport.(*stdhttp.Transport).Clone()
	tr.MaxIdleConnsPerHost = 10
	tr.IdleConnTimeout = 90 * time.Second
	tr.TLSHandshakeTimeout = 10 * time.Second
	tr.ResponseHeaderTimeout = 10 * time.Second

	cfg := retry.DefaultConfig()
	cfg.InitialDelay = 200 * time.Millisecond
	cfg.MaxDelay = 5 * time.Second

	c := &Client{
		hc: &stdhttp.Client{
			Timeout:   15 * time.Second,
			Transport: tr,
		},
		log:     slog.Default(),
		retry:   cfg,
		headers: map[string]string{"User-Agent": "opportunity-bot"},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
}

// Unwrap maps the status to an error kind from internal/shared.
func (e *StatusError) Unwrap() error {
	switch {
	case e.StatusCode == stdhttp.StatusNotFound:
		return shared.ErrNotFound
	case e.StatusCode == stdhttp.StatusTooManyRequests:
		return shared.ErrRateLimited
	case e.StatusCode == stdhttp.StatusRequestTimeout, e.StatusCode == stdhttp.StatusGatewayTimeout:
		return shared.ErrTimeout
	case e.StatusCode >= 500:
		return shared.ErrDependencyFailure
	default:
		return shared.ErrValidation
	}
}

// RetryDelay implements retry.DelayHinter.
func (e *StatusError) RetryDelay() time.Duration {
	return e.RetryAfter
}

// Temporary reports whether the request may succeed if repeated.
func (e *StatusError) Temporary() bool {
	switch e.StatusCode {
	case stdhttp.StatusRequestTimeout, stdhttp.StatusTooEarly, stdhttp.StatusTooManyRequests:
		return true
	default:
		return e.StatusCode >= 500
	}
}

func isRetryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return retry.DefaultRetryable(err)
}

// Do sends req, retrying idempotent methods on transient failures. A non-2xx
// response is returned as *StatusError with the body already closed.
func (c *Client) Do(ctx context.Context, req *stdhttp.Request) (*stdhttp.Response, error) {
	cfg := c.retry
	if req.Method != stdhttp.MethodGet && req.Method != stdhttp.MethodHead {
		cfg.MaxAttempts = 1
	}
	cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		c.log.Warn("http request failed, retrying",
			slog.String("method", req.Method),
			slog.String("url", c.redactURL(req.URL)),
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.Any("error", err))
	}

	var resp *stdhttp.Response
	err := retry.DoWithRetryable(ctx, cfg, func(ctx context.Context) error {
		var err error
		resp, err = c.once(ctx, req)
		return err
	}, isRetryable)
	if err != nil {
		var exceeded *retry.RetriesExceededError
		if errors.As(err, &exceeded) {
			err = exceeded.LastError
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) once(ctx context.Context, req *stdhttp.Request) (*stdhttp.Response, error) {
	r := req.Clone(ctx)
	for k, v := range c.headers {
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		r.Body = body
	}

	u := c.redactURL(r.URL)
	start := time.Now()
	resp, err := c.hc.Do(r)
	if err != nil {
		return nil, err
	}
	c.log.Debug("http request",
		slog.String("method", r.Method),
		slog.String("url", u),
		slog.Int("status", resp.StatusCode),
		slog.Duration("dur", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		drainAndClose(resp.Body)
		return nil, &StatusError{
			Method:     r.Method,
			URL:        u,
			StatusCode: resp.StatusCode,
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return resp, nil
}

// GetJSON performs a GET request and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, rawURL string, query url.Values, out any) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return shared.MarkKind(fmt.Errorf("parse url: %w", err), shared.KindValidation)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	req, err := stdhttp.NewRequestWithContext(ctx, stdhttp.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(ctx, req)
	if err != nil {
		return shared.MarkKind(err, kindOf(err))
	}
	defer drainAndClose(resp.Body)

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(out); err != nil {
		return shared.MarkKind(fmt.Errorf("decode %s: %w", c.redactURL(u), err), shared.KindDependencyFailure)
	}
	return nil
}

// kindOf keeps kinds already carried by err and treats the rest as an
// unreachable dependency.
func kindOf(err error) shared.Kind {
	if k := shared.KindOf(err); k != shared.KindUnknown {
		return k
	}
	return shared.KindDependencyFailure
}

func (c *Client) redactURL(u *url.URL) string {
	return u.Redacted()
}

// retryAfter parses Retry-After header value.
func retryAfter(h string) time.Duration {
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil {
		return max(time.Duration(secs)*time.Second, 0)
	}
	if t, err := stdhttp.ParseTime(h); err == nil {
		return max(time.Until(t), 0)
	}
	return 0
}

// drainAndClose drains up to 512KB from body and closes it.
func drainAndClose(b io.ReadCloser) {
	if b == nil {
		return
	}
	_, _ = io.CopyN(io.Discard, b, 512<<10)
	_ = b.Close()
}
