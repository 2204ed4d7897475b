package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/veya/storefront/internal/circuitbreaker"
	"github.com/veya/storefront/internal/httputil"
	"github.com/veya/storefront/internal/logger"
)

const maxResponseBytes = 4 << 20

// Observer receives one call per backend round trip. status is 0 on transport failure.
type Observer func(op, method string, status int, elapsed time.Duration)

// Options configures every Client created by a Factory.
type Options struct {
	BaseURL        string
	Timeout        time.Duration
	CSRFCookieName string
	CSRFHeaderName string
	Retry          RetryPolicy
	Breakers       *circuitbreaker.Manager
	Transport      http.RoundTripper
	Observer       Observer
}

// Factory hands out per-visitor clients that share one transport and breaker.
type Factory struct {
	opts Options
	base *url.URL
}

// NewFactory validates options and prepares the shared transport.
func NewFactory(opts Options) (*Factory, error) {
	base, err := url.Parse(strings.TrimSuffix(opts.BaseURL, "/"))
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("apiclient: invalid base url %q", opts.BaseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.CSRFCookieName == "" {
		opts.CSRFCookieName = "csrftoken"
	}
	if opts.CSRFHeaderName == "" {
		opts.CSRFHeaderName = "X-CSRFToken"
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.Transport == nil {
		opts.Transport = httputil.NewTransport()
	}
	return &Factory{opts: opts, base: base}, nil
}

// NewClient returns a client with its own cookie jar, so each visitor carries
// their own backend session and CSRF cookie.
func (f *Factory) NewClient() *Client {
	jar, _ := cookiejar.New(nil) // never errors with nil options
	return &Client{
		opts: f.opts,
		base: f.base,
		http: httputil.NewClientWithJar(f.opts.Timeout, f.opts.Transport, jar),
		jar:  jar,
	}
}

// Client talks to the storefront REST API on behalf of one visitor.
type Client struct {
	opts Options
	base *url.URL
	http *http.Client
	jar  http.CookieJar
}

type response struct {
	status int
	body   []byte
}

// csrfToken reads the CSRF cookie the backend set on this visitor's jar.
func (c *Client) csrfToken() string {
	for _, ck := range c.jar.Cookies(c.base) {
		if ck.Name == c.opts.CSRFCookieName {
			return ck.Value
		}
	}
	return ""
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimSuffix(c.base.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// send performs one round trip behind the backend breaker. Only transport
// failures and 5xx count against the breaker; 4xx are returned as responses.
func (c *Client) send(ctx context.Context, op, method, path string, query url.Values, payload any) (*response, error) {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("encode %s body: %w", op, err)
		}
	}

	out, err := c.opts.Breakers.Execute(circuitbreaker.ServiceBackendAPI, func() (interface{}, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if method != http.MethodGet {
			if token := c.csrfToken(); token != "" {
				req.Header.Set(c.opts.CSRFHeaderName, token)
			}
			// Django checks Referer on HTTPS unsafe methods.
			if c.base.Scheme == "https" {
				req.Header.Set("Referer", c.base.Scheme+"://"+c.base.Host+"/")
			}
		}

		start := time.Now()
		resp, err := c.http.Do(req)
		if err != nil {
			c.observe(op, method, 0, start)
			return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		c.observe(op, method, resp.StatusCode, start)
		if err != nil {
			return nil, fmt.Errorf("%w: read body: %w", ErrNetwork, err)
		}
		r := &response{status: resp.StatusCode, body: data}
		if resp.StatusCode >= 500 {
			return r, toAPIError(r)
		}
		return r, nil
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrOpen) {
			return nil, fmt.Errorf("%s: %w: %w", op, ErrNetwork, err)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out.(*response), nil
}

func (c *Client) observe(op, method string, status int, start time.Time) {
	if c.opts.Observer != nil {
		c.opts.Observer(op, method, status, time.Since(start))
	}
}

func toAPIError(r *response) *APIError {
	return &APIError{Status: r.status, Message: extractMessage(r.body), Body: r.body}
}

// do sends a request and turns any non-2xx into *APIError.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, payload any) ([]byte, error) {
	call := func() ([]byte, error) {
		r, err := c.send(ctx, op, method, path, query, payload)
		if err != nil {
			return nil, err
		}
		if r.status < 200 || r.status > 299 {
			return nil, fmt.Errorf("%s: %w", op, toAPIError(r))
		}
		return r.body, nil
	}

	// Only reads are retried; a repeated POST could create a second order.
	if method != http.MethodGet {
		body, err := call()
		c.logFailure(ctx, op, err)
		return body, err
	}
	body, err := withRetry(ctx, c.opts.Retry, op, call)
	c.logFailure(ctx, op, err)
	return body, err
}

func (c *Client) logFailure(ctx context.Context, op string, err error) {
	if err == nil || errors.Is(err, ErrUnauthenticated) {
		return
	}
	log := logger.FromContext(ctx)
	log.Debug().Err(err).Str("op", op).Int("status", StatusOf(err)).Msg("backend.request_failed")
}

func getList[T any](ctx context.Context, c *Client, op, path string, query url.Values) ([]T, error) {
	body, err := c.do(ctx, op, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}
	items, err := decodeList[T](body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return items, nil
}

func call[T any](ctx context.Context, c *Client, op, method, path string, payload any) (T, error) {
	body, err := c.do(ctx, op, method, path, nil, payload)
	if err != nil {
		var zero T
		return zero, err
	}
	out, err := decodeObject[T](body)
	if err != nil {
		return out, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}
