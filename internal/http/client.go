package http

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

// maxDetailBytes caps how much of an error response body is kept in a
// TransportError.
const maxDetailBytes = 512

// Options configures the HTTP client.
type Options struct {
	// MaxIdleConnsPerHost sets the maximum idle connections per host.
	// Default: 16
	MaxIdleConnsPerHost int

	// Timeout bounds each individual attempt.
	// Default: 30s
	Timeout time.Duration

	// RetryAttempts is the number of additional attempts after the first.
	// Default: 2
	RetryAttempts int

	// RetryDelay is the fixed wait before every retry.
	// Default: 1s
	RetryDelay time.Duration

	// APIVersion is appended to every URL as the api-version query parameter.
	// Default: 6.0
	APIVersion string
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxIdleConnsPerHost: 16,
		Timeout:             30 * time.Second,
		RetryAttempts:       2,
		RetryDelay:          time.Second,
		APIVersion:          "6.0",
	}
}

// TransportError describes one failed attempt.
type TransportError struct {
	Method     string
	URL        string
	StatusCode int // zero for connection-level failures
	Retryable  bool
	Detail     string
	Err        error
}

func (e *TransportError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", e.Method, e.URL)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, ": %s", e.Detail)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTerminal reports whether err carries a non-retryable TransportError.
func IsTerminal(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && !te.Retryable
}

// Client sends authenticated requests to the repository API and retries
// transient failures. It is safe for concurrent use.
type Client struct {
	client *http.Client
	opts   Options
	auth   string
}

// NewClient creates a new HTTP client that authenticates with token.
func NewClient(token string, opts Options) *Client {
	def := DefaultOptions()
	if opts.MaxIdleConnsPerHost <= 0 {
		opts.MaxIdleConnsPerHost = def.MaxIdleConnsPerHost
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.RetryAttempts < 0 {
		opts.RetryAttempts = 0
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}
	if opts.APIVersion == "" {
		opts.APIVersion = def.APIVersion
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: opts.MaxIdleConnsPerHost,
		MaxIdleConns:        opts.MaxIdleConnsPerHost * 2,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		// Timeouts are applied per attempt through the request context.
		client: &http.Client{Transport: transport},
		opts:   opts,
		auth:   BasicAuth(token),
	}
}

// Options returns the effective client options.
func (c *Client) Options() Options {
	return c.opts
}

// Get performs a GET request and returns the response body.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	return c.Send(ctx, http.MethodGet, rawURL, nil)
}

// Post sends body as JSON and returns the response body.
func (c *Client) Post(ctx context.Context, rawURL string, body any) ([]byte, error) {
	return c.Send(ctx, http.MethodPost, rawURL, body)
}

// Send issues one logical request. A nil body is sent without a payload;
// anything else is encoded as JSON. HTTP 400 fails immediately, every other
// failure is retried up to RetryAttempts more times.
func (c *Client) Send(ctx context.Context, method, rawURL string, body any) ([]byte, error) {
	target, err := WithAPIVersion(rawURL, c.opts.APIVersion)
	if err != nil {
		return nil, err
	}

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
	}

	var errs *multierror.Error
	attempts := c.opts.RetryAttempts + 1

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := c.wait(ctx); err != nil {
				return nil, err
			}
		}

		data, err := c.do(ctx, method, target, payload)
		if err == nil {
			return data, nil
		}

		var te *TransportError
		if !errors.As(err, &te) {
			// Caller cancellation or a malformed request; retrying cannot help.
			return nil, err
		}
		if !te.Retryable {
			return nil, te
		}
		errs = multierror.Append(errs, te)
	}

	return nil, fmt.Errorf("%s request failed after %d attempts: %w", method, attempts, errs.ErrorOrNil())
}

// do performs a single attempt under its own timeout.
func (c *Client) do(ctx context.Context, method, target string, payload []byte) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(attemptCtx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", c.auth)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransportError{
			Method:    method,
			URL:       redact(target),
			Retryable: true,
			Err:       err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &TransportError{
				Method:     method,
				URL:        redact(target),
				StatusCode: resp.StatusCode,
				Retryable:  true,
				Err:        fmt.Errorf("read body: %w", err),
			}
		}
		return data, nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxDetailBytes))
	_, _ = io.Copy(io.Discard, resp.Body)

	return nil, &TransportError{
		Method:     method,
		URL:        redact(target),
		StatusCode: resp.StatusCode,
		Retryable:  resp.StatusCode != http.StatusBadRequest,
		Detail:     strings.TrimSpace(string(detail)),
	}
}

// wait sleeps for the fixed retry delay.
func (c *Client) wait(ctx context.Context) error {
	if c.opts.RetryDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(c.opts.RetryDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// BasicAuth returns the Authorization header value for a personal access
// token: the token as password with an empty user name.
func BasicAuth(token string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(":"+token))
}

// WithAPIVersion appends the api-version query parameter to rawURL. A
// trailing slash on the path is dropped and an existing api-version is kept.
func WithAPIVersion(rawURL, version string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q must include scheme and host", rawURL)
	}

	u.Path = strings.TrimRight(u.Path, "/")
	if u.RawPath != "" {
		u.RawPath = strings.TrimRight(u.RawPath, "/")
	}
	if version == "" || u.Query().Has("api-version") {
		return u.String(), nil
	}

	param := "api-version=" + url.QueryEscape(version)
	if u.RawQuery == "" {
		u.RawQuery = param
	} else {
		u.RawQuery += "&" + param
	}
	return u.String(), nil
}

// redact strips user info from a URL before it is put into an error.
func redact(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	return u.Redacted()
}
