// Package httputil fetches remote resources with retries on transient
// failures.
package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "httputil")

const (
	DefaultMaxRetries  = 3
	DefaultBaseDelay   = 500 * time.Millisecond
	DefaultMaxDelay    = 10 * time.Second
	DefaultHTTPTimeout = 30 * time.Second
	// DefaultMaxBodySize bounds ReadAll.
	DefaultMaxBodySize int64 = 64 << 20
)

// ErrBodyTooLarge is returned by ReadAll when the body exceeds the limit.
var ErrBodyTooLarge = errors.New("response body too large")

// StatusError is a non-2xx response that was not retried, or the last one
// seen when retries ran out.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d", e.URL, e.StatusCode)
}

func retryable(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Option configures a Client built by NewClient.
type Option func(*Client)

// WithMaxRetries sets how many times a request is retried. Zero disables
// retries.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithBaseDelay sets the delay bound of the first retry. Later bounds double.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) { c.baseDelay = d }
}

// WithMaxDelay caps the backoff bound.
func WithMaxDelay(d time.Duration) Option {
	return func(c *Client) { c.maxDelay = d }
}

// WithMaxBodySize bounds the bodies ReadAll accepts, in bytes.
func WithMaxBodySize(n int64) Option {
	return func(c *Client) { c.maxBodySize = n }
}

// WithHTTPClient replaces the underlying client, timeouts included.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// Client is an http.Client that retries connection errors and 429/5xx
// responses with jittered exponential backoff.
type Client struct {
	httpClient  *http.Client
	maxRetries  int
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxBodySize int64
}

// NewClient returns a Client with the Default* settings overridden by opts.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient:  &http.Client{Timeout: DefaultHTTPTimeout},
		maxRetries:  DefaultMaxRetries,
		baseDelay:   DefaultBaseDelay,
		maxDelay:    DefaultMaxDelay,
		maxBodySize: DefaultMaxBodySize,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get performs a GET and returns the first response that is not
// retryable. The caller closes its body.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt)
			log.WithFields(logrus.Fields{"url": url, "attempt": attempt, "delay": delay}).
				Debugf("retrying: %v", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		if !retryable(resp.StatusCode) {
			return resp, nil
		}
		lastErr = &StatusError{URL: url, StatusCode: resp.StatusCode}
		resp.Body.Close()
	}
	return nil, fmt.Errorf("%w (after %d retries)", lastErr, c.maxRetries)
}

// ReadAll fetches url and returns its body with the response Content-Type.
// Any non-2xx status is an error.
func (c *Client) ReadAll(ctx context.Context, url string) ([]byte, string, error) {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize+1))
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", url, err)
	}
	if int64(len(body)) > c.maxBodySize {
		return nil, "", fmt.Errorf("%s: %w", url, ErrBodyTooLarge)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// IsURL reports whether s is an http or https URL.
func IsURL(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// backoff returns a uniform delay in [0, base*2^(attempt-1)], capped at
// maxDelay.
func (c *Client) backoff(attempt int) time.Duration {
	delay := c.baseDelay
	for i := 1; i < attempt && delay < c.maxDelay; i++ {
		delay *= 2
	}
	delay = min(delay, c.maxDelay)
	if delay <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(delay) + 1))
}
