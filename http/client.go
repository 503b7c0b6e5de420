// Package http provides the outbound HTTP plumbing for YouTube: a GET client
// for watch pages and caption tracks, and a rate-limited transport for the
// Data API client. Both share one per-host rate limiter.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"ytcollect/internal/retry"
)

// DefaultUserAgent is a desktop browser UA; watch pages served to unknown
// agents omit the player response.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// maxBodySize bounds response bodies read into memory.
const maxBodySize = 10 << 20

// Config holds HTTP client configuration.
type Config struct {
	// Timeout for individual HTTP requests
	Timeout time.Duration
	// Retry policy for transient failures
	Retry retry.Config
	// UserAgent sent when the caller sets none
	UserAgent string
	// RateLimiter configuration, shared by Get and Transport
	RateLimiter RateLimiterConfig
	// CircuitBreaker configuration
	CircuitBreaker CircuitBreakerConfig
	// Logger receives retry and throttling events. Nil discards them.
	Logger *slog.Logger
}

// DefaultConfig returns defaults for talking to youtube.com and googleapis.com.
func DefaultConfig() *Config {
	return &Config{
		Timeout:        30 * time.Second,
		Retry:          retry.DefaultConfig(),
		UserAgent:      DefaultUserAgent,
		RateLimiter:    DefaultRateLimiterConfig(),
		CircuitBreaker: DefaultCircuitBreakerConfig(),
	}
}

// Client is a rate-limited, retrying GET client with a per-host circuit breaker.
// It is safe for concurrent use.
type Client struct {
	base           *http.Client
	config         *Config
	rateLimiter    *RateLimiter
	circuitBreaker *CircuitBreaker
	logger         *slog.Logger
}

// New creates a client with the given configuration. A nil cfg uses DefaultConfig.
func New(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	return &Client{
		base:           &http.Client{Timeout: cfg.Timeout, Transport: transport},
		config:         cfg,
		rateLimiter:    NewRateLimiter(cfg.RateLimiter),
		circuitBreaker: NewCircuitBreaker(cfg.CircuitBreaker),
		logger:         logger,
	}
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Get fetches urlStr, retrying throttled and 5xx responses. Other non-2xx
// responses return *HTTPError without retrying.
func (c *Client) Get(ctx context.Context, urlStr string, headers map[string]string) (*Response, error) {
	host := hostOf(urlStr)

	if err := c.circuitBreaker.Allow(host); err != nil {
		return nil, fmt.Errorf("GET %s: %w", host, err)
	}

	var out *Response
	attempt := 0
	err := retry.Do(ctx, c.config.Retry, isRetryableHTTPError, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			c.logger.Debug("retrying request", "host", host, "attempt", attempt)
		}
		if err := c.rateLimiter.WaitForBackoff(ctx, urlStr); err != nil {
			return err
		}
		if err := c.rateLimiter.Wait(ctx, urlStr); err != nil {
			return err
		}

		resp, err := c.once(ctx, urlStr, headers)
		if err != nil {
			return err
		}
		out = resp
		return nil
	})
	if err != nil {
		c.circuitBreaker.RecordFailure(host, err)
		return nil, err
	}

	c.rateLimiter.RecordSuccess(urlStr)
	c.circuitBreaker.RecordSuccess(host)
	return out, nil
}

func (c *Client) once(ctx context.Context, urlStr string, headers map[string]string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		retryAfter := parseRetryAfter(resp.Header)
		backoff := c.rateLimiter.RecordRateLimitError(urlStr, retryAfter)
		c.logger.Warn("request throttled", "host", hostOf(urlStr), "status", resp.StatusCode, "backoff", backoff)
		return nil, &RateLimitError{StatusCode: resp.StatusCode, RetryAfter: retryAfter}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{URL: urlStr, StatusCode: resp.StatusCode, Body: body}
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// isRetryableHTTPError retries throttling, 5xx responses and network errors.
func isRetryableHTTPError(err error) bool {
	if !retry.IsRetryable(err) {
		return false
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode >= 500
	}
	return true
}

// parseRetryAfter reads Retry-After as seconds or an HTTP date. Returns 0 if absent.
func parseRetryAfter(header http.Header) time.Duration {
	v := header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(v); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// Transport returns a RoundTripper that waits on the shared rate limiter
// before delegating to the client's pooled transport. The Data API client
// is built on it.
func (c *Client) Transport() http.RoundTripper {
	return &limitedTransport{next: c.base.Transport, limiter: c.rateLimiter}
}

// HTTPClient returns an *http.Client using Transport and the configured timeout.
func (c *Client) HTTPClient() *http.Client {
	return &http.Client{Timeout: c.config.Timeout, Transport: c.Transport()}
}

type limitedTransport struct {
	next    http.RoundTripper
	limiter *RateLimiter
}

func (t *limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context(), req.URL.String()); err != nil {
		return nil, err
	}
	return t.next.RoundTrip(req)
}

// CircuitState reports the breaker state for host.
func (c *Client) CircuitState(host string) CircuitState {
	return c.circuitBreaker.State(host)
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.base.CloseIdleConnections()
	return nil
}
