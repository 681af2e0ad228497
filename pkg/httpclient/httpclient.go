// Package httpclient provides an HTTP client with rate-limit aware retries,
// tuned for upstream model provider APIs.
package httpclient

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"
)

// RetryStrategy classifies how a failed status code should be retried.
type RetryStrategy int

const (
	// NoRetry fails immediately.
	NoRetry RetryStrategy = iota
	// BriefRetry retries a couple of times with short fixed delays, for
	// transient server errors.
	BriefRetry
	// BackoffRetry honors rate-limit headers when present and falls back
	// to exponential backoff, for 429-style throttling.
	BackoffRetry
)

// RateLimitInfo carries what a provider told us about its rate limits.
type RateLimitInfo struct {
	RetryAfter        time.Duration
	ResetTime         int64
	RequestsRemaining int
	TokensRemaining   int
}

// HeaderParser extracts rate-limit info from provider response headers.
type HeaderParser func(http.Header) RateLimitInfo

// StrategyFunc decides the retry strategy for a status code.
type StrategyFunc func(statusCode int) RetryStrategy

// DefaultStrategy backs off on throttling, briefly retries transient server
// errors, and fails everything else outright.
func DefaultStrategy(statusCode int) RetryStrategy {
	switch statusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return BackoffRetry
	case http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusGatewayTimeout:
		return BriefRetry
	default:
		return NoRetry
	}
}

const briefRetryLimit = 2

// Client wraps http.Client with retries. Construct with New; the zero value
// is not usable.
type Client struct {
	client     *http.Client
	maxRetries int
	baseDelay  time.Duration
	parser     HeaderParser
	strategy   StrategyFunc
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithMaxRetries sets the retry budget for backoff retries.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithBaseDelay sets the base delay for exponential backoff.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) { c.baseDelay = d }
}

// WithHeaderParser installs a provider-specific rate-limit header parser.
func WithHeaderParser(p HeaderParser) Option {
	return func(c *Client) { c.parser = p }
}

// WithStrategy replaces the status-code classification.
func WithStrategy(s StrategyFunc) Option {
	return func(c *Client) { c.strategy = s }
}

// WithLogger sets the logger used for retry notices.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a retrying client with sane provider defaults.
func New(opts ...Option) *Client {
	c := &Client{
		client:     &http.Client{Timeout: 60 * time.Second},
		maxRetries: 5,
		baseDelay:  2 * time.Second,
		strategy:   DefaultStrategy,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do executes the request, retrying per the configured strategy. Requests
// with a body must set GetBody (http.NewRequest does this for common body
// types) so retries can replay it. Waits respect the request context.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("replay request body: %w", err)
			}
			req.Body = body
		}

		resp, err := c.client.Do(req)
		if err != nil {
			// Transport errors are not retried; the caller owns
			// connection-level policy.
			return nil, err
		}
		if resp.StatusCode < 400 {
			return resp, nil
		}

		strategy := c.strategy(resp.StatusCode)
		var info RateLimitInfo
		if c.parser != nil {
			info = c.parser(resp.Header)
		}

		delay, retryable := c.nextDelay(strategy, attempt, info)
		if !retryable || attempt >= c.maxRetries {
			if strategy == NoRetry {
				return resp, fmt.Errorf("HTTP %d", resp.StatusCode)
			}
			return resp, &RetryableError{
				StatusCode: resp.StatusCode,
				Message:    fmt.Sprintf("retries exhausted after %d attempts", attempt+1),
				RetryAfter: delay,
			}
		}

		resp.Body.Close()
		c.logger.Warn("retrying request",
			"status", resp.StatusCode,
			"delay", delay,
			"attempt", attempt+1,
			"max", c.maxRetries)

		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(delay):
		}
	}
}

// nextDelay returns how long to wait before the next attempt and whether
// another attempt should happen at all.
func (c *Client) nextDelay(strategy RetryStrategy, attempt int, info RateLimitInfo) (time.Duration, bool) {
	switch strategy {
	case BackoffRetry:
		if info.RetryAfter > 0 {
			return info.RetryAfter, true
		}
		if info.ResetTime > 0 {
			if until := time.Until(time.Unix(info.ResetTime, 0)); until > 0 {
				return until, true
			}
		}
		backoff := time.Duration(math.Pow(2, float64(attempt))) * c.baseDelay
		jitter := time.Duration(float64(backoff) * 0.1)
		return backoff + jitter, true

	case BriefRetry:
		if attempt >= briefRetryLimit {
			return 0, false
		}
		return time.Duration(attempt+1) * time.Second, true

	default:
		return 0, false
	}
}
