package github

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/LiteObject/github-traffic-monitor/pkg/errors"
	"github.com/LiteObject/github-traffic-monitor/pkg/logger"
)

var (
	baseURL = "https://api.github.com"
)

// RetryConfig holds the transient-failure and throttling knobs. It is
// plain passed-in configuration so tests can drive the client with a fake
// clock and recorded sleeps.
type RetryConfig struct {
	// MaxAttempts caps retries of network-level failures per call.
	MaxAttempts int
	// BaseBackoff is the first retry delay; it doubles after each
	// consecutive network failure and resets once an attempt reaches
	// the server.
	BaseBackoff time.Duration
	// RemainingThreshold triggers proactive throttling when the
	// remaining-call budget drops below it.
	RemainingThreshold int
	// ResetMargin is added past the published reset time before resuming.
	ResetMargin time.Duration
	// DefaultWait applies when the server names no wait duration.
	DefaultWait time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:        3,
		BaseBackoff:        2 * time.Second,
		RemainingThreshold: 50,
		ResetMargin:        5 * time.Second,
		DefaultWait:        60 * time.Second,
	}
}

// Response is the uniform outcome of one API call: a terminal status with
// headers and body. Transport-level failures surface as errors instead.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r *Response) OK() bool {
	return r.StatusCode == http.StatusOK
}

type Client struct {
	httpClient *http.Client
	token      string
	username   string
	cfg        RetryConfig

	// pacing between dependent calls, independent of failure backoff
	pageDelay time.Duration
	callDelay time.Duration

	// delay before the next network-error retry; owned exclusively by
	// Get, which is never called concurrently
	retryDelay time.Duration

	sleep func(time.Duration)
	now   func() time.Time
}

func NewClient(token, username string) *Client {
	return NewClientWithConfig(token, username, DefaultRetryConfig())
}

func NewClientWithConfig(token, username string, cfg RetryConfig) *Client {
	// One persistent connection: all access is sequential by design, and
	// the shared per-token quota punishes parallel fan-out anyway.
	transport := &http.Transport{
		MaxConnsPerHost:     1,
		MaxIdleConns:        1,
		MaxIdleConnsPerHost: 1,
	}

	client := &http.Client{
		Timeout:   30 * time.Second,
		Transport: transport,
	}

	return &Client{
		httpClient: client,
		token:      token,
		username:   username,
		cfg:        cfg,
		pageDelay:  500 * time.Millisecond,
		callDelay:  500 * time.Millisecond,
		retryDelay: cfg.BaseBackoff,
		sleep:      time.Sleep,
		now:        time.Now,
	}
}

func (c *Client) Username() string {
	return c.username
}

// permanentError marks request-construction failures, which are never
// retried.
type permanentError struct {
	cause error
}

func (e *permanentError) Error() string { return e.cause.Error() }
func (e *permanentError) Unwrap() error { return e.cause }

func (c *Client) doOnce(ctx context.Context, fullURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, &permanentError{cause: err}
	}

	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// Get issues a single GET against the API and always hands back either a
// terminal Response (whatever its status) or an explicit error.
//
// 429 responses are waited out for the server-supplied duration and
// replayed without consuming a retry slot, so a throttled call can loop
// until the server relents. Network failures retry with exponential
// backoff up to cfg.MaxAttempts. Every non-429 response, error statuses
// included, feeds the proactive rate-limit throttle before returning.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	u, err := url.Parse(baseURL + path)
	if err != nil {
		return nil, errors.New(
			"GITHUB_REQUEST_ERROR",
			"Failed to build request URL",
			fmt.Sprintf("Could not parse URL for endpoint %q", path),
			err,
			errors.LevelError,
		)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}
	fullURL := u.String()

	var lastErr error
	attempt := 0

	for {
		resp, err := c.doOnce(ctx, fullURL)
		if err != nil {
			if perm, ok := err.(*permanentError); ok {
				return nil, errors.New(
					"GITHUB_REQUEST_ERROR",
					"Failed to create HTTP request",
					fmt.Sprintf("Could not build request for endpoint %q", path),
					perm.cause,
					errors.LevelError,
				)
			}

			attempt++
			lastErr = err
			logger.Warn("network error on attempt %d/%d for %s: %v", attempt, c.cfg.MaxAttempts, path, err)

			if attempt >= c.cfg.MaxAttempts {
				return nil, errors.New(
					"GITHUB_NETWORK_ERROR",
					"GitHub API request failed after retries",
					fmt.Sprintf("Gave up on %s after %d attempts", path, c.cfg.MaxAttempts),
					lastErr,
					errors.LevelError,
				)
			}

			logger.Warn("retrying %s in %v", path, c.retryDelay)
			c.sleep(c.retryDelay)
			c.retryDelay *= 2
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			wait := retryAfter(resp.Header, c.cfg.DefaultWait)
			logger.Warn("rate limited (429) on %s, waiting %v before replay", path, wait)
			c.sleep(wait)
			// Replay the same attempt; throttling never exhausts retries.
			continue
		}

		c.throttle(resp.Header)

		c.retryDelay = c.cfg.BaseBackoff
		return resp, nil
	}
}
