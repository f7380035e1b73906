package github

import (
	"net/http"
	"strconv"
	"time"

	"github.com/LiteObject/github-traffic-monitor/pkg/logger"
)

// rateLimit is the transient budget state published on every response.
type rateLimit struct {
	remaining    int
	hasRemaining bool
	resetAt      time.Time
	hasReset     bool
}

func parseRateLimit(headers http.Header) rateLimit {
	var rl rateLimit

	if remaining := headers.Get("X-RateLimit-Remaining"); remaining != "" {
		if val, err := strconv.Atoi(remaining); err == nil {
			rl.remaining = val
			rl.hasRemaining = true
		}
	}

	if reset := headers.Get("X-RateLimit-Reset"); reset != "" {
		if val, err := strconv.ParseInt(reset, 10, 64); err == nil {
			rl.resetAt = time.Unix(val, 0)
			rl.hasReset = true
		}
	}

	return rl
}

// retryAfter reads the server-supplied wait for a 429 response, falling
// back to the configured default when the header is missing or malformed.
func retryAfter(headers http.Header, fallback time.Duration) time.Duration {
	if retry := headers.Get("Retry-After"); retry != "" {
		if seconds, err := strconv.Atoi(retry); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

// throttle sleeps until the published reset (plus a safety margin) whenever
// the remaining budget drops below the configured threshold. It runs on
// every terminal response, error statuses included.
func (c *Client) throttle(headers http.Header) {
	rl := parseRateLimit(headers)
	if !rl.hasRemaining || rl.remaining >= c.cfg.RemainingThreshold {
		return
	}

	if rl.hasReset {
		wait := rl.resetAt.Sub(c.now())
		if wait < 0 {
			wait = 0
		}
		wait += c.cfg.ResetMargin
		logger.Warn("[RateLimit] low budget (%d remaining), sleeping %v until reset at %s", rl.remaining, wait, rl.resetAt.Format(time.RFC1123))
		c.sleep(wait)
		return
	}

	logger.Warn("[RateLimit] low budget (%d remaining), no reset time published, sleeping %v", rl.remaining, c.cfg.DefaultWait)
	c.sleep(c.cfg.DefaultWait)
}
