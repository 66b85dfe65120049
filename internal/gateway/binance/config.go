package binance

import (
	"strings"
	"time"
)

// pageLimit is the provider's maximum klines per request.
const pageLimit = 1000

type Config struct {
	RESTBaseURL string
	HTTPTimeout time.Duration

	// Retry policy for REST fetches. Backoff doubles per attempt from
	// RetryBackoff up to BackoffCeiling; rate-limit responses wait
	// RateLimitBackoff (also capped by the ceiling) without consuming the
	// doubling sequence.
	MaxRetries       int
	RetryBackoff     time.Duration
	BackoffCeiling   time.Duration
	RateLimitBackoff time.Duration

	// Stream reconnect policy.
	MaxReconnectAttempts int
}

func (c Config) withDefaults() Config {
	out := c
	out.RESTBaseURL = strings.TrimSpace(out.RESTBaseURL)
	if out.RESTBaseURL == "" {
		out.RESTBaseURL = "https://api.binance.com"
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 15 * time.Second
	}
	if out.MaxRetries <= 0 {
		out.MaxRetries = 5
	}
	if out.RetryBackoff <= 0 {
		out.RetryBackoff = time.Second
	}
	if out.BackoffCeiling <= 0 {
		out.BackoffCeiling = 30 * time.Second
	}
	if out.RateLimitBackoff <= 0 {
		out.RateLimitBackoff = 5 * time.Second
	}
	if out.MaxReconnectAttempts <= 0 {
		out.MaxReconnectAttempts = 15
	}
	return out
}
