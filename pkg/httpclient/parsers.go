package httpclient

import (
	"net/http"
	"strconv"
	"time"
)

// ParseAnthropicHeaders reads rate-limit info from Anthropic API headers.
func ParseAnthropicHeaders(headers http.Header) RateLimitInfo {
	info := RateLimitInfo{RetryAfter: parseRetryAfter(headers)}

	// Reset headers are RFC3339 timestamps; the first one present wins.
	for _, name := range []string{
		"anthropic-ratelimit-requests-reset",
		"anthropic-ratelimit-input-tokens-reset",
		"anthropic-ratelimit-output-tokens-reset",
	} {
		if v := headers.Get(name); v != "" {
			if reset, err := time.Parse(time.RFC3339, v); err == nil {
				info.ResetTime = reset.Unix()
				break
			}
		}
	}

	if v := headers.Get("anthropic-ratelimit-requests-remaining"); v != "" {
		info.RequestsRemaining, _ = strconv.Atoi(v)
	}
	if v := headers.Get("anthropic-ratelimit-input-tokens-remaining"); v != "" {
		info.TokensRemaining, _ = strconv.Atoi(v)
	}

	return info
}

// ParseOpenAIHeaders reads rate-limit info from OpenAI API headers.
func ParseOpenAIHeaders(headers http.Header) RateLimitInfo {
	info := RateLimitInfo{RetryAfter: parseRetryAfter(headers)}

	for _, name := range []string{
		"x-ratelimit-reset-requests",
		"x-ratelimit-reset-tokens",
	} {
		if v := headers.Get(name); v != "" {
			if reset, err := strconv.ParseInt(v, 10, 64); err == nil {
				info.ResetTime = reset
				break
			}
		}
	}

	if v := headers.Get("x-ratelimit-remaining-requests"); v != "" {
		info.RequestsRemaining, _ = strconv.Atoi(v)
	}
	if v := headers.Get("x-ratelimit-remaining-tokens"); v != "" {
		info.TokensRemaining, _ = strconv.Atoi(v)
	}

	return info
}

func parseRetryAfter(headers http.Header) time.Duration {
	v := headers.Get("Retry-After")
	if v == "" {
		return 0
	}
	seconds, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
