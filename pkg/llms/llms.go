// Package llms holds the backend adapters that translate the generic chat
// contract to and from concrete provider wire formats. Each adapter owns its
// provider's request shape, response shape, and streaming framing; nothing
// provider-specific leaks past this package.
package llms

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/switchboardai/switchboard/pkg/chat"
	"github.com/switchboardai/switchboard/pkg/httpclient"
)

// Config carries the provider settings shared by all adapters. Zero values
// fall back to per-provider defaults.
type Config struct {
	APIKey      string
	BaseURL     string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	MaxRetries  int
	Logger      *slog.Logger
}

func (c *Config) setDefaults(baseURL string, maxTokens int, temperature float64) {
	if c.BaseURL == "" {
		c.BaseURL = baseURL
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	if c.MaxTokens == 0 {
		c.MaxTokens = maxTokens
	}
	if c.Temperature == 0 {
		c.Temperature = temperature
	}
	if c.Timeout == 0 {
		c.Timeout = 120 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 5
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

func (c *Config) newClient(parser httpclient.HeaderParser) *httpclient.Client {
	return httpclient.New(
		httpclient.WithHTTPClient(&http.Client{Timeout: c.Timeout}),
		httpclient.WithMaxRetries(c.MaxRetries),
		httpclient.WithHeaderParser(parser),
		httpclient.WithLogger(c.Logger),
	)
}

// maxTokens resolves the per-request token limit against the config default.
func (c *Config) maxTokens(req *chat.Request) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return c.MaxTokens
}

// temperature resolves the per-request temperature against the config
// default. A request-level value always wins, including explicit zero.
func (c *Config) temperature(req *chat.Request) float64 {
	if req.Temperature != nil {
		return *req.Temperature
	}
	return c.Temperature
}

// ModelPrefix builds a dispatch predicate matching requests whose model name
// starts with any of the given prefixes.
func ModelPrefix(prefixes ...string) func(req *chat.Request) bool {
	return func(req *chat.Request) bool {
		for _, prefix := range prefixes {
			if strings.HasPrefix(req.Model, prefix) {
				return true
			}
		}
		return false
	}
}

// providerError decodes a non-success response body into a ProviderError.
// Providers wrap their errors differently but all include a message; the
// decode is best-effort and falls back to the raw body.
func providerError(status int, body []byte) *chat.ProviderError {
	var envelope struct {
		Error struct {
			Type    string `json:"type"`
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	perr := &chat.ProviderError{Status: status, Message: strings.TrimSpace(string(body))}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		perr.Message = envelope.Error.Message
		perr.Code = envelope.Error.Code
		if perr.Code == "" {
			perr.Code = envelope.Error.Type
		}
	}
	return perr
}

// checkResponse converts transport and status failures into the contract's
// error types. On success the caller owns the body.
func checkResponse(resp *http.Response, err error) (*http.Response, error) {
	if resp == nil {
		return nil, &chat.TransportError{Err: err}
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, providerError(resp.StatusCode, body)
	}
	return resp, nil
}

// scanSSE reads server-sent events and calls handle with each data payload.
// Comment lines and non-data fields are skipped. handle returning false
// stops the scan.
func scanSSE(r io.Reader, handle func(data string) bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		if !handle(data) {
			return nil
		}
	}
	return scanner.Err()
}
