package httpclient

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(opts ...Option) *Client {
	base := []Option{WithBaseDelay(time.Millisecond), WithMaxRetries(3)}
	return New(append(base, opts...)...)
}

func TestDoSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := newTestClient().Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestDoRetriesThrottling(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := newTestClient().Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestDoReplaysBodyOnRetry(t *testing.T) {
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if body, err := io.ReadAll(r.Body); err == nil {
			bodies = append(bodies, string(body))
		}
		if len(bodies) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(`{"model":"m"}`))
	resp, err := newTestClient().Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()

	if len(bodies) != 2 {
		t.Fatalf("attempts = %d, want 2", len(bodies))
	}
	for i, body := range bodies {
		if body != `{"model":"m"}` {
			t.Errorf("attempt %d body = %q", i, body)
		}
	}
}

func TestDoExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := newTestClient(WithMaxRetries(2)).Do(req)
	var retryErr *RetryableError
	if !errors.As(err, &retryErr) {
		t.Fatalf("err = %v, want RetryableError", err)
	}
	if retryErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d", retryErr.StatusCode)
	}
	if resp != nil {
		resp.Body.Close()
	}
}

func TestDoNoRetryOnClientError(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := newTestClient().Do(req)
	if err == nil {
		t.Fatal("want error for HTTP 401")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if resp != nil {
		resp.Body.Close()
	}
}

func TestDefaultStrategy(t *testing.T) {
	cases := []struct {
		status int
		want   RetryStrategy
	}{
		{http.StatusTooManyRequests, BackoffRetry},
		{http.StatusServiceUnavailable, BackoffRetry},
		{http.StatusInternalServerError, BriefRetry},
		{http.StatusBadGateway, BriefRetry},
		{http.StatusBadRequest, NoRetry},
		{http.StatusUnauthorized, NoRetry},
		{http.StatusNotFound, NoRetry},
	}
	for _, tc := range cases {
		if got := DefaultStrategy(tc.status); got != tc.want {
			t.Errorf("DefaultStrategy(%d) = %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestParseAnthropicHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "30")
	h.Set("anthropic-ratelimit-requests-remaining", "99")
	h.Set("anthropic-ratelimit-requests-reset", "2026-01-02T15:04:05Z")

	info := ParseAnthropicHeaders(h)
	if info.RetryAfter != 30*time.Second {
		t.Errorf("RetryAfter = %v", info.RetryAfter)
	}
	if info.RequestsRemaining != 99 {
		t.Errorf("RequestsRemaining = %d", info.RequestsRemaining)
	}
	if info.ResetTime == 0 {
		t.Error("ResetTime not parsed")
	}
}

func TestParseOpenAIHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "12")
	h.Set("x-ratelimit-remaining-requests", "5")
	h.Set("x-ratelimit-remaining-tokens", "1000")

	info := ParseOpenAIHeaders(h)
	if info.RetryAfter != 12*time.Second {
		t.Errorf("RetryAfter = %v", info.RetryAfter)
	}
	if info.RequestsRemaining != 5 || info.TokensRemaining != 1000 {
		t.Errorf("remaining = %+v", info)
	}
}
