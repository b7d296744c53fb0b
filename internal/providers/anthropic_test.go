package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// fastRetry keeps back-off delays negligible in tests.
var fastRetry = RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

func newTestAnthropic(server *httptest.Server) *Anthropic {
	return &Anthropic{
		apiKey: "test-key",
		model:  "claude-sonnet-4-6",
		client: &http.Client{
			Transport: &rewriteTransport{
				base:    server.Client().Transport,
				baseURL: server.URL,
			},
		},
		retry: fastRetry,
	}
}

func TestAnthropic_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Verify headers
		if r.Header.Get("x-api-key") != "test-key" {
			t.Error("Missing API key header")
		}
		if r.Header.Get("anthropic-version") != anthropicAPIVersion {
			t.Error("Missing anthropic-version header")
		}

		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if req.System != "system" || len(req.Messages) != 1 || req.Messages[0].Content != "user" {
			t.Errorf("unexpected request body: %+v", req)
		}
		if req.MaxTokens != 10 {
			t.Errorf("MaxTokens = %d, want 10", req.MaxTokens)
		}

		resp := anthropicResponse{
			Content: []anthropicBlock{
				{Type: "text", Text: "- TODO: add tests"},
			},
			Usage: anthropicUsage{InputTokens: 100, OutputTokens: 10},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	a := newTestAnthropic(server)
	resp, err := a.Complete(context.Background(), Request{
		SystemPrompt: "system",
		UserPrompt:   "user",
		MaxTokens:    10,
	})
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if resp.Content != "- TODO: add tests" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.TokensUsed != 110 {
		t.Errorf("TokensUsed = %d, want 110", resp.TokensUsed)
	}
	if resp.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", resp.Attempts)
	}
}

func TestAnthropic_AuthError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(401)
		w.Write([]byte(`{"error":"unauthorized"}`))
	}))
	defer server.Close()

	a := newTestAnthropic(server)
	_, err := a.Complete(context.Background(), Request{UserPrompt: "test"})
	if err == nil {
		t.Fatal("Expected auth error")
	}
	if !IsAuthError(err) {
		t.Errorf("Expected auth error, got: %v", err)
	}
	if !errors.Is(err, ErrPermanent) {
		t.Error("auth error should match ErrPermanent")
	}
	if calls.Load() != 1 {
		t.Errorf("auth errors must not be retried, got %d calls", calls.Load())
	}
}

func TestAnthropic_ServerErrorRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(500)
			w.Write([]byte(`{"error":"internal server error"}`))
			return
		}
		resp := anthropicResponse{
			Content: []anthropicBlock{{Type: "text", Text: "ok"}},
			Usage:   anthropicUsage{InputTokens: 10, OutputTokens: 5},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	a := newTestAnthropic(server)
	resp, err := a.Complete(context.Background(), Request{UserPrompt: "test"})
	if err != nil {
		t.Fatalf("Complete should succeed after retries: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("Content = %q, want %q", resp.Content, "ok")
	}
	if resp.Attempts != 3 {
		t.Errorf("Expected 3 attempts (2 retries on 5xx), got %d", resp.Attempts)
	}
}

func TestAnthropic_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(429)
	}))
	defer server.Close()

	a := newTestAnthropic(server)
	_, err := a.Complete(context.Background(), Request{UserPrompt: "test"})
	if err == nil {
		t.Fatal("expected rate limit error")
	}
	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("error %T is not *Error", err)
	}
	if pe.Kind != KindRateLimit {
		t.Errorf("Kind = %q, want %q", pe.Kind, KindRateLimit)
	}
	if pe.Attempts != 4 || calls.Load() != 4 {
		t.Errorf("Attempts = %d, calls = %d, want 4", pe.Attempts, calls.Load())
	}
	if !errors.Is(err, ErrTransient) {
		t.Error("rate limit should match ErrTransient")
	}
}

func TestAnthropic_EmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := anthropicResponse{
			Content:    []anthropicBlock{{Type: "tool_use"}},
			StopReason: "max_tokens",
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	a := newTestAnthropic(server)
	_, err := a.Complete(context.Background(), Request{UserPrompt: "test"})
	if KindOf(err) != KindMalformedResponse {
		t.Errorf("KindOf(%v) = %q, want %q", err, KindOf(err), KindMalformedResponse)
	}
}

func TestAnthropic_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer server.Close()

	a := newTestAnthropic(server)
	_, err := a.Complete(context.Background(), Request{UserPrompt: "test"})
	if KindOf(err) != KindMalformedResponse {
		t.Errorf("KindOf(%v) = %q, want %q", err, KindOf(err), KindMalformedResponse)
	}
}

func TestAnthropic_Canceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(503)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := newTestAnthropic(server)
	_, err := a.Complete(ctx, Request{UserPrompt: "test"})
	if KindOf(err) != KindCanceled {
		t.Errorf("KindOf(%v) = %q, want %q", err, KindOf(err), KindCanceled)
	}
}

// rewriteTransport rewrites all request URLs to point at the test server.
type rewriteTransport struct {
	base    http.RoundTripper
	baseURL string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = "http"
	req.URL.Host = t.baseURL[len("http://"):]
	if t.base != nil {
		return t.base.RoundTrip(req)
	}
	return http.DefaultTransport.RoundTrip(req)
}
