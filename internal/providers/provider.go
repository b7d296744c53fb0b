package providers

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Request contains the data sent to an LLM.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
}

// Response contains the raw response from an LLM.
type Response struct {
	Content    string
	TokensUsed int
	Attempts   int
}

// Client is the vendor abstraction every stage talks to.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
	Name() string
	Model() string
}

// Options tunes a vendor client. The zero value uses the defaults.
type Options struct {
	Timeout    time.Duration
	Retry      RetryPolicy
	HTTPClient *http.Client
}

func (o Options) httpClient(defaultTimeout time.Duration) *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

func (o Options) retry() RetryPolicy {
	if o.Retry == (RetryPolicy{}) {
		return DefaultRetryPolicy
	}
	return o.Retry
}

const defaultMaxTokens = 4096

// New creates a client by vendor name.
func New(provider, model string, opts Options) (Client, error) {
	switch provider {
	case "anthropic", "claude":
		return NewAnthropic(model, opts)
	case "openai":
		return NewOpenAI(model, opts)
	case "gemini", "google":
		return NewGemini(model, opts)
	case "ollama", "lmstudio":
		return NewOllama(model, opts)
	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
}

// Known lists the accepted vendor names.
func Known() []string {
	return []string{"anthropic", "openai", "gemini", "ollama"}
}

// Valid reports whether New accepts the vendor name, aliases included.
func Valid(provider string) bool {
	switch provider {
	case "anthropic", "claude", "openai", "gemini", "google", "ollama", "lmstudio":
		return true
	}
	return false
}
