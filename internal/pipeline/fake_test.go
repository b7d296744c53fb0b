package pipeline

import (
	"context"
	"sync"

	"github.com/dshills/triage/internal/providers"
)

// fakeClient is a scripted providers.Client that records what it was sent.
type fakeClient struct {
	name  string
	model string
	fn    func(ctx context.Context, req providers.Request) (providers.Response, error)

	mu    sync.Mutex
	calls []providers.Request
}

func newFake(name string, fn func(ctx context.Context, req providers.Request) (providers.Response, error)) *fakeClient {
	return &fakeClient{name: name, model: name + "-model", fn: fn}
}

func reply(text string) func(context.Context, providers.Request) (providers.Response, error) {
	return func(context.Context, providers.Request) (providers.Response, error) {
		return providers.Response{Content: text, TokensUsed: 42, Attempts: 1}, nil
	}
}

func fail(kind providers.ErrorKind, attempts int) func(context.Context, providers.Request) (providers.Response, error) {
	return func(context.Context, providers.Request) (providers.Response, error) {
		return providers.Response{Attempts: attempts}, &providers.Error{Kind: kind, Provider: "fake", Message: "scripted failure"}
	}
}

func (f *fakeClient) Name() string  { return f.name }
func (f *fakeClient) Model() string { return f.model }

func (f *fakeClient) Complete(ctx context.Context, req providers.Request) (providers.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	return f.fn(ctx, req)
}

func (f *fakeClient) Calls() []providers.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]providers.Request(nil), f.calls...)
}

// stages wraps three clients as adapters in stage order.
func stages(a, b, c providers.Client) [3]Analyzer {
	return [3]Analyzer{
		NewAdapter(StageAnalysis, a, AdapterOptions{}),
		NewAdapter(StageValidation, b, AdapterOptions{}),
		NewAdapter(StageRefactor, c, AdapterOptions{}),
	}
}
