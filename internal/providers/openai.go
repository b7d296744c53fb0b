package providers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI implements Client for OpenAI's chat completions API.
type OpenAI struct {
	model  string
	client *openai.Client
	retry  RetryPolicy
}

// NewOpenAI creates a new OpenAI client. TRIAGE_OPENAI_BASE_URL points it at
// any compatible endpoint.
func NewOpenAI(model string, opts Options) (*OpenAI, error) {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
	}
	cfg := openai.DefaultConfig(key)
	if base := os.Getenv("TRIAGE_OPENAI_BASE_URL"); base != "" {
		base = strings.TrimRight(base, "/")
		cfg.BaseURL = strings.TrimSuffix(base, "/chat/completions")
	}
	cfg.HTTPClient = opts.httpClient(120 * time.Second)

	return &OpenAI{
		model:  model,
		client: openai.NewClientWithConfig(cfg),
		retry:  opts.retry(),
	}, nil
}

func (o *OpenAI) Name() string  { return "openai" }
func (o *OpenAI) Model() string { return o.model }

func (o *OpenAI) Complete(ctx context.Context, req Request) (Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	chatReq := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.UserPrompt},
		},
		MaxCompletionTokens: maxTokens,
	}
	if req.Temperature > 0 {
		chatReq.Temperature = float32(req.Temperature)
	}

	var resp Response
	attempts, err := retryWithBackoff(ctx, o.retry, func() error {
		result, err := o.client.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			return o.classify(err)
		}
		if len(result.Choices) == 0 {
			return malformed(o.Name(), "no choices in response")
		}
		content := result.Choices[0].Message.Content
		if strings.TrimSpace(content) == "" {
			return malformed(o.Name(), "empty text content in response")
		}

		resp = Response{
			Content:    content,
			TokensUsed: result.Usage.TotalTokens,
		}
		return nil
	})
	resp.Attempts = attempts

	return resp, err
}

// classify maps the SDK's error types onto *Error.
func (o *OpenAI) classify(err error) *Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		e := statusError(o.Name(), apiErr.HTTPStatusCode, apiErr.Message, nil)
		e.Err = err
		return e
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		e := statusError(o.Name(), reqErr.HTTPStatusCode, string(reqErr.Body), nil)
		e.Err = err
		return e
	}
	return transportError(o.Name(), err)
}
