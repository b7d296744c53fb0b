package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/triage/internal/cache"
	"github.com/dshills/triage/internal/providers"
	"github.com/dshills/triage/internal/redact"
	"github.com/dshills/triage/internal/tokens"
)

const truncatedMarker = "\n\n[... earlier output truncated]"

// Analyzer is one stage of the pipeline. Analyze never returns an error:
// every failure is reported in the Result.
type Analyzer interface {
	Stage() StageID
	Analyze(ctx context.Context, req Request) Result
}

// AdapterOptions configures an Adapter. Zero values disable the optional
// collaborators.
type AdapterOptions struct {
	MaxTokens   int
	Temperature float64
	// ContextTokens caps each earlier stage output quoted in the prompt.
	// Zero quotes it whole.
	ContextTokens int
	Cache         *cache.Cache
	Redactor      *redact.Redactor
	Counter       *tokens.Counter
	Logger        zerolog.Logger
}

// Adapter turns a vendor client into a stage.
type Adapter struct {
	stage  StageID
	client providers.Client
	opts   AdapterOptions
	now    func() time.Time
}

// NewAdapter wraps client as stage.
func NewAdapter(stage StageID, client providers.Client, opts AdapterOptions) *Adapter {
	if opts.Counter == nil {
		opts.Counter = tokens.Default()
	}
	return &Adapter{stage: stage, client: client, opts: opts, now: time.Now}
}

func (a *Adapter) Stage() StageID { return a.stage }

// Client returns the wrapped vendor client.
func (a *Adapter) Client() providers.Client { return a.client }

func (a *Adapter) Analyze(ctx context.Context, req Request) (res Result) {
	start := a.now()
	res = Result{
		Stage:     a.stage,
		Provider:  a.client.Name(),
		Model:     a.client.Model(),
		Timestamp: start,
	}
	defer func() {
		if r := recover(); r != nil {
			res = failed(res, providers.KindUnknown, fmt.Sprintf("panic: %v", r))
		}
		res.Latency = a.now().Sub(start)
	}()

	content, red := a.opts.Redactor.Apply(req.FilePath, req.Content)
	res.Redacted = red.Secrets

	system := SystemPrompt(a.stage)
	user := BuildUserPrompt(a.stage, req.FilePath, content, a.prior(req.PriorContext))
	key := cache.BuildKey(string(a.stage), res.Provider, res.Model, system, user)

	if a.opts.Cache != nil {
		if e, ok := a.opts.Cache.Get(key); ok {
			res.Status = StatusSuccess
			res.Text = e.Response
			res.TokensUsed = e.TokensUsed
			res.Cached = true
			return res
		}
	}

	resp, err := a.client.Complete(ctx, providers.Request{
		SystemPrompt: system,
		UserPrompt:   user,
		MaxTokens:    a.opts.MaxTokens,
		Temperature:  a.opts.Temperature,
	})
	res.Attempts = resp.Attempts
	if err != nil {
		return failed(res, providers.KindOf(err), err.Error())
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return failed(res, providers.KindMalformedResponse, "empty response")
	}
	res.Status = StatusSuccess
	res.Text = text
	res.TokensUsed = resp.TokensUsed

	if a.opts.Cache != nil {
		err := a.opts.Cache.Put(key, cache.Entry{
			Stage:      string(a.stage),
			Provider:   res.Provider,
			Model:      res.Model,
			Response:   text,
			TokensUsed: resp.TokensUsed,
		})
		if err != nil {
			a.opts.Logger.Warn().Err(err).Str("stage", string(a.stage)).Msg("caching response")
		}
	}
	return res
}

// prior redacts and trims earlier stage output for quoting.
func (a *Adapter) prior(in []PriorOutput) []PriorOutput {
	if len(in) == 0 {
		return nil
	}
	out := make([]PriorOutput, 0, len(in))
	for _, p := range in {
		text := a.opts.Redactor.Text(p.Text)
		if a.opts.ContextTokens > 0 {
			if t, cut := a.opts.Counter.Truncate(text, a.opts.ContextTokens); cut {
				text = t + truncatedMarker
			}
		}
		out = append(out, PriorOutput{Stage: p.Stage, Text: text})
	}
	return out
}

func failed(res Result, kind providers.ErrorKind, msg string) Result {
	res.Status = StatusFailure
	res.Text = ""
	res.Kind = kind
	res.Err = msg
	return res
}
