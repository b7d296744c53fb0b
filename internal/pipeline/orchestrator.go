package pipeline

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/triage/internal/ledger"
	"github.com/dshills/triage/internal/todo"
)

// Renderer writes the per-file artifacts of a finished file.
type Renderer interface {
	RenderFile(FileReport) error
}

// Orchestrator runs the stages over one file and reconciles the result with
// the ledger. Stages and Ledger are required; Renderer is optional.
type Orchestrator struct {
	Stages    [3]Analyzer
	Ledger    *ledger.Ledger
	Extractor todo.Extractor
	Renderer  Renderer
	Logger    zerolog.Logger
}

// RunFile analyses one file. path is the file's path relative to the scanned
// root and is what items are attributed to.
//
// Stage failures never fail the file. The returned error is non-nil only when
// the ledger could not be persisted; the report is complete and rendered
// either way.
func (o *Orchestrator) RunFile(ctx context.Context, path, content string) (FileReport, error) {
	rep := FileReport{
		Path:     path,
		Language: Language(path),
		Size:     int64(len(content)),
		State:    StatePending,
		Started:  time.Now(),
	}
	log := o.Logger.With().Str("file", path).Logger()

	var prior []PriorOutput
	for i, stage := range o.Stages {
		rep.State = stageStates[i]
		res := stage.Analyze(ctx, Request{
			FilePath:     path,
			Content:      content,
			PriorContext: slices.Clone(prior),
		})
		rep.Results = append(rep.Results, res)
		logResult(log, res)
		if res.OK() {
			prior = append(prior, PriorOutput{Stage: res.Stage, Text: res.Text})
		}
	}

	for _, res := range rep.Results {
		if res.OK() {
			rep.Todos = append(rep.Todos, o.Extractor.Extract(res.Text, path, string(res.Stage))...)
		}
	}
	rep.TotalTodos = len(rep.Todos)
	rep.NewTodos = o.Ledger.Merge(rep.Todos)
	rep.State = StateMerged

	var persistErr error
	if err := o.Ledger.Persist(); err != nil {
		rep.PersistErr = err.Error()
		persistErr = fmt.Errorf("persisting ledger after %s: %w", path, err)
		log.Error().Err(err).Msg("ledger persist failed")
	}

	rep.Finished = time.Now()
	if o.Renderer != nil {
		if err := o.Renderer.RenderFile(rep); err != nil {
			rep.RenderErr = err.Error()
			log.Error().Err(err).Msg("rendering report")
		}
	}
	rep.State = StateReported

	log.Info().
		Int("todos", rep.TotalTodos).
		Int("new", rep.NewTodos).
		Int("failed_stages", rep.Failures()).
		Dur("elapsed", rep.Finished.Sub(rep.Started)).
		Msg("file done")

	return rep, persistErr
}

func logResult(log zerolog.Logger, res Result) {
	ev := log.Debug()
	if !res.OK() {
		ev = log.Warn().Str("kind", string(res.Kind)).Str("error", res.Err)
	}
	ev.Str("stage", string(res.Stage)).
		Str("provider", res.Provider).
		Str("model", res.Model).
		Str("status", string(res.Status)).
		Int("attempts", res.Attempts).
		Bool("cached", res.Cached).
		Dur("latency", res.Latency).
		Msg("stage finished")
}
