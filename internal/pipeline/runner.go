package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/triage/internal/scanner"
)

// DefaultWorkers is the number of files analysed concurrently.
const DefaultWorkers = 4

// Runner analyses a stream of files with a bounded number of workers.
type Runner struct {
	Orchestrator *Orchestrator
	Workers      int
	// OnReport, if set, sees every finished file. Calls are serialized.
	OnReport func(FileReport)
	Logger   zerolog.Logger
}

// Run drains files through the orchestrator.
//
// When ctx is cancelled no further file is started, but files already
// dispatched run to completion on a context detached from ctx. Stage and
// persist failures are counted in the Summary; the only error Run returns is
// a failed final ledger flush, joined with the first persist failure.
func (r *Runner) Run(ctx context.Context, files iter.Seq2[scanner.File, error]) (Summary, error) {
	workers := r.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	sum := Summary{
		RunID:         uuid.NewString(),
		Started:       time.Now(),
		StageFailures: make(map[StageID]int),
	}
	log := r.Logger.With().Str("run", sum.RunID).Logger()
	log.Info().Int("workers", workers).Msg("run started")

	workCtx := context.WithoutCancel(ctx)
	sem := make(chan struct{}, workers)
	var g errgroup.Group
	var mu sync.Mutex

dispatch:
	for f, err := range files {
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				break
			}
			log.Warn().Err(err).Msg("skipping file")
			mu.Lock()
			sum.Skipped++
			mu.Unlock()
			continue
		}

		select {
		case <-ctx.Done():
			break dispatch
		case sem <- struct{}{}:
		}
		// Both cases may be ready; cancellation wins.
		if ctx.Err() != nil {
			<-sem
			break
		}

		g.Go(func() error {
			defer func() { <-sem }()
			rep, err := r.Orchestrator.RunFile(workCtx, f.Rel, f.Content)

			mu.Lock()
			defer mu.Unlock()
			sum.Files++
			sum.NewTodos += rep.NewTodos
			for _, res := range rep.Results {
				if !res.OK() {
					sum.StageFailures[res.Stage]++
				}
			}
			if rep.RenderErr != "" {
				sum.RenderFailures++
			}
			sum.Reports = append(sum.Reports, rep)
			if r.OnReport != nil {
				r.OnReport(rep)
			}
			if err != nil {
				sum.PersistFailures++
				return err
			}
			return nil
		})
	}

	// The group keeps the first persist error. Later persists and the final
	// flush rewrite the whole ledger, so it only matters if the flush fails.
	persistErr := g.Wait()
	if persistErr != nil {
		log.Warn().Err(persistErr).Int("persist_failures", sum.PersistFailures).Msg("ledger persist failed during run")
	}
	sum.Canceled = ctx.Err() != nil
	sum.Duration = time.Since(sum.Started)
	sort.Slice(sum.Reports, func(i, j int) bool { return sum.Reports[i].Path < sum.Reports[j].Path })

	if err := r.Orchestrator.Ledger.Flush(); err != nil {
		log.Error().Err(err).Msg("final ledger flush failed")
		return sum, errors.Join(fmt.Errorf("flushing ledger: %w", err), persistErr)
	}

	log.Info().
		Int("files", sum.Files).
		Int("skipped", sum.Skipped).
		Int("stage_failures", sum.Failures()).
		Int("new_todos", sum.NewTodos).
		Bool("canceled", sum.Canceled).
		Dur("elapsed", sum.Duration).
		Msg("run finished")
	return sum, nil
}
