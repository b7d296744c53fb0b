package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/triage/internal/ledger"
	"github.com/dshills/triage/internal/providers"
	"github.com/dshills/triage/internal/scanner"
)

func fileSeq(files ...scanner.File) iter.Seq2[scanner.File, error] {
	return func(yield func(scanner.File, error) bool) {
		for _, f := range files {
			if !yield(f, nil) {
				return
			}
		}
	}
}

func pyFiles(n int) []scanner.File {
	files := make([]scanner.File, n)
	for i := range files {
		rel := fmt.Sprintf("f%02d.py", i)
		files[i] = scanner.File{Path: "/src/" + rel, Rel: rel, Content: fooPy, Size: int64(len(fooPy))}
	}
	return files
}

func TestRun_TwoRunsLeaveLedgerStable(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "foo.py"), []byte(fooPy), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "bar.py"), []byte("print('bar')\n"), 0o644))
	ledgerPath := filepath.Join(t.TempDir(), ledger.DefaultFile)

	run := func() (Summary, int) {
		l, err := ledger.Open(ledgerPath)
		require.NoError(t, err)
		s, err := scanner.New(scanner.Options{Root: root, Extensions: []string{".py"}})
		require.NoError(t, err)

		r := &Runner{
			Orchestrator: &Orchestrator{
				Stages: stages(
					newFake("a", reply("- Add null check in parse_input (Priority: High)")),
					newFake("b", reply("## Next steps\n- Add unit tests\n")),
					newFake("c", fail(providers.KindServer, 4)),
				),
				Ledger: l,
			},
			Workers: 2,
		}
		sum, err := r.Run(context.Background(), s.Files(context.Background()))
		require.NoError(t, err)
		return sum, l.Len()
	}

	first, size1 := run()
	second, size2 := run()

	assert.Equal(t, 2, first.Files)
	assert.Equal(t, 4, size1, "two items per file")
	assert.Equal(t, 4, first.NewTodos)
	assert.Equal(t, size1, size2)
	assert.Zero(t, second.NewTodos)
	assert.Equal(t, 2, second.StageFailures[StageRefactor])
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestRun_BoundedWorkers(t *testing.T) {
	var inFlight, peak atomic.Int32
	slow := func(context.Context, providers.Request) (providers.Response, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return providers.Response{Content: "fine", Attempts: 1}, nil
	}

	r := &Runner{
		Orchestrator: &Orchestrator{
			Stages: stages(newFake("a", slow), newFake("b", reply("ok")), newFake("c", reply("ok"))),
			Ledger: newLedger(t),
		},
		Workers: 2,
	}
	sum, err := r.Run(context.Background(), fileSeq(pyFiles(6)...))
	require.NoError(t, err)

	assert.Equal(t, 6, sum.Files)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	require.Len(t, sum.Reports, 6)
	assert.Equal(t, "f00.py", sum.Reports[0].Path, "reports are sorted by path")
}

func TestRun_CancelLetsInFlightFinish(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var innerErr atomic.Value
	first := func(stageCtx context.Context, _ providers.Request) (providers.Response, error) {
		cancel()
		time.Sleep(10 * time.Millisecond)
		if err := stageCtx.Err(); err != nil {
			innerErr.Store(err)
		}
		return providers.Response{Content: "- TODO: finish me (Priority: high)", Attempts: 1}, nil
	}

	l := newLedger(t)
	r := &Runner{
		Orchestrator: &Orchestrator{
			Stages: stages(newFake("a", first), newFake("b", reply("ok")), newFake("c", reply("ok"))),
			Ledger: l,
		},
		Workers: 1,
	}
	sum, err := r.Run(ctx, fileSeq(pyFiles(10)...))
	require.NoError(t, err)

	assert.True(t, sum.Canceled)
	assert.Equal(t, 1, sum.Files, "no file starts after cancellation")
	assert.Nil(t, innerErr.Load(), "in-flight stages do not see the cancellation")
	assert.Equal(t, 1, l.Len(), "the in-flight merge completes")
	assert.False(t, l.Dirty())
}

func TestRun_ScannerErrorsAreSkipped(t *testing.T) {
	files := func(yield func(scanner.File, error) bool) {
		if !yield(scanner.File{}, errors.New("permission denied")) {
			return
		}
		yield(pyFiles(1)[0], nil)
	}

	var seen []string
	r := &Runner{
		Orchestrator: &Orchestrator{
			Stages: stages(newFake("a", reply("ok")), newFake("b", reply("ok")), newFake("c", reply("ok"))),
			Ledger: newLedger(t),
		},
		OnReport: func(rep FileReport) { seen = append(seen, rep.Path) },
	}
	sum, err := r.Run(context.Background(), files)
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 1, sum.Files)
	assert.Equal(t, []string{"f00.py"}, seen)
	assert.False(t, sum.Canceled)
}

func TestRun_FinalFlushFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "todo.json")
	require.NoError(t, os.Mkdir(path, 0o755))

	r := &Runner{
		Orchestrator: &Orchestrator{
			Stages: stages(newFake("a", reply("- TODO: one (Priority: low)")), newFake("b", reply("ok")), newFake("c", reply("ok"))),
			Ledger: ledger.New(path),
		},
	}
	sum, err := r.Run(context.Background(), fileSeq(pyFiles(2)...))

	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrWriteFailure)
	assert.Equal(t, 2, sum.Files, "a persist failure does not stop the run")
	assert.Equal(t, 2, sum.PersistFailures)
	assert.Contains(t, err.Error(), "flushing ledger")
	assert.Regexp(t, `persisting ledger after f0[01]\.py`, err.Error(), "the first persist failure is reported with the flush")
}

func TestRun_PersistRecoversOnFinalFlush(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	path := filepath.Join(dir, "todo.json")
	require.NoError(t, os.WriteFile(dir, []byte("not a dir"), 0o644))

	// The first file's persist fails because dir is a file; the stage of the
	// second file repairs the path before its own persist runs.
	var calls atomic.Int32
	repair := func(context.Context, providers.Request) (providers.Response, error) {
		if calls.Add(1) == 2 {
			if err := os.Remove(dir); err == nil {
				_ = os.Mkdir(dir, 0o755)
			}
		}
		return providers.Response{Content: "- TODO: check input (Priority: low)", Attempts: 1}, nil
	}

	l := ledger.New(path)
	r := &Runner{
		Orchestrator: &Orchestrator{
			Stages: stages(newFake("a", repair), newFake("b", reply("ok")), newFake("c", reply("ok"))),
			Ledger: l,
		},
		Workers: 1,
	}
	sum, err := r.Run(context.Background(), fileSeq(pyFiles(2)...))

	require.NoError(t, err, "a recovered persist does not fail the run")
	assert.Equal(t, 1, sum.PersistFailures)
	reloaded, err := ledger.Open(path)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.Len())
}
