package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/dshills/triage/internal/pipeline"
	"github.com/dshills/triage/internal/providers"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func summary(id string, started time.Time) pipeline.Summary {
	return pipeline.Summary{
		RunID:         id,
		Started:       started,
		Files:         2,
		Skipped:       1,
		StageFailures: map[pipeline.StageID]int{pipeline.StageValidation: 1},
		NewTodos:      3,
		Duration:      2500 * time.Millisecond,
		Reports: []pipeline.FileReport{
			{Path: "b.go", Results: []pipeline.Result{
				{Stage: pipeline.StageAnalysis, Provider: "anthropic", Model: "m1", Status: pipeline.StatusSuccess, Attempts: 1, TokensUsed: 100, Latency: 1200 * time.Millisecond},
				{Stage: pipeline.StageValidation, Provider: "openai", Model: "m2", Status: pipeline.StatusFailure, Kind: providers.KindRateLimit, Attempts: 4},
			}},
			{Path: "a.py", Results: []pipeline.Result{
				{Stage: pipeline.StageAnalysis, Provider: "anthropic", Model: "m1", Status: pipeline.StatusSuccess, Cached: true},
			}},
		},
	}
}

func TestRecordAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	started := time.Date(2026, 4, 1, 8, 0, 0, 123456789, time.UTC)

	if err := s.Record(ctx, "/src/demo", summary("run-1", started)); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := s.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := Run{
		ID:            "run-1",
		Target:        "/src/demo",
		Started:       started,
		Duration:      2500 * time.Millisecond,
		Files:         2,
		Skipped:       1,
		StageFailures: 1,
		NewTodos:      3,
	}
	if got != want {
		t.Errorf("Get = %+v\nwant  %+v", got, want)
	}

	stages, err := s.Stages(ctx, "run-1")
	if err != nil {
		t.Fatalf("Stages: %v", err)
	}
	if len(stages) != 3 {
		t.Fatalf("len(stages) = %d, want 3", len(stages))
	}
	if stages[0].File != "a.py" || !stages[0].Cached {
		t.Errorf("stages[0] = %+v, want cached a.py first", stages[0])
	}
	if stages[1].Stage != "analysis" || stages[2].Stage != "validation" {
		t.Errorf("stage order within a file should be preserved: %+v", stages[1:])
	}
	if stages[2].Kind != "rate_limit" || stages[2].Attempts != 4 {
		t.Errorf("failure not recorded: %+v", stages[2])
	}
	if stages[1].Latency != 1200*time.Millisecond || stages[1].TokensUsed != 100 {
		t.Errorf("metrics not recorded: %+v", stages[1])
	}
}

func TestGet_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRecord_DuplicateRunID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sum := summary("dup", time.Now())
	if err := s.Record(ctx, "x", sum); err != nil {
		t.Fatal(err)
	}
	if err := s.Record(ctx, "x", sum); err == nil {
		t.Fatal("expected an error recording the same run twice")
	}
	stages, _ := s.Stages(ctx, "dup")
	if len(stages) != 3 {
		t.Errorf("failed insert must roll back, got %d stage rows", len(stages))
	}
}

func TestRuns_NewestFirstWithLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	// Sub-second offsets check that ordering is chronological, not lexical.
	offsets := []time.Duration{0, 500 * time.Millisecond, time.Second, 2 * time.Hour}
	ids := []string{"r0", "r1", "r2", "r3"}
	for i, off := range offsets {
		if err := s.Record(ctx, "t", summary(ids[i], base.Add(off))); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := s.Runs(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, r := range runs {
		got = append(got, r.ID)
	}
	want := []string{"r3", "r2", "r1"}
	if len(got) != len(want) {
		t.Fatalf("Runs = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Runs = %v, want %v", got, want)
		}
	}

	all, err := s.Runs(ctx, 0)
	if err != nil || len(all) != 4 {
		t.Errorf("Runs(0) = %d runs, %v", len(all), err)
	}
}

func TestPrune(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		if err := s.Record(ctx, "t", summary(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.Prune(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("pruned %d, want 2", n)
	}
	if _, err := s.Get(ctx, "new"); err != nil {
		t.Errorf("newest run should survive: %v", err)
	}
	stages, _ := s.Stages(ctx, "old")
	if len(stages) != 0 {
		t.Errorf("stage rows of pruned runs should cascade, got %d", len(stages))
	}
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Record(context.Background(), "t", summary("keep", time.Now())); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	if _, err := s2.Get(context.Background(), "keep"); err != nil {
		t.Errorf("run lost across reopen: %v", err)
	}
}

func TestOpen_EmptyPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Error("expected error for empty path")
	}
}
