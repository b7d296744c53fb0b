package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dshills/triage/internal/pipeline"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("run not found")

// timeLayout is fixed width so stored timestamps sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store is a SQLite-backed run history.
type Store struct {
	db   *sql.DB
	path string
}

// Run is one recorded analysis run.
type Run struct {
	ID            string        `json:"id"`
	Target        string        `json:"target"`
	Started       time.Time     `json:"started"`
	Duration      time.Duration `json:"duration"`
	Files         int           `json:"files"`
	Skipped       int           `json:"skipped"`
	StageFailures int           `json:"stageFailures"`
	NewTodos      int           `json:"newTodos"`
	Canceled      bool          `json:"canceled"`
}

// StageRecord is the outcome of one stage for one file.
type StageRecord struct {
	RunID      string        `json:"runId"`
	File       string        `json:"file"`
	Stage      string        `json:"stage"`
	Provider   string        `json:"provider"`
	Model      string        `json:"model"`
	Status     string        `json:"status"`
	Kind       string        `json:"kind,omitempty"`
	Attempts   int           `json:"attempts"`
	Cached     bool          `json:"cached"`
	TokensUsed int           `json:"tokensUsed"`
	Latency    time.Duration `json:"latency"`
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("history db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id             TEXT PRIMARY KEY,
		target         TEXT NOT NULL,
		started_at     TEXT NOT NULL,
		duration_ms    INTEGER NOT NULL DEFAULT 0,
		files          INTEGER NOT NULL DEFAULT 0,
		skipped        INTEGER NOT NULL DEFAULT 0,
		stage_failures INTEGER NOT NULL DEFAULT 0,
		new_todos      INTEGER NOT NULL DEFAULT 0,
		canceled       INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS stage_results (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		file        TEXT NOT NULL,
		stage       TEXT NOT NULL,
		provider    TEXT NOT NULL DEFAULT '',
		model       TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL,
		kind        TEXT NOT NULL DEFAULT '',
		attempts    INTEGER NOT NULL DEFAULT 0,
		cached      INTEGER NOT NULL DEFAULT 0,
		tokens_used INTEGER NOT NULL DEFAULT 0,
		latency_ms  INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_stage_results_run ON stage_results(run_id, file);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record stores a finished run and every stage result it produced.
func (s *Store) Record(ctx context.Context, target string, sum pipeline.Summary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, target, started_at, duration_ms, files, skipped, stage_failures, new_todos, canceled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.RunID, target, sum.Started.UTC().Format(timeLayout), sum.Duration.Milliseconds(),
		sum.Files, sum.Skipped, sum.Failures(), sum.NewTodos, boolToInt(sum.Canceled),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO stage_results (run_id, file, stage, provider, model, status, kind, attempts, cached, tokens_used, latency_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare stage insert: %w", err)
	}
	defer stmt.Close()

	for _, rep := range sum.Reports {
		for _, res := range rep.Results {
			_, err := stmt.ExecContext(ctx,
				sum.RunID, rep.Path, string(res.Stage), res.Provider, res.Model, string(res.Status),
				string(res.Kind), res.Attempts, boolToInt(res.Cached), res.TokensUsed, res.Latency.Milliseconds(),
			)
			if err != nil {
				return fmt.Errorf("insert stage result: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Runs lists the most recent runs first. limit <= 0 lists all.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	q := `
		SELECT id, target, started_at, duration_ms, files, skipped, stage_failures, new_todos, canceled
		FROM runs ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Get loads one run.
func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, target, started_at, duration_ms, files, skipped, stage_failures, new_todos, canceled
		FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, err
}

// Stages lists the stage results of a run ordered by file and stage order.
func (s *Store) Stages(ctx context.Context, runID string) ([]StageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, file, stage, provider, model, status, kind, attempts, cached, tokens_used, latency_ms
		FROM stage_results WHERE run_id = ? ORDER BY file, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list stage results: %w", err)
	}
	defer rows.Close()

	var out []StageRecord
	for rows.Next() {
		var rec StageRecord
		var cached int
		var latencyMs int64
		err := rows.Scan(&rec.RunID, &rec.File, &rec.Stage, &rec.Provider, &rec.Model, &rec.Status,
			&rec.Kind, &rec.Attempts, &cached, &rec.TokensUsed, &latencyMs)
		if err != nil {
			return nil, fmt.Errorf("scan stage result: %w", err)
		}
		rec.Cached = cached != 0
		rec.Latency = time.Duration(latencyMs) * time.Millisecond
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Prune deletes all but the newest keep runs and returns how many were
// removed.
func (s *Store) Prune(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM runs WHERE id NOT IN (
			SELECT id FROM runs ORDER BY started_at DESC, id LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var r Run
	var started string
	var durationMs int64
	var canceled int
	err := sc.Scan(&r.ID, &r.Target, &started, &durationMs, &r.Files, &r.Skipped, &r.StageFailures, &r.NewTodos, &canceled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	r.Started, err = time.Parse(timeLayout, started)
	if err != nil {
		return Run{}, fmt.Errorf("parse start time %q: %w", started, err)
	}
	r.Duration = time.Duration(durationMs) * time.Millisecond
	r.Canceled = canceled != 0
	return r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
