package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dshills/triage/internal/cache"
	"github.com/dshills/triage/internal/config"
	"github.com/dshills/triage/internal/gitctx"
	"github.com/dshills/triage/internal/history"
	"github.com/dshills/triage/internal/ledger"
	"github.com/dshills/triage/internal/logging"
	"github.com/dshills/triage/internal/pipeline"
	"github.com/dshills/triage/internal/providers"
	"github.com/dshills/triage/internal/redact"
	"github.com/dshills/triage/internal/report"
	"github.com/dshills/triage/internal/scanner"
	"github.com/dshills/triage/internal/tokens"
)

// historyKeep is how many runs the history database retains.
const historyKeep = 200

// Analyze flags
var (
	flagOut      string
	flagFormat   string
	flagWorkers  int
	flagLedger   string
	flagSince    string
	flagExclude  string
	flagNoCache  bool
	flagNoRedact bool
	flagDryRun   bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <target>",
	Short: "Analyze a file or project directory",
	Long: "Analyze runs each source file under target through the analysis, " +
		"validation and refactoring stages, writes a report per stage and " +
		"merges the TODO items they raise into the project ledger.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAnalyze(cmd, args[0])
	},
}

func buildOverrides() map[string]string {
	m := make(map[string]string)
	if flagOut != "" {
		m["outputDir"] = flagOut
	}
	if flagFormat != "" {
		m["format"] = flagFormat
	}
	if flagWorkers > 0 {
		m["workers"] = strconv.Itoa(flagWorkers)
	}
	if flagLedger != "" {
		m["ledgerPath"] = flagLedger
	}
	return m
}

// loadAnalyzeConfig merges the config layers with the analyze flags and
// validates the result.
func loadAnalyzeConfig() (config.Config, error) {
	cfg, err := config.Load(flagConfig, buildOverrides())
	if err != nil {
		return config.Config{}, err
	}
	if flagNoCache {
		cfg.Cache.Enabled = false
	}
	if flagNoRedact {
		cfg.Privacy.RedactSecrets = false
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func splitComma(s string) []string {
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// target is what the user asked to analyze.
type target struct {
	path  string // absolute
	root  string // directory relative paths and the default ledger hang off
	isDir bool
}

func resolveTarget(arg string) (target, error) {
	abs, err := filepath.Abs(arg)
	if err != nil {
		return target{}, fmt.Errorf("resolving %s: %w", arg, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return target{}, fmt.Errorf("target %s does not exist", arg)
		}
		return target{}, fmt.Errorf("reading target: %w", err)
	}
	t := target{path: abs, root: abs, isDir: info.IsDir()}
	if !t.isDir {
		t.root = filepath.Dir(abs)
	}
	return t, nil
}

func resolveLedgerPath(cfg config.Config, root string) string {
	if cfg.LedgerPath != "" {
		return cfg.LedgerPath
	}
	return filepath.Join(root, ledger.DefaultFile)
}

// within returns p relative to root in slash form when p lies under root.
func within(root, p string) (string, bool) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	return rel, true
}

// selfExcludes keeps the tool's own output out of the scan, so a second run
// over the same tree sees the same files.
func selfExcludes(root, outDir, ledgerPath string) []string {
	var out []string
	if rel, ok := within(root, outDir); ok {
		out = append(out, rel, rel+"/**")
	}
	if rel, ok := within(root, ledgerPath); ok {
		out = append(out, rel)
	}
	return out
}

// newScanner builds the file scanner for t. filtered counts files dropped
// for size or content.
func newScanner(cfg config.Config, t target, ledgerPath string, filtered *int) (*scanner.Scanner, error) {
	exclude := append([]string{}, cfg.Exclude...)
	exclude = append(exclude, splitComma(flagExclude)...)
	exclude = append(exclude, selfExcludes(t.root, cfg.OutputDir, ledgerPath)...)

	opts := scanner.Options{
		Root:         t.path,
		Extensions:   cfg.Extensions,
		Exclude:      exclude,
		MaxFileBytes: cfg.MaxFileBytes,
		Skipped: func(rel string, reason error) {
			*filtered++
			logger.Debug().Str("file", rel).Err(reason).Msg("skipped")
		},
	}

	if flagSince != "" && t.isDir {
		changed, err := gitctx.ChangedFiles(t.root, flagSince)
		if err != nil {
			return nil, fmt.Errorf("--since: %w", err)
		}
		opts.Only = append([]string{}, changed...)
	}
	return scanner.New(opts)
}

// buildStages creates one vendor client and adapter per stage. A vendor that
// cannot be constructed, usually for a missing API key, fails the whole run
// before any file is read.
func buildStages(cfg config.Config, c *cache.Cache, rd *redact.Redactor) ([3]pipeline.Analyzer, error) {
	var stages [3]pipeline.Analyzer
	opts := providers.Options{
		Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		Retry: providers.RetryPolicy{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  time.Duration(cfg.RetryBaseMs) * time.Millisecond,
			MaxDelay:   providers.DefaultRetryPolicy.MaxDelay,
		},
	}
	counter := tokens.Default()
	for i, id := range pipeline.Stages {
		sc, _ := cfg.Stages.Get(string(id))
		client, err := providers.New(sc.Provider, sc.Model, opts)
		if err != nil {
			return stages, fmt.Errorf("%s stage: %w", id, err)
		}
		stages[i] = pipeline.NewAdapter(id, client, pipeline.AdapterOptions{
			MaxTokens:     sc.MaxTokens,
			Temperature:   sc.Temperature,
			ContextTokens: cfg.ContextTokens,
			Cache:         c,
			Redactor:      rd,
			Counter:       counter,
			Logger:        logging.Component(logger, "stage"),
		})
	}
	return stages, nil
}

func runAnalyze(cmd *cobra.Command, arg string) error {
	stderr := cmd.ErrOrStderr()

	cfg, err := loadAnalyzeConfig()
	if err != nil {
		return fail(cmd, ExitStartupError, err)
	}
	if flagNoRedact {
		fmt.Fprintln(stderr, warnStyle.Render("WARNING: secret redaction is disabled"))
	}
	t, err := resolveTarget(arg)
	if err != nil {
		return fail(cmd, ExitStartupError, err)
	}

	ledgerPath := resolveLedgerPath(cfg, t.root)
	var filtered int
	scan, err := newScanner(cfg, t, ledgerPath, &filtered)
	if err != nil {
		return fail(cmd, ExitStartupError, err)
	}
	if flagDryRun {
		return dryRun(cmd, scan)
	}

	c, err := cache.New(cfg.Cache.Enabled, cfg.Cache.Dir, cfg.Cache.TTLSeconds)
	if err != nil {
		return fail(cmd, ExitStartupError, fmt.Errorf("opening cache: %w", err))
	}
	rd := redact.New(cfg.Privacy.RedactSecrets, cfg.Privacy.RedactPaths)
	stages, err := buildStages(cfg, c, rd)
	if err != nil {
		return fail(cmd, ExitStartupError, err)
	}
	lg, err := ledger.Open(ledgerPath)
	if err != nil {
		return fail(cmd, ExitStartupError, err)
	}
	rnd, err := report.New(report.Options{Dir: cfg.OutputDir, Format: cfg.Format})
	if err != nil {
		return fail(cmd, ExitStartupError, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := &pipeline.Runner{
		Orchestrator: &pipeline.Orchestrator{
			Stages:   stages,
			Ledger:   lg,
			Renderer: rnd,
			Logger:   logging.Component(logger, "orchestrator"),
		},
		Workers:  cfg.Workers,
		OnReport: progress(stderr),
		Logger:   logging.Component(logger, "runner"),
	}
	sum, runErr := runner.Run(ctx, scan.Files(ctx))
	sum.Skipped += filtered

	// Bookkeeping below must finish even after an interrupt.
	bg := context.WithoutCancel(ctx)
	recordHistory(bg, cfg, t.path, sum)

	project := report.Project{Name: filepath.Base(t.root), Root: t.root, Summary: sum}
	if meta, err := gitctx.GetRepoMeta(t.root); err == nil {
		project.Repo = &meta
	}
	projectErr := rnd.RenderProject(project, lg.Items(ledger.Filter{Status: ledger.StatusAll}))
	if projectErr != nil {
		logger.Error().Err(projectErr).Msg("writing project report")
	}

	printSummary(cmd.OutOrStdout(), sum, lg, rnd, projectErr)

	// Report write failures are shown in the summary; only the ledger can
	// fail a run that started.
	if runErr != nil {
		return fail(cmd, ExitRuntimeError, runErr)
	}
	return nil
}

// recordHistory stores the run. History is best effort: a failure is logged
// and never changes the exit code.
func recordHistory(ctx context.Context, cfg config.Config, target string, sum pipeline.Summary) {
	path := cfg.HistoryPath
	if path == "" {
		p, err := config.DefaultHistoryPath()
		if err != nil {
			logger.Warn().Err(err).Msg("locating history database")
			return
		}
		path = p
	}
	store, err := history.Open(path)
	if err != nil {
		logger.Warn().Err(err).Msg("opening history database")
		return
	}
	defer store.Close()

	if err := store.Record(ctx, target, sum); err != nil {
		logger.Warn().Err(err).Msg("recording run")
		return
	}
	if _, err := store.Prune(ctx, historyKeep); err != nil {
		logger.Warn().Err(err).Msg("pruning history")
	}
}

// progress prints one line per finished file.
func progress(w io.Writer) func(pipeline.FileReport) {
	return func(rep pipeline.FileReport) {
		var failed []string
		for _, res := range rep.Results {
			if !res.OK() {
				failed = append(failed, fmt.Sprintf("%s (%s)", res.Stage, res.Kind))
			}
		}
		todos := fmt.Sprintf("%d todos, %d new", rep.TotalTodos, rep.NewTodos)
		switch {
		case len(failed) == len(rep.Results):
			fmt.Fprintf(w, "%s %s %s\n", errStyle.Render("✗"), rep.Path, dimStyle.Render("all stages failed"))
		case len(failed) > 0:
			fmt.Fprintf(w, "%s %s %s %s\n", warnStyle.Render("!"), rep.Path, dimStyle.Render(todos),
				warnStyle.Render("failed: "+strings.Join(failed, ", ")))
		default:
			fmt.Fprintf(w, "%s %s %s\n", okStyle.Render("✓"), rep.Path, dimStyle.Render(todos))
		}
		if rep.RenderErr != "" {
			fmt.Fprintf(w, "  %s %s\n", errStyle.Render("report:"), rep.RenderErr)
		}
	}
}

func printSummary(w io.Writer, sum pipeline.Summary, lg *ledger.Ledger, rnd *report.Renderer, projectErr error) {
	st := lg.Stats()

	fmt.Fprintln(w, titleStyle.Render("Triage summary"))
	files := fmt.Sprintf("%d files analyzed", sum.Files)
	if sum.Skipped > 0 {
		files += fmt.Sprintf(" (%d skipped)", sum.Skipped)
	}
	fmt.Fprintf(w, "  %s in %s\n", files, sum.Duration.Round(time.Millisecond))

	if n := sum.Failures(); n > 0 {
		var parts []string
		for _, id := range pipeline.Stages {
			if c := sum.StageFailures[id]; c > 0 {
				parts = append(parts, fmt.Sprintf("%s %d", id, c))
			}
		}
		fmt.Fprintf(w, "  %s\n", warnStyle.Render(fmt.Sprintf("Stage failures: %d (%s)", n, strings.Join(parts, ", "))))
	}
	fmt.Fprintf(w, "  TODOs: %d new, %d open, %d completed\n", sum.NewTodos, st.Open, st.Completed)
	fmt.Fprintf(w, "  Ledger: %s\n", lg.Path())
	fmt.Fprintf(w, "  Reports: %s\n", filepath.Join(rnd.Dir(), report.ProjectReportFile))
	if sum.RenderFailures > 0 {
		fmt.Fprintf(w, "  %s\n", warnStyle.Render(fmt.Sprintf("Report write failures: %d file(s)", sum.RenderFailures)))
	}
	if projectErr != nil {
		fmt.Fprintf(w, "  %s\n", warnStyle.Render("Project report not written: "+projectErr.Error()))
	}
	if sum.Canceled {
		fmt.Fprintf(w, "  %s\n", warnStyle.Render("Interrupted: files not yet started were skipped"))
	}
}

// dryRun lists the files a run would analyze without contacting any vendor.
func dryRun(cmd *cobra.Command, scan *scanner.Scanner) error {
	out := cmd.OutOrStdout()
	var count int
	var total int64
	for f, err := range scan.Files(cmd.Context()) {
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %s: %v\n", warnStyle.Render("skip"), f.Path, err)
			continue
		}
		count++
		total += f.Size
		fmt.Fprintf(out, "%s\t%s\t%s\n", f.Rel, pipeline.Language(f.Rel), humanize.Bytes(uint64(f.Size)))
	}
	fmt.Fprintf(out, "%d files, %s\n", count, humanize.Bytes(uint64(total)))
	return nil
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVar(&flagOut, "out", "", "Report output directory")
	f.StringVar(&flagFormat, "format", "", "Report format (markdown, html, json)")
	f.IntVar(&flagWorkers, "workers", 0, "Files analyzed concurrently")
	f.StringVar(&flagLedger, "ledger", "", "TODO ledger file (default: project_todo.json in the target)")
	f.StringVar(&flagSince, "since", "", "Only analyze files changed since this git revision")
	f.StringVar(&flagExclude, "exclude", "", "Extra exclude globs (comma-separated)")
	f.BoolVar(&flagNoCache, "no-cache", false, "Bypass the response cache")
	f.BoolVar(&flagNoRedact, "no-redact", false, "Disable secret redaction (use with caution)")
	f.BoolVar(&flagDryRun, "dry-run", false, "List the files that would be analyzed and exit")
}
