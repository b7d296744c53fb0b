package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"github.com/yuin/goldmark"

	"github.com/dshills/triage/internal/pipeline"
)

// Output directories under the report root.
const (
	AnalysisDir    = "analysis_reports"
	SuggestionsDir = "refactoring_suggestions"
	FileReportsDir = "file_reports"
)

// Formats lists the accepted values of Options.Format.
var Formats = []string{"markdown", "html", "json"}

// Options configures a Renderer.
type Options struct {
	Dir    string
	Format string
	// Now stamps generated documents. Defaults to time.Now.
	Now func() time.Time
}

// Renderer writes per-file and per-project artifacts under one directory. It
// is safe for concurrent use; every file is written atomically.
type Renderer struct {
	dir    string
	format string
	now    func() time.Time
	md     goldmark.Markdown
}

// New validates opts and creates the output directory.
func New(opts Options) (*Renderer, error) {
	if opts.Dir == "" {
		return nil, errors.New("report directory is required")
	}
	format := opts.Format
	if format == "" {
		format = "markdown"
	}
	if !validFormat(format) {
		return nil, fmt.Errorf("unsupported report format %q (want one of %s)", format, strings.Join(Formats, ", "))
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating report directory: %w", err)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Renderer{dir: opts.Dir, format: format, now: now, md: newMarkdown()}, nil
}

// Dir returns the report root.
func (r *Renderer) Dir() string { return r.dir }

// Format returns the configured format.
func (r *Renderer) Format() string { return r.format }

// RenderFile writes one document per stage result of rep. All documents are
// attempted; the returned error joins every failure.
func (r *Renderer) RenderFile(rep pipeline.FileReport) error {
	var errs []error
	for _, res := range rep.Results {
		rel := StagePath(rep.Path, res.Stage)
		doc := stageDocument(rep, res, r.now())
		if err := r.writeMarkdown(rel, doc); err != nil {
			errs = append(errs, err)
		}
	}
	if r.format == "json" {
		data, err := json.MarshalIndent(rep, "", "  ")
		if err == nil {
			err = r.write(path.Join(FileReportsDir, Slug(rep.Path)+".json"), append(data, '\n'))
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("writing json report for %s: %w", rep.Path, err))
		}
	}
	return errors.Join(errs...)
}

// writeMarkdown writes doc and, in html mode, its rendered sibling.
func (r *Renderer) writeMarkdown(rel, doc string) error {
	if err := r.write(rel, []byte(doc)); err != nil {
		return err
	}
	if r.format != "html" {
		return nil
	}
	page, err := r.html(strings.TrimSuffix(path.Base(rel), ".md"), doc)
	if err != nil {
		return fmt.Errorf("rendering %s: %w", rel, err)
	}
	return r.write(strings.TrimSuffix(rel, ".md")+".html", page)
}

// write stores data at the slash-separated path rel under the report root.
func (r *Renderer) write(rel string, data []byte) error {
	p := filepath.Join(r.dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(p), err)
	}
	if err := atomic.WriteFile(p, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing %s: %w", p, err)
	}
	_ = os.Chmod(p, 0o644)
	return nil
}

// Slug flattens a relative path into a single file name.
func Slug(rel string) string {
	rel = strings.TrimPrefix(path.Clean(filepath.ToSlash(rel)), "/")
	rel = strings.ReplaceAll(rel, "../", "")
	return strings.ReplaceAll(rel, "/", "__")
}

// StagePath is the slash-separated location of a stage document relative to
// the report root.
func StagePath(rel string, stage pipeline.StageID) string {
	dir := SuggestionsDir
	if stage == pipeline.StageAnalysis {
		dir = AnalysisDir
	}
	return path.Join(dir, Slug(rel)+"_"+string(stage)+".md")
}

func stageDocument(rep pipeline.FileReport, res pipeline.Result, now time.Time) string {
	var b strings.Builder
	if res.OK() {
		fmt.Fprintf(&b, "# %s of `%s`\n\n", res.Stage.Title(), rep.Path)
	} else {
		fmt.Fprintf(&b, "# %s failed for `%s`\n\n", res.Stage.Title(), rep.Path)
	}
	b.WriteString("*Generated by triage.*\n\n")
	b.WriteString("| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| File | `%s` |\n", rep.Path)
	fmt.Fprintf(&b, "| Language | %s |\n", rep.Language)
	fmt.Fprintf(&b, "| Date | %s |\n", now.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "| Provider | %s |\n", res.Provider)
	fmt.Fprintf(&b, "| Model | %s |\n", res.Model)
	fmt.Fprintf(&b, "| Status | %s |\n", res.Status)
	fmt.Fprintf(&b, "| Latency | %s |\n", res.Latency.Round(time.Millisecond))
	if res.Cached {
		b.WriteString("| Cached | yes |\n")
	} else {
		fmt.Fprintf(&b, "| Attempts | %d |\n", res.Attempts)
	}
	if res.Redacted > 0 {
		fmt.Fprintf(&b, "| Secrets redacted | %d |\n", res.Redacted)
	}
	b.WriteString("\n---\n\n")

	if res.OK() {
		b.WriteString(res.Text)
		b.WriteString("\n")
		return b.String()
	}

	fmt.Fprintf(&b, "The %s stage could not produce a report.\n\n", strings.ToLower(res.Stage.Title()))
	fmt.Fprintf(&b, "**Error kind:** `%s`\n\n", res.Kind)
	b.WriteString("```text\n")
	b.WriteString(res.Err)
	b.WriteString("\n```\n\n")
	b.WriteString("The remaining stages still ran; run the analysis again to retry this one.\n")
	return b.String()
}

func validFormat(f string) bool {
	for _, v := range Formats {
		if f == v {
			return true
		}
	}
	return false
}
